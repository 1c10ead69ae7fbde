package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix = "owner:"
	eventTTL      = 5 * time.Second
)

// redisPayload is the message published to Redis for cross-instance broadcast.
// Origin carries the publishing instance's ID so the loopback delivery can be
// dropped: the publisher's local clients already got the event directly.
type redisPayload struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	Origin string          `json:"origin"`
	At     int64           `json:"at"`
}

// RedisPubSub implements RedisPublisher/RedisSubscriber using Redis pub/sub.
type RedisPubSub struct {
	client     *redis.Client
	instanceID string
	logger     *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for owner events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, instanceID: uuid.New().String(), logger: logger}
}

// PublishOwnerEvent publishes an event to the owner's Redis channel.
func (r *RedisPubSub) PublishOwnerEvent(ownerID uuid.UUID, event string, payload []byte) error {
	channel := channelPrefix + ownerID.String()
	body, err := json.Marshal(redisPayload{Event: event, Data: payload, Origin: r.instanceID, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTTL)
	defer cancel()
	return r.client.Publish(ctx, channel, body).Err()
}

// decode parses a raw channel message and reports whether it should be
// delivered to local clients. Self-published messages are dropped.
func (r *RedisPubSub) decode(raw []byte) (event string, data []byte, ok bool) {
	var p redisPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", nil, false
	}
	if p.Origin == r.instanceID {
		return "", nil, false
	}
	return p.Event, p.Data, true
}

// SubscribeOwner subscribes to an owner's Redis channel and calls handler for
// each message. Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeOwner(ownerID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	channel := channelPrefix + ownerID.String()
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channel)
	_, err = pubsub.Receive(ctx)
	if err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				event, data, deliver := r.decode([]byte(msg.Payload))
				if !deliver {
					continue
				}
				handler(event, data)
			}
		}
	}()
	cancel = func() { cancelCtx() }
	return cancel, nil
}
