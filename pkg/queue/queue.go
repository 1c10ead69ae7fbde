package queue

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
	// QueueProcess is the Redis list key for full pipeline runs (transcribe + summarize).
	QueueProcess = "worker:process"
	// QueueResummarize is the Redis list key for summarize-only re-runs.
	QueueResummarize = "worker:resummarize"
	// QueueDLQ is the dead-letter queue for jobs that failed before a pipeline
	// run could take ownership of the recording.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeProcessRecording JobType = "process_recording"
	JobTypeResummarize      JobType = "resummarize"
)

// ProcessRecordingPayload is the payload for full pipeline jobs.
type ProcessRecordingPayload struct {
	RecordingID uuid.UUID `json:"recording_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
}

// ResummarizePayload is the payload for summarize-only jobs. The worker reads
// the current transcript and template from the store, not from the payload.
type ResummarizePayload struct {
	RecordingID uuid.UUID `json:"recording_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueProcessRecording enqueues a full pipeline run for a recording.
func (q *Queue) EnqueueProcessRecording(ctx context.Context, payload ProcessRecordingPayload) error {
	return q.enqueue(ctx, QueueProcess, JobTypeProcessRecording, payload)
}

// EnqueueResummarize enqueues a summarize-only re-run for a recording.
func (q *Queue) EnqueueResummarize(ctx context.Context, payload ResummarizePayload) error {
	return q.enqueue(ctx, QueueResummarize, JobTypeResummarize, payload)
}

func (q *Queue) enqueue(ctx context.Context, key string, jobType JobType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("type", string(jobType)))
	return nil
}

// Dequeue blocks until a job is available on any pipeline queue or ctx is done.
// Returns job and key (queue name).
func (q *Queue) Dequeue(ctx context.Context) (*Job, string, error) {
	result, err := q.client.BLPop(ctx, 0, QueueProcess, QueueResummarize).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, "", nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, queueKey string, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if queueKey == "" {
		queueKey = QueueProcess
	}
	if err := q.client.RPush(ctx, queueKey, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
