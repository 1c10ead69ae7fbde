package realtime

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smart-scribe/backend/internal/models"
)

// Event names on the owner channel.
const (
	EventSnapshot         = "snapshot"
	EventRecordingUpdated = "recording_updated"
	EventRecordingDeleted = "recording_deleted"
)

// Events turns domain changes into owner-channel broadcasts. Both the HTTP
// handlers and the pipeline publish through it.
type Events struct {
	hub *Hub
}

// NewEvents creates the broadcast bridge.
func NewEvents(hub *Hub) *Events {
	return &Events{hub: hub}
}

// RecordingUpdated pushes the fresh row to all of the owner's clients.
func (e *Events) RecordingUpdated(rec *models.Recording) {
	if rec == nil {
		return
	}
	e.hub.BroadcastToOwnerAndPublish(rec.OwnerID, EventRecordingUpdated, rec)
}

// RecordingDeleted tells the owner's clients a recording is gone.
func (e *Events) RecordingDeleted(ownerID, recordingID uuid.UUID) {
	e.hub.BroadcastToOwnerAndPublish(ownerID, EventRecordingDeleted, gin.H{"id": recordingID})
}
