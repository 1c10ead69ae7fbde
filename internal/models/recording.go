package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced row no longer exists.
// Callers racing a concurrent delete must treat it as benign.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a guarded status transition loses its
// compare-and-swap, i.e. another pipeline run already owns the recording.
var ErrConflict = errors.New("conflicting status transition")

// Recording lifecycle statuses.
const (
	RecordingStatusPending      = "pending"
	RecordingStatusUploading    = "uploading"
	RecordingStatusUploaded     = "uploaded"
	RecordingStatusTranscribing = "transcribing"
	RecordingStatusSummarizing  = "summarizing"
	RecordingStatusCompleted    = "completed"
	RecordingStatusError        = "error"
)

// NoTemplateSummary is stored as the summary when transcription succeeded but
// the owner has no template configured.
const NoTemplateSummary = "No template provided for summarization."

// Recording is one user-owned audio capture and its derived artifacts.
// AudioKey is set once at upload completion and never changes; AudioURL is a
// presigned URL derived from it and may be refreshed at any time.
type Recording struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	DisplayName string    `json:"display_name"`
	AudioKey    string    `json:"audio_key,omitempty"`
	AudioURL    string    `json:"audio_url,omitempty"`
	Transcript  string    `json:"transcript,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsTerminal reports whether the recording is in a terminal state for its
// current run. Terminal states still allow user-initiated re-summarization.
func (r *Recording) IsTerminal() bool {
	return r.Status == RecordingStatusCompleted || r.Status == RecordingStatusError
}
