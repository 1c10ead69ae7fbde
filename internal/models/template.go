package models

import (
	"time"

	"github.com/google/uuid"
)

// Template is a user's summary formatting template. One per user; absence is a
// valid state (the resolver falls back to a built-in default). Templates are
// only ever created or replaced, never deleted.
type Template struct {
	OwnerID   uuid.UUID `json:"owner_id"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}
