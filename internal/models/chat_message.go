package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is one line in a webinar's chat. CreatedAt is assigned by the
// database at insert time, never by the client, so session filtering cannot
// be skewed by device clocks.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	WebinarID uuid.UUID `json:"webinar_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
