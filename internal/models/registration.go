package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Registration is an attendee registration for a webinar. Responses holds the
// answers keyed by the webinar's registration form field ids.
type Registration struct {
	ID        uuid.UUID       `json:"id"`
	WebinarID uuid.UUID       `json:"webinar_id"`
	Email     string          `json:"email"`
	FullName  string          `json:"full_name"`
	Responses json.RawMessage `json:"responses,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
