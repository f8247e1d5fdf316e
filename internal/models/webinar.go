package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Webinar status values. A draft is being assembled by the configuration
// wizard; publishing requires a video id and at least one schedule.
const (
	WebinarStatusDraft     = "draft"
	WebinarStatusPublished = "published"
)

// FormField is one field in the attendee registration form, in display order.
type FormField struct {
	ID       string `json:"id"`       // key for storing the response, e.g. "company"
	Label    string `json:"label"`    // display label, e.g. "Company name"
	Type     string `json:"type"`     // "text", "email", "number", "textarea"
	Required bool   `json:"required"`
}

// Webinar is one configured fake-live broadcast: a pre-recorded asset plus
// the schedules it replays on.
type Webinar struct {
	ID               uuid.UUID       `json:"id"`
	VideoID          string          `json:"video_id"`
	PublicTitle      string          `json:"public_title"`
	InternalTitle    string          `json:"internal_title"`
	Status           string          `json:"status"`
	RegistrationForm json.RawMessage `json:"registration_form,omitempty"`
	Schedules        []Schedule      `json:"schedules,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Schedule is a single planned broadcast instant. StartsAt drives session
// resolution; DisplayDate/DisplayTime are presentation strings shown on the
// waiting screen. Position preserves insertion order, which is also the
// resolver's scan order.
type Schedule struct {
	ID          uuid.UUID `json:"id"`
	WebinarID   uuid.UUID `json:"webinar_id"`
	StartsAt    time.Time `json:"starts_at"`
	DisplayDate string    `json:"display_date"`
	DisplayTime string    `json:"display_time"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
}
