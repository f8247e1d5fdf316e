package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailType values.
const (
	EmailTypeJoinLink = "join_link"
)

// EmailLog delivery status.
const (
	EmailLogStatusPending = "pending"
	EmailLogStatusSent    = "sent"
	EmailLogStatusFailed  = "failed"
)

// EmailLog records one outgoing email (join-link delivery).
type EmailLog struct {
	ID             uuid.UUID  `json:"id"`
	WebinarID      *uuid.UUID `json:"webinar_id,omitempty"`
	RegistrationID *uuid.UUID `json:"registration_id,omitempty"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
