package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	WebhookSourceStripe = "stripe"
	WebhookSourceGelato = "gelato"
)

// WebhookLog is an audit row for inbound events and outbound vendor attempts.
type WebhookLog struct {
	ID        uuid.UUID `json:"id"`
	Source    string    `json:"source"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id,omitempty"`
	Payload   string    `json:"payload"`
	Processed bool      `json:"processed"`
	// Duplicate marks a redelivery of an event that was already claimed.
	Duplicate bool      `json:"duplicate,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
