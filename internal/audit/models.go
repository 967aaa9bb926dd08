package audit

import "time"

// Event is an immutable, append-only security audit record.
//
// Invariants:
// - Events are never updated or deleted.
// - Subject is required; anonymous failures use the attempted username.
// - ip capture is best-effort; do not block credential flows on audit failures.
type Event struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	Type    EventType `json:"type"`

	// RotationID names the refresh record involved, if any.
	RotationID string `json:"rotation_id,omitempty"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty"`

	// Revoked counts records deleted as a side effect (reuse detection).
	Revoked int `json:"revoked,omitempty"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeLoginSucceeded EventType = "login_succeeded"
	EventTypeLoginFailed    EventType = "login_failed"
	EventTypeRotated        EventType = "refresh_rotated"
	EventTypeReuseDetected  EventType = "refresh_reuse_detected"
	EventTypeLogout         EventType = "logout"
)
