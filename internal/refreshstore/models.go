package refreshstore

import (
	"errors"
	"time"
)

// Record is the server-side half of a refresh credential.
//
// Invariants:
// - At most one live record per RotationID.
// - A RotationID is consumed (deleted) the moment it is rotated; it is never reinserted.
type Record struct {
	RotationID string    `json:"id"`
	Subject    string    `json:"subject"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

var (
	ErrNotFound        = errors.New("refreshstore: record not found")
	ErrSubjectMismatch = errors.New("refreshstore: subject mismatch")
	ErrDuplicateID     = errors.New("refreshstore: rotation id already present")
	ErrInvalidRecord   = errors.New("refreshstore: invalid record")
)
