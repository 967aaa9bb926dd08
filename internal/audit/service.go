package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. It is append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records credential lifecycle events.
//
// Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Subject == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogReuseDetected records a replayed or unknown refresh credential and the
// number of records revoked because of it.
func (s *Service) LogReuseDetected(ctx context.Context, subject, rotationID, ip string, revoked int) error {
	return s.Append(ctx, Event{
		Subject:    subject,
		Type:       EventTypeReuseDetected,
		RotationID: rotationID,
		IPAddress:  ip,
		Revoked:    revoked,
		Message:    "refresh credential reuse or unknown rotation id",
	})
}

func (s *Service) LogRotated(ctx context.Context, subject, oldID, ip string) error {
	return s.Append(ctx, Event{
		Subject:    subject,
		Type:       EventTypeRotated,
		RotationID: oldID,
		IPAddress:  ip,
	})
}

func (s *Service) LogLogin(ctx context.Context, subject, rotationID, ip string, ok bool) error {
	e := Event{Subject: subject, Type: EventTypeLoginSucceeded, RotationID: rotationID, IPAddress: ip}
	if !ok {
		e.Type = EventTypeLoginFailed
	}
	return s.Append(ctx, e)
}

func (s *Service) LogLogout(ctx context.Context, subject, rotationID, ip string) error {
	return s.Append(ctx, Event{
		Subject:    subject,
		Type:       EventTypeLogout,
		RotationID: rotationID,
		IPAddress:  ip,
	})
}
