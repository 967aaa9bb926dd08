// Package session is the server-side credential authority: it issues access
// and refresh credentials at login, rotates refresh credentials, detects
// replayed refresh credentials, and verifies access credentials.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"auth-rotation/internal/audit"
	"auth-rotation/internal/autherr"
	"auth-rotation/internal/ratelimit"
	"auth-rotation/internal/refreshstore"
	"auth-rotation/internal/token"
	"auth-rotation/internal/users"
	"auth-rotation/pkg/logger"

	"github.com/google/uuid"
)

// RecordStore is the subset of the refresh record store the authority needs.
type RecordStore interface {
	Insert(ctx context.Context, r refreshstore.Record) error
	Delete(ctx context.Context, rotationID string)
	Rotate(ctx context.Context, oldID, subject string, next refreshstore.Record) error
	DeleteAllForSubject(ctx context.Context, subject string) int
}

// Grant is the result of a successful login or refresh. Refresh must travel
// out-of-band; only Access is handed to client code.
type Grant struct {
	Subject    string
	RotationID string
	Access     token.Issued
	Refresh    token.Issued
}

type Options struct {
	Policy  ReusePolicy
	Limiter ratelimit.Limiter
	Audit   *audit.Service
	Logger  *slog.Logger
	Clock   func() time.Time
	NewID   func() string
}

type Authority struct {
	codec   *token.Codec
	store   RecordStore
	users   users.Directory
	policy  ReusePolicy
	limiter ratelimit.Limiter
	audit   *audit.Service
	log     *slog.Logger
	clock   func() time.Time
	newID   func() string
}

func NewAuthority(codec *token.Codec, store RecordStore, dir users.Directory, opts Options) (*Authority, error) {
	if codec == nil || store == nil || dir == nil {
		return nil, errors.New("session: codec, store and directory are required")
	}
	a := &Authority{
		codec:   codec,
		store:   store,
		users:   dir,
		policy:  opts.Policy,
		limiter: opts.Limiter,
		audit:   opts.Audit,
		log:     opts.Logger,
		clock:   opts.Clock,
		newID:   opts.NewID,
	}
	if a.limiter == nil {
		a.limiter = ratelimit.Noop{}
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.clock == nil {
		a.clock = time.Now
	}
	if a.newID == nil {
		a.newID = uuid.NewString
	}
	return a, nil
}

/* ===================== LOGIN ===================== */

func (a *Authority) Login(ctx context.Context, username, password string) (Grant, error) {
	ip := ClientIPFromContext(ctx)

	ok, err := a.limiter.Allow(ctx, username+"|"+ip)
	if err != nil {
		// Throttling is best-effort; a limiter outage must not lock everyone out.
		a.logFor(ctx).WarnContext(ctx, "login limiter failed", "err", err)
	} else if !ok {
		return Grant{}, autherr.ErrTooManyAttempts
	}

	subject, err := a.users.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			a.record(ctx, func() error { return a.audit.LogLogin(ctx, username, "", ip, false) })
			return Grant{}, autherr.ErrInvalidCredentials
		}
		return Grant{}, fmt.Errorf("login: %w", err)
	}

	g, err := a.issue(a.clock(), subject)
	if err != nil {
		return Grant{}, fmt.Errorf("login: %w", err)
	}
	if err := a.store.Insert(ctx, a.recordFor(g)); err != nil {
		return Grant{}, fmt.Errorf("login: store refresh record: %w", err)
	}

	a.record(ctx, func() error { return a.audit.LogLogin(ctx, subject, g.RotationID, ip, true) })
	return g, nil
}

/* ===================== REFRESH ===================== */

// Refresh consumes the presented refresh credential and returns a new grant.
// A presented credential whose rotation id is not live is treated as a replay.
func (a *Authority) Refresh(ctx context.Context, refreshToken string) (Grant, error) {
	if refreshToken == "" {
		return Grant{}, autherr.ErrNoRefreshCredential
	}

	now := a.clock()
	claims, err := a.codec.VerifyRefresh(refreshToken, now)
	if err != nil {
		a.logFor(ctx).WarnContext(ctx, "refresh verify failed", "err", err)
		return Grant{}, fmt.Errorf("%w: %v", autherr.ErrInvalidRefreshSignature, err)
	}
	subject, oldID := claims.Subject, claims.RotationID

	g, err := a.issue(now, subject)
	if err != nil {
		return Grant{}, fmt.Errorf("refresh: %w", err)
	}

	err = a.store.Rotate(ctx, oldID, subject, a.recordFor(g))
	switch {
	case err == nil:
	case errors.Is(err, refreshstore.ErrNotFound), errors.Is(err, refreshstore.ErrSubjectMismatch):
		return Grant{}, a.reuseDetected(ctx, subject, oldID)
	default:
		return Grant{}, fmt.Errorf("refresh: rotate: %w", err)
	}

	a.record(ctx, func() error { return a.audit.LogRotated(ctx, subject, oldID, ClientIPFromContext(ctx)) })
	return g, nil
}

func (a *Authority) reuseDetected(ctx context.Context, subject, rotationID string) error {
	revoked := 0
	if a.policy == RevokeSubject {
		revoked = a.store.DeleteAllForSubject(ctx, subject)
	}
	a.logFor(ctx).WarnContext(ctx, "refresh token reuse or invalid",
		"subject", subject,
		"rotation_id", rotationID,
		"policy", a.policy.String(),
		"revoked", revoked,
	)
	a.record(ctx, func() error {
		return a.audit.LogReuseDetected(ctx, subject, rotationID, ClientIPFromContext(ctx), revoked)
	})
	return autherr.ErrInvalidRefreshCredential
}

/* ===================== LOGOUT ===================== */

// Logout deletes the record behind refreshToken when it verifies. It never fails.
func (a *Authority) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	claims, err := a.codec.VerifyRefresh(refreshToken, a.clock())
	if err != nil {
		a.logFor(ctx).DebugContext(ctx, "logout with undecodable refresh token", "err", err)
		return
	}
	a.store.Delete(ctx, claims.RotationID)
	a.record(ctx, func() error {
		return a.audit.LogLogout(ctx, claims.Subject, claims.RotationID, ClientIPFromContext(ctx))
	})
}

/* ===================== VERIFY ACCESS ===================== */

// VerifyAccess is stateless: signature and expiry only, no store lookup.
func (a *Authority) VerifyAccess(accessToken string) (string, error) {
	if accessToken == "" {
		return "", autherr.ErrMissingCredential
	}
	claims, err := a.codec.VerifyAccess(accessToken, a.clock())
	if err != nil {
		return "", fmt.Errorf("%w: %v", autherr.ErrInvalidAccessCredential, err)
	}
	return claims.Subject, nil
}

/* ===================== HELPERS ===================== */

func (a *Authority) issue(now time.Time, subject string) (Grant, error) {
	rotationID := a.newID()
	access, err := a.codec.IssueAccess(now, subject)
	if err != nil {
		return Grant{}, fmt.Errorf("issue access: %w", err)
	}
	refresh, err := a.codec.IssueRefresh(now, subject, rotationID)
	if err != nil {
		return Grant{}, fmt.Errorf("issue refresh: %w", err)
	}
	return Grant{Subject: subject, RotationID: rotationID, Access: access, Refresh: refresh}, nil
}

func (a *Authority) recordFor(g Grant) refreshstore.Record {
	return refreshstore.Record{RotationID: g.RotationID, Subject: g.Subject, ExpiresAt: g.Refresh.ExpiresAt}
}

func (a *Authority) record(ctx context.Context, fn func() error) {
	if a.audit == nil {
		return
	}
	if err := fn(); err != nil {
		a.logFor(ctx).WarnContext(ctx, "audit append failed", "err", err)
	}
}

// logFor prefers the request-scoped logger so lines carry the request id.
func (a *Authority) logFor(ctx context.Context) *slog.Logger {
	return logger.FromOr(ctx, a.log)
}
