// Package token encodes and verifies the signed access and refresh credentials.
package token

import (
	"errors"
	"fmt"
	"time"

	"auth-rotation/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrKindMismatch      = errors.New("token kind mismatch")
	ErrSubjectMissing    = errors.New("subject missing")
	ErrRotationIDMissing = errors.New("rotation id missing in refresh token")
	ErrMalformed         = errors.New("malformed token")
)

// Issued is a freshly signed credential together with its expiry.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// Codec signs and verifies credentials. Access and refresh credentials use
// separate secrets so one can never be accepted in place of the other.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	leeway        time.Duration
}

func NewCodec(cfg config.AuthConfig) (*Codec, error) {
	if cfg.AccessTokenSecret == "" {
		return nil, errors.New("ACCESS_TOKEN_SECRET is required")
	}
	if cfg.RefreshTokenSecret == "" {
		return nil, errors.New("REFRESH_TOKEN_SECRET is required")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, errors.New("token ttls must be positive")
	}

	return &Codec{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		issuer:        cfg.JWTIssuer,
		audience:      cfg.JWTAudience,
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		leeway:        cfg.Leeway,
	}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

/* ===================== ISSUE TOKENS ===================== */

func (c *Codec) IssueAccess(now time.Time, subject string) (Issued, error) {
	return c.issue(now, KindAccess, subject, "", c.accessTTL, c.accessSecret)
}

func (c *Codec) IssueRefresh(now time.Time, subject, rotationID string) (Issued, error) {
	if rotationID == "" {
		return Issued{}, ErrRotationIDMissing
	}
	return c.issue(now, KindRefresh, subject, rotationID, c.refreshTTL, c.refreshSecret)
}

/* ===================== VERIFY TOKEN ===================== */

// VerifyAccess checks signature and expiry only. It never consults server state.
func (c *Codec) VerifyAccess(tokenString string, now time.Time) (Claims, error) {
	return c.verify(tokenString, KindAccess, c.accessSecret, now)
}

// VerifyRefresh checks signature and expiry and requires a rotation id.
// Whether the rotation id is still live is the caller's concern.
func (c *Codec) VerifyRefresh(tokenString string, now time.Time) (Claims, error) {
	claims, err := c.verify(tokenString, KindRefresh, c.refreshSecret, now)
	if err != nil {
		return Claims{}, err
	}
	if claims.RotationID == "" {
		return Claims{}, ErrRotationIDMissing
	}
	return claims, nil
}

func (c *Codec) verify(tokenString string, expected Kind, secret []byte, now time.Time) (Claims, error) {
	var claims Claims

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(c.leeway),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	if c.audience != "" {
		opts = append(opts, jwt.WithAudience(c.audience))
	}

	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	if claims.Kind != expected {
		return Claims{}, ErrKindMismatch
	}
	if claims.Subject == "" {
		return Claims{}, ErrSubjectMissing
	}
	return claims, nil
}

/* ===================== LOCAL DECODE ===================== */

// Decoded is what a holder can read from a credential without the secret.
type Decoded struct {
	Subject   string
	ExpiresAt time.Time
}

// DecodeUnverified reads subject and expiry from a credential without checking
// the signature. It is meant for clients deciding when a credential is stale,
// never for authorization.
func DecodeUnverified(tokenString string) (Decoded, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &claims); err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := Decoded{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

/* ===================== INTERNAL ISSUE ===================== */

func (c *Codec) issue(
	now time.Time,
	kind Kind,
	subject,
	rotationID string,
	ttl time.Duration,
	secret []byte,
) (Issued, error) {
	if subject == "" {
		return Issued{}, ErrSubjectMissing
	}

	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			Audience:  audienceOrNil(c.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Kind:       kind,
		RotationID: rotationID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return Issued{}, err
	}
	// NumericDate truncates to whole seconds; report what the token carries.
	return Issued{Token: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
