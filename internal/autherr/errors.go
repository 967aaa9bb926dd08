// Package autherr is the credential error taxonomy shared by the session
// authority and the client. Every sentinel has a stable wire code carried in
// the {"error": code} body of a 401/429 response.
package autherr

import "errors"

var (
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrNoRefreshCredential      = errors.New("no refresh credential presented")
	ErrInvalidRefreshSignature  = errors.New("refresh credential failed verification")
	ErrInvalidRefreshCredential = errors.New("refresh credential unknown or already used")
	ErrMissingCredential        = errors.New("access credential missing")
	ErrInvalidAccessCredential  = errors.New("access credential invalid or expired")
	ErrTooManyAttempts          = errors.New("too many login attempts")
)

const (
	CodeInvalidCredentials      = "invalid_credentials"
	CodeNoRefreshToken          = "no_refresh_token"
	CodeInvalidRefreshSignature = "invalid_refresh_signature"
	CodeInvalidRefreshToken     = "invalid_refresh_token"
	CodeMissingAuth             = "missing_auth"
	CodeInvalidAccessToken      = "invalid_access_token"
	CodeTooManyAttempts         = "too_many_attempts"
	CodeInternal                = "internal_error"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrNoRefreshCredential, CodeNoRefreshToken},
	{ErrInvalidRefreshSignature, CodeInvalidRefreshSignature},
	{ErrInvalidRefreshCredential, CodeInvalidRefreshToken},
	{ErrMissingCredential, CodeMissingAuth},
	{ErrInvalidAccessCredential, CodeInvalidAccessToken},
	{ErrTooManyAttempts, CodeTooManyAttempts},
}

// Code returns the wire code for err, or CodeInternal when err is not part of
// the taxonomy.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// FromCode maps a wire code back to its sentinel. Unknown codes return nil.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

// IsTerminal reports whether err ends the current session. Access credential
// failures are recoverable through a refresh and are not terminal.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrNoRefreshCredential) ||
		errors.Is(err, ErrInvalidRefreshSignature) ||
		errors.Is(err, ErrInvalidRefreshCredential)
}
