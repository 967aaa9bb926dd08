package client

import "errors"

var (
	// ErrSessionExpired rejects requests whose refresh attempt failed.
	ErrSessionExpired = errors.New("session expired")
	// ErrLoggedOut rejects requests waiting on a refresh that a logout overtook.
	ErrLoggedOut         = errors.New("logged out")
	ErrUnexpectedStatus  = errors.New("unexpected status")
	ErrMalformedResponse = errors.New("malformed response")
)
