// Package client contains the client-side half of the credential rotation
// protocol.
//
// # Overview
//
// The package provides:
//  1. SessionStore: volatile holder of the current access credential with a
//     local, best-effort expiry decode and a "session invalidated"
//     subscription.
//  2. Coordinator: an http.RoundTripper that attaches the access credential,
//     detects 401 responses, and runs a single-flight refresh. Requests that
//     hit a 401 while a refresh is underway wait for it and are replayed with
//     the credential it produced.
//  3. Client: login/refresh/logout calls against the API, a cookie jar that
//     holds the refresh credential out of reach of SessionStore, and helpers
//     for protected calls.
//
// # Error Handling
//
// Server failures map to the autherr sentinels via their wire codes. A failed
// refresh surfaces as ErrSessionExpired wrapping the server's reason; match
// with errors.Is.
//
// # Concurrency
//
// Client, Coordinator and SessionStore are safe for concurrent use. Exactly
// one refresh call is in flight at any time.
package client
