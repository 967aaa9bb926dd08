// Package wire holds the HTTP contract shared by the API and the client:
// route paths and JSON bodies.
package wire

const (
	PathLogin     = "/login"
	PathRefresh   = "/session/refresh"
	PathLogout    = "/session/logout"
	PathProtected = "/protected"
	PathHealth    = "/healthz"

	// RefreshCookiePath scopes the refresh cookie to refresh and logout only.
	RefreshCookiePath = "/session"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and refresh. AccessExp is Unix seconds.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	AccessExp   int64  `json:"accessExp"`
}

type LogoutResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ProtectedResponse struct {
	Data string `json:"data"`
}
