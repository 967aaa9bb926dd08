package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"auth-rotation/internal/audit"
	"auth-rotation/internal/auth"
	"auth-rotation/internal/autherr"
	"auth-rotation/internal/config"
	"auth-rotation/internal/refreshstore"
	"auth-rotation/internal/session"
	"auth-rotation/internal/wire"
	"auth-rotation/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Authority is the session authority surface the handlers drive.
type Authority interface {
	Login(ctx context.Context, username, password string) (session.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (session.Grant, error)
	Logout(ctx context.Context, refreshToken string)
	VerifyAccess(accessToken string) (string, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call the authority, return JSON.
type Handlers struct {
	Session Authority
	Cookie  config.CookieConfig

	// RefreshTTL bounds the refresh cookie lifetime.
	RefreshTTL time.Duration

	// Debug-only views; nil disables the corresponding route.
	Records *refreshstore.MemoryStore
	Audit   *audit.MemoryRepo
}

// --- Session ---

// Login verifies credentials, sets the refresh cookie, and returns the access credential.
func (h Handlers) Login(c *gin.Context) {
	var req wire.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, wire.ErrorResponse{Error: "invalid_request"})
		return
	}

	g, err := h.Session.Login(h.requestContext(c), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setRefreshCookie(c, g.Refresh.Token)
	c.JSON(http.StatusOK, tokenResponse(g))
}

// Refresh rotates the refresh cookie. No body is read.
func (h Handlers) Refresh(c *gin.Context) {
	incoming, _ := c.Cookie(h.Cookie.Name)

	g, err := h.Session.Refresh(h.requestContext(c), incoming)
	if err != nil {
		if autherr.IsTerminal(err) {
			// The presented cookie is dead either way; stop the browser resending it.
			h.clearRefreshCookie(c)
		}
		h.fail(c, err)
		return
	}

	h.setRefreshCookie(c, g.Refresh.Token)
	c.JSON(http.StatusOK, tokenResponse(g))
}

// Logout always succeeds and always clears the refresh cookie.
func (h Handlers) Logout(c *gin.Context) {
	incoming, _ := c.Cookie(h.Cookie.Name)
	h.Session.Logout(h.requestContext(c), incoming)
	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, wire.LogoutResponse{OK: true})
}

// Protected is the sample resource behind auth.RequireAccessToken.
func (h Handlers) Protected(c *gin.Context) {
	subject, err := auth.Subject(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, wire.ErrorResponse{Error: autherr.CodeMissingAuth})
		return
	}
	c.JSON(http.StatusOK, wire.ProtectedResponse{Data: "protected data for " + subject})
}

// --- Debug ---

func (h Handlers) DebugRefreshStore(c *gin.Context) {
	if h.Records == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, h.Records.Snapshot())
}

func (h Handlers) DebugAudit(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, h.Audit.Events())
}

// --- helpers ---

func (h Handlers) requestContext(c *gin.Context) context.Context {
	return session.WithClientIP(c.Request.Context(), c.ClientIP())
}

func (h Handlers) setRefreshCookie(c *gin.Context, value string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.Cookie.Name, value, int(h.RefreshTTL.Seconds()), wire.RefreshCookiePath, "", h.Cookie.Secure, true)
}

func (h Handlers) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.Cookie.Name, "", -1, wire.RefreshCookiePath, "", h.Cookie.Secure, true)
}

func (h Handlers) fail(c *gin.Context, err error) {
	code := autherr.Code(err)
	switch {
	case errors.Is(err, autherr.ErrTooManyAttempts):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, wire.ErrorResponse{Error: code})
	case code != autherr.CodeInternal:
		c.AbortWithStatusJSON(http.StatusUnauthorized, wire.ErrorResponse{Error: code})
	default:
		logger.FromGin(c).Error("session operation failed", "err", err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, wire.ErrorResponse{Error: code})
	}
}

func tokenResponse(g session.Grant) wire.TokenResponse {
	return wire.TokenResponse{AccessToken: g.Access.Token, AccessExp: g.Access.ExpiresAt.Unix()}
}
