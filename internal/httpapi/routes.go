package httpapi

import (
	"net/http"

	"auth-rotation/internal/auth"
	"auth-rotation/internal/wire"

	"github.com/gin-gonic/gin"
)

// Register wires the protocol routes onto r.
// Keep this free of business logic. Handlers delegate to the session authority.
func Register(r *gin.Engine, h Handlers, debug bool) {
	r.GET(wire.PathHealth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST(wire.PathLogin, h.Login)
	r.POST(wire.PathRefresh, h.Refresh)
	r.POST(wire.PathLogout, h.Logout)

	r.GET(wire.PathProtected, auth.RequireAccessToken(h.Session), h.Protected)

	if debug {
		// Not for production: exposes rotation ids.
		dbg := r.Group("/debug")
		dbg.GET("/refresh-store", h.DebugRefreshStore)
		dbg.GET("/audit", h.DebugAudit)
	}
}
