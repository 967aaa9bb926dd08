package auth

import (
	"net/http"
	"strings"

	"auth-rotation/internal/autherr"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// Verifier checks an access credential and returns its subject.
type Verifier interface {
	VerifyAccess(accessToken string) (string, error)
}

// RequireAccessToken verifies the bearer access credential and injects the subject
// into the request context. Verification is stateless; no store is consulted.
func RequireAccessToken(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": autherr.CodeMissingAuth})
			return
		}
		tok, ok := strings.CutPrefix(raw, bearerPrefix)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": autherr.CodeInvalidAccessToken})
			return
		}

		subject, err := v.VerifyAccess(strings.TrimSpace(tok))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": autherr.Code(err)})
			return
		}

		c.Request = c.Request.WithContext(WithSubject(c.Request.Context(), subject))
		// Also store on gin context for handler convenience.
		c.Set("subject", subject)

		c.Next()
	}
}
