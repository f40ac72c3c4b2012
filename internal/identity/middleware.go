package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/h2trust/hydroledger/internal/ledger/model"
)

// ctxSessionClaims is the Gin context key under which verified session claims
// are stored.
const ctxSessionClaims = "h2_session_claims"

// RequireSession returns a Gin middleware that enforces a valid participant
// Bearer token. On success it injects the *SessionClaims into the context.
func RequireSession(tokens *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Bearer token required",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "invalid session token",
			})
			return
		}

		c.Set(ctxSessionClaims, claims)
		c.Next()
	}
}

// RequireCapability returns a Gin middleware that enforces the caller's role
// grants the given capability. Must run after RequireSession.
func RequireCapability(cap model.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFromCtx(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "authentication required",
			})
			return
		}
		if !claims.ParticipantRole().Can(cap) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "role " + claims.Role + " may not perform this action",
			})
			return
		}
		c.Next()
	}
}

// ClaimsFromCtx extracts the verified session claims injected by
// RequireSession, or nil when the request is unauthenticated.
func ClaimsFromCtx(c *gin.Context) *SessionClaims {
	v, _ := c.Get(ctxSessionClaims)
	claims, _ := v.(*SessionClaims)
	return claims
}
