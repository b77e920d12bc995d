package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/recbridge/backend/internal/auth"
	"github.com/recbridge/backend/pkg/response"
)

// RequireDomain rejects callers whose token e-mail is outside domain.
// It runs after JWT so a domain change takes effect before tokens expire.
func RequireDomain(domain string) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.GetString(ContextUserEmail)
		if email == "" {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if err := auth.CheckDomain(email, domain); err != nil {
			response.Forbidden(c, "account domain not allowed")
			c.Abort()
			return
		}
		c.Next()
	}
}
