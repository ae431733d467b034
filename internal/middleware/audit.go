package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

// AuditOrigin stores the client address and user agent on the request context
// so audit rows written deeper in the stack can be attributed.
func AuditOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := models.WithAuditOrigin(c.Request.Context(), models.AuditOrigin{
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
