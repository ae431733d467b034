package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-promotion-api/internal/models"
	appErrors "github.com/noah-isme/sma-promotion-api/pkg/errors"
	"github.com/noah-isme/sma-promotion-api/pkg/response"
)

// RequireRoles lets a request through only when the JWT claims carry one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		claims, ok := value.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role not allowed to manage promotions"))
			return
		}
		c.Next()
	}
}
