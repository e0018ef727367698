package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/rinkdesk/ice-booking-api/internal/models"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
	"github.com/rinkdesk/ice-booking-api/pkg/response"
)

// RBAC enforces role-based access control for routes. JWT must run first.
func RBAC(allowed ...models.UserRole) gin.HandlerFunc {
	roles := make(map[models.UserRole]struct{}, len(allowed))
	for _, r := range allowed {
		roles[r] = struct{}{}
	}
	return func(c *gin.Context) {
		p, ok := Principal(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := roles[p.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "administrator role required"))
			return
		}
		c.Next()
	}
}

// RequireAdmin restricts a route to rink administrators.
func RequireAdmin() gin.HandlerFunc {
	return RBAC(models.RoleAdmin)
}
