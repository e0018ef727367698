package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rinkdesk/ice-booking-api/internal/models"
	"github.com/rinkdesk/ice-booking-api/internal/service"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
	"github.com/rinkdesk/ice-booking-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// contextUserIDKey is read by the access log.
const contextUserIDKey = "userID"

// accessTokenParam carries the token for clients that cannot set headers,
// such as browser websockets and calendar subscriptions.
const accessTokenParam = "access_token"

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT protects routes by requiring a valid access token.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			response.Error(c, err)
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(contextUserIDKey, claims.UserID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query(accessTokenParam); token != "" {
			return token, nil
		}
		return "", appErrors.ErrUnauthorized
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// Principal returns the authenticated caller. ok is false on public routes.
func Principal(c *gin.Context) (models.Principal, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return models.Principal{}, false
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok || claims == nil {
		return models.Principal{}, false
	}
	return service.Principal(claims), true
}
