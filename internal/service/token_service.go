package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rinkdesk/ice-booking-api/internal/models"
	appErrors "github.com/rinkdesk/ice-booking-api/pkg/errors"
)

// TokenConfig holds bearer token verification settings.
type TokenConfig struct {
	Secret string
	Issuer string
}

// TokenService verifies HS256 access tokens minted by the identity provider.
type TokenService struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(config TokenConfig) *TokenService {
	return &TokenService{config: config, now: time.Now}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.now)}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	claims.Role = models.UserRole(strings.ToUpper(string(claims.Role)))
	if claims.UserID == "" || (claims.Role != models.RoleAdmin && claims.Role != models.RoleRenter) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Issue signs a token for the given principal. The identity provider mints
// production tokens; this exists for local tooling and tests.
func (s *TokenService) Issue(p models.Principal, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &models.JWTClaims{
		UserID: p.UserID,
		Role:   p.Role,
		Email:  p.Email,
		Name:   p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UserID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	return signed, nil
}

// Principal converts validated claims into the caller identity.
func Principal(claims *models.JWTClaims) models.Principal {
	if claims == nil {
		return models.Principal{}
	}
	return models.Principal{UserID: claims.UserID, Role: claims.Role, Email: claims.Email, Name: claims.Name}
}
