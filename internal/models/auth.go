package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the payload of access tokens minted by the identity provider.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Role   UserRole
	Email  string
	Name   string
}

// IsAdmin reports whether the caller may use administrative routes.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
