package models

// UserRole is the role carried in identity provider tokens.
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleRenter UserRole = "RENTER"
)

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
