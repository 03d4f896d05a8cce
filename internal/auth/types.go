package auth

import "errors"

// Role is the authorisation tier carried in a token.
type Role string

const (
	// RoleAdmin may read and change everything. Issued on password login.
	RoleAdmin Role = "admin"

	// RoleService is for tokens minted for other processes on the hub,
	// such as automations calling the API.
	RoleService Role = "service"
)

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleService
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrInvalidHash        = errors.New("invalid password hash")
	ErrNotConfigured      = errors.New("auth not configured")
)
