package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the roles allowed on administrative routes.
type UserRole string

const (
	RoleAdmin UserRole = "ADMIN"
	RoleStaff UserRole = "STAFF"
)

// JWTClaims are carried by administrative access tokens. Every admin action is
// confined to TenantID.
type JWTClaims struct {
	UserID   string   `json:"uid"`
	TenantID string   `json:"tid"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}

// ScopeClaims are carried by kiosk scope tokens and bind a PIN check to one
// tenant and seat layout.
type ScopeClaims struct {
	TenantID string `json:"tid"`
	LayoutID string `json:"lid"`
	jwt.RegisteredClaims
}

// Scope is the resolved context of a scope token.
type Scope struct {
	TenantID string `json:"tenant_id"`
	LayoutID string `json:"layout_id"`
}
