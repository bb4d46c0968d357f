package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the JWT payload for access tokens issued by the identity provider.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Caller is the already-authenticated identity behind a single operation.
type Caller struct {
	ID               string
	Role             UserRole
	IsPublisher      bool
	PublishableRoles RoleSet
}

// CanTarget reports whether the caller may publish to every role in targets.
func (c Caller) CanTarget(targets RoleSet) bool {
	if !c.IsPublisher {
		return false
	}
	if c.PublishableRoles.Contains(RoleAll) {
		return true
	}
	for _, target := range targets {
		if !c.PublishableRoles.Contains(target) {
			return false
		}
	}
	return true
}
