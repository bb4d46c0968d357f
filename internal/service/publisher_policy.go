package service

import (
	"sort"
	"strings"

	"github.com/noah-isme/clinic-announcements-api/internal/models"
)

// PublisherPolicy decides which roles may publish and which audiences they may target.
type PublisherPolicy struct {
	targets map[models.UserRole]models.RoleSet
}

// NewPublisherPolicy builds a policy from a role -> targets map. Unknown roles and targets are ignored.
func NewPublisherPolicy(raw map[string][]string) *PublisherPolicy {
	targets := make(map[models.UserRole]models.RoleSet, len(raw))
	for role, allowed := range raw {
		publisher := models.UserRole(strings.ToLower(role))
		if !publisher.Valid() {
			continue
		}
		set := make([]models.UserRole, 0, len(allowed))
		for _, target := range allowed {
			r := models.UserRole(strings.ToLower(target))
			if r.ValidTarget() {
				set = append(set, r)
			}
		}
		if len(set) > 0 {
			targets[publisher] = models.NewRoleSet(set...)
		}
	}
	return &PublisherPolicy{targets: targets}
}

// IsPublisher reports whether the role may publish at all.
func (p *PublisherPolicy) IsPublisher(role models.UserRole) bool {
	if p == nil {
		return false
	}
	_, ok := p.targets[role]
	return ok
}

// Roles lists publisher roles in a stable order.
func (p *PublisherPolicy) Roles() []models.UserRole {
	if p == nil {
		return nil
	}
	roles := make([]models.UserRole, 0, len(p.targets))
	for role := range p.targets {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Caller turns authenticated claims into the identity handed to the announcement services.
func (p *PublisherPolicy) Caller(claims *models.JWTClaims) models.Caller {
	if claims == nil {
		return models.Caller{}
	}
	caller := models.Caller{ID: claims.UserID, Role: claims.Role}
	if p == nil {
		return caller
	}
	if targets, ok := p.targets[claims.Role]; ok {
		caller.IsPublisher = true
		caller.PublishableRoles = append(models.RoleSet(nil), targets...)
	}
	return caller
}
