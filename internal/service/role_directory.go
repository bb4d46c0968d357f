package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/noah-isme/clinic-announcements-api/internal/models"
)

type userRoleRepository interface {
	RolesByIDs(ctx context.Context, ids []string) (map[string]models.UserRole, error)
}

// RoleDirectory resolves staff identities to their current role, keeping a short-lived
// per-instance LRU in front of the users table.
type RoleDirectory struct {
	repo  userRoleRepository
	cache *expirable.LRU[string, models.UserRole]
}

// NewRoleDirectory creates a directory caching up to size entries for ttl.
func NewRoleDirectory(repo userRoleRepository, size int, ttl time.Duration) *RoleDirectory {
	if size <= 0 {
		size = 1024
	}
	return &RoleDirectory{repo: repo, cache: expirable.NewLRU[string, models.UserRole](size, nil, ttl)}
}

// Resolve returns the current role for each id. Ids without a user map to RoleUnknown.
func (d *RoleDirectory) Resolve(ctx context.Context, ids []string) (map[string]models.UserRole, error) {
	resolved := make(map[string]models.UserRole, len(ids))
	missing := make([]string, 0)
	for _, id := range ids {
		if role, ok := d.cache.Get(id); ok {
			resolved[id] = role
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return resolved, nil
	}

	found, err := d.repo.RolesByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, id := range missing {
		role, ok := found[id]
		if !ok || !role.Valid() {
			// Left uncached so a newly provisioned user resolves on the next run.
			resolved[id] = models.RoleUnknown
			continue
		}
		d.cache.Add(id, role)
		resolved[id] = role
	}
	return resolved, nil
}

// Forget drops cached roles, forcing the next lookup to hit the users table.
func (d *RoleDirectory) Forget(ids ...string) {
	if len(ids) == 0 {
		d.cache.Purge()
		return
	}
	for _, id := range ids {
		d.cache.Remove(id)
	}
}
