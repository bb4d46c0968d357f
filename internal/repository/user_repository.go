package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/clinic-announcements-api/internal/models"
)

// UserRepository reads staff identities owned by the surrounding records application.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// RolesByIDs returns the current role of each known user. Unknown and non-uuid ids are
// simply absent.
func (r *UserRepository) RolesByIDs(ctx context.Context, ids []string) (map[string]models.UserRole, error) {
	roles := make(map[string]models.UserRole, len(ids))
	requested := make(map[string]string, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		if _, seen := requested[parsed.String()]; !seen {
			keys = append(keys, parsed.String())
		}
		requested[parsed.String()] = id
	}
	if len(keys) == 0 {
		return roles, nil
	}
	rows := []models.UserRoleRow{}
	if err := r.db.SelectContext(ctx, &rows, "SELECT id::text AS id, role FROM users WHERE id = ANY($1::uuid[])", pq.Array(keys)); err != nil {
		return nil, fmt.Errorf("lookup user roles: %w", err)
	}
	for _, row := range rows {
		if id, ok := requested[row.ID]; ok {
			roles[id] = row.Role
		}
	}
	return roles, nil
}
