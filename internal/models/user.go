package models

import (
	"database/sql/driver"
	"sort"

	"github.com/lib/pq"
)

// UserRole represents a staff role tag.
type UserRole string

const (
	RoleAdmin         UserRole = "admin"
	RoleDoctor        UserRole = "doctor"
	RoleNurse         UserRole = "nurse"
	RolePharmacist    UserRole = "pharmacist"
	RoleReceptionist  UserRole = "receptionist"
	RoleLabTechnician UserRole = "lab_technician"

	// RoleAll is the wildcard target matching every role.
	RoleAll UserRole = "all"

	// RoleUnknown buckets receipts whose reader can no longer be resolved.
	RoleUnknown UserRole = "unknown"
)

// StaffRoles is the fixed role catalog.
var StaffRoles = []UserRole{
	RoleAdmin,
	RoleDoctor,
	RoleNurse,
	RolePharmacist,
	RoleReceptionist,
	RoleLabTechnician,
}

// Valid reports whether the role is a staff role.
func (r UserRole) Valid() bool {
	for _, candidate := range StaffRoles {
		if r == candidate {
			return true
		}
	}
	return false
}

// ValidTarget reports whether the role may appear in an announcement's target set.
func (r UserRole) ValidTarget() bool {
	return r == RoleAll || r.Valid()
}

// RoleSet is an ordered set of role tags persisted as a text[] column.
type RoleSet []UserRole

// NewRoleSet de-duplicates roles while keeping first-seen order.
func NewRoleSet(roles ...UserRole) RoleSet {
	seen := make(map[UserRole]struct{}, len(roles))
	set := make(RoleSet, 0, len(roles))
	for _, role := range roles {
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		set = append(set, role)
	}
	return set
}

// Contains reports membership without wildcard expansion.
func (s RoleSet) Contains(role UserRole) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// Strings returns the roles as plain strings.
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

// Sorted returns a sorted copy, used for stable cache keys.
func (s RoleSet) Sorted() RoleSet {
	out := append(RoleSet(nil), s...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Value implements driver.Valuer.
func (s RoleSet) Value() (driver.Value, error) {
	return pq.StringArray(s.Strings()).Value()
}

// Scan implements sql.Scanner.
func (s *RoleSet) Scan(src interface{}) error {
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return err
	}
	set := make(RoleSet, len(raw))
	for i, r := range raw {
		set[i] = UserRole(r)
	}
	*s = set
	return nil
}

// UserRoleRow maps a staff identity to its current role.
type UserRoleRow struct {
	ID   string   `db:"id"`
	Role UserRole `db:"role"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
