package tenant

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("membership not found")

// Repository is the persistence contract for tenant memberships.
//
// Tenancy invariant: every query is scoped by both user and tenant; there is
// no "list all members of all tenants" on purpose.
type Repository interface {
	// GetMembership returns the membership for (userID, tenantID), or
	// ErrNotFound. The inactive flag is returned, not filtered: the guard
	// decides what inactivity means.
	GetMembership(ctx context.Context, userID, tenantID string) (Membership, error)
}

// Creator provisions a tenant during onboarding. The tenant row and the
// founding owner membership are created as one unit.
type Creator interface {
	// CreateTenant creates a tenant named name with ownerUserID as its
	// active owner and returns the new tenant id.
	CreateTenant(ctx context.Context, name, ownerUserID string) (string, error)
}
