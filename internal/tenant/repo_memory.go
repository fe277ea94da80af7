package tenant

import (
	"context"
	"sync"

	"crm-platform/internal/rbac"

	"github.com/google/uuid"
)

// MemoryRepo is a simple in-memory membership repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu      sync.Mutex
	members map[string]Membership // key: userID + "/" + tenantID
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{members: make(map[string]Membership)}
}

func (r *MemoryRepo) Put(userID string, m Membership) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[userID+"/"+m.TenantID] = m
}

func (r *MemoryRepo) CreateTenant(ctx context.Context, name, ownerUserID string) (string, error) {
	id := uuid.NewString()
	r.Put(ownerUserID, Membership{TenantID: id, Role: rbac.RoleOwner, IsActive: true})
	return id, nil
}

func (r *MemoryRepo) GetMembership(ctx context.Context, userID, tenantID string) (Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[userID+"/"+tenantID]
	if !ok {
		return Membership{}, ErrNotFound
	}
	return m, nil
}
