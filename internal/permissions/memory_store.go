package permissions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the reference Store. Every method holds a single mutex so
// check-then-write sequences are atomic. Values are cloned on the way in and
// out.
type MemoryStore struct {
	mu sync.RWMutex

	policies            map[string]*Policy
	policyAssignments   []*PolicyAssignment
	resourcePermissions map[string]*ResourcePermission
	resourceAssignments []*ResourceAssignment
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies:            make(map[string]*Policy),
		resourcePermissions: make(map[string]*ResourcePermission),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) CreatePolicy(ctx context.Context, policy *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.policies[policy.ID]; exists {
		return ErrDuplicatePolicy.WithMessage("policy %q already exists", policy.ID)
	}
	s.policies[policy.ID] = policy.Clone()
	return nil
}

func (s *MemoryStore) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[id]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return policy.Clone(), nil
}

func (s *MemoryStore) GetPolicyByName(ctx context.Context, name string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, policy := range s.sortedPolicies() {
		if policy.Name == name {
			return policy.Clone(), nil
		}
	}
	return nil, ErrPolicyNotFound
}

func (s *MemoryStore) ListPolicies(ctx context.Context) ([]*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedPolicies()
	out := make([]*Policy, 0, len(sorted))
	for _, policy := range sorted {
		out = append(out, policy.Clone())
	}
	return out, nil
}

func (s *MemoryStore) CountPolicies(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.policies)), nil
}

func (s *MemoryStore) SavePolicy(ctx context.Context, policy *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.policies[policy.ID]; !exists {
		return ErrPolicyNotFound
	}
	s.policies[policy.ID] = policy.Clone()
	return nil
}

func (s *MemoryStore) DeletePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.policies[id]; !exists {
		return ErrPolicyNotFound
	}
	for _, a := range s.policyAssignments {
		if a.PolicyID == id {
			return ErrPolicyInUse
		}
	}
	delete(s.policies, id)
	return nil
}

func (s *MemoryStore) ListPolicyAssignments(ctx context.Context, filter AssignmentFilter) ([]*PolicyAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*PolicyAssignment
	for _, a := range s.policyAssignments {
		if !filterMatches(filter, a.UserID, a.PolicyID, &a.Assignment) {
			continue
		}
		out = append(out, clonePolicyAssignment(a))
	}
	return out, nil
}

func (s *MemoryStore) InsertPolicyAssignment(ctx context.Context, assignment *PolicyAssignment, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.policies[assignment.PolicyID]; !exists {
		return ErrPolicyNotFound
	}

	kept := s.policyAssignments[:0:0]
	for _, a := range s.policyAssignments {
		if a.UserID == assignment.UserID && a.PolicyID == assignment.PolicyID {
			if a.Effective(now) {
				return ErrDuplicateAssignment
			}
			continue
		}
		kept = append(kept, a)
	}

	stored := clonePolicyAssignment(assignment)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	s.policyAssignments = append(kept, stored)
	assignment.ID = stored.ID
	return nil
}

func (s *MemoryStore) UpdatePolicyAssignment(ctx context.Context, assignment *PolicyAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.policyAssignments {
		if a.UserID == assignment.UserID && a.PolicyID == assignment.PolicyID {
			applyMutable(&a.Assignment, &assignment.Assignment)
			return nil
		}
	}
	return ErrAssignmentNotFound
}

func (s *MemoryStore) DeletePolicyAssignment(ctx context.Context, userID, policyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.policyAssignments {
		if a.UserID == userID && a.PolicyID == policyID {
			s.policyAssignments = append(s.policyAssignments[:i], s.policyAssignments[i+1:]...)
			return nil
		}
	}
	return ErrAssignmentNotFound
}

func (s *MemoryStore) ExpirePolicyAssignments(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, a := range s.policyAssignments {
		if expireAssignment(&a.Assignment, now) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateResourcePermission(ctx context.Context, perm *ResourcePermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.resourcePermissions[perm.ID]; exists {
		return ErrDuplicateResourcePermission.WithMessage("resource permission %q already exists", perm.ID)
	}
	s.resourcePermissions[perm.ID] = perm.Clone()
	return nil
}

func (s *MemoryStore) GetResourcePermission(ctx context.Context, id string) (*ResourcePermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perm, ok := s.resourcePermissions[id]
	if !ok {
		return nil, ErrResourcePermissionNotFound
	}
	return perm.Clone(), nil
}

func (s *MemoryStore) ListResourcePermissions(ctx context.Context) ([]*ResourcePermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ResourcePermission, 0, len(s.resourcePermissions))
	for _, perm := range s.resourcePermissions {
		out = append(out, perm.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SaveResourcePermission(ctx context.Context, perm *ResourcePermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.resourcePermissions[perm.ID]; !exists {
		return ErrResourcePermissionNotFound
	}
	s.resourcePermissions[perm.ID] = perm.Clone()
	return nil
}

func (s *MemoryStore) DeleteResourcePermission(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.resourcePermissions[id]; !exists {
		return ErrResourcePermissionNotFound
	}
	for _, a := range s.resourceAssignments {
		if a.ResourcePermissionID == id {
			return ErrResourcePermissionInUse
		}
	}
	delete(s.resourcePermissions, id)
	return nil
}

func (s *MemoryStore) ListResourceAssignments(ctx context.Context, filter AssignmentFilter) ([]*ResourceAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ResourceAssignment
	for _, a := range s.resourceAssignments {
		if !filterMatches(filter, a.UserID, a.ResourcePermissionID, &a.Assignment) {
			continue
		}
		out = append(out, cloneResourceAssignment(a))
	}
	return out, nil
}

func (s *MemoryStore) InsertResourceAssignment(ctx context.Context, assignment *ResourceAssignment, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.resourcePermissions[assignment.ResourcePermissionID]; !exists {
		return ErrResourcePermissionNotFound
	}

	var stale []*ResourceAssignment
	for _, a := range s.resourceAssignments {
		if a.UserID != assignment.UserID || a.ResourcePermissionID != assignment.ResourcePermissionID || !a.Active {
			continue
		}
		if a.Effective(now) {
			return ErrDuplicateAssignment
		}
		stale = append(stale, a)
	}
	for _, a := range stale {
		a.Active = false
		a.UpdatedAt = now
	}

	stored := cloneResourceAssignment(assignment)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	s.resourceAssignments = append(s.resourceAssignments, stored)
	assignment.ID = stored.ID
	return nil
}

func (s *MemoryStore) UpdateResourceAssignment(ctx context.Context, assignment *ResourceAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.resourceAssignments {
		if a.ID == assignment.ID {
			applyMutable(&a.Assignment, &assignment.Assignment)
			return nil
		}
	}
	return ErrAssignmentNotFound
}

func (s *MemoryStore) DeactivateResourceAssignment(ctx context.Context, userID, permissionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, a := range s.resourceAssignments {
		if a.UserID == userID && a.ResourcePermissionID == permissionID && a.Active {
			a.Active = false
			a.UpdatedAt = now
			found = true
		}
	}
	if !found {
		return ErrAssignmentNotFound
	}
	return nil
}

func (s *MemoryStore) ExpireResourceAssignments(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, a := range s.resourceAssignments {
		if expireAssignment(&a.Assignment, now) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) sortedPolicies() []*Policy {
	out := make([]*Policy, 0, len(s.policies))
	for _, policy := range s.policies {
		out = append(out, policy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func filterMatches(filter AssignmentFilter, userID, targetID string, a *Assignment) bool {
	if filter.UserID != "" && filter.UserID != userID {
		return false
	}
	if filter.TargetID != "" && filter.TargetID != targetID {
		return false
	}
	if filter.ActiveOnly && !a.Active {
		return false
	}
	return true
}

func applyMutable(dst, src *Assignment) {
	cp := src.Clone()
	dst.ExpiresAt = cp.ExpiresAt
	dst.Notes = cp.Notes
	dst.Active = cp.Active
	dst.UpdatedAt = cp.UpdatedAt
}

func expireAssignment(a *Assignment, now time.Time) bool {
	if !a.Active || !a.Expired(now) {
		return false
	}
	a.Active = false
	a.UpdatedAt = now
	return true
}

func clonePolicyAssignment(a *PolicyAssignment) *PolicyAssignment {
	cp := *a
	cp.Assignment = *a.Assignment.Clone()
	return &cp
}

func cloneResourceAssignment(a *ResourceAssignment) *ResourceAssignment {
	cp := *a
	cp.Assignment = *a.Assignment.Clone()
	return &cp
}
