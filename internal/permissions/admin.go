package permissions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreatePolicy validates and stores a new policy. An empty id is replaced by a
// generated one; an empty version defaults to DefaultPolicyVersion.
func (m *Manager) CreatePolicy(ctx context.Context, policy *Policy) (*Policy, error) {
	if policy == nil {
		return nil, ErrInvalidPolicy.WithMessage("policy is required")
	}
	p := policy.Clone()
	p.Normalize()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := m.validatePolicy(p); err != nil {
		return nil, err
	}

	now := m.now()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := m.store.CreatePolicy(ctx, p); err != nil {
		return nil, err
	}
	m.log.Info("policy created", zap.String("policy_id", p.ID), zap.Int("statements", len(p.Statements)))
	return p, nil
}

// GetPolicy loads a policy by id.
func (m *Manager) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	return m.store.GetPolicy(ctx, strings.TrimSpace(id))
}

// GetPolicyByName loads the first policy carrying name.
func (m *Manager) GetPolicyByName(ctx context.Context, name string) (*Policy, error) {
	return m.store.GetPolicyByName(ctx, strings.TrimSpace(name))
}

// ListPolicies returns every stored policy ordered by id.
func (m *Manager) ListPolicies(ctx context.Context) ([]*Policy, error) {
	return m.store.ListPolicies(ctx)
}

// CountPolicies returns the number of stored policies.
func (m *Manager) CountPolicies(ctx context.Context) (int64, error) {
	return m.store.CountPolicies(ctx)
}

// UpdatePolicy merges the supplied fields into the stored policy. UpdatedAt is
// refreshed even when the patch is empty.
func (m *Manager) UpdatePolicy(ctx context.Context, id string, patch PolicyPatch) (*Policy, error) {
	current, err := m.store.GetPolicy(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	updated := patch.Apply(current, m.now())
	updated.Normalize()
	if err := m.validatePolicy(updated); err != nil {
		return nil, err
	}
	if err := m.store.SavePolicy(ctx, updated); err != nil {
		return nil, err
	}
	m.log.Info("policy updated", zap.String("policy_id", updated.ID))
	return updated, nil
}

// DeletePolicy removes a policy that no assignment references.
func (m *Manager) DeletePolicy(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := m.store.DeletePolicy(ctx, id); err != nil {
		return err
	}
	m.log.Info("policy deleted", zap.String("policy_id", id))
	return nil
}

func (m *Manager) validatePolicy(p *Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for i := range p.Statements {
		if err := m.conditions.Validate(p.Statements[i].Conditions); err != nil {
			err = fmt.Errorf("statements[%d]: %w", i, err)
			return ErrInvalidPolicy.WithMessage("invalid policy %q: %v", p.ID, err).WithInternal(err)
		}
	}
	return nil
}

// CreateResourcePermission validates and stores a new resource permission.
func (m *Manager) CreateResourcePermission(ctx context.Context, perm *ResourcePermission) (*ResourcePermission, error) {
	if perm == nil {
		return nil, ErrInvalidResourcePermission.WithMessage("resource permission is required")
	}
	rp := perm.Clone()
	rp.Normalize()
	if err := rp.Validate(); err != nil {
		return nil, err
	}

	now := m.now()
	rp.CreatedAt, rp.UpdatedAt = now, now
	if err := m.store.CreateResourcePermission(ctx, rp); err != nil {
		return nil, err
	}
	m.log.Info("resource permission created", zap.String("resource_permission_id", rp.ID))
	return rp, nil
}

// GetResourcePermission loads a resource permission by id.
func (m *Manager) GetResourcePermission(ctx context.Context, id string) (*ResourcePermission, error) {
	return m.store.GetResourcePermission(ctx, strings.TrimSpace(id))
}

// ListResourcePermissions returns every resource permission ordered by id.
func (m *Manager) ListResourcePermissions(ctx context.Context) ([]*ResourcePermission, error) {
	return m.store.ListResourcePermissions(ctx)
}

// ResourcePermissionsByCategory groups resource permissions by category.
func (m *Manager) ResourcePermissionsByCategory(ctx context.Context) (map[string][]*ResourcePermission, error) {
	perms, err := m.store.ListResourcePermissions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*ResourcePermission)
	for _, perm := range perms {
		out[perm.Category] = append(out[perm.Category], perm)
	}
	return out, nil
}

// UpdateResourcePermission merges the supplied fields into the stored permission.
func (m *Manager) UpdateResourcePermission(ctx context.Context, id string, patch ResourcePermissionPatch) (*ResourcePermission, error) {
	current, err := m.store.GetResourcePermission(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	updated := patch.Apply(current, m.now())
	updated.Normalize()
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := m.store.SaveResourcePermission(ctx, updated); err != nil {
		return nil, err
	}
	m.log.Info("resource permission updated", zap.String("resource_permission_id", updated.ID))
	return updated, nil
}

// DeleteResourcePermission removes a resource permission that no assignment references.
func (m *Manager) DeleteResourcePermission(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if err := m.store.DeleteResourcePermission(ctx, id); err != nil {
		return err
	}
	m.log.Info("resource permission deleted", zap.String("resource_permission_id", id))
	return nil
}

// PolicyRef names a policy in summaries.
type PolicyRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PermissionSummary lists what a user currently holds under both models.
type PermissionSummary struct {
	UserID              string      `json:"user_id"`
	Policies            []PolicyRef `json:"policies"`
	AllowedActions      []Action    `json:"allowed_actions"`
	DeniedActions       []Action    `json:"denied_actions"`
	ResourcePermissions []string    `json:"resource_permissions"`
}

// PermissionSummary collects the user's effective policies and resource
// permissions together with the distinct actions their statements mention.
func (m *Manager) PermissionSummary(ctx context.Context, userID string) (*PermissionSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidRequest.WithMessage("user id is required")
	}

	policies, err := m.EffectivePolicies(ctx, userID)
	if err != nil {
		return nil, err
	}
	perms, err := m.EffectiveResourcePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &PermissionSummary{
		UserID:              userID,
		Policies:            make([]PolicyRef, 0, len(policies)),
		ResourcePermissions: make([]string, 0, len(perms)),
	}
	allowed := make(map[Action]struct{})
	denied := make(map[Action]struct{})
	for _, policy := range policies {
		summary.Policies = append(summary.Policies, PolicyRef{ID: policy.ID, Name: policy.Name})
		for _, stmt := range policy.Statements {
			target := allowed
			if stmt.Effect == EffectDeny {
				target = denied
			}
			for _, action := range stmt.Actions {
				target[action] = struct{}{}
			}
		}
	}
	for _, perm := range perms {
		summary.ResourcePermissions = append(summary.ResourcePermissions, perm.ID)
		for _, action := range perm.Actions {
			allowed[action] = struct{}{}
		}
	}
	sort.Slice(summary.Policies, func(i, j int) bool { return summary.Policies[i].ID < summary.Policies[j].ID })
	summary.AllowedActions = sortedActions(allowed)
	summary.DeniedActions = sortedActions(denied)
	return summary, nil
}

func sortedActions(set map[Action]struct{}) []Action {
	out := make([]Action, 0, len(set))
	for action := range set {
		out = append(out, action)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
