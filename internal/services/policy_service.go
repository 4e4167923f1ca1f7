package services

import (
	"context"
	"errors"

	"github.com/charlesng35/policyhub/internal/permissions"
)

// Audit actions recorded for policy changes.
const (
	AuditPolicyCreate = "policy.create"
	AuditPolicyUpdate = "policy.update"
	AuditPolicyDelete = "policy.delete"
)

// PolicyService manages policy documents and records every change in the audit log.
type PolicyService struct {
	manager *permissions.Manager
	audit   *AuditService
}

// NewPolicyService constructs a PolicyService.
func NewPolicyService(manager *permissions.Manager, audit *AuditService) (*PolicyService, error) {
	if manager == nil {
		return nil, errors.New("policy service: manager is required")
	}
	return &PolicyService{manager: manager, audit: audit}, nil
}

// Create stores a new policy.
func (s *PolicyService) Create(ctx context.Context, policy *permissions.Policy) (*permissions.Policy, error) {
	ctx = ensureContext(ctx)

	created, err := s.manager.CreatePolicy(ctx, policy)
	resource := ""
	if policy != nil {
		resource = policy.ID
	}
	if created != nil {
		resource = created.ID
	}
	recordAudit(s.audit, ctx, AuditPolicyCreate, resource, err, nil)
	return created, err
}

// Get loads a policy by id.
func (s *PolicyService) Get(ctx context.Context, id string) (*permissions.Policy, error) {
	return s.manager.GetPolicy(ensureContext(ctx), id)
}

// GetByName loads a policy by its display name.
func (s *PolicyService) GetByName(ctx context.Context, name string) (*permissions.Policy, error) {
	return s.manager.GetPolicyByName(ensureContext(ctx), name)
}

// List returns every policy ordered by id.
func (s *PolicyService) List(ctx context.Context) ([]*permissions.Policy, error) {
	return s.manager.ListPolicies(ensureContext(ctx))
}

// Count returns the number of stored policies.
func (s *PolicyService) Count(ctx context.Context) (int64, error) {
	return s.manager.CountPolicies(ensureContext(ctx))
}

// Update merges a partial update into the stored policy.
func (s *PolicyService) Update(ctx context.Context, id string, patch permissions.PolicyPatch) (*permissions.Policy, error) {
	ctx = ensureContext(ctx)

	updated, err := s.manager.UpdatePolicy(ctx, id, patch)
	recordAudit(s.audit, ctx, AuditPolicyUpdate, id, err, map[string]any{
		"statements_replaced": patch.Statements != nil,
	})
	return updated, err
}

// Delete removes a policy no assignment references.
func (s *PolicyService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	err := s.manager.DeletePolicy(ctx, id)
	recordAudit(s.audit, ctx, AuditPolicyDelete, id, err, nil)
	return err
}

// Users lists the users effectively holding the policy.
func (s *PolicyService) Users(ctx context.Context, id string) ([]string, error) {
	return s.manager.UsersWithPolicy(ensureContext(ctx), id)
}
