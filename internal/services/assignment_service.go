package services

import (
	"context"
	"errors"
	"time"

	"github.com/charlesng35/policyhub/internal/permissions"
)

// Audit actions recorded for assignment changes.
const (
	AuditPolicyAssign                    = "policy.assign"
	AuditPolicyUnassign                  = "policy.unassign"
	AuditPolicyAssignmentUpdate          = "policy.assignment.update"
	AuditPolicyRoleSetAssign             = "policy.role_set.assign"
	AuditResourcePermissionAssign        = "resource_permission.assign"
	AuditResourcePermissionUnassign      = "resource_permission.unassign"
	AuditResourcePermissionAssignUpdate  = "resource_permission.assignment.update"
	AuditResourcePermissionRoleSetAssign = "resource_permission.role_set.assign"
	AuditAssignmentsSweep                = "assignments.sweep"
	AuditPermissionsSeed                 = "permissions.seed"
)

// AssignmentService drives the assignment lifecycle for both permission models.
type AssignmentService struct {
	manager *permissions.Manager
	audit   *AuditService
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(manager *permissions.Manager, audit *AuditService) (*AssignmentService, error) {
	if manager == nil {
		return nil, errors.New("assignment service: manager is required")
	}
	return &AssignmentService{manager: manager, audit: audit}, nil
}

// AssignPolicy grants a policy to a user. An empty AssignedBy is filled with
// the request's actor.
func (s *AssignmentService) AssignPolicy(ctx context.Context, in permissions.AssignInput) (*permissions.PolicyAssignment, error) {
	ctx = ensureContext(ctx)
	if in.AssignedBy == "" {
		in.AssignedBy = actorID(ctx)
	}

	assignment, err := s.manager.AssignPolicy(ctx, in)
	recordAudit(s.audit, ctx, AuditPolicyAssign, in.TargetID, err, assignmentMetadata(in.UserID, in.ExpiresAt))
	return assignment, err
}

// UnassignPolicy removes a user's policy assignment.
func (s *AssignmentService) UnassignPolicy(ctx context.Context, userID, policyID string) error {
	ctx = ensureContext(ctx)

	err := s.manager.UnassignPolicy(ctx, userID, policyID)
	recordAudit(s.audit, ctx, AuditPolicyUnassign, policyID, err, assignmentMetadata(userID, nil))
	return err
}

// UpdatePolicyAssignment changes the expiry or notes of an effective policy assignment.
func (s *AssignmentService) UpdatePolicyAssignment(ctx context.Context, userID, policyID string, patch permissions.AssignmentPatch) (*permissions.PolicyAssignment, error) {
	ctx = ensureContext(ctx)

	assignment, err := s.manager.UpdatePolicyAssignment(ctx, userID, policyID, patch)
	recordAudit(s.audit, ctx, AuditPolicyAssignmentUpdate, policyID, err, assignmentMetadata(userID, patch.ExpiresAt))
	return assignment, err
}

// AssignPolicyRoleSet assigns the predefined policy set for a role.
func (s *AssignmentService) AssignPolicyRoleSet(ctx context.Context, userID, role string) (*permissions.RoleSetResult, error) {
	ctx = ensureContext(ctx)

	result, err := s.manager.AssignRoleSet(ctx, userID, role, actorID(ctx))
	meta := assignmentMetadata(userID, nil)
	if result != nil {
		meta["assigned"] = result.Assigned
		meta["skipped"] = result.Skipped
	}
	recordAudit(s.audit, ctx, AuditPolicyRoleSetAssign, permissions.ResolveRole(role), err, meta)
	return result, err
}

// AssignResourcePermission grants a resource permission to a user.
func (s *AssignmentService) AssignResourcePermission(ctx context.Context, in permissions.AssignInput) (*permissions.ResourceAssignment, error) {
	ctx = ensureContext(ctx)
	if in.AssignedBy == "" {
		in.AssignedBy = actorID(ctx)
	}

	assignment, err := s.manager.AssignResourcePermission(ctx, in)
	recordAudit(s.audit, ctx, AuditResourcePermissionAssign, in.TargetID, err, assignmentMetadata(in.UserID, in.ExpiresAt))
	return assignment, err
}

// UnassignResourcePermission deactivates a user's resource assignment.
func (s *AssignmentService) UnassignResourcePermission(ctx context.Context, userID, permissionID string) error {
	ctx = ensureContext(ctx)

	err := s.manager.UnassignResourcePermission(ctx, userID, permissionID)
	recordAudit(s.audit, ctx, AuditResourcePermissionUnassign, permissionID, err, assignmentMetadata(userID, nil))
	return err
}

// UpdateResourceAssignment changes the expiry or notes of an effective resource assignment.
func (s *AssignmentService) UpdateResourceAssignment(ctx context.Context, userID, permissionID string, patch permissions.AssignmentPatch) (*permissions.ResourceAssignment, error) {
	ctx = ensureContext(ctx)

	assignment, err := s.manager.UpdateResourceAssignment(ctx, userID, permissionID, patch)
	recordAudit(s.audit, ctx, AuditResourcePermissionAssignUpdate, permissionID, err, assignmentMetadata(userID, patch.ExpiresAt))
	return assignment, err
}

// AssignResourceRoleSet assigns the predefined resource permission set for a role.
func (s *AssignmentService) AssignResourceRoleSet(ctx context.Context, userID, role string) (*permissions.RoleSetResult, error) {
	ctx = ensureContext(ctx)

	result, err := s.manager.AssignResourceRoleSet(ctx, userID, role, actorID(ctx))
	meta := assignmentMetadata(userID, nil)
	if result != nil {
		meta["assigned"] = result.Assigned
		meta["skipped"] = result.Skipped
	}
	recordAudit(s.audit, ctx, AuditResourcePermissionRoleSetAssign, permissions.ResolveRole(role), err, meta)
	return result, err
}

// PolicyAssignments lists policy assignments filtered by user or policy.
func (s *AssignmentService) PolicyAssignments(ctx context.Context, userID, policyID string, view permissions.View) ([]*permissions.PolicyAssignment, error) {
	ctx = ensureContext(ctx)
	switch {
	case userID != "":
		rows, err := s.manager.PolicyAssignmentsForUser(ctx, userID, view)
		if err != nil || policyID == "" {
			return rows, err
		}
		out := rows[:0]
		for _, a := range rows {
			if a.PolicyID == policyID {
				out = append(out, a)
			}
		}
		return out, nil
	case policyID != "":
		return s.manager.PolicyAssignmentsForPolicy(ctx, policyID, view)
	default:
		return s.manager.AllPolicyAssignments(ctx, view)
	}
}

// ResourceAssignments lists resource assignments filtered by user or permission.
func (s *AssignmentService) ResourceAssignments(ctx context.Context, userID, permissionID string, view permissions.View) ([]*permissions.ResourceAssignment, error) {
	ctx = ensureContext(ctx)
	switch {
	case userID != "":
		rows, err := s.manager.ResourceAssignmentsForUser(ctx, userID, view)
		if err != nil || permissionID == "" {
			return rows, err
		}
		out := rows[:0]
		for _, a := range rows {
			if a.ResourcePermissionID == permissionID {
				out = append(out, a)
			}
		}
		return out, nil
	case permissionID != "":
		return s.manager.ResourceAssignmentsForPermission(ctx, permissionID, view)
	default:
		return s.manager.AllResourceAssignments(ctx, view)
	}
}

// EffectivePolicies resolves the policies a user currently holds.
func (s *AssignmentService) EffectivePolicies(ctx context.Context, userID string) ([]*permissions.Policy, error) {
	return s.manager.EffectivePolicies(ensureContext(ctx), userID)
}

// EffectiveResourcePermissions resolves the resource permissions a user currently holds.
func (s *AssignmentService) EffectiveResourcePermissions(ctx context.Context, userID string) ([]*permissions.ResourcePermission, error) {
	return s.manager.EffectiveResourcePermissions(ensureContext(ctx), userID)
}

// Summary collects the user's effective grants.
func (s *AssignmentService) Summary(ctx context.Context, userID string) (*permissions.PermissionSummary, error) {
	return s.manager.PermissionSummary(ensureContext(ctx), userID)
}

// SweepExpired deactivates expired assignments in both models. Only sweeps
// that changed something are audited.
func (s *AssignmentService) SweepExpired(ctx context.Context) (permissions.SweepResult, error) {
	ctx = ensureContext(ctx)

	result, err := s.manager.SweepExpired(ctx)
	if err != nil || result.Total() > 0 {
		recordAudit(s.audit, ctx, AuditAssignmentsSweep, "assignments", err, map[string]any{
			"policy_assignments":   result.PolicyAssignments,
			"resource_assignments": result.ResourceAssignments,
		})
	}
	return result, err
}

// Seed installs the predefined policies and resource permissions that are missing.
func (s *AssignmentService) Seed(ctx context.Context) (permissions.SeedResult, error) {
	ctx = ensureContext(ctx)

	result, err := s.manager.Seed(ctx)
	recordAudit(s.audit, ctx, AuditPermissionsSeed, "permissions", err, map[string]any{
		"policies":             result.Policies,
		"resource_permissions": result.ResourcePermissions,
	})
	return result, err
}

func assignmentMetadata(userID string, expiresAt *time.Time) map[string]any {
	meta := map[string]any{"user_id": userID}
	if expiresAt != nil {
		meta["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
	}
	return meta
}
