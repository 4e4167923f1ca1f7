package services

import (
	"context"
	"errors"

	"github.com/charlesng35/policyhub/internal/permissions"
)

// Audit actions recorded for resource permission changes.
const (
	AuditResourcePermissionCreate = "resource_permission.create"
	AuditResourcePermissionUpdate = "resource_permission.update"
	AuditResourcePermissionDelete = "resource_permission.delete"
)

// ResourcePermissionService manages flat resource grants.
type ResourcePermissionService struct {
	manager *permissions.Manager
	audit   *AuditService
}

// NewResourcePermissionService constructs a ResourcePermissionService.
func NewResourcePermissionService(manager *permissions.Manager, audit *AuditService) (*ResourcePermissionService, error) {
	if manager == nil {
		return nil, errors.New("resource permission service: manager is required")
	}
	return &ResourcePermissionService{manager: manager, audit: audit}, nil
}

// Create stores a new resource permission.
func (s *ResourcePermissionService) Create(ctx context.Context, perm *permissions.ResourcePermission) (*permissions.ResourcePermission, error) {
	ctx = ensureContext(ctx)

	created, err := s.manager.CreateResourcePermission(ctx, perm)
	resource := ""
	if perm != nil {
		resource = perm.ID
	}
	recordAudit(s.audit, ctx, AuditResourcePermissionCreate, resource, err, nil)
	return created, err
}

// Get loads a resource permission by id.
func (s *ResourcePermissionService) Get(ctx context.Context, id string) (*permissions.ResourcePermission, error) {
	return s.manager.GetResourcePermission(ensureContext(ctx), id)
}

// List returns every resource permission ordered by id.
func (s *ResourcePermissionService) List(ctx context.Context) ([]*permissions.ResourcePermission, error) {
	return s.manager.ListResourcePermissions(ensureContext(ctx))
}

// ByCategory groups resource permissions by category.
func (s *ResourcePermissionService) ByCategory(ctx context.Context) (map[string][]*permissions.ResourcePermission, error) {
	return s.manager.ResourcePermissionsByCategory(ensureContext(ctx))
}

// Update merges a partial update into the stored permission.
func (s *ResourcePermissionService) Update(ctx context.Context, id string, patch permissions.ResourcePermissionPatch) (*permissions.ResourcePermission, error) {
	ctx = ensureContext(ctx)

	updated, err := s.manager.UpdateResourcePermission(ctx, id, patch)
	recordAudit(s.audit, ctx, AuditResourcePermissionUpdate, id, err, nil)
	return updated, err
}

// Delete removes a resource permission no assignment references.
func (s *ResourcePermissionService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	err := s.manager.DeleteResourcePermission(ctx, id)
	recordAudit(s.audit, ctx, AuditResourcePermissionDelete, id, err, nil)
	return err
}
