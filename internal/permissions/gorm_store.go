package permissions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/policyhub/internal/models"
	apperrors "github.com/charlesng35/policyhub/pkg/errors"
)

// GormStore persists both permission models through gorm. Check-then-write
// sequences run inside a transaction, and the unique index on
// policy_assignments(user_id, policy_id) backs the duplicate rule for policies.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a store backed by db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("permission store: db is required")
	}
	return &GormStore{db: db}, nil
}

var _ Store = (*GormStore)(nil)

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable(err)
	}
	return unavailable(sqlDB.PingContext(ctx))
}

func (s *GormStore) CreatePolicy(ctx context.Context, policy *Policy) error {
	row := policyToRow(policy)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Policy{}).Where("id = ?", policy.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicatePolicy.WithMessage("policy %q already exists", policy.ID)
		}
		return tx.Create(row).Error
	})
	if isUniqueViolation(err) {
		return ErrDuplicatePolicy.WithMessage("policy %q already exists", policy.ID)
	}
	return s.fail("create policy", err)
}

func (s *GormStore) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	var row models.Policy
	err := s.policyQuery(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, s.fail("load policy", err)
	}
	return rowToPolicy(&row), nil
}

func (s *GormStore) GetPolicyByName(ctx context.Context, name string) (*Policy, error) {
	var row models.Policy
	err := s.policyQuery(ctx).Where("name = ?", name).Order("id").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, s.fail("load policy by name", err)
	}
	return rowToPolicy(&row), nil
}

func (s *GormStore) ListPolicies(ctx context.Context) ([]*Policy, error) {
	var rows []models.Policy
	if err := s.policyQuery(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, s.fail("list policies", err)
	}
	out := make([]*Policy, 0, len(rows))
	for i := range rows {
		out = append(out, rowToPolicy(&rows[i]))
	}
	return out, nil
}

func (s *GormStore) CountPolicies(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Policy{}).Count(&count).Error; err != nil {
		return 0, s.fail("count policies", err)
	}
	return count, nil
}

func (s *GormStore) SavePolicy(ctx context.Context, policy *Policy) error {
	row := policyToRow(policy)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Policy{}).Where("id = ?", policy.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrPolicyNotFound
		}

		updates := map[string]any{
			"name":        row.Name,
			"description": row.Description,
			"version":     row.Version,
			"updated_at":  row.UpdatedAt,
		}
		if err := tx.Model(&models.Policy{ID: row.ID}).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Where("policy_id = ?", row.ID).Delete(&models.PolicyStatement{}).Error; err != nil {
			return err
		}
		if len(row.Statements) == 0 {
			return nil
		}
		return tx.Create(&row.Statements).Error
	})
	return s.fail("save policy", err)
}

func (s *GormStore) DeletePolicy(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Policy{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrPolicyNotFound
		}
		if err := tx.Model(&models.PolicyAssignment{}).Where("policy_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrPolicyInUse.WithMessage("policy %q is assigned to %d user(s)", id, count)
		}
		if err := tx.Where("policy_id = ?", id).Delete(&models.PolicyStatement{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Policy{}).Error
	})
	if isForeignKeyViolation(err) {
		return ErrPolicyInUse
	}
	return s.fail("delete policy", err)
}

func (s *GormStore) ListPolicyAssignments(ctx context.Context, filter AssignmentFilter) ([]*PolicyAssignment, error) {
	var rows []models.PolicyAssignment
	query := applyFilter(s.db.WithContext(ctx), filter, "policy_id")
	if err := query.Order("assigned_at").Order("id").Find(&rows).Error; err != nil {
		return nil, s.fail("list policy assignments", err)
	}
	out := make([]*PolicyAssignment, 0, len(rows))
	for i := range rows {
		out = append(out, rowToPolicyAssignment(&rows[i]))
	}
	return out, nil
}

func (s *GormStore) InsertPolicyAssignment(ctx context.Context, assignment *PolicyAssignment, now time.Time) error {
	row := policyAssignmentToRow(assignment)
	now = now.UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Policy{}).Where("id = ?", assignment.PolicyID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrPolicyNotFound
		}

		var existing []models.PolicyAssignment
		if err := tx.Where("user_id = ? AND policy_id = ?", assignment.UserID, assignment.PolicyID).Find(&existing).Error; err != nil {
			return err
		}
		for i := range existing {
			if rowToPolicyAssignment(&existing[i]).Effective(now) {
				return ErrDuplicateAssignment
			}
		}
		if len(existing) > 0 {
			if err := tx.Where("user_id = ? AND policy_id = ?", assignment.UserID, assignment.PolicyID).Delete(&models.PolicyAssignment{}).Error; err != nil {
				return err
			}
		}
		return tx.Create(row).Error
	})
	if isUniqueViolation(err) {
		return ErrDuplicateAssignment
	}
	if err != nil {
		return s.fail("insert policy assignment", err)
	}
	assignment.ID = row.ID
	assignment.CreatedAt = row.CreatedAt
	assignment.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *GormStore) UpdatePolicyAssignment(ctx context.Context, assignment *PolicyAssignment) error {
	result := s.db.WithContext(ctx).Model(&models.PolicyAssignment{}).
		Where("user_id = ? AND policy_id = ?", assignment.UserID, assignment.PolicyID).
		Updates(mutableColumns(&assignment.Assignment))
	if result.Error != nil {
		return s.fail("update policy assignment", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

func (s *GormStore) DeletePolicyAssignment(ctx context.Context, userID, policyID string) error {
	result := s.db.WithContext(ctx).Where("user_id = ? AND policy_id = ?", userID, policyID).Delete(&models.PolicyAssignment{})
	if result.Error != nil {
		return s.fail("delete policy assignment", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

func (s *GormStore) ExpirePolicyAssignments(ctx context.Context, now time.Time) (int64, error) {
	return s.expire(ctx, &models.PolicyAssignment{}, now)
}

func (s *GormStore) CreateResourcePermission(ctx context.Context, perm *ResourcePermission) error {
	row := resourcePermissionToRow(perm)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ResourcePermission{}).Where("id = ?", perm.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateResourcePermission.WithMessage("resource permission %q already exists", perm.ID)
		}
		return tx.Create(row).Error
	})
	if isUniqueViolation(err) {
		return ErrDuplicateResourcePermission.WithMessage("resource permission %q already exists", perm.ID)
	}
	return s.fail("create resource permission", err)
}

func (s *GormStore) GetResourcePermission(ctx context.Context, id string) (*ResourcePermission, error) {
	var row models.ResourcePermission
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResourcePermissionNotFound
	}
	if err != nil {
		return nil, s.fail("load resource permission", err)
	}
	return rowToResourcePermission(&row), nil
}

func (s *GormStore) ListResourcePermissions(ctx context.Context) ([]*ResourcePermission, error) {
	var rows []models.ResourcePermission
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, s.fail("list resource permissions", err)
	}
	out := make([]*ResourcePermission, 0, len(rows))
	for i := range rows {
		out = append(out, rowToResourcePermission(&rows[i]))
	}
	return out, nil
}

func (s *GormStore) SaveResourcePermission(ctx context.Context, perm *ResourcePermission) error {
	row := resourcePermissionToRow(perm)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ResourcePermission{}).Where("id = ?", perm.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrResourcePermissionNotFound
		}
		updates := map[string]any{
			"resource":    row.Resource,
			"actions":     row.Actions,
			"description": row.Description,
			"category":    row.Category,
			"updated_at":  row.UpdatedAt,
		}
		return tx.Model(&models.ResourcePermission{ID: row.ID}).Updates(updates).Error
	})
	return s.fail("save resource permission", err)
}

func (s *GormStore) DeleteResourcePermission(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ResourcePermission{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrResourcePermissionNotFound
		}
		if err := tx.Model(&models.UserResourceAssignment{}).Where("resource_permission_id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrResourcePermissionInUse.WithMessage("resource permission %q is referenced by %d assignment(s)", id, count)
		}
		return tx.Where("id = ?", id).Delete(&models.ResourcePermission{}).Error
	})
	if isForeignKeyViolation(err) {
		return ErrResourcePermissionInUse
	}
	return s.fail("delete resource permission", err)
}

func (s *GormStore) ListResourceAssignments(ctx context.Context, filter AssignmentFilter) ([]*ResourceAssignment, error) {
	var rows []models.UserResourceAssignment
	query := applyFilter(s.db.WithContext(ctx), filter, "resource_permission_id")
	if err := query.Order("assigned_at").Order("id").Find(&rows).Error; err != nil {
		return nil, s.fail("list resource assignments", err)
	}
	out := make([]*ResourceAssignment, 0, len(rows))
	for i := range rows {
		out = append(out, rowToResourceAssignment(&rows[i]))
	}
	return out, nil
}

func (s *GormStore) InsertResourceAssignment(ctx context.Context, assignment *ResourceAssignment, now time.Time) error {
	row := resourceAssignmentToRow(assignment)
	now = now.UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ResourcePermission{}).Where("id = ?", assignment.ResourcePermissionID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrResourcePermissionNotFound
		}

		var active []models.UserResourceAssignment
		if err := tx.Where("user_id = ? AND resource_permission_id = ? AND active = ?", assignment.UserID, assignment.ResourcePermissionID, true).
			Find(&active).Error; err != nil {
			return err
		}
		var stale []string
		for i := range active {
			if rowToResourceAssignment(&active[i]).Effective(now) {
				return ErrDuplicateAssignment
			}
			stale = append(stale, active[i].ID)
		}
		if len(stale) > 0 {
			if err := tx.Model(&models.UserResourceAssignment{}).Where("id IN ?", stale).
				Updates(map[string]any{"active": false, "updated_at": now}).Error; err != nil {
				return err
			}
		}
		return tx.Create(row).Error
	})
	if err != nil {
		return s.fail("insert resource assignment", err)
	}
	assignment.ID = row.ID
	assignment.CreatedAt = row.CreatedAt
	assignment.UpdatedAt = row.UpdatedAt
	return nil
}

func (s *GormStore) UpdateResourceAssignment(ctx context.Context, assignment *ResourceAssignment) error {
	result := s.db.WithContext(ctx).Model(&models.UserResourceAssignment{}).
		Where("id = ?", assignment.ID).
		Updates(mutableColumns(&assignment.Assignment))
	if result.Error != nil {
		return s.fail("update resource assignment", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

func (s *GormStore) DeactivateResourceAssignment(ctx context.Context, userID, permissionID string, now time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.UserResourceAssignment{}).
		Where("user_id = ? AND resource_permission_id = ? AND active = ?", userID, permissionID, true).
		Updates(map[string]any{"active": false, "updated_at": now.UTC()})
	if result.Error != nil {
		return s.fail("deactivate resource assignment", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

func (s *GormStore) ExpireResourceAssignments(ctx context.Context, now time.Time) (int64, error) {
	return s.expire(ctx, &models.UserResourceAssignment{}, now)
}

func (s *GormStore) expire(ctx context.Context, model any, now time.Time) (int64, error) {
	now = now.UTC()
	result := s.db.WithContext(ctx).Model(model).
		Where("active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, now).
		Updates(map[string]any{"active": false, "updated_at": now})
	if result.Error != nil {
		return 0, s.fail("expire assignments", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormStore) policyQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Statements", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
}

// fail passes domain errors through and wraps everything else as
// ErrStoreUnavailable.
func (s *GormStore) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return unavailable(fmt.Errorf("permission store: %s: %w", op, err))
}

// mutableColumns lists the assignment columns an update may touch. The map form
// makes gorm write zero values such as active=false or a cleared expiry.
func mutableColumns(a *Assignment) map[string]any {
	return map[string]any{
		"expires_at": utcPtr(a.ExpiresAt),
		"notes":      a.Notes,
		"active":     a.Active,
		"updated_at": a.UpdatedAt.UTC(),
	}
}

func applyFilter(db *gorm.DB, filter AssignmentFilter, targetColumn string) *gorm.DB {
	if filter.UserID != "" {
		db = db.Where("user_id = ?", filter.UserID)
	}
	if filter.TargetID != "" {
		db = db.Where(targetColumn+" = ?", filter.TargetID)
	}
	if filter.ActiveOnly {
		db = db.Where("active = ?", true)
	}
	return db
}

func policyToRow(p *Policy) *models.Policy {
	row := &models.Policy{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
	for i, stmt := range p.Statements {
		row.Statements = append(row.Statements, models.PolicyStatement{
			PolicyID:   p.ID,
			Position:   i,
			Sid:        stmt.Sid,
			Effect:     string(stmt.Effect),
			Actions:    datatypes.JSONSlice[string](actionStrings(stmt.Actions)),
			Resources:  datatypes.JSONSlice[string](append([]string{}, stmt.Resources...)),
			Conditions: datatypes.JSONMap(stmt.Conditions),
		})
	}
	return row
}

func rowToPolicy(row *models.Policy) *Policy {
	p := &Policy{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Version:     row.Version,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
		Statements:  make([]Statement, 0, len(row.Statements)),
	}
	for _, stmt := range row.Statements {
		var conditions map[string]any
		if len(stmt.Conditions) > 0 {
			conditions = map[string]any(stmt.Conditions)
		}
		p.Statements = append(p.Statements, Statement{
			Sid:        stmt.Sid,
			Effect:     Effect(stmt.Effect),
			Actions:    toActions(stmt.Actions),
			Resources:  append([]string(nil), stmt.Resources...),
			Conditions: conditions,
		})
	}
	return p
}

func policyAssignmentToRow(a *PolicyAssignment) *models.PolicyAssignment {
	return &models.PolicyAssignment{
		BaseModel:  models.BaseModel{ID: a.ID},
		UserID:     a.UserID,
		PolicyID:   a.PolicyID,
		AssignedAt: a.AssignedAt.UTC(),
		AssignedBy: a.AssignedBy,
		ExpiresAt:  utcPtr(a.ExpiresAt),
		Notes:      a.Notes,
		Active:     a.Active,
	}
}

func rowToPolicyAssignment(row *models.PolicyAssignment) *PolicyAssignment {
	return &PolicyAssignment{
		Assignment: rowAssignment(row.BaseModel, row.UserID, row.AssignedAt, row.AssignedBy, row.ExpiresAt, row.Notes, row.Active),
		PolicyID:   row.PolicyID,
	}
}

func resourcePermissionToRow(rp *ResourcePermission) *models.ResourcePermission {
	return &models.ResourcePermission{
		ID:          rp.ID,
		Resource:    rp.Resource,
		Actions:     datatypes.JSONSlice[string](actionStrings(rp.Actions)),
		Description: rp.Description,
		Category:    rp.Category,
		CreatedAt:   rp.CreatedAt.UTC(),
		UpdatedAt:   rp.UpdatedAt.UTC(),
	}
}

func rowToResourcePermission(row *models.ResourcePermission) *ResourcePermission {
	return &ResourcePermission{
		ID:          row.ID,
		Resource:    row.Resource,
		Actions:     toActions(row.Actions),
		Description: row.Description,
		Category:    row.Category,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

func resourceAssignmentToRow(a *ResourceAssignment) *models.UserResourceAssignment {
	return &models.UserResourceAssignment{
		BaseModel:            models.BaseModel{ID: a.ID},
		UserID:               a.UserID,
		ResourcePermissionID: a.ResourcePermissionID,
		AssignedAt:           a.AssignedAt.UTC(),
		AssignedBy:           a.AssignedBy,
		ExpiresAt:            utcPtr(a.ExpiresAt),
		Notes:                a.Notes,
		Active:               a.Active,
	}
}

func rowToResourceAssignment(row *models.UserResourceAssignment) *ResourceAssignment {
	return &ResourceAssignment{
		Assignment:           rowAssignment(row.BaseModel, row.UserID, row.AssignedAt, row.AssignedBy, row.ExpiresAt, row.Notes, row.Active),
		ResourcePermissionID: row.ResourcePermissionID,
	}
}

func rowAssignment(base models.BaseModel, userID string, assignedAt time.Time, assignedBy string, expiresAt *time.Time, notes string, active bool) Assignment {
	return Assignment{
		ID:         base.ID,
		UserID:     userID,
		AssignedAt: assignedAt.UTC(),
		AssignedBy: assignedBy,
		ExpiresAt:  utcPtr(expiresAt),
		Notes:      notes,
		Active:     active,
		CreatedAt:  base.CreatedAt.UTC(),
		UpdatedAt:  base.UpdatedAt.UTC(),
	}
}

func actionStrings(actions []Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}

func toActions(values []string) []Action {
	out := make([]Action, len(values))
	for i, v := range values {
		out[i] = Action(v)
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
