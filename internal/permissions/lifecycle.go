package permissions

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/policyhub/pkg/logger"
	"github.com/charlesng35/policyhub/pkg/metrics"
)

// SystemActor is recorded as assigned_by when no principal is known.
const SystemActor = "system"

// Manager owns the assignment lifecycle for both models and mediates every
// write to the store. Assignments for the same (user, target) pair are
// serialised in process; the store's atomic insert covers other processes.
type Manager struct {
	store      Store
	now        func() time.Time
	locks      *keyedMutex
	conditions ConditionEvaluator
	log        *zap.Logger
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithConditionValidator validates statement conditions on create and update.
func WithConditionValidator(c ConditionEvaluator) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.conditions = c
		}
	}
}

// WithManagerLogger overrides the manager logger.
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager constructs a lifecycle manager around store.
func NewManager(store Store, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("permissions: store is required")
	}
	m := &Manager{
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
		locks:      newKeyedMutex(),
		conditions: AllowAllConditions{},
		log:        logger.WithModule("permissions"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Store exposes the underlying store for health checks.
func (m *Manager) Store() Store {
	return m.store
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// AssignInput describes a new assignment for either model.
type AssignInput struct {
	UserID     string
	TargetID   string
	AssignedBy string
	ExpiresAt  *time.Time
	Notes      string
}

func (in *AssignInput) normalize(now time.Time) error {
	in.UserID = strings.TrimSpace(in.UserID)
	in.TargetID = strings.TrimSpace(in.TargetID)
	in.AssignedBy = strings.TrimSpace(in.AssignedBy)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.UserID == "" {
		return ErrInvalidRequest.WithMessage("user id is required")
	}
	if in.TargetID == "" {
		return ErrInvalidRequest.WithMessage("target id is required")
	}
	if in.AssignedBy == "" {
		in.AssignedBy = SystemActor
	}
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		if exp.Before(now) {
			return ErrInvalidRequest.WithMessage("expires_at must not be in the past")
		}
		in.ExpiresAt = &exp
	}
	return nil
}

func (in AssignInput) assignment(now time.Time) Assignment {
	return Assignment{
		UserID:     in.UserID,
		AssignedAt: now,
		AssignedBy: in.AssignedBy,
		ExpiresAt:  in.ExpiresAt,
		Notes:      in.Notes,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AssignPolicy grants the user a policy. It fails with ErrPolicyNotFound for an
// unknown policy and ErrDuplicateAssignment when an effective assignment exists.
func (m *Manager) AssignPolicy(ctx context.Context, in AssignInput) (*PolicyAssignment, error) {
	now := m.now()
	if err := in.normalize(now); err != nil {
		return nil, err
	}

	unlock := m.locks.Lock("policy|" + in.UserID + "|" + in.TargetID)
	defer unlock()

	if _, err := m.store.GetPolicy(ctx, in.TargetID); err != nil {
		return nil, err
	}

	assignment := &PolicyAssignment{Assignment: in.assignment(now), PolicyID: in.TargetID}
	if err := m.store.InsertPolicyAssignment(ctx, assignment, now); err != nil {
		return nil, err
	}

	m.log.Info("policy assigned",
		zap.String("user_id", in.UserID),
		zap.String("policy_id", in.TargetID),
		zap.String("assigned_by", in.AssignedBy),
	)
	return assignment, nil
}

// UnassignPolicy removes the user's assignment to the policy.
func (m *Manager) UnassignPolicy(ctx context.Context, userID, policyID string) error {
	userID, policyID = strings.TrimSpace(userID), strings.TrimSpace(policyID)
	if userID == "" || policyID == "" {
		return ErrInvalidRequest.WithMessage("user id and policy id are required")
	}

	unlock := m.locks.Lock("policy|" + userID + "|" + policyID)
	defer unlock()

	if err := m.store.DeletePolicyAssignment(ctx, userID, policyID); err != nil {
		return err
	}
	m.log.Info("policy unassigned", zap.String("user_id", userID), zap.String("policy_id", policyID))
	return nil
}

// AssignmentPatch changes an existing assignment. ClearExpiry removes the
// expiry; otherwise a non-nil ExpiresAt replaces it.
type AssignmentPatch struct {
	ExpiresAt   *time.Time
	ClearExpiry bool
	Notes       *string
}

func (patch AssignmentPatch) apply(a *Assignment, now time.Time) error {
	switch {
	case patch.ClearExpiry:
		a.ExpiresAt = nil
	case patch.ExpiresAt != nil:
		exp := patch.ExpiresAt.UTC()
		if exp.Before(now) {
			return ErrInvalidRequest.WithMessage("expires_at must not be in the past")
		}
		a.ExpiresAt = &exp
	}
	if patch.Notes != nil {
		a.Notes = strings.TrimSpace(*patch.Notes)
	}
	a.UpdatedAt = now
	return nil
}

// UpdatePolicyAssignment changes the expiry or notes of an effective policy
// assignment. Expired assignments cannot be revived; assign again instead.
func (m *Manager) UpdatePolicyAssignment(ctx context.Context, userID, policyID string, patch AssignmentPatch) (*PolicyAssignment, error) {
	userID, policyID = strings.TrimSpace(userID), strings.TrimSpace(policyID)
	unlock := m.locks.Lock("policy|" + userID + "|" + policyID)
	defer unlock()

	now := m.now()
	rows, err := m.store.ListPolicyAssignments(ctx, AssignmentFilter{UserID: userID, TargetID: policyID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	var current *PolicyAssignment
	for _, a := range rows {
		if a.Effective(now) {
			current = a
			break
		}
	}
	if current == nil {
		return nil, ErrAssignmentNotFound
	}
	if err := patch.apply(&current.Assignment, now); err != nil {
		return nil, err
	}
	if err := m.store.UpdatePolicyAssignment(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// UpdateResourceAssignment changes the expiry or notes of an effective
// resource assignment.
func (m *Manager) UpdateResourceAssignment(ctx context.Context, userID, permissionID string, patch AssignmentPatch) (*ResourceAssignment, error) {
	userID, permissionID = strings.TrimSpace(userID), strings.TrimSpace(permissionID)
	unlock := m.locks.Lock("resource|" + userID + "|" + permissionID)
	defer unlock()

	now := m.now()
	rows, err := m.store.ListResourceAssignments(ctx, AssignmentFilter{UserID: userID, TargetID: permissionID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	var current *ResourceAssignment
	for _, a := range rows {
		if a.Effective(now) {
			current = a
			break
		}
	}
	if current == nil {
		return nil, ErrAssignmentNotFound
	}
	if err := patch.apply(&current.Assignment, now); err != nil {
		return nil, err
	}
	if err := m.store.UpdateResourceAssignment(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// AssignResourcePermission grants the user a resource permission.
func (m *Manager) AssignResourcePermission(ctx context.Context, in AssignInput) (*ResourceAssignment, error) {
	now := m.now()
	if err := in.normalize(now); err != nil {
		return nil, err
	}

	unlock := m.locks.Lock("resource|" + in.UserID + "|" + in.TargetID)
	defer unlock()

	if _, err := m.store.GetResourcePermission(ctx, in.TargetID); err != nil {
		return nil, err
	}

	assignment := &ResourceAssignment{Assignment: in.assignment(now), ResourcePermissionID: in.TargetID}
	if err := m.store.InsertResourceAssignment(ctx, assignment, now); err != nil {
		return nil, err
	}

	m.log.Info("resource permission assigned",
		zap.String("user_id", in.UserID),
		zap.String("resource_permission_id", in.TargetID),
		zap.String("assigned_by", in.AssignedBy),
	)
	return assignment, nil
}

// UnassignResourcePermission deactivates the user's assignment, keeping history.
func (m *Manager) UnassignResourcePermission(ctx context.Context, userID, permissionID string) error {
	userID, permissionID = strings.TrimSpace(userID), strings.TrimSpace(permissionID)
	if userID == "" || permissionID == "" {
		return ErrInvalidRequest.WithMessage("user id and resource permission id are required")
	}

	unlock := m.locks.Lock("resource|" + userID + "|" + permissionID)
	defer unlock()

	if err := m.store.DeactivateResourceAssignment(ctx, userID, permissionID, m.now()); err != nil {
		return err
	}
	m.log.Info("resource permission unassigned", zap.String("user_id", userID), zap.String("resource_permission_id", permissionID))
	return nil
}

// SweepResult reports how many assignments a sweep deactivated.
type SweepResult struct {
	PolicyAssignments   int64     `json:"policy_assignments"`
	ResourceAssignments int64     `json:"resource_assignments"`
	SweptAt             time.Time `json:"swept_at"`
}

// Total returns the number of assignments deactivated across both models.
func (r SweepResult) Total() int64 {
	return r.PolicyAssignments + r.ResourceAssignments
}

// SweepExpired flags active assignments past their expiry as inactive. Reads
// already ignore such assignments, so the sweep only tidies storage.
func (m *Manager) SweepExpired(ctx context.Context) (SweepResult, error) {
	result := SweepResult{SweptAt: m.now()}
	var errs error

	n, err := m.store.ExpirePolicyAssignments(ctx, result.SweptAt)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else {
		result.PolicyAssignments = n
		metrics.AssignmentsSwept.WithLabelValues(string(ModePolicy)).Add(float64(n))
	}

	n, err = m.store.ExpireResourceAssignments(ctx, result.SweptAt)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else {
		result.ResourceAssignments = n
		metrics.AssignmentsSwept.WithLabelValues(string(ModeResource)).Add(float64(n))
	}

	if errs != nil {
		m.log.Warn("expired assignment sweep incomplete", zap.Error(errs))
		return result, errs
	}
	if result.Total() > 0 {
		m.log.Info("expired assignments deactivated",
			zap.Int64("policy_assignments", result.PolicyAssignments),
			zap.Int64("resource_assignments", result.ResourceAssignments),
		)
	}
	return result, nil
}

// PolicyAssignmentsForUser lists the user's policy assignments in the given view.
func (m *Manager) PolicyAssignmentsForUser(ctx context.Context, userID string, view View) ([]*PolicyAssignment, error) {
	return m.listPolicyAssignments(ctx, AssignmentFilter{UserID: strings.TrimSpace(userID)}, view)
}

// PolicyAssignmentsForPolicy lists the assignments that reference a policy.
func (m *Manager) PolicyAssignmentsForPolicy(ctx context.Context, policyID string, view View) ([]*PolicyAssignment, error) {
	return m.listPolicyAssignments(ctx, AssignmentFilter{TargetID: strings.TrimSpace(policyID)}, view)
}

// AllPolicyAssignments lists every policy assignment in the given view.
func (m *Manager) AllPolicyAssignments(ctx context.Context, view View) ([]*PolicyAssignment, error) {
	return m.listPolicyAssignments(ctx, AssignmentFilter{}, view)
}

func (m *Manager) listPolicyAssignments(ctx context.Context, filter AssignmentFilter, view View) ([]*PolicyAssignment, error) {
	filter.ActiveOnly = view != ViewAll
	rows, err := m.store.ListPolicyAssignments(ctx, filter)
	if err != nil {
		return nil, err
	}
	if view == ViewAll {
		return rows, nil
	}
	now := m.now()
	out := rows[:0]
	for _, a := range rows {
		if a.Effective(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

// ResourceAssignmentsForUser lists the user's resource assignments in the given view.
func (m *Manager) ResourceAssignmentsForUser(ctx context.Context, userID string, view View) ([]*ResourceAssignment, error) {
	return m.listResourceAssignments(ctx, AssignmentFilter{UserID: strings.TrimSpace(userID)}, view)
}

// ResourceAssignmentsForPermission lists the assignments that reference a resource permission.
func (m *Manager) ResourceAssignmentsForPermission(ctx context.Context, permissionID string, view View) ([]*ResourceAssignment, error) {
	return m.listResourceAssignments(ctx, AssignmentFilter{TargetID: strings.TrimSpace(permissionID)}, view)
}

// AllResourceAssignments lists every resource assignment in the given view.
func (m *Manager) AllResourceAssignments(ctx context.Context, view View) ([]*ResourceAssignment, error) {
	return m.listResourceAssignments(ctx, AssignmentFilter{}, view)
}

func (m *Manager) listResourceAssignments(ctx context.Context, filter AssignmentFilter, view View) ([]*ResourceAssignment, error) {
	filter.ActiveOnly = view != ViewAll
	rows, err := m.store.ListResourceAssignments(ctx, filter)
	if err != nil {
		return nil, err
	}
	if view == ViewAll {
		return rows, nil
	}
	now := m.now()
	out := rows[:0]
	for _, a := range rows {
		if a.Effective(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

// EffectivePolicies resolves the policies behind the user's effective
// assignments. Assignments pointing at a policy that no longer exists are skipped.
func (m *Manager) EffectivePolicies(ctx context.Context, userID string) ([]*Policy, error) {
	assignments, err := m.PolicyAssignmentsForUser(ctx, userID, ViewEffective)
	if err != nil {
		return nil, err
	}

	policies := make([]*Policy, 0, len(assignments))
	for _, a := range assignments {
		policy, err := m.store.GetPolicy(ctx, a.PolicyID)
		if errors.Is(err, ErrPolicyNotFound) {
			m.log.Warn("assignment references missing policy", zap.String("user_id", a.UserID), zap.String("policy_id", a.PolicyID))
			continue
		}
		if err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}
	return policies, nil
}

// EffectiveResourcePermissions resolves the user's resource permissions in
// assignment order.
func (m *Manager) EffectiveResourcePermissions(ctx context.Context, userID string) ([]*ResourcePermission, error) {
	assignments, err := m.ResourceAssignmentsForUser(ctx, userID, ViewEffective)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(assignments))
	perms := make([]*ResourcePermission, 0, len(assignments))
	for _, a := range assignments {
		if _, dup := seen[a.ResourcePermissionID]; dup {
			continue
		}
		seen[a.ResourcePermissionID] = struct{}{}

		perm, err := m.store.GetResourcePermission(ctx, a.ResourcePermissionID)
		if errors.Is(err, ErrResourcePermissionNotFound) {
			m.log.Warn("assignment references missing resource permission", zap.String("user_id", a.UserID), zap.String("resource_permission_id", a.ResourcePermissionID))
			continue
		}
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, nil
}

// UsersWithPolicy returns the ids of users holding an effective assignment to the policy.
func (m *Manager) UsersWithPolicy(ctx context.Context, policyID string) ([]string, error) {
	if _, err := m.store.GetPolicy(ctx, strings.TrimSpace(policyID)); err != nil {
		return nil, err
	}
	assignments, err := m.PolicyAssignmentsForPolicy(ctx, policyID, ViewEffective)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(assignments))
	users := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if _, dup := seen[a.UserID]; dup {
			continue
		}
		seen[a.UserID] = struct{}{}
		users = append(users, a.UserID)
	}
	sort.Strings(users)
	return users, nil
}
