package permissions

import (
	"context"
	"time"
)

// PolicyStore persists policies and their assignments. Implementations must be
// safe for concurrent use and must wrap infrastructure failures with
// ErrStoreUnavailable.
type PolicyStore interface {
	CreatePolicy(ctx context.Context, policy *Policy) error
	GetPolicy(ctx context.Context, id string) (*Policy, error)
	GetPolicyByName(ctx context.Context, name string) (*Policy, error)
	ListPolicies(ctx context.Context) ([]*Policy, error)
	CountPolicies(ctx context.Context) (int64, error)
	// SavePolicy replaces a stored policy, statements included.
	SavePolicy(ctx context.Context, policy *Policy) error
	// DeletePolicy fails with ErrPolicyInUse while any assignment row references the policy.
	DeletePolicy(ctx context.Context, id string) error

	ListPolicyAssignments(ctx context.Context, filter AssignmentFilter) ([]*PolicyAssignment, error)
	// InsertPolicyAssignment stores the assignment unless the user already holds an
	// effective assignment to the same policy at now, in which case it returns
	// ErrDuplicateAssignment. Stale rows for the pair are replaced. The check and
	// the insert are a single atomic step.
	InsertPolicyAssignment(ctx context.Context, assignment *PolicyAssignment, now time.Time) error
	// UpdatePolicyAssignment rewrites the mutable fields (expiry, notes, active)
	// of the pair's assignment or returns ErrAssignmentNotFound.
	UpdatePolicyAssignment(ctx context.Context, assignment *PolicyAssignment) error
	// DeletePolicyAssignment removes the pair or returns ErrAssignmentNotFound.
	DeletePolicyAssignment(ctx context.Context, userID, policyID string) error
	// ExpirePolicyAssignments flags active rows whose expiry is before now as
	// inactive and reports how many changed.
	ExpirePolicyAssignments(ctx context.Context, now time.Time) (int64, error)
}

// ResourcePermissionStore persists resource permissions and their assignments.
type ResourcePermissionStore interface {
	CreateResourcePermission(ctx context.Context, perm *ResourcePermission) error
	GetResourcePermission(ctx context.Context, id string) (*ResourcePermission, error)
	ListResourcePermissions(ctx context.Context) ([]*ResourcePermission, error)
	SaveResourcePermission(ctx context.Context, perm *ResourcePermission) error
	// DeleteResourcePermission fails with ErrResourcePermissionInUse while any
	// assignment row references the permission.
	DeleteResourcePermission(ctx context.Context, id string) error

	ListResourceAssignments(ctx context.Context, filter AssignmentFilter) ([]*ResourceAssignment, error)
	// InsertResourceAssignment stores the assignment unless an effective one
	// already exists for the pair. Active rows that expired are deactivated in
	// the same step.
	InsertResourceAssignment(ctx context.Context, assignment *ResourceAssignment, now time.Time) error
	// UpdateResourceAssignment rewrites the mutable fields of the assignment
	// with the given id or returns ErrAssignmentNotFound.
	UpdateResourceAssignment(ctx context.Context, assignment *ResourceAssignment) error
	// DeactivateResourceAssignment flags the pair's active rows inactive or
	// returns ErrAssignmentNotFound when none exist.
	DeactivateResourceAssignment(ctx context.Context, userID, permissionID string, now time.Time) error
	ExpireResourceAssignments(ctx context.Context, now time.Time) (int64, error)
}

// Store combines both models behind one handle.
type Store interface {
	PolicyStore
	ResourcePermissionStore
	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}
