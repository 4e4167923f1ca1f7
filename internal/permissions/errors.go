package permissions

import (
	"net/http"

	apperrors "github.com/charlesng35/policyhub/pkg/errors"
)

var (
	// ErrPolicyNotFound is returned when a policy id does not resolve.
	ErrPolicyNotFound = apperrors.New("POLICY_NOT_FOUND", "Policy not found", http.StatusNotFound)
	// ErrResourcePermissionNotFound is returned when a resource permission id does not resolve.
	ErrResourcePermissionNotFound = apperrors.New("RESOURCE_PERMISSION_NOT_FOUND", "Resource permission not found", http.StatusNotFound)
	// ErrAssignmentNotFound is returned when unassigning a grant the user does not hold.
	ErrAssignmentNotFound = apperrors.New("ASSIGNMENT_NOT_FOUND", "Assignment not found", http.StatusNotFound)

	// ErrDuplicatePolicy is returned when creating a policy whose id already exists.
	ErrDuplicatePolicy = apperrors.New("POLICY_EXISTS", "Policy already exists", http.StatusConflict)
	// ErrDuplicateResourcePermission is returned when creating a resource permission whose id already exists.
	ErrDuplicateResourcePermission = apperrors.New("RESOURCE_PERMISSION_EXISTS", "Resource permission already exists", http.StatusConflict)
	// ErrDuplicateAssignment is returned when the user already holds an effective assignment to the target.
	ErrDuplicateAssignment = apperrors.New("DUPLICATE_ASSIGNMENT", "Assignment already exists", http.StatusConflict)

	// ErrPolicyInUse blocks deleting a policy that is still referenced by assignments.
	ErrPolicyInUse = apperrors.New("REFERENTIAL_INTEGRITY_VIOLATION", "Policy is still assigned to users", http.StatusConflict)
	// ErrResourcePermissionInUse blocks deleting a resource permission that is still referenced by assignments.
	ErrResourcePermissionInUse = apperrors.New("REFERENTIAL_INTEGRITY_VIOLATION", "Resource permission is still assigned to users", http.StatusConflict)

	// ErrInvalidPolicy reports a structurally invalid policy or statement.
	ErrInvalidPolicy = apperrors.New("INVALID_POLICY", "Invalid policy", http.StatusBadRequest)
	// ErrInvalidResourcePermission reports a structurally invalid resource permission.
	ErrInvalidResourcePermission = apperrors.New("INVALID_RESOURCE_PERMISSION", "Invalid resource permission", http.StatusBadRequest)
	// ErrInvalidRequest reports malformed evaluation or assignment input.
	ErrInvalidRequest = apperrors.New("INVALID_REQUEST", "Invalid request", http.StatusBadRequest)
	// ErrUnknownAction reports an action token outside the catalogue.
	ErrUnknownAction = apperrors.New("UNKNOWN_ACTION", "Unknown action", http.StatusBadRequest)

	// ErrStoreUnavailable wraps any infrastructure failure raised by a store.
	ErrStoreUnavailable = apperrors.New("STORE_UNAVAILABLE", "Permission store unavailable", http.StatusServiceUnavailable)
	// ErrConditionEvaluation reports a condition expression that failed at runtime.
	ErrConditionEvaluation = apperrors.New("CONDITION_EVALUATION_FAILED", "Statement condition could not be evaluated", http.StatusInternalServerError)
)

// unavailable wraps an infrastructure failure so callers can match ErrStoreUnavailable.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return ErrStoreUnavailable.WithInternal(err)
}
