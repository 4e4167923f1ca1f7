package permissions

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ResourcePermission is the flat alternative to a policy: a single resource
// pattern paired with the actions it allows.
type ResourcePermission struct {
	ID          string    `json:"id"`
	Resource    string    `json:"resource"`
	Actions     []Action  `json:"actions"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Normalize trims identifiers.
func (rp *ResourcePermission) Normalize() {
	rp.ID = strings.TrimSpace(rp.ID)
	rp.Resource = strings.TrimSpace(rp.Resource)
	rp.Description = strings.TrimSpace(rp.Description)
	rp.Category = strings.TrimSpace(rp.Category)
}

// Validate enforces the structural rules for a resource permission.
func (rp *ResourcePermission) Validate() error {
	var problems []error
	if rp.ID == "" {
		problems = append(problems, errors.New("id is required"))
	}
	if err := ValidateResourcePattern(rp.Resource); err != nil {
		problems = append(problems, err)
	}
	if len(rp.Actions) == 0 {
		problems = append(problems, errors.New("at least one action is required"))
	}
	for _, action := range rp.Actions {
		if !IsRegisteredAction(action) {
			problems = append(problems, fmt.Errorf("unknown action %q", action))
		}
	}
	if len(problems) > 0 {
		return ErrInvalidResourcePermission.WithMessage("invalid resource permission %q: %s", rp.ID, joinProblems(problems)).WithInternal(errors.Join(problems...))
	}
	return nil
}

// Allows reports whether the permission covers the action on the resource.
func (rp *ResourcePermission) Allows(action Action, resource string) bool {
	if !MatchResource(rp.Resource, resource) {
		return false
	}
	for _, candidate := range rp.Actions {
		if candidate == action {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the resource permission.
func (rp *ResourcePermission) Clone() *ResourcePermission {
	if rp == nil {
		return nil
	}
	cp := *rp
	cp.Actions = append([]Action(nil), rp.Actions...)
	return &cp
}

// ResourcePermissionPatch carries the fields supplied by a partial update.
type ResourcePermissionPatch struct {
	Resource    *string
	Actions     []Action
	Description *string
	Category    *string
}

// Apply merges the patch into a copy of the permission and stamps UpdatedAt.
func (patch ResourcePermissionPatch) Apply(rp *ResourcePermission, now time.Time) *ResourcePermission {
	out := rp.Clone()
	if patch.Resource != nil {
		out.Resource = *patch.Resource
	}
	if patch.Actions != nil {
		out.Actions = append([]Action(nil), patch.Actions...)
	}
	if patch.Description != nil {
		out.Description = *patch.Description
	}
	if patch.Category != nil {
		out.Category = *patch.Category
	}
	out.UpdatedAt = now
	return out
}
