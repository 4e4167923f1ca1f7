package permissions

import (
	"strings"
	"time"
)

// Assignment holds the fields shared by policy and resource assignments.
type Assignment struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	AssignedAt time.Time  `json:"assigned_at"`
	AssignedBy string     `json:"assigned_by"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Expired reports whether the expiry instant is strictly before now.
func (a *Assignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// Effective reports whether the assignment grants access at now: it must be
// active and not yet expired, regardless of whether a sweep has run.
func (a *Assignment) Effective(now time.Time) bool {
	return a.Active && !a.Expired(now)
}

// Clone returns a copy with its own expiry pointer.
func (a *Assignment) Clone() *Assignment {
	if a == nil {
		return nil
	}
	cp := *a
	if a.ExpiresAt != nil {
		exp := *a.ExpiresAt
		cp.ExpiresAt = &exp
	}
	return &cp
}

// PolicyAssignment is an assignment whose target is a policy.
type PolicyAssignment struct {
	Assignment
	PolicyID string `json:"policy_id"`
}

// ResourceAssignment is an assignment whose target is a resource permission.
type ResourceAssignment struct {
	Assignment
	ResourcePermissionID string `json:"resource_permission_id"`
}

// View selects which assignments a listing returns.
type View string

const (
	// ViewEffective returns only active, unexpired assignments.
	ViewEffective View = "effective"
	// ViewAll returns every stored assignment, including inactive and expired ones.
	ViewAll View = "all"
)

// ParseView maps a query value onto a View, defaulting to ViewEffective.
func ParseView(raw string) (View, error) {
	switch View(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ViewEffective:
		return ViewEffective, nil
	case ViewAll:
		return ViewAll, nil
	default:
		return "", ErrInvalidRequest.WithMessage("unknown view %q", raw)
	}
}

// AssignmentFilter narrows assignment queries. Empty ids match everything.
// ActiveOnly restricts results to rows flagged active; callers decide on expiry.
type AssignmentFilter struct {
	UserID     string
	TargetID   string
	ActiveOnly bool
}
