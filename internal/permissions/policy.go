package permissions

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Effect is the outcome a statement grants when it applies.
type Effect string

const (
	EffectAllow Effect = "Allow"
	EffectDeny  Effect = "Deny"
)

// DefaultPolicyVersion is applied to policies created without an explicit version.
const DefaultPolicyVersion = "2024-01-01"

// Valid reports whether the effect is one of the two known values.
func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// Statement grants or denies a set of actions on a set of resource patterns.
type Statement struct {
	Sid        string         `json:"sid,omitempty"`
	Effect     Effect         `json:"effect"`
	Actions    []Action       `json:"actions"`
	Resources  []string       `json:"resources"`
	Conditions map[string]any `json:"conditions,omitempty"`
}

// Applies reports whether the statement covers the action and resource. Conditions
// are evaluated separately.
func (s *Statement) Applies(action Action, resource string) bool {
	if !s.hasAction(action) {
		return false
	}
	return MatchAnyResource(s.Resources, resource)
}

func (s *Statement) hasAction(action Action) bool {
	for _, candidate := range s.Actions {
		if candidate == action {
			return true
		}
	}
	return false
}

// Policy is a named, versioned set of statements.
type Policy struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Version     string      `json:"version"`
	Statements  []Statement `json:"statements"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Normalize trims identifiers and applies the default version.
func (p *Policy) Normalize() {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Version = strings.TrimSpace(p.Version)
	if p.Version == "" {
		p.Version = DefaultPolicyVersion
	}
	for i := range p.Statements {
		p.Statements[i].Sid = strings.TrimSpace(p.Statements[i].Sid)
	}
}

// Validate enforces the structural rules for a policy and its statements.
func (p *Policy) Validate() error {
	var problems []error
	if p.ID == "" {
		problems = append(problems, errors.New("id is required"))
	}
	if p.Name == "" {
		problems = append(problems, errors.New("name is required"))
	}
	if len(p.Statements) == 0 {
		problems = append(problems, errors.New("at least one statement is required"))
	}

	sids := make(map[string]int, len(p.Statements))
	for i := range p.Statements {
		stmt := &p.Statements[i]
		if err := stmt.Validate(); err != nil {
			problems = append(problems, fmt.Errorf("statements[%d]: %w", i, err))
		}
		if stmt.Sid == "" {
			continue
		}
		if prev, dup := sids[stmt.Sid]; dup {
			problems = append(problems, fmt.Errorf("statements[%d]: sid %q already used by statements[%d]", i, stmt.Sid, prev))
			continue
		}
		sids[stmt.Sid] = i
	}

	if len(problems) > 0 {
		return ErrInvalidPolicy.WithMessage("invalid policy %q: %s", p.ID, joinProblems(problems)).WithInternal(errors.Join(problems...))
	}
	return nil
}

// Validate enforces the structural rules for a single statement.
func (s *Statement) Validate() error {
	var problems []error
	if !s.Effect.Valid() {
		problems = append(problems, fmt.Errorf("effect %q must be Allow or Deny", s.Effect))
	}
	if len(s.Actions) == 0 {
		problems = append(problems, errors.New("at least one action is required"))
	}
	for _, action := range s.Actions {
		if !IsRegisteredAction(action) {
			problems = append(problems, fmt.Errorf("unknown action %q", action))
		}
	}
	if len(s.Resources) == 0 {
		problems = append(problems, errors.New("at least one resource is required"))
	}
	for _, pattern := range s.Resources {
		if err := ValidateResourcePattern(pattern); err != nil {
			problems = append(problems, err)
		}
	}
	return errors.Join(problems...)
}

// Clone returns a deep copy of the policy.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Statements != nil {
		cp.Statements = make([]Statement, len(p.Statements))
		for i := range p.Statements {
			cp.Statements[i] = p.Statements[i].Clone()
		}
	}
	return &cp
}

// Clone returns a deep copy of the statement.
func (s Statement) Clone() Statement {
	cp := s
	cp.Actions = append([]Action(nil), s.Actions...)
	cp.Resources = append([]string(nil), s.Resources...)
	if s.Conditions != nil {
		cp.Conditions = make(map[string]any, len(s.Conditions))
		for k, v := range s.Conditions {
			cp.Conditions[k] = v
		}
	}
	return cp
}

// PolicyPatch carries the fields supplied by a partial update. Nil fields are
// left untouched.
type PolicyPatch struct {
	Name        *string
	Description *string
	Version     *string
	Statements  []Statement
}

// Apply merges the patch into a copy of the policy and stamps UpdatedAt.
func (patch PolicyPatch) Apply(p *Policy, now time.Time) *Policy {
	out := p.Clone()
	if patch.Name != nil {
		out.Name = *patch.Name
	}
	if patch.Description != nil {
		out.Description = *patch.Description
	}
	if patch.Version != nil {
		out.Version = *patch.Version
	}
	if patch.Statements != nil {
		out.Statements = make([]Statement, len(patch.Statements))
		for i := range patch.Statements {
			out.Statements[i] = patch.Statements[i].Clone()
		}
	}
	out.UpdatedAt = now
	return out
}

// Empty reports whether the patch carries no changes.
func (patch PolicyPatch) Empty() bool {
	return patch.Name == nil && patch.Description == nil && patch.Version == nil && patch.Statements == nil
}

func joinProblems(problems []error) string {
	parts := make([]string, 0, len(problems))
	for _, err := range problems {
		parts = append(parts, strings.ReplaceAll(err.Error(), "\n", "; "))
	}
	return strings.Join(parts, "; ")
}
