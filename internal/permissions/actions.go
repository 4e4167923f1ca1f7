package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Action is a domain-qualified operation token such as "client:read".
type Action string

// Domain returns the part of the token before the first colon.
func (a Action) Domain() string {
	domain, _, _ := strings.Cut(string(a), ":")
	return domain
}

// Verb returns the part of the token after the first colon.
func (a Action) Verb() string {
	_, verb, _ := strings.Cut(string(a), ":")
	return verb
}

func (a Action) String() string { return string(a) }

// ActionDefinition describes an action registered in the catalogue.
type ActionDefinition struct {
	ID          Action
	Description string
}

type actionRegistry struct {
	mu      sync.RWMutex
	actions map[Action]*ActionDefinition
}

var globalActions = &actionRegistry{
	actions: make(map[Action]*ActionDefinition),
}

var (
	errNilAction       = errors.New("action: nil definition")
	errMalformedAction = errors.New("action: expected <domain>:<verb>")
	errDuplicateAction = errors.New("action: already registered")
)

// RegisterAction adds an action token to the catalogue. The set is closed: only
// registered actions may appear in statements or evaluation requests.
func RegisterAction(def *ActionDefinition) error {
	if def == nil {
		return errNilAction
	}

	id := Action(strings.TrimSpace(string(def.ID)))
	if err := checkActionShape(id); err != nil {
		return err
	}

	cp := *def
	cp.ID = id
	cp.Description = strings.TrimSpace(cp.Description)

	globalActions.mu.Lock()
	defer globalActions.mu.Unlock()

	if _, exists := globalActions.actions[id]; exists {
		return fmt.Errorf("%w: %s", errDuplicateAction, id)
	}
	globalActions.actions[id] = &cp
	return nil
}

// LookupAction returns a copy of the action definition when registered.
func LookupAction(id Action) (*ActionDefinition, bool) {
	globalActions.mu.RLock()
	defer globalActions.mu.RUnlock()

	def, ok := globalActions.actions[id]
	if !ok {
		return nil, false
	}
	cp := *def
	return &cp, true
}

// IsRegisteredAction reports whether the token is part of the catalogue.
func IsRegisteredAction(id Action) bool {
	_, ok := LookupAction(id)
	return ok
}

// AllActions returns every registered action ordered by token.
func AllActions() []ActionDefinition {
	globalActions.mu.RLock()
	defer globalActions.mu.RUnlock()

	out := make([]ActionDefinition, 0, len(globalActions.actions))
	for _, def := range globalActions.actions {
		out = append(out, *def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActionsByDomain gathers the actions registered under a domain prefix.
func ActionsByDomain(domain string) []Action {
	domain = strings.TrimSpace(domain)

	var out []Action
	for _, def := range AllActions() {
		if def.ID.Domain() == domain {
			out = append(out, def.ID)
		}
	}
	return out
}

// ParseAction validates a raw token against the catalogue.
func ParseAction(raw string) (Action, error) {
	id := Action(strings.TrimSpace(raw))
	if err := checkActionShape(id); err != nil {
		return "", ErrInvalidRequest.WithMessage("invalid action %q", raw).WithInternal(err)
	}
	if !IsRegisteredAction(id) {
		return "", ErrUnknownAction.WithMessage("unknown action %q", raw)
	}
	return id, nil
}

func checkActionShape(id Action) error {
	domain, verb, ok := strings.Cut(string(id), ":")
	if !ok || domain == "" || verb == "" || strings.ContainsAny(string(id), "* \t") {
		return fmt.Errorf("%w: %q", errMalformedAction, id)
	}
	return nil
}
