package permissions

import (
	"fmt"
	"strings"
)

// Mode selects which permission model decides requests.
type Mode string

const (
	ModePolicy   Mode = "policy"
	ModeResource Mode = "resource"
	ModeHybrid   Mode = "hybrid"
)

// ParseMode maps configuration text onto a Mode, defaulting to ModePolicy.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModePolicy:
		return ModePolicy, nil
	case ModeResource:
		return ModeResource, nil
	case ModeHybrid:
		return ModeHybrid, nil
	default:
		return "", fmt.Errorf("unknown permission mode %q", raw)
	}
}

// NewDecider builds the evaluator for mode on top of the lifecycle manager.
func NewDecider(mode Mode, manager *Manager, opts ...EvaluatorOption) (Decider, error) {
	if manager == nil {
		return nil, fmt.Errorf("permissions: manager is required")
	}
	switch mode {
	case ModePolicy, "":
		return NewPolicyEvaluator(manager, opts...), nil
	case ModeResource:
		return NewResourceEvaluator(manager, opts...), nil
	case ModeHybrid:
		return NewHybridEvaluator(NewPolicyEvaluator(manager, opts...), NewResourceEvaluator(manager, opts...)), nil
	default:
		return nil, fmt.Errorf("unknown permission mode %q", mode)
	}
}
