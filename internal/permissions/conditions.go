package permissions

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// ConditionKeyExpr holds one expression or a list of expressions that must all
// evaluate to true for a statement to apply.
const ConditionKeyExpr = "expr"

// ConditionInput is the environment a statement's conditions are checked against.
type ConditionInput struct {
	UserID   string
	Action   Action
	Resource string
	Context  map[string]any
}

// ConditionEvaluator decides whether a statement's conditions hold.
type ConditionEvaluator interface {
	// Validate rejects conditions the evaluator could never satisfy.
	Validate(conditions map[string]any) error
	// Evaluate reports whether the conditions hold for the input.
	Evaluate(ctx context.Context, conditions map[string]any, in ConditionInput) (bool, error)
}

// AllowAllConditions treats every condition set as satisfied. Conditions are
// stored and returned but never restrict a statement.
type AllowAllConditions struct{}

func (AllowAllConditions) Validate(map[string]any) error { return nil }

func (AllowAllConditions) Evaluate(context.Context, map[string]any, ConditionInput) (bool, error) {
	return true, nil
}

// ExprConditions evaluates conditions["expr"] with github.com/antonmedv/expr.
// Expressions see user_id, action, resource and context. Compiled programs are
// cached by source text.
type ExprConditions struct {
	programs sync.Map // string -> *vm.Program
}

// NewExprConditions constructs an expression based evaluator.
func NewExprConditions() *ExprConditions {
	return &ExprConditions{}
}

func (e *ExprConditions) Validate(conditions map[string]any) error {
	sources, err := conditionSources(conditions)
	if err != nil {
		return err
	}
	for _, src := range sources {
		if _, err := e.compile(src); err != nil {
			return err
		}
	}
	return nil
}

func (e *ExprConditions) Evaluate(ctx context.Context, conditions map[string]any, in ConditionInput) (bool, error) {
	sources, err := conditionSources(conditions)
	if err != nil {
		return false, ErrConditionEvaluation.WithInternal(err)
	}
	if len(sources) == 0 {
		return true, nil
	}

	env := conditionEnv(in)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		program, err := e.compile(src)
		if err != nil {
			return false, ErrConditionEvaluation.WithInternal(err)
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return false, ErrConditionEvaluation.WithInternal(fmt.Errorf("condition %q: %w", src, err))
		}
		ok, isBool := out.(bool)
		if !isBool {
			return false, ErrConditionEvaluation.WithInternal(fmt.Errorf("condition %q returned %T, want bool", src, out))
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *ExprConditions) compile(src string) (*vm.Program, error) {
	if cached, ok := e.programs.Load(src); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(src, expr.Env(conditionEnv(ConditionInput{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", src, err)
	}
	e.programs.Store(src, program)
	return program, nil
}

func conditionEnv(in ConditionInput) map[string]any {
	ctx := in.Context
	if ctx == nil {
		ctx = map[string]any{}
	}
	return map[string]any{
		"user_id":  in.UserID,
		"action":   string(in.Action),
		"resource": in.Resource,
		"context":  ctx,
	}
}

func conditionSources(conditions map[string]any) ([]string, error) {
	var sources []string
	for key, raw := range conditions {
		if key != ConditionKeyExpr {
			return nil, fmt.Errorf("unsupported condition key %q", key)
		}
		switch v := raw.(type) {
		case string:
			sources = append(sources, v)
		case []string:
			sources = append(sources, v...)
		case []any:
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("condition %q must be a string or list of strings", key)
				}
				sources = append(sources, s)
			}
		default:
			return nil, fmt.Errorf("condition %q must be a string or list of strings", key)
		}
	}
	for i, src := range sources {
		sources[i] = strings.TrimSpace(src)
		if sources[i] == "" {
			return nil, fmt.Errorf("condition %q contains an empty expression", ConditionKeyExpr)
		}
	}
	return sources, nil
}

// NewConditionEvaluator returns the evaluator registered under name: "none"
// (or empty) and "expr".
func NewConditionEvaluator(name string) (ConditionEvaluator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "noop":
		return AllowAllConditions{}, nil
	case "expr":
		return NewExprConditions(), nil
	default:
		return nil, fmt.Errorf("unknown condition engine %q", name)
	}
}
