package permissions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/policyhub/pkg/logger"
	"github.com/charlesng35/policyhub/pkg/metrics"
)

// Request asks whether a user may perform an action on a resource.
type Request struct {
	UserID   string         `json:"user_id"`
	Action   Action         `json:"action"`
	Resource string         `json:"resource"`
	Context  map[string]any `json:"context,omitempty"`
}

// Validate rejects malformed requests before any store access.
func (r *Request) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Resource = strings.TrimSpace(r.Resource)
	if r.UserID == "" {
		return ErrInvalidRequest.WithMessage("user id is required")
	}
	action, err := ParseAction(string(r.Action))
	if err != nil {
		return err
	}
	r.Action = action
	if err := ValidateResource(r.Resource); err != nil {
		return ErrInvalidRequest.WithMessage("%s", err.Error())
	}
	return nil
}

// Evaluation is the outcome of a decision. A denial is a normal result, not an
// error.
type Evaluation struct {
	Allowed           bool       `json:"allowed"`
	Reason            string     `json:"reason"`
	Model             Mode       `json:"model"`
	MatchedStatement  *Statement `json:"matched_statement,omitempty"`
	MatchedPolicies   []string   `json:"matched_policies"`
	EvaluatedPolicies []string   `json:"evaluated_policies"`
	RequiredAction    Action     `json:"required_action"`
	RequiredResource  string     `json:"required_resource"`
}

// Decider produces an Evaluation for a request. Errors are reserved for invalid
// input and infrastructure failures.
type Decider interface {
	Evaluate(ctx context.Context, req Request) (*Evaluation, error)
}

// PolicySource yields the policies a user holds effective assignments to.
type PolicySource interface {
	EffectivePolicies(ctx context.Context, userID string) ([]*Policy, error)
}

// ResourcePermissionSource yields the resource permissions a user holds
// effective assignments to, in assignment order.
type ResourcePermissionSource interface {
	EffectiveResourcePermissions(ctx context.Context, userID string) ([]*ResourcePermission, error)
}

// EvaluatorOption customises evaluators.
type EvaluatorOption func(*evaluatorConfig)

type evaluatorConfig struct {
	conditions ConditionEvaluator
	log        *zap.Logger
}

// WithConditions sets the condition evaluator used for statement conditions.
func WithConditions(c ConditionEvaluator) EvaluatorOption {
	return func(cfg *evaluatorConfig) {
		if c != nil {
			cfg.conditions = c
		}
	}
}

// WithEvaluatorLogger overrides the evaluator logger.
func WithEvaluatorLogger(l *zap.Logger) EvaluatorOption {
	return func(cfg *evaluatorConfig) {
		if l != nil {
			cfg.log = l
		}
	}
}

func newEvaluatorConfig(opts []EvaluatorOption) evaluatorConfig {
	cfg := evaluatorConfig{
		conditions: AllowAllConditions{},
		log:        logger.WithModule("permissions"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// PolicyEvaluator applies deny-override over the statements of every policy a
// user holds. Without a matching statement the result is a denial.
type PolicyEvaluator struct {
	source PolicySource
	cfg    evaluatorConfig
}

// NewPolicyEvaluator constructs a statement evaluator.
func NewPolicyEvaluator(source PolicySource, opts ...EvaluatorOption) *PolicyEvaluator {
	return &PolicyEvaluator{source: source, cfg: newEvaluatorConfig(opts)}
}

func (e *PolicyEvaluator) Evaluate(ctx context.Context, req Request) (*Evaluation, error) {
	return instrument(ctx, ModePolicy, e.cfg.log, req, e.evaluate)
}

func (e *PolicyEvaluator) evaluate(ctx context.Context, req Request) (*Evaluation, error) {
	policies, err := e.source.EffectivePolicies(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(policies, func(i, j int) bool { return policies[i].ID < policies[j].ID })

	eval := &Evaluation{
		Model:             ModePolicy,
		RequiredAction:    req.Action,
		RequiredResource:  req.Resource,
		MatchedPolicies:   []string{},
		EvaluatedPolicies: make([]string, 0, len(policies)),
	}
	for _, policy := range policies {
		eval.EvaluatedPolicies = append(eval.EvaluatedPolicies, policy.Name)
	}

	input := ConditionInput{UserID: req.UserID, Action: req.Action, Resource: req.Resource, Context: req.Context}
	var firstAllow *Statement
	seen := make(map[string]struct{})

	for _, policy := range policies {
		for i := range policy.Statements {
			stmt := &policy.Statements[i]
			if !stmt.Applies(req.Action, req.Resource) {
				continue
			}
			ok, err := e.cfg.conditions.Evaluate(ctx, stmt.Conditions, input)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			if stmt.Effect == EffectDeny {
				matched := stmt.Clone()
				eval.Allowed = false
				eval.MatchedStatement = &matched
				eval.MatchedPolicies = []string{policy.ID}
				eval.Reason = fmt.Sprintf("explicitly denied by policy '%s' for action '%s' on resource '%s'", policy.ID, req.Action, req.Resource)
				return eval, nil
			}

			if firstAllow == nil {
				matched := stmt.Clone()
				firstAllow = &matched
			}
			if _, dup := seen[policy.ID]; !dup {
				seen[policy.ID] = struct{}{}
				eval.MatchedPolicies = append(eval.MatchedPolicies, policy.ID)
			}
		}
	}

	if firstAllow != nil {
		eval.Allowed = true
		eval.MatchedStatement = firstAllow
		eval.Reason = fmt.Sprintf("allowed by policies: %s for action '%s' on resource '%s'", strings.Join(eval.MatchedPolicies, ", "), req.Action, req.Resource)
		return eval, nil
	}

	eval.Reason = fmt.Sprintf("no matching policies found for action '%s' on resource '%s'", req.Action, req.Resource)
	return eval, nil
}

// ResourceEvaluator allows a request when any of the user's resource
// permissions covers it. The first covering permission is reported.
type ResourceEvaluator struct {
	source ResourcePermissionSource
	cfg    evaluatorConfig
}

// NewResourceEvaluator constructs a flat-grant evaluator.
func NewResourceEvaluator(source ResourcePermissionSource, opts ...EvaluatorOption) *ResourceEvaluator {
	return &ResourceEvaluator{source: source, cfg: newEvaluatorConfig(opts)}
}

func (e *ResourceEvaluator) Evaluate(ctx context.Context, req Request) (*Evaluation, error) {
	return instrument(ctx, ModeResource, e.cfg.log, req, e.evaluate)
}

func (e *ResourceEvaluator) evaluate(ctx context.Context, req Request) (*Evaluation, error) {
	perms, err := e.source.EffectiveResourcePermissions(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	eval := &Evaluation{
		Model:             ModeResource,
		RequiredAction:    req.Action,
		RequiredResource:  req.Resource,
		MatchedPolicies:   []string{},
		EvaluatedPolicies: make([]string, 0, len(perms)),
	}
	for _, perm := range perms {
		eval.EvaluatedPolicies = append(eval.EvaluatedPolicies, perm.ID)
	}

	if len(perms) == 0 {
		eval.Reason = fmt.Sprintf("user has no resource permissions assigned for action '%s' on resource '%s'", req.Action, req.Resource)
		return eval, nil
	}

	for _, perm := range perms {
		if perm.Allows(req.Action, req.Resource) {
			eval.Allowed = true
			eval.MatchedPolicies = []string{perm.ID}
			eval.Reason = fmt.Sprintf("permission granted by '%s' for action '%s' on resource '%s'", perm.ID, req.Action, req.Resource)
			return eval, nil
		}
	}

	eval.Reason = fmt.Sprintf("action '%s' not allowed on resource '%s'", req.Action, req.Resource)
	return eval, nil
}

// HybridEvaluator decides with statements whenever the user holds at least one
// effective policy and falls back to resource permissions otherwise.
type HybridEvaluator struct {
	policies  *PolicyEvaluator
	resources *ResourceEvaluator
	log       *zap.Logger
}

// NewHybridEvaluator combines both evaluators.
func NewHybridEvaluator(policies *PolicyEvaluator, resources *ResourceEvaluator) *HybridEvaluator {
	return &HybridEvaluator{policies: policies, resources: resources, log: policies.cfg.log}
}

func (e *HybridEvaluator) Evaluate(ctx context.Context, req Request) (*Evaluation, error) {
	return instrument(ctx, ModeHybrid, e.log, req, func(ctx context.Context, req Request) (*Evaluation, error) {
		eval, err := e.policies.evaluate(ctx, req)
		if err != nil {
			return nil, err
		}
		if len(eval.EvaluatedPolicies) > 0 {
			return eval, nil
		}
		return e.resources.evaluate(ctx, req)
	})
}

func instrument(ctx context.Context, model Mode, log *zap.Logger, req Request, fn func(context.Context, Request) (*Evaluation, error)) (*Evaluation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	eval, err := fn(ctx, req)
	metrics.EvaluationLatency.WithLabelValues(string(model)).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		metrics.PermissionEvaluations.WithLabelValues(string(model), "error").Inc()
		log.Warn("permission evaluation failed",
			zap.String("user_id", req.UserID),
			zap.String("action", string(req.Action)),
			zap.String("resource", req.Resource),
			zap.Error(err),
		)
		return nil, err
	case eval.Allowed:
		metrics.PermissionEvaluations.WithLabelValues(string(model), "allow").Inc()
	default:
		metrics.PermissionEvaluations.WithLabelValues(string(model), "deny").Inc()
	}

	log.Debug("permission evaluated",
		zap.String("user_id", req.UserID),
		zap.String("action", string(req.Action)),
		zap.String("resource", req.Resource),
		zap.Bool("allowed", eval.Allowed),
		zap.String("reason", eval.Reason),
	)
	return eval, nil
}
