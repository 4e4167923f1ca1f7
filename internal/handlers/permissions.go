package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/policyhub/internal/permissions"
	"github.com/charlesng35/policyhub/internal/services"
	appErrors "github.com/charlesng35/policyhub/pkg/errors"
	"github.com/charlesng35/policyhub/pkg/response"
)

type statementPayload struct {
	Sid        string         `json:"sid" validate:"max=128"`
	Effect     string         `json:"effect" validate:"required,oneof=Allow Deny"`
	Actions    []string       `json:"actions" validate:"required,min=1,dive,action"`
	Resources  []string       `json:"resources" validate:"required,min=1,dive,resource_pattern"`
	Conditions map[string]any `json:"conditions"`
}

type createPolicyRequest struct {
	ID          string             `json:"id" validate:"required,max=128"`
	Name        string             `json:"name" validate:"required,max=255"`
	Description string             `json:"description" validate:"max=1000"`
	Version     string             `json:"version" validate:"max=32"`
	Statements  []statementPayload `json:"statements" validate:"required,min=1,dive"`
}

type updatePolicyRequest struct {
	Name        *string            `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string            `json:"description" validate:"omitempty,max=1000"`
	Version     *string            `json:"version" validate:"omitempty,max=32"`
	Statements  []statementPayload `json:"statements" validate:"omitempty,min=1,dive"`
}

type assignRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
	Notes     string     `json:"notes" validate:"max=1000"`
}

type updateAssignmentRequest struct {
	ExpiresAt   *time.Time `json:"expires_at"`
	ClearExpiry bool       `json:"clear_expiry"`
	Notes       *string    `json:"notes" validate:"omitempty,max=1000"`
}

type evaluateRequest struct {
	UserID   string         `json:"user_id"`
	Action   string         `json:"action" validate:"required"`
	Resource string         `json:"resource" validate:"required"`
	Context  map[string]any `json:"context"`
}

func (r evaluateRequest) toRequest(userID string) permissions.Request {
	return permissions.Request{
		UserID:   userID,
		Action:   permissions.Action(strings.TrimSpace(r.Action)),
		Resource: r.Resource,
		Context:  r.Context,
	}
}

func (r updateAssignmentRequest) patch() permissions.AssignmentPatch {
	return permissions.AssignmentPatch{
		ExpiresAt:   r.ExpiresAt,
		ClearExpiry: r.ClearExpiry,
		Notes:       r.Notes,
	}
}

func toStatements(payload []statementPayload) []permissions.Statement {
	if payload == nil {
		return nil
	}
	statements := make([]permissions.Statement, 0, len(payload))
	for _, s := range payload {
		actions := make([]permissions.Action, 0, len(s.Actions))
		for _, a := range s.Actions {
			actions = append(actions, permissions.Action(strings.TrimSpace(a)))
		}
		statements = append(statements, permissions.Statement{
			Sid:        s.Sid,
			Effect:     permissions.Effect(s.Effect),
			Actions:    actions,
			Resources:  append([]string(nil), s.Resources...),
			Conditions: s.Conditions,
		})
	}
	return statements
}

// PermissionHandler serves the policy model endpoints.
type PermissionHandler struct {
	policies    *services.PolicyService
	assignments *services.AssignmentService
	decider     permissions.Decider
}

func NewPermissionHandler(policies *services.PolicyService, assignments *services.AssignmentService, decider permissions.Decider) (*PermissionHandler, error) {
	if policies == nil || assignments == nil {
		return nil, errors.New("permission handler: policy and assignment services are required")
	}
	if decider == nil {
		return nil, errors.New("permission handler: decider is required")
	}
	return &PermissionHandler{policies: policies, assignments: assignments, decider: decider}, nil
}

// POST /api/permissions/policies
func (h *PermissionHandler) CreatePolicy(c *gin.Context) {
	var body createPolicyRequest
	if !bindAndValidate(c, &body) {
		return
	}

	policy, err := h.policies.Create(requestContext(c), &permissions.Policy{
		ID:          body.ID,
		Name:        body.Name,
		Description: body.Description,
		Version:     body.Version,
		Statements:  toStatements(body.Statements),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, policy)
}

// GET /api/permissions/policies
func (h *PermissionHandler) ListPolicies(c *gin.Context) {
	if name := strings.TrimSpace(c.Query("name")); name != "" {
		policy, err := h.policies.GetByName(requestContext(c), name)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, []*permissions.Policy{policy})
		return
	}

	policies, err := h.policies.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, policies, &response.Meta{Total: len(policies)})
}

// GET /api/permissions/policies/:id
func (h *PermissionHandler) GetPolicy(c *gin.Context) {
	policy, err := h.policies.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, policy)
}

// PATCH /api/permissions/policies/:id
func (h *PermissionHandler) UpdatePolicy(c *gin.Context) {
	var body updatePolicyRequest
	if !bindAndValidate(c, &body) {
		return
	}

	policy, err := h.policies.Update(requestContext(c), c.Param("id"), permissions.PolicyPatch{
		Name:        body.Name,
		Description: body.Description,
		Version:     body.Version,
		Statements:  toStatements(body.Statements),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, policy)
}

// DELETE /api/permissions/policies/:id
func (h *PermissionHandler) DeletePolicy(c *gin.Context) {
	if err := h.policies.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/permissions/policies/:id/users
func (h *PermissionHandler) PolicyUsers(c *gin.Context) {
	view, ok := parseView(c)
	if !ok {
		return
	}
	ctx := requestContext(c)
	policyID := c.Param("id")

	users, err := h.policies.Users(ctx, policyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	assignments, err := h.assignments.PolicyAssignments(ctx, "", policyID, view)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"policy_id":   policyID,
		"users":       users,
		"assignments": assignments,
	})
}

// POST /api/permissions/users/:userID/policies/:policyID
func (h *PermissionHandler) AssignPolicy(c *gin.Context) {
	var body assignRequest
	if !bindOptional(c, &body) {
		return
	}

	assignment, err := h.assignments.AssignPolicy(requestContext(c), permissions.AssignInput{
		UserID:    c.Param("userID"),
		TargetID:  c.Param("policyID"),
		ExpiresAt: body.ExpiresAt,
		Notes:     body.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, assignment)
}

// PATCH /api/permissions/users/:userID/policies/:policyID
func (h *PermissionHandler) UpdatePolicyAssignment(c *gin.Context) {
	var body updateAssignmentRequest
	if !bindAndValidate(c, &body) {
		return
	}

	assignment, err := h.assignments.UpdatePolicyAssignment(requestContext(c), c.Param("userID"), c.Param("policyID"), body.patch())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, assignment)
}

// DELETE /api/permissions/users/:userID/policies/:policyID
func (h *PermissionHandler) UnassignPolicy(c *gin.Context) {
	if err := h.assignments.UnassignPolicy(requestContext(c), c.Param("userID"), c.Param("policyID")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unassigned": true})
}

// POST /api/permissions/users/:userID/role-sets/:role
func (h *PermissionHandler) AssignRoleSet(c *gin.Context) {
	result, err := h.assignments.AssignPolicyRoleSet(requestContext(c), c.Param("userID"), c.Param("role"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/permissions/users/:userID/policies
func (h *PermissionHandler) UserPolicies(c *gin.Context) {
	view, ok := parseView(c)
	if !ok {
		return
	}
	assignments, err := h.assignments.PolicyAssignments(requestContext(c), c.Param("userID"), "", view)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, assignments)
}

// GET /api/permissions/users/:userID/permissions
func (h *PermissionHandler) UserPermissions(c *gin.Context) {
	summary, err := h.assignments.Summary(requestContext(c), c.Param("userID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// GET /api/permissions/assignments
func (h *PermissionHandler) Assignments(c *gin.Context) {
	view := permissions.ViewAll
	if raw := c.Query("view"); raw != "" {
		parsed, ok := parseView(c)
		if !ok {
			return
		}
		view = parsed
	}

	assignments, err := h.assignments.PolicyAssignments(requestContext(c), strings.TrimSpace(c.Query("user_id")), strings.TrimSpace(c.Query("policy_id")), view)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, assignments, &response.Meta{Total: len(assignments)})
}

// POST /api/permissions/evaluate
func (h *PermissionHandler) Evaluate(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var body evaluateRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if body.UserID != "" && body.UserID != userID {
		response.Error(c, appErrors.ErrForbidden.WithMessage("evaluating another user requires permissions:evaluate"))
		return
	}

	evaluation, err := h.decider.Evaluate(requestContext(c), body.toRequest(userID))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, evaluation)
}

// POST /api/permissions/evaluate/admin
func (h *PermissionHandler) EvaluateAdmin(c *gin.Context) {
	var body evaluateRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		response.Error(c, appErrors.NewBadRequest("user id is required"))
		return
	}

	evaluation, err := h.decider.Evaluate(requestContext(c), body.toRequest(body.UserID))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, evaluation)
}

// POST /api/permissions/initialize
func (h *PermissionHandler) Initialize(c *gin.Context) {
	result, err := h.assignments.Seed(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// POST /api/permissions/cleanup/expired
func (h *PermissionHandler) CleanupExpired(c *gin.Context) {
	result, err := h.assignments.SweepExpired(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"result": result,
		"total":  result.Total(),
	})
}
