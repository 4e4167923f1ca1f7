package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/policyhub/internal/permissions"
	"github.com/charlesng35/policyhub/internal/services"
	appErrors "github.com/charlesng35/policyhub/pkg/errors"
	"github.com/charlesng35/policyhub/pkg/response"
)

type createResourcePermissionRequest struct {
	ID          string   `json:"id" validate:"required,max=128"`
	Resource    string   `json:"resource" validate:"required,resource_pattern"`
	Actions     []string `json:"actions" validate:"required,min=1,dive,action"`
	Description string   `json:"description" validate:"max=1000"`
	Category    string   `json:"category" validate:"max=64"`
}

type updateResourcePermissionRequest struct {
	Resource    *string  `json:"resource" validate:"omitempty,resource_pattern"`
	Actions     []string `json:"actions" validate:"omitempty,min=1,dive,action"`
	Description *string  `json:"description" validate:"omitempty,max=1000"`
	Category    *string  `json:"category" validate:"omitempty,max=64"`
}

func toActions(values []string) []permissions.Action {
	if values == nil {
		return nil
	}
	out := make([]permissions.Action, 0, len(values))
	for _, v := range values {
		out = append(out, permissions.Action(strings.TrimSpace(v)))
	}
	return out
}

// ResourcePermissionHandler serves the flat resource permission model.
type ResourcePermissionHandler struct {
	perms       *services.ResourcePermissionService
	assignments *services.AssignmentService
	evaluator   permissions.Decider
}

func NewResourcePermissionHandler(perms *services.ResourcePermissionService, assignments *services.AssignmentService, evaluator permissions.Decider) (*ResourcePermissionHandler, error) {
	if perms == nil || assignments == nil {
		return nil, errors.New("resource permission handler: services are required")
	}
	if evaluator == nil {
		return nil, errors.New("resource permission handler: evaluator is required")
	}
	return &ResourcePermissionHandler{perms: perms, assignments: assignments, evaluator: evaluator}, nil
}

// POST /api/resource-permissions
func (h *ResourcePermissionHandler) Create(c *gin.Context) {
	var body createResourcePermissionRequest
	if !bindAndValidate(c, &body) {
		return
	}

	perm, err := h.perms.Create(requestContext(c), &permissions.ResourcePermission{
		ID:          body.ID,
		Resource:    body.Resource,
		Actions:     toActions(body.Actions),
		Description: body.Description,
		Category:    body.Category,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, perm)
}

// GET /api/resource-permissions
func (h *ResourcePermissionHandler) List(c *gin.Context) {
	perms, err := h.perms.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, perms, &response.Meta{Total: len(perms)})
}

// GET /api/resource-permissions/categorized
func (h *ResourcePermissionHandler) Categorized(c *gin.Context) {
	grouped, err := h.perms.ByCategory(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, grouped)
}

// GET /api/resource-permissions/:id
func (h *ResourcePermissionHandler) Get(c *gin.Context) {
	perm, err := h.perms.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, perm)
}

// PATCH /api/resource-permissions/:id
func (h *ResourcePermissionHandler) Update(c *gin.Context) {
	var body updateResourcePermissionRequest
	if !bindAndValidate(c, &body) {
		return
	}

	perm, err := h.perms.Update(requestContext(c), c.Param("id"), permissions.ResourcePermissionPatch{
		Resource:    body.Resource,
		Actions:     toActions(body.Actions),
		Description: body.Description,
		Category:    body.Category,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, perm)
}

// DELETE /api/resource-permissions/:id
func (h *ResourcePermissionHandler) Delete(c *gin.Context) {
	if err := h.perms.Delete(requestContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/resource-permissions/assign/:userID/:permissionID
func (h *ResourcePermissionHandler) Assign(c *gin.Context) {
	var body assignRequest
	if !bindOptional(c, &body) {
		return
	}

	assignment, err := h.assignments.AssignResourcePermission(requestContext(c), permissions.AssignInput{
		UserID:    c.Param("userID"),
		TargetID:  c.Param("permissionID"),
		ExpiresAt: body.ExpiresAt,
		Notes:     body.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, assignment)
}

// PATCH /api/resource-permissions/assign/:userID/:permissionID
func (h *ResourcePermissionHandler) UpdateAssignment(c *gin.Context) {
	var body updateAssignmentRequest
	if !bindAndValidate(c, &body) {
		return
	}

	assignment, err := h.assignments.UpdateResourceAssignment(requestContext(c), c.Param("userID"), c.Param("permissionID"), body.patch())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, assignment)
}

// DELETE /api/resource-permissions/unassign/:userID/:permissionID
func (h *ResourcePermissionHandler) Unassign(c *gin.Context) {
	if err := h.assignments.UnassignResourcePermission(requestContext(c), c.Param("userID"), c.Param("permissionID")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unassigned": true})
}

// POST /api/resource-permissions/role-sets/:userID/:role
func (h *ResourcePermissionHandler) AssignRoleSet(c *gin.Context) {
	result, err := h.assignments.AssignResourceRoleSet(requestContext(c), c.Param("userID"), c.Param("role"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/resource-permissions/user/:userID/assignments
func (h *ResourcePermissionHandler) UserAssignments(c *gin.Context) {
	view, ok := parseView(c)
	if !ok {
		return
	}
	assignments, err := h.assignments.ResourceAssignments(requestContext(c), c.Param("userID"), "", view)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, assignments)
}

// GET /api/resource-permissions/user/:userID/permissions
func (h *ResourcePermissionHandler) UserPermissions(c *gin.Context) {
	perms, err := h.assignments.EffectiveResourcePermissions(requestContext(c), c.Param("userID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, perms)
}

// GET /api/resource-permissions/assignments/all
func (h *ResourcePermissionHandler) AllAssignments(c *gin.Context) {
	view := permissions.ViewAll
	if c.Query("view") != "" {
		parsed, ok := parseView(c)
		if !ok {
			return
		}
		view = parsed
	}

	assignments, err := h.assignments.ResourceAssignments(requestContext(c), strings.TrimSpace(c.Query("user_id")), strings.TrimSpace(c.Query("permission_id")), view)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, assignments, &response.Meta{Total: len(assignments)})
}

// POST /api/resource-permissions/evaluate
func (h *ResourcePermissionHandler) Evaluate(c *gin.Context) {
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

	evaluation, err := h.evaluator.Evaluate(requestContext(c), body.toRequest(userID))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, evaluation)
}

// POST /api/resource-permissions/initialize
func (h *ResourcePermissionHandler) Initialize(c *gin.Context) {
	result, err := h.assignments.Seed(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
