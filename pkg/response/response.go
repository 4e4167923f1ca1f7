package response

import (
	"net/http"

	appErrors "github.com/charlesng35/policyhub/pkg/errors"
	"github.com/gin-gonic/gin"
)

// Response defines the base API payload.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorInfo holds error details to send to clients.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta describes pagination metadata.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// Denial is the body written when an authorisation decision refuses a request.
// It keeps the standard envelope fields so generic clients still see an error code.
type Denial struct {
	Success          bool       `json:"success"`
	Error            *ErrorInfo `json:"error"`
	Message          string     `json:"message"`
	Detail           string     `json:"detail"`
	RequiredAction   string     `json:"required_action"`
	RequiredResource string     `json:"required_resource"`
	Reason           string     `json:"reason"`
}

// Success writes a JSON success response.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
	})
}

// SuccessWithMeta writes a JSON success response including metadata.
func SuccessWithMeta(c *gin.Context, statusCode int, data interface{}, meta *Meta) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// Error writes a JSON error response derived from an AppError.
func Error(c *gin.Context, err error) {
	if err == nil {
		err = appErrors.ErrInternalServer
	}

	appErr := appErrors.FromError(err)
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    appErr.Code,
			Message: appErr.Message,
		},
	})
}

// Forbidden aborts the request with a 403 describing the missing grant.
func Forbidden(c *gin.Context, action, resource, reason string) {
	c.AbortWithStatusJSON(http.StatusForbidden, Denial{
		Success: false,
		Error: &ErrorInfo{
			Code:    appErrors.ErrForbidden.Code,
			Message: appErrors.ErrForbidden.Message,
		},
		Message:          appErrors.ErrForbidden.Message,
		Detail:           "Insufficient permissions for this action",
		RequiredAction:   action,
		RequiredResource: resource,
		Reason:           reason,
	})
}
