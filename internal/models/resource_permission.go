package models

import (
	"time"

	"gorm.io/datatypes"
)

// ResourcePermission stores a flat grant: one resource pattern and the actions
// allowed on it.
type ResourcePermission struct {
	ID          string                      `gorm:"primaryKey;type:varchar(128)" json:"id"`
	Resource    string                      `gorm:"type:varchar(255);not null;index" json:"resource"`
	Actions     datatypes.JSONSlice[string] `gorm:"not null" json:"actions"`
	Description string                      `gorm:"type:text" json:"description"`
	Category    string                      `gorm:"type:varchar(64);not null;index" json:"category"`
	CreatedAt   time.Time                   `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// TableName overrides the default table name for GORM.
func (ResourcePermission) TableName() string {
	return "resource_permissions"
}

// UserResourceAssignment binds a user to a resource permission. Unassigning
// flips Active so the history stays queryable.
type UserResourceAssignment struct {
	BaseModel

	UserID               string              `gorm:"type:varchar(128);not null;index:idx_user_resource_assignment,priority:1" json:"user_id"`
	ResourcePermissionID string              `gorm:"type:varchar(128);not null;index:idx_user_resource_assignment,priority:2" json:"resource_permission_id"`
	ResourcePermission   *ResourcePermission `gorm:"foreignKey:ResourcePermissionID;constraint:OnDelete:RESTRICT" json:"-"`
	AssignedAt           time.Time           `gorm:"not null" json:"assigned_at"`
	AssignedBy           string              `gorm:"type:varchar(128)" json:"assigned_by"`
	ExpiresAt            *time.Time          `gorm:"index" json:"expires_at"`
	Notes                string              `gorm:"type:text" json:"notes"`
	Active               bool                `gorm:"not null;index:idx_user_resource_assignment,priority:3" json:"active"`
}

// TableName overrides the default table name for GORM.
func (UserResourceAssignment) TableName() string {
	return "user_resource_assignments"
}
