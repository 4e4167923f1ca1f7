package models

import (
	"time"

	"gorm.io/datatypes"
)

// Policy stores a named, versioned group of statements.
type Policy struct {
	ID          string            `gorm:"primaryKey;type:varchar(128)" json:"id"`
	Name        string            `gorm:"type:varchar(255);not null;index" json:"name"`
	Description string            `gorm:"type:text" json:"description"`
	Version     string            `gorm:"type:varchar(32);not null" json:"version"`
	Statements  []PolicyStatement `gorm:"foreignKey:PolicyID;constraint:OnDelete:CASCADE" json:"statements"`
	CreatedAt   time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TableName overrides the default table name for GORM.
func (Policy) TableName() string {
	return "policies"
}

// PolicyStatement stores one statement of a policy. Position keeps the
// authoring order stable across reloads.
type PolicyStatement struct {
	BaseModel

	PolicyID   string                      `gorm:"type:varchar(128);not null;index:idx_policy_statement_order,priority:1" json:"policy_id"`
	Position   int                         `gorm:"not null;index:idx_policy_statement_order,priority:2" json:"position"`
	Sid        string                      `gorm:"type:varchar(128)" json:"sid"`
	Effect     string                      `gorm:"type:varchar(8);not null" json:"effect"`
	Actions    datatypes.JSONSlice[string] `gorm:"not null" json:"actions"`
	Resources  datatypes.JSONSlice[string] `gorm:"not null" json:"resources"`
	Conditions datatypes.JSONMap           `json:"conditions"`
}

// TableName overrides the default table name for GORM.
func (PolicyStatement) TableName() string {
	return "policy_statements"
}
