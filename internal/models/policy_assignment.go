package models

import "time"

// PolicyAssignment binds a user to a policy. The (user_id, policy_id) pair is
// unique so a concurrent duplicate insert fails at the database.
type PolicyAssignment struct {
	BaseModel

	UserID     string     `gorm:"type:varchar(128);not null;uniqueIndex:idx_policy_assignment_user_policy,priority:1" json:"user_id"`
	PolicyID   string     `gorm:"type:varchar(128);not null;uniqueIndex:idx_policy_assignment_user_policy,priority:2;index" json:"policy_id"`
	Policy     *Policy    `gorm:"foreignKey:PolicyID;constraint:OnDelete:RESTRICT" json:"-"`
	AssignedAt time.Time  `gorm:"not null" json:"assigned_at"`
	AssignedBy string     `gorm:"type:varchar(128)" json:"assigned_by"`
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at"`
	Notes      string     `gorm:"type:text" json:"notes"`
	Active     bool       `gorm:"not null;index" json:"active"`
}

// TableName overrides the default table name for GORM.
func (PolicyAssignment) TableName() string {
	return "policy_assignments"
}
