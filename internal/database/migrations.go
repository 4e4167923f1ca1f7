package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/policyhub/internal/models"
)

// Models lists every table owned by the service, parents before children.
func Models() []any {
	return []any{
		&models.Policy{},
		&models.PolicyStatement{},
		&models.PolicyAssignment{},
		&models.ResourcePermission{},
		&models.UserResourceAssignment{},
		&models.AuditLog{},
		&models.RateCounter{},
	}
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
