package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/policyhub/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t, "memory:open_sqlite")

	require.NoError(t, db.Exec("SELECT 1").Error)
	require.NoError(t, Ping(context.Background(), db))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestNamedMemoryDatabasesAreIsolated(t *testing.T) {
	first := openTestDB(t, "memory:isolated_a")
	second := openTestDB(t, "memory:isolated_b")

	require.NoError(t, AutoMigrate(first))
	require.NoError(t, first.Create(&models.Policy{ID: "p1", Name: "p1", Version: "2024-01-01"}).Error)

	require.False(t, second.Migrator().HasTable(&models.Policy{}))
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	db := openTestDB(t, "memory:auto_migrate")

	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	for _, model := range Models() {
		require.True(t, migrator.HasTable(model), "expected table for %T", model)
	}
	require.True(t, migrator.HasIndex(&models.PolicyAssignment{}, "idx_policy_assignment_user_policy"))
}

func TestTranslateErrorReportsDuplicateKey(t *testing.T) {
	db := openTestDB(t, "memory:duplicate_key")
	require.NoError(t, AutoMigrate(db))

	policy := models.Policy{ID: "dup", Name: "dup", Version: "2024-01-01"}
	require.NoError(t, db.Create(&policy).Error)

	err := db.Create(&models.Policy{ID: "dup", Name: "dup", Version: "2024-01-01"}).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestAutoMigrateRejectsNilHandle(t *testing.T) {
	require.Error(t, AutoMigrate(nil))
}

func openTestDB(t *testing.T, path string) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = Close(db)
	})

	return db
}
