package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/policyhub/internal/database/testutil"
	"github.com/charlesng35/policyhub/internal/models"
)

func TestAuditServiceLogAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	ctx := context.Background()
	userID := "admin-1"
	require.NoError(t, svc.Log(ctx, AuditEntry{
		UserID:   &userID,
		Username: "admin",
		Action:   AuditPolicyCreate,
		Resource: "ClientReadOnly",
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"statements": 1},
	}))
	require.NoError(t, svc.Log(ctx, AuditEntry{
		Action:   AuditPolicyDelete,
		Resource: "ClientReadOnly",
		Result:   AuditResultFailure,
	}))

	logs, total, err := svc.List(ctx, AuditListOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, logs, 2)

	logs, total, err = svc.List(ctx, AuditListOptions{Filters: AuditFilters{UserID: userID}})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, AuditPolicyCreate, logs[0].Action)

	var metadata map[string]any
	require.NoError(t, json.Unmarshal([]byte(logs[0].Metadata), &metadata))
	require.EqualValues(t, 1, metadata["statements"])

	logs, _, err = svc.List(ctx, AuditListOptions{Filters: AuditFilters{Result: AuditResultFailure}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Nil(t, logs[0].UserID)
}

func TestAuditServiceLogValidation(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	require.Error(t, svc.Log(context.Background(), AuditEntry{Result: AuditResultSuccess}))
	require.Error(t, svc.Log(context.Background(), AuditEntry{Action: AuditPolicyCreate}))

	_, err = NewAuditService(nil)
	require.Error(t, err)
}

func TestAuditServiceCleanupOlderThan(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.AuditLog{
		Action:    "old.action",
		Result:    AuditResultSuccess,
		CreatedAt: time.Now().UTC().AddDate(0, 0, -10),
	}).Error)
	require.NoError(t, svc.Log(context.Background(), AuditEntry{Action: "new.action", Result: AuditResultSuccess}))

	rows, err := svc.CleanupOlderThan(context.Background(), 5)
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	_, err = svc.CleanupOlderThan(context.Background(), 0)
	require.Error(t, err)

	_, total, err := svc.List(context.Background(), AuditListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
}
