package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/policyhub/internal/auditctx"
	"github.com/charlesng35/policyhub/internal/database/testutil"
	"github.com/charlesng35/policyhub/internal/permissions"
)

type testServices struct {
	manager     *permissions.Manager
	audit       *AuditService
	policies    *PolicyService
	resources   *ResourcePermissionService
	assignments *AssignmentService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store, err := permissions.NewGormStore(db)
	require.NoError(t, err)
	manager, err := permissions.NewManager(store)
	require.NoError(t, err)
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	policies, err := NewPolicyService(manager, audit)
	require.NoError(t, err)
	resources, err := NewResourcePermissionService(manager, audit)
	require.NoError(t, err)
	assignments, err := NewAssignmentService(manager, audit)
	require.NoError(t, err)

	return &testServices{
		manager:     manager,
		audit:       audit,
		policies:    policies,
		resources:   resources,
		assignments: assignments,
	}
}

func adminContext() context.Context {
	return auditctx.WithActor(context.Background(), auditctx.Actor{
		UserID:    "admin-1",
		Username:  "admin",
		IPAddress: "10.0.0.5",
	})
}

func readOnlyPolicy() *permissions.Policy {
	return &permissions.Policy{
		ID:   "ClientReadOnly",
		Name: "Client Read Only Access",
		Statements: []permissions.Statement{{
			Sid:       "ClientRead",
			Effect:    permissions.EffectAllow,
			Actions:   []permissions.Action{permissions.ActionClientRead, permissions.ActionClientList},
			Resources: []string{"client:*"},
		}},
	}
}
