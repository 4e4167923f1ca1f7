package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/policyhub/internal/auditctx"
	"github.com/charlesng35/policyhub/internal/permissions"
)

func TestPolicyServiceAuditsChanges(t *testing.T) {
	svc := newTestServices(t)
	ctx := adminContext()

	_, err := svc.policies.Create(ctx, readOnlyPolicy())
	require.NoError(t, err)
	_, err = svc.policies.Create(ctx, readOnlyPolicy())
	require.ErrorIs(t, err, permissions.ErrDuplicatePolicy)

	desc := "read clients"
	_, err = svc.policies.Update(ctx, "ClientReadOnly", permissions.PolicyPatch{Description: &desc})
	require.NoError(t, err)
	require.NoError(t, svc.policies.Delete(ctx, "ClientReadOnly"))

	logs, total, err := svc.audit.List(context.Background(), AuditListOptions{Filters: AuditFilters{Resource: "ClientReadOnly"}})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)

	results := map[string][]string{}
	for _, log := range logs {
		require.NotNil(t, log.UserID)
		require.Equal(t, "admin-1", *log.UserID)
		require.Equal(t, "10.0.0.5", log.IPAddress)
		results[log.Action] = append(results[log.Action], log.Result)
	}
	require.ElementsMatch(t, []string{AuditResultSuccess, AuditResultFailure}, results[AuditPolicyCreate])
	require.Equal(t, []string{AuditResultSuccess}, results[AuditPolicyUpdate])
	require.Equal(t, []string{AuditResultSuccess}, results[AuditPolicyDelete])
}

func TestAssignmentServiceRecordsActor(t *testing.T) {
	svc := newTestServices(t)
	ctx := adminContext()

	_, err := svc.policies.Create(ctx, readOnlyPolicy())
	require.NoError(t, err)

	assignment, err := svc.assignments.AssignPolicy(ctx, permissions.AssignInput{UserID: "U1", TargetID: "ClientReadOnly"})
	require.NoError(t, err)
	require.Equal(t, "admin-1", assignment.AssignedBy)

	system, err := svc.assignments.AssignPolicy(context.Background(), permissions.AssignInput{UserID: "U2", TargetID: "ClientReadOnly"})
	require.NoError(t, err)
	require.Equal(t, auditctx.SystemUser, system.AssignedBy)

	users, err := svc.policies.Users(ctx, "ClientReadOnly")
	require.NoError(t, err)
	require.Equal(t, []string{"U1", "U2"}, users)

	rows, err := svc.assignments.PolicyAssignments(ctx, "U1", "", permissions.ViewEffective)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, svc.assignments.UnassignPolicy(ctx, "U1", "ClientReadOnly"))
	require.ErrorIs(t, svc.assignments.UnassignPolicy(ctx, "U1", "ClientReadOnly"), permissions.ErrAssignmentNotFound)

	logs, _, err := svc.audit.List(context.Background(), AuditListOptions{Filters: AuditFilters{Action: AuditPolicyUnassign}})
	require.NoError(t, err)
	require.Len(t, logs, 2)
}

func TestAssignmentServiceRoleSetsAndSeed(t *testing.T) {
	svc := newTestServices(t)
	ctx := adminContext()

	seeded, err := svc.assignments.Seed(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, seeded.Policies)

	result, err := svc.assignments.AssignPolicyRoleSet(ctx, "U1", "dc_tracker_manager")
	require.NoError(t, err)
	require.Equal(t, permissions.RoleDCTrackerManager, result.Role)
	require.Len(t, result.Assigned, len(permissions.RolePolicySets[permissions.RoleDCTrackerManager]))

	resourceResult, err := svc.assignments.AssignResourceRoleSet(ctx, "U1", "Regular_User")
	require.NoError(t, err)
	require.Len(t, resourceResult.Assigned, len(permissions.RoleResourceSets[permissions.RoleRegularUser]))

	summary, err := svc.assignments.Summary(ctx, "U1")
	require.NoError(t, err)
	require.Contains(t, summary.AllowedActions, permissions.ActionDeliveryChallanLinkInvoice)
	require.Len(t, summary.ResourcePermissions, len(permissions.RoleResourceSets[permissions.RoleRegularUser]))

	logs, _, err := svc.audit.List(context.Background(), AuditListOptions{Filters: AuditFilters{Action: AuditPolicyRoleSetAssign}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, permissions.RoleDCTrackerManager, logs[0].Resource)
}

func TestResourcePermissionServiceLifecycle(t *testing.T) {
	svc := newTestServices(t)
	ctx := adminContext()

	_, err := svc.resources.Create(ctx, &permissions.ResourcePermission{
		ID: "client_read_only", Resource: "client:*", Category: "client",
		Actions: []permissions.Action{permissions.ActionClientRead},
	})
	require.NoError(t, err)

	_, err = svc.assignments.AssignResourcePermission(ctx, permissions.AssignInput{UserID: "U1", TargetID: "client_read_only"})
	require.NoError(t, err)
	require.ErrorIs(t, svc.resources.Delete(ctx, "client_read_only"), permissions.ErrResourcePermissionInUse)

	require.NoError(t, svc.assignments.UnassignResourcePermission(ctx, "U1", "client_read_only"))
	all, err := svc.assignments.ResourceAssignments(ctx, "U1", "client_read_only", permissions.ViewAll)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.False(t, all[0].Active)

	grouped, err := svc.resources.ByCategory(ctx)
	require.NoError(t, err)
	require.Len(t, grouped["client"], 1)
}
