package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPredefinedDefinitionsAreValid(t *testing.T) {
	for _, p := range PredefinedPolicies() {
		p.Normalize()
		require.NoError(t, p.Validate(), p.ID)
	}
	for _, rp := range PredefinedResourcePermissions() {
		rp.Normalize()
		require.NoError(t, rp.Validate(), rp.ID)
	}

	policyIDs := map[string]bool{}
	for _, p := range PredefinedPolicies() {
		policyIDs[p.ID] = true
	}
	for role, set := range RolePolicySets {
		for _, id := range set {
			require.True(t, policyIDs[id], "role %s references unknown policy %s", role, id)
		}
	}

	permIDs := map[string]bool{}
	for _, rp := range PredefinedResourcePermissions() {
		permIDs[rp.ID] = true
	}
	for role, set := range RoleResourceSets {
		for _, id := range set {
			require.True(t, permIDs[id], "role %s references unknown resource permission %s", role, id)
		}
	}
}

func TestResolveRole(t *testing.T) {
	require.Equal(t, RoleCEO, ResolveRole("ceo"))
	require.Equal(t, RoleDCTrackerManager, ResolveRole(" dc_tracker_manager "))
	require.Equal(t, RoleRegularUser, ResolveRole("Intern"))
	require.Equal(t, RoleRegularUser, ResolveRole(""))
	require.Equal(t, []string{RoleAdmin, RoleCEO, RoleDCTrackerManager, RoleRegularUser}, RoleNames())
}

func TestSeedIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		m := newTestManager(t, store, newFakeClock())

		first, err := m.Seed(ctx)
		require.NoError(t, err)
		require.Len(t, first.Policies, len(PredefinedPolicies()))
		require.Len(t, first.ResourcePermissions, len(PredefinedResourcePermissions()))

		second, err := m.Seed(ctx)
		require.NoError(t, err)
		require.Empty(t, second.Policies)
		require.Empty(t, second.ResourcePermissions)

		count, err := m.CountPolicies(ctx)
		require.NoError(t, err)
		require.EqualValues(t, len(PredefinedPolicies()), count)
	})
}

func TestAssignRoleSet(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		m := newTestManager(t, store, newFakeClock())
		_, err := m.Seed(ctx)
		require.NoError(t, err)

		mustAssign(t, m, "U1", "AuthBasicAccess")

		res, err := m.AssignRoleSet(ctx, "U1", "regular_user", "admin")
		require.NoError(t, err)
		require.Equal(t, RoleRegularUser, res.Role)
		require.Equal(t, []string{"AuthBasicAccess"}, res.Skipped)
		require.Equal(t, []string{"UserReadOnly", "ClientReadOnly", "DeliveryChallanViewer"}, res.Assigned)

		eval := NewPolicyEvaluator(m)
		decision, err := eval.Evaluate(ctx, request("U1", ActionDeliveryChallanRead, "delivery_challan:12"))
		require.NoError(t, err)
		require.True(t, decision.Allowed)

		decision, err = eval.Evaluate(ctx, request("U1", ActionDeliveryChallanDelete, "delivery_challan:12"))
		require.NoError(t, err)
		require.False(t, decision.Allowed)

		resourceRes, err := m.AssignResourceRoleSet(ctx, "U1", RoleCEO, "admin")
		require.NoError(t, err)
		require.Len(t, resourceRes.Assigned, len(RoleResourceSets[RoleCEO]))
		require.Empty(t, resourceRes.Skipped)
	})
}
