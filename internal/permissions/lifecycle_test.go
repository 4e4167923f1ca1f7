package permissions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAssignPolicyLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		m := newTestManager(t, store, newFakeClock())
		mustCreatePolicies(t, m, clientReadOnlyPolicy())

		first := mustAssign(t, m, "U1", "ClientReadOnly")
		require.NotEmpty(t, first.ID)
		require.True(t, first.Active)
		require.Equal(t, "admin", first.AssignedBy)

		_, err := m.AssignPolicy(ctx, AssignInput{UserID: "U1", TargetID: "ClientReadOnly"})
		require.ErrorIs(t, err, ErrDuplicateAssignment)

		require.NoError(t, m.UnassignPolicy(ctx, "U1", "ClientReadOnly"))
		require.ErrorIs(t, m.UnassignPolicy(ctx, "U1", "ClientReadOnly"), ErrAssignmentNotFound)

		again, err := m.AssignPolicy(ctx, AssignInput{UserID: "U1", TargetID: "ClientReadOnly"})
		require.NoError(t, err)
		require.Equal(t, SystemActor, again.AssignedBy)

		rows, err := m.PolicyAssignmentsForUser(ctx, "U1", ViewAll)
		require.NoError(t, err)
		require.Len(t, rows, 1)
	})
}

func TestAssignPolicyValidation(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clock := newFakeClock()
		m := newTestManager(t, store, clock)
		mustCreatePolicies(t, m, clientReadOnlyPolicy())

		_, err := m.AssignPolicy(ctx, AssignInput{UserID: "U1", TargetID: "Missing"})
		require.ErrorIs(t, err, ErrPolicyNotFound)

		_, err = m.AssignPolicy(ctx, AssignInput{UserID: "", TargetID: "ClientReadOnly"})
		require.ErrorIs(t, err, ErrInvalidRequest)

		past := clock.Now().Add(-time.Minute)
		_, err = m.AssignPolicy(ctx, AssignInput{UserID: "U1", TargetID: "ClientReadOnly", ExpiresAt: &past})
		require.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestAssignPolicyReplacesExpiredAssignment(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clock := newFakeClock()
		m := newTestManager(t, store, clock)
		mustCreatePolicies(t, m, clientReadOnlyPolicy())

		exp := clock.Now().Add(time.Hour)
		_, err := m.AssignPolicy(ctx, AssignInput{UserID: "U1", TargetID: "ClientReadOnly", ExpiresAt: &exp, Notes: "temp"})
		require.NoError(t, err)

		clock.Advance(90 * time.Minute)

		renewed, err := m.AssignPolicy(ctx, AssignInput{UserID: "U1", TargetID: "ClientReadOnly"})
		require.NoError(t, err)
		require.Nil(t, renewed.ExpiresAt)

		rows, err := m.PolicyAssignmentsForUser(ctx, "U1", ViewAll)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, renewed.ID, rows[0].ID)
		require.Empty(t, rows[0].Notes)
	})
}

func TestSweepExpiredIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clock := newFakeClock()
		m := newTestManager(t, store, clock)
		mustCreatePolicies(t, m, clientReadOnlyPolicy(), clientManagerPolicy())
		_, err := m.CreateResourcePermission(ctx, &ResourcePermission{
			ID: "client_read_only", Resource: "client:*", Category: "client", Actions: []Action{ActionClientRead},
		})
		require.NoError(t, err)

		soon := clock.Now().Add(time.Hour)
		later := clock.Now().Add(48 * time.Hour)
		_, err = m.AssignPolicy(ctx, AssignInput{UserID: "U1", TargetID: "ClientReadOnly", ExpiresAt: &soon})
		require.NoError(t, err)
		_, err = m.AssignPolicy(ctx, AssignInput{UserID: "U1", TargetID: "ClientManager", ExpiresAt: &later})
		require.NoError(t, err)
		_, err = m.AssignResourcePermission(ctx, AssignInput{UserID: "U1", TargetID: "client_read_only", ExpiresAt: &soon})
		require.NoError(t, err)

		clock.Advance(2 * time.Hour)

		res, err := m.SweepExpired(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 1, res.PolicyAssignments)
		require.EqualValues(t, 1, res.ResourceAssignments)
		require.EqualValues(t, 2, res.Total())
		require.Equal(t, clock.Now(), res.SweptAt)

		res, err = m.SweepExpired(ctx)
		require.NoError(t, err)
		require.Zero(t, res.Total())

		effective, err := m.PolicyAssignmentsForUser(ctx, "U1", ViewEffective)
		require.NoError(t, err)
		require.Len(t, effective, 1)
		require.Equal(t, "ClientManager", effective[0].PolicyID)

		all, err := m.PolicyAssignmentsForUser(ctx, "U1", ViewAll)
		require.NoError(t, err)
		require.Len(t, all, 2)
	})
}

func TestAssignmentViews(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clock := newFakeClock()
		m := newTestManager(t, store, clock)
		mustCreatePolicies(t, m, clientReadOnlyPolicy())

		exp := clock.Now().Add(time.Hour)
		_, err := m.AssignPolicy(ctx, AssignInput{UserID: "U1", TargetID: "ClientReadOnly", ExpiresAt: &exp})
		require.NoError(t, err)
		mustAssign(t, m, "U2", "ClientReadOnly")

		clock.Advance(2 * time.Hour)

		effective, err := m.PolicyAssignmentsForPolicy(ctx, "ClientReadOnly", ViewEffective)
		require.NoError(t, err)
		require.Len(t, effective, 1)
		require.Equal(t, "U2", effective[0].UserID)

		all, err := m.AllPolicyAssignments(ctx, ViewAll)
		require.NoError(t, err)
		require.Len(t, all, 2)

		users, err := m.UsersWithPolicy(ctx, "ClientReadOnly")
		require.NoError(t, err)
		require.Equal(t, []string{"U2"}, users)

		_, err = m.UsersWithPolicy(ctx, "Missing")
		require.ErrorIs(t, err, ErrPolicyNotFound)
	})
}

func TestResourceUnassignKeepsHistory(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clock := newFakeClock()
		m := newTestManager(t, store, clock)
		_, err := m.CreateResourcePermission(ctx, &ResourcePermission{
			ID: "client_read_only", Resource: "client:*", Category: "client", Actions: []Action{ActionClientRead},
		})
		require.NoError(t, err)

		_, err = m.AssignResourcePermission(ctx, AssignInput{UserID: "U1", TargetID: "client_read_only"})
		require.NoError(t, err)
		_, err = m.AssignResourcePermission(ctx, AssignInput{UserID: "U1", TargetID: "client_read_only"})
		require.ErrorIs(t, err, ErrDuplicateAssignment)

		require.NoError(t, m.UnassignResourcePermission(ctx, "U1", "client_read_only"))
		require.ErrorIs(t, m.UnassignResourcePermission(ctx, "U1", "client_read_only"), ErrAssignmentNotFound)

		clock.Advance(time.Minute)
		_, err = m.AssignResourcePermission(ctx, AssignInput{UserID: "U1", TargetID: "client_read_only"})
		require.NoError(t, err)

		all, err := m.ResourceAssignmentsForUser(ctx, "U1", ViewAll)
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.False(t, all[0].Active)
		require.True(t, all[1].Active)

		effective, err := m.ResourceAssignmentsForPermission(ctx, "client_read_only", ViewEffective)
		require.NoError(t, err)
		require.Len(t, effective, 1)
	})
}

func TestDeleteGuardedByAssignments(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		m := newTestManager(t, store, newFakeClock())
		mustCreatePolicies(t, m, clientReadOnlyPolicy())
		_, err := m.CreateResourcePermission(ctx, &ResourcePermission{
			ID: "client_read_only", Resource: "client:*", Category: "client", Actions: []Action{ActionClientRead},
		})
		require.NoError(t, err)

		mustAssign(t, m, "U1", "ClientReadOnly")
		_, err = m.AssignResourcePermission(ctx, AssignInput{UserID: "U1", TargetID: "client_read_only"})
		require.NoError(t, err)

		require.ErrorIs(t, m.DeletePolicy(ctx, "ClientReadOnly"), ErrPolicyInUse)
		require.ErrorIs(t, m.DeleteResourcePermission(ctx, "client_read_only"), ErrResourcePermissionInUse)

		// deactivated rows still reference the permission
		require.NoError(t, m.UnassignResourcePermission(ctx, "U1", "client_read_only"))
		require.ErrorIs(t, m.DeleteResourcePermission(ctx, "client_read_only"), ErrResourcePermissionInUse)

		require.NoError(t, m.UnassignPolicy(ctx, "U1", "ClientReadOnly"))
		require.NoError(t, m.DeletePolicy(ctx, "ClientReadOnly"))
		_, err = m.GetPolicy(ctx, "ClientReadOnly")
		require.ErrorIs(t, err, ErrPolicyNotFound)
		require.ErrorIs(t, m.DeletePolicy(ctx, "ClientReadOnly"), ErrPolicyNotFound)
	})
}

func TestConcurrentAssignCreatesOneAssignment(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		m := newTestManager(t, store, newFakeClock())
		mustCreatePolicies(t, m, clientReadOnlyPolicy())

		const workers = 16
		var (
			wg         sync.WaitGroup
			succeeded  atomic.Int32
			duplicates atomic.Int32
			start      = make(chan struct{})
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := m.AssignPolicy(ctx, AssignInput{UserID: "U1", TargetID: "ClientReadOnly"})
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, ErrDuplicateAssignment):
					duplicates.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.EqualValues(t, 1, succeeded.Load())
		require.EqualValues(t, workers-1, duplicates.Load())

		rows, err := m.PolicyAssignmentsForUser(ctx, "U1", ViewAll)
		require.NoError(t, err)
		require.Len(t, rows, 1)
	})
}

func TestUpdatePolicyAssignment(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clock := newFakeClock()
		m := newTestManager(t, store, clock)
		mustCreatePolicies(t, m, clientReadOnlyPolicy())

		exp := clock.Now().Add(time.Hour)
		_, err := m.AssignPolicy(ctx, AssignInput{UserID: "U1", TargetID: "ClientReadOnly", ExpiresAt: &exp})
		require.NoError(t, err)

		extended := clock.Now().Add(72 * time.Hour)
		notes := "extended for audit"
		updated, err := m.UpdatePolicyAssignment(ctx, "U1", "ClientReadOnly", AssignmentPatch{ExpiresAt: &extended, Notes: &notes})
		require.NoError(t, err)
		require.True(t, updated.ExpiresAt.Equal(extended))

		clock.Advance(2 * time.Hour)
		rows, err := m.PolicyAssignmentsForUser(ctx, "U1", ViewEffective)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, notes, rows[0].Notes)

		_, err = m.UpdatePolicyAssignment(ctx, "U1", "ClientReadOnly", AssignmentPatch{ClearExpiry: true})
		require.NoError(t, err)
		rows, err = m.PolicyAssignmentsForUser(ctx, "U1", ViewAll)
		require.NoError(t, err)
		require.Nil(t, rows[0].ExpiresAt)

		past := clock.Now().Add(-time.Hour)
		_, err = m.UpdatePolicyAssignment(ctx, "U1", "ClientReadOnly", AssignmentPatch{ExpiresAt: &past})
		require.ErrorIs(t, err, ErrInvalidRequest)

		_, err = m.UpdatePolicyAssignment(ctx, "U9", "ClientReadOnly", AssignmentPatch{ClearExpiry: true})
		require.ErrorIs(t, err, ErrAssignmentNotFound)
	})
}

func TestUpdateResourceAssignmentRejectsExpired(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		clock := newFakeClock()
		m := newTestManager(t, store, clock)
		_, err := m.CreateResourcePermission(ctx, &ResourcePermission{
			ID: "client_read_only", Resource: "client:*", Category: "client", Actions: []Action{ActionClientRead},
		})
		require.NoError(t, err)

		exp := clock.Now().Add(time.Hour)
		_, err = m.AssignResourcePermission(ctx, AssignInput{UserID: "U1", TargetID: "client_read_only", ExpiresAt: &exp})
		require.NoError(t, err)

		notes := "still needed"
		updated, err := m.UpdateResourceAssignment(ctx, "U1", "client_read_only", AssignmentPatch{Notes: &notes})
		require.NoError(t, err)
		require.Equal(t, notes, updated.Notes)

		clock.Advance(2 * time.Hour)
		_, err = m.UpdateResourceAssignment(ctx, "U1", "client_read_only", AssignmentPatch{ClearExpiry: true})
		require.ErrorIs(t, err, ErrAssignmentNotFound)
	})
}

func TestNewManagerRequiresStore(t *testing.T) {
	_, err := NewManager(nil)
	require.Error(t, err)
}
