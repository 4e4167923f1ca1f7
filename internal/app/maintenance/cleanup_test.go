package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	testutil "github.com/charlesng35/policyhub/internal/database/testutil"
	"github.com/charlesng35/policyhub/internal/models"
	"github.com/charlesng35/policyhub/internal/permissions"
	"github.com/charlesng35/policyhub/internal/services"
)

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

type countingPruner struct {
	calls int
}

func (p *countingPruner) Prune(context.Context) (int64, error) {
	p.calls++
	return 3, nil
}

type failingSweeper struct{}

func (failingSweeper) SweepExpired(context.Context) (permissions.SweepResult, error) {
	return permissions.SweepResult{}, errors.New("store offline")
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}

	store, err := permissions.NewGormStore(db)
	require.NoError(t, err)
	manager, err := permissions.NewManager(store, permissions.WithClock(clock.Now))
	require.NoError(t, err)
	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)
	assignments, err := services.NewAssignmentService(manager, auditSvc)
	require.NoError(t, err)

	_, err = manager.Seed(context.Background())
	require.NoError(t, err)

	expiry := clock.Now().Add(time.Hour)
	_, err = manager.AssignPolicy(context.Background(), permissions.AssignInput{
		UserID:    "user-temp",
		TargetID:  "ClientReadOnly",
		ExpiresAt: &expiry,
	})
	require.NoError(t, err)
	_, err = manager.AssignPolicy(context.Background(), permissions.AssignInput{
		UserID:   "user-perm",
		TargetID: "ClientReadOnly",
	})
	require.NoError(t, err)

	require.NoError(t, auditSvc.Log(context.Background(), services.AuditEntry{
		Action:   "test.action",
		Result:   services.AuditResultSuccess,
		Username: "tester",
	}))
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", "test.action").
		Update("created_at", time.Now().UTC().AddDate(0, 0, -10)).Error)

	clock.current = clock.current.Add(2 * time.Hour)

	pruner := &countingPruner{}
	c := NewCleaner(assignments, auditSvc,
		WithAuditRetentionDays(7),
		WithRatePruner(pruner),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)

	require.NoError(t, c.RunOnce(context.Background()))

	all, err := manager.AllPolicyAssignments(context.Background(), permissions.ViewAll)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, a := range all {
		require.Equal(t, a.UserID == "user-perm", a.Active, a.UserID)
	}

	var stale int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", "test.action").Count(&stale).Error)
	require.Zero(t, stale)

	var sweeps int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", services.AuditAssignmentsSweep).Count(&sweeps).Error)
	require.Equal(t, int64(1), sweeps)

	require.Equal(t, 1, pruner.calls)
}

func TestCleanerRunOnceReportsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	c := NewCleaner(failingSweeper{}, nil, WithLogger(zap.New(core)))

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "store offline")
	require.Equal(t, 1, logs.FilterMessage("assignment sweep failed").Len())
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	c := NewCleaner(failingSweeper{}, nil,
		WithCron(scheduler),
		WithRatePruner(&countingPruner{}),
		WithSweepSchedule("@every 1h"),
	)

	require.NoError(t, c.Start())
	t.Cleanup(func() { <-c.Stop().Done() })

	require.Len(t, scheduler.Entries(), 2)
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	c := NewCleaner(failingSweeper{}, nil, WithSweepSchedule("not a schedule"))
	require.Error(t, c.Start())
}

func TestCleanerWithoutJobsIsNoop(t *testing.T) {
	c := NewCleaner(nil, nil)
	require.NoError(t, c.Start())
	require.NoError(t, c.RunOnce(context.Background()))
}
