package maintenance

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/policyhub/internal/permissions"
	"github.com/charlesng35/policyhub/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultSweepSpec          = "@every 5m"
	defaultAuditSpec          = "@daily"
	defaultRatePruneSpec      = "@every 10m"
)

// AssignmentSweeper deactivates assignments whose expiry has passed.
type AssignmentSweeper interface {
	SweepExpired(ctx context.Context) (permissions.SweepResult, error)
}

// AuditPruner deletes audit entries older than a retention window.
type AuditPruner interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// RatePruner drops rate limit counters whose window has closed.
type RatePruner interface {
	Prune(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance: the assignment expiry sweep,
// audit retention and rate limiter housekeeping.
type Cleaner struct {
	sweeper   AssignmentSweeper
	audit     AuditPruner
	rates     RatePruner
	cron      *cron.Cron
	log       *zap.Logger
	retention int

	sweepSchedule     string
	auditSchedule     string
	ratePruneSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSweepSchedule overrides the cron specification for the expiry sweep.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithRatePruneSchedule overrides the cron specification for rate counter pruning.
func WithRatePruneSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.ratePruneSchedule = spec
		}
	}
}

// WithRatePruner registers the rate limiter store to prune.
func WithRatePruner(p RatePruner) Option {
	return func(cleaner *Cleaner) {
		cleaner.rates = p
	}
}

// WithLogger overrides the module logger.
func WithLogger(l *zap.Logger) Option {
	return func(cleaner *Cleaner) {
		if l != nil {
			cleaner.log = l
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding job being skipped.
func NewCleaner(sweeper AssignmentSweeper, audit AuditPruner, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sweeper:           sweeper,
		audit:             audit,
		retention:         defaultAuditRetentionDays,
		sweepSchedule:     defaultSweepSpec,
		auditSchedule:     defaultAuditSpec,
		ratePruneSchedule: defaultRatePruneSpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	jobs := 0

	if c.sweeper != nil {
		if _, err := c.cron.AddFunc(c.sweepSchedule, func() {
			_ = c.sweep(context.Background())
		}); err != nil {
			return err
		}
		jobs++
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			_ = c.pruneAudit(context.Background())
		}); err != nil {
			return err
		}
		jobs++
	}

	if c.rates != nil {
		if _, err := c.cron.AddFunc(c.ratePruneSchedule, func() {
			_ = c.pruneRates(context.Background())
		}); err != nil {
			return err
		}
		jobs++
	}

	if jobs == 0 {
		return nil
	}
	c.cron.Start()
	c.log.Info("maintenance scheduler started",
		zap.String("sweep_schedule", c.sweepSchedule),
		zap.String("audit_schedule", c.auditSchedule),
		zap.Int("audit_retention_days", c.retention),
	)
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured jobs sequentially. Used at startup and in tests.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if c.sweeper != nil {
		errs = multierr.Append(errs, c.sweep(ctx))
	}
	if c.audit != nil && c.retention > 0 {
		errs = multierr.Append(errs, c.pruneAudit(ctx))
	}
	if c.rates != nil {
		errs = multierr.Append(errs, c.pruneRates(ctx))
	}
	return errs
}

func (c *Cleaner) sweep(ctx context.Context) error {
	result, err := c.sweeper.SweepExpired(ctx)
	if err != nil {
		c.log.Warn("assignment sweep failed", zap.Error(err))
		return err
	}
	if result.Total() > 0 {
		c.log.Info("expired assignments deactivated",
			zap.Int64("policy_assignments", result.PolicyAssignments),
			zap.Int64("resource_assignments", result.ResourceAssignments),
		)
	}
	return nil
}

func (c *Cleaner) pruneAudit(ctx context.Context) error {
	removed, err := c.audit.CleanupOlderThan(ctx, c.retention)
	if err != nil {
		c.log.Warn("audit cleanup failed", zap.Error(err))
		return err
	}
	if removed > 0 {
		c.log.Debug("audit logs pruned", zap.Int64("removed", removed))
	}
	return nil
}

func (c *Cleaner) pruneRates(ctx context.Context) error {
	removed, err := c.rates.Prune(ctx)
	if err != nil {
		c.log.Warn("rate counter cleanup failed", zap.Error(err))
		return err
	}
	if removed > 0 {
		c.log.Debug("rate limit counters pruned", zap.Int64("removed", removed))
	}
	return nil
}
