package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/policyhub/internal/api"
	"github.com/charlesng35/policyhub/internal/app"
	"github.com/charlesng35/policyhub/internal/app/maintenance"
	iauth "github.com/charlesng35/policyhub/internal/auth"
	"github.com/charlesng35/policyhub/internal/database"
	"github.com/charlesng35/policyhub/internal/middleware"
	"github.com/charlesng35/policyhub/internal/permissions"
	"github.com/charlesng35/policyhub/internal/services"
	"github.com/charlesng35/policyhub/pkg/logger"
)

const (
	bootstrapAdminPolicy   = "PermissionAdministrator"
	bootstrapAdminResource = "permissions_full_access"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Manager   *permissions.Manager
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, permission core, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	conditions, err := permissions.NewConditionEvaluator(cfg.Permissions.Conditions.Engine)
	if err != nil {
		return nil, fmt.Errorf("initialise condition engine: %w", err)
	}

	store, err := permissions.NewGormStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise permission store: %w", err)
	}

	stack.Manager, err = permissions.NewManager(store,
		permissions.WithConditionValidator(conditions),
		permissions.WithManagerLogger(logger.WithModule("permissions")),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise permission manager: %w", err)
	}

	if cfg.Permissions.SeedDefaults {
		seeded, err := stack.Manager.Seed(ctx)
		if err != nil {
			return nil, fmt.Errorf("seed default permissions: %w", err)
		}
		log.Info("default permissions seeded",
			zap.Int("policies", len(seeded.Policies)),
			zap.Int("resource_permissions", len(seeded.ResourcePermissions)),
		)
	}

	if err := grantBootstrapAdmins(ctx, stack.Manager, cfg.Permissions.BootstrapAdmins, log); err != nil {
		return nil, err
	}

	mode, err := permissions.ParseMode(cfg.Permissions.Mode)
	if err != nil {
		return nil, err
	}
	decider, err := permissions.NewDecider(mode, stack.Manager, permissions.WithConditions(conditions))
	if err != nil {
		return nil, fmt.Errorf("initialise decider: %w", err)
	}

	auditSvc, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}
	policySvc, err := services.NewPolicyService(stack.Manager, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise policy service: %w", err)
	}
	resourceSvc, err := services.NewResourcePermissionService(stack.Manager, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise resource permission service: %w", err)
	}
	assignmentSvc, err := services.NewAssignmentService(stack.Manager, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise assignment service: %w", err)
	}

	stack.RateStore, err = newRateStore(cfg.Server.RateLimit, stack.DB)
	if err != nil {
		return nil, err
	}

	cleanerOpts := []maintenance.Option{
		maintenance.WithSweepSchedule(cfg.Maintenance.SweepSchedule),
		maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithRatePruneSchedule(cfg.Maintenance.RatePruneSchedule),
	}
	if pruner, ok := stack.RateStore.(maintenance.RatePruner); ok {
		cleanerOpts = append(cleanerOpts, maintenance.WithRatePruner(pruner))
	}
	stack.Cleaner = maintenance.NewCleaner(assignmentSvc, auditSvc, cleanerOpts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:              cfg,
		Verifier:            jwtSvc,
		Manager:             stack.Manager,
		Decider:             decider,
		Policies:            policySvc,
		ResourcePermissions: resourceSvc,
		Assignments:         assignmentSvc,
		Audit:               auditSvc,
		RateStore:           stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	log.Info("permission core ready", zap.String("mode", string(mode)))
	success = true
	return stack, nil
}

// grantBootstrapAdmins gives each configured user full control over the
// permission system under both models. Existing grants are left untouched.
func grantBootstrapAdmins(ctx context.Context, manager *permissions.Manager, userIDs []string, log *zap.Logger) error {
	var errs error
	for _, raw := range userIDs {
		userID := strings.TrimSpace(raw)
		if userID == "" {
			continue
		}

		_, err := manager.AssignPolicy(ctx, permissions.AssignInput{
			UserID:   userID,
			TargetID: bootstrapAdminPolicy,
			Notes:    "bootstrap administrator",
		})
		if err != nil && !errors.Is(err, permissions.ErrDuplicateAssignment) {
			errs = multierr.Append(errs, fmt.Errorf("bootstrap admin %s: %w", userID, err))
		}

		_, err = manager.AssignResourcePermission(ctx, permissions.AssignInput{
			UserID:   userID,
			TargetID: bootstrapAdminResource,
			Notes:    "bootstrap administrator",
		})
		if err != nil && !errors.Is(err, permissions.ErrDuplicateAssignment) {
			errs = multierr.Append(errs, fmt.Errorf("bootstrap admin %s: %w", userID, err))
		}

		log.Info("bootstrap administrator ready", zap.String("user_id", userID))
	}
	return errs
}

func newRateStore(cfg app.RateLimitConfig, db *gorm.DB) (middleware.RateStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "memory":
		return middleware.NewMemoryRateStore(nil), nil
	case "database":
		store, err := middleware.NewDatabaseRateStore(db, nil)
		if err != nil {
			return nil, fmt.Errorf("initialise rate limit store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported rate limit backend %q", cfg.Backend)
	}
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			<-stopCtx.Done()
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
