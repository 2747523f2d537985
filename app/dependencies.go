package app

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"go.uber.org/zap"

	"github.com/upb/safety-control-plane/auth"
	"github.com/upb/safety-control-plane/config"
	"github.com/upb/safety-control-plane/handlers"
	"github.com/upb/safety-control-plane/middleware"
	"github.com/upb/safety-control-plane/repositories/postgres"
	"github.com/upb/safety-control-plane/services/approval"
	"github.com/upb/safety-control-plane/services/audit"
	"github.com/upb/safety-control-plane/services/emergency"
	"github.com/upb/safety-control-plane/services/permission"
	"github.com/upb/safety-control-plane/services/policy"
	"github.com/upb/safety-control-plane/services/risk"
	"github.com/upb/safety-control-plane/services/safety"
	"github.com/upb/safety-control-plane/services/sentinel"
	"github.com/upb/safety-control-plane/services/watchdog"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB

	// Core subsystem
	Policies   *policy.Store
	Emergency  *emergency.State
	Audit      *audit.Service
	Workflow   *approval.Workflow
	Watchdog   *watchdog.Watchdog
	Sentinel   *sentinel.Sentinel
	Controller *safety.Controller

	// Auth
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initPolicies(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize policy store: %w", err)
	}

	if err := deps.initAudit(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize audit pipeline: %w", err)
	}

	deps.initWorkflow(cfg)
	deps.initMonitors(cfg)
	deps.initAuth(cfg)

	deps.Controller = safety.NewController(
		deps.Policies,
		deps.Workflow,
		deps.Audit,
		deps.Emergency,
		deps.Watchdog,
		deps.Sentinel,
		logger,
	)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initPolicies loads the policy store and creates the emergency-stop state
func (d *Dependencies) initPolicies(ctx context.Context, cfg *config.Config) error {
	store := policy.NewStore(cfg.Policy.ConfigPath, d.Logger)
	if err := store.Load(ctx); err != nil {
		return err
	}
	d.Policies = store
	d.Emergency = emergency.NewState()

	d.Logger.Info("policy store loaded",
		zap.String("path", cfg.Policy.ConfigPath),
		zap.String("active_policy", store.ActiveName()))
	return nil
}

// initAudit builds the audit service with its durable sinks. The file
// sink is always attached; the PostgreSQL mirror only when a DSN is set.
func (d *Dependencies) initAudit(ctx context.Context, cfg *config.Config) error {
	sinks := make([]audit.Sink, 0, 2)

	fileSink, err := audit.NewFileSink(cfg.Audit.LogPath)
	if err != nil {
		return err
	}
	sinks = append(sinks, fileSink)

	if cfg.Audit.DatabaseURL != "" {
		db, err := postgres.NewDB(cfg.Audit.DatabaseURL, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect audit database: %w", err)
		}
		repo := postgres.NewAuditRepository(db, d.Logger)
		if err := repo.InitSchema(ctx); err != nil {
			db.Close()
			return fmt.Errorf("failed to initialize audit schema: %w", err)
		}
		d.DB = db
		sinks = append(sinks, repo)
		d.Logger.Info("audit database mirror enabled")
	}

	d.Audit = audit.NewService(audit.Config{
		MemoryCap:   cfg.Audit.MemoryCap,
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	}, d.Logger, sinks...)

	d.Logger.Info("audit pipeline initialized",
		zap.String("log_path", cfg.Audit.LogPath),
		zap.Int("sinks", len(sinks)))
	return nil
}

// initWorkflow builds the evaluator, risk assessor and approval workflow
func (d *Dependencies) initWorkflow(cfg *config.Config) {
	evaluator := permission.NewEvaluator(d.Policies, d.Emergency)
	assessor := risk.NewAssessor(cfg.Risk.LargeFileThreshold)

	d.Workflow = approval.NewWorkflow(approval.Config{
		MaxRiskOperations:     cfg.Approval.MaxRiskOperations,
		MaxOverrideOperations: cfg.Approval.MaxOverrideOperations,
		ConfirmTimeout:        cfg.Approval.ConfirmTimeout,
	}, d.Policies, evaluator, assessor, d.Audit, d.Logger)

	d.Logger.Info("approval workflow initialized",
		zap.Int("max_risk_operations", cfg.Approval.MaxRiskOperations),
		zap.Int("max_override_operations", cfg.Approval.MaxOverrideOperations))
}

// initMonitors builds the resource watchdog and the download sentinel.
// The sentinel is skipped entirely when no directories are configured.
func (d *Dependencies) initMonitors(cfg *config.Config) {
	sampler := watchdog.NewHostSampler(cfg.Watchdog.DiskPath)
	d.Watchdog = watchdog.New(watchdog.Config{
		Interval:        cfg.Watchdog.Interval,
		MemoryThreshold: cfg.Watchdog.MemoryThreshold,
		CPUThreshold:    cfg.Watchdog.CPUThreshold,
	}, sampler, d.Emergency, d.Audit, d.Logger)

	if len(cfg.Sentinel.Directories) == 0 {
		d.Logger.Warn("no watched directories configured, download sentinel disabled")
		return
	}
	d.Sentinel = sentinel.New(sentinel.Config{
		Directories: cfg.Sentinel.Directories,
		Interval:    cfg.Sentinel.Interval,
		MaxFileAge:  cfg.Sentinel.MaxFileAge,
		MaxFileSize: cfg.Sentinel.MaxFileSize,
	}, afs.New(), d.Audit, d.Logger)

	d.Logger.Info("download sentinel initialized",
		zap.Strings("directories", cfg.Sentinel.Directories))
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if cfg.Auth.Secret == "" {
		d.Logger.Warn("auth secret not configured, protected routes will reject all tokens")
		d.AuthMiddleware = middleware.NewAuthMiddleware(&rejectAllValidator{}, d.Logger)
		return
	}
	validator := auth.NewValidator(cfg.Auth.Secret, cfg.Auth.Issuer)
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("token validator initialized", zap.String("issuer", cfg.Auth.Issuer))
}

// rejectAllValidator rejects all tokens (used when no signing secret is set)
type rejectAllValidator struct{}

func (*rejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, fmt.Errorf("authentication not configured")
}

// ReadinessChecker exposes the optional audit database for the readiness
// probe. A nil interface is returned when no database is configured.
func (d *Dependencies) ReadinessChecker() handlers.HealthChecker {
	if d.DB == nil {
		return nil
	}
	return d.DB
}

// Start launches the audit pipeline and the background monitors
func (d *Dependencies) Start(ctx context.Context) error {
	return d.Controller.Start(ctx)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Controller != nil {
		if err := d.Controller.Stop(d.Config.Server.ShutdownTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop safety controller: %w", err))
		}
	}

	// Sinks are closed by the audit service; the audit DB handle is shared
	// with the readiness probe and closed here.
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close audit database: %w", err))
		} else {
			d.Logger.Info("audit database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}
