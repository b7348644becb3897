package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/upb/inventory-authz/config"
	"github.com/upb/inventory-authz/internal/auth"
	"github.com/upb/inventory-authz/internal/observability"
	"github.com/upb/inventory-authz/middleware"
	"github.com/upb/inventory-authz/repositories"
	"github.com/upb/inventory-authz/repositories/memory"
	"github.com/upb/inventory-authz/repositories/postgres"
	"github.com/upb/inventory-authz/services/audit"
	"go.uber.org/zap"
)

// auditBatchSize caps how many decisions one worker writes per store call.
const auditBatchSize = 50

// minAuditStopTimeout is the least time Close gives the audit queue to drain,
// even when ctx is already past its deadline.
const minAuditStopTimeout = time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil unless audit decisions go to PostgreSQL
	Logger *zap.Logger

	// Metrics; both nil when metrics are disabled
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	// Authorization
	Codec          *auth.TokenCodec
	Validator      *auth.AccessValidator
	Authz          *auth.Service
	AuthMiddleware *middleware.AuthMiddleware

	// Audit; both nil when auditing is disabled
	AuditLogs repositories.AuditRepository
	Audit     *audit.Service
}

// NewDependencies creates and wires up all application dependencies. Any
// misconfiguration of the authorization tables is returned as an error.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initMetrics(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize authorization: %w", err)
	}

	if err := deps.initAudit(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize audit: %w", err)
	}

	opts := []auth.ServiceOption{auth.WithMetrics(deps.Metrics)}
	if deps.Audit != nil {
		opts = append(opts, auth.WithObserver(deps.Audit))
	}
	deps.Authz = auth.NewService(deps.Codec, deps.Validator, logger, opts...)
	deps.AuthMiddleware = middleware.NewAuthMiddleware(deps.Authz, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initMetrics creates a private registry so that /metrics exposes exactly
// what this process registered.
func (d *Dependencies) initMetrics(cfg *config.Config) error {
	if !cfg.Observability.MetricsEnabled {
		d.Logger.Info("metrics disabled")
		return nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := observability.NewMetrics(cfg.Observability.MetricsNamespace, registry)
	if err != nil {
		return err
	}

	d.Registry = registry
	d.Metrics = metrics
	return nil
}

// initAuth builds the codec and the immutable permission and route tables
func (d *Dependencies) initAuth(cfg *config.Config) error {
	codec, err := auth.NewTokenCodec(auth.CodecConfig{
		Secret:         cfg.Auth.SecretKey,
		Algorithm:      cfg.Auth.Algorithm,
		MinTokenLength: cfg.Auth.MinTokenLength,
	})
	if err != nil {
		return err
	}

	permissions, err := auth.NewPermissionTable(auth.DefaultGrants())
	if err != nil {
		return fmt.Errorf("invalid permission table: %w", err)
	}

	rules, public := auth.DefaultRouteRules(), auth.DefaultPublicRoutes()
	if path := cfg.Auth.RoutePolicyFile; path != "" {
		policy, err := auth.LoadRoutePolicy(path)
		if err != nil {
			return err
		}
		rules = policy.Routes
		if len(policy.Public.Exact) > 0 || len(policy.Public.Prefixes) > 0 {
			public = policy.Public
		}
		d.Logger.Info("loaded route policy",
			zap.String("path", path),
			zap.Int("routes", len(rules)))
	}

	routes, err := auth.NewRouteTable(rules)
	if err != nil {
		return fmt.Errorf("invalid route table: %w", err)
	}

	d.Codec = codec
	d.Validator = auth.NewAccessValidator(permissions, routes, auth.NewPublicRouteSet(public), auth.InternalRequestConfig{
		MarkerHeader:  cfg.Auth.InternalHeader,
		TokenHeader:   cfg.Auth.GatewayTokenHeader,
		ExpectedToken: cfg.Auth.GatewayToken,
	})

	if cfg.Auth.GatewayToken == "" {
		d.Logger.Warn("gateway token not configured, internal requests are trusted on headers alone")
	}
	d.Logger.Info("authorization initialized", zap.String("algorithm", codec.Algorithm()))
	return nil
}

// initAudit picks the audit store and starts the recorder
func (d *Dependencies) initAudit(ctx context.Context, cfg *config.Config) error {
	if !cfg.Audit.Enabled {
		d.Logger.Info("decision audit disabled")
		return nil
	}

	if cfg.Database != nil {
		db, err := postgres.NewDB(ctx, *cfg.Database, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := db.InitSchema(ctx); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to initialize audit schema: %w", err)
		}
		d.DB = db
		d.AuditLogs = postgres.NewAuditRepository(db, d.Logger)
		d.Logger.Info("audit decisions stored in postgres",
			zap.String("connection", cfg.Database.LogString()))
	} else {
		d.AuditLogs = memory.NewAuditRepository(cfg.Audit.MemoryCapacity)
		d.Logger.Info("audit decisions kept in memory",
			zap.Int("capacity", cfg.Audit.MemoryCapacity))
	}

	d.Audit = audit.NewService(d.AuditLogs, d.Logger, d.Metrics, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.Workers,
		BatchSize:   auditBatchSize,
		LogAllowed:  cfg.Audit.LogAllowed,
	})
	if err := d.Audit.Start(); err != nil {
		if d.DB != nil {
			_ = d.DB.Close()
		}
		return err
	}
	return nil
}

// Close gracefully shuts down all dependencies. Queued audit decisions are
// flushed before the database is closed.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Audit != nil {
		timeout := d.Config.Server.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if timeout < minAuditStopTimeout {
			timeout = minAuditStopTimeout
		}
		if err := d.Audit.Stop(timeout); err != nil && !errors.Is(err, audit.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}
