package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/clearstate-inc/recon-engine/pkg/config"
	"github.com/clearstate-inc/recon-engine/pkg/database"
	"github.com/clearstate-inc/recon-engine/pkg/handlers"
	"github.com/clearstate-inc/recon-engine/pkg/logging"
	"github.com/clearstate-inc/recon-engine/pkg/middleware"
	"github.com/clearstate-inc/recon-engine/pkg/repositories"
	"github.com/clearstate-inc/recon-engine/pkg/services"
	"github.com/clearstate-inc/recon-engine/pkg/services/workqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load("config.yaml", Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Database),
		zap.String("rules_path", cfg.RulesPath))

	ctx := context.Background()

	// Migrations run through database/sql; the service itself uses pgx pools.
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	logger.Info("connecting to database",
		zap.String("dsn", logging.RedactDSN(cfg.Database.ConnectionString())))
	db, err := database.NewConnection(ctx, cfg.Database.ConnectionString(), cfg.Database.MaxConnections)
	if err != nil {
		logger.Fatal("failed to connect to database",
			zap.String("error", logging.RedactError(err)))
	}
	defer db.Close()

	catalog, err := services.LoadRuleCatalog(cfg.RulesPath)
	if err != nil {
		logger.Fatal("failed to load rule registry", zap.Error(err))
	}
	logger.Info("rule registry loaded",
		zap.Int("rules", catalog.Size()),
		zap.String("rules_version_hash", catalog.VersionHash()))

	// The capability descriptor is computed once here and injected. Rules
	// never probe the data layout during a run.
	poolCtx := database.WithQuerier(ctx, db.Pool)
	guard := services.NewSchemaGuard(cfg.OptionalFeatures, logger)
	capabilities, err := guard.Describe(poolCtx)
	if err != nil {
		logger.Fatal("failed to probe optional features", zap.Error(err))
	}

	chartRepo := repositories.NewChartRepository()
	lineItemRepo := repositories.NewLineItemRepository()
	sessionRepo := repositories.NewSessionRepository()
	diffRepo := repositories.NewDifferenceRepository()
	runRepo := repositories.NewValidationRunRepository()
	covenantRepo := repositories.NewCovenantRepository()

	chart, err := chartRepo.ListAll(poolCtx)
	if err != nil {
		logger.Fatal("failed to load chart of accounts", zap.Error(err))
	}
	logger.Info("chart of accounts loaded", zap.Int("entries", len(chart)))

	matcher := services.NewAccountMatcher(cfg.Matcher, chart)
	ingestService := services.NewIngestionService(matcher, lineItemRepo, logger)
	resolver := services.NewCovenantResolver(covenantRepo, cfg.Covenants, logger)
	recorder := services.NewComplianceRecorder(covenantRepo, logger)
	engine := services.NewRuleEngine(db, catalog, capabilities, resolver, recorder, lineItemRepo, chartRepo, runRepo, logger)
	reconService := services.NewReconciliationService(sessionRepo, diffRepo, logger)

	reservations := services.NewRunReservations()
	queue := workqueue.New(logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewLineItemsHandler(ingestService, logger).RegisterRoutes(mux)
	handlers.NewRunsHandler(engine, reservations, queue, runRepo, logger).RegisterRoutes(mux)
	handlers.NewSessionsHandler(reconService, logger).RegisterRoutes(mux)
	handlers.NewCovenantsHandler(recorder, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(handlers.QuerierMiddleware(db.Pool)(mux))

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting recon-engine", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
