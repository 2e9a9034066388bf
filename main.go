package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/matriflow/matriflow-engine/pkg/config"
	"github.com/matriflow/matriflow-engine/pkg/database"
	"github.com/matriflow/matriflow-engine/pkg/handlers"
	"github.com/matriflow/matriflow-engine/pkg/middleware"
	"github.com/matriflow/matriflow-engine/pkg/repositories"
	"github.com/matriflow/matriflow-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("database", cfg.Database.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("diff_cache_ttl_minutes", cfg.Diff.CacheTTLMinutes))

	ctx := context.Background()

	// Migrations run over database/sql; the service itself uses pgxpool.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	migrationDB.Close()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	var diffCache services.DiffCache
	if redisClient != nil {
		diffCache = services.NewRedisDiffCache(redisClient, cfg.Diff.CacheTTL(), logger)
		logger.Info("Using Redis diff cache")
	} else {
		diffCache = services.NewMemoryDiffCache(cfg.Diff.CacheTTL(), cfg.Diff.CacheMaxEntries)
		logger.Info("Using in-memory diff cache",
			zap.Int("max_entries", cfg.Diff.CacheMaxEntries))
	}

	matrixRepo := repositories.NewMatrixRepository(db)
	diffEngine := services.NewDiffEngine(logger)
	analyzer := services.NewImpactAnalyzer(logger)
	exporter := services.NewDiffExporter()
	paginator := services.NewDiffPaginator(analyzer)
	statsAggregator := services.NewVersionStatsAggregator(diffEngine, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	matrixHandler := handlers.NewMatrixHandler(matrixRepo, logger)
	matrixHandler.RegisterRoutes(mux)

	diffHandler := handlers.NewDiffHandler(
		matrixRepo, diffEngine, analyzer, exporter, paginator, statsAggregator, diffCache, logger)
	diffHandler.RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting matriflow-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
