package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gtipricing/backend/internal/audit"
	"gtipricing/backend/internal/cache"
	"gtipricing/backend/internal/config"
	"gtipricing/backend/internal/httpapi"
	"gtipricing/backend/internal/logging"
	"gtipricing/backend/internal/pricing"
	"gtipricing/backend/internal/service"
	"gtipricing/backend/internal/store"
	"gtipricing/backend/internal/store/memory"
	pgstore "gtipricing/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := validateSecurityConfig(*cfg); err != nil {
		logger.Error("invalid security configuration", "error", err)
		os.Exit(1)
	}
	policy, err := pricing.ParsePolicy(cfg.ConflictPolicy)
	if err != nil {
		logger.Error("invalid pricing configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("repository unavailable; refusing to start with in-memory fallback", "error", err)
		os.Exit(1)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	ruleCache, closeCache, err := openRuleCache(ctx, cfg, logger)
	if err != nil {
		logger.Error("rule cache unavailable", "error", err)
		os.Exit(1)
	}
	if closeCache != nil {
		closers = append(closers, closeCache)
	}
	rules := cache.NewCachedRules(repo, ruleCache, cfg.RuleCacheTTL, logger)
	if err := rules.Invalidate(ctx); err != nil {
		logger.Warn("could not clear cached rules at startup", "error", err)
	}

	sinks := audit.Multi{audit.NewStoreSink(repo)}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		sinks = append(sinks, kafkaSink)
		closers = append(closers, kafkaSink.Close)
		logger.Info("audit: kafka enabled", "topic", cfg.KafkaAuditTopic)
	}

	svc := service.New(service.Deps{
		Catalog: repo,
		Rules:   rules,
		Audit:   sinks,
		Options: pricing.Options{Policy: policy, ExclusivePromotions: cfg.ExclusivePromotions},
		Logger:  logger,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AuthIssuer)
	if !auth.Enabled() {
		logger.Warn("AUTH_SECRET is not set; pricing routes are unauthenticated")
	}
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:      cfg.AllowedOrigin,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RequestTimeout:     cfg.RequestTimeout,
		Logger:             logger,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("pricing backend listening", "addr", cfg.Address(), "policy", policy)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("server stopped")
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if cfg.DatabaseAutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
	}
	logger.Info("repository: postgres", "auto_migrate", cfg.DatabaseAutoMigrate)
	return pg, pg.Close, nil
}

// openRuleCache falls back to no caching when redis cannot be reached, since
// rules can always be read from the repository.
func openRuleCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.RuleCache, func() error, error) {
	switch cfg.CacheProvider {
	case "none":
		logger.Info("rule cache: disabled")
		return cache.NoopRuleCache{}, nil, nil
	case "redis":
		redisCache := cache.NewRedisRuleCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			_ = redisCache.Close()
			logger.Warn("redis unavailable, rule cache disabled", "error", err)
			return cache.NoopRuleCache{}, nil, nil
		}
		logger.Info("rule cache: redis", "addr", cfg.RedisAddr)
		return redisCache, redisCache.Close, nil
	default:
		memCache, err := cache.NewMemoryRuleCache(cfg.RuleCacheSize)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("rule cache: memory", "size", cfg.RuleCacheSize)
		return memCache, nil, nil
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if cfg.AuthSecret != "" && len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters when set")
	}
	return nil
}
