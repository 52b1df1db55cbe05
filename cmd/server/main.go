// Copyright 2026 The Authzd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/authzd/authzd/internal/audit"
	"github.com/authzd/authzd/internal/authz"
	"github.com/authzd/authzd/internal/cache"
	"github.com/authzd/authzd/internal/config"
	"github.com/authzd/authzd/internal/observability/logger"
	"github.com/authzd/authzd/internal/observability/metrics"
	"github.com/authzd/authzd/internal/observability/tracing"
	"github.com/authzd/authzd/internal/policy"
	"github.com/authzd/authzd/internal/rbac"
	"github.com/authzd/authzd/internal/store/postgres"
	"github.com/authzd/authzd/internal/tenant"
	transportHTTP "github.com/authzd/authzd/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting authzd decision service")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
	}
	var decisionMetrics *metrics.DecisionMetrics
	if meter != nil {
		decisionMetrics, err = metrics.NewDecisionMetrics(meter)
		if err != nil {
			slog.Error("failed to register decision metrics", logger.Error(err))
		}
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize cache backend
	var backend cache.Cache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisCache := cache.NewRedisCache(cache.RedisCacheConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Timeout:   cfg.Redis.Timeout,
		})
		if err := redisCache.Ping(ctx); err != nil {
			slog.Error("failed to connect to redis", logger.Error(err))
			os.Exit(1)
		}
		backend = redisCache
		redisClient = redisCache.Client()
		slog.Info("connected to redis")
	} else {
		backend = cache.NewInMemoryCache()
		slog.Info("using in-memory decision cache")
	}
	instrumented := cache.NewInstrumented(backend)
	defer instrumented.Close()
	// Invalidation runs through the instrumented wrapper so its deletes
	// show up in the cache stats.
	invalidator := cache.NewInvalidator(instrumented, redisClient)

	// Subscribe to mutation events from the management plane
	go invalidator.Listen(ctx)
	defer invalidator.Close()

	// Initialize repositories
	roleRepo := postgres.NewRoleRepository(db)
	policyRepo := postgres.NewPolicyRepository(db)
	principalRepo := postgres.NewPrincipalRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Initialize decision pipeline
	resolver := rbac.NewResolver(roleRepo, instrumented, cfg.Cache.RoleTTL)
	engine := policy.NewEngine(policyRepo, instrumented, cfg.Cache.PolicyTTL)
	tenantService := tenant.NewService(tenantRepo, instrumented, cfg.Cache.TenantTTL)
	chain := audit.NewChainLogger(auditRepo, cfg.Audit.AppendTimeout)
	limiter := authz.NewKeyedLimiter(cfg.RateLimit.PrincipalRPS, cfg.RateLimit.PrincipalBurst)

	evaluator := authz.NewEvaluator(authz.Options{
		Limiter:    limiter,
		Cache:      instrumented,
		Tenants:    tenantService,
		Principals: principalRepo,
		Resolver:   resolver,
		Engine:     engine,
		Chain:      chain,
		Metrics:    decisionMetrics,
		TTLs: cache.TTLs{
			Decision: cfg.Cache.DecisionTTL,
			Roles:    cfg.Cache.RoleTTL,
			Policies: cfg.Cache.PolicyTTL,
			Tenant:   cfg.Cache.TenantTTL,
		},
	})

	// Rate limiter for the transport edge
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.IPRPS, cfg.RateLimit.IPBurst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(evaluator, auditRepo, instrumented, invalidator)
	router := transportHTTP.NewRouter(handler, rateLimiter)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", logger.Error(err))
	}

	slog.Info("server stopped")
}

// runMigrate applies the embedded schema and exits.
func runMigrate(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	slog.Info("schema applied")
	return nil
}
