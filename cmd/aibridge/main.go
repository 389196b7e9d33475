package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/pqminh/aibridge/config"
	"github.com/pqminh/aibridge/internal/auth"
	"github.com/pqminh/aibridge/internal/provider"
	"github.com/pqminh/aibridge/internal/provider/anthropic"
	"github.com/pqminh/aibridge/internal/provider/azure"
	"github.com/pqminh/aibridge/internal/provider/custom"
	"github.com/pqminh/aibridge/internal/provider/openai"
	"github.com/pqminh/aibridge/internal/seeder"
	"github.com/pqminh/aibridge/internal/server"
	"github.com/pqminh/aibridge/internal/telemetry"
	"github.com/pqminh/aibridge/internal/usage"
	"github.com/pqminh/aibridge/pkg/logging"
	"github.com/pqminh/aibridge/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", false)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.LogLevel, os.Getenv("LOG_PRETTY") == "true")

	shutdownTracer, err := telemetry.InitTracer("aibridge", cfg.OTELExporterType, cfg.OTELExporterEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracer")
	}
	defer shutdownTracer()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping postgres")
	}
	log.Info().Msg("postgres connected")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to ping redis")
	}
	log.Info().Msg("redis connected")

	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb, log)

	usageStore := usage.NewPostgresStore(pool)
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitTPM)

	registry := provider.NewRegistry(log)
	definitions := map[string]provider.Definition{
		"openai":    openai.Definition(),
		"anthropic": anthropic.Definition(),
		"azure":     azure.Definition(),
		"custom":    custom.Definition(),
	}
	for name, def := range definitions {
		if err := registry.Register(name, def); err != nil {
			log.Fatal().Err(err).Str("provider", name).Msg("failed to register provider")
		}
	}

	cfgs := cfg.ProviderConfigs()
	availability := registry.Availability(cfgs)

	providers := make(map[string]provider.Provider)
	for name, ok := range availability {
		if !ok {
			log.Info().Str("provider", name).Msg("provider not configured, skipping")
			continue
		}
		p, err := registry.Create(name, cfgs[name])
		if err != nil {
			log.Warn().Err(err).Str("provider", name).Msg("provider rejected at startup")
			continue
		}
		providers[name] = provider.WithRetry(p, cfgs[name], log)
	}
	log.Info().Int("providers", len(providers)).Msg("provider pool ready")

	router := server.NewRouter(providers)
	tracer := otel.GetTracerProvider().Tracer("aibridge")
	handler := server.NewHandler(router, registry, cfgs, usageStore, limiter, tracer, log, server.Defaults{
		Model:       cfg.DefaultModel,
		Temperature: cfg.DefaultTemperature,
		MaxTokens:   cfg.DefaultMaxTokens,
	})

	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestAPIKey(ctx, authStore, log)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"aibridge"}`))
	})
	r.Get("/api/providers", handler.HandleProviders)
	r.Post("/api/estimate", handler.HandleEstimate)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/api/generate", handler.HandleGenerate)
		r.Get("/api/usage", handler.HandleUsage)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("aibridge starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-quit
	log.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}
