package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/af-corp/conduit/internal/auth"
	"github.com/af-corp/conduit/internal/config"
	"github.com/af-corp/conduit/internal/enrich"
	"github.com/af-corp/conduit/internal/extract"
	"github.com/af-corp/conduit/internal/gateway"
	"github.com/af-corp/conduit/internal/handle"
	"github.com/af-corp/conduit/internal/knowledge"
	"github.com/af-corp/conduit/internal/pipeline"
	"github.com/af-corp/conduit/internal/policy"
	"github.com/af-corp/conduit/internal/process"
	"github.com/af-corp/conduit/internal/ratelimit"
	"github.com/af-corp/conduit/internal/search"
	"github.com/af-corp/conduit/internal/telemetry"
	"github.com/af-corp/conduit/internal/upstream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(bootLogger)

	// Load configuration
	loader := config.NewLoader(*configDir, bootLogger)
	if err := loader.Load(); err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfg := loader.Config()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Telemetry.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (gateway will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (auth cache disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	// Knowledge index
	var searcher knowledge.Searcher
	if cfg.Knowledge.Host != "" {
		ws, err := knowledge.NewWeaviateSearcher(cfg.Knowledge)
		if err != nil {
			logger.Warn("knowledge index unavailable (retrieval disabled)", "error", err)
		} else {
			searcher = ws
			logger.Info("knowledge index configured", "host", cfg.Knowledge.Host)
		}
	}

	// File content extractor
	var summarizer extract.Summarizer
	if cfg.Extractor.Enabled {
		ec := extract.NewClient(cfg.Extractor)
		if err := ec.Connect(); err != nil {
			logger.Warn("extractor unavailable (file parts will fail)", "error", err)
		} else {
			summarizer = ec
			defer ec.Close()
			logger.Info("extractor connected", "address", cfg.Extractor.Address)
		}
	}

	// Access policies
	evaluator := policy.NewEvaluator(func() config.PolicyConfig {
		return loader.Config().Policy
	})
	if evaluator.Enabled() {
		if err := evaluator.Load(); err != nil {
			logger.Error("failed to load access policies", "error", err)
			os.Exit(1)
		}
		loader.OnReload(func() {
			if err := evaluator.Load(); err != nil {
				logger.Error("policy reload failed, keeping previous policies", "error", err)
			}
		})
		logger.Info("access policies loaded", "path", cfg.Policy.BundlePath)
	}

	// Upstream services
	completer := upstream.NewClient(cfg.Upstream)
	agentRunner := upstream.NewAgentRunner(cfg.Agent)
	classifier := enrich.NewOpenAIClassifier(cfg.Upstream)
	webSearch := search.NewHTTPClient(cfg.Search)

	// Pipeline: processors, enrichers, then handlers in fallback order.
	engine := pipeline.NewEngine(
		process.NewFileProcessor(summarizer),
		process.NewImageProcessor(),
		enrich.NewRetrieval(searcher, cfg.Knowledge.Timeout),
		enrich.NewToolRouting(classifier, webSearch),
		enrich.NewAgentMode(),
		handle.NewAgentHandler(agentRunner),
		handle.NewStandardHandler(completer, loader.Models),
	)

	metrics := telemetry.NewMetrics()
	engine.OnStage(func(stage string, d time.Duration) {
		metrics.RecordStage(stage, float64(d.Microseconds())/1000)
	})
	engine.OnHandler(metrics.RecordHandler)

	limiter := ratelimit.NewLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	limiter.StartSweep(sweepCtx, cfg.RateLimit.SweepInterval, cfg.RateLimit.SweepGrace)

	keyStore := auth.NewCachedKeyStore(dbPool, rdb)
	handler := gateway.NewHandler(engine, evaluator, loader.Models, metrics, version)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	// Unauthenticated routes
	r.Get("/conduit/v1/health", handler.Health)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(keyStore))
		r.Use(ratelimit.Middleware(limiter, metrics))
		r.Post("/v1/chat", handler.Chat)
		r.Get("/v1/models", handler.ListModels)
	})

	// Metrics on a separate listener so it is never exposed with the API.
	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			logger.Info("metrics listener starting", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("conduit starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("conduit stopped")
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}
