package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgallion1/annoscope/internal/api"
	"github.com/dgallion1/annoscope/internal/chunker"
	"github.com/dgallion1/annoscope/internal/classify"
	"github.com/dgallion1/annoscope/internal/config"
	"github.com/dgallion1/annoscope/internal/parser"
	"github.com/dgallion1/annoscope/internal/pipeline"
	"github.com/dgallion1/annoscope/internal/positions"
	"github.com/dgallion1/annoscope/internal/scopestore"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := pipeline.NewMetrics(reg)

	// Scope persistence.
	var scopes scopestore.Store
	var redisStore *scopestore.RedisStore
	if cfg.RedisURL != "" {
		rs, err := scopestore.NewRedisStore(cfg.RedisURL, cfg.ScopeTTL)
		if err != nil {
			log.Error("connect redis", "error", err)
			os.Exit(1)
		}
		redisStore = rs
		scopes = rs
	} else {
		log.Warn("REDIS_URL not set, scopes are kept in memory")
		scopes = scopestore.NewMemoryStore(cfg.ScopeTTL)
	}

	// Optional backends.
	cacheCfg := pipeline.CacheConfig{
		Parser: parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext},
	}
	var stats *classify.LLMStats
	var claude *classify.ClaudeClient
	if cfg.ClassificationEnabled() {
		stats = classify.NewLLMStats(time.Hour)
		claude = classify.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel,
			classify.WithRetries(cfg.ClassifyMaxRetries, time.Second),
			classify.WithBatchTokens(cfg.ClassifyBatchTokens),
			classify.WithStats(stats),
			classify.WithLogger(log),
		)
		cacheCfg.Classifier = claude
	} else {
		log.Warn("ANTHROPIC_API_KEY not set, classification disabled")
	}
	var ps *positions.Client
	if cfg.PositionsURL != "" {
		chunking := chunker.DefaultConfig()
		chunking.ChunkSize = cfg.DefaultChunkSize
		ps = positions.NewClient(cfg.PositionsURL, cfg.PositionsAPIKey, chunking, log)
		cacheCfg.Positions = ps
	}

	// Sessions.
	registry := pipeline.NewRegistry(pipeline.RegistryConfig{
		TTL:     cfg.SessionTTL,
		Cache:   cacheCfg,
		Metrics: metrics,
		OnEvict: func(sessionID string) {
			if err := scopes.Delete(context.Background(), sessionID); err != nil {
				log.Warn("delete scope failed", "session_id", sessionID, "error", err)
			}
		},
	}, log)
	go registry.Run(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{
		Registry: registry,
		Scopes:   scopes,
		Stats:    stats,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		if claude != nil {
			claude.Close()
		}
		if ps != nil {
			ps.Close()
		}
		if redisStore != nil {
			redisStore.Close()
		}
	}()

	log.Info("starting annoscope", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
