// Command server starts the MSME loan scorer HTTP server.
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

	ai "github.com/fairyhunter13/msme-loan-scorer/internal/adapter/ai"
	realai "github.com/fairyhunter13/msme-loan-scorer/internal/adapter/ai/real"
	rediscache "github.com/fairyhunter13/msme-loan-scorer/internal/adapter/cache/redis"
	httpserver "github.com/fairyhunter13/msme-loan-scorer/internal/adapter/httpserver"
	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/observability"
	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/rag"
	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/repo/memory"
	"github.com/fairyhunter13/msme-loan-scorer/internal/adapter/repo/postgres"
	qdrantcli "github.com/fairyhunter13/msme-loan-scorer/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/msme-loan-scorer/internal/app"
	"github.com/fairyhunter13/msme-loan-scorer/internal/citation"
	"github.com/fairyhunter13/msme-loan-scorer/internal/config"
	"github.com/fairyhunter13/msme-loan-scorer/internal/domain"
	"github.com/fairyhunter13/msme-loan-scorer/internal/metadata"
	"github.com/fairyhunter13/msme-loan-scorer/internal/rerank"
	"github.com/fairyhunter13/msme-loan-scorer/internal/usecase"
)

// embeddingDims matches the text-embedding-3-small vector size used at
// ingestion time.
const embeddingDims = 1536

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	// Assessment persistence: Postgres when configured, in-memory otherwise.
	var assessRepo domain.AssessmentRepository
	var dbPinger app.Pinger
	if cfg.DBURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			slog.Error("db connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		assessRepo = postgres.NewAssessmentRepo(pool)
		dbPinger = pool
	} else {
		slog.Warn("DB_URL not set, assessments held in memory only")
		assessRepo = memory.NewAssessmentRepo()
	}

	// AI client with embedding cache.
	aicl := ai.NewEmbedCache(realai.New(cfg), cfg.EmbedCacheSize)

	// Retrieval: qdrant-backed engine plus the metadata side files written at
	// ingestion time.
	qcli := qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey)
	engine := rag.New(aicl, qcli, cfg.QdrantCollection, embeddingDims)
	caches := metadata.Load(cfg.WorkingDir)

	// Generated-answer cache (optional).
	var answers domain.AnswerCache
	var redisPinger app.Pinger
	if cfg.RedisURL != "" {
		ac, err := rediscache.New(cfg.RedisURL, cfg.AnswerCacheTTL)
		if err != nil {
			slog.Error("redis connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		answers = ac
		redisPinger = ac
	} else {
		slog.Warn("REDIS_URL not set, generated answers are not cached")
	}

	var resolverOpts []citation.Option
	if cfg.DisablePositionalCitations {
		resolverOpts = append(resolverOpts, citation.WithoutPositionalFallback())
	}
	resolver := citation.NewResolver(resolverOpts...)

	searchSvc := usecase.NewSearchService(engine, caches, resolver, rerank.New(aicl), answers)
	recommendSvc := usecase.NewRecommendService(searchSvc, searchSvc, cfg.ChatModel)
	assessSvc := usecase.NewAssessService(aicl, assessRepo, recommendSvc)

	// Eager engine warm-up; a failure here is retried lazily on first request.
	if err := engine.InitStorages(ctx); err != nil {
		slog.Warn("retrieval engine warm-up failed", slog.Any("error", err))
	}

	dbCheck, redisCheck, qdrantCheck, tikaCheck := app.BuildReadinessChecks(cfg, dbPinger, redisPinger)
	srv := &httpserver.Server{
		Cfg:         cfg,
		Assess:      assessSvc,
		Search:      searchSvc,
		DBCheck:     dbCheck,
		RedisCheck:  redisCheck,
		QdrantCheck: qdrantCheck,
		TikaCheck:   tikaCheck,
	}
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
