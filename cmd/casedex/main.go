package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/config"
	dbRedis "github.com/caseworks/casedex/internal/db/redis"
	"github.com/caseworks/casedex/internal/domain"
	logpkg "github.com/caseworks/casedex/internal/logger"
	"github.com/caseworks/casedex/internal/metrics"
	"github.com/caseworks/casedex/internal/objstore"
	"github.com/caseworks/casedex/internal/ocr"
	budgetrepo "github.com/caseworks/casedex/internal/repository/budget"
	"github.com/caseworks/casedex/internal/repository/chunkindex"
	"github.com/caseworks/casedex/internal/repository/embcache"
	"github.com/caseworks/casedex/internal/repository/queue"
	chiTransport "github.com/caseworks/casedex/internal/transport/chi"
	openaiTransport "github.com/caseworks/casedex/internal/transport/openai"
	embeddinguc "github.com/caseworks/casedex/internal/usecase/embedding"
	healthuc "github.com/caseworks/casedex/internal/usecase/health"
	ingestuc "github.com/caseworks/casedex/internal/usecase/ingest"
	searchuc "github.com/caseworks/casedex/internal/usecase/search"
	usageuc "github.com/caseworks/casedex/internal/usecase/usage"
	"github.com/caseworks/casedex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting casedex server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	vecName, vecCfg := resolveVectorizer(cfg.Embedding)
	provCfg := cfg.Embedding.Providers[vecCfg.Provider]

	// Single BudgetTracker shared across all embedders and the usage service.
	var budget *embeddinguc.BudgetTracker
	budgetCfg := provCfg.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			vecCfg.Provider, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		// Connect persistence store, which loads current counters from DB.
		budgetStore := budgetrepo.New(store, 48*time.Hour, 62*24*time.Hour)
		budget.WithStore(ctx, budgetStore)
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*BudgetTracker)(nil) wrapped in BudgetChecker != nil.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	// Separate embedders for documents and queries: instruction-tuned models
	// take a different prefix per role, and the cache must not mix them.
	cacheTTL := time.Duration(cfg.Storage.EmbedCacheTTLSec) * time.Second
	docEmbedder, _ := buildEmbedder(provCfg, vecCfg, vecCfg.DocumentInstruction, "doc", store, cacheTTL, budgetChecker, logger)
	queryEmbedder, queryBase := buildEmbedder(provCfg, vecCfg, vecCfg.QueryInstruction, "query", store, cacheTTL, budgetChecker, logger)
	logger.Info("Embedders created",
		zap.String("vectorizer", vecName),
		zap.String("provider", vecCfg.Provider),
		zap.String("model", vecCfg.Model),
		zap.Int("dimensions", vecCfg.Dimensions),
	)

	indexRepo := chunkindex.New(store, chunkindex.Config{
		KeyPrefix:       cfg.Storage.KeyPrefix,
		EmbeddingDim:    vecCfg.Dimensions,
		HNSWM:           cfg.Index.HNSWM,
		HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
	})
	if err := indexRepo.EnsureIndexes(ctx); err != nil {
		logger.Fatal("Failed to ensure indexes", zap.Error(err))
	}

	consumer := cfg.Ingest.Consumer
	if consumer == "" {
		consumer, _ = os.Hostname()
	}
	queueRepo := queue.New(store, queue.Config{
		Stream:        cfg.Ingest.Stream,
		Group:         cfg.Ingest.Group,
		Consumer:      consumer,
		MaxDeliveries: int64(cfg.Ingest.MaxDeliveries),
		Block:         time.Duration(cfg.Ingest.BlockSec) * time.Second,
		ClaimMinIdle:  time.Duration(cfg.Ingest.ClaimMinIdleSec) * time.Second,
	}, logger)

	objStore, err := objstore.New(ctx, objstore.Config{
		Bucket:          cfg.ObjectStore.Bucket,
		Region:          cfg.ObjectStore.Region,
		Endpoint:        cfg.ObjectStore.Endpoint,
		PageKey:         cfg.ObjectStore.PageKey,
		RetryInitial:    time.Duration(cfg.Ingest.Retry.InitialSec) * time.Second,
		RetryMax:        time.Duration(cfg.Ingest.Retry.MaxSec) * time.Second,
		RetryMaxElapsed: time.Duration(cfg.Ingest.Retry.MaxElapsedSec) * time.Second,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("Failed to create object store", zap.Error(err))
	}

	analyzer := ocr.NewClient(&ocr.Config{
		BaseURL:      cfg.OCR.BaseURL,
		APIKey:       cfg.OCR.APIKey,
		PollInterval: time.Duration(cfg.OCR.PollIntervalSec) * time.Second,
		PollTimeout:  time.Duration(cfg.OCR.PollTimeoutSec) * time.Second,
		Logger:       logger,
	})

	var corrector ingestuc.Corrector
	if cfg.Ingest.Correction.Enabled {
		corrProv := cfg.Embedding.Providers[cfg.Ingest.Correction.Provider]
		corrector = openaiTransport.NewCorrector(&openaiTransport.Config{
			APIKey:  corrProv.APIKey,
			BaseURL: corrProv.BaseURL,
			Model:   cfg.Ingest.Correction.Model,
			Logger:  logger,
		})
		logger.Info("OCR correction enabled",
			zap.String("model", cfg.Ingest.Correction.Model),
			zap.String("prompt_version", cfg.Ingest.Correction.PromptVersion),
		)
	}

	processor, err := ingestuc.New(objStore, analyzer, indexRepo, docEmbedder, corrector, ingestuc.Config{
		PageWorkers:       cfg.Ingest.PageWorkers,
		MaxChunkSize:      cfg.Ingest.MaxChunkSize,
		RetryInitial:      time.Duration(cfg.Ingest.Retry.InitialSec) * time.Second,
		RetryMax:          time.Duration(cfg.Ingest.Retry.MaxSec) * time.Second,
		RetryMaxElapsed:   time.Duration(cfg.Ingest.Retry.MaxElapsedSec) * time.Second,
		CorrectionEnabled: cfg.Ingest.Correction.Enabled,
		PromptVersion:     cfg.Ingest.Correction.PromptVersion,
	})
	if err != nil {
		logger.Fatal("Failed to create document processor", zap.Error(err))
	}
	defer processor.Release()

	worker := ingestuc.NewWorker(queueRepo, processor, cfg.Ingest.Workers, logger)

	searchSvc := searchuc.New(store, queryEmbedder, indexRepo.ChunkIndexName(), logger)
	healthSvc := healthuc.New(store, queryBase)

	// Usage service reads from the shared BudgetTracker.
	var budgetReader usageuc.BudgetReader
	if budget != nil {
		budgetReader = budget
	}

	server := chiTransport.NewServer(searchSvc, queueRepo, healthSvc, cfg.Search.Boosts, logger).
		WithUsage(usageuc.New(budgetReader))

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	// The ingest worker shares the process with the API server so a single
	// deployment both accepts and drains work.
	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Ingest worker exited", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	stopWorker()
	<-workerDone

	logger.Info("Server stopped gracefully")
}

// resolveVectorizer picks the configured default vectorizer, falling back to
// any single configured one.
func resolveVectorizer(cfg config.EmbeddingConfig) (string, config.VectorizerConfig) {
	if cfg.Default != "" {
		return cfg.Default, cfg.Vectorizers[cfg.Default]
	}
	for name, vc := range cfg.Vectorizers {
		return name, vc
	}
	return "", config.VectorizerConfig{}
}

// buildEmbedder assembles the embedder chain for one role:
// OpenAI -> Cached -> Instrumented. The role suffix keeps document- and
// query-instructed vectors from sharing cache entries. The bare provider is
// returned alongside for health probing.
func buildEmbedder(
	provCfg config.ProviderConfig,
	vecCfg config.VectorizerConfig,
	instruction, role string,
	store *dbRedis.Store,
	cacheTTL time.Duration,
	budget embeddinguc.BudgetChecker,
	logger *zap.Logger,
) (domain.Embedder, *openaiTransport.Embedder) {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:      provCfg.APIKey,
		BaseURL:     provCfg.BaseURL,
		Model:       vecCfg.Model,
		Dimensions:  vecCfg.Dimensions,
		Instruction: instruction,
		Provider:    vecCfg.Provider,
		Logger:      logger,
	})

	cached := embcache.New(base, store, vecCfg.Model+":"+role, metrics.EmbeddingCacheTotal, logger).
		WithTTL(cacheTTL)
	instrumented := embeddinguc.NewInstrumentedEmbedder(cached, vecCfg.Provider, vecCfg.Model, budget, logger)
	return instrumented, base
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
