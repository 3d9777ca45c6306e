// Command casetune runs search relevance evaluation against a live index.
//
//	casetune evaluate   score the configured boosts against the term fixtures
//	casetune optimize   two-phase TPE search over the signal weights
//	casetune generate   fill empty expected_chunk_id fixture columns
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/caseworks/casedex/internal/config"
	dbRedis "github.com/caseworks/casedex/internal/db/redis"
	logpkg "github.com/caseworks/casedex/internal/logger"
	"github.com/caseworks/casedex/internal/metrics"
	"github.com/caseworks/casedex/internal/repository/chunkindex"
	"github.com/caseworks/casedex/internal/repository/embcache"
	openaiTransport "github.com/caseworks/casedex/internal/transport/openai"
	"github.com/caseworks/casedex/internal/usecase/evaluate"
	"github.com/caseworks/casedex/internal/usecase/optimize"
	searchuc "github.com/caseworks/casedex/internal/usecase/search"
)

func main() {
	command := "evaluate"
	args := os.Args[1:]
	if len(args) > 0 && args[0][0] != '-' {
		command = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet("casetune "+command, flag.ExitOnError)
	termsFile := fs.String("terms", "", "term fixtures CSV (default from config)")
	outputDir := fs.String("out", "", "results directory (default from config)")
	seed := fs.Int64("seed", 42, "sampler seed for reproducible optimization runs")
	_ = fs.Parse(args)

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if *termsFile != "" {
		cfg.Evaluation.TermsFile = *termsFile
	}
	if *outputDir != "" {
		cfg.Evaluation.OutputDir = *outputDir
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	// Long optimization runs should stop cleanly on Ctrl-C with the trials
	// completed so far.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}

	metrics.RegisterEmbeddingMetrics()

	indexRepo := chunkindex.New(store, chunkindex.Config{
		KeyPrefix:       cfg.Storage.KeyPrefix,
		HNSWM:           cfg.Index.HNSWM,
		HNSWEFConstruct: cfg.Index.HNSWEFConstruct,
	})

	if command == "generate" {
		if err := evaluate.GenerateTermCases(ctx, indexRepo, cfg.Evaluation.TermsFile, logger); err != nil {
			logger.Fatal("Fixture generation failed", zap.Error(err))
		}
		logger.Info("Fixtures updated", zap.String("file", cfg.Evaluation.TermsFile))
		return
	}

	cases, err := evaluate.LoadTermCases(cfg.Evaluation.TermsFile)
	if err != nil {
		logger.Fatal("Failed to load term fixtures",
			zap.String("file", cfg.Evaluation.TermsFile), zap.Error(err))
	}
	logger.Info("Term fixtures loaded",
		zap.String("file", cfg.Evaluation.TermsFile), zap.Int("terms", len(cases)))

	searchSvc := searchuc.New(store, buildQueryEmbedder(cfg, store, logger), indexRepo.ChunkIndexName(), logger)
	evaluator := evaluate.New(searchSvc, indexRepo, cases, logger)

	switch command {
	case "evaluate":
		runEvaluation(ctx, evaluator, cfg, logger)
	case "optimize":
		runOptimization(ctx, evaluator, cfg, *seed, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want evaluate, optimize, or generate)\n", command)
		os.Exit(2)
	}
}

func runEvaluation(ctx context.Context, evaluator *evaluate.Evaluator, cfg config.Config, logger *zap.Logger) {
	report, err := evaluator.Run(ctx, cfg.Search.Boosts)
	if err != nil {
		logger.Fatal("Evaluation failed", zap.Error(err))
	}

	path, err := report.WriteCSV(cfg.Evaluation.OutputDir)
	if err != nil {
		logger.Fatal("Failed to write results", zap.Error(err))
	}
	if err := evaluate.AppendLog(cfg.Evaluation.CumulativeLog, report); err != nil {
		logger.Warn("Failed to append cumulative log",
			zap.String("file", cfg.Evaluation.CumulativeLog), zap.Error(err))
	}

	s := report.Summary
	logger.Info("Evaluation complete",
		zap.String("results", path),
		zap.Int("queries", s.TotalQueries),
		zap.Float64("acceptable_precision", s.AcceptablePrecision),
		zap.Float64("avg_recall", s.AvgRecall),
		zap.Float64("avg_chunks", s.AvgChunksReturned),
		zap.Float64("objective", s.Objective),
	)
}

func runOptimization(ctx context.Context, evaluator *evaluate.Evaluator, cfg config.Config, seed int64, logger *zap.Logger) {
	opt := optimize.New(evaluator, optimize.Config{
		Base:          cfg.Search.Boosts,
		CoarseTrials:  cfg.Optimization.CoarseTrials,
		FineTrials:    cfg.Optimization.FineTrials,
		CoarseStep:    cfg.Optimization.CoarseStep,
		FineStep:      cfg.Optimization.FineStep,
		FineWindow:    cfg.Optimization.FineWindow,
		BoundLow:      cfg.Optimization.BoundLow,
		BoundHigh:     cfg.Optimization.BoundHigh,
		Seed:          seed,
		CumulativeLog: cfg.Evaluation.CumulativeLog,
	}, logger)

	result, err := opt.Run(ctx)
	if err != nil {
		logger.Fatal("Optimization failed", zap.Error(err))
	}

	dir, err := optimize.WriteArtifacts(cfg.Evaluation.OutputDir, result)
	if err != nil {
		logger.Fatal("Failed to write artifacts", zap.Error(err))
	}

	best := result.Best
	logger.Info("Optimization complete",
		zap.String("study", result.StudyName),
		zap.String("artifacts", dir),
		zap.Int("trials", len(result.History)),
		zap.Int("best_trial", best.Number),
		zap.Float64("best_objective", best.Objective),
		zap.Float64("keyword_boost", best.Config.KeywordBoost),
		zap.Float64("analyzed_boost", best.Config.AnalyzedBoost),
		zap.Float64("semantic_boost", best.Config.SemanticBoost),
		zap.Float64("fuzzy_boost", best.Config.FuzzyBoost),
		zap.Float64("wildcard_boost", best.Config.WildcardBoost),
	)
}

// buildQueryEmbedder assembles the query-side embedder chain used for the
// semantic signal during evaluation.
func buildQueryEmbedder(cfg config.Config, store *dbRedis.Store, logger *zap.Logger) *embcache.CachedEmbedder {
	vecName := cfg.Embedding.Default
	if vecName == "" {
		for name := range cfg.Embedding.Vectorizers {
			vecName = name
			break
		}
	}
	vecCfg := cfg.Embedding.Vectorizers[vecName]
	provCfg := cfg.Embedding.Providers[vecCfg.Provider]

	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:      provCfg.APIKey,
		BaseURL:     provCfg.BaseURL,
		Model:       vecCfg.Model,
		Dimensions:  vecCfg.Dimensions,
		Instruction: vecCfg.QueryInstruction,
		Provider:    vecCfg.Provider,
		Logger:      logger,
	})
	return embcache.New(base, store, vecCfg.Model+":query", metrics.EmbeddingCacheTotal, logger).
		WithTTL(time.Duration(cfg.Storage.EmbedCacheTTLSec) * time.Second)
}
