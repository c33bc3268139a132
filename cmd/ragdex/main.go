package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/db"
	dbBadger "github.com/kailas-cloud/ragdex/internal/db/badger"
	dbMemory "github.com/kailas-cloud/ragdex/internal/db/memory"
	dbPostgres "github.com/kailas-cloud/ragdex/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/ragdex/internal/db/redis"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
	"github.com/kailas-cloud/ragdex/internal/lexical"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/repository/corpus"
	"github.com/kailas-cloud/ragdex/internal/repository/embcache"
	searchrepo "github.com/kailas-cloud/ragdex/internal/repository/search"
	chiTransport "github.com/kailas-cloud/ragdex/internal/transport/chi"
	ollamaTransport "github.com/kailas-cloud/ragdex/internal/transport/ollama"
	openaiTransport "github.com/kailas-cloud/ragdex/internal/transport/openai"
	cacheuc "github.com/kailas-cloud/ragdex/internal/usecase/cache"
	embeddinguc "github.com/kailas-cloud/ragdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	pipelineuc "github.com/kailas-cloud/ragdex/internal/usecase/pipeline"
	searchuc "github.com/kailas-cloud/ragdex/internal/usecase/search"
	"github.com/kailas-cloud/ragdex/internal/version"
)

// generator is what the composition root needs from a generation provider.
type generator interface {
	domain.Generator
	domain.HealthChecker
}

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

	logger.Info("Starting ragdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("cache_driver", cfg.Cache.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("generation_provider", cfg.Generation.Provider),
	)

	ctx := context.Background()

	// Vector backend
	store, layout, err := openStore(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterProviderMetrics()
	metrics.RegisterPipelineMetrics()

	// Key-value backend shared by the answer cache and the embedding cache
	kv, closeKV, err := openKV(cfg, store, logger)
	if err != nil {
		logger.Fatal("Failed to open cache backend", zap.Error(err))
	}
	defer closeKV()

	embedder, err := buildEmbedder(cfg, kv, logger)
	if err != nil {
		logger.Fatal("Failed to create embedder", zap.Error(err))
	}
	gen, err := buildGenerator(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create generator", zap.Error(err))
	}
	logger.Info("Providers created",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", cfg.Generation.Model),
	)

	// Retrieval
	corpusRepo := corpus.New(store, layout)
	registry := lexical.NewRegistry(corpusRepo, lexical.Options{
		Params:       lexical.Params{K1: cfg.Retrieval.BM25K1, B: cfg.Retrieval.BM25B},
		BuildTimeout: time.Duration(cfg.Retrieval.BuildTimeoutSec) * time.Second,
	}, logger)
	semantic := searchuc.NewSemantic(embedder, searchrepo.New(store, layout), cfg.Database.Distance)
	searchSvc := searchuc.New(registry, semantic, cfg.Retrieval.MaxCandidates, logger)

	// Answer cache; a nil *Cache must not leak into interfaces
	var (
		answerCache  pipelineuc.AnswerCache
		cacheAdmin   chiTransport.CacheAdmin
		cacheChecker healthuc.Checker
	)
	if kv != nil {
		c := cacheuc.New(kv, cacheuc.Options{
			KeyPrefix: cfg.Database.KeyPrefix,
			Threshold: cfg.Cache.SimilarityThreshold,
			TTL:       time.Duration(cfg.Cache.TTLSec) * time.Second,
		}, logger.Named("cache"))
		answerCache, cacheAdmin, cacheChecker = c, c, c
	}

	orch, err := pipelineuc.New(pipelineuc.Deps{
		Retriever: searchSvc,
		Embedder:  semantic,
		Cache:     answerCache,
		Generator: gen,
		Context: pipelineuc.NewContextBuilder(
			cfg.Generation.ContextLimits,
			cfg.Generation.DefaultContextLimit,
			cfg.Retrieval.MaxCharsPerDoc,
			cfg.Generation.SystemPrompt,
		),
	}, pipelineuc.Options{
		DefaultWorkspace: cfg.Retrieval.DefaultWorkspace,
		Model:            cfg.Generation.Model,
		RRFK:             cfg.Retrieval.RRFK,
		SemanticWeight:   cfg.Retrieval.SemanticWeight,
		LexicalWeight:    cfg.Retrieval.LexicalWeight,
		StreamBuffer:     cfg.Retrieval.StreamBuffer,
		WriteWorkers:     cfg.Cache.WriteWorkers,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create pipeline", zap.Error(err))
	}

	healthSvc := healthuc.New(healthuc.Deps{
		Vector:     store,
		Embedding:  embedder,
		Generation: gen,
		Cache:      cacheChecker,
	})

	server := chiTransport.NewServer(chiTransport.Deps{
		Search:      searchSvc,
		Answer:      orch,
		Index:       registry,
		Cache:       cacheAdmin,
		Collections: corpusRepo,
		Health:      healthSvc,
		Queue:       chiTransport.NewQueue(cfg.HTTP.MaxConcurrent, cfg.HTTP.MaxQueueDepth),
		APIKeys:     cfg.Auth.APIKeys,
	}, request.Defaults{
		Workspace:      cfg.Retrieval.DefaultWorkspace,
		RRFK:           cfg.Retrieval.RRFK,
		SemanticWeight: cfg.Retrieval.SemanticWeight,
		LexicalWeight:  cfg.Retrieval.LexicalWeight,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdown := time.Duration(cfg.HTTP.ShutdownSec) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if err := orch.Close(shutdown); err != nil {
		logger.Warn("Pending cache writes abandoned", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// openStore connects the vector backend and returns the matching key layout.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (db.Store, db.Layout, error) {
	switch cfg.Driver {
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.Addrs, Password: cfg.Password})
		if err != nil {
			return nil, db.Layout{}, fmt.Errorf("redis: %w", err)
		}
		return s, db.RedisLayout(cfg.KeyPrefix), nil
	case "postgres":
		s, err := dbPostgres.NewStore(ctx, dbPostgres.Config{DSN: cfg.DSN, Distance: cfg.Distance})
		if err != nil {
			return nil, db.Layout{}, fmt.Errorf("postgres: %w", err)
		}
		return s, db.TableLayout(), nil
	default:
		return nil, db.Layout{}, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// openKV opens the cache backend. A disabled cache yields a nil store.
// The redis driver reuses the vector store connection when it points at the same servers.
func openKV(cfg config.Config, store db.Store, logger *zap.Logger) (db.KVStore, func(), error) {
	nop := func() {}
	if !cfg.Cache.IsEnabled() {
		return nil, nop, nil
	}

	switch cfg.Cache.Driver {
	case "memory":
		s, err := dbMemory.NewStore(cfg.Cache.MaxEntries)
		if err != nil {
			return nil, nop, fmt.Errorf("memory: %w", err)
		}
		return s, nop, nil
	case "badger":
		s, err := dbBadger.Open(cfg.Cache.Path, logger)
		if err != nil {
			return nil, nop, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("Failed to close badger", zap.Error(err))
			}
		}, nil
	case "redis":
		if kv, ok := store.(db.KVStore); ok && sameAddrs(cfg.Cache.Addrs, cfg.Database.Addrs) {
			return kv, nop, nil
		}
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.Cache.Addrs, Password: cfg.Cache.Password})
		if err != nil {
			return nil, nop, fmt.Errorf("redis cache: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nop, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}

func sameAddrs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// embeddingProvider is the base of the embedder chain.
type embeddingProvider interface {
	domain.Embedder
	domain.HealthChecker
}

// buildEmbedder assembles the decorator chain: Provider -> Cached -> Instrumented -> Instruction
func buildEmbedder(cfg config.Config, kv db.KVStore, logger *zap.Logger) (embeddingProvider, error) {
	ec := cfg.Embedding

	var base embeddingProvider
	switch ec.Provider {
	case "openai":
		base = openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     ec.APIKey,
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Provider:   ec.Provider,
			Logger:     logger,
		})
	case "ollama":
		e, err := ollamaTransport.NewEmbedder(&ollamaTransport.Config{
			BaseURL: ec.BaseURL,
			Model:   ec.Model,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		base = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", ec.Provider)
	}

	// Cached
	var embedder embeddingProvider = base
	if kv != nil {
		embedder = embcache.New(base, kv, embcache.Options{
			KeyPrefix: cfg.Database.KeyPrefix,
			Model:     ec.Model,
			TTL:       time.Duration(ec.CacheTTLSec) * time.Second,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	// Instrumented
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, embeddinguc.Options{Provider: ec.Provider, Model: ec.Model}, logger)

	// Instruction prefix (outermost: cache key includes instruction)
	if ec.QueryInstruction != "" {
		return domain.NewInstructionEmbedder(embedder, ec.QueryInstruction), nil
	}
	return embedder, nil
}

func buildGenerator(cfg config.Config, logger *zap.Logger) (generator, error) {
	gc := cfg.Generation
	switch gc.Provider {
	case "openai":
		return openaiTransport.NewGenerator(&openaiTransport.Config{
			APIKey:   gc.APIKey,
			BaseURL:  gc.BaseURL,
			Model:    gc.Model,
			Provider: gc.Provider,
			Logger:   logger,
		}), nil
	case "ollama":
		return ollamaTransport.NewGenerator(&ollamaTransport.Config{
			BaseURL: gc.BaseURL,
			Model:   gc.Model,
			Timeout: time.Duration(gc.TimeoutSec) * time.Second,
			Logger:  logger,
		})
	default:
		return nil, fmt.Errorf("unknown generation provider %q", gc.Provider)
	}
}
