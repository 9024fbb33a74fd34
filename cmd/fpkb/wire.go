package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/ai"
	"github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/config/file"
	"github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/rerank/tei"
	"github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/storage/memory"
	"github.com/jltournay/farmer-power-knowledge/internal/adapters/driven/storage/sqlite"
	"github.com/jltournay/farmer-power-knowledge/internal/adapters/driving/cli"
	"github.com/jltournay/farmer-power-knowledge/internal/core/ports/driven"
	"github.com/jltournay/farmer-power-knowledge/internal/core/services"
	"github.com/jltournay/farmer-power-knowledge/internal/logger"
	"github.com/jltournay/farmer-power-knowledge/internal/normalisers"
	"github.com/jltournay/farmer-power-knowledge/internal/postprocessors"
	"github.com/jltournay/farmer-power-knowledge/internal/telemetry"
)

// stores groups the persistence ports of one backend.
type stores struct {
	chunks    driven.ChunkStore
	jobs      driven.JobStore
	scheduler driven.SchedulerStore
	close     func() error
}

// build wires every adapter from the config file into the services the
// CLI drives. Pipeline settings are read once; ranking settings are read
// per query from the config cache.
func build(ctx context.Context, settings cli.Settings) (*cli.Services, func(), error) {
	path := settings.ConfigPath
	if path == "" {
		var err error
		if path, err = file.DefaultPath(); err != nil {
			return nil, nil, err
		}
	}

	cache, err := file.NewCache(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	cfg := cache.Get()
	logger.Debug("config loaded", "path", path,
		"embedding", cfg.Embedding.Provider, "vector_index", cfg.VectorIndex.Provider, "storage", cfg.Storage.Backend)

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("close failed", "error", err)
			}
		}
	}
	fail := func(err error) (*cli.Services, func(), error) {
		cleanup()
		return nil, nil, err
	}

	embeddingCfg := cfg.Embedding
	embeddingCfg.APIKey = firstNonEmpty(cli.Lookup("embedding.api_key"), embeddingCfg.APIKey, os.Getenv("OPENAI_API_KEY"))
	indexCfg := cfg.VectorIndex
	indexCfg.APIKey = firstNonEmpty(cli.Lookup("vector_index.api_key"), indexCfg.APIKey)

	adapters, err := ai.Init(ctx, embeddingCfg, indexCfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, adapters.Close)
	for _, w := range adapters.Warnings {
		logger.Warn(w)
	}
	provider, index := adapters.EmbeddingProvider, adapters.VectorIndex

	st, err := newStores(cfg.Storage)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, st.close)

	registry := postprocessors.NewRegistry()
	if err := postprocessors.RegisterDefaults(registry); err != nil {
		return fail(err)
	}
	chunker, err := registry.Build(cfg.Chunker.Name, cfg.Chunker.Options())
	if err != nil {
		return fail(err)
	}

	embedder := services.NewEmbeddingClient(provider,
		services.WithEmbeddingBatchSize(cfg.Embedding.BatchSize),
		services.WithMaxTextLength(cfg.Embedding.MaxTextLength),
		services.WithEmbeddingRateLimit(cfg.Embedding.RequestsPerSecond, cfg.Embedding.Burst),
	)
	indexClient := services.NewVectorIndexClient(index, provider.Dimensions(),
		services.WithVectorIndexName(cfg.VectorIndex.Provider))

	pipeline := services.NewVectorizationPipeline(
		postprocessors.NewPipeline(chunker), st.chunks, st.jobs, embedder, indexClient,
		services.WithPipelineBatchSize(cfg.Pipeline.BatchSize),
		services.WithPipelineWorkers(cfg.Pipeline.Workers),
		services.WithPipelineNamespace(cfg.VectorIndex.Namespace),
		services.WithStaleAfter(cfg.Pipeline.StaleAfter.Duration),
		services.WithJobRetention(cfg.Pipeline.JobRetention.Duration),
	)

	rankOpts := []services.RankingOption{services.WithRerankTimeout(cfg.Reranker.Timeout.Duration)}
	if cfg.Reranker.Provider == "tei" {
		reranker, err := tei.NewReranker(tei.Config{BaseURL: cfg.Reranker.URL})
		if err != nil {
			return fail(err)
		}
		closers = append(closers, reranker.Close)
		rankOpts = append(rankOpts, services.WithReranker(reranker))
	}

	retrieval := services.NewRetrievalService(embedder, indexClient, st.chunks,
		services.NewRankingEngine(rankOpts...), cache, cfg.VectorIndex.Namespace)

	return &cli.Services{
		Vectorization: pipeline,
		Retrieval:     retrieval,
		Scheduler:     services.NewScheduler(cfg.Scheduler.Domain(), st.scheduler, pipeline),
		Ranking:       cache,
		Normalisers:   normalisers.NewDefaultRegistry(),
		Serve: func(ctx context.Context, metricsAddr string) error {
			return serve(ctx, cache, metricsAddr)
		},
	}, cleanup, nil
}

func newStores(cfg file.StorageConfig) (*stores, error) {
	switch cfg.Backend {
	case "sqlite":
		db, err := sqlite.NewStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return &stores{
			chunks:    db.ChunkStore(),
			jobs:      db.JobStore(),
			scheduler: db.SchedulerStore(),
			close:     db.Close,
		}, nil
	case "memory":
		return &stores{
			chunks:    memory.NewChunkStore(),
			jobs:      memory.NewJobStore(),
			scheduler: memory.NewSchedulerStore(),
			close:     func() error { return nil },
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// serve watches the config file and, when addr is set, exposes metrics,
// until ctx is done.
func serve(ctx context.Context, cache *file.Cache, addr string) error {
	watcher, err := file.NewWatcher(cache, 0)
	if err != nil {
		return err
	}
	defer watcher.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(ctx) })

	if addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
