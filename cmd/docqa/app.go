package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/db"
	"github.com/xxxsen/docqa/internal/embedcache"
	"github.com/xxxsen/docqa/internal/loader"
	"github.com/xxxsen/docqa/internal/pkg/retry"
	"github.com/xxxsen/docqa/internal/repo"
	"github.com/xxxsen/docqa/internal/service"
	"github.com/xxxsen/docqa/internal/vectorstore"
)

type app struct {
	cfg       *config.Config
	db        *sql.DB
	store     vectorstore.Store
	cacheRepo *repo.EmbeddingCacheRepo
	ingest    *service.IngestService
	query     *service.QueryService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	if cfg.Database.Configured() {
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := db.ApplyMigrations(conn); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		a.db = conn
		a.cacheRepo = repo.NewEmbeddingCacheRepo(conn)
	}

	embedder, err := ai.BuildEmbedder(cfg.AI.Embedders)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.AI.EmbedCache.DB && a.cacheRepo != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, a.cacheRepo)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.EmbedCache.LRUSize, time.Duration(cfg.AI.EmbedCache.LRUTTLSec)*time.Second)

	var generator ai.IGenerator
	if len(cfg.AI.Generators) > 0 {
		if generator, err = ai.BuildGenerator(cfg.AI.Generators); err != nil {
			a.Close()
			return nil, err
		}
	} else {
		logutil.GetLogger(ctx).Warn("no generator configured, answers are unavailable")
	}
	synthesizer := ai.NewSynthesizer(generator, time.Duration(cfg.AI.Timeout)*time.Second)

	store, err := vectorstore.New(cfg, a.db)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	retryCfg := retry.Config{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: time.Duration(cfg.Retry.InitialIntervalMs) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Retry.MaxIntervalMs) * time.Millisecond,
	}
	a.ingest = service.NewIngestService(store, embedder, service.IngestOptions{
		ChunkSize:        cfg.Pipeline.ChunkSize,
		ChunkOverlap:     cfg.Pipeline.ChunkOverlap,
		ConcurrencyLimit: cfg.Pipeline.ConcurrencyLimit,
		Retry:            retryCfg,
	})
	a.query = service.NewQueryService(store, embedder, synthesizer, service.QueryOptions{
		TopK:           cfg.Pipeline.TopK,
		RequireResults: cfg.Pipeline.RequireResults,
		Retry:          retryCfg,
	})
	logutil.GetLogger(ctx).Info("pipeline ready",
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("collection", cfg.Pipeline.CollectionName),
		zap.String("embed_model", embedder.ModelName()),
		zap.String("metric", string(cfg.Pipeline.SimilarityMetric)),
	)
	return a, nil
}

func (a *app) loader() (*loader.Loader, error) {
	src, err := loader.NewSource(a.cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("init source: %w", err)
	}
	return loader.New(src), nil
}

// Close releases the store and the database. The postgres store owns the
// connection pool once created.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logutil.GetLogger(context.Background()).Error("close store failed", zap.Error(err))
		}
		if _, ok := a.store.(*vectorstore.PostgresStore); ok {
			return
		}
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
