package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/chunker"
	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/retry"
	"github.com/xxxsen/docqa/internal/vectorstore"
)

type DocumentResult struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
}

type IngestReport struct {
	RunID      string           `json:"run_id"`
	Collection string           `json:"collection"`
	Results    []DocumentResult `json:"results"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
}

type IngestOptions struct {
	ChunkSize        int
	ChunkOverlap     int
	ConcurrencyLimit int
	Retry            retry.Config
}

type IngestService struct {
	store    vectorstore.Store
	embedder ai.IEmbedder
	chunker  *chunker.Chunker
	opts     IngestOptions
}

func NewIngestService(store vectorstore.Store, embedder ai.IEmbedder, opts IngestOptions) *IngestService {
	if opts.ConcurrencyLimit <= 0 {
		opts.ConcurrencyLimit = 1
	}
	return &IngestService{
		store:    store,
		embedder: embedder,
		chunker:  chunker.New(opts.ChunkSize, opts.ChunkOverlap),
		opts:     opts,
	}
}

// Ingest indexes docs into collection. Only an invalid collection name
// fails the call; per document failures are recorded in the report.
func (s *IngestService) Ingest(ctx context.Context, collection string, docs []model.Document) (*IngestReport, error) {
	if err := config.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	report := &IngestReport{
		RunID:      newRunID(),
		Collection: collection,
		Results:    make([]DocumentResult, len(docs)),
	}
	logger := logutil.GetLogger(ctx).With(zap.String("run_id", report.RunID), zap.String("collection", collection))
	start := time.Now()

	var eg errgroup.Group
	eg.SetLimit(s.opts.ConcurrencyLimit)
	for i := range docs {
		i := i
		eg.Go(func() error {
			doc := &docs[i]
			count, err := s.ingestOne(ctx, collection, doc)
			res := DocumentResult{DocumentID: doc.ID, Chunks: count, Err: err}
			if err != nil {
				res.Error = err.Error()
				logger.Error("ingest document failed", zap.String("document_id", doc.ID), zap.Error(err))
			}
			report.Results[i] = res
			return nil
		})
	}
	_ = eg.Wait()

	for _, res := range report.Results {
		if res.Err != nil {
			report.Failed++
			continue
		}
		report.Succeeded++
	}
	logger.Info("ingest finished",
		zap.Int("documents", len(docs)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("cost", time.Since(start)))
	return report, nil
}

func (s *IngestService) ingestOne(ctx context.Context, collection string, doc *model.Document) (int, error) {
	if strings.TrimSpace(doc.ID) == "" {
		return 0, fmt.Errorf("document without id")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	chunks := s.chunker.Split(doc)
	for i := range chunks {
		vec, err := embedText(ctx, s.opts.Retry, s.embedder, chunks[i].Text, ai.TaskTypeDocument)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %s: %w", chunks[i].ID, err)
		}
		chunks[i].Embedding = vec
	}
	err := storeCall(ctx, s.opts.Retry, "replace_document", func(ctx context.Context) error {
		return s.store.ReplaceDocument(ctx, collection, doc.ID, chunks)
	})
	if err != nil {
		return 0, fmt.Errorf("store document %s: %w", doc.ID, err)
	}
	return len(chunks), nil
}

// DeleteDocument removes every chunk of documentID from collection.
func (s *IngestService) DeleteDocument(ctx context.Context, collection, documentID string) error {
	if err := config.ValidateCollectionName(collection); err != nil {
		return err
	}
	return storeCall(ctx, s.opts.Retry, "delete_document", func(ctx context.Context) error {
		return s.store.DeleteByDocument(ctx, collection, documentID)
	})
}
