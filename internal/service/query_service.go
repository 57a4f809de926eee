package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/retry"
	"github.com/xxxsen/docqa/internal/vectorstore"
)

type SearchRequest struct {
	Query      string                 `json:"query"`
	Collection string                 `json:"collection"`
	TopK       int                    `json:"top_k"`
	Filter     map[string]interface{} `json:"filter"`
}

type AnswerRequest struct {
	SearchRequest
	// RequireResults overrides the configured default when set.
	RequireResults *bool `json:"require_results"`
}

type Answer struct {
	Text      string              `json:"text"`
	SourceIDs []string            `json:"source_ids"`
	Sources   []model.ScoredChunk `json:"sources"`
}

type QueryOptions struct {
	TopK           int
	RequireResults bool
	Retry          retry.Config
}

type QueryService struct {
	store       vectorstore.Store
	embedder    ai.IEmbedder
	synthesizer *ai.Synthesizer
	opts        QueryOptions
}

func NewQueryService(store vectorstore.Store, embedder ai.IEmbedder, synthesizer *ai.Synthesizer, opts QueryOptions) *QueryService {
	return &QueryService{
		store:       store,
		embedder:    embedder,
		synthesizer: synthesizer,
		opts:        opts,
	}
}

// Search returns the chunks closest to the query. A zero TopK falls back to
// the configured default; a negative one is rejected.
func (s *QueryService) Search(ctx context.Context, req SearchRequest) ([]model.ScoredChunk, error) {
	if err := config.ValidateCollectionName(req.Collection); err != nil {
		return nil, err
	}
	topK := req.TopK
	if topK == 0 {
		topK = s.opts.TopK
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: %d", appErr.ErrInvalidTopK, topK)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: empty query", appErr.ErrInvalid)
	}
	vec, err := embedText(ctx, s.opts.Retry, s.embedder, req.Query, ai.TaskTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	var results []model.ScoredChunk
	err = storeCall(ctx, s.opts.Retry, "query", func(ctx context.Context) error {
		res, err := s.store.Query(ctx, req.Collection, vectorstore.Query{Vector: vec, TopK: topK, Filter: req.Filter})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Answer retrieves context for the query and asks the generator for an
// answer, which is returned exactly as produced.
func (s *QueryService) Answer(ctx context.Context, req AnswerRequest) (*Answer, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("collection", req.Collection))
	results, err := s.Search(ctx, req.SearchRequest)
	if err != nil {
		return nil, err
	}
	require := s.opts.RequireResults
	if req.RequireResults != nil {
		require = *req.RequireResults
	}
	if len(results) == 0 && require {
		return nil, fmt.Errorf("%w: query %q", appErr.ErrNoResults, req.Query)
	}
	passages := make([]string, 0, len(results))
	ids := make([]string, 0, len(results))
	for _, item := range results {
		passages = append(passages, item.Text)
		ids = append(ids, item.ID)
	}
	var text string
	err = retry.Do(ctx, s.opts.Retry, "synthesize", ai.IsRetryable, func(ctx context.Context) error {
		resp, err := s.synthesizer.Synthesize(ctx, req.Query, passages)
		if err != nil {
			return err
		}
		text = resp
		return nil
	})
	if err != nil {
		logger.Error("synthesize answer failed", zap.Error(err))
		return nil, wrapService(appErr.ErrSynthesisService, err)
	}
	logger.Debug("answer synthesized", zap.Int("sources", len(ids)))
	return &Answer{Text: text, SourceIDs: ids, Sources: results}, nil
}
