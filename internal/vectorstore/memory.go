package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

type memCollection struct {
	dim    int
	metric model.Metric
	chunks map[string]model.Chunk
}

// MemoryStore is an exact-scan Store kept in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	metric      model.Metric
	collections map[string]*memCollection
}

func NewMemoryStore(metric model.Metric) *MemoryStore {
	if !metric.Valid() {
		metric = model.MetricCosine
	}
	return &MemoryStore{
		metric:      metric,
		collections: make(map[string]*memCollection),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, collection string, chunks []model.Chunk) error {
	_ = ctx
	if err := validateCollection(collection); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	dim, err := validateChunks(chunks)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.ensureLocked(collection, dim)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		col.chunks[c.ID] = cloneChunk(c)
	}
	return nil
}

func (s *MemoryStore) ReplaceDocument(ctx context.Context, collection, documentID string, chunks []model.Chunk) error {
	_ = ctx
	if err := validateCollection(collection); err != nil {
		return err
	}
	if err := validateReplace(documentID, chunks); err != nil {
		return err
	}
	dim, err := validateChunks(chunks)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.collections[collection]
	if len(chunks) > 0 {
		if col, err = s.ensureLocked(collection, dim); err != nil {
			return err
		}
	}
	if col == nil {
		return nil
	}
	for id, c := range col.chunks {
		if c.DocumentID == documentID {
			delete(col.chunks, id)
		}
	}
	for _, c := range chunks {
		col.chunks[c.ID] = cloneChunk(c)
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]model.ScoredChunk, error) {
	_ = ctx
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	filter := normalizeMetadata(q.Filter)
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", appErr.ErrCollectionNotFound, collection)
	}
	if err := checkDimension(collection, col.dim, len(q.Vector)); err != nil {
		return nil, err
	}
	results := make([]model.ScoredChunk, 0, len(col.chunks))
	for _, c := range col.chunks {
		if !matchFilter(c.Metadata, filter) {
			continue
		}
		results = append(results, model.ScoredChunk{Chunk: cloneChunk(c), Score: Score(col.metric, q.Vector, c.Embedding)})
	}
	sortScored(results)
	if len(results) > q.TopK {
		results = results[:q.TopK]
	}
	return results, nil
}

func (s *MemoryStore) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	return s.ReplaceDocument(ctx, collection, documentID, nil)
}

func (s *MemoryStore) CountByDocument(ctx context.Context, collection, documentID string) (int, error) {
	_ = ctx
	if err := validateCollection(collection); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	count := 0
	for _, c := range col.chunks {
		if c.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) ensureLocked(collection string, dim int) (*memCollection, error) {
	col, ok := s.collections[collection]
	if !ok {
		col = &memCollection{dim: dim, metric: s.metric, chunks: make(map[string]model.Chunk)}
		s.collections[collection] = col
		return col, nil
	}
	if err := checkDimension(collection, col.dim, dim); err != nil {
		return nil, err
	}
	return col, nil
}

func cloneChunk(c model.Chunk) model.Chunk {
	out := c
	out.Embedding = append([]float32(nil), c.Embedding...)
	out.Metadata = normalizeMetadata(c.Metadata)
	return out
}
