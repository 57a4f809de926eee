package vectorstore

import (
	"context"
	"fmt"

	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

// Query selects the TopK chunks closest to Vector among the chunks whose
// metadata contains every key/value pair of Filter.
type Query struct {
	Vector []float32
	TopK   int
	Filter map[string]interface{}
}

// Store persists embedded chunks per collection. A collection is created by
// its first write, which also fixes its embedding dimension and metric.
type Store interface {
	Upsert(ctx context.Context, collection string, chunks []model.Chunk) error
	// ReplaceDocument swaps the whole chunk set of a document in one step;
	// readers observe either the old set or the new one.
	ReplaceDocument(ctx context.Context, collection, documentID string, chunks []model.Chunk) error
	Query(ctx context.Context, collection string, q Query) ([]model.ScoredChunk, error)
	DeleteByDocument(ctx context.Context, collection, documentID string) error
	CountByDocument(ctx context.Context, collection, documentID string) (int, error)
	Close() error
}

var reservedNames = map[string]bool{
	"vector_collections": true,
	"embedding_cache":    true,
}

func validateCollection(name string) error {
	if err := config.ValidateCollectionName(name); err != nil {
		return err
	}
	if reservedNames[name] {
		return fmt.Errorf("%w: collection name %q is reserved", appErr.ErrConfiguration, name)
	}
	return nil
}

// validateChunks returns the shared dimension of chunks.
func validateChunks(chunks []model.Chunk) (int, error) {
	dim := 0
	for i, c := range chunks {
		if c.ID == "" || c.DocumentID == "" {
			return 0, fmt.Errorf("%w: chunk %d has no id or document id", appErr.ErrInvalid, i)
		}
		if len(c.Embedding) == 0 {
			return 0, fmt.Errorf("%w: chunk %s has no embedding", appErr.ErrSchemaMismatch, c.ID)
		}
		if dim == 0 {
			dim = len(c.Embedding)
			continue
		}
		if len(c.Embedding) != dim {
			return 0, fmt.Errorf("%w: chunk %s has dimension %d, expected %d", appErr.ErrSchemaMismatch, c.ID, len(c.Embedding), dim)
		}
	}
	return dim, nil
}

func validateReplace(documentID string, chunks []model.Chunk) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", appErr.ErrInvalid)
	}
	for _, c := range chunks {
		if c.DocumentID != documentID {
			return fmt.Errorf("%w: chunk %s belongs to document %s, not %s", appErr.ErrInvalid, c.ID, c.DocumentID, documentID)
		}
	}
	return nil
}

func validateQuery(q Query) error {
	if q.TopK <= 0 {
		return fmt.Errorf("%w: %d", appErr.ErrInvalidTopK, q.TopK)
	}
	if len(q.Vector) == 0 {
		return fmt.Errorf("%w: empty query vector", appErr.ErrSchemaMismatch)
	}
	return nil
}

func checkDimension(collection string, want, got int) error {
	if want != got {
		return fmt.Errorf("%w: collection %s has dimension %d, got %d", appErr.ErrSchemaMismatch, collection, want, got)
	}
	return nil
}
