package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

func chunk(docID string, offset int, vec ...float32) model.Chunk {
	return model.Chunk{
		ID:         fmt.Sprintf("%s#%08d", docID, offset),
		DocumentID: docID,
		Text:       fmt.Sprintf("%s@%d", docID, offset),
		Offset:     offset,
		Embedding:  vec,
		Metadata:   map[string]interface{}{"document_id": docID, "offset": offset},
	}
}

func TestMemoryStoreQueryOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(model.MetricCosine)
	require.NoError(t, s.Upsert(ctx, "docs", []model.Chunk{
		chunk("a", 0, 1, 0),
		chunk("b", 0, 0, 1),
		chunk("c", 0, 1, 1),
		chunk("d", 0, 1, 0),
	}))

	res, err := s.Query(ctx, "docs", Query{Vector: []float32{1, 0}, TopK: 3})
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, "a#00000000", res[0].ID)
	require.Equal(t, "d#00000000", res[1].ID)
	require.Equal(t, "c#00000000", res[2].ID)
	require.InDelta(t, 1.0, res[0].Score, 1e-9)
	require.GreaterOrEqual(t, res[1].Score, res[2].Score)
}

func TestMemoryStoreTopKLargerThanCollection(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(model.MetricDot)
	require.NoError(t, s.Upsert(ctx, "docs", []model.Chunk{chunk("a", 0, 1, 2)}))
	res, err := s.Query(ctx, "docs", Query{Vector: []float32{1, 1}, TopK: 10})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.InDelta(t, 3.0, res[0].Score, 1e-9)
}

func TestMemoryStoreErrors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(model.MetricCosine)

	_, err := s.Query(ctx, "missing", Query{Vector: []float32{1}, TopK: 1})
	require.ErrorIs(t, err, appErr.ErrCollectionNotFound)

	require.NoError(t, s.Upsert(ctx, "docs", []model.Chunk{chunk("a", 0, 1, 0, 0)}))

	_, err = s.Query(ctx, "docs", Query{Vector: []float32{1, 0, 0}, TopK: 0})
	require.ErrorIs(t, err, appErr.ErrInvalidTopK)

	_, err = s.Query(ctx, "docs", Query{Vector: []float32{1, 0}, TopK: 1})
	require.ErrorIs(t, err, appErr.ErrSchemaMismatch)

	err = s.Upsert(ctx, "docs", []model.Chunk{chunk("b", 0, 1, 0)})
	require.ErrorIs(t, err, appErr.ErrSchemaMismatch)

	err = s.Upsert(ctx, "docs", []model.Chunk{chunk("b", 0, 1, 0, 0), chunk("b", 5, 1, 0)})
	require.ErrorIs(t, err, appErr.ErrSchemaMismatch)

	// names sharing a 63 byte prefix would alias one postgres table
	long := strings.Repeat("a", 64)
	for _, name := range []string{"", "1docs", "my-docs", "a b", "vector_collections", long + "x", long + "y"} {
		err = s.Upsert(ctx, name, []model.Chunk{chunk("a", 0, 1, 0, 0)})
		require.ErrorIs(t, err, appErr.ErrConfiguration, name)
	}
}

func TestMemoryStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(model.MetricCosine)
	chunks := []model.Chunk{chunk("a", 0, 1, 0), chunk("a", 10, 0, 1)}
	require.NoError(t, s.Upsert(ctx, "docs", chunks))
	require.NoError(t, s.Upsert(ctx, "docs", chunks))
	count, err := s.CountByDocument(ctx, "docs", "a")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestMemoryStoreReplaceDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(model.MetricCosine)
	require.NoError(t, s.Upsert(ctx, "docs", []model.Chunk{
		chunk("a", 0, 1, 0), chunk("a", 10, 1, 0), chunk("a", 20, 1, 0), chunk("b", 0, 0, 1),
	}))
	require.NoError(t, s.ReplaceDocument(ctx, "docs", "a", []model.Chunk{chunk("a", 0, 1, 1)}))

	count, err := s.CountByDocument(ctx, "docs", "a")
	require.NoError(t, err)
	require.Equal(t, 1, count)
	count, err = s.CountByDocument(ctx, "docs", "b")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	err = s.ReplaceDocument(ctx, "docs", "a", []model.Chunk{chunk("b", 0, 1, 1)})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestMemoryStoreDeleteByDocument(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(model.MetricCosine)
	require.NoError(t, s.DeleteByDocument(ctx, "docs", "a"))

	require.NoError(t, s.Upsert(ctx, "docs", []model.Chunk{chunk("a", 0, 1, 0), chunk("b", 0, 0, 1)}))
	require.NoError(t, s.DeleteByDocument(ctx, "docs", "a"))
	require.NoError(t, s.DeleteByDocument(ctx, "docs", "a"))
	require.NoError(t, s.DeleteByDocument(ctx, "docs", "unknown"))

	res, err := s.Query(ctx, "docs", Query{Vector: []float32{1, 0}, TopK: 5})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "b", res[0].DocumentID)
}

func TestMemoryStoreFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(model.MetricCosine)
	a := chunk("a", 0, 1, 0)
	a.Metadata["lang"] = "en"
	b := chunk("b", 0, 1, 0)
	b.Metadata["lang"] = "fr"
	require.NoError(t, s.Upsert(ctx, "docs", []model.Chunk{a, b}))

	res, err := s.Query(ctx, "docs", Query{Vector: []float32{1, 0}, TopK: 5, Filter: map[string]interface{}{"lang": "fr"}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "b", res[0].DocumentID)

	// numeric filters compare after json normalization
	res, err = s.Query(ctx, "docs", Query{Vector: []float32{1, 0}, TopK: 5, Filter: map[string]interface{}{"offset": 0, "lang": "en"}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "a", res[0].DocumentID)

	res, err = s.Query(ctx, "docs", Query{Vector: []float32{1, 0}, TopK: 5, Filter: map[string]interface{}{"lang": "de"}})
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestMemoryStoreIsolatesCallerData(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(model.MetricCosine)
	c := chunk("a", 0, 1, 0)
	require.NoError(t, s.Upsert(ctx, "docs", []model.Chunk{c}))
	c.Embedding[0] = 0
	c.Metadata["document_id"] = "x"

	res, err := s.Query(ctx, "docs", Query{Vector: []float32{1, 0}, TopK: 1})
	require.NoError(t, err)
	require.InDelta(t, 1.0, res[0].Score, 1e-9)
	require.Equal(t, "a", res[0].Metadata["document_id"])
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(model.MetricL2)
	require.NoError(t, s.Upsert(ctx, "docs", []model.Chunk{chunk("seed", 0, 0, 0)}))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := fmt.Sprintf("doc%d", i)
			for j := 0; j < 20; j++ {
				_ = s.ReplaceDocument(ctx, "docs", doc, []model.Chunk{chunk(doc, 0, float32(j), 1)})
				_, _ = s.Query(ctx, "docs", Query{Vector: []float32{1, 1}, TopK: 3})
			}
		}(i)
	}
	wg.Wait()
	for i := 0; i < 8; i++ {
		count, err := s.CountByDocument(ctx, "docs", fmt.Sprintf("doc%d", i))
		require.NoError(t, err)
		require.Equal(t, 1, count)
	}
}
