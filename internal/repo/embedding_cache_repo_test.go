package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/testutil"
)

func TestEmbeddingCacheRepo(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	r := NewEmbeddingCacheRepo(db)
	hash := uuid.NewString()

	_, ok, err := r.Get(ctx, "test:model", "RETRIEVAL_DOCUMENT", hash)
	require.NoError(t, err)
	require.False(t, ok)

	old := time.Now().Add(-48 * time.Hour).Unix()
	require.NoError(t, r.Save(ctx, &model.EmbeddingCache{
		ModelName:   "test:model",
		TaskType:    "RETRIEVAL_DOCUMENT",
		ContentHash: hash,
		Embedding:   []float32{0.5, 0.25},
		Ctime:       old,
	}))
	vec, ok, err := r.Get(ctx, "test:model", "RETRIEVAL_DOCUMENT", hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float32{0.5, 0.25}, vec)

	removed, err := r.DeleteBefore(ctx, time.Now().Add(-24*time.Hour).Unix())
	require.NoError(t, err)
	require.GreaterOrEqual(t, removed, int64(1))
	_, ok, err = r.Get(ctx, "test:model", "RETRIEVAL_DOCUMENT", hash)
	require.NoError(t, err)
	require.False(t, ok)
}
