package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/service"
)

type staticLoader struct {
	docs []model.Document
	err  error
}

func (l staticLoader) Load(ctx context.Context) ([]model.Document, error) {
	return l.docs, l.err
}

type recordingIngester struct {
	collection string
	docs       []model.Document
	report     *service.IngestReport
}

func (r *recordingIngester) Ingest(ctx context.Context, collection string, docs []model.Document) (*service.IngestReport, error) {
	r.collection = collection
	r.docs = docs
	return r.report, nil
}

func TestSourceIngestJob(t *testing.T) {
	docs := []model.Document{{ID: "a.txt", Text: "a"}}
	ing := &recordingIngester{report: &service.IngestReport{RunID: "r1", Results: []service.DocumentResult{{DocumentID: "a.txt", Chunks: 1}}, Succeeded: 1}}
	j := NewSourceIngestJob(staticLoader{docs: docs}, ing, "docs")
	require.Equal(t, "source_ingest", j.Name())
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, "docs", ing.collection)
	require.Equal(t, docs, ing.docs)

	ing.report = &service.IngestReport{RunID: "r2", Results: make([]service.DocumentResult, 2), Succeeded: 1, Failed: 1}
	require.Error(t, j.Run(context.Background()))

	boom := errors.New("boom")
	j = NewSourceIngestJob(staticLoader{err: boom}, ing, "docs")
	require.ErrorIs(t, j.Run(context.Background()), boom)
}

type fakeCleaner struct {
	cutoff int64
}

func (f *fakeCleaner) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	f.cutoff = cutoff
	return 3, nil
}

func TestEmbeddingCacheCleanupJob(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	cleaner := &fakeCleaner{}
	j := NewEmbeddingCacheCleanupJob(cleaner, 7)
	j.now = func() time.Time { return now }
	require.Equal(t, "embedding_cache_cleanup", j.Name())
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, now.Add(-7*24*time.Hour).Unix(), cleaner.cutoff)

	require.NoError(t, NewEmbeddingCacheCleanupJob(nil, 7).Run(context.Background()))
}
