package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/loader"
)

func TestReingestEmptiedSourceFileDropsChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "economy.txt")
	require.NoError(t, os.WriteFile(path, []byte("The economy added jobs while inflation eased."), 0o644))

	l := loader.New(loader.NewLocalSource(dir, false))
	docs, err := l.Load(ctx)
	require.NoError(t, err)
	_, err = f.ingest.Ingest(ctx, "sotu", docs)
	require.NoError(t, err)
	count, err := f.store.CountByDocument(ctx, "sotu", "economy.txt")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o644))
	docs, err = l.Load(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	report, err := f.ingest.Ingest(ctx, "sotu", docs)
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 0, report.Results[0].Chunks)

	count, err = f.store.CountByDocument(ctx, "sotu", "economy.txt")
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
