package vectorstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/docqa/internal/config"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

// New builds the store selected by cfg.VectorStore.Type. db is only used by
// the postgres backend.
func New(cfg *config.Config, db *sql.DB) (Store, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return NewMemoryStore(cfg.Pipeline.SimilarityMetric), nil
	case "postgres", "":
		if db == nil {
			return nil, fmt.Errorf("%w: postgres vector store requires a database", appErr.ErrConfiguration)
		}
		return NewPostgresStore(db, PostgresConfig{
			Metric:         cfg.Pipeline.SimilarityMetric,
			HNSWIndex:      cfg.VectorStore.HNSWIndex,
			AcquireTimeout: time.Duration(cfg.Database.AcquireTimeoutMs) * time.Millisecond,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store type %q", appErr.ErrConfiguration, cfg.VectorStore.Type)
	}
}
