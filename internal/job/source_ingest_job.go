package job

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/service"
)

type DocumentLoader interface {
	Load(ctx context.Context) ([]model.Document, error)
}

type Ingester interface {
	Ingest(ctx context.Context, collection string, docs []model.Document) (*service.IngestReport, error)
}

// SourceIngestJob reloads the configured source and re-ingests every
// document into one collection.
type SourceIngestJob struct {
	loader     DocumentLoader
	ingester   Ingester
	collection string
}

func NewSourceIngestJob(loader DocumentLoader, ingester Ingester, collection string) *SourceIngestJob {
	return &SourceIngestJob{loader: loader, ingester: ingester, collection: collection}
}

func (j *SourceIngestJob) Name() string {
	return "source_ingest"
}

func (j *SourceIngestJob) Run(ctx context.Context) error {
	docs, err := j.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	report, err := j.ingester.Ingest(ctx, j.collection, docs)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("run_id", report.RunID))
	if report.Failed > 0 {
		logger.Warn("source ingest finished with failures",
			zap.Int("succeeded", report.Succeeded), zap.Int("failed", report.Failed))
		return fmt.Errorf("%d of %d documents failed", report.Failed, len(report.Results))
	}
	logger.Info("source ingest finished", zap.Int("succeeded", report.Succeeded))
	return nil
}
