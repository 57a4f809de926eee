package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/xxxsen/docqa/internal/ai"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/retry"
)

// embedText embeds text with retries on transient provider failures. Every
// failure is reported as ErrEmbeddingService.
func embedText(ctx context.Context, cfg retry.Config, embedder ai.IEmbedder, text, taskType string) ([]float32, error) {
	var vec []float32
	err := retry.Do(ctx, cfg, "embed", ai.IsRetryable, func(ctx context.Context) error {
		v, err := embedder.Embed(ctx, text, taskType)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return fmt.Errorf("empty embedding: %w", ai.ErrUnavailable)
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, wrapService(appErr.ErrEmbeddingService, err)
	}
	return vec, nil
}

// storeCall retries store operations failing with ErrStorageUnavailable.
func storeCall(ctx context.Context, cfg retry.Config, name string, op func(ctx context.Context) error) error {
	return retry.Do(ctx, cfg, name, func(err error) bool {
		return errors.Is(err, appErr.ErrStorageUnavailable)
	}, op)
}

func wrapService(kind error, err error) error {
	if errors.Is(err, kind) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
