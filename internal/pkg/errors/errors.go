package errors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid")

	ErrConfiguration      = errors.New("configuration error")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrEmbeddingService   = errors.New("embedding service error")
	ErrSynthesisService   = errors.New("synthesis service error")
	ErrSchemaMismatch     = errors.New("schema mismatch")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrInvalidTopK        = errors.New("invalid top_k")
	ErrNoResults          = errors.New("no results")
)

// IsTransient reports whether err belongs to the retryable part of the taxonomy.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, ErrEmbeddingService) ||
		errors.Is(err, ErrSynthesisService)
}
