package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrConfiguration
	ErrStorageUnavailable
	ErrEmbeddingService
	ErrSynthesisService
	ErrSchemaMismatch
	ErrCollectionNotFound
	ErrInvalidTopK
	ErrNoResults
)
