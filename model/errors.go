package model

import "errors"

// Sentinel errors for the error kinds surfaced across component boundaries.
// Wrap with fmt.Errorf("...: %w", err) to add context.
var (
	ErrValidation       = errors.New("validation failed")
	ErrFetch            = errors.New("fetch failed")
	ErrEmptyContent     = errors.New("No content after cleaning")
	ErrNoChunks         = errors.New("No chunks created")
	ErrEmbedding        = errors.New("embedding failed")
	ErrStore            = errors.New("vector store operation failed")
	ErrIndex            = errors.New("lexical index operation failed")
	ErrProvider         = errors.New("llm provider failed")
	ErrAdmissionDenied  = errors.New("too many concurrent jobs")
	ErrRateLimited      = errors.New("rate limited")
	ErrTimeout          = errors.New("timeout")
	ErrStoreUnavailable = errors.New("job store unavailable")
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
)
