package types

import (
	"errors"
	"fmt"
)

// Structural errors. These propagate to the caller; component-level
// failures are recovered inside the orchestrator.
var (
	// ErrIndexLoad indicates a persisted index is missing, corrupt, or
	// dimension-incompatible. Fatal at startup.
	ErrIndexLoad = errors.New("index load failed")

	// ErrDimensionMismatch indicates inconsistent embedding dimensions
	// at build time. Fatal for that build operation only.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyQuery indicates an empty or whitespace-only query. Surfaced
	// to the caller as a validation failure.
	ErrEmptyQuery = errors.New("query cannot be empty")
)

// Recoverable errors. The orchestrator catches these and degrades.
var (
	// ErrRerankerUnavailable indicates the scoring model failed to load
	// or failed during inference. Recovered by falling back to fused
	// vector/keyword ordering.
	ErrRerankerUnavailable = errors.New("reranker unavailable")

	// ErrExternalProvider indicates the external search provider timed
	// out, failed, or returned a malformed response.
	ErrExternalProvider = errors.New("external provider error")
)

// IndexLoadError wraps ErrIndexLoad with the offending path and cause.
func IndexLoadError(path string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrIndexLoad, path, cause)
}

// DimensionMismatchError wraps ErrDimensionMismatch with the expected and
// actual dimensions.
func DimensionMismatchError(want, got int) error {
	return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, want, got)
}
