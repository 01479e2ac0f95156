// Package types provides shared type definitions for the Kestrel retrieval
// engine.
//
// This package defines the domain types used across the retrieval pipeline:
// chunks, scored candidates, retrieval results, verdicts, and the error
// taxonomy shared by every component.
//
// # Core Types
//
// Chunk represents an indexed unit of content with its source location and
// a precomputed dense embedding:
//
//	chunk := types.Chunk{
//	    ID:         "docs/intro.md#3",
//	    SourcePath: "docs/intro.md",
//	    Content:    "Python is a dynamically typed programming language.",
//	    Language:   types.LanguageProse,
//	    Embedding:  vector,
//	}
//
// RetrievalResult is the contract returned to callers. Its Strategy field is
// the discriminant describing which path actually ran; correction details are
// attached only when a correction was applied:
//
//	result.Strategy        // no_retrieval | single_pass | corrected | external_fallback
//	result.QualityVerdict  // evaluator category + score + per-criterion breakdown
//	result.Correction      // nil unless a correction was applied
//
// # Errors
//
// The error taxonomy splits structural failures (ErrIndexLoad,
// ErrDimensionMismatch, ErrEmptyQuery), which propagate to the caller, from
// recoverable component failures (ErrRerankerUnavailable,
// ErrExternalProvider), which the orchestrator catches and degrades from.
package types
