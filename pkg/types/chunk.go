package types

import "errors"

// Language tags select tokenization and weighting rules for a chunk.
const (
	LanguageCode     = "code"
	LanguageProse    = "prose"
	LanguageExternal = "external" // sentinel for externally sourced chunks
)

// Position locates a chunk within its source document.
type Position struct {
	Ordinal int `json:"ordinal"` // zero-based index within the source
	Start   int `json:"start"`   // byte offset of the chunk start
	End     int `json:"end"`     // byte offset one past the chunk end
}

// Chunk is the unit of indexed content. Chunks are produced by the ingestion
// pipeline with embeddings already computed, and are immutable once indexed.
type Chunk struct {
	// Identification
	ID         string `json:"id"`
	SourcePath string `json:"source_path"`

	// Content
	Content  string   `json:"content"`
	Position Position `json:"position"`
	Language string   `json:"language,omitempty"`

	// Embedding is a dense vector of fixed dimensionality. All chunks in
	// one index share the same dimension, set at build time.
	Embedding []float32 `json:"embedding,omitempty"`
}

// ValidateContent checks if the chunk content is valid for indexing.
func (c *Chunk) ValidateContent() error {
	if c.ID == "" {
		return errors.New("chunk ID cannot be empty")
	}

	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}

	if c.Position.Start < 0 || c.Position.End < c.Position.Start {
		return errors.New("chunk offsets must satisfy 0 <= start <= end")
	}

	return nil
}

// EstimateTokens estimates the number of tokens in the chunk content.
func (c *Chunk) EstimateTokens() int {
	return EstimateTokens(c.Content)
}

// EstimateTokens estimates the token count of arbitrary text.
// Simple heuristic: characters / 4. Average English word is ~4 chars,
// code tokens similar.
func EstimateTokens(text string) int {
	return len(text) / 4
}
