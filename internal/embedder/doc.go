// Package embedder generates query embeddings for the vector search path.
//
// Two providers are available: a deterministic local provider for
// development and tests, and an HTTP provider for any OpenAI-compatible
// embeddings endpoint, with bounded exponential-backoff retry. Results are
// cached in an LRU keyed by content hash.
//
// Chunk embeddings are not produced here; the ingestion pipeline delivers
// chunks with embeddings already attached.
package embedder
