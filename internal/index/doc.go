// Package index provides the two retrieval indexes: exact cosine-similarity
// search over dense embeddings, and BM25 keyword search over code-aware
// token statistics.
//
// Both indexes are built once from a chunk corpus and are read-only at query
// time, so they are safe for concurrent searches without locking. Durable
// persistence lives in the storage package; indexes round-trip through it
// with identical search behavior.
package index
