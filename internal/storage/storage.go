package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/kestrelsearch/kestrel/internal/index"
	"github.com/kestrelsearch/kestrel/internal/tokenizer"
	"github.com/kestrelsearch/kestrel/pkg/types"
)

// Meta keys stored in index_meta.
const (
	metaEmbeddingDim = "embedding_dim"
	metaChunkCount   = "chunk_count"
	metaBuiltAt      = "built_at"
)

// Store persists the chunk corpus and index statistics in a SQLite file.
// Writes happen only during the exclusive offline build phase; at query
// time the file is read once at startup and the loaded indexes are shared
// read-only across requests.
type Store struct {
	db   *sql.DB
	path string
}

// Status summarizes the persisted index for diagnostics.
type Status struct {
	ChunkCount    int
	TermCount     int
	EmbeddingDim  int
	SchemaVersion string
	BuiltAt       time.Time
}

// Open opens (creating if necessary) the index file at path and applies
// any pending schema migrations. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}

	// WAL mode for read concurrency; sqlite prefers a single writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveIndex replaces the persisted corpus with the given chunks and the
// keyword index statistics derived from them, in one transaction. The
// previous contents are dropped: a build is a full rebuild.
func (s *Store) SaveIndex(ctx context.Context, chunks []types.Chunk, keyword *index.KeywordIndex) error {
	dim := 0
	for _, chunk := range chunks {
		if dim == 0 {
			dim = len(chunk.Embedding)
		}
		if len(chunk.Embedding) != dim {
			return types.DimensionMismatchError(dim, len(chunk.Embedding))
		}
	}

	ids, termFreqs, lengths := keyword.Stats()
	if len(ids) != len(chunks) {
		return fmt.Errorf("keyword index covers %d chunks, corpus has %d", len(ids), len(chunks))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"postings", "embeddings", "chunks", "index_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, source_path, content, ordinal, start_offset, end_offset, language, token_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = chunkStmt.Close() }()

	embStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO embeddings (chunk_id, dim, vector) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer func() { _ = embStmt.Close() }()

	postStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO postings (term, chunk_id, freq) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer func() { _ = postStmt.Close() }()

	for i, chunk := range chunks {
		if err := chunk.ValidateContent(); err != nil {
			return fmt.Errorf("invalid chunk %q: %w", chunk.ID, err)
		}

		if _, err := chunkStmt.ExecContext(ctx,
			chunk.ID, chunk.SourcePath, chunk.Content,
			chunk.Position.Ordinal, chunk.Position.Start, chunk.Position.End,
			chunk.Language, lengths[i]); err != nil {
			return fmt.Errorf("failed to insert chunk %q: %w", chunk.ID, err)
		}

		if _, err := embStmt.ExecContext(ctx,
			chunk.ID, len(chunk.Embedding), serializeVector(chunk.Embedding)); err != nil {
			return fmt.Errorf("failed to insert embedding for %q: %w", chunk.ID, err)
		}

		for term, freq := range termFreqs[i] {
			if _, err := postStmt.ExecContext(ctx, term, ids[i], freq); err != nil {
				return fmt.Errorf("failed to insert posting %q/%q: %w", term, ids[i], err)
			}
		}
	}

	meta := map[string]string{
		metaEmbeddingDim: strconv.Itoa(dim),
		metaChunkCount:   strconv.Itoa(len(chunks)),
		metaBuiltAt:      time.Now().UTC().Format(time.RFC3339),
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO index_meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to write meta %q: %w", key, err)
		}
	}

	return tx.Commit()
}

// LoadedIndex is the result of restoring a persisted index: the chunk
// corpus plus both rebuilt search indexes.
type LoadedIndex struct {
	Chunks    []types.Chunk
	ByID      map[string]types.Chunk
	Vector    *index.VectorIndex
	Keyword   *index.KeywordIndex
	Dimension int
}

// LoadIndex restores the corpus and both indexes from the file. A missing,
// corrupt, or dimension-inconsistent file fails with ErrIndexLoad; the
// caller must not serve queries from a partially loaded index.
func (s *Store) LoadIndex(ctx context.Context, tok *tokenizer.Tokenizer) (*LoadedIndex, error) {
	wantDim, err := s.metaInt(ctx, metaEmbeddingDim)
	if err != nil {
		return nil, types.IndexLoadError(s.path, err)
	}
	wantCount, err := s.metaInt(ctx, metaChunkCount)
	if err != nil {
		return nil, types.IndexLoadError(s.path, err)
	}

	chunks, lengths, err := s.loadChunks(ctx, wantDim)
	if err != nil {
		return nil, types.IndexLoadError(s.path, err)
	}
	if len(chunks) != wantCount {
		return nil, types.IndexLoadError(s.path,
			fmt.Errorf("chunk count %d does not match recorded %d", len(chunks), wantCount))
	}

	termFreqs, err := s.loadPostings(ctx, chunks)
	if err != nil {
		return nil, types.IndexLoadError(s.path, err)
	}

	vector, err := index.BuildVector(chunks)
	if err != nil {
		return nil, types.IndexLoadError(s.path, err)
	}

	ids := make([]string, len(chunks))
	byID := make(map[string]types.Chunk, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ID
		byID[chunk.ID] = chunk
	}
	keyword := index.NewKeywordFromStats(ids, termFreqs, lengths, tok)

	return &LoadedIndex{
		Chunks:    chunks,
		ByID:      byID,
		Vector:    vector,
		Keyword:   keyword,
		Dimension: wantDim,
	}, nil
}

// Status reports summary statistics about the persisted index.
func (s *Store) Status(ctx context.Context) (*Status, error) {
	status := &Status{SchemaVersion: CurrentSchemaVersion}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&status.ChunkCount); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT term) FROM postings").Scan(&status.TermCount); err != nil {
		return nil, err
	}

	if dim, err := s.metaInt(ctx, metaEmbeddingDim); err == nil {
		status.EmbeddingDim = dim
	}
	var builtAt string
	if err := s.db.QueryRowContext(ctx,
		"SELECT value FROM index_meta WHERE key = ?", metaBuiltAt).Scan(&builtAt); err == nil {
		if t, err := time.Parse(time.RFC3339, builtAt); err == nil {
			status.BuiltAt = t
		}
	}

	return status, nil
}

// Path returns the index file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) metaInt(ctx context.Context, key string) (int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM index_meta WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("meta key %q missing: index never built", key)
	}
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("meta key %q corrupt: %w", key, err)
	}
	return value, nil
}

func (s *Store) loadChunks(ctx context.Context, wantDim int) ([]types.Chunk, []int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.source_path, c.content, c.ordinal, c.start_offset, c.end_offset,
		       c.language, c.token_length, e.dim, e.vector
		FROM chunks c
		INNER JOIN embeddings e ON e.chunk_id = c.id
		ORDER BY c.rowid
	`)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	var chunks []types.Chunk
	var lengths []int
	for rows.Next() {
		var chunk types.Chunk
		var length, dim int
		var blob []byte
		if err := rows.Scan(&chunk.ID, &chunk.SourcePath, &chunk.Content,
			&chunk.Position.Ordinal, &chunk.Position.Start, &chunk.Position.End,
			&chunk.Language, &length, &dim, &blob); err != nil {
			return nil, nil, err
		}
		if dim != wantDim {
			return nil, nil, types.DimensionMismatchError(wantDim, dim)
		}
		if len(blob) != dim*4 {
			return nil, nil, fmt.Errorf("embedding blob for %q is %d bytes, want %d", chunk.ID, len(blob), dim*4)
		}
		chunk.Embedding = deserializeVector(blob)
		chunks = append(chunks, chunk)
		lengths = append(lengths, length)
	}
	return chunks, lengths, rows.Err()
}

func (s *Store) loadPostings(ctx context.Context, chunks []types.Chunk) ([]map[string]int, error) {
	position := make(map[string]int, len(chunks))
	for i, chunk := range chunks {
		position[chunk.ID] = i
	}

	termFreqs := make([]map[string]int, len(chunks))
	for i := range termFreqs {
		termFreqs[i] = make(map[string]int)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT term, chunk_id, freq FROM postings")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var term, chunkID string
		var freq int
		if err := rows.Scan(&term, &chunkID, &freq); err != nil {
			return nil, err
		}
		i, ok := position[chunkID]
		if !ok {
			return nil, fmt.Errorf("posting references unknown chunk %q", chunkID)
		}
		termFreqs[i][term] = freq
	}
	return termFreqs, rows.Err()
}
