package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsearch/kestrel/internal/index"
	"github.com/kestrelsearch/kestrel/internal/tokenizer"
	"github.com/kestrelsearch/kestrel/pkg/types"
)

func testCorpus() []types.Chunk {
	return []types.Chunk{
		{
			ID:         "py-0",
			SourcePath: "docs/python.md",
			Content:    "Python is a dynamically typed programming language.",
			Position:   types.Position{Ordinal: 0, Start: 0, End: 51},
			Language:   types.LanguageProse,
			Embedding:  []float32{0.9, 0.1, 0},
		},
		{
			ID:         "go-0",
			SourcePath: "docs/go.md",
			Content:    "Go compiles quickly and has goroutines for concurrency.",
			Position:   types.Position{Ordinal: 0, Start: 0, End: 55},
			Language:   types.LanguageProse,
			Embedding:  []float32{0.1, 0.9, 0},
		},
	}
}

func setupStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestSaveAndLoadIndex_RoundTrip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	tok := tokenizer.New()

	chunks := testCorpus()
	keyword := index.BuildKeyword(chunks, tok)
	require.NoError(t, store.SaveIndex(ctx, chunks, keyword))

	loaded, err := store.LoadIndex(ctx, tok)
	require.NoError(t, err)

	assert.Equal(t, 3, loaded.Dimension)
	require.Len(t, loaded.Chunks, 2)
	assert.Equal(t, chunks[0].Content, loaded.ByID["py-0"].Content)
	assert.Equal(t, chunks[0].Position, loaded.ByID["py-0"].Position)

	// Search behavior round-trips exactly.
	original, err := index.BuildVector(chunks)
	require.NoError(t, err)
	wantVec, err := original.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	gotVec, err := loaded.Vector.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, wantVec, gotVec)

	assert.Equal(t, keyword.Search("python", 10), loaded.Keyword.Search("python", 10))
	assert.Equal(t, keyword.Search("goroutines concurrency", 10), loaded.Keyword.Search("goroutines concurrency", 10))
}

func TestLoadIndex_NeverBuilt(t *testing.T) {
	store := setupStore(t)

	_, err := store.LoadIndex(context.Background(), tokenizer.New())

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrIndexLoad)
}

func TestLoadIndex_CorruptEmbedding(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	tok := tokenizer.New()

	chunks := testCorpus()
	require.NoError(t, store.SaveIndex(ctx, chunks, index.BuildKeyword(chunks, tok)))

	// Truncate one embedding blob behind the store's back.
	_, err := store.db.ExecContext(ctx,
		"UPDATE embeddings SET vector = X'0000' WHERE chunk_id = 'py-0'")
	require.NoError(t, err)

	_, err = store.LoadIndex(ctx, tok)
	assert.ErrorIs(t, err, types.ErrIndexLoad)
}

func TestLoadIndex_DimensionTampered(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	tok := tokenizer.New()

	chunks := testCorpus()
	require.NoError(t, store.SaveIndex(ctx, chunks, index.BuildKeyword(chunks, tok)))

	_, err := store.db.ExecContext(ctx,
		"UPDATE index_meta SET value = '7' WHERE key = 'embedding_dim'")
	require.NoError(t, err)

	_, err = store.LoadIndex(ctx, tok)
	assert.ErrorIs(t, err, types.ErrIndexLoad)
}

func TestSaveIndex_DimensionMismatch(t *testing.T) {
	store := setupStore(t)
	tok := tokenizer.New()

	chunks := testCorpus()
	chunks[1].Embedding = []float32{1, 2}

	err := store.SaveIndex(context.Background(), chunks, index.BuildKeyword(chunks, tok))
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestSaveIndex_ReplacesPrevious(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	tok := tokenizer.New()

	chunks := testCorpus()
	require.NoError(t, store.SaveIndex(ctx, chunks, index.BuildKeyword(chunks, tok)))

	// Rebuild with only one chunk; the old corpus must be gone.
	smaller := chunks[:1]
	require.NoError(t, store.SaveIndex(ctx, smaller, index.BuildKeyword(smaller, tok)))

	loaded, err := store.LoadIndex(ctx, tok)
	require.NoError(t, err)
	assert.Len(t, loaded.Chunks, 1)
	assert.Empty(t, loaded.Keyword.Search("goroutines", 10))
}

func TestStatus(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	tok := tokenizer.New()

	chunks := testCorpus()
	require.NoError(t, store.SaveIndex(ctx, chunks, index.BuildKeyword(chunks, tok)))

	status, err := store.Status(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, status.ChunkCount)
	assert.Equal(t, 3, status.EmbeddingDim)
	assert.Greater(t, status.TermCount, 0)
	assert.False(t, status.BuiltAt.IsZero())
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	store := setupStore(t)

	// Open already applied migrations; applying again is a no-op.
	require.NoError(t, ApplyMigrations(context.Background(), store.db))
}
