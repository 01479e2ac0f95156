package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsearch/kestrel/internal/tokenizer"
	"github.com/kestrelsearch/kestrel/pkg/types"
)

func testChunks() []types.Chunk {
	return []types.Chunk{
		{
			ID:         "py-0",
			SourcePath: "docs/python.md",
			Content:    "Python is a dynamically typed programming language.",
			Language:   types.LanguageProse,
			Embedding:  []float32{1, 0, 0},
		},
		{
			ID:         "go-0",
			SourcePath: "docs/go.md",
			Content:    "Go is a statically typed compiled language.",
			Language:   types.LanguageProse,
			Embedding:  []float32{0, 1, 0},
		},
		{
			ID:         "code-0",
			SourcePath: "src/auth.go",
			Content:    "func getUserName(id string) string { return lookupUser(id).Name }",
			Language:   types.LanguageCode,
			Embedding:  []float32{0, 0, 1},
		},
	}
}

func TestBuildVector_DimensionMismatch(t *testing.T) {
	chunks := testChunks()
	chunks[2].Embedding = []float32{1, 2}

	_, err := BuildVector(chunks)

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestBuildVector_MissingEmbedding(t *testing.T) {
	chunks := testChunks()
	chunks[1].Embedding = nil

	_, err := BuildVector(chunks)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestVectorSearch_RanksBySimilarity(t *testing.T) {
	idx, err := BuildVector(testChunks())
	require.NoError(t, err)

	matches, err := idx.Search([]float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "py-0", matches[0].ID)
	assert.Equal(t, "go-0", matches[1].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestVectorSearch_KLargerThanCorpus(t *testing.T) {
	idx, err := BuildVector(testChunks())
	require.NoError(t, err)

	matches, err := idx.Search([]float32{1, 0, 0}, 100)
	require.NoError(t, err)

	assert.Len(t, matches, 3)
}

func TestVectorSearch_QueryDimensionMismatch(t *testing.T) {
	idx, err := BuildVector(testChunks())
	require.NoError(t, err)

	_, err = idx.Search([]float32{1, 0}, 5)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
}

func TestVectorSearch_EmptyIndex(t *testing.T) {
	idx, err := BuildVector(nil)
	require.NoError(t, err)

	matches, err := idx.Search([]float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestKeywordSearch_RanksByBM25(t *testing.T) {
	idx := BuildKeyword(testChunks(), tokenizer.New())

	matches := idx.Search("python programming", 10)

	require.NotEmpty(t, matches)
	assert.Equal(t, "py-0", matches[0].ID)
}

func TestKeywordSearch_CodeAware(t *testing.T) {
	idx := BuildKeyword(testChunks(), tokenizer.New())

	// "user name" should reach getUserName through identifier splitting.
	matches := idx.Search("user name", 10)

	require.NotEmpty(t, matches)
	assert.Equal(t, "code-0", matches[0].ID)
}

func TestKeywordSearch_OutOfVocabulary(t *testing.T) {
	idx := BuildKeyword(testChunks(), tokenizer.New())

	assert.Empty(t, idx.Search("zxcvbnm qwerty", 10))
	assert.Empty(t, idx.Search("", 10))
}

func TestKeywordSearch_EmptyIndex(t *testing.T) {
	idx := BuildKeyword(nil, tokenizer.New())

	assert.Empty(t, idx.Search("anything", 10))
}

func TestKeywordSearch_TopKTruncation(t *testing.T) {
	idx := BuildKeyword(testChunks(), tokenizer.New())

	matches := idx.Search("language", 1)

	assert.Len(t, matches, 1)
}

func TestNewKeywordFromStats_RoundTrip(t *testing.T) {
	tok := tokenizer.New()
	built := BuildKeyword(testChunks(), tok)

	ids, termFreqs, lengths := built.Stats()
	restored := NewKeywordFromStats(ids, termFreqs, lengths, tok)

	for _, query := range []string{"python programming", "user name", "typed language"} {
		assert.Equal(t, built.Search(query, 10), restored.Search(query, 10), "query %q", query)
	}
}
