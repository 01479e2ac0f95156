package rerank

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsearch/kestrel/pkg/types"
)

// stubScorer scores each document by a fixed table and counts invocations.
type stubScorer struct {
	scores map[string]float64
	calls  atomic.Int64
	err    error
}

func (s *stubScorer) Score(_ context.Context, _ string, documents []string) ([]float64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(documents))
	for i, d := range documents {
		out[i] = s.scores[d]
	}
	return out, nil
}

func makeCandidates(ids ...string) []types.ScoredCandidate {
	out := make([]types.ScoredCandidate, len(ids))
	for i, id := range ids {
		out[i] = types.ScoredCandidate{
			Chunk:      types.Chunk{ID: id, Content: "content " + id},
			FusedScore: 1.0 / float64(i+1),
		}
	}
	return out
}

func TestRerank_SkipsShortQuery(t *testing.T) {
	scorer := &stubScorer{}
	r, err := New(scorer, Config{})
	require.NoError(t, err)

	candidates := makeCandidates("a", "b", "c", "d", "e")
	out, reranked, err := r.Rerank(context.Background(), "fix bug", candidates)
	require.NoError(t, err)

	assert.False(t, reranked)
	assert.Equal(t, candidates, out)
	assert.Equal(t, int64(0), scorer.calls.Load(), "scorer must not run for short queries")
}

func TestRerank_SkipsSmallPool(t *testing.T) {
	scorer := &stubScorer{}
	r, err := New(scorer, Config{})
	require.NoError(t, err)

	candidates := makeCandidates("a", "b", "c")
	out, reranked, err := r.Rerank(context.Background(), "how does the retry backoff calculation work", candidates)
	require.NoError(t, err)

	assert.False(t, reranked)
	assert.Equal(t, candidates, out)
	assert.Equal(t, int64(0), scorer.calls.Load())
}

func TestRerank_SortsAndFilters(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{
		"content a": 0.2,
		"content b": 0.9,
		"content c": 0.6,
		"content d": 0.95,
	}}
	r, err := New(scorer, Config{})
	require.NoError(t, err)

	out, reranked, err := r.Rerank(context.Background(), "how does the retry backoff calculation work", makeCandidates("a", "b", "c", "d"))
	require.NoError(t, err)
	assert.True(t, reranked)

	// "a" is below the 0.35 threshold and must be dropped.
	require.Len(t, out, 3)
	assert.Equal(t, "d", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, "c", out[2].ID)
	assert.InDelta(t, 0.95, out[0].RerankScore, 1e-9)
}

func TestRerank_ThresholdCanEmptyThePool(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{
		"content a": 0.1,
		"content b": 0.2,
		"content c": 0.05,
		"content d": 0.3,
	}}
	r, err := New(scorer, Config{})
	require.NoError(t, err)

	out, reranked, err := r.Rerank(context.Background(), "how does the retry backoff calculation work", makeCandidates("a", "b", "c", "d"))
	require.NoError(t, err)
	assert.True(t, reranked)
	assert.Empty(t, out, "all candidates below threshold are removed")
}

func TestRerank_TiesKeepFusedOrder(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{
		"content a": 0.5,
		"content b": 0.5,
		"content c": 0.5,
		"content d": 0.5,
	}}
	r, err := New(scorer, Config{})
	require.NoError(t, err)

	out, _, err := r.Rerank(context.Background(), "how does the retry backoff calculation work", makeCandidates("a", "b", "c", "d"))
	require.NoError(t, err)

	require.Len(t, out, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, []string{out[0].ID, out[1].ID, out[2].ID, out[3].ID})
}

func TestRerank_BatchingPreservesScores(t *testing.T) {
	scores := make(map[string]float64)
	ids := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		id := string(rune('a'+i%26)) + string(rune('0'+i/26))
		ids = append(ids, id)
		scores["content "+id] = 0.4 + float64(i)/1000.0
	}
	scorer := &stubScorer{scores: scores}

	small, err := New(scorer, Config{BatchSize: 7})
	require.NoError(t, err)
	big, err := New(scorer, Config{BatchSize: 1000})
	require.NoError(t, err)

	query := "how does the retry backoff calculation work"
	outSmall, _, err := small.Rerank(context.Background(), query, makeCandidates(ids...))
	require.NoError(t, err)
	outBig, _, err := big.Rerank(context.Background(), query, makeCandidates(ids...))
	require.NoError(t, err)

	assert.Equal(t, outBig, outSmall, "batch size must not change results")
}

func TestRerank_CacheHitSkipsScorer(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{
		"content a": 0.8,
		"content b": 0.7,
		"content c": 0.6,
		"content d": 0.9,
	}}
	r, err := New(scorer, Config{})
	require.NoError(t, err)

	query := "how does the retry backoff calculation work"
	first, _, err := r.Rerank(context.Background(), query, makeCandidates("a", "b", "c", "d"))
	require.NoError(t, err)
	callsAfterFirst := scorer.calls.Load()

	second, _, err := r.Rerank(context.Background(), query, makeCandidates("a", "b", "c", "d"))
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, scorer.calls.Load(), "second call must be served from cache")
	assert.Equal(t, first, second)
}

func TestRerank_CacheMissOnDifferentCandidateSet(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{
		"content a": 0.8, "content b": 0.7, "content c": 0.6,
		"content d": 0.9, "content e": 0.5,
	}}
	r, err := New(scorer, Config{})
	require.NoError(t, err)

	query := "how does the retry backoff calculation work"
	_, _, err = r.Rerank(context.Background(), query, makeCandidates("a", "b", "c", "d"))
	require.NoError(t, err)
	callsAfterFirst := scorer.calls.Load()

	_, _, err = r.Rerank(context.Background(), query, makeCandidates("a", "b", "c", "e"))
	require.NoError(t, err)
	assert.Greater(t, scorer.calls.Load(), callsAfterFirst, "different candidate set must re-score")
}

func TestRerank_CacheExpires(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{
		"content a": 0.8, "content b": 0.7, "content c": 0.6, "content d": 0.9,
	}}
	r, err := New(scorer, Config{CacheTTL: time.Millisecond})
	require.NoError(t, err)

	query := "how does the retry backoff calculation work"
	_, _, err = r.Rerank(context.Background(), query, makeCandidates("a", "b", "c", "d"))
	require.NoError(t, err)
	callsAfterFirst := scorer.calls.Load()

	time.Sleep(5 * time.Millisecond)

	_, _, err = r.Rerank(context.Background(), query, makeCandidates("a", "b", "c", "d"))
	require.NoError(t, err)
	assert.Greater(t, scorer.calls.Load(), callsAfterFirst, "expired entry must re-score")
}

func TestRerank_DisabledCacheStillWorks(t *testing.T) {
	scorer := &stubScorer{scores: map[string]float64{
		"content a": 0.8, "content b": 0.7, "content c": 0.6, "content d": 0.9,
	}}
	r, err := New(scorer, Config{CacheSize: -1})
	require.NoError(t, err)

	query := "how does the retry backoff calculation work"
	first, _, err := r.Rerank(context.Background(), query, makeCandidates("a", "b", "c", "d"))
	require.NoError(t, err)
	second, _, err := r.Rerank(context.Background(), query, makeCandidates("a", "b", "c", "d"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(2), scorer.calls.Load())
}

func TestRerank_ScorerFailureReturnsInputUnchanged(t *testing.T) {
	scorer := &stubScorer{err: errors.New("model offline")}
	r, err := New(scorer, Config{})
	require.NoError(t, err)

	candidates := makeCandidates("a", "b", "c", "d")
	out, reranked, err := r.Rerank(context.Background(), "how does the retry backoff calculation work", candidates)

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRerankerUnavailable)
	assert.False(t, reranked)
	assert.Equal(t, candidates, out, "failure must leave fused ordering intact")
}

func TestLexicalScorer_OverlapOrdering(t *testing.T) {
	s := NewLexicalScorer()

	scores, err := s.Score(context.Background(), "parse http request headers", []string{
		"func parseHTTPRequest(r io.Reader) { readHeaders(r) }",
		"database connection pooling with retry",
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)

	assert.Greater(t, scores[0], scores[1], "overlapping document must score higher")
	assert.GreaterOrEqual(t, scores[0], 0.0)
	assert.LessOrEqual(t, scores[0], 1.0)
}

func TestLexicalScorer_Deterministic(t *testing.T) {
	s := NewLexicalScorer()
	docs := []string{"retry with exponential backoff", "unrelated text entirely"}

	a, err := s.Score(context.Background(), "exponential backoff retry", docs)
	require.NoError(t, err)
	b, err := s.Score(context.Background(), "exponential backoff retry", docs)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestHTTPScorer_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"scores": [0.9, 0.1]}`))
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, "test-key", "cross-encoder-v1", time.Second)
	scores, err := s.Score(context.Background(), "query", []string{"doc one", "doc two"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.1}, scores)
}

func TestHTTPScorer_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"scores": [0.9]}`))
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, "", "", time.Second)
	_, err := s.Score(context.Background(), "query", []string{"doc one", "doc two"})
	assert.Error(t, err)
}

func TestHTTPScorer_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPScorer(srv.URL, "", "", time.Second)
	_, err := s.Score(context.Background(), "query", []string{"doc"})
	assert.Error(t, err)
}
