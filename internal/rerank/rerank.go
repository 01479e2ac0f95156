package rerank

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelsearch/kestrel/pkg/types"
)

const (
	// DefaultBatchSize is the number of candidates scored per scorer call.
	DefaultBatchSize = 32
	// DefaultThreshold drops candidates scoring below it after reranking.
	DefaultThreshold = 0.35
	// DefaultMinQueryWords skips reranking for shorter queries.
	DefaultMinQueryWords = 5
	// DefaultMinCandidates skips reranking when the pool is this small or smaller.
	DefaultMinCandidates = 3
	// DefaultCacheSize bounds the score cache entry count.
	DefaultCacheSize = 256
	// DefaultCacheTTL expires cached score lists.
	DefaultCacheTTL = time.Hour

	maxBatchWorkers = 4
)

// Config controls reranking behavior. Zero values take the package defaults;
// CacheSize < 0 disables the cache entirely.
type Config struct {
	BatchSize     int
	Threshold     float64
	MinQueryWords int
	MinCandidates int
	CacheSize     int
	CacheTTL      time.Duration
}

type cachedScore struct {
	id    string
	score float64
}

type cacheEntry struct {
	scores    []cachedScore
	expiresAt time.Time
}

// Reranker re-scores fused candidates with a cross-encoder style Scorer and
// filters by a relevance threshold. It skips scoring when the query or the
// candidate pool is too small for reranking to improve on fusion.
type Reranker struct {
	scorer        Scorer
	batchSize     int
	threshold     float64
	minQueryWords int
	minCandidates int
	cacheTTL      time.Duration

	cacheMu sync.Mutex
	cache   *lru.Cache[string, cacheEntry]
}

// New creates a Reranker around the given scorer.
func New(scorer Scorer, cfg Config) (*Reranker, error) {
	if scorer == nil {
		return nil, errors.New("rerank: scorer is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MinQueryWords <= 0 {
		cfg.MinQueryWords = DefaultMinQueryWords
	}
	if cfg.MinCandidates <= 0 {
		cfg.MinCandidates = DefaultMinCandidates
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	r := &Reranker{
		scorer:        scorer,
		batchSize:     cfg.BatchSize,
		threshold:     cfg.Threshold,
		minQueryWords: cfg.MinQueryWords,
		minCandidates: cfg.MinCandidates,
		cacheTTL:      cfg.CacheTTL,
	}

	if cfg.CacheSize >= 0 {
		size := cfg.CacheSize
		if size == 0 {
			size = DefaultCacheSize
		}
		cache, err := lru.New[string, cacheEntry](size)
		if err != nil {
			return nil, fmt.Errorf("create score cache: %w", err)
		}
		r.cache = cache
	}

	return r, nil
}

// Rerank scores candidates against the query and returns them sorted by
// rerank score descending, with sub-threshold candidates removed. The
// returned bool reports whether reranking actually ran; when it did not,
// candidates come back unchanged. A scorer failure returns
// types.ErrRerankerUnavailable and the untouched input so callers can fall
// back to the fused ordering.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []types.ScoredCandidate) ([]types.ScoredCandidate, bool, error) {
	if len(candidates) <= r.minCandidates || len(strings.Fields(query)) < r.minQueryWords {
		return candidates, false, nil
	}

	key := cacheKey(query, candidates)
	if scores, ok := r.cacheGet(key); ok {
		return r.apply(candidates, scores), true, nil
	}

	scores, err := r.scoreBatches(ctx, query, candidates)
	if err != nil {
		return candidates, false, fmt.Errorf("%w: %v", types.ErrRerankerUnavailable, err)
	}

	cached := make([]cachedScore, len(candidates))
	for i, c := range candidates {
		cached[i] = cachedScore{id: c.ID, score: scores[i]}
	}
	r.cacheSet(key, cached)

	return r.apply(candidates, cached), true, nil
}

// scoreBatches partitions candidates into fixed-size batches and scores them
// concurrently, writing results back by position so batching never perturbs
// candidate order or score values.
func (r *Reranker) scoreBatches(ctx context.Context, query string, candidates []types.ScoredCandidate) ([]float64, error) {
	scores := make([]float64, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBatchWorkers)

	for start := 0; start < len(candidates); start += r.batchSize {
		end := start + r.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		start, end := start, end

		g.Go(func() error {
			docs := make([]string, end-start)
			for i, c := range candidates[start:end] {
				docs[i] = c.Content
			}
			batchScores, err := r.scorer.Score(gctx, query, docs)
			if err != nil {
				return err
			}
			copy(scores[start:end], batchScores)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// apply attaches scores to candidates, sorts by score descending, and drops
// candidates below the threshold. Ties keep the incoming (fused) order. The
// result may be empty; verdicting on an empty pool is the evaluator's job.
func (r *Reranker) apply(candidates []types.ScoredCandidate, scores []cachedScore) []types.ScoredCandidate {
	byID := make(map[string]float64, len(scores))
	for _, s := range scores {
		byID[s.id] = s.score
	}

	out := make([]types.ScoredCandidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].RerankScore = byID[out[i].ID]
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})

	kept := out[:0]
	for _, c := range out {
		if c.RerankScore >= r.threshold {
			kept = append(kept, c)
		}
	}
	return kept
}

// cacheKey hashes the query together with the sorted candidate IDs, so hits
// require the exact same query over the exact same candidate set.
func cacheKey(query string, candidates []types.ScoredCandidate) string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(query))
	for _, id := range ids {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (r *Reranker) cacheGet(key string) ([]cachedScore, bool) {
	if r.cache == nil {
		return nil, false
	}
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	entry, ok := r.cache.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		r.cache.Remove(key)
		return nil, false
	}

	scores := make([]cachedScore, len(entry.scores))
	copy(scores, entry.scores)
	return scores, true
}

func (r *Reranker) cacheSet(key string, scores []cachedScore) {
	if r.cache == nil {
		return
	}
	stored := make([]cachedScore, len(scores))
	copy(stored, scores)

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.cache.Add(key, cacheEntry{scores: stored, expiresAt: time.Now().Add(r.cacheTTL)})
}
