// Package retrieval is the top-level coordinator: it sequences strategy
// classification, parallel hybrid search, rank fusion, reranking, relevance
// evaluation, and corrective passes into one bounded state machine. All
// component failures are absorbed here; callers always receive either a
// valid result or a validation error, never a partial one.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelsearch/kestrel/internal/classify"
	"github.com/kestrelsearch/kestrel/internal/fusion"
	"github.com/kestrelsearch/kestrel/internal/index"
	"github.com/kestrelsearch/kestrel/internal/storage"
	"github.com/kestrelsearch/kestrel/pkg/types"
)

// SearchMode selects which index legs run during RETRIEVE.
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // vector + BM25 with rank fusion
	SearchModeVector  SearchMode = "vector"  // vector similarity only
	SearchModeKeyword SearchMode = "keyword" // BM25 only
)

// Component interfaces. The orchestrator owns no component logic; it holds
// references injected at construction so each piece can be faked in tests
// and two pipelines with different settings can coexist in one process.
type (
	// Classifier decides pre-retrieval strategy.
	Classifier interface {
		Classify(query string) (classify.Strategy, string)
	}

	// Embedder produces the query vector for the vector index leg.
	Embedder interface {
		Embed(ctx context.Context, text string) ([]float32, error)
	}

	// Reranker re-scores fused candidates. The bool reports whether
	// reranking actually ran.
	Reranker interface {
		Rerank(ctx context.Context, query string, candidates []types.ScoredCandidate) ([]types.ScoredCandidate, bool, error)
	}

	// Evaluator grades a candidate set against the query.
	Evaluator interface {
		Evaluate(query string, candidates []types.ScoredCandidate) types.Verdict
	}

	// Expander rewrites a query for the corrective pass.
	Expander interface {
		Expand(query string) string
	}

	// Augmenter fetches external artifacts; empty on any failure.
	Augmenter interface {
		Augment(ctx context.Context, query string) []types.Chunk
	}
)

// Options is the orchestrator's immutable configuration.
type Options struct {
	Mode                   SearchMode
	RRFKConst              float64
	Stage1CandidateCount   int
	TokenBudget            int
	MaxArtifacts           int
	EnableExternalFallback bool
}

func (o *Options) fillDefaults() {
	if o.Mode == "" {
		o.Mode = SearchModeHybrid
	}
	if o.RRFKConst <= 0 {
		o.RRFKConst = fusion.DefaultKConst
	}
	if o.Stage1CandidateCount <= 0 {
		o.Stage1CandidateCount = 100
	}
	if o.TokenBudget <= 0 {
		o.TokenBudget = 8000
	}
	if o.MaxArtifacts <= 0 {
		o.MaxArtifacts = 10
	}
}

// Request is one retrieval call. TokenBudget and MaxArtifacts override the
// orchestrator defaults when positive.
type Request struct {
	Query        string
	TokenBudget  int
	MaxArtifacts int
}

// Orchestrator coordinates one retrieval pipeline over a loaded index.
// Safe for concurrent use: the index is read-only at query time and every
// component is shared read-only or internally synchronized.
type Orchestrator struct {
	idx        *storage.LoadedIndex
	embedder   Embedder
	classifier Classifier
	reranker   Reranker
	evaluator  Evaluator
	expander   Expander
	augmenter  Augmenter
	opts       Options
	logger     zerolog.Logger
}

// New constructs an Orchestrator. All components except the augmenter are
// required; a nil augmenter disables external fallback regardless of options.
func New(idx *storage.LoadedIndex, emb Embedder, cls Classifier, rr Reranker,
	ev Evaluator, exp Expander, aug Augmenter, opts Options, logger zerolog.Logger) (*Orchestrator, error) {
	if idx == nil {
		return nil, errors.New("retrieval: loaded index is required")
	}
	if emb == nil || cls == nil || rr == nil || ev == nil || exp == nil {
		return nil, errors.New("retrieval: classifier, embedder, reranker, evaluator, and expander are required")
	}
	opts.fillDefaults()
	if aug == nil {
		opts.EnableExternalFallback = false
	}
	return &Orchestrator{
		idx:        idx,
		embedder:   emb,
		classifier: cls,
		reranker:   rr,
		evaluator:  ev,
		expander:   exp,
		augmenter:  aug,
		opts:       opts,
		logger:     logger,
	}, nil
}

// attempt is one full retrieve+rerank+evaluate pass.
type attempt struct {
	query      string
	candidates []types.ScoredCandidate
	verdict    types.Verdict
	reranked   bool
	considered int
}

// Retrieve runs the full pipeline for one query. A blank query fails with
// ErrEmptyQuery; every other outcome, including a completely failed
// correction, returns a valid result whose strategy and verdict reflect
// what actually happened.
func (o *Orchestrator) Retrieve(ctx context.Context, req Request) (*types.RetrievalResult, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, types.ErrEmptyQuery
	}

	budget := req.TokenBudget
	if budget <= 0 {
		budget = o.opts.TokenBudget
	}
	maxArtifacts := req.MaxArtifacts
	if maxArtifacts <= 0 {
		maxArtifacts = o.opts.MaxArtifacts
	}

	strategy, reasoning := o.classifier.Classify(query)
	o.logger.Debug().
		Str("query", query).
		Str("strategy", string(strategy)).
		Str("reasoning", reasoning).
		Msg("query classified")

	if strategy == classify.NoRetrieval {
		return &types.RetrievalResult{
			Artifacts: []types.Chunk{},
			Strategy:  types.StrategyNoRetrieval,
			Elapsed:   time.Since(start),
		}, nil
	}

	// Bounded correction loop: at most one expansion retry, enforced
	// structurally rather than by convention.
	var (
		final      attempt
		best       attempt
		haveBest   bool
		correction *types.Correction
	)

	currentQuery := query
	for pass := 0; pass < 2; pass++ {
		att, err := o.runPass(ctx, currentQuery)
		if err != nil {
			return nil, err
		}

		if !haveBest || att.verdict.Score > best.verdict.Score {
			best = att
			haveBest = true
		}
		final = att

		if att.verdict.Category == types.VerdictPartial && pass == 0 {
			expanded := o.expander.Expand(currentQuery)
			if expanded != currentQuery {
				o.logger.Debug().
					Str("expanded_query", expanded).
					Float64("score", att.verdict.Score).
					Msg("partial verdict, retrying with expanded query")
				correction = &types.Correction{
					Kind:          types.CorrectionQueryExpansion,
					ExpandedQuery: expanded,
					Applied:       true,
				}
				currentQuery = expanded
				continue
			}
		}
		break
	}

	resultStrategy := types.StrategySinglePass
	if correction != nil {
		resultStrategy = types.StrategyCorrected
	}

	if final.verdict.Category == types.VerdictIrrelevant && o.opts.EnableExternalFallback {
		if ext := o.augmenter.Augment(ctx, query); len(ext) > 0 {
			o.logger.Info().Int("external_artifacts", len(ext)).Msg("falling back to external augmentation")
			artifacts, used := packChunks(ext, budget, maxArtifacts)
			verdict := final.verdict
			return &types.RetrievalResult{
				Artifacts:            artifacts,
				TokensUsed:           used,
				CandidatesConsidered: final.considered,
				Elapsed:              time.Since(start),
				Reranked:             final.reranked,
				Strategy:             types.StrategyExternalFallback,
				QualityVerdict:       &verdict,
				Correction:           &types.Correction{Kind: types.CorrectionExternal, Applied: true},
			}, nil
		}
		// Augmentation yielded nothing: degrade to the best local attempt
		// rather than failing the request.
		o.logger.Warn().Msg("external augmentation returned nothing, using best local result")
		final = best
		if correction == nil {
			correction = &types.Correction{Kind: types.CorrectionExternal, Applied: false}
		}
	}

	artifacts, used := packCandidates(final.candidates, budget, maxArtifacts)
	verdict := final.verdict

	return &types.RetrievalResult{
		Artifacts:            artifacts,
		TokensUsed:           used,
		CandidatesConsidered: final.considered,
		Elapsed:              time.Since(start),
		Reranked:             final.reranked,
		Strategy:             resultStrategy,
		QualityVerdict:       &verdict,
		Correction:           correction,
	}, nil
}

// runPass executes RETRIEVE -> RERANK -> EVALUATE for one query. Reranker
// failure degrades to the fused ordering; only cancellation and structural
// failures propagate.
func (o *Orchestrator) runPass(ctx context.Context, query string) (attempt, error) {
	candidates, err := o.search(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return attempt{}, ctx.Err()
		}
		o.logger.Warn().Err(err).Msg("index search failed, evaluating empty candidate set")
		candidates = nil
	}
	considered := len(candidates)

	ranked, reranked, err := o.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		if ctx.Err() != nil {
			return attempt{}, ctx.Err()
		}
		// Reranking is an enhancement, never a hard requirement.
		o.logger.Warn().Err(err).Msg("reranking unavailable, keeping fused ordering")
		ranked = candidates
		reranked = false
	}

	verdict := o.evaluator.Evaluate(query, ranked)
	o.logger.Debug().
		Str("category", string(verdict.Category)).
		Float64("score", verdict.Score).
		Int("candidates", considered).
		Bool("reranked", reranked).
		Msg("retrieval pass evaluated")

	return attempt{
		query:      query,
		candidates: ranked,
		verdict:    verdict,
		reranked:   reranked,
		considered: considered,
	}, nil
}

// searchLeg is the outcome of one concurrent index search.
type searchLeg struct {
	matches []index.Match
	err     error
}

// search runs the configured index legs and fuses their rankings. In
// hybrid mode the legs run concurrently and one of them is allowed to
// fail; only both failing is an error.
func (o *Orchestrator) search(ctx context.Context, query string) ([]types.ScoredCandidate, error) {
	k := o.opts.Stage1CandidateCount

	switch o.opts.Mode {
	case SearchModeVector:
		leg := o.vectorLeg(ctx, query, k)
		if leg.err != nil {
			return nil, leg.err
		}
		return o.assemble(matchIDs(leg.matches), nil, leg.matches, nil), nil
	case SearchModeKeyword:
		matches := o.idx.Keyword.Search(query, k)
		return o.assemble(nil, matchIDs(matches), nil, matches), nil
	}

	vectorChan := make(chan searchLeg, 1)
	keywordChan := make(chan searchLeg, 1)

	go func() {
		vectorChan <- o.vectorLeg(ctx, query, k)
	}()
	go func() {
		keywordChan <- searchLeg{matches: o.idx.Keyword.Search(query, k)}
	}()

	var vectorRes, keywordRes searchLeg
	var vectorDone, keywordDone bool
	for !vectorDone || !keywordDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case keywordRes = <-keywordChan:
			keywordDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Allow one leg to fail.
	if vectorRes.err != nil && keywordRes.err != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, keyword=%v", vectorRes.err, keywordRes.err)
	}
	if vectorRes.err != nil {
		o.logger.Warn().Err(vectorRes.err).Msg("vector search failed, continuing keyword-only")
	}

	return o.assemble(
		matchIDs(vectorRes.matches), matchIDs(keywordRes.matches),
		vectorRes.matches, keywordRes.matches,
	), nil
}

func (o *Orchestrator) vectorLeg(ctx context.Context, query string, k int) searchLeg {
	embedding, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return searchLeg{err: fmt.Errorf("embed query: %w", err)}
	}
	matches, err := o.idx.Vector.Search(embedding, k)
	if err != nil {
		return searchLeg{err: err}
	}
	return searchLeg{matches: matches}
}

// assemble fuses the two ranked ID lists and annotates each surviving
// chunk with its per-stage scores.
func (o *Orchestrator) assemble(vectorIDs, keywordIDs []string, vectorMatches, keywordMatches []index.Match) []types.ScoredCandidate {
	fusedIDs := fusion.Combine(vectorIDs, keywordIDs, o.opts.Stage1CandidateCount, o.opts.RRFKConst)
	fusedScores := fusion.Scores(vectorIDs, keywordIDs, o.opts.RRFKConst)

	vectorScores := make(map[string]float64, len(vectorMatches))
	for _, m := range vectorMatches {
		vectorScores[m.ID] = m.Score
	}
	keywordScores := make(map[string]float64, len(keywordMatches))
	for _, m := range keywordMatches {
		keywordScores[m.ID] = m.Score
	}

	candidates := make([]types.ScoredCandidate, 0, len(fusedIDs))
	for _, id := range fusedIDs {
		chunk, ok := o.idx.ByID[id]
		if !ok {
			continue
		}
		candidates = append(candidates, types.ScoredCandidate{
			Chunk:        chunk,
			VectorScore:  vectorScores[id],
			KeywordScore: keywordScores[id],
			FusedScore:   fusedScores[id],
		})
	}
	return candidates
}

func matchIDs(matches []index.Match) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return ids
}

// packCandidates greedily packs ranked candidates under the token budget.
// The first candidate is always included even when it alone exceeds the
// budget, so a nonzero-relevance retrieval never returns empty.
func packCandidates(candidates []types.ScoredCandidate, budget, maxArtifacts int) ([]types.Chunk, int) {
	chunks := make([]types.Chunk, len(candidates))
	for i, c := range candidates {
		chunks[i] = c.Chunk
	}
	return packChunks(chunks, budget, maxArtifacts)
}

func packChunks(ranked []types.Chunk, budget, maxArtifacts int) ([]types.Chunk, int) {
	artifacts := make([]types.Chunk, 0, maxArtifacts)
	used := 0
	for _, chunk := range ranked {
		if len(artifacts) >= maxArtifacts {
			break
		}
		cost := types.EstimateTokens(chunk.Content)
		if len(artifacts) > 0 && used+cost > budget {
			continue
		}
		artifacts = append(artifacts, chunk)
		used += cost
	}
	return artifacts, used
}
