package evaluate

import (
	"math"
	"strings"

	"github.com/kestrelsearch/kestrel/pkg/types"
)

// Criterion weights. They sum to 1.0 so the composite stays in [0,1].
const (
	weightKeywordOverlap    = 0.30
	weightSemanticCoherence = 0.40
	weightLengthAdequacy    = 0.15
	weightSourceDiversity   = 0.15

	// DefaultRelevantThreshold: composite strictly above it means relevant.
	DefaultRelevantThreshold = 0.75
	// DefaultPartialThreshold: composite strictly above it (but not above
	// relevant) means partial; at or below means irrelevant.
	DefaultPartialThreshold = 0.50

	// adequateTokensPer is the per-artifact token count considered fully
	// adequate for length scoring.
	adequateTokensPer = 100

	// coherenceVarianceCap bounds how hard score spread can penalize the
	// coherence criterion.
	coherenceVarianceCap = 0.3
)

// stopwords excluded from keyword-overlap scoring. Lowercase, length > 2
// words only; shorter tokens are dropped before the lookup anyway.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "how": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"why": true, "with": true, "this": true, "that": true, "from": true,
	"does": true, "has": true, "have": true, "was": true, "will": true,
	"into": true, "its": true, "use": true, "used": true, "using": true,
}

// Evaluator grades a retrieved artifact set against the query on four
// weighted criteria and maps the composite to a categorical verdict.
type Evaluator struct {
	relevantThreshold float64
	partialThreshold  float64
}

// New creates an Evaluator. Thresholds at or below zero take the defaults.
func New(relevantThreshold, partialThreshold float64) *Evaluator {
	if relevantThreshold <= 0 {
		relevantThreshold = DefaultRelevantThreshold
	}
	if partialThreshold <= 0 {
		partialThreshold = DefaultPartialThreshold
	}
	return &Evaluator{
		relevantThreshold: relevantThreshold,
		partialThreshold:  partialThreshold,
	}
}

// Evaluate grades candidates against the query. An empty candidate set is
// always irrelevant. The verdict carries the per-criterion breakdown for
// logging and diagnostics.
func (e *Evaluator) Evaluate(query string, candidates []types.ScoredCandidate) types.Verdict {
	if len(candidates) == 0 {
		return types.Verdict{
			Category: types.VerdictIrrelevant,
			Score:    0,
			Breakdown: map[string]float64{
				"keyword_overlap":    0,
				"semantic_coherence": 0,
				"length_adequacy":    0,
				"source_diversity":   0,
			},
		}
	}

	overlap := keywordOverlap(query, candidates)
	coherence := semanticCoherence(candidates)
	length := lengthAdequacy(candidates)
	diversity := sourceDiversity(candidates)

	score := weightKeywordOverlap*overlap +
		weightSemanticCoherence*coherence +
		weightLengthAdequacy*length +
		weightSourceDiversity*diversity

	category := types.VerdictIrrelevant
	switch {
	case score > e.relevantThreshold:
		category = types.VerdictRelevant
	case score > e.partialThreshold:
		category = types.VerdictPartial
	}

	return types.Verdict{
		Category: category,
		Score:    score,
		Breakdown: map[string]float64{
			"keyword_overlap":    overlap,
			"semantic_coherence": coherence,
			"length_adequacy":    length,
			"source_diversity":   diversity,
		},
	}
}

// keywordOverlap is the fraction of significant query words found literally
// in the concatenated artifact text. A query with no significant words
// scores zero rather than being skipped.
func keywordOverlap(query string, candidates []types.ScoredCandidate) float64 {
	keywords := significantWords(query)
	if len(keywords) == 0 {
		return 0
	}

	var sb strings.Builder
	for _, c := range candidates {
		sb.WriteString(strings.ToLower(c.Content))
		sb.WriteByte(' ')
	}
	text := sb.String()

	found := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}

func significantWords(query string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if len(w) <= 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// semanticCoherence proxies topical consistency from the retrieval scores:
// a set with uniformly strong scores is more coherent than one whose scores
// are high on average but widely spread. Uses the rerank score when
// reranking ran, the fused score otherwise.
func semanticCoherence(candidates []types.ScoredCandidate) float64 {
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		s := c.RerankScore
		if s == 0 {
			s = normalizeFused(c.FusedScore)
		}
		scores[i] = s
	}

	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	variance := 0.0
	for _, s := range scores {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(scores))

	coherence := mean * (1 - math.Min(variance, coherenceVarianceCap))
	return clamp01(coherence)
}

// normalizeFused maps a reciprocal-rank-fusion score into [0,1]. A candidate
// ranked first in both source lists under the default constant scores about
// 0.033, so scale against that ceiling.
func normalizeFused(fused float64) float64 {
	const maxFused = 2.0 / 61.0
	return clamp01(fused / maxFused)
}

// lengthAdequacy checks the set carries enough material to answer from,
// scaled by set size and capped at full credit.
func lengthAdequacy(candidates []types.ScoredCandidate) float64 {
	total := 0
	for _, c := range candidates {
		total += types.EstimateTokens(c.Content)
	}
	adequate := float64(len(candidates) * adequateTokensPer)
	return math.Min(float64(total)/adequate, 1.0)
}

// sourceDiversity is the ratio of distinct source paths to artifact count.
func sourceDiversity(candidates []types.ScoredCandidate) float64 {
	sources := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		sources[c.SourcePath] = true
	}
	return float64(len(sources)) / float64(len(candidates))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
