package types

import "time"

// Strategy identifies which retrieval path produced a RetrievalResult.
type Strategy string

const (
	StrategyNoRetrieval      Strategy = "no_retrieval"
	StrategySinglePass       Strategy = "single_pass"
	StrategyCorrected        Strategy = "corrected"
	StrategyExternalFallback Strategy = "external_fallback"
)

// VerdictCategory classifies a retrieval's quality.
type VerdictCategory string

const (
	VerdictRelevant   VerdictCategory = "relevant"
	VerdictPartial    VerdictCategory = "partial"
	VerdictIrrelevant VerdictCategory = "irrelevant"
)

// CorrectionKind identifies which corrective action was applied.
type CorrectionKind string

const (
	CorrectionQueryExpansion CorrectionKind = "query_expansion"
	CorrectionExternal       CorrectionKind = "external_augmentation"
)

// Verdict is the relevance evaluator's assessment of a retrieval.
type Verdict struct {
	Category  VerdictCategory    `json:"category"`
	Score     float64            `json:"score"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"` // per-criterion scores in [0,1]
}

// Correction records a corrective action taken, or attempted, before
// returning a result.
type Correction struct {
	Kind          CorrectionKind `json:"kind"`
	ExpandedQuery string         `json:"expanded_query,omitempty"` // set for query expansion
	Applied       bool           `json:"applied"`                  // false when the correction was attempted but yielded nothing
}

// ScoredCandidate is a chunk annotated with per-stage scores. Transient;
// created per query and discarded when the query completes.
type ScoredCandidate struct {
	Chunk

	VectorScore  float64 // cosine similarity, 0 when absent from vector results
	KeywordScore float64 // BM25 score, 0 when absent from keyword results
	FusedScore   float64 // reciprocal rank fusion contribution total
	RerankScore  float64 // cross-encoder score, zero when reranking was skipped
}

// RetrievalResult is the unit returned to the caller. Immutable once returned.
type RetrievalResult struct {
	// Artifacts are the retrieved chunks, ranked best-first.
	Artifacts []Chunk `json:"artifacts"`

	// TokensUsed is the estimated token sum across artifacts. It never
	// exceeds the requested budget except to guarantee the single first
	// artifact.
	TokensUsed int `json:"tokens_used"`

	// Diagnostics
	CandidatesConsidered int           `json:"candidates_considered"`
	Elapsed              time.Duration `json:"elapsed_ms"`
	Reranked             bool          `json:"reranked"` // false when reranking was skipped or failed

	// Strategy is the discriminant: which retrieval path actually ran.
	Strategy Strategy `json:"strategy"`

	// QualityVerdict is the final evaluator verdict. Nil for the
	// no-retrieval fast path, where no evaluation runs.
	QualityVerdict *Verdict `json:"quality_verdict,omitempty"`

	// Correction records a corrective action that was applied or
	// attempted. Nil when the pipeline completed without one.
	Correction *Correction `json:"correction,omitempty"`
}
