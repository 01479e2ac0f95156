package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kestrelsearch/kestrel/internal/tokenizer"
)

// Scorer produces a relevance score per (query, document) pair, scored
// jointly in the cross-encoder style: each score depends only on the query
// and that document's content, never on the document's prior rank.
type Scorer interface {
	// Score returns one score in [0,1] per document, in input order.
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}

// LexicalScorer is a model-free scorer: query-term overlap against the
// document with a log-scaled term-frequency bonus and partial-match credit.
// Deterministic, no I/O. The default scorer when no model endpoint is
// configured.
type LexicalScorer struct {
	tok *tokenizer.Tokenizer
}

// NewLexicalScorer creates a LexicalScorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{tok: tokenizer.New()}
}

func (s *LexicalScorer) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	queryTerms := dedupe(s.tok.Tokenize(query, ""))

	scores := make([]float64, len(documents))
	for i, doc := range documents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		scores[i] = s.scoreOne(queryTerms, doc)
	}
	return scores, nil
}

func (s *LexicalScorer) scoreOne(queryTerms []string, document string) float64 {
	if len(queryTerms) == 0 || document == "" {
		return 0
	}

	termFreq := make(map[string]int)
	for _, term := range s.tok.Tokenize(document, "") {
		termFreq[term]++
	}

	score := 0.0
	for _, qt := range queryTerms {
		if freq, ok := termFreq[qt]; ok {
			score += 1.0 + math.Log1p(float64(freq-1))*0.1
			continue
		}
		// Partial-match credit for substring containment either way.
		for ct, freq := range termFreq {
			if len(ct) > 2 && len(qt) > 2 && (strings.Contains(ct, qt) || strings.Contains(qt, ct)) {
				score += 0.5 + math.Log1p(float64(freq-1))*0.05
				break
			}
		}
	}

	normalized := score / (float64(len(queryTerms)) * 1.5)
	if normalized > 1.0 {
		normalized = 1.0
	}
	return normalized
}

func dedupe(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, term := range terms {
		if !seen[term] {
			seen[term] = true
			out = append(out, term)
		}
	}
	return out
}

// HTTPScorer calls an external cross-encoder model behind a /rerank-shaped
// endpoint: {"query": ..., "documents": [...]} -> {"scores": [...]}.
type HTTPScorer struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewHTTPScorer creates a scorer backed by an external reranking service.
func NewHTTPScorer(endpoint, apiKey, model string, timeout time.Duration) *HTTPScorer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPScorer{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *HTTPScorer) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	reqBody := map[string]interface{}{
		"query":     query,
		"documents": documents,
	}
	if s.model != "" {
		reqBody["model"] = s.model
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Scores) != len(documents) {
		return nil, fmt.Errorf("scored %d documents, want %d", len(apiResp.Scores), len(documents))
	}

	return apiResp.Scores, nil
}
