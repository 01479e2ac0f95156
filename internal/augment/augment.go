// Package augment fetches supplementary artifacts from an external
// knowledge provider when the local index cannot answer a query. The
// augmenter is strictly best-effort: every failure mode, including timeout,
// degrades to an empty result so retrieval always completes on local
// artifacts alone.
package augment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kestrelsearch/kestrel/pkg/types"
)

// DefaultTimeout is the hard ceiling on one external fetch.
const DefaultTimeout = 5 * time.Second

// DefaultMaxResults bounds how many external artifacts one fetch may return.
const DefaultMaxResults = 5

// Document is one externally sourced passage.
type Document struct {
	Content string
	Origin  string
}

// Provider fetches external documents for a query. Implementations must
// honor context cancellation.
type Provider interface {
	Fetch(ctx context.Context, query string, limit int) ([]Document, error)
}

// Augmenter wraps a Provider with a hard timeout and converts its documents
// into chunk artifacts distinguishable from indexed ones.
type Augmenter struct {
	provider   Provider
	timeout    time.Duration
	maxResults int
	logger     zerolog.Logger
}

// New creates an Augmenter. A nil provider is allowed and yields an
// augmenter that always returns no artifacts.
func New(provider Provider, timeout time.Duration, maxResults int, logger zerolog.Logger) *Augmenter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Augmenter{
		provider:   provider,
		timeout:    timeout,
		maxResults: maxResults,
		logger:     logger,
	}
}

// Augment fetches external artifacts for the query. It never returns an
// error: provider failures, timeouts, and malformed responses all come back
// as an empty slice, logged at warn level.
func (a *Augmenter) Augment(ctx context.Context, query string) []types.Chunk {
	if a.provider == nil {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	docs, err := a.provider.Fetch(fetchCtx, query, a.maxResults)
	if err != nil {
		a.logger.Warn().Err(err).Str("query", query).Msg("external augmentation failed")
		return nil
	}

	chunks := make([]types.Chunk, 0, len(docs))
	for i, doc := range docs {
		if i >= a.maxResults {
			break
		}
		if doc.Content == "" {
			continue
		}
		chunks = append(chunks, types.Chunk{
			ID:         "ext-" + uuid.NewString(),
			SourcePath: doc.Origin,
			Content:    doc.Content,
			Position:   types.Position{Ordinal: i},
			Language:   types.LanguageExternal,
		})
	}
	return chunks
}

// HTTPProvider fetches documents from a JSON search endpoint:
// {"query": ..., "limit": N} -> {"results": [{"content": ..., "origin": ...}]}.
type HTTPProvider struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider for the given endpoint.
func NewHTTPProvider(endpoint, apiKey string) (*HTTPProvider, error) {
	if endpoint == "" {
		return nil, errors.New("augment: endpoint is required")
	}
	return &HTTPProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		// No client-level timeout: the caller's context bounds the fetch.
		httpClient: &http.Client{},
	}, nil
}

func (p *HTTPProvider) Fetch(ctx context.Context, query string, limit int) ([]Document, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query": query,
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrExternalProvider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", types.ErrExternalProvider, resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Results []struct {
			Content string `json:"content"`
			Origin  string `json:"origin"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", types.ErrExternalProvider, err)
	}

	docs := make([]Document, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		docs = append(docs, Document{Content: r.Content, Origin: r.Origin})
	}
	return docs, nil
}
