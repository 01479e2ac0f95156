package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/kestrelsearch/kestrel/internal/augment"
	"github.com/kestrelsearch/kestrel/internal/classify"
	"github.com/kestrelsearch/kestrel/internal/config"
	"github.com/kestrelsearch/kestrel/internal/embedder"
	"github.com/kestrelsearch/kestrel/internal/evaluate"
	"github.com/kestrelsearch/kestrel/internal/expand"
	"github.com/kestrelsearch/kestrel/internal/rerank"
	"github.com/kestrelsearch/kestrel/internal/retrieval"
	"github.com/kestrelsearch/kestrel/internal/storage"
	"github.com/kestrelsearch/kestrel/internal/tokenizer"
)

const (
	// ServerName is the MCP server name
	ServerName = "kestrel"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with the retrieval pipeline dependencies.
type Server struct {
	mcp          *server.MCPServer
	store        *storage.Store
	orchestrator *retrieval.Orchestrator
	logger       zerolog.Logger
}

// NewServer builds the full pipeline from configuration: it opens the index
// file, loads both indexes into memory, and wires every component into one
// orchestrator. A missing or corrupt index is fatal here; the server never
// starts serving queries over a half-loaded index.
func NewServer(cfg config.Specification, logger zerolog.Logger) (*Server, error) {
	store, err := storage.Open(cfg.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	tok := tokenizer.New()
	idx, err := store.LoadIndex(context.Background(), tok)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedder.Provider,
		Endpoint:  cfg.Embedder.Endpoint,
		APIKey:    cfg.Embedder.APIKey,
		Model:     cfg.Embedder.Model,
		Dimension: cfg.Embedder.Dimension,
		CacheSize: cfg.Embedder.CacheSize,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if emb.Dimension() != idx.Dimension {
		// The vector leg will fail per-query and searches degrade to
		// keyword-only; surface the misconfiguration once at startup.
		logger.Warn().
			Int("embedder_dim", emb.Dimension()).
			Int("index_dim", idx.Dimension).
			Msg("embedder dimension does not match index, vector search will be skipped")
	}

	var scorer rerank.Scorer
	if cfg.Rerank.Endpoint != "" {
		scorer = rerank.NewHTTPScorer(cfg.Rerank.Endpoint, cfg.Rerank.APIKey, cfg.Rerank.Model, 0)
	} else {
		scorer = rerank.NewLexicalScorer()
	}
	reranker, err := rerank.New(scorer, rerank.Config{
		BatchSize:     cfg.Rerank.BatchSize,
		Threshold:     cfg.Rerank.Threshold,
		MinQueryWords: cfg.Rerank.MinQueryWords,
		CacheSize:     cfg.Rerank.CacheSize,
		CacheTTL:      time.Duration(cfg.Rerank.CacheTTLMin) * time.Minute,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize reranker: %w", err)
	}

	var augmenter retrieval.Augmenter
	if cfg.Augmenter.Endpoint != "" {
		provider, err := augment.NewHTTPProvider(cfg.Augmenter.Endpoint, cfg.Augmenter.APIKey)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to initialize augmenter: %w", err)
		}
		augmenter = augment.New(provider,
			time.Duration(cfg.Augmenter.TimeoutSeconds)*time.Second,
			cfg.Augmenter.MaxResults, logger)
	}

	orch, err := retrieval.New(
		idx,
		emb,
		classify.New(cfg.Retrieval.EnableMultiStep),
		reranker,
		evaluate.New(cfg.Retrieval.RelevantThreshold, cfg.Retrieval.PartialThreshold),
		expand.New(),
		augmenter,
		retrieval.Options{
			RRFKConst:              float64(cfg.Retrieval.RRFKConst),
			Stage1CandidateCount:   cfg.Retrieval.Stage1CandidateCount,
			TokenBudget:            cfg.Retrieval.TokenBudget,
			MaxArtifacts:           cfg.Retrieval.MaxArtifacts,
			EnableExternalFallback: cfg.Retrieval.EnableExternalFallback,
		},
		logger,
	)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build retrieval pipeline: %w", err)
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:          mcpServer,
		store:        store,
		orchestrator: orch,
		logger:       logger,
	}

	s.registerTools()

	logger.Info().
		Str("index_path", cfg.IndexPath).
		Int("chunks", len(idx.Chunks)).
		Int("dimension", idx.Dimension).
		Msg("retrieval pipeline ready")

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.store.Close() }()
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(retrieveTool(), s.handleRetrieve)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
