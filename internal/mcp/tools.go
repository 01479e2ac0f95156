package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kestrelsearch/kestrel/internal/retrieval"
	"github.com/kestrelsearch/kestrel/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery    = -32004 // Query parameter is empty
)

// handleRetrieve handles the retrieve tool invocation
func (s *Server) handleRetrieve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	tokenBudget := getIntDefault(args, "token_budget", 0)
	if tokenBudget < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "token_budget must be positive", map[string]interface{}{
			"param": "token_budget",
			"value": tokenBudget,
		})
	}

	maxArtifacts := getIntDefault(args, "max_artifacts", 0)
	if maxArtifacts < 0 || maxArtifacts > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_artifacts must be between 1 and 100", map[string]interface{}{
			"param": "max_artifacts",
			"value": maxArtifacts,
		})
	}

	result, err := s.orchestrator.Retrieve(ctx, retrieval.Request{
		Query:        query,
		TokenBudget:  tokenBudget,
		MaxArtifacts: maxArtifacts,
	})
	if err != nil {
		if errors.Is(err, types.ErrEmptyQuery) {
			return nil, newMCPError(ErrorCodeEmptyQuery, "query is empty or whitespace-only", nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	artifacts := make([]map[string]interface{}, len(result.Artifacts))
	for i, a := range result.Artifacts {
		artifacts[i] = map[string]interface{}{
			"id":          a.ID,
			"source_path": a.SourcePath,
			"content":     a.Content,
			"language":    a.Language,
			"ordinal":     a.Position.Ordinal,
		}
	}

	response := map[string]interface{}{
		"artifacts":             artifacts,
		"tokens_used":           result.TokensUsed,
		"candidates_considered": result.CandidatesConsidered,
		"elapsed_ms":            result.Elapsed.Milliseconds(),
		"reranked":              result.Reranked,
		"strategy":              string(result.Strategy),
	}
	if result.QualityVerdict != nil {
		response["quality_verdict"] = map[string]interface{}{
			"category":  string(result.QualityVerdict.Category),
			"score":     result.QualityVerdict.Score,
			"breakdown": result.QualityVerdict.Breakdown,
		}
	}
	if result.Correction != nil {
		correction := map[string]interface{}{
			"kind":    string(result.Correction.Kind),
			"applied": result.Correction.Applied,
		}
		if result.Correction.ExpandedQuery != "" {
			correction["expanded_query"] = result.Correction.ExpandedQuery
		}
		response["correction"] = correction
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.store.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"index_path":     s.store.Path(),
		"schema_version": status.SchemaVersion,
		"statistics": map[string]interface{}{
			"chunks_count":  status.ChunkCount,
			"terms_count":   status.TermCount,
			"embedding_dim": status.EmbeddingDim,
		},
	}
	if !status.BuiltAt.IsZero() {
		response["built_at"] = status.BuiltAt.Format("2006-01-02T15:04:05Z07:00")
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}
