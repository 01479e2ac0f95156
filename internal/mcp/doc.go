// Package mcp implements the Model Context Protocol (MCP) server for Kestrel.
//
// The MCP server exposes two tools to AI assistants:
//   - retrieve: Run the full corrective retrieval pipeline for a query
//   - get_status: Check index statistics and health
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server listens on stdin for MCP protocol messages and writes
// responses to stdout; logs go to stderr so they never corrupt the
// protocol stream.
//
// # Tool: retrieve
//
// Retrieve the most relevant artifacts for a query:
//
//	Request:
//	{
//	  "name": "retrieve",
//	  "arguments": {
//	    "query": "how does connection pooling work",
//	    "token_budget": 4000,
//	    "max_artifacts": 5
//	  }
//	}
//
//	Response:
//	{
//	  "artifacts": [
//	    {"id": "db-12", "source_path": "internal/db/pool.go", "content": "...", "language": "code"}
//	  ],
//	  "tokens_used": 312,
//	  "candidates_considered": 47,
//	  "reranked": true,
//	  "strategy": "single_pass",
//	  "quality_verdict": {"category": "relevant", "score": 0.81}
//	}
//
// The strategy field reports which path actually ran: no_retrieval,
// single_pass, corrected (one query-expansion retry), or
// external_fallback (artifacts came from the external provider). When a
// correction was applied or attempted, the correction field records it.
//
// # Tool: get_status
//
//	Request:  {"name": "get_status", "arguments": {}}
//	Response: {"index_path": "...", "schema_version": "1.0.0",
//	           "statistics": {"chunks_count": 1204, "terms_count": 8931, "embedding_dim": 384}}
//
// # Startup
//
// NewServer loads the persisted index fully into memory before serving.
// A missing or corrupt index file is fatal: the server refuses to start
// rather than answer queries from a partially loaded corpus.
package mcp
