// kestrel-index builds the persistent index offline. It reads a JSONL
// stream of chunks produced by the ingestion pipeline (content plus
// precomputed embeddings), builds the keyword statistics, and persists
// everything to the index file that the server loads at startup.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/kestrelsearch/kestrel/internal/config"
	"github.com/kestrelsearch/kestrel/internal/index"
	"github.com/kestrelsearch/kestrel/internal/storage"
	"github.com/kestrelsearch/kestrel/internal/tokenizer"
	"github.com/kestrelsearch/kestrel/pkg/types"
)

// chunkRecord is the JSONL wire shape for one chunk.
type chunkRecord struct {
	ID         string    `json:"id"`
	SourcePath string    `json:"source_path"`
	Content    string    `json:"content"`
	Ordinal    int       `json:"ordinal"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Language   string    `json:"language"`
	Embedding  []float32 `json:"embedding"`
}

func main() {
	fs := pflag.NewFlagSet("kestrel-index", pflag.ContinueOnError)
	input := fs.String("input", "-", "Chunks JSONL file ('-' reads stdin)")

	cfg, err := config.Load("", fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)

	in := os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			logger.Fatal().Err(err).Str("input", *input).Msg("failed to open input")
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	chunks, err := readChunks(in)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read chunks")
	}
	if len(chunks) == 0 {
		logger.Fatal().Msg("no chunks in input, refusing to build an empty index")
	}

	start := time.Now()
	keyword := index.BuildKeyword(chunks, tokenizer.New())

	store, err := storage.Open(cfg.IndexPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open index file")
	}
	defer func() { _ = store.Close() }()

	if err := store.SaveIndex(context.Background(), chunks, keyword); err != nil {
		logger.Fatal().Err(err).Msg("failed to save index")
	}

	status, err := store.Status(context.Background())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read back status")
	}

	logger.Info().
		Str("index_path", cfg.IndexPath).
		Int("chunks", status.ChunkCount).
		Int("terms", status.TermCount).
		Int("embedding_dim", status.EmbeddingDim).
		Dur("elapsed", time.Since(start)).
		Msg("index built")
}

func readChunks(r io.Reader) ([]types.Chunk, error) {
	var chunks []types.Chunk

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec chunkRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("line %d: chunk id is required", line)
		}

		chunk := types.Chunk{
			ID:         rec.ID,
			SourcePath: rec.SourcePath,
			Content:    rec.Content,
			Position:   types.Position{Ordinal: rec.Ordinal, Start: rec.Start, End: rec.End},
			Language:   rec.Language,
			Embedding:  rec.Embedding,
		}
		if err := chunk.ValidateContent(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		chunks = append(chunks, chunk)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger()
}
