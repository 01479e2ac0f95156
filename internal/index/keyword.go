package index

import (
	"math"

	"github.com/kestrelsearch/kestrel/internal/tokenizer"
	"github.com/kestrelsearch/kestrel/pkg/types"
)

// BM25 parameters, standard literature defaults.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// KeywordIndex ranks chunks with the BM25 scoring function over
// token-frequency statistics computed at build time. Read-only after build.
type KeywordIndex struct {
	tok *tokenizer.Tokenizer

	ids       []string
	termFreqs []map[string]int // term frequency per chunk
	lengths   []int            // token count per chunk
	docFreq   map[string]int   // number of chunks containing each term
	avgLen    float64
}

// BuildKeyword constructs a KeywordIndex from chunks, tokenizing each
// chunk's content with the supplied tokenizer. The same tokenizer is used
// for queries at search time.
func BuildKeyword(chunks []types.Chunk, tok *tokenizer.Tokenizer) *KeywordIndex {
	ids := make([]string, len(chunks))
	termFreqs := make([]map[string]int, len(chunks))
	lengths := make([]int, len(chunks))

	for i, chunk := range chunks {
		tokens := tok.Tokenize(chunk.Content, chunk.Language)
		freqs := make(map[string]int, len(tokens))
		for _, token := range tokens {
			freqs[token]++
		}
		ids[i] = chunk.ID
		termFreqs[i] = freqs
		lengths[i] = len(tokens)
	}

	return NewKeywordFromStats(ids, termFreqs, lengths, tok)
}

// NewKeywordFromStats constructs a KeywordIndex directly from persisted
// term statistics. Used by the storage layer to restore an index without
// retokenizing the corpus.
func NewKeywordFromStats(ids []string, termFreqs []map[string]int, lengths []int, tok *tokenizer.Tokenizer) *KeywordIndex {
	docFreq := make(map[string]int)
	totalLen := 0
	for i := range ids {
		for term := range termFreqs[i] {
			docFreq[term]++
		}
		totalLen += lengths[i]
	}

	avgLen := 0.0
	if len(ids) > 0 {
		avgLen = float64(totalLen) / float64(len(ids))
	}

	return &KeywordIndex{
		tok:       tok,
		ids:       ids,
		termFreqs: termFreqs,
		lengths:   lengths,
		docFreq:   docFreq,
		avgLen:    avgLen,
	}
}

// Search tokenizes the query and returns the top-k chunks by BM25 score,
// best-first. Empty or out-of-vocabulary queries return an empty list.
func (x *KeywordIndex) Search(query string, k int) []Match {
	if len(x.ids) == 0 || k <= 0 {
		return []Match{}
	}

	queryTerms := x.tok.Tokenize(query, "")
	if len(queryTerms) == 0 {
		return []Match{}
	}

	// Collapse repeated query terms; BM25 scores each term once per query.
	seen := make(map[string]bool, len(queryTerms))
	terms := queryTerms[:0]
	for _, term := range queryTerms {
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}

	n := float64(len(x.ids))
	matches := make([]Match, 0, k)
	for i := range x.ids {
		score := 0.0
		for _, term := range terms {
			tf := x.termFreqs[i][term]
			if tf == 0 {
				continue
			}
			df := float64(x.docFreq[term])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := 1 - bm25B + bm25B*float64(x.lengths[i])/x.avgLen
			score += idf * float64(tf) * (bm25K1 + 1) / (float64(tf) + bm25K1*norm)
		}
		if score > 0 {
			matches = append(matches, Match{ID: x.ids[i], Score: score})
		}
	}

	sortMatches(matches)

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// Len returns the number of indexed chunks.
func (x *KeywordIndex) Len() int {
	return len(x.ids)
}

// Stats exposes the per-chunk term statistics for persistence.
func (x *KeywordIndex) Stats() (ids []string, termFreqs []map[string]int, lengths []int) {
	return x.ids, x.termFreqs, x.lengths
}
