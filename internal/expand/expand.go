// Package expand rewrites queries for corrective retrieval passes by
// appending synonyms for recognized terms. Expansion is additive: the
// original query text is always a prefix of the expanded query, so the
// rewritten query can only widen recall, never lose the original intent.
package expand

import "strings"

// maxSynonymsPerTerm bounds how many synonyms a single recognized term may
// contribute, keeping expanded queries from ballooning.
const maxSynonymsPerTerm = 2

// defaultSynonyms is a small curated table oriented at software queries.
// Keys and values are lowercase single tokens.
var defaultSynonyms = map[string][]string{
	"bug":      {"defect", "error"},
	"error":    {"failure", "fault"},
	"fix":      {"repair", "patch"},
	"fast":     {"quick", "performant"},
	"slow":     {"sluggish", "latency"},
	"function": {"method", "routine"},
	"delete":   {"remove", "drop"},
	"create":   {"build", "construct"},
	"config":   {"configuration", "settings"},
	"auth":     {"authentication", "login"},
	"db":       {"database", "storage"},
	"database": {"db", "storage"},
	"test":     {"spec", "check"},
	"doc":      {"documentation", "readme"},
	"cache":    {"memoization", "buffer"},
	"fetch":    {"retrieve", "download"},
	"send":     {"transmit", "dispatch"},
	"start":    {"launch", "init"},
	"stop":     {"halt", "shutdown"},
	"search":   {"lookup", "query"},
}

// Expander rewrites queries using a synonym table.
type Expander struct {
	synonyms map[string][]string
}

// New creates an Expander with the default synonym table.
func New() *Expander {
	return &Expander{synonyms: defaultSynonyms}
}

// NewWithTable creates an Expander backed by a caller-supplied table. Keys
// must be lowercase single tokens.
func NewWithTable(table map[string][]string) *Expander {
	return &Expander{synonyms: table}
}

// Expand returns the query with synonyms appended for every recognized
// term, deduplicated against words already present. When no term is
// recognized the query is returned unchanged. Deterministic: the same query
// always yields the same expansion.
func (e *Expander) Expand(query string) string {
	words := strings.Fields(query)
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[strings.ToLower(w)] = true
	}

	var additions []string
	for _, w := range words {
		syns, ok := e.synonyms[strings.ToLower(w)]
		if !ok {
			continue
		}
		added := 0
		for _, syn := range syns {
			if added >= maxSynonymsPerTerm {
				break
			}
			if present[syn] {
				continue
			}
			present[syn] = true
			additions = append(additions, syn)
			added++
		}
	}

	if len(additions) == 0 {
		return query
	}
	return query + " " + strings.Join(additions, " ")
}
