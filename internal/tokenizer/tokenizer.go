package tokenizer

import (
	"regexp"
	"strings"
)

// symbolPattern extracts maximal alphanumeric+underscore runs.
var symbolPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// Tokenizer turns raw text into token sequences for keyword indexing.
// It is code-aware: identifiers are split on case and underscore boundaries
// so that a query for "user name" can match getUserName and get_user_name.
//
// Tokenization is deterministic: the same input and language always yield
// the same ordered token list. Duplicates are kept because BM25 term
// frequency depends on them.
type Tokenizer struct{}

// New creates a Tokenizer.
func New() *Tokenizer {
	return &Tokenizer{}
}

// Tokenize emits tokens for text. The language tag is accepted for parity
// with the index build path; all languages currently share the identifier
// splitting rules, which are harmless for prose.
func (t *Tokenizer) Tokenize(text, language string) []string {
	if text == "" {
		return nil
	}

	tokens := make([]string, 0, len(text)/4)

	for _, symbol := range symbolPattern.FindAllString(text, -1) {
		tokens = append(tokens, strings.ToLower(symbol))

		if parts := splitCamel(symbol); parts != nil {
			tokens = append(tokens, parts...)
		}

		if strings.Contains(symbol, "_") {
			for _, part := range strings.Split(symbol, "_") {
				if part != "" {
					tokens = append(tokens, strings.ToLower(part))
				}
			}
		}
	}

	// Whitespace-delimited words catch punctuation-adjacent text the
	// symbol pattern splits apart (e.g. "what's" -> "what's").
	for _, word := range strings.Fields(text) {
		tokens = append(tokens, strings.ToLower(word))
	}

	return tokens
}

// splitCamel returns the lowercased case-delimited sub-parts of a symbol,
// or nil when the symbol has no internal lowercase-to-uppercase transition.
func splitCamel(symbol string) []string {
	boundary := -1
	for i := 1; i < len(symbol); i++ {
		if isLower(symbol[i-1]) && isUpper(symbol[i]) {
			boundary = i
			break
		}
	}
	if boundary < 0 {
		return nil
	}

	parts := make([]string, 0, 4)
	start := 0
	for i := 1; i < len(symbol); i++ {
		if isLower(symbol[i-1]) && isUpper(symbol[i]) {
			parts = append(parts, strings.ToLower(symbol[start:i]))
			start = i
		}
	}
	parts = append(parts, strings.ToLower(symbol[start:]))
	return parts
}

func isLower(b byte) bool { return b >= 'a' && b <= 'z' }
func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
