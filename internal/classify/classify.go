// Package classify decides, before any index is touched, whether a query
// needs retrieval at all and how much. Classification is a pure function of
// the query text and feature flags: no model inference, no I/O, so the fast
// path costs next to nothing.
package classify

import (
	"fmt"
	"strings"
)

// Strategy is the pre-retrieval plan for a query.
type Strategy string

const (
	// NoRetrieval answers without touching the indexes.
	NoRetrieval Strategy = "no_retrieval"
	// SinglePass runs one hybrid retrieval pass.
	SinglePass Strategy = "single_pass"
	// MultiStep decomposes the query into sub-retrievals. Feature-flagged;
	// the default configuration never returns it.
	MultiStep Strategy = "multi_step"
)

// maxGreetingSpan is how many leading tokens are scanned for a greeting.
const maxGreetingSpan = 5

var greetingWords = map[string]bool{
	"hello": true, "hi": true, "hey": true, "thanks": true, "thank": true,
	"goodbye": true, "bye": true, "ok": true, "okay": true, "yes": true,
	"no": true, "sure": true, "greetings": true, "howdy": true,
}

var arithmeticWords = []string{
	"plus", "minus", "times", "divided", "multiplied", "sum", "product",
	"percent", "percentage", "squared", "sqrt",
}

var multiStepWords = []string{
	"analyze", "compare and", "summarize", "synthesize", "step by step",
	"break down", "walk through", "trace",
}

var conjunctionWords = map[string]bool{
	"and": true, "then": true, "also": true, "additionally": true,
	"afterwards": true, "furthermore": true,
}

var factualPrefixes = []string{
	"what", "define", "explain", "how to", "how do", "how does",
	"compare", "describe", "when", "where", "who", "why",
}

// Classifier implements the decision rules. Construct once and share;
// it is stateless and safe for concurrent use.
type Classifier struct {
	enableMultiStep bool
}

// New creates a Classifier. enableMultiStep gates the multi-step rule.
func New(enableMultiStep bool) *Classifier {
	return &Classifier{enableMultiStep: enableMultiStep}
}

// Classify returns the strategy for a query and a short reasoning string
// naming the rule that fired. First matching rule wins. Deterministic:
// identical input always produces identical output.
func (c *Classifier) Classify(query string) (Strategy, string) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	tokens := strings.Fields(normalized)

	if len(tokens) <= 2 {
		return NoRetrieval, fmt.Sprintf("query has %d tokens, too short to need retrieval", len(tokens))
	}

	if matchesGreeting(tokens) {
		return NoRetrieval, "greeting or acknowledgment detected"
	}

	if matchesArithmetic(normalized, tokens) {
		return NoRetrieval, "arithmetic expression detected"
	}

	if c.enableMultiStep && matchesMultiStep(normalized, tokens) {
		return MultiStep, "analysis keywords or multiple clauses detected"
	}

	if matchesFactual(normalized) {
		return SinglePass, "factual question pattern detected"
	}

	return SinglePass, "no special pattern, defaulting to single retrieval pass"
}

func matchesGreeting(tokens []string) bool {
	span := len(tokens)
	if span > maxGreetingSpan {
		span = maxGreetingSpan
	}
	for _, tok := range tokens[:span] {
		if greetingWords[strings.Trim(tok, ".,!?")] {
			return true
		}
	}
	return false
}

// matchesArithmetic requires both a digit and an arithmetic operator or
// spelled-out operation word, so version strings or years alone don't trip it.
func matchesArithmetic(normalized string, tokens []string) bool {
	hasDigit := strings.ContainsAny(normalized, "0123456789")
	if !hasDigit {
		return false
	}
	if strings.ContainsAny(normalized, "+*/%^") {
		return true
	}
	// "-" is too common in identifiers and flags to count on its own;
	// require it between digits.
	for i := 0; i+2 < len(normalized); i++ {
		if normalized[i+1] == '-' && isDigit(normalized[i]) && isDigit(normalized[i+2]) {
			return true
		}
	}
	for _, tok := range tokens {
		for _, word := range arithmeticWords {
			if strings.Trim(tok, ".,!?") == word {
				return true
			}
		}
	}
	return false
}

func matchesMultiStep(normalized string, tokens []string) bool {
	for _, kw := range multiStepWords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	if strings.Count(normalized, "?") > 1 || strings.Contains(normalized, ";") {
		return true
	}
	conjunctions := 0
	for _, tok := range tokens {
		if conjunctionWords[strings.Trim(tok, ".,!?")] {
			conjunctions++
		}
	}
	return conjunctions >= 2
}

func matchesFactual(normalized string) bool {
	for _, prefix := range factualPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
