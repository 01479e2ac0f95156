// Package tokenizer provides code-aware tokenization for keyword indexing.
//
// Identifiers are emitted whole and additionally split on camelCase and
// underscore boundaries, so getUserName produces getusername, get, user,
// and name. The same tokenizer is used at index build time and at query
// time; BM25 term frequencies depend on the duplicate-preserving output.
package tokenizer
