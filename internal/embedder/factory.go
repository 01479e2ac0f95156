package embedder

import (
	"fmt"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // "local" or "http"
	Endpoint  string // required for http
	APIKey    string
	Model     string
	Dimension int
	CacheSize int
}

// New creates an embedder with explicit configuration. The dimension must
// match the dimension the index was built with; the orchestrator verifies
// this at startup.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderLocal, "":
		return NewLocalProvider(cfg.Dimension, cache), nil
	case ProviderHTTP:
		return NewHTTPProvider(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Dimension, cache)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}
