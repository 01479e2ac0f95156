package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Specification is the full runtime configuration. Immutable after Load:
// the orchestrator and its components receive it by value at construction,
// so two pipelines with different settings can coexist in one process.
type Specification struct {
	IndexPath string `yaml:"indexPath" split_words:"true"`
	LogLevel  string `yaml:"logLevel" split_words:"true"`

	Retrieval RetrievalSpecification `yaml:"retrieval"`
	Rerank    RerankSpecification    `yaml:"rerank"`
	Embedder  EmbedderSpecification  `yaml:"embedder"`
	Augmenter AugmenterSpecification `yaml:"augmenter"`

	flags *pflag.FlagSet `ignored:"true"`
}

type RetrievalSpecification struct {
	RRFKConst              int     `yaml:"rrfKConst" envconfig:"RRF_K_CONST"`
	Stage1CandidateCount   int     `yaml:"stage1CandidateCount" split_words:"true"`
	TokenBudget            int     `yaml:"tokenBudget" split_words:"true"`
	MaxArtifacts           int     `yaml:"maxArtifacts" split_words:"true"`
	RelevantThreshold      float64 `yaml:"relevantThreshold" split_words:"true"`
	PartialThreshold       float64 `yaml:"partialThreshold" split_words:"true"`
	EnableMultiStep        bool    `yaml:"enableMultiStep" split_words:"true"`
	EnableExternalFallback bool    `yaml:"enableExternalFallback" split_words:"true"`
}

type RerankSpecification struct {
	Threshold     float64 `yaml:"threshold"`
	MinQueryWords int     `yaml:"minQueryWords" split_words:"true"`
	BatchSize     int     `yaml:"batchSize" split_words:"true"`
	CacheSize     int     `yaml:"cacheSize" split_words:"true"`
	CacheTTLMin   int     `yaml:"cacheTTLMinutes" envconfig:"CACHE_TTL_MINUTES"`
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"apiKey" envconfig:"API_KEY"`
	Model         string  `yaml:"model"`
}

type EmbedderSpecification struct {
	Provider  string `yaml:"provider"`
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"apiKey" envconfig:"API_KEY"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	CacheSize int    `yaml:"cacheSize" split_words:"true"`
}

type AugmenterSpecification struct {
	Endpoint       string `yaml:"endpoint"`
	APIKey         string `yaml:"apiKey" envconfig:"API_KEY"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" split_words:"true"`
	MaxResults     int    `yaml:"maxResults" split_words:"true"`
}

const envPrefix = "KESTREL"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/kestrel.yaml",
				"config/config.yaml",
				"./kestrel.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if err := validate(&cfg); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

func validate(c *Specification) error {
	if strings.TrimSpace(c.IndexPath) == "" {
		return fmt.Errorf("KESTREL_INDEX_PATH is required (env/file/flag)")
	}
	if c.Retrieval.PartialThreshold >= c.Retrieval.RelevantThreshold {
		return fmt.Errorf("partial threshold %.2f must be below relevant threshold %.2f",
			c.Retrieval.PartialThreshold, c.Retrieval.RelevantThreshold)
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	return nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("index-path", c.IndexPath, "Path to the index database file")
	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")

	fs.Int("rrf-k-const", c.Retrieval.RRFKConst, "Rank fusion sharpness constant")
	fs.Int("stage1-candidates", c.Retrieval.Stage1CandidateCount, "Candidates taken from each index before fusion")
	fs.Int("token-budget", c.Retrieval.TokenBudget, "Default per-request token packing ceiling")
	fs.Int("max-artifacts", c.Retrieval.MaxArtifacts, "Default cap on returned artifacts")
	fs.Float64("relevant-threshold", c.Retrieval.RelevantThreshold, "Evaluator boundary for a relevant verdict")
	fs.Float64("partial-threshold", c.Retrieval.PartialThreshold, "Evaluator boundary for a partial verdict")
	fs.Bool("enable-multi-step", c.Retrieval.EnableMultiStep, "Enable the multi-step classifier branch")
	fs.Bool("enable-external-fallback", c.Retrieval.EnableExternalFallback, "Enable external augmentation on irrelevant verdicts")

	fs.Float64("rerank-threshold", c.Rerank.Threshold, "Post-rerank relevance cutoff")
	fs.Int("rerank-min-query-words", c.Rerank.MinQueryWords, "Skip reranking below this query word count")
	fs.Int("rerank-batch-size", c.Rerank.BatchSize, "Candidates per rerank scoring call")
	fs.String("rerank-endpoint", c.Rerank.Endpoint, "Cross-encoder service endpoint (empty uses the local scorer)")
	fs.String("rerank-api-key", c.Rerank.APIKey, "Cross-encoder service API key")
	fs.String("rerank-model", c.Rerank.Model, "Cross-encoder model name")

	fs.String("embedder-provider", c.Embedder.Provider, "Embedding provider (local|http)")
	fs.String("embedder-endpoint", c.Embedder.Endpoint, "Embedding service endpoint")
	fs.String("embedder-api-key", c.Embedder.APIKey, "Embedding service API key")
	fs.String("embedder-model", c.Embedder.Model, "Embedding model name")
	fs.Int("embedder-dimension", c.Embedder.Dimension, "Embedding dimensionality")

	fs.String("augmenter-endpoint", c.Augmenter.Endpoint, "External search provider endpoint")
	fs.String("augmenter-api-key", c.Augmenter.APIKey, "External search provider API key")
	fs.Int("augmenter-timeout", c.Augmenter.TimeoutSeconds, "External fetch timeout in seconds")

	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if fs.Changed(name) {
			v, _ := fs.GetFloat64(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}

	setStr("index-path", &c.IndexPath)
	setStr("log-level", &c.LogLevel)

	setInt("rrf-k-const", &c.Retrieval.RRFKConst)
	setInt("stage1-candidates", &c.Retrieval.Stage1CandidateCount)
	setInt("token-budget", &c.Retrieval.TokenBudget)
	setInt("max-artifacts", &c.Retrieval.MaxArtifacts)
	setFloat("relevant-threshold", &c.Retrieval.RelevantThreshold)
	setFloat("partial-threshold", &c.Retrieval.PartialThreshold)
	setBool("enable-multi-step", &c.Retrieval.EnableMultiStep)
	setBool("enable-external-fallback", &c.Retrieval.EnableExternalFallback)

	setFloat("rerank-threshold", &c.Rerank.Threshold)
	setInt("rerank-min-query-words", &c.Rerank.MinQueryWords)
	setInt("rerank-batch-size", &c.Rerank.BatchSize)
	setStr("rerank-endpoint", &c.Rerank.Endpoint)
	setStr("rerank-api-key", &c.Rerank.APIKey)
	setStr("rerank-model", &c.Rerank.Model)

	setStr("embedder-provider", &c.Embedder.Provider)
	setStr("embedder-endpoint", &c.Embedder.Endpoint)
	setStr("embedder-api-key", &c.Embedder.APIKey)
	setStr("embedder-model", &c.Embedder.Model)
	setInt("embedder-dimension", &c.Embedder.Dimension)

	setStr("augmenter-endpoint", &c.Augmenter.Endpoint)
	setStr("augmenter-api-key", &c.Augmenter.APIKey)
	setInt("augmenter-timeout", &c.Augmenter.TimeoutSeconds)
}

func setDefaults(c *Specification) {
	c.IndexPath = "kestrel.db"
	c.LogLevel = "info"

	c.Retrieval.RRFKConst = 60
	c.Retrieval.Stage1CandidateCount = 100
	c.Retrieval.TokenBudget = 8000
	c.Retrieval.MaxArtifacts = 10
	c.Retrieval.RelevantThreshold = 0.75
	c.Retrieval.PartialThreshold = 0.50
	c.Retrieval.EnableMultiStep = false
	c.Retrieval.EnableExternalFallback = true

	c.Rerank.Threshold = 0.35
	c.Rerank.MinQueryWords = 5
	c.Rerank.BatchSize = 32
	c.Rerank.CacheSize = 256
	c.Rerank.CacheTTLMin = 60

	c.Embedder.Provider = "local"
	c.Embedder.Dimension = 384
	c.Embedder.CacheSize = 1000

	c.Augmenter.TimeoutSeconds = 5
	c.Augmenter.MaxResults = 5
}
