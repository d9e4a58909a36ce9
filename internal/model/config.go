package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the full runtime configuration, loadable from
// ~/.kensho/config.yaml and overridable by flags and KENSHO_* env vars
type Config struct {
	Sources    SourcesConfig    `yaml:"sources"`
	Store      StoreConfig      `yaml:"store"`
	Vector     VectorConfig     `yaml:"vector"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	KB         KBConfig         `yaml:"knowledge_base"`
	RateLimits RateLimitsConfig `yaml:"rate_limits"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Cache      CacheConfig      `yaml:"cache"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	Output     OutputConfig     `yaml:"output"`
}

// SourcesConfig locates the raw inputs
type SourcesConfig struct {
	WorkbookPath string `yaml:"workbook_path"` // .xlsx with one sheet per entity
	DocumentDir  string `yaml:"document_dir"`  // .txt documents, one per entity/category
}

// StoreConfig configures the structured record store
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite database file
}

// VectorConfig configures the vector index service
type VectorConfig struct {
	URL       string `yaml:"url"`   // e.g. "http://localhost:8080"
	Class     string `yaml:"class"` // Weaviate class name
	Dimension int    `yaml:"dimension"`
	TopK      int    `yaml:"top_k"` // retrieval depth at question time
}

// EmbeddingConfig configures the embedding service
type EmbeddingConfig struct {
	Model   string `yaml:"model"`
	APIKey  string `yaml:"-"` // from OPENAI_API_KEY, never written to disk
	BaseURL string `yaml:"base_url,omitempty"`
}

// LLMConfig configures the generation service used for drafting and
// record enrichment
type LLMConfig struct {
	Provider      string `yaml:"provider"` // "openai", "ollama", "" (disabled)
	Model         string `yaml:"model"`
	APIKey        string `yaml:"-"`
	BaseURL       string `yaml:"base_url,omitempty"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxTokens     int    `yaml:"max_tokens"`
	EnrichRecords bool   `yaml:"enrich_records"` // attach generated summaries to passages
}

// KBConfig configures the paginated external knowledge base
type KBConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Token    string        `yaml:"-"` // from KENSHO_KB_TOKEN
	PageSize int           `yaml:"page_size"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RateLimitConfig is the resilience budget for one operation class
type RateLimitConfig struct {
	Delay       time.Duration `yaml:"delay"`       // minimum gap between calls
	MaxRetries  int           `yaml:"max_retries"` // throttling retries before giving up
	Exponential bool          `yaml:"exponential"` // double the delay on each throttled retry
}

// RateLimitsConfig holds per-operation-class budgets. External services
// impose global ceilings, so each class gets its own limiter rather than
// one shared pool.
type RateLimitsConfig struct {
	Embed    RateLimitConfig `yaml:"embed"`
	Generate RateLimitConfig `yaml:"generate"`
	Upsert   RateLimitConfig `yaml:"upsert"`
	Query    RateLimitConfig `yaml:"query"`
}

// CheckpointConfig locates the resumption state file
type CheckpointConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig configures the embedding cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Dir     string        `yaml:"dir"`
	TTL     time.Duration `yaml:"ttl"`
}

// PipelineConfig tunes the ingestion driver
type PipelineConfig struct {
	IndexWorkers int `yaml:"index_workers"` // in-flight embedding calls per unit
}

// ProxyConfig configures outbound HTTP proxying
type ProxyConfig struct {
	HTTP  string `yaml:"http,omitempty"`
	HTTPS string `yaml:"https,omitempty"`
	No    string `yaml:"no,omitempty"`
}

// OutputConfig controls CLI reporting
type OutputConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the defaults used when no config file exists
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".kensho")

	return &Config{
		Sources: SourcesConfig{
			WorkbookPath: filepath.Join(dataDir, "data", "framedata.xlsx"),
			DocumentDir:  filepath.Join(dataDir, "data", "raw"),
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "data", "records.db"),
		},
		Vector: VectorConfig{
			URL:       "http://localhost:8080",
			Class:     "FactPassage",
			Dimension: 1536,
			TopK:      5,
		},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-small",
		},
		LLM: LLMConfig{
			Provider:  "", // disabled unless configured
			Timeout:   30,
			MaxTokens: 1000,
		},
		KB: KBConfig{
			PageSize: 100,
			Timeout:  30 * time.Second,
		},
		RateLimits: RateLimitsConfig{
			Embed:    RateLimitConfig{Delay: 200 * time.Millisecond, MaxRetries: 5, Exponential: true},
			Generate: RateLimitConfig{Delay: 500 * time.Millisecond, MaxRetries: 4, Exponential: true},
			Upsert:   RateLimitConfig{Delay: 100 * time.Millisecond, MaxRetries: 5, Exponential: true},
			Query:    RateLimitConfig{Delay: 0, MaxRetries: 3, Exponential: true},
		},
		Checkpoint: CheckpointConfig{
			Path: filepath.Join(dataDir, "data", "ingestion_state.json"),
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     filepath.Join(dataDir, "cache"),
			TTL:     30 * 24 * time.Hour,
		},
		Pipeline: PipelineConfig{
			IndexWorkers: 4,
		},
		Output: OutputConfig{},
	}
}
