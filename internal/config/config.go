// Package config loads and validates Miller configuration.
//
// Precedence, lowest to highest: built-in defaults, user config
// (~/.config/miller/config.yaml), workspace config (.miller.yaml), then
// MILLER_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete Miller configuration.
type Config struct {
	Version     int               `yaml:"version"`
	Paths       PathsConfig       `yaml:"paths"`
	Search      SearchConfig      `yaml:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings"`
	Indexing    IndexingConfig    `yaml:"indexing"`
	Watcher     WatcherConfig     `yaml:"watcher"`
	Trace       TraceConfig       `yaml:"trace"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// PathsConfig configures which paths to include and exclude beyond the
// default ignore set and .gitignore.
type PathsConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// SearchConfig configures search behavior.
type SearchConfig struct {
	// RRFConstant is the reciprocal-rank-fusion smoothing parameter.
	RRFConstant int `yaml:"rrf_constant"`

	// DefaultLimit applies when the caller passes limit <= 0.
	DefaultLimit int `yaml:"default_limit"`

	// MaxLimit clamps caller-supplied limits.
	MaxLimit int `yaml:"max_limit"`

	// SemanticFallbackFloor: when a text search's top score is below this,
	// the router retries the query semantically. Policy value, not a
	// correctness property.
	SemanticFallbackFloor float64 `yaml:"semantic_fallback_floor"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string        `yaml:"provider"` // ollama, static
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	OllamaHost string        `yaml:"ollama_host"`
	Timeout    time.Duration `yaml:"timeout"`
}

// IndexingConfig tunes the ingestion pipeline.
type IndexingConfig struct {
	// FileBatchSize is how many files are extracted per group.
	FileBatchSize int `yaml:"file_batch_size"`

	// SymbolFlushThreshold triggers a buffer flush.
	SymbolFlushThreshold int `yaml:"symbol_flush_threshold"`

	// FileFlushThreshold triggers a buffer flush.
	FileFlushThreshold int `yaml:"file_flush_threshold"`

	// Workers bounds the parallel extraction pool. 0 means NumCPU.
	Workers int `yaml:"workers"`
}

// WatcherConfig tunes change detection.
type WatcherConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ForcePolling   bool          `yaml:"force_polling"`
}

// TraceConfig tunes the cross-language trace engine.
type TraceConfig struct {
	// SemanticThreshold is the minimum cosine similarity for semantic
	// trace edges.
	SemanticThreshold float64 `yaml:"semantic_threshold"`

	// FanOutCap bounds children per node.
	FanOutCap int `yaml:"fan_out_cap"`
}

// LoggingConfig mirrors logging.Config in YAML form.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			RRFConstant:           60,
			DefaultLimit:          10,
			MaxLimit:              1000,
			SemanticFallbackFloor: 0.35,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "static-256",
			Dimensions: 256,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
			Timeout:    60 * time.Second,
		},
		Indexing: IndexingConfig{
			FileBatchSize:        8,
			SymbolFlushThreshold: defaultSymbolThreshold(),
			FileFlushThreshold:   50,
			Workers:              0,
		},
		Watcher: WatcherConfig{
			DebounceWindow: 200 * time.Millisecond,
			PollInterval:   2 * time.Second,
		},
		Trace: TraceConfig{
			SemanticThreshold: 0.7,
			FanOutCap:         100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultSymbolThreshold sizes the flush batch to the machine: more cores
// means larger extraction throughput per unit time, so bigger batches
// amortize the embed+write cost better.
func defaultSymbolThreshold() int {
	n := runtime.NumCPU()
	switch {
	case n >= 16:
		return 2000
	case n >= 8:
		return 1000
	default:
		return 500
	}
}

// Load reads configuration for a workspace, applying the precedence chain.
func Load(workspaceRoot string) (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".config", "miller", "config.yaml")
		if err := mergeFile(cfg, userPath); err != nil {
			return nil, err
		}
	}

	if workspaceRoot != "" {
		wsPath := filepath.Join(workspaceRoot, ".miller.yaml")
		if err := mergeFile(cfg, wsPath); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays a YAML file onto cfg. Missing files are fine.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays MILLER_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MILLER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MILLER_EMBED_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("MILLER_OLLAMA_HOST"); v != "" {
		cfg.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("MILLER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Indexing.Workers = n
		}
	}
	if v := os.Getenv("MILLER_FORCE_POLLING"); v != "" {
		cfg.Watcher.ForcePolling = v == "1" || v == "true"
	}
}

// Validate checks invariants the rest of the engine relies on.
func (c *Config) Validate() error {
	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.MaxLimit <= 0 || c.Search.MaxLimit > 1000 {
		return fmt.Errorf("search.max_limit must be in (0, 1000], got %d", c.Search.MaxLimit)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit must be in (0, max_limit], got %d", c.Search.DefaultLimit)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Trace.SemanticThreshold < 0 || c.Trace.SemanticThreshold > 1 {
		return fmt.Errorf("trace.semantic_threshold must be in [0, 1], got %f", c.Trace.SemanticThreshold)
	}
	if c.Indexing.SymbolFlushThreshold <= 0 {
		return fmt.Errorf("indexing.symbol_flush_threshold must be positive, got %d", c.Indexing.SymbolFlushThreshold)
	}
	if c.Indexing.FileFlushThreshold <= 0 {
		return fmt.Errorf("indexing.file_flush_threshold must be positive, got %d", c.Indexing.FileFlushThreshold)
	}
	return nil
}
