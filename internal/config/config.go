// Package config provides configuration loading and structs for the kaiwa server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides for secrets that should not live in the config file.
const (
	EnvOpenAIAPIKey = "KAIWA_OPENAI_API_KEY"
	EnvPostgresDSN  = "KAIWA_POSTGRES_DSN"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the application.
type Config struct {
	Debug         bool                `yaml:"debug"`
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Segmentation  SegmentationConfig  `yaml:"segmentation"`
	Vectorization VectorizationConfig `yaml:"vectorization"`
	Search        SearchConfig        `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects the chat store and holds paths for the database and indices.
type StorageConfig struct {
	Driver         string `yaml:"driver"`
	DatabasePath   string `yaml:"database_path"`
	PostgresDSN    string `yaml:"postgres_dsn"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	// VectorIndexType enables native k-NN for the sqlite driver: "" (off), "memory", or "faiss".
	VectorIndexType string `yaml:"vector_index_type"`
}

// EmbeddingConfig selects and tunes the embedding model.
type EmbeddingConfig struct {
	Provider            string       `yaml:"provider"` // onnx | openai | hash
	ModelPath           string       `yaml:"model_path"`
	Dimensions          int          `yaml:"dimensions"`
	MaxTokens           int          `yaml:"max_tokens"`
	CacheSize           int          `yaml:"cache_size"`
	PersistentCachePath string       `yaml:"persistent_cache_path"`
	OpenAI              OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig holds settings for OpenAI-compatible embedding endpoints.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SegmentationConfig tunes segment construction.
type SegmentationConfig struct {
	ThematicThreshold float64 `yaml:"thematic_threshold"`
}

// VectorizationConfig tunes batch and background vectorization.
type VectorizationConfig struct {
	Workers            int           `yaml:"workers"`
	ChatLogInterval    int           `yaml:"chat_log_interval"`
	MessageLogInterval int           `yaml:"message_log_interval"`
	SegmentLogInterval int           `yaml:"segment_log_interval"`
	UpdateDebounce     time.Duration `yaml:"update_debounce"`
	QueueSize          int           `yaml:"queue_size"`
}

// SearchConfig holds search and ranking settings.
type SearchConfig struct {
	DefaultLimit        int     `yaml:"default_limit"`
	MaxLimit            int     `yaml:"max_limit"`
	VectorWeight        float64 `yaml:"vector_weight"`
	TextWeight          float64 `yaml:"text_weight"`
	SnippetLength       int     `yaml:"snippet_length"`
	CandidateMultiplier int     `yaml:"candidate_multiplier"`
	KeywordTitleBoost   float64 `yaml:"keyword_title_boost"`
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, expands paths, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnv(&cfg)

	cfg.expandPaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s (supported: sqlite, postgres)", c.Storage.Driver)
	}
	switch c.Embedding.Provider {
	case "onnx", "openai", "hash":
	default:
		return fmt.Errorf("unknown embedding provider: %s (supported: onnx, openai, hash)", c.Embedding.Provider)
	}
	if c.Search.VectorWeight < 0 || c.Search.TextWeight < 0 {
		return fmt.Errorf("search weights must not be negative")
	}
	if c.Segmentation.ThematicThreshold > 1 {
		return fmt.Errorf("segmentation.thematic_threshold must be <= 1")
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		cfg.Embedding.OpenAI.APIKey = v
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		cfg.Storage.PostgresDSN = v
	}
}

// expandPaths resolves every configured filesystem path. Unset paths stay empty.
func (c *Config) expandPaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DatabasePath,
		&c.Storage.BleveIndexPath,
		&c.Embedding.ModelPath,
		&c.Embedding.PersistentCachePath,
	} {
		if *p != "" {
			*p = expandPath(*p, configDir)
		}
	}
}

// expandPath makes path absolute. "./x" and "." resolve against configDir;
// any other relative path resolves against the home directory.
func expandPath(path, configDir string) string {
	switch {
	case filepath.IsAbs(path):
		return path
	case path == "." || strings.HasPrefix(path, "./"):
		return filepath.Join(configDir, path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path)
}
