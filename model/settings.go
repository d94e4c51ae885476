package model

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Embedding providers.
const (
	ProviderHugot  = "hugot"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Index backends.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Provider          string  `yaml:"provider"`
	Model             string  `yaml:"model"`
	ModelDir          string  `yaml:"model_dir,omitempty"` // hugot only
	OnnxFile          string  `yaml:"onnx_file,omitempty"` // hugot only
	Dimensions        int     `yaml:"dimensions"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	DocumentPrefix    string  `yaml:"document_prefix,omitempty"`
	QueryPrefix       string  `yaml:"query_prefix,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"` // sqlite database file
}

// ExtractConfig configures the content extractors.
type ExtractConfig struct {
	UserAgent           string `yaml:"user_agent"`
	WebMaxLength        int    `yaml:"web_max_length"`
	TranscriptURL       string `yaml:"transcript_url"`
	TranscriptAPIKeyEnv string `yaml:"transcript_api_key_env"`
}

// Config is the file configuration of the command line tool.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Extract   ExtractConfig   `yaml:"extract"`
}

// DefaultConfig returns the configuration used if no file exists.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Embedder: EmbedderConfig{
			Provider:          ProviderHugot,
			Model:             "sentence-transformers/all-MiniLM-L6-v2",
			OnnxFile:          "onnx/model.onnx",
			Dimensions:        384,
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Index: IndexConfig{
			Backend: BackendSQLite,
			Path:    "./vector_store/retriever.db",
		},
		Retrieval: DefaultRetrievalConfig(),
		Extract: ExtractConfig{
			UserAgent:    "retriever/1.0",
			WebMaxLength: 15000,
		},
	}
}

// LoadConfig reads the YAML config at path. A missing file yields the defaults.
// GEMINI_EMBEDDING_MODEL and VECTOR_DB_PATH override the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)
	applyConfigDefaults(cfg)
	return cfg, nil
}

// SaveConfig writes the config to path, creating directories as needed.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func applyEnvOverrides(cfg *Config) {
	if m := os.Getenv("GEMINI_EMBEDDING_MODEL"); m != "" && cfg.Embedder.Provider == ProviderGemini {
		cfg.Embedder.Model = m
	}
	if p := os.Getenv("VECTOR_DB_PATH"); p != "" {
		cfg.Index.Path = p
	}
}

func applyConfigDefaults(cfg *Config) {
	d := DefaultConfig()
	if cfg.LogLevel == "" {
		cfg.LogLevel = d.LogLevel
	}
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = d.Embedder.Provider
	}
	if cfg.Embedder.Model == "" {
		switch cfg.Embedder.Provider {
		case ProviderGemini:
			cfg.Embedder.Model = "gemini-embedding-001"
		case ProviderOpenAI:
			cfg.Embedder.Model = "text-embedding-3-small"
		default:
			cfg.Embedder.Model = d.Embedder.Model
		}
	}
	if cfg.Embedder.Dimensions <= 0 {
		switch cfg.Embedder.Provider {
		case ProviderGemini:
			cfg.Embedder.Dimensions = 768
		case ProviderOpenAI:
			cfg.Embedder.Dimensions = 1536
		default:
			cfg.Embedder.Dimensions = d.Embedder.Dimensions
		}
	}
	if cfg.Embedder.APIKeyEnv == "" {
		switch cfg.Embedder.Provider {
		case ProviderGemini:
			cfg.Embedder.APIKeyEnv = "GOOGLE_API_KEY"
		case ProviderOpenAI:
			cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.Embedder.RequestsPerSecond <= 0 {
		cfg.Embedder.RequestsPerSecond = d.Embedder.RequestsPerSecond
	}
	if cfg.Embedder.Burst <= 0 {
		cfg.Embedder.Burst = d.Embedder.Burst
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = d.Index.Backend
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = d.Index.Path
	}
	if cfg.Extract.UserAgent == "" {
		cfg.Extract.UserAgent = d.Extract.UserAgent
	}
	if cfg.Extract.WebMaxLength <= 0 {
		cfg.Extract.WebMaxLength = d.Extract.WebMaxLength
	}
	cfg.Retrieval = cfg.Retrieval.WithDefaults()
}
