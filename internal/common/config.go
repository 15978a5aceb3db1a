package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
	LLM         LLMConfig     `toml:"llm"`
	RAG         RAGConfig     `toml:"rag"`
	Search      SearchConfig  `toml:"search"`
}

// ServerConfig configures the admin HTTP server. Knowledge base listeners
// bind their own ports from their stored configuration, not from here.
type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// LLM provider modes
const (
	LLMProviderOffline = "offline"
	LLMProviderClaude  = "claude"
	LLMProviderGemini  = "gemini"
)

// LLMConfig configures the inference backend
type LLMConfig struct {
	Provider    string        `toml:"provider"` // "offline" (default), "claude", "gemini"
	LlamaDir    string        `toml:"llama_dir"` // Directory containing llama-server binary
	ModelDir    string        `toml:"model_dir"` // Directory containing GGUF model files
	ChatModel   string        `toml:"chat_model"`
	ContextSize int           `toml:"context_size"`
	ThreadCount int           `toml:"thread_count"`
	GPULayers   int           `toml:"gpu_layers"`
	Claude      ClaudeConfig  `toml:"claude"`
	Gemini      GeminiConfig  `toml:"gemini"`
	Timeout     time.Duration `toml:"timeout"` // Per-generation timeout for cloud providers
}

// ClaudeConfig configures the Anthropic cloud provider
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"` // User must provide API key (ANTHROPIC_API_KEY or config)
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
}

// GeminiConfig configures the Google cloud provider
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"` // User must provide API key (no fallback)
	Model       string  `toml:"model"`
	Temperature float32 `toml:"temperature"`
}

// RAGConfig configures chunking, scoring and context assembly
type RAGConfig struct {
	ChunkSize            int  `toml:"chunk_size"`             // Chunk flush threshold in characters
	SmallCorpusThreshold int  `toml:"small_corpus_threshold"` // Below this total size the full corpus is returned
	ChatTopChunks        int  `toml:"chat_top_chunks"`        // Top chunks for in-app chat retrieval
	APITopChunks         int  `toml:"api_top_chunks"`         // Top chunks for API instance retrieval
	SessionDocumentCap   int  `toml:"session_document_cap"`   // Character cap for session-attached documents
	KeywordExpansion     bool `toml:"keyword_expansion"`      // Enable domain keyword expansion
}

// SearchConfig configures the optional web search used by context assembly
type SearchConfig struct {
	Enabled        bool          `toml:"enabled"`
	MaxResults     int           `toml:"max_results"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	RateLimit      time.Duration `toml:"rate_limit"` // Minimum interval between outbound searches
	UserAgent      string        `toml:"user_agent"`
}

// NewDefaultConfig returns the built-in configuration defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/sermo",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		LLM: LLMConfig{
			Provider:    LLMProviderOffline,
			LlamaDir:    "",
			ModelDir:    "./models",
			ChatModel:   "",
			ContextSize: 4096,
			ThreadCount: 4,
			GPULayers:   0,
			Timeout:     5 * time.Minute,
			Claude: ClaudeConfig{
				APIKey:      "",
				Model:       "claude-haiku-3-5-20241022",
				MaxTokens:   8192,
				Temperature: 0.7,
			},
			Gemini: GeminiConfig{
				APIKey:      "",
				Model:       "gemini-3-flash-preview",
				Temperature: 0.7,
			},
		},
		RAG: RAGConfig{
			ChunkSize:            1500,
			SmallCorpusThreshold: 8000,
			ChatTopChunks:        3,
			APITopChunks:         5,
			SessionDocumentCap:   50000,
			KeywordExpansion:     true,
		},
		Search: SearchConfig{
			Enabled:        false,
			MaxResults:     5,
			RequestTimeout: 15 * time.Second,
			RateLimit:      2 * time.Second,
			UserAgent:      "Mozilla/5.0 (compatible; sermo/1.0)",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override all files. CLI flag overrides are
// applied separately via ApplyFlagOverrides and take the highest priority.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SERMO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("SERMO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SERMO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("SERMO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("SERMO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SERMO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// LLM configuration
	if provider := os.Getenv("SERMO_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = provider
	}
	if llamaDir := os.Getenv("SERMO_LLAMA_DIR"); llamaDir != "" {
		config.LLM.LlamaDir = llamaDir
	}
	if modelDir := os.Getenv("SERMO_MODEL_DIR"); modelDir != "" {
		config.LLM.ModelDir = modelDir
	}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.LLM.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.LLM.Gemini.APIKey = apiKey
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
