package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the papernest configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chat      ChatConfig      `yaml:"chat"`
	CORS      CORSConfig      `yaml:"cors"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int   `yaml:"port"`
	ReadTimeoutSec  int   `yaml:"read_timeout_sec"`
	WriteTimeoutSec int   `yaml:"write_timeout_sec"`
	ShutdownSec     int   `yaml:"shutdown_timeout_sec"`
	MaxUploadBytes  int64 `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds the postgres connection settings.
type DatabaseConfig struct {
	DSN                string `yaml:"dsn"`
	MaxOpenConns       int    `yaml:"max_open_conns"`
	MaxIdleConns       int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int    `yaml:"conn_max_lifetime_sec"`
	ReadinessTimeout   int    `yaml:"readiness_timeout_sec"`
}

// SessionsConfig holds the redis session store settings.
type SessionsConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	TTLHours         int      `yaml:"ttl_hours"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// TTL returns the session lifetime.
func (s SessionsConfig) TTL() time.Duration { return time.Duration(s.TTLHours) * time.Hour }

// Embedding provider names accepted in embedding.provider.
const (
	ProviderKeyword = "keyword"
	ProviderLocal   = "local"
	ProviderRemote  = "remote"
)

// EmbeddingConfig selects and configures the relevance provider.
type EmbeddingConfig struct {
	Provider string       `yaml:"provider"` // keyword | local | remote
	Local    LocalConfig  `yaml:"local"`
	Remote   RemoteConfig `yaml:"remote"`
	Retry    RetryConfig  `yaml:"retry"`
}

// LocalConfig describes the on-disk word-vector table.
type LocalConfig struct {
	Path              string `yaml:"path"`
	Dimensions        int    `yaml:"dimensions"`
	Version           string `yaml:"version"`
	ReleaseAfterBatch bool   `yaml:"release_after_batch"`
}

// RemoteConfig holds the OpenAI-compatible embeddings API settings.
type RemoteConfig struct {
	APIKey              string  `yaml:"api_key"`
	BaseURL             string  `yaml:"base_url"`
	Model               string  `yaml:"model"`
	Dimensions          int     `yaml:"dimensions"`
	Version             string  `yaml:"version"`
	User                string  `yaml:"user"`
	DocumentInstruction string  `yaml:"document_instruction"`
	QueryInstruction    string  `yaml:"query_instruction"`
	MaxBatchSize        int     `yaml:"max_batch_size"`
	RequestsPerSecond   float64 `yaml:"requests_per_second"` // 0 = unlimited
	Burst               int     `yaml:"burst"`
}

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	MaxRetries        int `yaml:"max_retries"`
	BaseDelayMs       int `yaml:"base_delay_ms"`
	MaxDelayMs        int `yaml:"max_delay_ms"`
	AttemptTimeoutSec int `yaml:"attempt_timeout_sec"`
}

// CacheConfig sizes the in-process embedding cache.
type CacheConfig struct {
	Capacity          int `yaml:"capacity"`
	ComputeTimeoutSec int `yaml:"compute_timeout_sec"`
}

// RetrievalConfig holds chunking and context assembly settings.
type RetrievalConfig struct {
	WindowSize       int `yaml:"window_size"`
	Overlap          int `yaml:"overlap"`
	TopK             int `yaml:"top_k"`
	MaxContextLength int `yaml:"max_context_length"` // runes, 0 = unbounded
	// MaxChunks caps how many leading chunks of a document are encoded.
	// Bounds memory and API cost on very long papers; text past the cap is never retrieved. 0 = unlimited.
	MaxChunks int `yaml:"max_chunks"`
}

// ChatConfig holds generative service settings.
type ChatConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	Temperature       float32 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	SummaryInputLimit int     `yaml:"summary_input_limit"` // runes of paper text sent for summarization
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// CORSConfig holds cross-origin settings for the browser client.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads, expands, defaults and validates the config at path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120 // summarize and chat wait on the LLM
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = 32 << 20
	}

	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetimeSec <= 0 {
		c.Database.ConnMaxLifetimeSec = 300
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	if c.Sessions.TTLHours <= 0 {
		c.Sessions.TTLHours = 24
	}
	if c.Sessions.ReadinessTimeout <= 0 {
		c.Sessions.ReadinessTimeout = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderKeyword
	}
	if c.Embedding.Remote.Model == "" {
		c.Embedding.Remote.Model = "text-embedding-3-small"
	}
	if c.Embedding.Remote.MaxBatchSize <= 0 {
		c.Embedding.Remote.MaxBatchSize = 256
	}
	if c.Embedding.Retry.MaxRetries < 0 {
		c.Embedding.Retry.MaxRetries = 0
	} else if c.Embedding.Retry.MaxRetries == 0 {
		c.Embedding.Retry.MaxRetries = 3
	}
	if c.Embedding.Retry.BaseDelayMs <= 0 {
		c.Embedding.Retry.BaseDelayMs = 200
	}
	if c.Embedding.Retry.MaxDelayMs <= 0 {
		c.Embedding.Retry.MaxDelayMs = 5000
	}
	if c.Embedding.Retry.AttemptTimeoutSec <= 0 {
		c.Embedding.Retry.AttemptTimeoutSec = 30
	}

	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = 10
	}
	if c.Cache.ComputeTimeoutSec <= 0 {
		c.Cache.ComputeTimeoutSec = 120
	}

	if c.Retrieval.WindowSize <= 0 {
		c.Retrieval.WindowSize = 2000
	}
	if c.Retrieval.Overlap <= 0 {
		c.Retrieval.Overlap = 200
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.MaxContextLength == 0 {
		c.Retrieval.MaxContextLength = 12000
	}

	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.Chat.Model == "" {
		c.Chat.Model = "llama-3.3-70b-versatile"
	}
	if c.Chat.SummaryInputLimit <= 0 {
		c.Chat.SummaryInputLimit = 25000
	}
	if c.Chat.TimeoutSec <= 0 {
		c.Chat.TimeoutSec = 60
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Embedding.Provider {
	case ProviderKeyword, ProviderLocal, ProviderRemote:
		// ok
	default:
		return fmt.Errorf(
			"embedding.provider must be %q, %q or %q, got %q",
			ProviderKeyword, ProviderLocal, ProviderRemote, c.Embedding.Provider,
		)
	}
	if c.Retrieval.Overlap >= c.Retrieval.WindowSize {
		return fmt.Errorf("retrieval.overlap (%d) must be smaller than retrieval.window_size (%d)",
			c.Retrieval.Overlap, c.Retrieval.WindowSize)
	}
	if c.Retrieval.MaxChunks < 0 {
		return fmt.Errorf("retrieval.max_chunks must be >= 0, got %d", c.Retrieval.MaxChunks)
	}
	if c.Retrieval.MaxContextLength < 0 {
		return fmt.Errorf("retrieval.max_context_length must be >= 0, got %d", c.Retrieval.MaxContextLength)
	}
	return nil
}

// ValidateServer checks the settings only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if len(c.Sessions.Addrs) == 0 {
		return fmt.Errorf("sessions.addrs is required")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
