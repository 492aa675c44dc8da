// Package config loads the application configuration from YAML, .env and
// LOGRAG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up by LoadDefault.
const DefaultPath = "lograg.yaml"

// Providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// OllamaConfig holds the native Ollama endpoint.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
}

// OpenAIConfig holds an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// IngestConfig tunes index building.
type IngestConfig struct {
	Concurrency      int  `yaml:"concurrency"`
	BatchSize        int  `yaml:"batch_size"`
	EmbedTimeoutSecs *int `yaml:"embed_timeout_secs,omitempty"`
}

// RetrievalConfig tunes query embedding.
type RetrievalConfig struct {
	EmbedTimeoutSecs *int `yaml:"embed_timeout_secs,omitempty"`
}

// ChatConfig tunes answer generation.
type ChatConfig struct {
	TimeoutSecs *int `yaml:"timeout_secs,omitempty"`
}

// RetryConfig configures retries of model calls.
type RetryConfig struct {
	MaxRetries  *int `yaml:"max_retries,omitempty"`
	BaseDelayMs int  `yaml:"base_delay_ms"`
}

// CacheConfig configures the embedding cache.
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// WatchConfig configures the drop folder.
type WatchConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Provider              string          `yaml:"provider"`
	Ollama                OllamaConfig    `yaml:"ollama"`
	OpenAI                OpenAIConfig    `yaml:"openai"`
	EmbeddingModelName    string          `yaml:"embedding_model_name"`
	ChatModelName         string          `yaml:"chat_model_name"`
	RowLimit              int             `yaml:"row_limit"`
	SimilarDocumentsLimit int             `yaml:"similar_documents_limit"`
	Ingest                IngestConfig    `yaml:"ingest"`
	Retrieval             RetrievalConfig `yaml:"retrieval"`
	Chat                  ChatConfig      `yaml:"chat"`
	Retry                 RetryConfig     `yaml:"retry"`
	Cache                 CacheConfig     `yaml:"cache"`
	Server                ServerConfig    `yaml:"server"`
	Watch                 WatchConfig     `yaml:"watch"`
	Log                   LogConfig       `yaml:"log"`
}

// Load reads a config from path. A missing file yields defaults.
// Environment overrides and defaults are applied, then the result is validated.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file without overriding ones
// already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// LoadDefault loads ./lograg.yaml, or defaults when it does not exist.
func LoadDefault() (*AppConfig, string, error) {
	cfg, err := Load(DefaultPath)
	return cfg, DefaultPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Default returns a config with every default applied.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOllama
	}
	if cfg.Ollama.BaseURL == "" {
		cfg.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.EmbeddingModelName == "" {
		cfg.EmbeddingModelName = "nomic-embed-text"
	}
	if cfg.ChatModelName == "" {
		cfg.ChatModelName = "gemma3"
	}
	if cfg.SimilarDocumentsLimit == 0 {
		cfg.SimilarDocumentsLimit = 10
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 8
	}
	setDefault(&cfg.Ingest.EmbedTimeoutSecs, 60)
	setDefault(&cfg.Retrieval.EmbedTimeoutSecs, 30)
	setDefault(&cfg.Chat.TimeoutSecs, 300)
	setDefault(&cfg.Retry.MaxRetries, 3)
	if cfg.Retry.BaseDelayMs == 0 {
		cfg.Retry.BaseDelayMs = 500
	}
	if cfg.Cache.Enabled == nil {
		enabled := true
		cfg.Cache.Enabled = &enabled
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// setDefault fills an unset field. An explicit 0 disables the deadline or the
// retries it controls.
func setDefault(field **int, n int) {
	if *field == nil {
		*field = &n
	}
}

// applyEnv overlays LOGRAG_* variables onto cfg.
func applyEnv(cfg *AppConfig) error {
	strs := map[string]*string{
		"LOGRAG_PROVIDER":        &cfg.Provider,
		"LOGRAG_OLLAMA_BASE_URL": &cfg.Ollama.BaseURL,
		"LOGRAG_OPENAI_BASE_URL": &cfg.OpenAI.BaseURL,
		"LOGRAG_EMBEDDING_MODEL": &cfg.EmbeddingModelName,
		"LOGRAG_CHAT_MODEL":      &cfg.ChatModelName,
		"LOGRAG_CACHE_PATH":      &cfg.Cache.Path,
		"LOGRAG_SERVER_ADDR":     &cfg.Server.Addr,
		"LOGRAG_WATCH_DIR":       &cfg.Watch.Dir,
		"LOGRAG_LOG_LEVEL":       &cfg.Log.Level,
		"LOGRAG_LOG_FORMAT":      &cfg.Log.Format,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"LOGRAG_ROW_LIMIT":               &cfg.RowLimit,
		"LOGRAG_SIMILAR_DOCUMENTS_LIMIT": &cfg.SimilarDocumentsLimit,
		"LOGRAG_INGEST_CONCURRENCY":      &cfg.Ingest.Concurrency,
		"LOGRAG_INGEST_BATCH_SIZE":       &cfg.Ingest.BatchSize,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
	}

	optional := map[string]**int{
		"LOGRAG_INGEST_EMBED_TIMEOUT_SECS":    &cfg.Ingest.EmbedTimeoutSecs,
		"LOGRAG_RETRIEVAL_EMBED_TIMEOUT_SECS": &cfg.Retrieval.EmbedTimeoutSecs,
		"LOGRAG_CHAT_TIMEOUT_SECS":            &cfg.Chat.TimeoutSecs,
		"LOGRAG_RETRY_MAX_RETRIES":            &cfg.Retry.MaxRetries,
	}
	for name, dst := range optional {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = &n
	}

	if v, ok := os.LookupEnv("LOGRAG_CACHE_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("LOGRAG_CACHE_ENABLED: %w", err)
		}
		cfg.Cache.Enabled = &b
	}
	return nil
}

// Validate checks ranges and enumerations.
func (c *AppConfig) Validate() error {
	var problems []error
	if c.Provider != ProviderOllama && c.Provider != ProviderOpenAI {
		problems = append(problems, fmt.Errorf("provider must be %q or %q, got %q", ProviderOllama, ProviderOpenAI, c.Provider))
	}
	if c.SimilarDocumentsLimit < 1 {
		problems = append(problems, fmt.Errorf("similar_documents_limit must be at least 1, got %d", c.SimilarDocumentsLimit))
	}
	if c.Ingest.Concurrency < 1 {
		problems = append(problems, fmt.Errorf("ingest.concurrency must be at least 1, got %d", c.Ingest.Concurrency))
	}
	if c.Ingest.BatchSize < 1 {
		problems = append(problems, fmt.Errorf("ingest.batch_size must be at least 1, got %d", c.Ingest.BatchSize))
	}
	if negative(c.Ingest.EmbedTimeoutSecs) || negative(c.Retrieval.EmbedTimeoutSecs) || negative(c.Chat.TimeoutSecs) {
		problems = append(problems, errors.New("timeouts must not be negative"))
	}
	if negative(c.Retry.MaxRetries) || c.Retry.BaseDelayMs < 0 {
		problems = append(problems, errors.New("retry settings must not be negative"))
	}
	if c.EmbeddingModelName == "" || c.ChatModelName == "" {
		problems = append(problems, errors.New("model names must not be empty"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(problems...))
	}
	return nil
}

func negative(n *int) bool {
	return n != nil && *n < 0
}

func valueOf(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

// CacheEnabled reports whether the embedding cache is on.
func (c *AppConfig) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}

// APIKey reads the OpenAI API key from the configured variable.
func (c *AppConfig) APIKey() string {
	return os.Getenv(c.OpenAI.APIKeyEnv)
}

// IngestEmbedTimeout is the deadline of one embedding call during ingestion.
func (c *AppConfig) IngestEmbedTimeout() time.Duration {
	return time.Duration(valueOf(c.Ingest.EmbedTimeoutSecs)) * time.Second
}

// RetrievalEmbedTimeout is the deadline of the query embedding call.
func (c *AppConfig) RetrievalEmbedTimeout() time.Duration {
	return time.Duration(valueOf(c.Retrieval.EmbedTimeoutSecs)) * time.Second
}

// ChatTimeout is the deadline of one chat call.
func (c *AppConfig) ChatTimeout() time.Duration {
	return time.Duration(valueOf(c.Chat.TimeoutSecs)) * time.Second
}

// MaxRetries is the number of retries after a failed model call.
func (c *AppConfig) MaxRetries() int {
	return valueOf(c.Retry.MaxRetries)
}

// RetryBaseDelay is the first backoff interval.
func (c *AppConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond
}
