// Package config loads the ragdex YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Database drivers.
const (
	DriverRedis   = "redis"
	DriverChromem = "chromem"
	DriverQdrant  = "qdrant"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// Config holds the ragdex configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chat      ChatConfig      `yaml:"chat"`
	NATS      NATSConfig      `yaml:"nats"`
	Crawler   CrawlerConfig   `yaml:"crawler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port               int      `yaml:"port"`
	ReadTimeoutSec     int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec    int      `yaml:"write_timeout_sec"` // must outlive a streamed chat reply
	ShutdownSec        int      `yaml:"shutdown_timeout_sec"`
	DegradeQueryErrors bool     `yaml:"degrade_query_errors"` // answer failed /query calls with no results
	CORSOrigins        []string `yaml:"cors_origins"`
}

// DatabaseConfig selects and configures the vector store.
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // redis, chromem, qdrant (default: redis)
	ReadinessTimeout int           `yaml:"readiness_timeout_sec"`
	Redis            RedisConfig   `yaml:"redis"`
	Chromem          ChromemConfig `yaml:"chromem"`
	Qdrant           QdrantConfig  `yaml:"qdrant"`
}

// RedisConfig holds Redis Stack connection and index settings.
type RedisConfig struct {
	Addrs           []string `yaml:"addrs"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	DB              int      `yaml:"db"`
	HNSWM           int      `yaml:"hnsw_m"`
	HNSWEFConstruct int      `yaml:"hnsw_ef_construction"`
}

// ChromemConfig holds embedded store settings. An empty path keeps data in memory.
type ChromemConfig struct {
	Path     string `yaml:"path"`
	Compress bool   `yaml:"compress"`
}

// QdrantConfig holds Qdrant REST settings.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider         string         `yaml:"provider"` // openai, hash (default: openai)
	APIKey           string         `yaml:"api_key"`
	BaseURL          string         `yaml:"base_url"`
	Model            string         `yaml:"model"`
	Dimensions       int            `yaml:"dimensions"` // requested width; required for hash
	QueryInstruction string         `yaml:"query_instruction"`
	MaxRetries       int            `yaml:"max_retries"` // retries on 429 and 5xx (default: 2, -1 disables)
	Models           map[string]int `yaml:"models"` // catalog additions and overrides
	Cache            CacheConfig    `yaml:"cache"`
}

// CacheConfig holds the Redis embedding cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSec  int  `yaml:"ttl_sec"` // 0 = no expiry
}

// RetrievalConfig holds engine tuning.
type RetrievalConfig struct {
	MinScore          *float64 `yaml:"min_score"`
	DefaultLimit      int      `yaml:"default_limit"`
	MaxLimit          int      `yaml:"max_limit"`
	DefaultCollection string   `yaml:"default_collection"`
	IngestConcurrency int      `yaml:"ingest_concurrency"`
}

// ChatConfig holds chat completion settings.
type ChatConfig struct {
	Enabled      bool    `yaml:"enabled"`
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"system_prompt"`
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
}

// NATSConfig holds the NATS micro service settings. An empty URL disables it.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// CrawlerConfig holds the crawl subcommand settings.
type CrawlerConfig struct {
	MaxDepth     int    `yaml:"max_depth"`     // default: 2
	Parallelism  int    `yaml:"parallelism"`   // requests in flight per domain (default: 1)
	DelayMS      int    `yaml:"delay_ms"`      // pause between requests (default: 1000, -1 disables)
	ChunkSize    int    `yaml:"chunk_size"`    // characters per chunk (default: 1000)
	ChunkOverlap int    `yaml:"chunk_overlap"` // characters shared by neighbours (default: 100, -1 disables)
	UserAgent    string `yaml:"user_agent"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFrom reads {dir}/{env}.yaml.
func LoadFrom(dir, env string) (Config, error) {
	if dir == "" {
		return Load(env)
	}
	return LoadFile(filepath.Join(dir, env+".yaml"))
}

// LoadFile reads, expands, defaults and validates one configuration file.
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

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	defaults := domain.DefaultRetrieval()

	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverRedis
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.Redis.HNSWM <= 0 {
		c.Database.Redis.HNSWM = 16
	}
	if c.Database.Redis.HNSWEFConstruct <= 0 {
		c.Database.Redis.HNSWEFConstruct = 200
	}
	if c.Database.Qdrant.TimeoutSec <= 0 {
		c.Database.Qdrant.TimeoutSec = 15
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderOpenAI
	}
	if c.Embedding.MaxRetries == 0 {
		c.Embedding.MaxRetries = 2
	}
	if c.Embedding.Model == "" && c.Embedding.Provider == ProviderOpenAI {
		c.Embedding.Model = defaults.Model
	}

	if c.Retrieval.MinScore == nil {
		minScore := defaults.MinScore
		c.Retrieval.MinScore = &minScore
	}
	if c.Retrieval.DefaultLimit <= 0 {
		c.Retrieval.DefaultLimit = defaults.DefaultLimit
	}
	if c.Retrieval.MaxLimit <= 0 {
		c.Retrieval.MaxLimit = defaults.MaxLimit
	}
	if c.Retrieval.DefaultCollection == "" {
		c.Retrieval.DefaultCollection = defaults.DefaultCollection
	}
	if c.Retrieval.IngestConcurrency <= 0 {
		c.Retrieval.IngestConcurrency = 4
	}

	if c.Chat.Temperature == 0 {
		c.Chat.Temperature = 0.7
	}

	if c.Crawler.MaxDepth <= 0 {
		c.Crawler.MaxDepth = 2
	}
	if c.Crawler.Parallelism <= 0 {
		c.Crawler.Parallelism = 1
	}
	if c.Crawler.DelayMS == 0 {
		c.Crawler.DelayMS = 1000
	}
	if c.Crawler.ChunkSize <= 0 {
		c.Crawler.ChunkSize = 1000
	}
	if c.Crawler.ChunkOverlap == 0 {
		c.Crawler.ChunkOverlap = 100
	}
	if c.Crawler.UserAgent == "" {
		c.Crawler.UserAgent = "ragdex-crawler"
	}

	if c.NATS.Name == "" {
		c.NATS.Name = "ragdex"
	}
	if c.NATS.Version == "" {
		c.NATS.Version = "1.0.0"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Database.Driver {
	case DriverRedis:
		if len(c.Database.Redis.Addrs) == 0 {
			return errors.New("database.redis.addrs is required")
		}
	case DriverQdrant:
		if c.Database.Qdrant.URL == "" {
			return errors.New("database.qdrant.url is required")
		}
	case DriverChromem:
	default:
		return fmt.Errorf("database.driver must be one of redis, chromem, qdrant, got %q", c.Database.Driver)
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI:
		if c.Embedding.Model == "" {
			return errors.New("embedding.model is required")
		}
	case ProviderHash:
	default:
		return fmt.Errorf("embedding.provider must be \"openai\" or \"hash\", got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.Cache.Enabled && c.Database.Driver != DriverRedis {
		return errors.New("embedding.cache requires database.driver redis")
	}

	if c.Retrieval.MinScore != nil && (*c.Retrieval.MinScore < -1 || *c.Retrieval.MinScore > 1) {
		return fmt.Errorf("retrieval.min_score must be between -1 and 1, got %v", *c.Retrieval.MinScore)
	}
	if c.Retrieval.DefaultLimit > c.Retrieval.MaxLimit {
		return fmt.Errorf("retrieval.default_limit (%d) must not exceed retrieval.max_limit (%d)",
			c.Retrieval.DefaultLimit, c.Retrieval.MaxLimit)
	}

	if c.Crawler.ChunkOverlap >= c.Crawler.ChunkSize {
		return fmt.Errorf("crawler.chunk_overlap (%d) must be smaller than crawler.chunk_size (%d)",
			c.Crawler.ChunkOverlap, c.Crawler.ChunkSize)
	}

	if c.Chat.Enabled && c.Chat.APIKey == "" {
		return errors.New("chat.api_key is required when chat is enabled")
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
