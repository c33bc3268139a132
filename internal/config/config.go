package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the ragdex server configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Cache      CacheConfig      `yaml:"cache"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server and admission settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // covers streamed answers too
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxConcurrent   int `yaml:"max_concurrent"`
	MaxQueueDepth   int `yaml:"max_queue_depth"`
}

// DatabaseConfig holds the vector backend / document store connection.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, postgres (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DSN              string   `yaml:"dsn"` // postgres only
	KeyPrefix        string   `yaml:"key_prefix"`
	Distance         string   `yaml:"distance"` // cosine, ip, l2 (default: cosine)
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds query embedding settings.
type EmbeddingConfig struct {
	Provider         string `yaml:"provider"` // openai, ollama
	BaseURL          string `yaml:"base_url"`
	APIKey           string `yaml:"api_key"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	QueryInstruction string `yaml:"query_instruction"`
	CacheTTLSec      int    `yaml:"cache_ttl_sec"` // query embedding cache, 0 = no expiry
}

// GenerationConfig holds text generation settings.
type GenerationConfig struct {
	Provider            string         `yaml:"provider"` // openai, ollama
	BaseURL             string         `yaml:"base_url"`
	APIKey              string         `yaml:"api_key"`
	Model               string         `yaml:"model"`
	SystemPrompt        string         `yaml:"system_prompt"`
	ContextLimits       map[string]int `yaml:"context_limits"`
	DefaultContextLimit int            `yaml:"default_context_limit"`
	TimeoutSec          int            `yaml:"timeout_sec"`
}

// ContextLimit returns the token budget for model.
func (g *GenerationConfig) ContextLimit(model string) int {
	if n, ok := g.ContextLimits[model]; ok && n > 0 {
		return n
	}
	return g.DefaultContextLimit
}

// CacheConfig holds similarity cache settings.
type CacheConfig struct {
	Enabled             *bool    `yaml:"enabled"` // default true
	Driver              string   `yaml:"driver"`  // redis, memory, badger (default: redis)
	Addrs               []string `yaml:"addrs"`   // redis; empty = reuse database.addrs
	Password            string   `yaml:"password"`
	Path                string   `yaml:"path"` // badger directory, empty = in-memory
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
	TTLSec              int      `yaml:"ttl_sec"`
	MaxEntries          int      `yaml:"max_entries"` // memory driver
	WriteWorkers        int      `yaml:"write_workers"`
}

// IsEnabled reports whether the answer cache is on.
func (c *CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// RetrievalConfig holds retrieval, fusion and context defaults.
type RetrievalConfig struct {
	DefaultWorkspace string  `yaml:"default_workspace"`
	RRFK             int     `yaml:"rrf_k"`
	SemanticWeight   float64 `yaml:"semantic_weight"`
	LexicalWeight    float64 `yaml:"lexical_weight"`
	BM25K1           float64 `yaml:"bm25_k1"`
	BM25B            float64 `yaml:"bm25_b"`
	MaxCandidates    int     `yaml:"max_candidates"`
	MaxCharsPerDoc   int     `yaml:"max_chars_per_doc"`
	BuildTimeoutSec  int     `yaml:"build_timeout_sec"`
	StreamBuffer     int     `yaml:"stream_buffer"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// A .env file in the working directory, if present, is loaded into the environment first.
func Load(env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	configPath := findConfigPath(env)

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
	c.applyHTTPDefaults()
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "ragdex:"
	}
	if c.Database.Distance == "" {
		c.Database.Distance = "cosine"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "ollama"
	}
	if c.Generation.Provider == "" {
		c.Generation.Provider = "ollama"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "phi3:mini"
	}
	if c.Generation.DefaultContextLimit <= 0 {
		c.Generation.DefaultContextLimit = 4096
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 120
	}
	c.applyCacheDefaults()
	c.applyRetrievalDefaults()
}

func (c *Config) applyHTTPDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 180
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxConcurrent <= 0 {
		c.HTTP.MaxConcurrent = 3
	}
	if c.HTTP.MaxQueueDepth <= 0 {
		c.HTTP.MaxQueueDepth = 10
	}
}

func (c *Config) applyCacheDefaults() {
	if c.Cache.Driver == "" {
		c.Cache.Driver = "redis"
	}
	if len(c.Cache.Addrs) == 0 {
		c.Cache.Addrs = c.Database.Addrs
		if c.Cache.Password == "" {
			c.Cache.Password = c.Database.Password
		}
	}
	if c.Cache.SimilarityThreshold <= 0 {
		c.Cache.SimilarityThreshold = 0.95
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 3600
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.Cache.WriteWorkers <= 0 {
		c.Cache.WriteWorkers = 4
	}
}

func (c *Config) applyRetrievalDefaults() {
	r := &c.Retrieval
	if r.DefaultWorkspace == "" {
		r.DefaultWorkspace = "default"
	}
	if r.RRFK <= 0 {
		r.RRFK = 60
	}
	if r.SemanticWeight == 0 && r.LexicalWeight == 0 {
		r.SemanticWeight = 0.5
		r.LexicalWeight = 0.5
	}
	if r.BM25K1 <= 0 {
		r.BM25K1 = 1.5
	}
	if r.BM25B <= 0 {
		r.BM25B = 0.75
	}
	if r.MaxCandidates <= 0 {
		r.MaxCandidates = 50
	}
	if r.MaxCharsPerDoc <= 0 {
		r.MaxCharsPerDoc = 800
	}
	if r.BuildTimeoutSec <= 0 {
		r.BuildTimeoutSec = 60
	}
	if r.StreamBuffer <= 0 {
		r.StreamBuffer = 16
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver redis")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"postgres\", got %q", c.Database.Driver)
	}
	switch c.Database.Distance {
	case "cosine", "ip", "l2":
	default:
		return fmt.Errorf("database.distance must be cosine, ip or l2, got %q", c.Database.Distance)
	}
	if err := validateProvider("embedding.provider", c.Embedding.Provider); err != nil {
		return err
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	if err := validateProvider("generation.provider", c.Generation.Provider); err != nil {
		return err
	}
	if c.Cache.IsEnabled() {
		switch c.Cache.Driver {
		case "redis":
			if len(c.Cache.Addrs) == 0 {
				return fmt.Errorf("cache.addrs is required for driver redis")
			}
		case "memory", "badger":
		default:
			return fmt.Errorf("cache.driver must be redis, memory or badger, got %q", c.Cache.Driver)
		}
		if c.Cache.SimilarityThreshold > 1 {
			return fmt.Errorf("cache.similarity_threshold must be in (0, 1], got %g", c.Cache.SimilarityThreshold)
		}
	}
	if c.Retrieval.SemanticWeight < 0 || c.Retrieval.LexicalWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative")
	}
	if c.Retrieval.BM25B > 1 {
		return fmt.Errorf("retrieval.bm25_b must be in [0, 1], got %g", c.Retrieval.BM25B)
	}
	return nil
}

func validateProvider(field, provider string) error {
	switch provider {
	case "openai", "ollama":
		return nil
	default:
		return fmt.Errorf("%s must be \"openai\" or \"ollama\", got %q", field, provider)
	}
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
