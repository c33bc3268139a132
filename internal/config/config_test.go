package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:      HTTPConfig{Port: 8080},
		Database:  DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Embedding: EmbeddingConfig{Model: "nomic-embed-text"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingRedisAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing redis addrs")
	}
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Driver = "postgres"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing dsn")
	}
	if err.Error() != "database.dsn is required for driver postgres" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	cfg.Database.DSN = "postgres://localhost/ragdex"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Generation.Provider = "anthropic"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	expected := `generation.provider must be "openai" or "ollama", got "anthropic"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_CacheDriver(t *testing.T) {
	for _, driver := range []string{"redis", "memory", "badger"} {
		t.Run("driver="+driver, func(t *testing.T) {
			cfg := validConfig()
			cfg.Cache.Driver = driver
			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for driver %q: %v", driver, err)
			}
		})
	}

	cfg := validConfig()
	cfg.Cache.Driver = "memcached"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown cache driver")
	}

	disabled := false
	cfg.Cache.Enabled = &disabled
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled cache must skip driver validation: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{Addrs: []string{"db:6379"}, Password: "secret"}}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.MaxConcurrent != 3 || cfg.HTTP.MaxQueueDepth != 10 {
		t.Errorf("expected queue 3/10, got %d/%d", cfg.HTTP.MaxConcurrent, cfg.HTTP.MaxQueueDepth)
	}
	if cfg.Database.Driver != "redis" || cfg.Database.KeyPrefix != "ragdex:" {
		t.Errorf("unexpected database defaults: %+v", cfg.Database)
	}
	if cfg.Generation.Model != "phi3:mini" || cfg.Generation.DefaultContextLimit != 4096 {
		t.Errorf("unexpected generation defaults: %+v", cfg.Generation)
	}
	if cfg.Cache.SimilarityThreshold != 0.95 || cfg.Cache.TTLSec != 3600 {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if len(cfg.Cache.Addrs) != 1 || cfg.Cache.Addrs[0] != "db:6379" || cfg.Cache.Password != "secret" {
		t.Errorf("cache must inherit database connection: %+v", cfg.Cache)
	}
	if !cfg.Cache.IsEnabled() {
		t.Error("cache must be enabled by default")
	}
	r := cfg.Retrieval
	if r.RRFK != 60 || r.SemanticWeight != 0.5 || r.LexicalWeight != 0.5 {
		t.Errorf("unexpected fusion defaults: %+v", r)
	}
	if r.BM25K1 != 1.5 || r.BM25B != 0.75 {
		t.Errorf("unexpected bm25 defaults: %+v", r)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, MaxConcurrent: 8},
		Cache:     CacheConfig{SimilarityThreshold: 0.9, TTLSec: 60, Addrs: []string{"cache:6379"}},
		Retrieval: RetrievalConfig{RRFK: 10, SemanticWeight: 0.7, LexicalWeight: 0},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 || cfg.HTTP.WriteTimeoutSec != 60 || cfg.HTTP.MaxConcurrent != 8 {
		t.Errorf("http overridden: %+v", cfg.HTTP)
	}
	if cfg.Cache.SimilarityThreshold != 0.9 || cfg.Cache.TTLSec != 60 || cfg.Cache.Addrs[0] != "cache:6379" {
		t.Errorf("cache overridden: %+v", cfg.Cache)
	}
	if cfg.Retrieval.RRFK != 10 || cfg.Retrieval.SemanticWeight != 0.7 || cfg.Retrieval.LexicalWeight != 0 {
		t.Errorf("retrieval overridden: %+v", cfg.Retrieval)
	}
}

func TestContextLimit(t *testing.T) {
	g := GenerationConfig{
		ContextLimits:       map[string]int{"llama3.2:3b": 8192},
		DefaultContextLimit: 4096,
	}
	if g.ContextLimit("llama3.2:3b") != 8192 {
		t.Errorf("expected model-specific limit")
	}
	if g.ContextLimit("phi3:mini") != 4096 {
		t.Errorf("expected default limit")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RAGDEX_TEST_HOST", "redis.internal")

	in := []byte("a: ${RAGDEX_TEST_HOST}\nb: ${RAGDEX_TEST_MISSING:-fallback}\nc: ${RAGDEX_TEST_MISSING}")
	got := string(expandEnvVars(in))

	want := "a: redis.internal\nb: fallback\nc: "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoad_FromConfigDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := `
http:
  port: 9000
database:
  addrs: ["${RAGDEX_TEST_REDIS:-localhost:6379}"]
embedding:
  model: nomic-embed-text
generation:
  model: llama3.2:3b
cache:
  driver: memory
`
	if err := os.WriteFile(filepath.Join(dir, "config", "unit.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("RAGDEX_TEST_REDIS", "redis:6380")

	cfg, err := Load("unit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9000 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
	if cfg.Database.Addrs[0] != "redis:6380" {
		t.Errorf("addrs = %v", cfg.Database.Addrs)
	}
	if cfg.Generation.Model != "llama3.2:3b" || cfg.Cache.Driver != "memory" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}
