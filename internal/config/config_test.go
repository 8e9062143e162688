package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agenthands/lineage/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lineage.toml")
	content := `
[neo4j]
uri = "bolt://localhost:7687"
password = "secret"
flavor = "memgraph"

[llm]
providers = ["openai", "claude"]
model = "gpt-4o-mini"

[resolve]
mode = "interactive"
decision_timeout = "2m"

[pipeline]
workers = 8
backoff_base = "250ms"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, "memgraph", cfg.Neo4j.Flavor)
	assert.Equal(t, "neo4j", cfg.Neo4j.User) // default kept
	assert.Equal(t, []string{"openai", "claude"}, cfg.ModelProviders())
	assert.Equal(t, "interactive", cfg.Resolve.Mode)
	assert.Equal(t, 2*time.Minute, cfg.Resolve.DecisionTimeout.Duration)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.BackoffBase.Duration)
	assert.Equal(t, 0.95, cfg.Resolve.OverrideThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"NEO4J_URI":      "neo4j://db:7687",
		"NEO4J_PASSWORD": "pw",
		"LLM_PROVIDER":   "gemini",
		"PORT":           "9090",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "neo4j://db:7687", cfg.Neo4j.URI)
	assert.Equal(t, "pw", cfg.Neo4j.Password)
	assert.Equal(t, []string{"gemini"}, cfg.ModelProviders())
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "neo4j", cfg.Neo4j.User)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"threshold", func(c *Config) { c.Merge.HighThreshold = 1.5 }, "merge.high_threshold"},
		{"override", func(c *Config) { c.Resolve.OverrideThreshold = -1 }, "resolve.override_threshold"},
		{"zero threshold", func(c *Config) { c.Merge.HighThreshold = 0 }, "merge.high_threshold"},
		{"zero override", func(c *Config) { c.Resolve.OverrideThreshold = 0 }, "resolve.override_threshold"},
		{"mode", func(c *Config) { c.Resolve.Mode = "manual" }, "resolve.mode"},
		{"workers", func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"retry", func(c *Config) { c.Pipeline.RetryLimit = -1 }, "pipeline.retry_limit"},
		{"password", func(c *Config) { c.Neo4j.URI = "bolt://x" }, "neo4j.password"},
		{"redis", func(c *Config) { c.Lock.Backend = "redis" }, "lock.redis_addr"},
		{"redis ttl", func(c *Config) {
			c.Lock.Backend, c.Lock.RedisAddr, c.Lock.TTL = "redis", "localhost:6379", Dur(0)
		}, "lock.ttl"},
		{"extractors", func(c *Config) { c.Pipeline.PatternExtractor = false }, "llm.provider"},
		{"prompt", func(c *Config) { c.LLM.Prompt = "no placeholder" }, "llm.prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cfgErr *model.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := Load("../../lineage.example.toml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"openai"}, cfg.ModelProviders())
	assert.Equal(t, 10*time.Minute, cfg.Resolve.DecisionTimeout.Duration)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.ExtractTimeout.Duration)
	assert.Equal(t, "memory", cfg.Lock.Backend)
}
