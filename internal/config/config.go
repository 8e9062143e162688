package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/agenthands/lineage/internal/core/model"
)

// Duration reads "30s" / "2m" style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Dur(v time.Duration) Duration { return Duration{v} }

type LLMConfig struct {
	// Providers lists the model extractors to run, e.g. ["openai", "claude"].
	// Empty means only Provider.
	Providers   []string `toml:"providers"`
	Provider    string   `toml:"provider"`
	Model       string   `toml:"model"`
	APIKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	Temperature float64  `toml:"temperature"`
	Prompt      string   `toml:"prompt"`
}

type Neo4jConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	// Flavor is "neo4j" or "memgraph".
	Flavor string `toml:"flavor"`
}

type MergeConfig struct {
	HighThreshold float64 `toml:"high_threshold"`
}

type ResolveConfig struct {
	// Mode is "automatic" or "interactive".
	Mode              string   `toml:"mode"`
	OverrideThreshold float64  `toml:"override_threshold"`
	DecisionTimeout   Duration `toml:"decision_timeout"`
	// DecisionsFile, when set, answers interactive conflicts from a script.
	DecisionsFile string `toml:"decisions_file"`
}

type ConflictConfig struct {
	PlaceTolerance int `toml:"place_tolerance"`
}

type IdentityConfig struct {
	VariantsFile string `toml:"variants_file"`
	NameFallback bool   `toml:"name_fallback"`
}

type PipelineConfig struct {
	Workers           int      `toml:"workers"`
	RetryLimit        int      `toml:"retry_limit"`
	BackoffBase       Duration `toml:"backoff_base"`
	FetchTimeout      Duration `toml:"fetch_timeout"`
	ExtractTimeout    Duration `toml:"extract_timeout"`
	CommitTimeout     Duration `toml:"commit_timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	UserAgent         string   `toml:"user_agent"`
	CacheSize         int      `toml:"cache_size"`
	PatternExtractor  bool     `toml:"pattern_extractor"`
}

type CatalogConfig struct {
	Path string `toml:"path"`
}

type LockConfig struct {
	// Backend is "memory" or "redis".
	Backend       string   `toml:"backend"`
	RedisAddr     string   `toml:"redis_addr"`
	RedisPassword string   `toml:"redis_password"`
	RedisDB       int      `toml:"redis_db"`
	TTL           Duration `toml:"ttl"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type LogConfig struct {
	Mode string `toml:"mode"`
}

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Neo4j    Neo4jConfig    `toml:"neo4j"`
	Merge    MergeConfig    `toml:"merge"`
	Resolve  ResolveConfig  `toml:"resolve"`
	Conflict ConflictConfig `toml:"conflict"`
	Identity IdentityConfig `toml:"identity"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Lock     LockConfig     `toml:"lock"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// Default is a runnable configuration: automatic resolution, pattern
// extraction only, in-memory graph, local SQLite catalog.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{Temperature: 0.1},
		Neo4j: Neo4jConfig{
			User:   "neo4j",
			Flavor: "neo4j",
		},
		Merge: MergeConfig{HighThreshold: 0.8},
		Resolve: ResolveConfig{
			Mode:              "automatic",
			OverrideThreshold: 0.95,
			DecisionTimeout:   Dur(10 * time.Minute),
		},
		Conflict: ConflictConfig{PlaceTolerance: 1},
		Identity: IdentityConfig{NameFallback: true},
		Pipeline: PipelineConfig{
			Workers:           4,
			RetryLimit:        3,
			BackoffBase:       Dur(time.Second),
			FetchTimeout:      Dur(30 * time.Second),
			ExtractTimeout:    Dur(60 * time.Second),
			CommitTimeout:     Dur(30 * time.Second),
			RequestsPerSecond: 1,
			UserAgent:         "lineage/1.0 (+https://github.com/agenthands/lineage)",
			CacheSize:         256,
			PatternExtractor:  true,
		},
		Catalog: CatalogConfig{Path: "lineage.db"},
		Lock: LockConfig{
			Backend: "memory",
			TTL:     Dur(5 * time.Minute),
		},
		Server: ServerConfig{Port: "8080"},
		Log:    LogConfig{Mode: "dev"},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Neo4j.URI, "NEO4J_URI")
	set(&c.Neo4j.User, "NEO4J_USER")
	set(&c.Neo4j.Password, "NEO4J_PASSWORD")
	set(&c.Neo4j.Database, "NEO4J_DATABASE")
	set(&c.LLM.Provider, "LLM_PROVIDER")
	set(&c.LLM.Model, "LLM_MODEL")
	set(&c.LLM.APIKey, "LLM_API_KEY")
	set(&c.LLM.BaseURL, "LLM_BASE_URL")
	set(&c.Lock.RedisAddr, "REDIS_ADDR")
	set(&c.Lock.RedisPassword, "REDIS_PASSWORD")
	set(&c.Catalog.Path, "LINEAGE_CATALOG")
	set(&c.Server.Port, "PORT")
	set(&c.Log.Mode, "LOG_MODE")
}

// ModelProviders returns the LLM providers to run as extractors.
func (c *Config) ModelProviders() []string {
	if len(c.LLM.Providers) > 0 {
		return c.LLM.Providers
	}
	if c.LLM.Provider != "" {
		return []string{c.LLM.Provider}
	}
	return nil
}

// Validate reports the first problem as a *model.ConfigurationError.
func (c *Config) Validate() error {
	bad := func(field, reason string) error {
		return &model.ConfigurationError{Field: field, Reason: reason}
	}
	// zero is reserved for "use the default" by the merger and resolver
	inUnit := func(v float64) bool { return v > 0 && v <= 1 }

	switch {
	case !inUnit(c.Merge.HighThreshold):
		return bad("merge.high_threshold", "must be within (0,1]")
	case !inUnit(c.Resolve.OverrideThreshold):
		return bad("resolve.override_threshold", "must be within (0,1]")
	case c.Resolve.Mode != "automatic" && c.Resolve.Mode != "interactive":
		return bad("resolve.mode", fmt.Sprintf("unknown mode %q", c.Resolve.Mode))
	case c.Conflict.PlaceTolerance < 0:
		return bad("conflict.place_tolerance", "must not be negative")
	case c.Pipeline.Workers < 1:
		return bad("pipeline.workers", "must be at least 1")
	case c.Pipeline.RetryLimit < 0:
		return bad("pipeline.retry_limit", "must not be negative")
	case c.Pipeline.BackoffBase.Duration < 0:
		return bad("pipeline.backoff_base", "must not be negative")
	case c.Pipeline.RequestsPerSecond < 0:
		return bad("pipeline.requests_per_second", "must not be negative")
	case c.Neo4j.URI != "" && c.Neo4j.Password == "":
		return bad("neo4j.password", "required when neo4j.uri is set")
	case c.Neo4j.Flavor != "" && c.Neo4j.Flavor != "neo4j" && c.Neo4j.Flavor != "memgraph":
		return bad("neo4j.flavor", fmt.Sprintf("unknown flavor %q", c.Neo4j.Flavor))
	case c.Lock.Backend != "memory" && c.Lock.Backend != "redis":
		return bad("lock.backend", fmt.Sprintf("unknown backend %q", c.Lock.Backend))
	case c.Lock.Backend == "redis" && c.Lock.RedisAddr == "":
		return bad("lock.redis_addr", "required for the redis lock backend")
	case c.Lock.Backend == "redis" && c.Lock.TTL.Duration < time.Second:
		return bad("lock.ttl", "must be at least 1s for the redis lock backend")
	case !c.Pipeline.PatternExtractor && len(c.ModelProviders()) == 0:
		return bad("llm.provider", "no extractor enabled")
	}
	if c.LLM.Prompt != "" && strings.Count(c.LLM.Prompt, "%s") != 1 {
		return bad("llm.prompt", "must contain exactly one %s for the document text")
	}
	return nil
}
