// Package config loads service settings from .env files, an optional
// coach.yaml and COACH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"aramcoach/internal/facts"
	"aramcoach/internal/llm"
	"aramcoach/internal/retrieval"
	"aramcoach/internal/threat"
)

// EnvPaths are tried in order; the first .env found is loaded.
var EnvPaths = []string{".env", "../.env", "../../.env"}

// Fact store backends
const (
	BackendDir    = "dir"
	BackendSQLite = facts.DriverSQLite
	BackendLibSQL = facts.DriverLibSQL
)

// Config holds every service setting
type Config struct {
	Server    ServerConfig
	Data      DataConfig
	Retrieval RetrievalConfig
	Threat    ThreatConfig
	Priors    PriorsConfig
	Guides    GuidesConfig
	LLM       LLMConfig
	Pipeline  PipelineConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// DataConfig selects where patch facts come from
type DataConfig struct {
	Backend      string
	Root         string
	DSN          string
	AuthToken    string
	DefaultPatch string
	Watch        bool
}

type RetrievalConfig struct {
	Mode string
	TopK int
	K1   float64
	B    float64
}

type ThreatConfig struct {
	Mode        string
	PriorOffset float64
	PriorScale  float64
}

// PriorsConfig lists win-rate sources. Sources are chained in the order
// static, postgres, metasrc.
type PriorsConfig struct {
	Static      map[string]float64
	DatabaseURL string
	MinGames    int
	MetaSrc     bool
	MetaSrcURL  string
	TTL         time.Duration
}

type GuidesConfig struct {
	Enabled     bool
	BaseURL     string
	Concurrency int
	Timeout     time.Duration
	TTL         time.Duration
}

type LLMConfig struct {
	Provider      string
	Model         string
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	Strict        bool
	SnippetTokens int
}

type PipelineConfig struct {
	MaxLoops     int
	StageTimeout time.Duration
}

type LogConfig struct {
	Level       string
	Development bool
}

// LoadEnv loads the first .env file found in EnvPaths. It returns the path
// used, or "" when none exists.
func LoadEnv() string {
	for _, path := range EnvPaths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads configuration. configFile may be empty, in which case coach.yaml
// is searched for in the working directory and ./config.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names shared with the other tools of the project
	legacy := map[string][]string{
		"server.port":         {"COACH_SERVER_PORT", "PORT"},
		"priors.database_url": {"COACH_PRIORS_DATABASE_URL", "DATABASE_URL"},
		"data.dsn":            {"COACH_DATA_DSN", "TURSO_DATABASE_URL"},
		"data.auth_token":     {"COACH_DATA_AUTH_TOKEN", "TURSO_AUTH_TOKEN"},
	}
	for key, names := range legacy {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("coach")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Data: DataConfig{
			Backend:      strings.ToLower(v.GetString("data.backend")),
			Root:         v.GetString("data.root"),
			DSN:          v.GetString("data.dsn"),
			AuthToken:    v.GetString("data.auth_token"),
			DefaultPatch: v.GetString("data.default_patch"),
			Watch:        v.GetBool("data.watch"),
		},
		Retrieval: RetrievalConfig{
			Mode: v.GetString("retrieval.mode"),
			TopK: v.GetInt("retrieval.top_k"),
			K1:   v.GetFloat64("retrieval.k1"),
			B:    v.GetFloat64("retrieval.b"),
		},
		Threat: ThreatConfig{
			Mode:        strings.ToLower(v.GetString("threat.mode")),
			PriorOffset: v.GetFloat64("threat.prior_offset"),
			PriorScale:  v.GetFloat64("threat.prior_scale"),
		},
		Priors: PriorsConfig{
			DatabaseURL: v.GetString("priors.database_url"),
			MinGames:    v.GetInt("priors.min_games"),
			MetaSrc:     v.GetBool("priors.metasrc"),
			MetaSrcURL:  v.GetString("priors.metasrc_url"),
			TTL:         v.GetDuration("priors.ttl"),
		},
		Guides: GuidesConfig{
			Enabled:     v.GetBool("guides.enabled"),
			BaseURL:     v.GetString("guides.base_url"),
			Concurrency: v.GetInt("guides.concurrency"),
			Timeout:     v.GetDuration("guides.timeout"),
			TTL:         v.GetDuration("guides.ttl"),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(v.GetString("llm.provider")),
			Model:         v.GetString("llm.model"),
			BaseURL:       v.GetString("llm.base_url"),
			Timeout:       v.GetDuration("llm.timeout"),
			Strict:        v.GetBool("llm.strict"),
			SnippetTokens: v.GetInt("llm.snippet_tokens"),
		},
		Pipeline: PipelineConfig{
			MaxLoops:     v.GetInt("pipeline.max_loops"),
			StageTimeout: v.GetDuration("pipeline.stage_timeout"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
	}

	if static := v.GetStringMap("priors.static"); len(static) > 0 {
		cfg.Priors.Static = make(map[string]float64, len(static))
		for name, raw := range static {
			switch wr := raw.(type) {
			case float64:
				cfg.Priors.Static[name] = wr
			case int:
				cfg.Priors.Static[name] = float64(wr)
			default:
				return nil, fmt.Errorf("priors.static.%s: win rate must be a number, got %v", name, raw)
			}
		}
	}

	cfg.LLM.APIKey = v.GetString("llm.api_key")
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = providerKey(v, cfg.LLM.Provider)
	}

	return cfg, nil
}

func providerKey(v *viper.Viper, provider string) string {
	switch provider {
	case llm.ProviderOpenAI:
		_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
		return v.GetString("openai_api_key")
	case llm.ProviderGemini:
		_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY", "GOOGLE_API_KEY")
		return v.GetString("gemini_api_key")
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("data.backend", BackendDir)
	v.SetDefault("data.root", "data/patches")
	v.SetDefault("data.dsn", "")
	v.SetDefault("data.auth_token", "")
	v.SetDefault("data.default_patch", "14.99")
	v.SetDefault("data.watch", false)

	v.SetDefault("retrieval.mode", string(retrieval.ModeChampion))
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.k1", retrieval.DefaultK1)
	v.SetDefault("retrieval.b", retrieval.DefaultB)

	v.SetDefault("threat.mode", threat.ModeKeyword)
	v.SetDefault("threat.prior_offset", threat.DefaultNormalization.Offset)
	v.SetDefault("threat.prior_scale", threat.DefaultNormalization.Scale)

	v.SetDefault("priors.database_url", "")
	v.SetDefault("priors.min_games", 20)
	v.SetDefault("priors.metasrc", false)
	v.SetDefault("priors.metasrc_url", "")
	v.SetDefault("priors.ttl", 6*time.Hour)

	v.SetDefault("guides.enabled", false)
	v.SetDefault("guides.base_url", "")
	v.SetDefault("guides.concurrency", 4)
	v.SetDefault("guides.timeout", 15*time.Second)
	v.SetDefault("guides.ttl", 6*time.Hour)

	v.SetDefault("llm.provider", llm.ProviderNone)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.strict", false)
	v.SetDefault("llm.snippet_tokens", 400)

	v.SetDefault("pipeline.max_loops", 1)
	v.SetDefault("pipeline.stage_timeout", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Validate rejects settings no component can serve
func (c *Config) Validate() error {
	var errs []error

	switch c.Data.Backend {
	case BackendDir:
		if c.Data.Root == "" {
			errs = append(errs, errors.New("data.root is required for the dir backend"))
		}
	case BackendSQLite, BackendLibSQL:
		if c.Data.DSN == "" {
			errs = append(errs, fmt.Errorf("data.dsn is required for the %s backend", c.Data.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown data backend %q", c.Data.Backend))
	}

	switch retrieval.Mode(c.Retrieval.Mode) {
	case retrieval.ModeChampion, retrieval.ModeText:
	default:
		errs = append(errs, fmt.Errorf("unknown retrieval mode %q", c.Retrieval.Mode))
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, errors.New("retrieval.top_k must be positive"))
	}

	switch c.Threat.Mode {
	case threat.ModeKeyword:
	case threat.ModePrior, threat.ModeHybrid:
		if !c.Priors.HasSource() {
			errs = append(errs, fmt.Errorf("threat mode %q needs at least one prior source", c.Threat.Mode))
		}
		if c.Threat.Mode == threat.ModeHybrid && c.LLM.Provider == llm.ProviderNone {
			errs = append(errs, errors.New("threat mode \"hybrid\" needs an llm provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown threat mode %q", c.Threat.Mode))
	}

	switch c.LLM.Provider {
	case llm.ProviderNone:
	case llm.ProviderOpenAI, llm.ProviderGemini:
		if c.LLM.APIKey == "" {
			errs = append(errs, fmt.Errorf("llm provider %q needs an api key", c.LLM.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}

	if c.Pipeline.MaxLoops < 0 {
		errs = append(errs, errors.New("pipeline.max_loops must not be negative"))
	}

	return errors.Join(errs...)
}

// HasSource reports whether any win-rate source is configured
func (p PriorsConfig) HasSource() bool {
	return len(p.Static) > 0 || p.DatabaseURL != "" || p.MetaSrc
}
