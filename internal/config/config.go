package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Edgar      EdgarConfig      `yaml:"edgar" mapstructure:"edgar"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Loop       LoopConfig       `yaml:"loop" mapstructure:"loop"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Validator  RoleConfig       `yaml:"validator" mapstructure:"validator"`
	Refiner    RoleConfig       `yaml:"refiner" mapstructure:"refiner"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// EdgarConfig holds SEC EDGAR settings. The SEC requires a descriptive
// User-Agent with a contact address and caps request rates per client.
type EdgarConfig struct {
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// SearchConfig selects the search provider wired at construction time
// and tunes the circuit breaker guarding it.
type SearchConfig struct {
	Provider         string `yaml:"provider" mapstructure:"provider"` // "perplexity" or "jina"
	BreakerFailures  int    `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// RetryConfig tunes retry behavior for LLM API calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// LoopConfig bounds the convergence loop.
type LoopConfig struct {
	MaxIterations  int `yaml:"max_iterations" mapstructure:"max_iterations"`
	ScoreThreshold int `yaml:"score_threshold" mapstructure:"score_threshold"`
}

// RoleConfig configures one LLM role (validator or refiner). The knowledge
// cutoff is explicit per role so the validator can decide trust-vs-verify
// without a hardcoded constant.
type RoleConfig struct {
	Model           string        `yaml:"model" mapstructure:"model"`
	MaxTokens       int64         `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	KnowledgeCutoff string        `yaml:"knowledge_cutoff" mapstructure:"knowledge_cutoff"` // YYYY-MM-DD
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaPricing             `yaml:"jina" mapstructure:"jina"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// JinaPricing holds Jina Search pricing.
type JinaPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// BatchConfig configures multi-ticker batch refinement.
type BatchConfig struct {
	MaxConcurrentArtifacts int `yaml:"max_concurrent_artifacts" mapstructure:"max_concurrent_artifacts"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REFINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "refine.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_artifacts", 4)
	v.SetDefault("loop.max_iterations", 2)
	v.SetDefault("loop.score_threshold", 80)
	v.SetDefault("validator.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("validator.max_tokens", 4096)
	v.SetDefault("validator.timeout", "120s")
	v.SetDefault("validator.knowledge_cutoff", "2025-01-01")
	v.SetDefault("refiner.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("refiner.max_tokens", 8192)
	v.SetDefault("refiner.timeout", "180s")
	v.SetDefault("refiner.knowledge_cutoff", "2025-01-01")
	v.SetDefault("search.provider", "perplexity")
	v.SetDefault("search.breaker_failures", 5)
	v.SetDefault("search.breaker_reset_secs", 30)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 8000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.2)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("edgar.base_url", "https://www.sec.gov")
	v.SetDefault("edgar.user_agent", "Sells Advisors blake@sellsadvisors.com")
	v.SetDefault("edgar.requests_per_sec", 5.0)
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.jina.per_query", 0.002)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
