package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Intel      IntelConfig      `yaml:"intel" mapstructure:"intel"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Sourcing   SourcingConfig   `yaml:"sourcing" mapstructure:"sourcing"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// IntelConfig holds the discovery/market-intelligence API settings.
type IntelConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// NotionConfig holds the review-board export settings. Optional; an empty
// token disables the export.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// SourcingConfig configures the candidate sourcing chain.
type SourcingConfig struct {
	RelevanceCutoff int `yaml:"relevance_cutoff" mapstructure:"relevance_cutoff"`
	CacheTTLDays    int `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
	LocalStoreLimit int `yaml:"local_store_limit" mapstructure:"local_store_limit"`
	PacingDelayMs   int `yaml:"pacing_delay_ms" mapstructure:"pacing_delay_ms"`
}

// GenerationConfig configures the proposal generator.
type GenerationConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffBaseMs    int `yaml:"backoff_base_ms" mapstructure:"backoff_base_ms"`
	BackoffCapMs     int `yaml:"backoff_cap_ms" mapstructure:"backoff_cap_ms"`
	MinDescriptionLn int `yaml:"min_description_len" mapstructure:"min_description_len"`
	MinTasks         int `yaml:"min_tasks" mapstructure:"min_tasks"`
	MinDeliverables  int `yaml:"min_deliverables" mapstructure:"min_deliverables"`
}

// ScoringConfig holds the composite score weights and fallbacks. The defaults
// are deliberate product constants; override only for experiments.
type ScoringConfig struct {
	AlignmentWeight     float64 `yaml:"alignment_weight" mapstructure:"alignment_weight"`
	FeasibilityWeight   float64 `yaml:"feasibility_weight" mapstructure:"feasibility_weight"`
	MutualBenefitWeight float64 `yaml:"mutual_benefit_weight" mapstructure:"mutual_benefit_weight"`
	AlignmentFallback   float64 `yaml:"alignment_fallback" mapstructure:"alignment_fallback"`
}

// PricingConfig points at an optional YAML rate table overriding the
// compiled-in defaults.
type PricingConfig struct {
	TablePath string `yaml:"table_path" mapstructure:"table_path"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. file, when non-empty,
// names an explicit config file; otherwise ./config.yaml is tried.
func Load(file string) (*Config, error) {
	v := viper.New()

	// Config file
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("COURSEBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("intel.base_url", "https://api.partnerintel.io/v1")
	v.SetDefault("intel.rps", 2.0)
	v.SetDefault("sourcing.relevance_cutoff", 35)
	v.SetDefault("sourcing.cache_ttl_days", 7)
	v.SetDefault("sourcing.local_store_limit", 25)
	v.SetDefault("sourcing.pacing_delay_ms", 400)
	v.SetDefault("generation.max_attempts", 3)
	v.SetDefault("generation.backoff_base_ms", 1000)
	v.SetDefault("generation.backoff_cap_ms", 8000)
	v.SetDefault("generation.min_description_len", 120)
	v.SetDefault("generation.min_tasks", 3)
	v.SetDefault("generation.min_deliverables", 2)
	v.SetDefault("scoring.alignment_weight", 0.5)
	v.SetDefault("scoring.feasibility_weight", 0.3)
	v.SetDefault("scoring.mutual_benefit_weight", 0.2)
	v.SetDefault("scoring.alignment_fallback", 0.7)

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
