package config

import (
	"time"

	"github.com/spf13/viper"
)

// EngineConfig selects the default engine binary and its UCI options.
type EngineConfig struct {
	Path    string `mapstructure:"path"`
	HashMB  int    `mapstructure:"hash_mb"`
	Threads int    `mapstructure:"threads"`
}

// AnalysisConfig holds the default search parameters and wall-clock budget.
type AnalysisConfig struct {
	Depth         int `mapstructure:"depth"`
	Lines         int `mapstructure:"lines"`
	BudgetSeconds int `mapstructure:"budget_seconds"`
}

// Budget returns the analysis budget as a duration.
func (a AnalysisConfig) Budget() time.Duration {
	return time.Duration(a.BudgetSeconds) * time.Second
}

// PoolConfig sizes the engine session pool.
type PoolConfig struct {
	Size int `mapstructure:"size"`
}

// CacheConfig sizes the analysis result cache.
type CacheConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// RegistryConfig locates the engine profile catalog. An empty path means
// the per-user default location.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// TelemetryConfig locates the JSONL event log. An empty path disables
// telemetry.
type TelemetryConfig struct {
	Path string `mapstructure:"path"`
}

// SampleConfig holds the PGN sampling filters.
type SampleConfig struct {
	MinElo         int `mapstructure:"min_elo"`
	MinBaseSeconds int `mapstructure:"min_base_seconds"`
	SkipPlies      int `mapstructure:"skip_plies"`
	MinPieces      int `mapstructure:"min_pieces"`
}

// Config holds all runtime configuration for a kibitz invocation.
// Values are populated from .kibitz.yaml, KIBITZ_* env vars, and CLI flags.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Sample    SampleConfig    `mapstructure:"sample"`
	Verbose   bool            `mapstructure:"verbose"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() Config {
	viper.SetDefault("engine.path", "stockfish")
	viper.SetDefault("engine.hash_mb", 0)
	viper.SetDefault("engine.threads", 0)
	viper.SetDefault("analysis.depth", 12)
	viper.SetDefault("analysis.lines", 3)
	viper.SetDefault("analysis.budget_seconds", 60)
	viper.SetDefault("pool.size", 2)
	viper.SetDefault("cache.capacity", 256)
	viper.SetDefault("registry.path", "")
	viper.SetDefault("telemetry.path", "")
	viper.SetDefault("sample.min_elo", 2400)
	viper.SetDefault("sample.min_base_seconds", 600)
	viper.SetDefault("sample.skip_plies", 10)
	viper.SetDefault("sample.min_pieces", 10)
	viper.SetDefault("verbose", false)

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}
