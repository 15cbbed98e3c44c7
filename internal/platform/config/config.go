// Package config loads the application configuration from YAML plus
// environment overrides via spf13/viper, grounded on the EnhancedConfig
// pattern used elsewhere in the stack. WatchAndReload can watch the file
// via fsnotify and hand each re-parsed config to a callback; validating it
// and keeping the last-good config live are left to that callback.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

// ServerConfig is the HTTP control plane's listen configuration.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig is the Signal Repository's Postgres binding.
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// LoggingConfig controls the zap logger construction.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StrategyConfig holds the scan-time thresholds named in the
// configuration surface, independent of which plugins are selected.
type StrategyConfig struct {
	MinWeight        float64 `mapstructure:"min_weight"`
	MinETFVolume     float64 `mapstructure:"min_etf_volume"`
	MinOrderAmount   float64 `mapstructure:"min_order_amount"`
	ScanIntervalSec  int     `mapstructure:"scan_interval"`
	MinTimeToClose   int64   `mapstructure:"min_time_to_close"`
	ScanConcurrency  int     `mapstructure:"scan_concurrency"`
	ShutdownGraceSec int     `mapstructure:"shutdown_grace"`
}

// TradingHoursConfig names the two session windows.
type TradingHoursConfig struct {
	MorningStart   string `mapstructure:"morning_start"`
	MorningEnd     string `mapstructure:"morning_end"`
	AfternoonStart string `mapstructure:"afternoon_start"`
	AfternoonEnd   string `mapstructure:"afternoon_end"`
}

// SignalEvaluationConfig carries the scoring weights/cutoffs.
type SignalEvaluationConfig struct {
	ConfidenceHighWeight float64 `mapstructure:"confidence_high_weight"`
	ConfidenceLowWeight  float64 `mapstructure:"confidence_low_weight"`
	ConfidenceHighRank   int     `mapstructure:"confidence_high_rank"`
	ConfidenceLowRank    int     `mapstructure:"confidence_low_rank"`
	RiskHighTimeSeconds  int64   `mapstructure:"risk_high_time_seconds"`
	RiskLowTimeSeconds   int64   `mapstructure:"risk_low_time_seconds"`
	RiskTop10RatioHigh   float64 `mapstructure:"risk_top10_ratio_high"`
	RiskMorningHour      int     `mapstructure:"risk_morning_hour"`
	CutoffHigh           float64 `mapstructure:"cutoff_high"`
	CutoffMedium         float64 `mapstructure:"cutoff_medium"`
	WeightOrder          float64 `mapstructure:"weight_order"`
	WeightWeight         float64 `mapstructure:"weight_weight"`
	WeightLiquidity      float64 `mapstructure:"weight_liquidity"`
	WeightTime           float64 `mapstructure:"weight_time"`
}

// CacheConfig parameterizes the TTL cache instances.
type CacheConfig struct {
	QuoteTTLSeconds    int `mapstructure:"quote_ttl_seconds"`
	LimitUpTTLSeconds  int `mapstructure:"limit_up_ttl_seconds"`
	MaxEntries         int `mapstructure:"max_entries"`
}

// ResilienceConfig parameterizes provider-call retry/backoff/circuit
// breaking/rate limiting.
type ResilienceConfig struct {
	ProviderTimeout         time.Duration `mapstructure:"provider_timeout"`
	RetryAttempts           int           `mapstructure:"retry_attempts"`
	RetryBaseDelay          time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay           time.Duration `mapstructure:"retry_max_delay"`
	CircuitBreakerThreshold int64         `mapstructure:"circuit_breaker_threshold"`
	RateLimitPerSecond      float64       `mapstructure:"rate_limit_per_second"`
}

// Config is the full application configuration: the ambient stack plus the
// engine's strategy selection.
type Config struct {
	Server            ServerConfig           `mapstructure:"server"`
	Database          DatabaseConfig         `mapstructure:"database"`
	Logging           LoggingConfig          `mapstructure:"logging"`
	Strategy          StrategyConfig         `mapstructure:"strategy"`
	TradingHours      TradingHoursConfig     `mapstructure:"trading_hours"`
	SignalEvaluation  SignalEvaluationConfig `mapstructure:"signal_evaluation"`
	Cache             CacheConfig            `mapstructure:"cache"`
	Resilience        ResilienceConfig       `mapstructure:"resilience"`
	Engine            model.EngineConfig     `mapstructure:"engine"`
	MappingPath       string                 `mapstructure:"mapping_path"`
	WatchlistPath     string                 `mapstructure:"watchlist_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("strategy.min_weight", 0.05)
	v.SetDefault("strategy.min_etf_volume", 5e7)
	v.SetDefault("strategy.min_order_amount", 1e9)
	v.SetDefault("strategy.scan_interval", 120)
	v.SetDefault("strategy.min_time_to_close", 1800)
	v.SetDefault("strategy.scan_concurrency", 8)
	v.SetDefault("strategy.shutdown_grace", 10)

	v.SetDefault("trading_hours.morning_start", "09:30")
	v.SetDefault("trading_hours.morning_end", "11:30")
	v.SetDefault("trading_hours.afternoon_start", "13:00")
	v.SetDefault("trading_hours.afternoon_end", "15:00")

	v.SetDefault("signal_evaluation.confidence_high_weight", 0.10)
	v.SetDefault("signal_evaluation.confidence_low_weight", 0.05)
	v.SetDefault("signal_evaluation.confidence_high_rank", 3)
	v.SetDefault("signal_evaluation.confidence_low_rank", 10)
	v.SetDefault("signal_evaluation.risk_high_time_seconds", 600)
	v.SetDefault("signal_evaluation.risk_low_time_seconds", 3600)
	v.SetDefault("signal_evaluation.risk_top10_ratio_high", 0.70)
	v.SetDefault("signal_evaluation.risk_morning_hour", 10)
	v.SetDefault("signal_evaluation.cutoff_high", 0.70)
	v.SetDefault("signal_evaluation.cutoff_medium", 0.40)
	v.SetDefault("signal_evaluation.weight_order", 0.30)
	v.SetDefault("signal_evaluation.weight_weight", 0.30)
	v.SetDefault("signal_evaluation.weight_liquidity", 0.20)
	v.SetDefault("signal_evaluation.weight_time", 0.20)

	v.SetDefault("cache.quote_ttl_seconds", 5)
	v.SetDefault("cache.limit_up_ttl_seconds", 30)
	v.SetDefault("cache.max_entries", 10000)

	v.SetDefault("resilience.provider_timeout", "10s")
	v.SetDefault("resilience.retry_attempts", 3)
	v.SetDefault("resilience.retry_base_delay", "200ms")
	v.SetDefault("resilience.retry_max_delay", "2s")
	v.SetDefault("resilience.circuit_breaker_threshold", 5)
	v.SetDefault("resilience.rate_limit_per_second", 20)

	v.SetDefault("engine.event_detector", "limit_up")
	v.SetDefault("engine.fund_selector", "highest_weight")
	v.SetDefault("engine.signal_filters", []string{"time", "liquidity", "confidence", "risk"})

	v.SetDefault("mapping_path", "./data/stock_etf_mapping.json")
	v.SetDefault("watchlist_path", "./data/watchlist.yaml")
}

// Loader owns the viper instance, supporting reload with validation.
type Loader struct {
	v *viper.Viper
}

// NewLoader builds a Loader reading configFile (may be empty, meaning
// search the default paths) with ARBITER_-prefixed environment overrides.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ARBITER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	return &Loader{v: v}
}

// Load reads the config file (if present; a missing file is not an error,
// defaults+env apply) and unmarshals into a Config.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// WatchAndReload watches the config file for changes, calling onReload
// with the newly loaded Config whenever it changes. onReload is expected
// to validate and, on validation failure, keep the previous config live;
// this function only re-parses and re-unmarshals.
func (l *Loader) WatchAndReload(onReload func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := l.v.Unmarshal(&cfg); err != nil {
			return
		}
		onReload(&cfg)
	})
	l.v.WatchConfig()
}

// Sanitized returns a copy of cfg with sensitive fields redacted, suitable
// for the /api/config endpoint.
func Sanitized(cfg *Config) *Config {
	out := *cfg
	if out.Database.DSN != "" {
		out.Database.DSN = "REDACTED"
	}
	return &out
}
