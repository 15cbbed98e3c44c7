package model

// EngineConfig selects and parameterizes one pipeline: which EventDetector,
// FundSelector and ordered SignalFilter chain to run, plus each stage's
// config subtree. It is validated against the live registries before the
// engine (or a backtest) is built from it.
type EngineConfig struct {
	EventDetector  string                    `json:"event_detector" yaml:"event_detector" mapstructure:"event_detector"`
	FundSelector   string                    `json:"fund_selector" yaml:"fund_selector" mapstructure:"fund_selector"`
	SignalFilters  []string                  `json:"signal_filters" yaml:"signal_filters" mapstructure:"signal_filters"`
	EventConfig    map[string]any            `json:"event_config" yaml:"event_config" mapstructure:"event_config"`
	FundConfig     map[string]any            `json:"fund_config" yaml:"fund_config" mapstructure:"fund_config"`
	FilterConfigs  map[string]map[string]any `json:"filter_configs" yaml:"filter_configs" mapstructure:"filter_configs"`
}

// StrategyTemplate is a named, presentational shortcut that resolves to a
// full EngineConfig (plus the min_weight/min_etf_volume thresholds the
// strategy pipeline consults directly).
type StrategyTemplate struct {
	Name          string
	MinWeight     float64
	MinETFVolume  float64
	Evaluator     string
}

// StrategyTemplates holds the built-in conservative/balanced/aggressive presets.
var StrategyTemplates = map[string]StrategyTemplate{
	"conservative": {Name: "conservative", MinWeight: 0.08, MinETFVolume: 8e7, Evaluator: "conservative"},
	"balanced":     {Name: "balanced", MinWeight: 0.05, MinETFVolume: 5e7, Evaluator: "default"},
	"aggressive":   {Name: "aggressive", MinWeight: 0.03, MinETFVolume: 3e7, Evaluator: "aggressive"},
}

// PluginMetadata describes a registered strategy implementation.
type PluginMetadata struct {
	Priority    int    `json:"priority"`
	Description string `json:"description"`
	Version     string `json:"version"`
}
