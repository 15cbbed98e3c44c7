package strategy

import (
	"fmt"

	"github.com/kestrelfin/etf-arbiter/internal/model"
	"github.com/kestrelfin/etf-arbiter/internal/registry"
)

// Registries bundles the three per-kind plugin registries the rest of the
// engine depends on. Tests construct their own instance via NewRegistries
// + RegisterBuiltins so they never touch process-wide state.
type Registries struct {
	EventDetectors *registry.Registry[EventDetector]
	FundSelectors  *registry.Registry[FundSelector]
	SignalFilters  *registry.Registry[SignalFilter]
}

// NewRegistries creates three empty registries.
func NewRegistries() *Registries {
	return &Registries{
		EventDetectors: registry.New[EventDetector](),
		FundSelectors:  registry.New[FundSelector](),
		SignalFilters:  registry.New[SignalFilter](),
	}
}

// RegisterBuiltins wires every canonical strategy implementation into r.
// Called once at process startup before the HTTP server binds, and again
// (on a fresh Registries) by any test that needs the built-ins.
func RegisterBuiltins(r *Registries) error {
	if err := r.EventDetectors.Register("limit_up", NewLimitUpDetector, model.PluginMetadata{
		Priority: 100, Version: "1.0.0", Description: "A-share limit-up detector",
	}); err != nil {
		return err
	}

	if err := r.FundSelectors.Register("highest_weight", NewHighestWeightSelector, model.PluginMetadata{
		Priority: 100, Version: "1.0.0", Description: "selects the eligible ETF with maximal weight",
	}); err != nil {
		return err
	}
	if err := r.FundSelectors.Register("best_liquidity", NewBestLiquiditySelector, model.PluginMetadata{
		Priority: 50, Version: "1.0.0", Description: "selects the eligible ETF with maximal daily turnover",
	}); err != nil {
		return err
	}

	filters := []struct {
		name     string
		factory  registry.Factory[SignalFilter]
		priority int
		desc     string
	}{
		{"time", NewTimeFilter, 100, "rejects drafts too close to session close"},
		{"liquidity", NewLiquidityFilter, 90, "rejects drafts on thinly traded funds"},
		{"confidence", NewConfidenceFilter, 80, "rejects drafts below a minimum confidence score"},
		{"risk", NewRiskFilter, 70, "rejects high-risk drafts"},
	}
	for _, f := range filters {
		if err := r.SignalFilters.Register(f.name, f.factory, model.PluginMetadata{
			Priority: f.priority, Version: "1.0.0", Description: f.desc,
		}); err != nil {
			return err
		}
	}
	return nil
}

// ValidationError is one unresolved-name or malformed-chain complaint.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

// Validate checks an EngineConfig against the live registries, per §4.H:
// unknown names, duplicate filters, and an empty filter chain are all
// reported (not just the first). ok is true iff errs is empty.
func Validate(cfg model.EngineConfig, r *Registries) (ok bool, errs []ValidationError) {
	if !r.EventDetectors.Has(cfg.EventDetector) {
		errs = append(errs, ValidationError{"event_detector", fmt.Sprintf("unknown event detector %q", cfg.EventDetector)})
	}
	if !r.FundSelectors.Has(cfg.FundSelector) {
		errs = append(errs, ValidationError{"fund_selector", fmt.Sprintf("unknown fund selector %q", cfg.FundSelector)})
	}

	if len(cfg.SignalFilters) == 0 {
		errs = append(errs, ValidationError{"signal_filters", "empty filter chain would accept every event unconditionally"})
	}

	seen := make(map[string]bool, len(cfg.SignalFilters))
	for _, name := range cfg.SignalFilters {
		if seen[name] {
			errs = append(errs, ValidationError{"signal_filters", fmt.Sprintf("filter %q appears twice", name)})
			continue
		}
		seen[name] = true
		if !r.SignalFilters.Has(name) {
			errs = append(errs, ValidationError{"signal_filters", fmt.Sprintf("unknown signal filter %q", name)})
		}
	}

	if fc, ok := cfg.FilterConfigs["time"]; ok {
		if v, ok := fc["min_time_to_close"]; ok {
			if n, ok := toFloat(v); ok && n < 0 {
				errs = append(errs, ValidationError{"filter_configs.time.min_time_to_close", "must be >= 0"})
			}
		}
	}

	return len(errs) == 0, errs
}

// BuildPipeline constructs the three stage instances named by cfg. Callers
// must call Validate first; Build still returns an error per-stage if a
// name somehow slips through (e.g. a registry shrank between validate and
// build in a long-lived process).
func BuildPipeline(cfg model.EngineConfig, r *Registries) (EventDetector, FundSelector, []SignalFilter, error) {
	detector, err := r.EventDetectors.Build(cfg.EventDetector, cfg.EventConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building event detector %q: %w", cfg.EventDetector, err)
	}

	selector, err := r.FundSelectors.Build(cfg.FundSelector, cfg.FundConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("building fund selector %q: %w", cfg.FundSelector, err)
	}

	filters := make([]SignalFilter, 0, len(cfg.SignalFilters))
	for _, name := range cfg.SignalFilters {
		filterCfg := cfg.FilterConfigs[name]
		filter, err := r.SignalFilters.Build(name, filterCfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("building signal filter %q: %w", name, err)
		}
		filters = append(filters, filter)
	}

	return detector, selector, filters, nil
}
