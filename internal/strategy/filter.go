package strategy

import "fmt"

// TimeFilter rejects a draft when too little time remains in the session.
type TimeFilter struct {
	MinTimeToClose int64
	Required       bool
}

func NewTimeFilter(config map[string]any) (SignalFilter, error) {
	f := &TimeFilter{MinTimeToClose: 1800, Required: true}
	if v, ok := config["min_time_to_close"]; ok {
		if n, ok := toFloat(v); ok {
			f.MinTimeToClose = int64(n)
		}
	}
	if v, ok := config["required"]; ok {
		if b, ok := v.(bool); ok {
			f.Required = b
		}
	}
	return f, nil
}

func (f *TimeFilter) Name() string     { return "time" }
func (f *TimeFilter) IsRequired() bool { return f.Required }

func (f *TimeFilter) Filter(ctx FilterContext) (bool, string) {
	if ctx.MarketOpen && ctx.SecondsToClose < f.MinTimeToClose {
		return false, fmt.Sprintf("time to close %ds < %ds", ctx.SecondsToClose, f.MinTimeToClose)
	}
	return true, "time ok"
}

// LiquidityFilter rejects when the chosen fund's turnover is too thin.
type LiquidityFilter struct {
	MinDailyAmount float64
	Required       bool
}

func NewLiquidityFilter(config map[string]any) (SignalFilter, error) {
	f := &LiquidityFilter{MinDailyAmount: 5e7, Required: true}
	if v, ok := config["min_daily_amount"]; ok {
		if n, ok := toFloat(v); ok {
			f.MinDailyAmount = n
		}
	}
	if v, ok := config["required"]; ok {
		if b, ok := v.(bool); ok {
			f.Required = b
		}
	}
	return f, nil
}

func (f *LiquidityFilter) Name() string     { return "liquidity" }
func (f *LiquidityFilter) IsRequired() bool { return f.Required }

func (f *LiquidityFilter) Filter(ctx FilterContext) (bool, string) {
	if ctx.Fund.DailyAmount < f.MinDailyAmount {
		return false, fmt.Sprintf("fund daily amount %.0f < %.0f", ctx.Fund.DailyAmount, f.MinDailyAmount)
	}
	return true, "liquidity ok"
}

// ConfidenceFilter rejects low-confidence drafts.
type ConfidenceFilter struct {
	MinConfidence float64
	Required      bool
}

func NewConfidenceFilter(config map[string]any) (SignalFilter, error) {
	f := &ConfidenceFilter{MinConfidence: 0, Required: false}
	if v, ok := config["min_confidence"]; ok {
		if n, ok := toFloat(v); ok {
			f.MinConfidence = n
		}
	}
	if v, ok := config["required"]; ok {
		if b, ok := v.(bool); ok {
			f.Required = b
		}
	}
	return f, nil
}

func (f *ConfidenceFilter) Name() string     { return "confidence" }
func (f *ConfidenceFilter) IsRequired() bool { return f.Required }

func (f *ConfidenceFilter) Filter(ctx FilterContext) (bool, string) {
	if ctx.Draft.ConfidenceScore < f.MinConfidence {
		return false, fmt.Sprintf("confidence score %.2f < %.2f", ctx.Draft.ConfidenceScore, f.MinConfidence)
	}
	return true, "confidence ok"
}

// RiskFilter rejects drafts flagged high risk.
type RiskFilter struct {
	Required bool
}

func NewRiskFilter(config map[string]any) (SignalFilter, error) {
	f := &RiskFilter{Required: true}
	if v, ok := config["required"]; ok {
		if b, ok := v.(bool); ok {
			f.Required = b
		}
	}
	return f, nil
}

func (f *RiskFilter) Name() string     { return "risk" }
func (f *RiskFilter) IsRequired() bool { return f.Required }

func (f *RiskFilter) Filter(ctx FilterContext) (bool, string) {
	if string(ctx.Draft.RiskLevel) == "high" {
		return false, "risk level high"
	}
	return true, "risk ok"
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
