package strategy

import (
	"fmt"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

// ScoringConfig holds every tunable named under signal_evaluation in the
// configuration surface. Zero-value ScoringConfig is invalid; use
// DefaultScoringConfig.
type ScoringConfig struct {
	WeightOrder     float64
	WeightWeight    float64
	WeightLiquidity float64
	WeightTime      float64

	CutoffHigh   float64
	CutoffMedium float64

	RiskHighTimeSeconds int64
	RiskLowTimeSeconds  int64
	RiskTop10RatioHigh  float64
	RiskMorningHour     int
}

// DefaultScoringConfig holds the default weights and cutoffs.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		WeightOrder:         0.30,
		WeightWeight:        0.30,
		WeightLiquidity:     0.20,
		WeightTime:          0.20,
		CutoffHigh:          0.70,
		CutoffMedium:        0.40,
		RiskHighTimeSeconds: 600,
		RiskLowTimeSeconds:  3600,
		RiskTop10RatioHigh:  0.70,
		RiskMorningHour:     10,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DraftInput bundles everything scoring needs beyond the event and fund:
// the ambient seconds-to-close and the stock's top-10 weight ratio across
// its full eligible ETF list (used by the risk heuristic).
type DraftInput struct {
	Event          model.Event
	Fund           model.CandidateETF
	SecondsToClose int64
	Top10Ratio     float64
	SelectionReason string
}

// Draft produces the draft signal scored as a weighted sum of order,
// weight, liquidity and time components, before any SignalFilter runs.
func Draft(in DraftInput, cfg ScoringConfig) model.TradingSignal {
	sWeight := clamp(in.Fund.Weight/0.10, 0, 1)
	sOrder := clamp(in.Event.SealAmount/1e9, 0, 1)
	sLiquidity := clamp(in.Fund.DailyAmount/5e8, 0, 1)
	sTime := clamp(float64(in.SecondsToClose)/(2*3600), 0, 1)

	score := cfg.WeightOrder*sOrder + cfg.WeightWeight*sWeight + cfg.WeightLiquidity*sLiquidity + cfg.WeightTime*sTime

	level := model.ConfidenceLow
	switch {
	case score >= cfg.CutoffHigh:
		level = model.ConfidenceHigh
	case score >= cfg.CutoffMedium:
		level = model.ConfidenceMedium
	}

	risk := riskLevel(in, cfg)

	reason := in.SelectionReason
	if reason == "" {
		reason = fmt.Sprintf("weight %.2f%%", in.Fund.Weight*100)
	} else {
		reason = fmt.Sprintf("%s; weight %.2f%%", reason, in.Fund.Weight*100)
	}

	return model.TradingSignal{
		Timestamp:       in.Event.Timestamp,
		StockCode:       in.Event.StockCode,
		StockName:       in.Event.StockName,
		StockPrice:      in.Event.Price,
		ETFCode:         in.Fund.ETFCode,
		ETFName:         in.Fund.ETFName,
		Weight:          in.Fund.Weight,
		EventType:       in.Event.EventType,
		ConfidenceLevel: level,
		ConfidenceScore: score,
		RiskLevel:       risk,
		Reason:          reason,
		Breakdown: map[string]float64{
			"s_weight":    sWeight,
			"s_order":     sOrder,
			"s_liquidity": sLiquidity,
			"s_time":      sTime,
			"score":       score,
		},
	}
}

func riskLevel(in DraftInput, cfg ScoringConfig) model.RiskLevel {
	if in.SecondsToClose < cfg.RiskHighTimeSeconds || in.Top10Ratio > cfg.RiskTop10RatioHigh || in.Event.OpenCount > 2 {
		return model.RiskHigh
	}
	if in.SecondsToClose > cfg.RiskLowTimeSeconds && in.Event.LimitTime.Hour() < cfg.RiskMorningHour {
		return model.RiskLow
	}
	return model.RiskMedium
}
