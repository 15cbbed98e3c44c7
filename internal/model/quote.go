// Package model holds the value and entity types shared across the engine:
// quotes, holdings, mappings, events, candidates, signals, backtests and
// the engine's own configuration shape.
package model

import "time"

// Quote is an immutable market snapshot for a single security, produced by
// the provider boundary (live or historical).
type Quote struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	ChangePct   float64   `json:"change_pct"`
	Volume      float64   `json:"volume"`
	Amount      float64   `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
	IsLimitUp   bool      `json:"is_limit_up"`
	IsLimitDown bool      `json:"is_limit_down"`
	PrevClose   float64   `json:"prev_close"`
}

// CandidateETF is an ETF eligible to carry a signal for a stock, enriched
// with its latest quote when available.
type CandidateETF struct {
	ETFCode     string  `json:"etf_code"`
	ETFName     string  `json:"etf_name"`
	Weight      float64 `json:"weight"`
	Rank        int     `json:"rank"`
	DailyAmount float64 `json:"daily_amount"`
	Quote       *Quote  `json:"quote,omitempty"`
}
