package model

import "time"

// EventType names the concrete MarketEvent variant.
type EventType string

const (
	EventLimitUp   EventType = "limit_up"
	EventBreakout  EventType = "breakout"
	EventMomentum  EventType = "momentum"
)

// Event is the sum type produced by an EventDetector. Only LimitUp fields
// are populated today; Breakout/Momentum are framework-present.
type Event struct {
	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`

	// LimitUp fields.
	StockCode    string    `json:"stock_code"`
	StockName    string    `json:"stock_name"`
	Price        float64   `json:"price"`
	ChangePct    float64   `json:"change_pct"`
	LimitTime    time.Time `json:"limit_time"`
	SealAmount   float64   `json:"seal_amount"`
	OpenCount    int       `json:"open_count"`
	IsFirstLimit bool      `json:"is_first_limit"`
}
