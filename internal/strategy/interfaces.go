// Package strategy implements the three pluggable pipeline stages
// (EventDetector, FundSelector, SignalFilter), the draft-signal scorer,
// and the registries + validator that wire them together by name.
package strategy

import (
	"github.com/kestrelfin/etf-arbiter/internal/model"
)

// EventDetector turns a raw quote into a market event, if any.
type EventDetector interface {
	// Detect returns the event for quote, or ok=false if nothing fired.
	Detect(quote model.Quote) (event model.Event, ok bool)
	// IsValid rejects events whose fields are implausible for their kind
	// (e.g. a change_pct below the minimum for the inferred board).
	IsValid(event model.Event) bool
}

// FundSelector picks one ETF vehicle from the eligible candidates.
type FundSelector interface {
	// Select returns the chosen candidate and a human-readable selection
	// reason, or ok=false when eligible is empty.
	Select(eligible []model.CandidateETF, event model.Event) (chosen model.CandidateETF, reason string, ok bool)
}

// FilterContext carries the draft signal plus the ambient context (clock,
// calendar) a filter needs to judge it.
type FilterContext struct {
	Event          model.Event
	Fund           model.CandidateETF
	Draft          model.TradingSignal
	SecondsToClose int64
	MarketOpen     bool
}

// SignalFilter accepts or rejects a draft signal, short-circuiting the
// chain on the first rejection.
type SignalFilter interface {
	Name() string
	IsRequired() bool
	Filter(ctx FilterContext) (pass bool, reason string)
}
