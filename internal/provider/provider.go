// Package provider defines the external market-data seam: the engine and
// backtest driver depend only on these interfaces. No adapter to a real
// exchange feed ships here; this package instead ships an in-memory
// implementation (see memory.go) used for local runs, the control
// plane's default wiring, and tests.
package provider

import (
	"time"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

// QuoteProvider fetches live or historical quotes.
type QuoteProvider interface {
	GetQuote(code string) (model.Quote, error)
	GetQuotes(codes []string) (map[string]model.Quote, error)
}

// HoldingsProvider fetches an ETF's top-N holdings.
type HoldingsProvider interface {
	TopHoldings(etfCode string, topN int) ([]model.Holding, string, error)
}

// Provider is the full boundary: quotes plus holdings.
type Provider interface {
	QuoteProvider
	HoldingsProvider
}

// HistoricalProvider additionally serves a Quote pinned to a specific
// point in time, used by the backtest driver to synthesize bars.
type HistoricalProvider interface {
	Provider
	GetQuoteAt(code string, at time.Time) (model.Quote, error)
}
