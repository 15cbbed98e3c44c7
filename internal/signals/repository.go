// Package signals implements the Signal Repository: durable storage for
// every persisted TradingSignal, queryable by the control plane and the
// backtest driver. Repository is implemented twice — Postgres via sqlx for
// production, and an in-memory store for local runs and tests — so callers
// never depend on a live database.
package signals

import (
	"context"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

// Repository is the full Signal Repository contract.
type Repository interface {
	Insert(ctx context.Context, signal model.TradingSignal) (model.TradingSignal, error)
	Get(ctx context.Context, id int64) (model.TradingSignal, bool, error)
	List(ctx context.Context, params model.SignalFilterParams) ([]model.TradingSignal, error)
	Count(ctx context.Context, params model.SignalFilterParams) (int, error)
}
