package signals

import (
	"context"
	"sort"
	"sync"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

// MemoryRepository is a mutex-guarded, in-process Repository used when no
// database is configured (local runs, backtests, tests).
type MemoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	signals []model.TradingSignal
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Insert(_ context.Context, signal model.TradingSignal) (model.TradingSignal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	signal.ID = r.nextID
	r.signals = append(r.signals, signal)
	return signal, nil
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (model.TradingSignal, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.signals {
		if s.ID == id {
			return s, true, nil
		}
	}
	return model.TradingSignal{}, false, nil
}

func (r *MemoryRepository) List(_ context.Context, params model.SignalFilterParams) ([]model.TradingSignal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]model.TradingSignal, 0, len(r.signals))
	for _, s := range r.signals {
		if matches(s, params) {
			matched = append(matched, s)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	if params.Offset > 0 {
		if params.Offset >= len(matched) {
			return []model.TradingSignal{}, nil
		}
		matched = matched[params.Offset:]
	}
	if params.Limit > 0 && params.Limit < len(matched) {
		matched = matched[:params.Limit]
	}
	return matched, nil
}

func (r *MemoryRepository) Count(_ context.Context, params model.SignalFilterParams) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.signals {
		if matches(s, params) {
			n++
		}
	}
	return n, nil
}

func matches(s model.TradingSignal, params model.SignalFilterParams) bool {
	if params.Start != nil && s.Timestamp.Before(*params.Start) {
		return false
	}
	if params.End != nil && s.Timestamp.After(*params.End) {
		return false
	}
	if params.StockCode != "" && s.StockCode != params.StockCode {
		return false
	}
	if params.ETFCode != "" && s.ETFCode != params.ETFCode {
		return false
	}
	if params.EventType != "" && string(s.EventType) != params.EventType {
		return false
	}
	return true
}
