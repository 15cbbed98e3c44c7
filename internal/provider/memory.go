package provider

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

// MemoryProvider is a synthetic, in-memory Provider: quotes and holdings
// are seeded by the caller (SetQuote/SetHoldings) rather than fetched from
// a real venue. It backs local runs without a configured real adapter, the
// backtest driver's historical replay, and every test in this repo.
type MemoryProvider struct {
	mu       sync.RWMutex
	quotes   map[string]model.Quote
	holdings map[string][]model.Holding // etf_code -> holdings
	etfNames map[string]string
}

// NewMemoryProvider creates an empty synthetic provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		quotes:   make(map[string]model.Quote),
		holdings: make(map[string][]model.Holding),
		etfNames: make(map[string]string),
	}
}

// SetQuote seeds (or overwrites) the quote for a code.
func (p *MemoryProvider) SetQuote(q model.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[q.Code] = q
}

// SetHoldings seeds the top holdings for one ETF.
func (p *MemoryProvider) SetHoldings(etfCode, etfName string, holdings []model.Holding) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.etfNames[etfCode] = etfName
	p.holdings[etfCode] = holdings
}

func (p *MemoryProvider) GetQuote(code string) (model.Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[code]
	if !ok {
		return model.Quote{}, fmt.Errorf("provider: no quote seeded for %s", code)
	}
	return q, nil
}

func (p *MemoryProvider) GetQuotes(codes []string) (map[string]model.Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]model.Quote, len(codes))
	for _, code := range codes {
		if q, ok := p.quotes[code]; ok {
			out[code] = q
		}
	}
	return out, nil
}

// GetQuoteAt returns the seeded quote for code with its timestamp
// overridden to at; used by the backtest driver to pin each bar.
func (p *MemoryProvider) GetQuoteAt(code string, at time.Time) (model.Quote, error) {
	q, err := p.GetQuote(code)
	if err != nil {
		return model.Quote{}, err
	}
	q.Timestamp = at
	return q, nil
}

func (p *MemoryProvider) TopHoldings(etfCode string, topN int) ([]model.Holding, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	all, ok := p.holdings[etfCode]
	if !ok {
		return nil, "", fmt.Errorf("provider: no holdings seeded for %s", etfCode)
	}

	out := make([]model.Holding, len(all))
	copy(out, all)
	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, p.etfNames[etfCode], nil
}

// ETFUniverse returns every ETF code this provider knows holdings for,
// suitable as the universe argument to mapping.Store.Rebuild.
func (p *MemoryProvider) ETFUniverse() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.holdings))
	for code := range p.holdings {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
