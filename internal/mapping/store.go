// Package mapping implements the Stock<->ETF mapping store: the inversion
// of every known ETF's top holdings into stock_code -> ordered ETF list,
// rebuilt on demand into a fresh map and swapped in atomically so
// concurrent readers never observe a partially-built snapshot.
package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/kestrelfin/etf-arbiter/internal/model"
	"github.com/kestrelfin/etf-arbiter/internal/provider"
)

// Store holds the current stock->ETF mapping snapshot. Reads are lock-free;
// Rebuild swaps in a new snapshot atomically once fully built.
type Store struct {
	snapshot atomic.Pointer[map[string][]model.MappingEntry]
	topN     int
	epsilon  float64
}

// New creates an empty mapping store. topN is the number of holdings
// fetched per ETF (typically 10); epsilon is the minimum weight kept
// during inversion (default 0, i.e. keep everything and let the strategy
// pipeline's min_weight filter the rest).
func New(topN int, epsilon float64) *Store {
	if topN <= 0 {
		topN = 10
	}
	s := &Store{topN: topN, epsilon: epsilon}
	empty := make(map[string][]model.MappingEntry)
	s.snapshot.Store(&empty)
	return s
}

// GetETFsFor returns the ordered (by weight descending) ETF candidates for
// a stock, or an empty slice if unmapped.
func (s *Store) GetETFsFor(stockCode string) []model.MappingEntry {
	m := *s.snapshot.Load()
	entries := m[stockCode]
	out := make([]model.MappingEntry, len(entries))
	copy(out, entries)
	return out
}

// Has reports whether the store has any ETF candidates for stockCode.
func (s *Store) Has(stockCode string) bool {
	m := *s.snapshot.Load()
	return len(m[stockCode]) > 0
}

// ListStocks returns every stock code currently mapped.
func (s *Store) ListStocks() []string {
	m := *s.snapshot.Load()
	out := make([]string, 0, len(m))
	for code := range m {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Rebuild fetches top holdings for every ETF in universe and inverts them
// into a fresh stock->ETF map, then swaps it in atomically. A failure
// partway through aborts without touching the live snapshot.
func (s *Store) Rebuild(universe []string, holdingsProvider provider.HoldingsProvider) error {
	next := make(map[string][]model.MappingEntry)

	for _, etfCode := range universe {
		holdings, etfName, err := holdingsProvider.TopHoldings(etfCode, s.topN)
		if err != nil {
			return fmt.Errorf("mapping: rebuild fetching holdings for %s: %w", etfCode, err)
		}
		for _, h := range holdings {
			if h.Weight < s.epsilon {
				continue
			}
			next[h.StockCode] = append(next[h.StockCode], model.MappingEntry{
				ETFCode: etfCode,
				ETFName: etfName,
				Weight:  h.Weight,
				Rank:    h.Rank,
			})
		}
	}

	for stockCode, entries := range next {
		next[stockCode] = dedupeHighestWeight(entries)
	}

	s.snapshot.Store(&next)
	return nil
}

// dedupeHighestWeight keeps, per etf_code, only the highest-weight entry,
// then sorts the result by weight descending.
func dedupeHighestWeight(entries []model.MappingEntry) []model.MappingEntry {
	best := make(map[string]model.MappingEntry, len(entries))
	for _, e := range entries {
		if cur, ok := best[e.ETFCode]; !ok || e.Weight > cur.Weight {
			best[e.ETFCode] = e
		}
	}
	out := make([]model.MappingEntry, 0, len(best))
	for _, e := range best {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

// Save persists the current snapshot as a single JSON document, writing to
// a temp file and renaming over the target so readers of the on-disk file
// never see a partial write.
func (s *Store) Save(path string) error {
	m := *s.snapshot.Load()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("mapping: marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mapping-*.tmp")
	if err != nil {
		return fmt.Errorf("mapping: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("mapping: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("mapping: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("mapping: rename temp file: %w", err)
	}
	return nil
}

// Load reads a mapping document from disk and swaps it in atomically. A
// missing file is not an error; the store simply stays empty.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("mapping: read %s: %w", path, err)
	}

	var m map[string][]model.MappingEntry
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("mapping: unmarshal %s: %w", path, err)
	}
	if m == nil {
		m = make(map[string][]model.MappingEntry)
	}
	s.snapshot.Store(&m)
	return nil
}
