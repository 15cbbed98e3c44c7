package mapping

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

type fakeHoldingsProvider struct {
	holdings map[string][]model.Holding
	names    map[string]string
	errs     map[string]error
}

func (f *fakeHoldingsProvider) TopHoldings(etfCode string, topN int) ([]model.Holding, string, error) {
	if err, ok := f.errs[etfCode]; ok {
		return nil, "", err
	}
	return f.holdings[etfCode], f.names[etfCode], nil
}

func TestRebuildInvertsHoldingsIntoStockMap(t *testing.T) {
	prov := &fakeHoldingsProvider{
		holdings: map[string][]model.Holding{
			"510300": {
				{StockCode: "600519", Weight: 0.12, Rank: 1},
				{StockCode: "601318", Weight: 0.08, Rank: 2},
			},
			"159919": {
				{StockCode: "600519", Weight: 0.09, Rank: 3},
			},
		},
		names: map[string]string{"510300": "CSI 300 ETF", "159919": "CSI 300 ETF (dup)"},
	}

	s := New(10, 0)
	require.NoError(t, s.Rebuild([]string{"510300", "159919"}, prov))

	entries := s.GetETFsFor("600519")
	require.Len(t, entries, 2)
	assert.Equal(t, "510300", entries[0].ETFCode, "higher weight entry sorts first")
	assert.Equal(t, "159919", entries[1].ETFCode)

	assert.True(t, s.Has("601318"))
	assert.False(t, s.Has("000001"))
}

func TestRebuildDedupesSameETFKeepingHighestWeight(t *testing.T) {
	prov := &fakeHoldingsProvider{
		holdings: map[string][]model.Holding{
			"510300": {
				{StockCode: "600519", Weight: 0.05, Rank: 5},
				{StockCode: "600519", Weight: 0.11, Rank: 1},
			},
		},
	}

	s := New(10, 0)
	require.NoError(t, s.Rebuild([]string{"510300"}, prov))

	entries := s.GetETFsFor("600519")
	require.Len(t, entries, 1)
	assert.Equal(t, 0.11, entries[0].Weight)
}

func TestRebuildAppliesEpsilonFloor(t *testing.T) {
	prov := &fakeHoldingsProvider{
		holdings: map[string][]model.Holding{
			"510300": {
				{StockCode: "600519", Weight: 0.01},
				{StockCode: "601318", Weight: 0.10},
			},
		},
	}

	s := New(10, 0.05)
	require.NoError(t, s.Rebuild([]string{"510300"}, prov))

	assert.False(t, s.Has("600519"))
	assert.True(t, s.Has("601318"))
}

func TestRebuildFailurePreservesLiveSnapshot(t *testing.T) {
	prov := &fakeHoldingsProvider{
		holdings: map[string][]model.Holding{
			"510300": {{StockCode: "600519", Weight: 0.1}},
		},
	}
	s := New(10, 0)
	require.NoError(t, s.Rebuild([]string{"510300"}, prov))

	failing := &fakeHoldingsProvider{errs: map[string]error{"159919": assertErr}}
	err := s.Rebuild([]string{"159919"}, failing)
	require.Error(t, err)

	assert.True(t, s.Has("600519"), "a failed rebuild must not clobber the live snapshot")
}

var assertErr = &mappingTestError{"provider unavailable"}

type mappingTestError struct{ msg string }

func (e *mappingTestError) Error() string { return e.msg }

func TestSaveLoadRoundTrip(t *testing.T) {
	prov := &fakeHoldingsProvider{
		holdings: map[string][]model.Holding{
			"510300": {{StockCode: "600519", Weight: 0.1, Rank: 1}},
		},
		names: map[string]string{"510300": "CSI 300 ETF"},
	}
	s := New(10, 0)
	require.NoError(t, s.Rebuild([]string{"510300"}, prov))

	path := filepath.Join(t.TempDir(), "mapping.json")
	require.NoError(t, s.Save(path))

	loaded := New(10, 0)
	require.NoError(t, loaded.Load(path))

	entries := loaded.GetETFsFor("600519")
	require.Len(t, entries, 1)
	assert.Equal(t, "CSI 300 ETF", entries[0].ETFName)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	s := New(10, 0)
	err := s.Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Empty(t, s.ListStocks())
}

func TestListStocksSorted(t *testing.T) {
	prov := &fakeHoldingsProvider{
		holdings: map[string][]model.Holding{
			"510300": {
				{StockCode: "601318", Weight: 0.1},
				{StockCode: "600519", Weight: 0.1},
			},
		},
	}
	s := New(10, 0)
	require.NoError(t, s.Rebuild([]string{"510300"}, prov))
	assert.Equal(t, []string{"600519", "601318"}, s.ListStocks())
}
