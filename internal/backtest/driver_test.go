package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelfin/etf-arbiter/internal/engine"
	"github.com/kestrelfin/etf-arbiter/internal/mapping"
	"github.com/kestrelfin/etf-arbiter/internal/model"
	"github.com/kestrelfin/etf-arbiter/internal/platform/logger"
	"github.com/kestrelfin/etf-arbiter/internal/provider"
	"github.com/kestrelfin/etf-arbiter/internal/strategy"
	"github.com/kestrelfin/etf-arbiter/internal/tradingcalendar"
)

func newTestDriver(t *testing.T) (*Driver, *provider.MemoryProvider) {
	t.Helper()

	prov := provider.NewMemoryProvider()
	prov.SetHoldings("510300", "CSI 300 ETF", []model.Holding{
		{StockCode: "600519", ETFCode: "510300", ETFName: "CSI 300 ETF", Weight: 0.08, Rank: 1},
	})
	prov.SetQuote(model.Quote{
		Code: "600519", Name: "Kweichow Moutai",
		Price: 110, PrevClose: 100, ChangePct: 0.10, Amount: 2_000_000, IsLimitUp: true,
	})
	prov.SetQuote(model.Quote{Code: "510300", Price: 4.0, Amount: 50_000_000})

	store := mapping.New(10, 0)
	require.NoError(t, store.Rebuild(prov.ETFUniverse(), prov))

	registries := strategy.NewRegistries()
	require.NoError(t, strategy.RegisterBuiltins(registries))

	engineCfg := engine.Config{
		MinWeight:       0.01,
		MinETFVolume:    1,
		MinOrderAmount:  0,
		ScanConcurrency: 4,
		QuoteTTL:        time.Minute,
	}

	driver := New(logger.New("error", "console"), nil, registries, tradingcalendar.NewStandard(), store, prov, engineCfg)
	return driver, prov
}

func validBacktestConfig(day time.Time) model.BacktestConfig {
	return model.BacktestConfig{
		StartDate:   day,
		EndDate:     day,
		Granularity: model.GranularityDaily,
		EngineConfig: model.EngineConfig{
			EventDetector: "limit_up",
			FundSelector:  "highest_weight",
			SignalFilters: []string{"time"},
			FilterConfigs: map[string]map[string]any{
				"time": {"min_time_to_close": 0},
			},
		},
	}
}

func TestStartRejectsInvalidEngineConfig(t *testing.T) {
	driver, _ := newTestDriver(t)
	cfg := validBacktestConfig(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	cfg.EngineConfig.EventDetector = "does_not_exist"

	_, err := driver.Start(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRunCompletesAndProducesSignals(t *testing.T) {
	driver, _ := newTestDriver(t)
	cfg := validBacktestConfig(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))

	jobID, err := driver.Start(context.Background(), cfg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, ok := driver.Status(jobID)
		return ok && (job.Status == model.BacktestCompleted || job.Status == model.BacktestFailed)
	}, 2*time.Second, 5*time.Millisecond)

	job, ok := driver.Status(jobID)
	require.True(t, ok)
	require.Equal(t, model.BacktestCompleted, job.Status, job.Error)
	assert.Equal(t, float64(1), job.Progress)

	result, ok := driver.Result(jobID)
	require.True(t, ok)
	require.Len(t, result.Signals, 1)
	assert.Equal(t, "600519", result.Signals[0].StockCode)
	assert.Equal(t, 1, result.Statistics.TotalSignals)
	assert.Len(t, result.Statistics.PerDateCounts, 1)
}

// newMultiSecurityTestDriver sets up two limit-up stocks sharing an ETF so
// a single bar emits more than one signal, exercising the cross-goroutine
// ordering guarantee runBar relies on.
func newMultiSecurityTestDriver(t *testing.T) *Driver {
	t.Helper()

	prov := provider.NewMemoryProvider()
	prov.SetHoldings("510300", "CSI 300 ETF", []model.Holding{
		{StockCode: "600519", ETFCode: "510300", ETFName: "CSI 300 ETF", Weight: 0.08, Rank: 1},
		{StockCode: "000001", ETFCode: "510300", ETFName: "CSI 300 ETF", Weight: 0.06, Rank: 2},
	})
	prov.SetQuote(model.Quote{
		Code: "600519", Name: "Kweichow Moutai",
		Price: 110, PrevClose: 100, ChangePct: 0.10, Amount: 2_000_000, IsLimitUp: true,
	})
	prov.SetQuote(model.Quote{
		Code: "000001", Name: "Ping An Bank",
		Price: 11, PrevClose: 10, ChangePct: 0.10, Amount: 2_000_000, IsLimitUp: true,
	})
	prov.SetQuote(model.Quote{Code: "510300", Price: 4.0, Amount: 50_000_000})

	store := mapping.New(10, 0)
	require.NoError(t, store.Rebuild(prov.ETFUniverse(), prov))

	registries := strategy.NewRegistries()
	require.NoError(t, strategy.RegisterBuiltins(registries))

	engineCfg := engine.Config{
		MinWeight:       0.01,
		MinETFVolume:    1,
		MinOrderAmount:  0,
		ScanConcurrency: 8,
		QuoteTTL:        time.Minute,
	}

	return New(logger.New("error", "console"), nil, registries, tradingcalendar.NewStandard(), store, prov, engineCfg)
}

// TestRunOrdersSignalsByStockCodeRegardlessOfConcurrency guards against the
// per-security scan workers racing signals into result order: output must
// be sorted by stock code, and repeated runs over the same snapshots must
// produce identical signal order and ids.
func TestRunOrdersSignalsByStockCodeRegardlessOfConcurrency(t *testing.T) {
	cfg := validBacktestConfig(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))

	var firstRun []model.TradingSignal
	for attempt := 0; attempt < 5; attempt++ {
		driver := newMultiSecurityTestDriver(t)
		jobID, err := driver.Start(context.Background(), cfg)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			job, ok := driver.Status(jobID)
			return ok && job.Status == model.BacktestCompleted
		}, 2*time.Second, 5*time.Millisecond)

		result, ok := driver.Result(jobID)
		require.True(t, ok)
		require.Len(t, result.Signals, 2)

		assert.Equal(t, "000001", result.Signals[0].StockCode)
		assert.Equal(t, "600519", result.Signals[1].StockCode)
		assert.Equal(t, int64(1), result.Signals[0].ID)
		assert.Equal(t, int64(2), result.Signals[1].ID)

		if attempt == 0 {
			firstRun = result.Signals
		} else {
			assert.Equal(t, firstRun, result.Signals)
		}
	}
}

func TestRunFailsForEmptyDateRange(t *testing.T) {
	driver, _ := newTestDriver(t)
	cfg := validBacktestConfig(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	// A Saturday-only range has no trading dates.
	cfg.StartDate = time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	cfg.EndDate = time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)

	jobID, err := driver.Start(context.Background(), cfg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, ok := driver.Status(jobID)
		return ok && job.Status == model.BacktestFailed
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStatusReturnsFalseForUnknownJob(t *testing.T) {
	driver, _ := newTestDriver(t)
	_, ok := driver.Status("does-not-exist")
	assert.False(t, ok)
}

func TestResultReturnsFalseBeforeCompletion(t *testing.T) {
	driver, _ := newTestDriver(t)
	_, ok := driver.Result("does-not-exist")
	assert.False(t, ok)
}

func TestCancelRejectsCompletedJob(t *testing.T) {
	driver, _ := newTestDriver(t)
	cfg := validBacktestConfig(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	jobID, err := driver.Start(context.Background(), cfg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, ok := driver.Status(jobID)
		return ok && job.Status == model.BacktestCompleted
	}, 2*time.Second, 5*time.Millisecond)

	assert.False(t, driver.Cancel(jobID))
}

func TestCancelRejectsUnknownJob(t *testing.T) {
	driver, _ := newTestDriver(t)
	assert.False(t, driver.Cancel("does-not-exist"))
}

func TestDeleteRemovesJob(t *testing.T) {
	driver, _ := newTestDriver(t)
	cfg := validBacktestConfig(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	jobID, err := driver.Start(context.Background(), cfg)
	require.NoError(t, err)

	require.True(t, driver.Delete(jobID))
	_, ok := driver.Status(jobID)
	assert.False(t, ok)
	assert.False(t, driver.Delete(jobID))
}

func TestListFiltersByStatus(t *testing.T) {
	driver, _ := newTestDriver(t)
	cfg := validBacktestConfig(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	jobID, err := driver.Start(context.Background(), cfg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, ok := driver.Status(jobID)
		return ok && job.Status == model.BacktestCompleted
	}, 2*time.Second, 5*time.Millisecond)

	completed := driver.List(model.BacktestJobFilterParams{Status: model.BacktestCompleted})
	require.Len(t, completed, 1)
	assert.Equal(t, jobID, completed[0].JobID)

	none := driver.List(model.BacktestJobFilterParams{Status: model.BacktestQueued})
	assert.Empty(t, none)
}
