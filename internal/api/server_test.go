package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelfin/etf-arbiter/internal/backtest"
	"github.com/kestrelfin/etf-arbiter/internal/cache"
	"github.com/kestrelfin/etf-arbiter/internal/clock"
	"github.com/kestrelfin/etf-arbiter/internal/coordinator"
	"github.com/kestrelfin/etf-arbiter/internal/engine"
	"github.com/kestrelfin/etf-arbiter/internal/mapping"
	"github.com/kestrelfin/etf-arbiter/internal/model"
	appconfig "github.com/kestrelfin/etf-arbiter/internal/platform/config"
	"github.com/kestrelfin/etf-arbiter/internal/platform/logger"
	"github.com/kestrelfin/etf-arbiter/internal/platform/metrics"
	"github.com/kestrelfin/etf-arbiter/internal/platform/resilience"
	"github.com/kestrelfin/etf-arbiter/internal/provider"
	"github.com/kestrelfin/etf-arbiter/internal/signals"
	"github.com/kestrelfin/etf-arbiter/internal/strategy"
	"github.com/kestrelfin/etf-arbiter/internal/tradingcalendar"
	"github.com/kestrelfin/etf-arbiter/internal/watchlist"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	srv   *Server
	prov  *provider.MemoryProvider
	store *mapping.Store
	watch *watchlist.Store
	repo  *signals.MemoryRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := logger.New("error", "console")
	m := metrics.New()

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

	detector, err := strategy.NewLimitUpDetector(nil)
	require.NoError(t, err)
	selector, err := strategy.NewHighestWeightSelector(nil)
	require.NoError(t, err)

	repo := signals.NewMemoryRepository()

	eng := engine.New(
		log, m, clock.Real{}, tradingcalendar.NewStandard(), store,
		cache.New[string, model.Quote](100), prov, resilience.NewProviderCall("test"),
		detector, selector, nil, strategy.DefaultScoringConfig(), repo, nil,
		engine.Config{MinWeight: 0.01, MinETFVolume: 1, ScanConcurrency: 4, QuoteTTL: time.Minute},
	)

	driver := backtest.New(log, m, registries, tradingcalendar.NewStandard(), store, prov, engine.Config{
		MinWeight: 0.01, MinETFVolume: 1, ScanConcurrency: 4, QuoteTTL: time.Minute,
	})

	watchPath := filepath.Join(t.TempDir(), "watchlist.yaml")
	watch := watchlist.New(watchPath)

	state := coordinator.New(clock.Real{})

	cfg := &appconfig.Config{}
	cfg.Server.Addr = ":8080"

	srv := New(log, cfg, m, eng, driver, state, store, watch, repo, registries, prov)
	return &testServer{srv: srv, prov: prov, store: store, watch: watch, repo: repo}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleListStocksReturnsWatchlistQuotes(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.watch.Add(model.WatchEntry{Code: "600519", Name: "Kweichow Moutai"}))

	w := ts.do(t, http.MethodGet, "/api/stocks", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var quotes []model.Quote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quotes))
	require.Len(t, quotes, 1)
	assert.Equal(t, "600519", quotes[0].Code)
}

func TestHandleGetStockFound(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/stocks/600519", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var quote model.Quote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.Equal(t, "600519", quote.Code)
}

func TestHandleGetStockNotFound(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/stocks/000001", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRelatedETFs(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/stocks/600519/related-etfs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "600519", body["stock_code"])
}

func TestHandleManualScanRejectsEmptyWatchlist(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/monitor/scan", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleManualScanEmitsSignal(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.watch.Add(model.WatchEntry{Code: "600519", Name: "Kweichow Moutai"}))

	w := ts.do(t, http.MethodPost, "/api/monitor/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result model.ScanResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.SignalsEmitted, 1)
	assert.Equal(t, "600519", result.SignalsEmitted[0].StockCode)
}

func TestHandleMonitorStartStop(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/monitor/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, ts.srv.engine.IsRunning())
	var started map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, "running", started["status"])

	w = ts.do(t, http.MethodPost, "/api/monitor/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, ts.srv.engine.IsRunning())
	var stopped map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stopped))
	assert.Equal(t, "stopped", stopped["status"])
}

func TestHandleMonitorStartTwiceConflicts(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/monitor/start", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/monitor/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleMonitorStopWithoutRunningConflicts(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/monitor/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleWatchlistAddListDelete(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/watchlist/add", model.WatchEntry{Code: "600519", Name: "Kweichow Moutai"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodPost, "/api/watchlist/add", model.WatchEntry{Code: "600519", Name: "Kweichow Moutai"})
	require.Equal(t, http.StatusOK, w.Code)
	var added map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &added))
	assert.Equal(t, "already_exists", added["status"])

	w = ts.do(t, http.MethodGet, "/api/watchlist", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string][]model.WatchEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body["entries"], 1)

	w = ts.do(t, http.MethodDelete, "/api/watchlist/600519", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/watchlist/600519", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleWatchlistAddRejectsMissingCode(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/watchlist/add", model.WatchEntry{Name: "no code"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleWatchlistAddRejectsInvalidCode(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/watchlist/add", model.WatchEntry{Code: "abc123", Name: "bad code"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errBody, ok := body["error"]
	require.True(t, ok, "error envelope must nest kind/message under \"error\"")
	assert.Equal(t, "validation", errBody["kind"])
	assert.NotEmpty(t, errBody["message"])
}

func TestHandleListSignalsAndGetSignal(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.repo.Insert(context.Background(), model.TradingSignal{StockCode: "600519", ETFCode: "510300"})
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/api/signals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listBody map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listBody))
	assert.Equal(t, float64(1), listBody["total"])

	w = ts.do(t, http.MethodGet, "/api/signals/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/signals/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/signals/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/signals?today_only=true", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/signals?start=2026-03-05T00:00:00Z&end=2026-03-01T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/signals?start=not-a-timestamp", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePluginsAndStrategyTemplates(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/plugins", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/strategies", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleStrategyValidate(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/strategies/validate?event_detector=limit_up&fund_selector=highest_weight&signal_filters=time", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
}

func TestHandleStrategyValidateReportsUnknownNames(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/strategies/validate?event_detector=does_not_exist", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
	assert.NotEmpty(t, body["errors"])
}

func TestHandleBacktestLifecycle(t *testing.T) {
	ts := newTestServer(t)
	cfg := model.BacktestConfig{
		StartDate:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
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

	w := ts.do(t, http.MethodPost, "/api/backtest/start", cfg)
	require.Equal(t, http.StatusAccepted, w.Code)
	var started map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	jobID := started["job_id"]
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		w := ts.do(t, http.MethodGet, "/api/backtest/"+jobID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		var job model.BacktestJob
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
		return job.Status == model.BacktestCompleted
	}, 2*time.Second, 5*time.Millisecond)

	w = ts.do(t, http.MethodGet, "/api/backtest/"+jobID+"/result", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/backtest/"+jobID+"/signals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.Bytes()
	require.True(t, bytes.HasPrefix(body, []byte{0xEF, 0xBB, 0xBF}), "CSV export must lead with a UTF-8 BOM")
	csvText := string(body[3:])
	assert.Contains(t, csvText, `"timestamp","stock_code","stock_name","stock_price","etf_code","etf_name","etf_weight","confidence","risk_level","reason"`)

	w = ts.do(t, http.MethodGet, "/api/backtest/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/backtest/"+jobID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/api/backtest/"+jobID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleBacktestResultConflictsBeforeCompletion(t *testing.T) {
	ts := newTestServer(t)
	// A long 5-minute-granularity range keeps the job running for long
	// enough, after Start returns, to reliably observe it mid-flight.
	cfg := model.BacktestConfig{
		StartDate:   time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		Granularity: model.Granularity5Min,
		EngineConfig: model.EngineConfig{
			EventDetector: "limit_up",
			FundSelector:  "highest_weight",
			SignalFilters: []string{"time"},
			FilterConfigs: map[string]map[string]any{
				"time": {"min_time_to_close": 0},
			},
		},
	}

	w := ts.do(t, http.MethodPost, "/api/backtest/start", cfg)
	require.Equal(t, http.StatusAccepted, w.Code)
	var started map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	jobID := started["job_id"]
	require.NotEmpty(t, jobID)

	w = ts.do(t, http.MethodGet, "/api/backtest/"+jobID+"/result", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "result before completion must be 409, not a bare 404")

	w = ts.do(t, http.MethodDelete, "/api/backtest/"+jobID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandleBacktestResultNotFoundForUnknownJob(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/api/backtest/does-not-exist/result", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStatusAndConfig(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleMappingRebuild(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/mapping/rebuild", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["stocks_mapped"])
}
