// Package backtest replays the strategy pipeline over historical quotes,
// one trading date (or intraday bar) at a time, using a pinned clock.Fixed
// so every run is fully deterministic. Jobs run asynchronously; the driver
// tracks each one's lifecycle the way the engine's worker-pool grounded
// constructs elsewhere in the stack track a Job/JobResult pair, simplified
// to a single goroutine per job since backtests are CPU-light replay, not
// fan-out-heavy scans.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrelfin/etf-arbiter/internal/clock"
	arbcache "github.com/kestrelfin/etf-arbiter/internal/cache"
	"github.com/kestrelfin/etf-arbiter/internal/engine"
	"github.com/kestrelfin/etf-arbiter/internal/mapping"
	"github.com/kestrelfin/etf-arbiter/internal/model"
	"github.com/kestrelfin/etf-arbiter/internal/platform/logger"
	"github.com/kestrelfin/etf-arbiter/internal/platform/metrics"
	"github.com/kestrelfin/etf-arbiter/internal/platform/resilience"
	"github.com/kestrelfin/etf-arbiter/internal/provider"
	"github.com/kestrelfin/etf-arbiter/internal/strategy"
	"github.com/kestrelfin/etf-arbiter/internal/tradingcalendar"
)

// Driver owns every in-flight and completed backtest job. The mapping
// store it holds is the engine's live stock->ETF snapshot: this
// implementation does not reconstruct point-in-time holdings history, so
// InterpolationLinear/InterpolationStep are both accepted but currently
// produce identical results (the current snapshot applied to every bar).
// A real point-in-time holdings feed would change only runBar, which builds
// each bar's provider and engine, not any caller.
type Driver struct {
	log          *logger.Logger
	metrics      *metrics.Metrics
	registries   *strategy.Registries
	calendar     tradingcalendar.Calendar
	mappingStore *mapping.Store
	historical   provider.HistoricalProvider
	engineCfg    engine.Config

	mu   sync.Mutex
	jobs map[string]*model.BacktestJob
}

// New builds a Driver. engineCfg supplies the scan-time thresholds
// (min_weight, min_etf_volume, min_order_amount); every job overrides only
// the strategy pipeline selection (event detector / fund selector /
// filters) via its own BacktestConfig.EngineConfig.
func New(
	log *logger.Logger,
	m *metrics.Metrics,
	registries *strategy.Registries,
	cal tradingcalendar.Calendar,
	mappingStore *mapping.Store,
	historical provider.HistoricalProvider,
	engineCfg engine.Config,
) *Driver {
	return &Driver{
		log:          log,
		metrics:      m,
		registries:   registries,
		calendar:     cal,
		mappingStore: mappingStore,
		historical:   historical,
		engineCfg:    engineCfg,
		jobs:         make(map[string]*model.BacktestJob),
	}
}

// Start validates cfg and schedules a job, returning its ID immediately;
// the replay itself runs on a background goroutine.
func (d *Driver) Start(ctx context.Context, cfg model.BacktestConfig) (string, error) {
	if ok, errs := strategy.Validate(cfg.EngineConfig, d.registries); !ok {
		return "", fmt.Errorf("backtest: invalid engine config: %v", errs)
	}

	jobID := uuid.NewString()
	job := &model.BacktestJob{
		JobID:  jobID,
		Status: model.BacktestQueued,
		Config: cfg,
	}

	d.mu.Lock()
	d.jobs[jobID] = job
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.BacktestJobs.WithLabelValues(string(model.BacktestQueued)).Inc()
	}

	go d.run(ctx, jobID, cfg)

	return jobID, nil
}

func (d *Driver) run(ctx context.Context, jobID string, cfg model.BacktestConfig) {
	d.setStatus(jobID, model.BacktestRunning, 0, "")
	started := time.Now()
	d.mu.Lock()
	if job, ok := d.jobs[jobID]; ok {
		job.StartedAt = &started
	}
	d.mu.Unlock()

	detector, selector, filters, err := strategy.BuildPipeline(cfg.EngineConfig, d.registries)
	if err != nil {
		d.fail(jobID, err)
		return
	}

	securities := cfg.Securities
	if len(securities) == 0 {
		securities = d.mappingStore.ListStocks()
	}

	dates := d.calendar.TradingDates(cfg.StartDate, cfg.EndDate)
	if len(dates) == 0 {
		d.fail(jobID, fmt.Errorf("no trading dates in [%s, %s]", cfg.StartDate, cfg.EndDate))
		return
	}

	result := model.BacktestResult{ConfigEcho: cfg}
	perDate := make([]model.PerDateCount, 0, len(dates))

	for i, date := range dates {
		select {
		case <-ctx.Done():
			d.fail(jobID, ctx.Err())
			return
		default:
		}
		if d.isCancelled(jobID) {
			d.setStatus(jobID, model.BacktestCancelled, float64(i)/float64(len(dates)), "cancelled")
			return
		}

		bars := barsForDate(date, cfg.Granularity, d.calendar)
		dayCount := 0

		for _, bar := range bars {
			signals := d.runBar(bar, securities, detector, selector, filters)
			dayCount += len(signals)
			for _, s := range signals {
				s.ID = int64(len(result.Signals) + 1)
				result.Signals = append(result.Signals, s)
				switch s.ConfidenceLevel {
				case model.ConfidenceHigh:
					result.Statistics.HighConfidenceCount++
				case model.ConfidenceMedium:
					result.Statistics.MediumConfidenceCount++
				default:
					result.Statistics.LowConfidenceCount++
				}
			}
		}

		perDate = append(perDate, model.PerDateCount{Date: date.Format("2006-01-02"), Count: dayCount})
		d.setStatus(jobID, model.BacktestRunning, float64(i+1)/float64(len(dates)), "")
	}

	result.Statistics.TotalSignals = len(result.Signals)
	result.Statistics.PerDateCounts = perDate

	finished := time.Now()
	d.mu.Lock()
	job, ok := d.jobs[jobID]
	if !ok || job.Status == model.BacktestCancelled {
		d.mu.Unlock()
		return
	}
	job.Status = model.BacktestCompleted
	job.Progress = 1
	job.FinishedAt = &finished
	job.Result = &result
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.BacktestJobs.WithLabelValues(string(model.BacktestRunning)).Dec()
		d.metrics.BacktestJobs.WithLabelValues(string(model.BacktestCompleted)).Inc()
	}
	d.log.Info("backtest job completed", zap.String("job_id", jobID), zap.Int("signals", len(result.Signals)), zap.Duration("elapsed", finished.Sub(started)))
}

// runBar replays one bar (one instant) across every security, returning
// whatever signals the pipeline emitted, without persisting them anywhere
// — the backtest result IS the store.
func (d *Driver) runBar(bar time.Time, securities []string, detector strategy.EventDetector, selector strategy.FundSelector, filters []strategy.SignalFilter) []model.TradingSignal {
	clk := clock.Fixed{At: bar}
	pinned := &pinnedProvider{hist: d.historical, at: bar}
	quoteCache := arbcache.New[string, model.Quote](0)
	sink := &collectingSink{}
	call := resilience.NewProviderCall("backtest")

	eng := engine.New(
		d.log, nil, clk, d.calendar, d.mappingStore, quoteCache, pinned, call,
		detector, selector, filters, strategy.DefaultScoringConfig(), sink, nil,
		d.engineCfg,
	)

	result := eng.Scan(context.Background(), securities)
	return result.SignalsEmitted
}

// barsForDate enumerates the replay instants for one trading date: one bar
// near session close for daily granularity (the moment a limit-up event
// would be fully visible), or every 5 minutes within both sessions for 5m.
func barsForDate(date time.Time, granularity model.Granularity, cal tradingcalendar.Calendar) []time.Time {
	if granularity == model.Granularity5Min {
		var bars []time.Time
		if std, ok := cal.(*tradingcalendar.Standard); ok {
			bars = append(bars, sessionBars(date, std.Morning)...)
			bars = append(bars, sessionBars(date, std.Afternoon)...)
			return bars
		}
	}
	return []time.Time{time.Date(date.Year(), date.Month(), date.Day(), 14, 55, 0, 0, date.Location())}
}

func sessionBars(date time.Time, session tradingcalendar.Session) []time.Time {
	var bars []time.Time
	for offset := session.Start; offset <= session.End; offset += 5 * time.Minute {
		bars = append(bars, time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()).Add(offset))
	}
	return bars
}

// pinnedProvider adapts a HistoricalProvider into the live provider.Provider
// interface the Engine expects, pinning every quote to a single instant.
type pinnedProvider struct {
	hist provider.HistoricalProvider
	at   time.Time
}

func (p *pinnedProvider) GetQuote(code string) (model.Quote, error) {
	return p.hist.GetQuoteAt(code, p.at)
}

func (p *pinnedProvider) GetQuotes(codes []string) (map[string]model.Quote, error) {
	out := make(map[string]model.Quote, len(codes))
	for _, c := range codes {
		q, err := p.hist.GetQuoteAt(c, p.at)
		if err != nil {
			return nil, err
		}
		out[c] = q
	}
	return out, nil
}

func (p *pinnedProvider) TopHoldings(etfCode string, topN int) ([]model.Holding, string, error) {
	return p.hist.TopHoldings(etfCode, topN)
}

// collectingSink is the backtest's own SignalSink: a no-op, since
// engine.Scan's own ScanResult.SignalsEmitted (sorted by stock code) is
// the authoritative, order-stable source runBar returns from.
type collectingSink struct{}

func (s *collectingSink) Insert(_ context.Context, signal model.TradingSignal) (model.TradingSignal, error) {
	return signal, nil
}

func (d *Driver) setStatus(jobID string, status model.BacktestStatus, progress float64, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[jobID]
	if !ok || (job.Status == model.BacktestCancelled && status != model.BacktestCancelled) {
		return
	}
	job.Status = status
	job.Progress = progress
	job.Message = message
}

func (d *Driver) fail(jobID string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[jobID]
	if !ok {
		return
	}
	job.Status = model.BacktestFailed
	job.Error = err.Error()
	now := time.Now()
	job.FinishedAt = &now
	d.log.Error("backtest job failed", zap.String("job_id", jobID), zap.Error(err))
}

func (d *Driver) isCancelled(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[jobID]
	return ok && job.Status == model.BacktestCancelled
}

// Status returns a snapshot of one job's lifecycle state.
func (d *Driver) Status(jobID string) (model.BacktestJob, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[jobID]
	if !ok {
		return model.BacktestJob{}, false
	}
	return *job, true
}

// Result returns the completed job's result, if any.
func (d *Driver) Result(jobID string) (model.BacktestResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[jobID]
	if !ok || job.Result == nil {
		return model.BacktestResult{}, false
	}
	return *job.Result, true
}

// List returns every job matching params, most recently started first.
func (d *Driver) List(params model.BacktestJobFilterParams) []model.BacktestJob {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]model.BacktestJob, 0, len(d.jobs))
	for _, job := range d.jobs {
		if params.Status != "" && job.Status != params.Status {
			continue
		}
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].StartedAt, out[j].StartedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
	if params.Offset > 0 && params.Offset < len(out) {
		out = out[params.Offset:]
	}
	if params.Limit > 0 && params.Limit < len(out) {
		out = out[:params.Limit]
	}
	return out
}

// Cancel marks a queued or running job cancelled; the run loop observes
// this at the next date boundary and stops.
func (d *Driver) Cancel(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[jobID]
	if !ok || job.Status == model.BacktestCompleted || job.Status == model.BacktestFailed {
		return false
	}
	job.Status = model.BacktestCancelled
	return true
}

// Delete removes a job record entirely.
func (d *Driver) Delete(jobID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.jobs[jobID]; !ok {
		return false
	}
	delete(d.jobs, jobID)
	return true
}
