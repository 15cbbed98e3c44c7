// Package engine implements the Arbitrage Engine: the scan subroutine that
// turns one security's quote into, at most, one persisted trading signal,
// and the monitor loop that runs scans on a timer during trading hours.
// The scan fan-out is grounded on the same background-loop-plus-bounded-
// concurrency shape used elsewhere in the stack, simplified to one goroutine
// per security gated by a semaphore channel of scan_concurrency slots, since
// scan_concurrency is a static config value here rather than an auto-scaled
// target.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kestrelfin/etf-arbiter/internal/cache"
	"github.com/kestrelfin/etf-arbiter/internal/clock"
	"github.com/kestrelfin/etf-arbiter/internal/mapping"
	"github.com/kestrelfin/etf-arbiter/internal/model"
	"github.com/kestrelfin/etf-arbiter/internal/platform/logger"
	"github.com/kestrelfin/etf-arbiter/internal/platform/metrics"
	"github.com/kestrelfin/etf-arbiter/internal/platform/resilience"
	"github.com/kestrelfin/etf-arbiter/internal/provider"
	"github.com/kestrelfin/etf-arbiter/internal/strategy"
	"github.com/kestrelfin/etf-arbiter/internal/tradingcalendar"
	"go.uber.org/zap"
)

// SignalSink is the narrow slice of the Signal Repository the engine needs:
// persist one signal and hand back its assigned ID/timestamp.
type SignalSink interface {
	Insert(ctx context.Context, signal model.TradingSignal) (model.TradingSignal, error)
}

// Notifier is the narrow slice of the notification seam the engine needs.
type Notifier interface {
	Send(signal model.TradingSignal) error
}

// Config parameterizes one Engine instance. cmd/arbiter fills every field
// from the loaded app config; the backtest driver sets only the scan-time
// thresholds and ScanConcurrency. A ScanConcurrency of 0 or less scans one
// security at a time.
type Config struct {
	MinWeight       float64
	MinETFVolume    float64
	MinOrderAmount  float64
	ScanInterval    time.Duration
	MinTimeToClose  int64
	ScanConcurrency int
	ShutdownGrace   time.Duration
	QuoteTTL        time.Duration
}

// Engine runs the eight-step per-security scan subroutine across a watched
// universe, either on demand (Scan) or on a timer gated by trading hours
// (StartMonitor/StopMonitor).
type Engine struct {
	log      *logger.Logger
	metrics  *metrics.Metrics
	clock    clock.Clock
	calendar tradingcalendar.Calendar

	mappingStore *mapping.Store
	quoteCache   *cache.Cache[string, model.Quote]
	prov         provider.Provider
	call         *resilience.ProviderCall

	detector strategy.EventDetector
	selector strategy.FundSelector
	filters  []strategy.SignalFilter
	scoring  strategy.ScoringConfig

	repo   SignalSink
	notify Notifier

	cfg Config

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
	lastScan  time.Time
	scanCount int64
}

// New builds an Engine. The caller is responsible for having validated cfg
// against the live registries (see strategy.Validate) before constructing
// the detector/selector/filters passed in.
func New(
	log *logger.Logger,
	m *metrics.Metrics,
	clk clock.Clock,
	cal tradingcalendar.Calendar,
	mappingStore *mapping.Store,
	quoteCache *cache.Cache[string, model.Quote],
	prov provider.Provider,
	call *resilience.ProviderCall,
	detector strategy.EventDetector,
	selector strategy.FundSelector,
	filters []strategy.SignalFilter,
	scoring strategy.ScoringConfig,
	repo SignalSink,
	notify Notifier,
	cfg Config,
) *Engine {
	return &Engine{
		log:          log,
		metrics:      m,
		clock:        clk,
		calendar:     cal,
		mappingStore: mappingStore,
		quoteCache:   quoteCache,
		prov:         prov,
		call:         call,
		detector:     detector,
		selector:     selector,
		filters:      filters,
		scoring:      scoring,
		repo:         repo,
		notify:       notify,
		cfg:          cfg,
	}
}

// Scan runs the per-security subroutine over watched, bounded to
// cfg.ScanConcurrency concurrent in-flight securities, and returns the
// aggregate outcome.
func (e *Engine) Scan(ctx context.Context, watched []string) model.ScanResult {
	start := e.clock.Now()

	concurrency := e.cfg.ScanConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	var (
		mu         sync.Mutex
		signals    []model.TradingSignal
		rejections []model.ScanRejection
		events     int
		errCount   int
	)

	var wg sync.WaitGroup
	for _, code := range watched {
		code := code
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			signal, rejection, hadEvent, err := e.scanOne(ctx, code)

			mu.Lock()
			defer mu.Unlock()
			if hadEvent {
				events++
			}
			if err != nil {
				errCount++
				e.log.Warn("scan: security failed", zap.String("code", code), zap.Error(err))
				return
			}
			if signal != nil {
				signals = append(signals, *signal)
			}
			if rejection != nil {
				rejections = append(rejections, *rejection)
			}
		}()
	}
	wg.Wait()

	sort.Slice(signals, func(i, j int) bool { return signals[i].StockCode < signals[j].StockCode })

	result := model.ScanResult{
		CandidatesSeen: len(watched),
		Events:         events,
		SignalsEmitted: signals,
		Rejections:     rejections,
		ElapsedMS:      e.clock.Now().Sub(start).Milliseconds(),
		ErrorCount:     errCount,
	}

	e.mu.Lock()
	e.lastScan = e.clock.Now()
	e.scanCount++
	e.mu.Unlock()

	if e.metrics != nil {
		outcome := "ok"
		if errCount > 0 {
			outcome = "partial_error"
		}
		e.metrics.ScansTotal.WithLabelValues(outcome).Inc()
		e.metrics.ScanDurationSeconds.Observe(float64(result.ElapsedMS) / 1000.0)
	}

	return result
}

// scanOne runs the eight-step subroutine for a single security code.
// hadEvent reports whether step 2 fired at all (used for the scan-level
// events counter even when the candidate is later rejected).
func (e *Engine) scanOne(ctx context.Context, code string) (signal *model.TradingSignal, rejection *model.ScanRejection, hadEvent bool, err error) {
	reject := func(reason string) (*model.TradingSignal, *model.ScanRejection, bool, error) {
		if e.metrics != nil {
			e.metrics.SignalsRejected.WithLabelValues(reason).Inc()
		}
		return nil, &model.ScanRejection{StockCode: code, Reason: reason}, hadEvent, nil
	}

	// Step 1: fetch the quote, through the TTL cache and the provider
	// resilience seam.
	quote, _, ferr := e.quoteCache.GetOrFill(code, func() (model.Quote, error) {
		var q model.Quote
		callErr := e.call.Do(ctx, isTransient, func(ctx context.Context) error {
			var innerErr error
			q, innerErr = e.prov.GetQuote(code)
			return innerErr
		})
		return q, callErr
	}, e.cfg.QuoteTTL)
	if ferr != nil {
		return nil, nil, hadEvent, fmt.Errorf("engine: fetch quote for %s: %w", code, ferr)
	}

	// Step 2: detect an event.
	event, ok := e.detector.Detect(quote)
	if !ok {
		return nil, nil, hadEvent, nil
	}
	hadEvent = true

	// Step 3: sanity-check the event.
	if !e.detector.IsValid(event) {
		return reject("event failed plausibility check")
	}

	// Step 4: minimum seal amount, ahead of the more expensive mapping
	// lookup and ETF quote fan-out.
	if e.cfg.MinOrderAmount > 0 && event.SealAmount < e.cfg.MinOrderAmount {
		return reject("seal amount below minimum order amount")
	}

	// Step 5: resolve candidate ETFs via the mapping store.
	entries := e.mappingStore.GetETFsFor(code)
	if len(entries) == 0 {
		return reject("no ETF mapping for stock")
	}
	top10Ratio := top10WeightRatio(entries)

	// Step 6: enrich each candidate with its own quote (also cached) and
	// apply the min_weight / min_etf_volume thresholds.
	eligible := make([]model.CandidateETF, 0, len(entries))
	for _, entry := range entries {
		if entry.Weight < e.cfg.MinWeight {
			continue
		}
		etfQuote, _, qerr := e.quoteCache.GetOrFill(entry.ETFCode, func() (model.Quote, error) {
			var q model.Quote
			callErr := e.call.Do(ctx, isTransient, func(ctx context.Context) error {
				var innerErr error
				q, innerErr = e.prov.GetQuote(entry.ETFCode)
				return innerErr
			})
			return q, callErr
		}, e.cfg.QuoteTTL)
		if qerr != nil {
			continue
		}
		if etfQuote.Amount < e.cfg.MinETFVolume {
			continue
		}
		candidate := model.CandidateETF{
			ETFCode:     entry.ETFCode,
			ETFName:     entry.ETFName,
			Weight:      entry.Weight,
			Rank:        entry.Rank,
			DailyAmount: etfQuote.Amount,
			Quote:       &etfQuote,
		}
		eligible = append(eligible, candidate)
	}
	if len(eligible) == 0 {
		return reject("no eligible ETF after weight/volume thresholds")
	}

	// Step 7: select one fund.
	fund, selReason, ok := e.selector.Select(eligible, event)
	if !ok {
		return reject("fund selector found no candidate")
	}

	// Step 8: score the draft and run it through the filter chain.
	now := e.clock.Now()
	secondsToClose, marketOpen := e.calendar.SecondsToClose(now)

	draft := strategy.Draft(strategy.DraftInput{
		Event:           event,
		Fund:            fund,
		SecondsToClose:  secondsToClose,
		Top10Ratio:      top10Ratio,
		SelectionReason: selReason,
	}, e.scoring)

	filterCtx := strategy.FilterContext{
		Event:          event,
		Fund:           fund,
		Draft:          draft,
		SecondsToClose: secondsToClose,
		MarketOpen:     marketOpen,
	}
	for _, f := range e.filters {
		if pass, reason := f.Filter(filterCtx); !pass {
			return reject(fmt.Sprintf("%s: %s", f.Name(), reason))
		}
	}

	persisted, perr := e.repo.Insert(ctx, draft)
	if perr != nil {
		return nil, nil, hadEvent, fmt.Errorf("engine: persist signal for %s: %w", code, perr)
	}

	if e.notify != nil {
		if nerr := e.notify.Send(persisted); nerr != nil {
			e.log.Warn("engine: notify failed", zap.String("code", code), zap.Error(nerr))
		}
	}
	if e.metrics != nil {
		e.metrics.SignalsEmitted.WithLabelValues(string(persisted.EventType), string(persisted.ConfidenceLevel)).Inc()
	}

	return &persisted, nil, hadEvent, nil
}

// top10WeightRatio is the sum of the top-10 weights divided by the sum of
// every weight, used by the risk heuristic to flag stocks concentrated in
// a handful of funds.
func top10WeightRatio(entries []model.MappingEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	sorted := make([]model.MappingEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Weight > sorted[j].Weight })

	var total, top10 float64
	for i, e := range sorted {
		total += e.Weight
		if i < 10 {
			top10 += e.Weight
		}
	}
	if total == 0 {
		return 0
	}
	return top10 / total
}

func isTransient(err error) bool { return err != nil }

// StartMonitor begins the background scan loop, ticking every
// cfg.ScanInterval and scanning watched() only while the calendar reports
// the market open. Calling StartMonitor while already running is a no-op
// and reports false.
func (e *Engine) StartMonitor(ctx context.Context, watched func() []string) bool {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return false
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()

	e.wg.Add(1)
	go e.monitorLoop(ctx, watched, stopCh)
	return true
}

func (e *Engine) monitorLoop(ctx context.Context, watched func() []string, stopCh chan struct{}) {
	defer e.wg.Done()

	interval := e.cfg.ScanInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info("monitor loop started", zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !e.calendar.IsTradingTime(e.clock.Now()) {
				continue
			}
			e.Scan(ctx, watched())
		}
	}
}

// StopMonitor signals the monitor loop to exit and waits up to
// cfg.ShutdownGrace for any in-flight scan to finish. Calling StopMonitor
// while not running is a no-op and reports false.
func (e *Engine) StopMonitor() bool {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return false
	}
	close(e.stopCh)
	e.running = false
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	grace := e.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		e.log.Warn("monitor loop did not stop within shutdown grace", zap.Duration("grace", grace))
	}
	return true
}

// IsRunning reports whether the monitor loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// LastScan reports the timestamp and count of the most recently completed
// scan, for the API state/status endpoint.
func (e *Engine) LastScan() (time.Time, int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastScan, e.scanCount
}
