package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelfin/etf-arbiter/internal/backtest"
	arbcache "github.com/kestrelfin/etf-arbiter/internal/cache"
	"github.com/kestrelfin/etf-arbiter/internal/clock"
	"github.com/kestrelfin/etf-arbiter/internal/coordinator"
	"github.com/kestrelfin/etf-arbiter/internal/engine"
	"github.com/kestrelfin/etf-arbiter/internal/mapping"
	"github.com/kestrelfin/etf-arbiter/internal/model"
	"github.com/kestrelfin/etf-arbiter/internal/notify"
	appconfig "github.com/kestrelfin/etf-arbiter/internal/platform/config"
	"github.com/kestrelfin/etf-arbiter/internal/platform/logger"
	"github.com/kestrelfin/etf-arbiter/internal/platform/metrics"
	"github.com/kestrelfin/etf-arbiter/internal/platform/resilience"
	"github.com/kestrelfin/etf-arbiter/internal/provider"
	"github.com/kestrelfin/etf-arbiter/internal/signals"
	"github.com/kestrelfin/etf-arbiter/internal/strategy"
	"github.com/kestrelfin/etf-arbiter/internal/tradingcalendar"
	"github.com/kestrelfin/etf-arbiter/internal/watchlist"
	dbpkg "github.com/kestrelfin/etf-arbiter/pkg/database"
)

// app bundles every long-lived dependency, wired once at process startup
// and shared by whichever subcommand runs.
type app struct {
	cfg        *appconfig.Config
	log        *logger.Logger
	metrics    *metrics.Metrics
	clock      clock.Clock
	calendar   tradingcalendar.Calendar
	registries *strategy.Registries
	provider   provider.Provider
	mapping    *mapping.Store
	watchlist  *watchlist.Store
	repo       signals.Repository
	coordinator *coordinator.State
	engine     *engine.Engine
	driver     *backtest.Driver
}

func newApp() (*app, error) {
	loader := appconfig.NewLoader(configFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	// strategy.min_time_to_close is the time filter's default threshold; an
	// explicit filter_configs.time.min_time_to_close takes precedence.
	if _, ok := cfg.Engine.FilterConfigs["time"]["min_time_to_close"]; !ok {
		if cfg.Engine.FilterConfigs == nil {
			cfg.Engine.FilterConfigs = make(map[string]map[string]any)
		}
		if cfg.Engine.FilterConfigs["time"] == nil {
			cfg.Engine.FilterConfigs["time"] = make(map[string]any)
		}
		cfg.Engine.FilterConfigs["time"]["min_time_to_close"] = cfg.Strategy.MinTimeToClose
	}

	registries := strategy.NewRegistries()
	if err := strategy.RegisterBuiltins(registries); err != nil {
		return nil, fmt.Errorf("register builtin plugins: %w", err)
	}
	if ok, errs := strategy.Validate(cfg.Engine, registries); !ok {
		return nil, fmt.Errorf("invalid engine config: %v", errs)
	}

	m := metrics.New()

	prov := provider.NewMemoryProvider()

	mappingStore := mapping.New(10, 0)
	if err := mappingStore.Load(cfg.MappingPath); err != nil {
		log.Warn("mapping: load failed, starting empty", zap.Error(err))
	}

	watchStore := watchlist.New(cfg.WatchlistPath)
	if err := watchStore.Load(); err != nil {
		log.Warn("watchlist: load failed, starting empty", zap.Error(err))
	}

	var repo signals.Repository
	if cfg.Database.DSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err := dbpkg.OpenPostgres(ctx, dbpkg.PostgresConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pg := signals.NewPostgresRepository(db)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate signals schema: %w", err)
		}
		repo = pg
		log.Info("signals: using postgres repository")
	} else {
		repo = signals.NewMemoryRepository()
		log.Info("signals: no database configured, using in-memory repository")
	}

	detector, selector, filters, err := strategy.BuildPipeline(cfg.Engine, registries)
	if err != nil {
		return nil, fmt.Errorf("build strategy pipeline: %w", err)
	}

	scoringCfg := strategy.DefaultScoringConfig()
	scoringCfg.CutoffHigh = cfg.SignalEvaluation.CutoffHigh
	scoringCfg.CutoffMedium = cfg.SignalEvaluation.CutoffMedium
	scoringCfg.WeightOrder = cfg.SignalEvaluation.WeightOrder
	scoringCfg.WeightWeight = cfg.SignalEvaluation.WeightWeight
	scoringCfg.WeightLiquidity = cfg.SignalEvaluation.WeightLiquidity
	scoringCfg.WeightTime = cfg.SignalEvaluation.WeightTime
	scoringCfg.RiskHighTimeSeconds = cfg.SignalEvaluation.RiskHighTimeSeconds
	scoringCfg.RiskLowTimeSeconds = cfg.SignalEvaluation.RiskLowTimeSeconds
	scoringCfg.RiskTop10RatioHigh = cfg.SignalEvaluation.RiskTop10RatioHigh
	scoringCfg.RiskMorningHour = cfg.SignalEvaluation.RiskMorningHour

	quoteCache := arbcache.New[string, model.Quote](cfg.Cache.MaxEntries)
	call := resilience.NewProviderCall("market-data")
	call.Timeout = cfg.Resilience.ProviderTimeout
	call.Retry = resilience.RetryConfig{
		Attempts:  cfg.Resilience.RetryAttempts,
		BaseDelay: cfg.Resilience.RetryBaseDelay,
		MaxDelay:  cfg.Resilience.RetryMaxDelay,
	}
	call.Limiter = resilience.NewRateLimiter(cfg.Resilience.RateLimitPerSecond, int(cfg.Resilience.RateLimitPerSecond))

	calendar := tradingcalendar.NewStandard()
	realClock := clock.Real{}

	eng := engine.New(
		log, m, realClock, calendar, mappingStore, quoteCache, prov, call,
		detector, selector, filters, scoringCfg, repo, notify.NewLogSender(log),
		engine.Config{
			MinWeight:       cfg.Strategy.MinWeight,
			MinETFVolume:    cfg.Strategy.MinETFVolume,
			MinOrderAmount:  cfg.Strategy.MinOrderAmount,
			ScanInterval:    time.Duration(cfg.Strategy.ScanIntervalSec) * time.Second,
			MinTimeToClose:  cfg.Strategy.MinTimeToClose,
			ScanConcurrency: cfg.Strategy.ScanConcurrency,
			ShutdownGrace:   time.Duration(cfg.Strategy.ShutdownGraceSec) * time.Second,
			QuoteTTL:        time.Duration(cfg.Cache.QuoteTTLSeconds) * time.Second,
		},
	)

	hist, ok := prov.(provider.HistoricalProvider)
	if !ok {
		return nil, fmt.Errorf("configured provider does not serve historical quotes")
	}

	driver := backtest.New(log, m, registries, calendar, mappingStore, hist, engine.Config{
		MinWeight:       cfg.Strategy.MinWeight,
		MinETFVolume:    cfg.Strategy.MinETFVolume,
		MinOrderAmount:  cfg.Strategy.MinOrderAmount,
		ScanConcurrency: cfg.Strategy.ScanConcurrency,
	})

	return &app{
		cfg:         cfg,
		log:         log,
		metrics:     m,
		clock:       realClock,
		calendar:    calendar,
		registries:  registries,
		provider:    prov,
		mapping:     mappingStore,
		watchlist:   watchStore,
		repo:        repo,
		coordinator: coordinator.New(realClock),
		engine:      eng,
		driver:      driver,
	}, nil
}
