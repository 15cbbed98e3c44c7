// Package api is the thin HTTP control plane: a gin router exposing
// health/status, quote/mapping lookups, manual and scheduled scans,
// backtest job management, the watchlist, and the live plugin/strategy
// registry, grounded on the REST-over-gin layout used elsewhere in the
// stack.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kestrelfin/etf-arbiter/internal/backtest"
	"github.com/kestrelfin/etf-arbiter/internal/coordinator"
	"github.com/kestrelfin/etf-arbiter/internal/engine"
	"github.com/kestrelfin/etf-arbiter/internal/mapping"
	"github.com/kestrelfin/etf-arbiter/internal/platform/apperr"
	appconfig "github.com/kestrelfin/etf-arbiter/internal/platform/config"
	"github.com/kestrelfin/etf-arbiter/internal/platform/logger"
	"github.com/kestrelfin/etf-arbiter/internal/platform/metrics"
	"github.com/kestrelfin/etf-arbiter/internal/provider"
	"github.com/kestrelfin/etf-arbiter/internal/signals"
	"github.com/kestrelfin/etf-arbiter/internal/strategy"
	"github.com/kestrelfin/etf-arbiter/internal/watchlist"
)

// Server bundles every dependency the handlers need.
type Server struct {
	log          *logger.Logger
	cfg          *appconfig.Config
	metrics      *metrics.Metrics
	engine       *engine.Engine
	driver       *backtest.Driver
	state        *coordinator.State
	mappingStore *mapping.Store
	watchStore   *watchlist.Store
	repo         signals.Repository
	registries   *strategy.Registries
	quoteProv    provider.Provider

	router *gin.Engine
}

// New builds the gin router with every route wired.
func New(
	log *logger.Logger,
	cfg *appconfig.Config,
	m *metrics.Metrics,
	eng *engine.Engine,
	driver *backtest.Driver,
	state *coordinator.State,
	mappingStore *mapping.Store,
	watchStore *watchlist.Store,
	repo signals.Repository,
	registries *strategy.Registries,
	quoteProv provider.Provider,
) *Server {
	s := &Server{
		log: log, cfg: cfg, metrics: m, engine: eng, driver: driver, state: state,
		mappingStore: mappingStore, watchStore: watchStore, repo: repo,
		registries: registries, quoteProv: quoteProv,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.handleHealth)
	r.GET("/api/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/status", s.handleStatus)
		api.GET("/config", s.handleGetConfig)

		api.GET("/stocks", s.handleListStocks)
		api.GET("/stocks/:code", s.handleGetStock)
		api.GET("/stocks/:code/related-etfs", s.handleRelatedETFs)
		api.GET("/limit-up", s.handleLimitUp)

		api.GET("/signals", s.handleListSignals)
		api.GET("/signals/:id", s.handleGetSignal)

		api.POST("/monitor/scan", s.handleManualScan)
		api.POST("/monitor/start", s.handleMonitorStart)
		api.POST("/monitor/stop", s.handleMonitorStop)

		api.POST("/mapping/rebuild", s.handleMappingRebuild)

		api.GET("/watchlist", s.handleWatchlistList)
		api.POST("/watchlist/add", s.handleWatchlistAdd)
		api.DELETE("/watchlist/:code", s.handleWatchlistDelete)

		api.GET("/plugins", s.handlePlugins)
		api.GET("/strategies", s.handleStrategyTemplates)
		api.GET("/strategies/validate", s.handleStrategyValidate)

		bt := api.Group("/backtest")
		{
			bt.POST("/start", s.handleBacktestStart)
			bt.GET("/jobs", s.handleBacktestList)
			bt.GET("/:job_id", s.handleBacktestStatus)
			bt.GET("/:job_id/result", s.handleBacktestResult)
			bt.GET("/:job_id/signals", s.handleBacktestSignalsCSV)
			bt.DELETE("/:job_id", s.handleBacktestCancelOrDelete)
		}
	}

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// writeError maps an apperr.Error (or any error) onto the envelope and
// status code the control plane promises.
func writeError(c *gin.Context, err error) {
	if ae, ok := apperr.As(err); ok {
		body := gin.H{"kind": string(ae.Kind), "message": ae.Message}
		if len(ae.Details) > 0 {
			body["details"] = ae.Details
		}
		c.JSON(ae.Kind.HTTPStatus(), gin.H{"error": body})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"kind": string(apperr.KindInternal), "message": err.Error()}})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().UTC()})
}

// Run starts the HTTP server and blocks until ctx is cancelled, then
// drains with a bounded shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
