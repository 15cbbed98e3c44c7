package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kestrelfin/etf-arbiter/internal/model"
	"github.com/kestrelfin/etf-arbiter/internal/strategy"
)

// handlePlugins lists the implementations available at three external
// boundaries: signal evaluators (the named scoring profiles a strategy
// template selects), notification senders, and market-data sources.
// None of these has a process-wide registry of its own, so the
// inventory here is the fixed set this binary ships with.
func (s *Server) handlePlugins(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"evaluators": []string{"conservative", "default", "aggressive"},
		"senders":    []string{"log"},
		"sources":    []string{"memory"},
	})
}

// handleStrategyTemplates is the strategy inventory: every registered
// EventDetector/FundSelector/SignalFilter name, plus the presentational
// strategy templates (§4.H) that resolve to a full EngineConfig.
func (s *Server) handleStrategyTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"event_detectors": s.registries.EventDetectors.List(),
		"fund_selectors":  s.registries.FundSelectors.List(),
		"signal_filters":  s.registries.SignalFilters.List(),
		"templates":       model.StrategyTemplates,
	})
}

// handleStrategyValidate validates a chain described entirely by query
// parameters (event_detector, fund_selector, signal_filters as a
// comma-separated list) against the live registries, per the
// GET /api/strategies/validate contract.
func (s *Server) handleStrategyValidate(c *gin.Context) {
	cfg := model.EngineConfig{
		EventDetector: c.Query("event_detector"),
		FundSelector:  c.Query("fund_selector"),
	}
	if filters := c.Query("signal_filters"); filters != "" {
		for _, f := range strings.Split(filters, ",") {
			if f = strings.TrimSpace(f); f != "" {
				cfg.SignalFilters = append(cfg.SignalFilters, f)
			}
		}
	}

	ok, errs := strategy.Validate(cfg, s.registries)
	c.JSON(http.StatusOK, gin.H{"ok": ok, "errors": errs})
}
