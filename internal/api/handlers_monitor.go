package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appconfig "github.com/kestrelfin/etf-arbiter/internal/platform/config"
	"github.com/kestrelfin/etf-arbiter/internal/platform/apperr"
	"github.com/kestrelfin/etf-arbiter/internal/provider"
)

func (s *Server) handleManualScan(c *gin.Context) {
	codes := s.watchStore.Codes()
	if len(codes) == 0 {
		writeError(c, apperr.Validation("watchlist is empty; add securities before scanning"))
		return
	}
	result := s.engine.Scan(c.Request.Context(), codes)
	s.state.RecordScan(result)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleMonitorStart(c *gin.Context) {
	if !s.engine.StartMonitor(c.Request.Context(), s.watchStore.Codes) {
		writeError(c, apperr.Conflict("monitor is already running"))
		return
	}
	s.state.SetMonitorRunning(true)
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

func (s *Server) handleMonitorStop(c *gin.Context) {
	if !s.engine.StopMonitor() {
		writeError(c, apperr.Conflict("monitor is not running"))
		return
	}
	s.state.SetMonitorRunning(false)
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// universeProvider is implemented by providers that can enumerate the ETF
// universe to rebuild the mapping store against (the in-memory provider
// does; a real exchange-feed adapter would too).
type universeProvider interface {
	ETFUniverse() []string
}

func (s *Server) handleMappingRebuild(c *gin.Context) {
	up, ok := s.quoteProv.(universeProvider)
	if !ok {
		writeError(c, apperr.Dependency("configured provider cannot enumerate an ETF universe", nil))
		return
	}

	hp, ok := s.quoteProv.(provider.HoldingsProvider)
	if !ok {
		writeError(c, apperr.Dependency("configured provider does not serve holdings", nil))
		return
	}

	if err := s.mappingStore.Rebuild(up.ETFUniverse(), hp); err != nil {
		writeError(c, apperr.Internal("rebuilding mapping", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"stocks_mapped": len(s.mappingStore.ListStocks())})
}

func (s *Server) handleStatus(c *gin.Context) {
	snapshot := s.state.Snapshot()
	lastScanAt, scanCount := s.engine.LastScan()
	snapshot.LastScanAt = lastScanAt
	snapshot.MonitorRunning = s.engine.IsRunning()
	c.JSON(http.StatusOK, gin.H{"state": snapshot, "engine_scan_count": scanCount})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, appconfig.Sanitized(s.cfg))
}
