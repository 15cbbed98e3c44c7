// Package coordinator holds the process-wide, read-mostly state the
// control plane's status endpoints report: whether the monitor loop is
// running, when it last scanned, and today's running counters. Every
// mutation of these values goes through State; the HTTP handlers still
// call the engine directly to scan, start and stop the monitor.
package coordinator

import (
	"sync"
	"time"

	"github.com/kestrelfin/etf-arbiter/internal/clock"
	"github.com/kestrelfin/etf-arbiter/internal/model"
)

// Snapshot is the read-only view returned to callers.
type Snapshot struct {
	MonitorRunning   bool      `json:"monitor_running"`
	LastScanAt       time.Time `json:"last_scan_at"`
	ScansToday       int64     `json:"scans_today"`
	SignalsToday     int64     `json:"signals_today"`
	RejectionsToday  int64     `json:"rejections_today"`
	ErrorsToday      int64     `json:"errors_today"`
	CountersResetDay string    `json:"counters_reset_day"`
}

// State is the coordinator's single mutable instance.
type State struct {
	clk clock.Clock

	mu              sync.RWMutex
	monitorRunning  bool
	lastScanAt      time.Time
	scansToday      int64
	signalsToday    int64
	rejectionsToday int64
	errorsToday     int64
	countersDay     string
}

// New builds a State that resets its daily counters whenever the wall
// clock's date rolls over.
func New(clk clock.Clock) *State {
	return &State{clk: clk, countersDay: clk.Now().Format("2006-01-02")}
}

// SetMonitorRunning records the monitor loop's running flag.
func (s *State) SetMonitorRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitorRunning = running
}

// RecordScan folds one scan's outcome into today's counters, resetting
// them first if the day has rolled over since the last record.
func (s *State) RecordScan(result model.ScanResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetIfNewDayLocked()
	s.lastScanAt = s.clk.Now()
	s.scansToday++
	s.signalsToday += int64(len(result.SignalsEmitted))
	s.rejectionsToday += int64(len(result.Rejections))
	s.errorsToday += int64(result.ErrorCount)
}

func (s *State) resetIfNewDayLocked() {
	today := s.clk.Now().Format("2006-01-02")
	if today == s.countersDay {
		return
	}
	s.countersDay = today
	s.scansToday = 0
	s.signalsToday = 0
	s.rejectionsToday = 0
	s.errorsToday = 0
}

// Snapshot returns the current state for the /api/status handler.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		MonitorRunning:   s.monitorRunning,
		LastScanAt:       s.lastScanAt,
		ScansToday:       s.scansToday,
		SignalsToday:     s.signalsToday,
		RejectionsToday:  s.rejectionsToday,
		ErrorsToday:      s.errorsToday,
		CountersResetDay: s.countersDay,
	}
}
