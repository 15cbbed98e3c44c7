package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kestrelfin/etf-arbiter/internal/clock"
	"github.com/kestrelfin/etf-arbiter/internal/model"
	"github.com/kestrelfin/etf-arbiter/internal/platform/apperr"
)

func parseSignalFilterParams(c *gin.Context) (model.SignalFilterParams, error) {
	var params model.SignalFilterParams
	if start := c.Query("start"); start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return params, fmt.Errorf("invalid start %q: %w", start, err)
		}
		params.Start = &t
	}
	if end := c.Query("end"); end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return params, fmt.Errorf("invalid end %q: %w", end, err)
		}
		params.End = &t
	}
	if params.Start != nil && params.End != nil && params.End.Before(*params.Start) {
		return params, fmt.Errorf("end %s is before start %s", params.End, params.Start)
	}
	params.StockCode = c.Query("stock_code")
	params.ETFCode = c.Query("etf_code")
	params.EventType = c.Query("event_type")

	if todayOnly, _ := strconv.ParseBool(c.Query("today_only")); todayOnly && params.Start == nil && params.End == nil {
		now := clock.Real{}.Now()
		startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		params.Start = &startOfDay
	}

	params.Limit = 50
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 && n <= 500 {
			params.Limit = n
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			params.Offset = n
		}
	}
	return params, nil
}

func (s *Server) handleListSignals(c *gin.Context) {
	params, err := parseSignalFilterParams(c)
	if err != nil {
		writeError(c, apperr.Validationf("bad range: %v", err))
		return
	}

	signalList, err := s.repo.List(c.Request.Context(), params)
	if err != nil {
		writeError(c, apperr.Internal("listing signals", err))
		return
	}
	total, err := s.repo.Count(c.Request.Context(), params)
	if err != nil {
		writeError(c, apperr.Internal("counting signals", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"signals": signalList, "total": total, "limit": params.Limit, "offset": params.Offset})
}

func (s *Server) handleGetSignal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, apperr.Validationf("invalid signal id %q", c.Param("id")))
		return
	}

	signal, ok, err := s.repo.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, apperr.Internal("fetching signal", err))
		return
	}
	if !ok {
		writeError(c, apperr.NotFoundf("signal %d", id))
		return
	}
	c.JSON(http.StatusOK, signal)
}
