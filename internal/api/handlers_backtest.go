package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kestrelfin/etf-arbiter/internal/model"
	"github.com/kestrelfin/etf-arbiter/internal/platform/apperr"
)

func (s *Server) handleBacktestStart(c *gin.Context) {
	var cfg model.BacktestConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeError(c, apperr.Validationf("invalid backtest config: %v", err))
		return
	}

	jobID, err := s.driver.Start(c.Request.Context(), cfg)
	if err != nil {
		writeError(c, apperr.Validationf("%v", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (s *Server) handleBacktestList(c *gin.Context) {
	var params model.BacktestJobFilterParams
	if status := c.Query("status"); status != "" {
		params.Status = model.BacktestStatus(status)
	}
	params.Limit = 50
	if limit := c.Query("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			params.Limit = n
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			params.Offset = n
		}
	}

	c.JSON(http.StatusOK, gin.H{"jobs": s.driver.List(params)})
}

func (s *Server) handleBacktestStatus(c *gin.Context) {
	jobID := c.Param("job_id")
	job, ok := s.driver.Status(jobID)
	if !ok {
		writeError(c, apperr.NotFoundf("backtest job %q", jobID))
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleBacktestResult(c *gin.Context) {
	jobID := c.Param("job_id")
	job, ok := s.driver.Status(jobID)
	if !ok {
		writeError(c, apperr.NotFoundf("backtest job %q", jobID))
		return
	}
	if job.Status != model.BacktestCompleted {
		writeError(c, apperr.Conflict("backtest job is not completed"))
		return
	}

	result, ok := s.driver.Result(jobID)
	if !ok {
		writeError(c, apperr.NotFoundf("backtest result for job %q", jobID))
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleBacktestSignalsCSV(c *gin.Context) {
	jobID := c.Param("job_id")
	result, ok := s.driver.Result(jobID)
	if !ok {
		writeError(c, apperr.NotFoundf("backtest result for job %q", jobID))
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", "attachment; filename=\"signals.csv\"")

	// UTF-8 BOM per the CSV export contract, so spreadsheet tools that
	// sniff encoding don't mis-render stock/ETF names.
	_, _ = c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writeQuotedRecord(c.Writer, []string{"timestamp", "stock_code", "stock_name", "stock_price", "etf_code", "etf_name", "etf_weight", "confidence", "risk_level", "reason"})
	for _, sig := range result.Signals {
		writeQuotedRecord(c.Writer, []string{
			sig.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			sig.StockCode, sig.StockName,
			strconv.FormatFloat(sig.StockPrice, 'f', 2, 64),
			sig.ETFCode, sig.ETFName,
			strconv.FormatFloat(sig.Weight, 'f', 4, 64),
			string(sig.ConfidenceLevel),
			string(sig.RiskLevel), sig.Reason,
		})
	}
}

// writeQuotedRecord writes one CSV line with every field double-quoted, per
// the export contract ("every field quoted") — encoding/csv only quotes
// fields that need it, so the line is assembled directly instead.
func writeQuotedRecord(w io.Writer, fields []string) {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	_, _ = io.WriteString(w, strings.Join(quoted, ",")+"\n")
}

// handleBacktestCancelOrDelete implements DELETE /api/backtest/{id}'s
// combined "Cancel/delete" contract: a running job is cancelled
// cooperatively, a finished one's record is simply removed. Either way the
// job is gone from List/Status afterward.
func (s *Server) handleBacktestCancelOrDelete(c *gin.Context) {
	jobID := c.Param("job_id")
	job, ok := s.driver.Status(jobID)
	if !ok {
		writeError(c, apperr.NotFoundf("backtest job %q", jobID))
		return
	}

	if job.Status == model.BacktestQueued || job.Status == model.BacktestRunning {
		s.driver.Cancel(jobID)
	}
	s.driver.Delete(jobID)
	c.Status(http.StatusNoContent)
}
