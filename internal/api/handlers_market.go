package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kestrelfin/etf-arbiter/internal/platform/apperr"
)

func (s *Server) handleListStocks(c *gin.Context) {
	codes := s.watchStore.Codes()
	quotes, err := s.quoteProv.GetQuotes(codes)
	if err != nil {
		writeError(c, apperr.Dependency("fetching watchlist quotes", err))
		return
	}

	out := make([]any, 0, len(codes))
	for _, code := range codes {
		if q, ok := quotes[code]; ok {
			out = append(out, q)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetStock(c *gin.Context) {
	code := c.Param("code")
	quote, err := s.quoteProv.GetQuote(code)
	if err != nil {
		writeError(c, apperr.NotFoundf("stock %q", code))
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (s *Server) handleRelatedETFs(c *gin.Context) {
	code := c.Param("code")
	entries := s.mappingStore.GetETFsFor(code)
	if len(entries) == 0 {
		writeError(c, apperr.NotFoundf("no ETF mapping for stock %q", code))
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock_code": code, "etfs": entries})
}

func (s *Server) handleLimitUp(c *gin.Context) {
	detector, err := s.registries.EventDetectors.Build("limit_up", nil)
	if err != nil {
		writeError(c, apperr.Internal("building limit-up detector", err))
		return
	}

	codes := s.watchStore.Codes()
	if len(codes) == 0 {
		codes = s.mappingStore.ListStocks()
	}

	type limitUpHit struct {
		Code      string  `json:"code"`
		Name      string  `json:"name"`
		Price     float64 `json:"price"`
		ChangePct float64 `json:"change_pct"`
	}
	var hits []limitUpHit
	for _, code := range codes {
		quote, err := s.quoteProv.GetQuote(code)
		if err != nil {
			continue
		}
		event, ok := detector.Detect(quote)
		if !ok || !detector.IsValid(event) {
			continue
		}
		hits = append(hits, limitUpHit{Code: event.StockCode, Name: event.StockName, Price: event.Price, ChangePct: event.ChangePct})
	}

	c.JSON(http.StatusOK, gin.H{"count": len(hits), "stocks": hits})
}
