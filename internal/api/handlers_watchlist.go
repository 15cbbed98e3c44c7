package api

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/kestrelfin/etf-arbiter/internal/model"
	"github.com/kestrelfin/etf-arbiter/internal/platform/apperr"
)

var stockCodePattern = regexp.MustCompile(`^\d{6}$`)

func (s *Server) handleWatchlistList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": s.watchStore.List()})
}

func (s *Server) handleWatchlistAdd(c *gin.Context) {
	var entry model.WatchEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		writeError(c, apperr.Validationf("invalid watchlist entry: %v", err))
		return
	}
	if !stockCodePattern.MatchString(entry.Code) {
		writeError(c, apperr.Validationf("invalid stock code %q", entry.Code))
		return
	}

	alreadyWatched := s.watchStore.Has(entry.Code)

	if err := s.watchStore.Add(entry); err != nil {
		writeError(c, apperr.Internal("saving watchlist", err))
		return
	}

	if alreadyWatched {
		c.JSON(http.StatusOK, gin.H{"status": "already_exists"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success"})
}

func (s *Server) handleWatchlistDelete(c *gin.Context) {
	code := c.Param("code")
	existed, err := s.watchStore.Remove(code)
	if err != nil {
		writeError(c, apperr.Internal("saving watchlist", err))
		return
	}
	if !existed {
		writeError(c, apperr.NotFoundf("watchlist entry %q", code))
		return
	}
	c.Status(http.StatusNoContent)
}
