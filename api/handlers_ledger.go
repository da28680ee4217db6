package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/agentdeck/internal/ledger"
)

func (s *Server) handleGetLedger(c *gin.Context) {
	name := strings.TrimSpace(c.Param("qualifiedName"))
	entries, err := s.ledger.Trend(c.Request.Context(), name)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}
