package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/agentdeck/internal/domain"
)

func (s *Server) handleListTests(c *gin.Context) {
	result, err := s.disc.ListTests(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if result.ErrorText != "" {
		slog.Error("discovery scan returned partial results", "error_type", "discovery", "error_text", result.ErrorText)
	}
	if result.Tests == nil {
		result.Tests = []domain.TestDescriptor{}
	}
	c.JSON(http.StatusOK, result.Tests)
}

func (s *Server) handleListRuns(c *gin.Context) {
	c.JSON(http.StatusOK, s.jobs.ListJobs())
}

func (s *Server) handleGetRun(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	job, ok := s.jobs.GetJob(id)
	if !ok {
		respondText(c, http.StatusNotFound, "job not found")
		return
	}
	c.JSON(http.StatusOK, job)
}

type createRunRequest struct {
	Tests []string `json:"tests"`
}

func (s *Server) handleCreateRun(c *gin.Context) {
	var req createRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err)
			return
		}
	}

	job, err := s.jobs.CreateJob(c.Request.Context(), req.Tests)
	if err != nil {
		slog.Error("create run failed", "error_type", "unexpected", "error", err)
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) handleListHistory(c *gin.Context) {
	all, err := s.hist.ListAll()
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, all)
}

func (s *Server) handleGetHistory(c *gin.Context) {
	name := strings.TrimSpace(c.Param("qualifiedName"))
	results, err := s.hist.List(name)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []domain.TestResult{}
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) handleTruncateAllHistory(c *gin.Context) {
	if err := s.hist.TruncateAll(); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	s.bus.PublishSnapshot()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTruncateHistory(c *gin.Context) {
	name := strings.TrimSpace(c.Param("qualifiedName"))
	if err := s.hist.Truncate(name); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	s.bus.PublishSnapshot()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteHistoryEntry(c *gin.Context) {
	name := strings.TrimSpace(c.Param("qualifiedName"))
	index, err := strconv.Atoi(strings.TrimSpace(c.Param("index")))
	if err != nil {
		respondError(c, http.StatusBadRequest, errors.New("index must be an integer"))
		return
	}

	if err := s.hist.DeleteAt(name, index); err != nil {
		if strings.Contains(err.Error(), "out of range") {
			respondText(c, http.StatusNotFound, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}
