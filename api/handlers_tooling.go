package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleListTools(c *gin.Context) {
	c.JSON(http.StatusOK, s.tools.ListTools())
}

func (s *Server) handleGetToolSchema(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	schema, ok := s.tools.Schema(name)
	if !ok {
		respondText(c, http.StatusNotFound, "tool not found")
		return
	}
	c.JSON(http.StatusOK, schema)
}

type invokeToolRequest struct {
	Args map[string]any `json:"args"`
}

// handleInvokeTool always answers 200 for tool-level failure: a bad
// schema/coercion or a tool-internal error surfaces as {success:false,
// error}, not an HTTP error. Only a transport-level problem (unknown
// tool, malformed body) is a non-2xx response.
func (s *Server) handleInvokeTool(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if _, ok := s.tools.Schema(name); !ok {
		respondText(c, http.StatusNotFound, "tool not found")
		return
	}

	var req invokeToolRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err)
			return
		}
	}

	result, err := s.tools.Invoke(c.Request.Context(), name, req.Args)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
