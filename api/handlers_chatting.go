package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, s.relay.ListAgents())
}

func (s *Server) handleGetAgent(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	agent, ok := s.relay.GetAgent(id)
	if !ok {
		respondText(c, http.StatusNotFound, "agent not found")
		return
	}
	c.JSON(http.StatusOK, agent)
}

type createConversationRequest struct {
	AgentID string `json:"agent_id"`
	Model   string `json:"model"`
	Title   string `json:"title,omitempty"`
}

func (s *Server) handleCreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.AgentID) == "" {
		respondText(c, http.StatusBadRequest, "agent_id is required")
		return
	}
	if _, ok := s.relay.GetAgent(req.AgentID); !ok {
		respondText(c, http.StatusBadRequest, "unknown agent_id")
		return
	}

	conv := s.relay.CreateConversation(req.AgentID, req.Model, req.Title)
	c.JSON(http.StatusCreated, conv)
}

func (s *Server) handleListConversations(c *gin.Context) {
	c.JSON(http.StatusOK, s.relay.ListConversations())
}

func (s *Server) handleGetConversation(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	conv, ok := s.relay.GetConversation(id)
	if !ok {
		respondText(c, http.StatusNotFound, "conversation not found")
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if !s.relay.DeleteConversation(id) {
		respondText(c, http.StatusNotFound, "conversation not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearConversation(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if !s.relay.ClearConversation(id) {
		respondText(c, http.StatusNotFound, "conversation not found")
		return
	}
	conv, _ := s.relay.GetConversation(id)
	c.JSON(http.StatusOK, conv)
}
