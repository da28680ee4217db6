package api

import (
	"strings"

	"github.com/stellarlinkco/agentdeck/internal/config"
)

func (s *Server) registerRoutes() error {
	if s == nil || s.router == nil {
		return nil
	}

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/version", s.handleVersion)

	apiKey := strings.TrimSpace(s.config.Server.APIKey)
	guarded := s.router.Group("/")
	if apiKey != "" && !config.DisableAuth() {
		guarded.Use(apiKeyAuthMiddleware(apiKey))
	}

	testing := guarded.Group("/testing")
	testing.GET("/tests", s.handleListTests)
	testing.GET("/runs", s.handleListRuns)
	testing.GET("/runs/:id", s.handleGetRun)
	testing.POST("/runs", s.handleCreateRun)
	testing.GET("/history", s.handleListHistory)
	testing.GET("/history/:qualifiedName", s.handleGetHistory)
	testing.DELETE("/history", s.handleTruncateAllHistory)
	testing.DELETE("/history/:qualifiedName", s.handleTruncateHistory)
	testing.DELETE("/history/:qualifiedName/:index", s.handleDeleteHistoryEntry)
	testing.GET("/ws/runs", s.handleRunsWS)

	toolingGroup := guarded.Group("/tooling")
	toolingGroup.GET("/tools", s.handleListTools)
	toolingGroup.GET("/tools/:name", s.handleGetToolSchema)
	toolingGroup.POST("/tools/:name/invoke", s.handleInvokeTool)

	chatting := guarded.Group("/chatting")
	chatting.GET("/agents", s.handleListAgents)
	chatting.GET("/agents/:id", s.handleGetAgent)
	chatting.POST("/conversations", s.handleCreateConversation)
	chatting.GET("/conversations", s.handleListConversations)
	chatting.GET("/conversations/:id", s.handleGetConversation)
	chatting.DELETE("/conversations/:id", s.handleDeleteConversation)
	chatting.POST("/conversations/:id/clear", s.handleClearConversation)
	chatting.GET("/ws/conversations/:id", s.handleChatWS)

	guarded.GET("/ledger/:qualifiedName", s.handleGetLedger)

	return nil
}
