// Package api implements the HTTP + WebSocket protocol surface: request
// routing, validation, and translation between wire payloads and the
// orchestration core's discovery/history/pipeline/jobmanager/eventbus/
// tooling/chat components, on a gin.Engine.
package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/agentdeck/internal/chat"
	"github.com/stellarlinkco/agentdeck/internal/config"
	"github.com/stellarlinkco/agentdeck/internal/discovery"
	"github.com/stellarlinkco/agentdeck/internal/eventbus"
	"github.com/stellarlinkco/agentdeck/internal/history"
	"github.com/stellarlinkco/agentdeck/internal/jobmanager"
	"github.com/stellarlinkco/agentdeck/internal/ledger"
	"github.com/stellarlinkco/agentdeck/internal/tooling"
)

// Server wires the protocol surface to the orchestration core.
type Server struct {
	router  *gin.Engine
	config  *config.Config
	jobs    *jobmanager.Manager
	bus     *eventbus.Bus
	disc    discovery.Provider
	hist    *history.Store
	ledger  *ledger.Store
	tools   *tooling.Registry
	relay   *chat.Relay
	version string
}

// Deps bundles every core component the protocol surface depends on.
type Deps struct {
	Config  *config.Config
	Jobs    *jobmanager.Manager
	Bus     *eventbus.Bus
	Disc    discovery.Provider
	History *history.Store
	Ledger  *ledger.Store
	Tools   *tooling.Registry
	Relay   *chat.Relay
	Version string
}

// NewServer builds a Server. All Deps fields must be non-nil except
// Version, which defaults to "dev".
func NewServer(d Deps) (*Server, error) {
	if d.Config == nil || d.Jobs == nil || d.Bus == nil || d.Disc == nil ||
		d.History == nil || d.Ledger == nil || d.Tools == nil || d.Relay == nil {
		return nil, errors.New("api: incomplete Deps")
	}
	if strings.TrimSpace(d.Version) == "" {
		d.Version = "dev"
	}

	r := gin.New()
	s := &Server{
		router:  r,
		config:  d.Config,
		jobs:    d.Jobs,
		bus:     d.Bus,
		disc:    d.Disc,
		hist:    d.History,
		ledger:  d.Ledger,
		tools:   d.Tools,
		relay:   d.Relay,
		version: d.Version,
	}
	s.registerMiddleware()
	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// Run starts the HTTP server on addr, falling back to the configured
// server address, then ":8080", if addr is blank.
func (s *Server) Run(addr string) error {
	if s == nil || s.router == nil {
		return errors.New("api: nil server")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" && s.config != nil {
		addr = s.config.Server.Addr
	}
	if addr == "" {
		addr = ":8080"
	}
	return s.router.Run(addr)
}

// Handler exposes the underlying router, e.g. for httptest.
func (s *Server) Handler() *gin.Engine {
	return s.router
}
