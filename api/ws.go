package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/stellarlinkco/agentdeck/internal/chat"
	"github.com/stellarlinkco/agentdeck/internal/eventbus"
)

// upgrader accepts connections from any origin: the CORS middleware
// already gates which browsers will even attempt the handshake, and this
// service has no cookie-based session to protect against CSRF-style
// cross-origin abuse.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteWait = 10 * time.Second

// runsWSMessage is the wire shape for every message on /testing/ws/runs.
type runsWSMessage struct {
	Type string `json:"type"`
	Jobs any    `json:"jobs,omitempty"`
	Job  any    `json:"job,omitempty"`
}

// handleRunsWS streams job snapshots and deltas. Client-to-server
// messages are ignored; this is a read-only feed.
func (s *Server) handleRunsWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("runs websocket upgrade failed", "error_type", "unexpected", "error", err)
		return
	}
	defer conn.Close()

	id, events := s.jobs.Subscribe()
	defer s.jobs.Unsubscribe(id)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		drainIgnoring(conn)
	}()

	for {
		select {
		case <-gone:
			return
		case ev := <-events:
			msg := toRunsWSMessage(ev)
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func toRunsWSMessage(ev eventbus.Event) runsWSMessage {
	switch ev.Kind {
	case eventbus.EventSnapshot:
		return runsWSMessage{Type: "snapshot", Jobs: ev.Jobs}
	default:
		return runsWSMessage{Type: "job", Job: ev.Job}
	}
}

// drainIgnoring discards every client-sent frame until a read fails, which
// is how a client disconnect is noticed; the runs stream has no
// client-to-server protocol.
func drainIgnoring(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleChatWS bridges one conversation's WebSocket connection to the
// chat relay's Stream bridge.
func (s *Server) handleChatWS(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, ok := s.relay.GetConversation(id); !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "conversation not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("chat websocket upgrade failed", "error_type", "unexpected", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	in := make(chan chat.ClientMessage, 8)
	out, err := s.relay.Stream(ctx, id, in)
	if err != nil {
		_ = conn.WriteJSON(chat.Event{Type: chat.EventError, Data: map[string]string{"message": err.Error()}})
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(in)
		for {
			var msg chat.ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case in <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for ev := range out {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			break
		}
	}
	cancel()
	<-done
}
