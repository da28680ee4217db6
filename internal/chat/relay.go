// Package chat bridges a client's full-duplex connection to a streaming
// agent call, holding conversation state in-process. Conversations live
// in a mutex-guarded map; the chunk-to-wire-event translation generalizes
// tarsy's controller/streaming.go from its two chunk kinds into this
// relay's five.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stellarlinkco/agentdeck/internal/collab"
	"github.com/stellarlinkco/agentdeck/internal/domain"
)

// AgentFactory builds a fresh streaming agent instance for one message
// turn, keyed by model. The relay never caches the returned agent across
// turns, matching the per-message "build a fresh agent instance" step of
// the protocol.
type AgentFactory func(ctx context.Context, agentID, model string) (collab.StreamingAgent, error)

// EventKind tags one relay-to-client event.
type EventKind string

const (
	EventMessage    EventKind = "message"
	EventToken      EventKind = "token"
	EventToolCall   EventKind = "tool_call"
	EventToolOutput EventKind = "tool_output"
	EventMessageEnd EventKind = "message_end"
	EventError      EventKind = "error"
)

// Event is one message sent to the client over the WebSocket.
type Event struct {
	Type EventKind `json:"type"`
	Data any       `json:"data,omitempty"`
}

// ClientMessage is one message received from the client.
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

var (
	// ErrUnknownConversation is returned when an operation names a
	// conversation id the relay has never seen.
	ErrUnknownConversation = errors.New("chat: unknown conversation")
	// ErrStreamInFlight is returned by Stream when a second concurrent
	// send_message arrives for a conversation already streaming.
	ErrStreamInFlight = errors.New("chat: a stream is already in flight for this conversation")
)

// Relay owns conversation state and per-conversation streaming locks.
type Relay struct {
	factory AgentFactory
	models  map[string][]string // agentID -> supported models, for listAgents

	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	streaming     map[string]bool
}

// New creates a Relay. factory must be non-nil.
func New(factory AgentFactory, agentModels map[string][]string) *Relay {
	return &Relay{
		factory:       factory,
		models:        agentModels,
		conversations: make(map[string]*domain.Conversation),
		streaming:     make(map[string]bool),
	}
}

// AgentSummary describes one chattable agent for the agents listing.
type AgentSummary struct {
	ID     string
	Name   string
	Models []string
}

// ListAgents returns the configured agent/model catalog.
func (r *Relay) ListAgents() []AgentSummary {
	out := make([]AgentSummary, 0, len(r.models))
	for id, models := range r.models {
		out = append(out, AgentSummary{ID: id, Name: id, Models: append([]string(nil), models...)})
	}
	return out
}

// GetAgent returns one agent's summary.
func (r *Relay) GetAgent(id string) (AgentSummary, bool) {
	models, ok := r.models[id]
	if !ok {
		return AgentSummary{}, false
	}
	return AgentSummary{ID: id, Name: id, Models: append([]string(nil), models...)}, true
}

// CreateConversation starts a new, empty conversation.
func (r *Relay) CreateConversation(agentID, model, title string) *domain.Conversation {
	now := time.Now()
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Model:     model,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.mu.Lock()
	r.conversations[c.ID] = c
	r.mu.Unlock()
	return cloneConversation(c)
}

// ListConversations returns every known conversation.
func (r *Relay) ListConversations() []*domain.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Conversation, 0, len(r.conversations))
	for _, c := range r.conversations {
		out = append(out, cloneConversation(c))
	}
	return out
}

// GetConversation returns one conversation by id.
func (r *Relay) GetConversation(id string) (*domain.Conversation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, false
	}
	return cloneConversation(c), true
}

// DeleteConversation removes a conversation entirely.
func (r *Relay) DeleteConversation(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[id]; !ok {
		return false
	}
	delete(r.conversations, id)
	delete(r.streaming, id)
	return true
}

// ClearConversation drops a conversation's messages but keeps its id.
func (r *Relay) ClearConversation(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return false
	}
	c.Messages = nil
	c.UpdatedAt = time.Now()
	return true
}

func cloneConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	out.Messages = append([]domain.Message(nil), c.Messages...)
	return &out
}

// Stream drains client messages from in and emits relay Events to the
// returned channel until in is closed, ctx is done, or an unrecoverable
// error closes the stream. The returned channel is always closed on
// return.
func (r *Relay) Stream(ctx context.Context, conversationID string, in <-chan ClientMessage) (<-chan Event, error) {
	r.mu.Lock()
	_, ok := r.conversations[conversationID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrUnknownConversation
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				if msg.Type != "send_message" {
					continue
				}
				if err := r.handleSendMessage(ctx, conversationID, msg.Content, out); err != nil {
					slog.Error("chat stream failed", "conversation_id", conversationID, "error", err)
					out <- Event{Type: EventError, Data: map[string]string{"message": err.Error()}}
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *Relay) handleSendMessage(ctx context.Context, conversationID, content string, out chan<- Event) error {
	r.mu.Lock()
	if r.streaming[conversationID] {
		r.mu.Unlock()
		return ErrStreamInFlight
	}
	r.streaming[conversationID] = true
	c, ok := r.conversations[conversationID]
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.streaming[conversationID] = false
		r.mu.Unlock()
	}()

	if !ok {
		return ErrUnknownConversation
	}

	userMsg := domain.Message{Role: "human", Content: content}
	r.appendMessage(conversationID, userMsg)
	out <- Event{Type: EventMessage, Data: map[string]string{"role": "human", "content": content}}

	agent, err := r.factory(ctx, c.AgentID, c.Model)
	if err != nil {
		return fmt.Errorf("build agent: %w", err)
	}

	history := r.historySnapshot(conversationID)
	chunks, err := agent.Stream(ctx, toCollabHistory(history))
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}

	var sb strings.Builder
	for chunk := range chunks {
		switch chunk.Kind {
		case collab.ChunkToken:
			sb.WriteString(chunk.Content)
			out <- Event{Type: EventToken, Data: map[string]string{"content": chunk.Content}}
		case collab.ChunkToolCall:
			out <- Event{Type: EventToolCall, Data: map[string]any{
				"name": chunk.ToolName,
				"args": chunk.ToolArgs,
				"id":   chunk.ToolCallID,
			}}
		case collab.ChunkToolOutput:
			out <- Event{Type: EventToolOutput, Data: map[string]any{
				"tool_name":    chunk.ToolName,
				"tool_call_id": chunk.ToolCallID,
				"content":      chunk.Content,
			}}
		case collab.ChunkError:
			return chunk.Err
		case collab.ChunkEnd:
			// handled after the loop drains
		}
	}

	if sb.Len() > 0 {
		aiMsg := domain.Message{Role: "ai", Content: sb.String()}
		r.appendMessage(conversationID, aiMsg)
	}
	out <- Event{Type: EventMessageEnd}
	return nil
}

func (r *Relay) appendMessage(conversationID string, m domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[conversationID]
	if !ok {
		return
	}
	c.Messages = append(c.Messages, m)
	c.UpdatedAt = time.Now()
}

func (r *Relay) historySnapshot(conversationID string) []domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[conversationID]
	if !ok {
		return nil
	}
	return append([]domain.Message(nil), c.Messages...)
}

func toCollabHistory(in []domain.Message) []collab.Message {
	out := make([]collab.Message, len(in))
	for i, m := range in {
		tc := make([]collab.ToolCall, len(m.ToolCalls))
		for j, t := range m.ToolCalls {
			tc[j] = collab.ToolCall{ID: t.ID, Name: t.Name, Args: t.Args}
		}
		out[i] = collab.Message{Role: m.Role, Content: m.Content, ToolCalls: tc, ToolName: m.ToolName}
	}
	return out
}
