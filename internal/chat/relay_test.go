package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stellarlinkco/agentdeck/internal/collab"
)

type stubStreamingAgent struct {
	chunks []collab.Chunk
}

func (s *stubStreamingAgent) Stream(ctx context.Context, history []collab.Message) (<-chan collab.Chunk, error) {
	ch := make(chan collab.Chunk, len(s.chunks))
	for _, c := range s.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func newFactory(agent collab.StreamingAgent, err error) AgentFactory {
	return func(ctx context.Context, agentID, model string) (collab.StreamingAgent, error) {
		return agent, err
	}
}

func drain(t *testing.T, out <-chan Event, timeout time.Duration) []Event {
	t.Helper()
	var events []Event
	deadline := time.After(timeout)
	for {
		select {
		case e, ok := <-out:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-deadline:
			t.Fatal("timed out draining events")
		}
	}
}

func TestRelay_SendMessage_HappyPath(t *testing.T) {
	t.Parallel()

	agent := &stubStreamingAgent{chunks: []collab.Chunk{
		{Kind: collab.ChunkToken, Content: "hel"},
		{Kind: collab.ChunkToken, Content: "lo"},
		{Kind: collab.ChunkEnd},
	}}
	r := New(newFactory(agent, nil), map[string][]string{"claude": {"claude-3"}})
	conv := r.CreateConversation("claude", "claude-3", "")

	in := make(chan ClientMessage, 1)
	out, err := r.Stream(context.Background(), conv.ID, in)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	in <- ClientMessage{Type: "send_message", Content: "hi"}
	close(in)

	events := drain(t, out, 2*time.Second)

	var sawMessageEnd bool
	tokens := ""
	for _, e := range events {
		if e.Type == EventToken {
			tokens += e.Data.(map[string]string)["content"]
		}
		if e.Type == EventMessageEnd {
			sawMessageEnd = true
		}
	}
	if tokens != "hello" {
		t.Fatalf("tokens = %q, want %q", tokens, "hello")
	}
	if !sawMessageEnd {
		t.Fatalf("events = %+v, missing message_end", events)
	}

	got, _ := r.GetConversation(conv.ID)
	if len(got.Messages) != 2 {
		t.Fatalf("Messages = %+v, want human+ai", got.Messages)
	}
	if got.Messages[1].Content != "hello" {
		t.Fatalf("ai message content = %q", got.Messages[1].Content)
	}
}

func TestRelay_UnknownConversation(t *testing.T) {
	t.Parallel()
	r := New(newFactory(&stubStreamingAgent{}, nil), nil)
	if _, err := r.Stream(context.Background(), "missing", make(chan ClientMessage)); err != ErrUnknownConversation {
		t.Fatalf("Stream err = %v, want ErrUnknownConversation", err)
	}
}

func TestRelay_ClearConversation_KeepsID(t *testing.T) {
	t.Parallel()
	agent := &stubStreamingAgent{chunks: []collab.Chunk{{Kind: collab.ChunkToken, Content: "hi"}, {Kind: collab.ChunkEnd}}}
	r := New(newFactory(agent, nil), nil)
	conv := r.CreateConversation("a", "m", "")

	in := make(chan ClientMessage, 1)
	out, _ := r.Stream(context.Background(), conv.ID, in)
	in <- ClientMessage{Type: "send_message", Content: "hi"}
	close(in)
	drain(t, out, 2*time.Second)

	if ok := r.ClearConversation(conv.ID); !ok {
		t.Fatalf("ClearConversation: not found")
	}
	got, ok := r.GetConversation(conv.ID)
	if !ok {
		t.Fatalf("GetConversation: conversation vanished after clear")
	}
	if len(got.Messages) != 0 {
		t.Fatalf("Messages = %+v, want empty after clear", got.Messages)
	}
}

func TestRelay_DeleteConversation(t *testing.T) {
	t.Parallel()
	r := New(newFactory(&stubStreamingAgent{}, nil), nil)
	conv := r.CreateConversation("a", "m", "")
	if !r.DeleteConversation(conv.ID) {
		t.Fatalf("DeleteConversation: not found")
	}
	if r.DeleteConversation(conv.ID) {
		t.Fatalf("DeleteConversation: second delete should report not-found")
	}
	if _, ok := r.GetConversation(conv.ID); ok {
		t.Fatalf("GetConversation: conversation still present after delete")
	}
}
