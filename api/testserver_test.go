package api

import (
	"context"
	"errors"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/stellarlinkco/agentdeck/internal/chat"
	"github.com/stellarlinkco/agentdeck/internal/collab"
	"github.com/stellarlinkco/agentdeck/internal/config"
	"github.com/stellarlinkco/agentdeck/internal/discovery"
	"github.com/stellarlinkco/agentdeck/internal/domain"
	"github.com/stellarlinkco/agentdeck/internal/eventbus"
	"github.com/stellarlinkco/agentdeck/internal/history"
	"github.com/stellarlinkco/agentdeck/internal/jobmanager"
	"github.com/stellarlinkco/agentdeck/internal/ledger"
	"github.com/stellarlinkco/agentdeck/internal/pipeline"
	"github.com/stellarlinkco/agentdeck/internal/tooling"
)

var errUnknownAgent = errors.New("unknown agent")

// fakeAgent answers every Query/Stream call with a fixed response, so
// pipeline.Executor's behavior in these tests is fully deterministic.
type fakeAgent struct {
	toolCall string
}

func (a *fakeAgent) Query(ctx context.Context, prompt string) (*collab.AgentResponse, error) {
	msg := collab.AgentMessage{Role: "ai", Content: "done"}
	if a.toolCall != "" {
		msg.ToolCalls = []collab.ToolCall{{ID: "1", Name: a.toolCall}}
	}
	return &collab.AgentResponse{Messages: []collab.AgentMessage{msg}}, nil
}

func (a *fakeAgent) Stream(ctx context.Context, history []collab.Message) (<-chan collab.Chunk, error) {
	out := make(chan collab.Chunk, 4)
	out <- collab.Chunk{Kind: collab.ChunkToken, Content: "hi"}
	out <- collab.Chunk{Kind: collab.ChunkEnd}
	close(out)
	return out, nil
}

type fakeValidator struct{}

func (fakeValidator) Judge(ctx context.Context, resp *collab.AgentResponse, expectations []string) (*collab.Verdict, error) {
	return &collab.Verdict{Success: true}, nil
}

// fakeTool is a single agent-visible tool with no parameters, for exercising
// the tooling endpoints without a real plugin.
type fakeTool struct{}

func (fakeTool) Name() string        { return "echo" }
func (fakeTool) Description() string { return "echoes a fixed reply" }
func (fakeTool) Group() string       { return "test" }
func (fakeTool) Parameters() []tooling.Param {
	return []tooling.Param{{Name: "text", TypeName: tooling.ParamString}}
}
func (fakeTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return map[string]any{"echoed": args["text"]}, nil
}

// testServer builds a fully wired Server over real, in-memory core
// components plus a fake agent/validator pair, the same shape
// cmd/server/main.go assembles in production.
func testServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	disc := discovery.NewStaticProvider()
	disc.Register("greetings", "says_hello", "says hello", func() (domain.CaseSpec, error) {
		return domain.CaseSpec{Prompt: "say hello", Expectations: []string{"greets the user"}}, nil
	})
	disc.Register("tools", "calls_echo", "calls the echo tool", func() (domain.CaseSpec, error) {
		return domain.CaseSpec{Prompt: "call echo", ExpectedToolCalls: []string{"echo"}}, nil
	})

	histStore, err := history.New(t.TempDir())
	if err != nil {
		t.Fatalf("history.New: %v", err)
	}

	ledgerStore, err := ledger.NewStore(":memory:")
	if err != nil {
		t.Fatalf("ledger.NewStore: %v", err)
	}
	t.Cleanup(func() { _ = ledgerStore.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ledgerStore.Consume(ctx, histStore.Feed(), nil)

	toolReg, err := tooling.NewRegistry(context.Background(), nil)
	if err != nil {
		t.Fatalf("tooling.NewRegistry: %v", err)
	}
	toolReg.Register(fakeTool{})

	bus := eventbus.New(16)

	exec := pipeline.New(&fakeAgent{toolCall: "echo"}, fakeValidator{})
	jobs := jobmanager.New(disc, histStore, bus, exec, jobmanager.Config{Workers: 2})
	t.Cleanup(jobs.Close)

	factory := func(ctx context.Context, agentID, model string) (collab.StreamingAgent, error) {
		if agentID != "claude" {
			return nil, errUnknownAgent
		}
		return &fakeAgent{}, nil
	}
	relay := chat.New(factory, map[string][]string{"claude": {"claude-sonnet"}})

	srv, err := NewServer(Deps{
		Config:  &config.Config{},
		Jobs:    jobs,
		Bus:     bus,
		Disc:    disc,
		History: histStore,
		Ledger:  ledgerStore,
		Tools:   toolReg,
		Relay:   relay,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}
