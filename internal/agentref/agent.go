package agentref

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stellarlinkco/agentdeck/internal/collab"
	"github.com/stellarlinkco/agentdeck/internal/llm"
	"github.com/stellarlinkco/agentdeck/internal/tooling"
)

// Agent adapts an llm.Provider, and optionally a tool registry, into the
// two shapes the core calls into: collab.Agent for the per-test pipeline
// (one-shot query, full tool loop) and collab.StreamingAgent for the chat
// relay (token-by-token, with explicit tool_call/tool_output events).
type Agent struct {
	Provider  llm.Provider
	Tools     ToolExecutor
	System    string
	MaxTokens int
	MaxSteps  int
}

// New builds an Agent. tools may be nil for agents that never call tools.
func New(provider llm.Provider, tools ToolExecutor, system string) *Agent {
	return &Agent{Provider: provider, Tools: tools, System: system}
}

func (a *Agent) maxTokens() int {
	if a.MaxTokens > 0 {
		return a.MaxTokens
	}
	return defaultMaxTokens
}

func (a *Agent) maxSteps() int {
	if a.MaxSteps > 0 {
		return a.MaxSteps
	}
	return defaultMaxSteps
}

// Query implements collab.Agent. When the provider supports a tool loop and
// tools are configured, it runs the full multi-turn loop and returns one
// AgentMessage per model turn; otherwise it's a single round-trip.
func (a *Agent) Query(ctx context.Context, prompt string) (*collab.AgentResponse, error) {
	return a.respond(ctx, []llm.Message{{Role: "user", Content: prompt}})
}

func (a *Agent) respond(ctx context.Context, messages []llm.Message) (*collab.AgentResponse, error) {
	if a == nil || a.Provider == nil {
		return nil, errors.New("agentref: nil agent or provider")
	}

	req := &llm.Request{
		Messages:  messages,
		System:    a.System,
		MaxTokens: a.maxTokens(),
		Tools:     toolDefinitions(a.Tools),
	}

	if len(req.Tools) > 0 && a.Tools != nil {
		if loop, ok := a.Provider.(llm.ToolLoopProvider); ok {
			return a.runToolLoop(ctx, loop, req)
		}
	}

	resp, err := a.Provider.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return &collab.AgentResponse{Messages: []collab.AgentMessage{messageFromResponse(resp)}}, nil
}

func (a *Agent) runToolLoop(ctx context.Context, loop llm.ToolLoopProvider, req *llm.Request) (*collab.AgentResponse, error) {
	executor := func(tu llm.ToolUse) (string, error) {
		result, err := a.Tools.Invoke(ctx, tu.Name, tu.Input)
		if err != nil {
			return "", err
		}
		if !result.Success {
			return "", errors.New(result.Error)
		}
		b, err := json.Marshal(result.Result)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	mt, err := loop.CompleteMultiTurn(ctx, req, executor, a.maxSteps())
	if mt == nil || len(mt.AllResponses) == 0 {
		if err != nil {
			return nil, err
		}
		return nil, errors.New("agentref: empty tool-loop transcript")
	}

	out := &collab.AgentResponse{Messages: make([]collab.AgentMessage, 0, len(mt.AllResponses))}
	for _, resp := range mt.AllResponses {
		out.Messages = append(out.Messages, messageFromResponse(resp))
	}
	return out, err
}

// Stream implements collab.StreamingAgent, replaying the agent's responses
// as a token/tool_call/tool_output/end chunk sequence. The underlying
// llm.Provider calls are not themselves streamed over the wire (no example
// in the retrieved pack shows the SDK's streaming surface); this runs its
// own bounded tool loop one round-trip at a time and fragments each text
// response into word-sized tokens, which reproduces the chat relay's
// documented event ordering without guessing at an unverified SDK shape.
func (a *Agent) Stream(ctx context.Context, history []collab.Message) (<-chan collab.Chunk, error) {
	if a == nil || a.Provider == nil {
		return nil, errors.New("agentref: nil agent or provider")
	}

	out := make(chan collab.Chunk, 32)
	go func() {
		defer close(out)

		messages := toLLMMessages(history)
		tools := toolDefinitions(a.Tools)

		for step := 0; step < a.maxSteps(); step++ {
			req := &llm.Request{Messages: messages, System: a.System, MaxTokens: a.maxTokens(), Tools: tools}
			resp, err := a.Provider.Complete(ctx, req)
			if err != nil {
				send(ctx, out, collab.Chunk{Kind: collab.ChunkError, Err: err})
				return
			}

			text := llm.Text(resp)
			for _, tok := range splitTokens(text) {
				if !send(ctx, out, collab.Chunk{Kind: collab.ChunkToken, Content: tok}) {
					return
				}
			}

			calls := toolUseBlocks(resp)
			if len(calls) == 0 || a.Tools == nil {
				send(ctx, out, collab.Chunk{Kind: collab.ChunkEnd})
				return
			}

			messages = append(messages, llm.Message{Role: "assistant", Content: text})
			for _, tc := range calls {
				if !send(ctx, out, collab.Chunk{Kind: collab.ChunkToolCall, ToolName: tc.Name, ToolCallID: tc.ID, ToolArgs: tc.Input}) {
					return
				}
				result, invokeErr := a.Tools.Invoke(ctx, tc.Name, tc.Input)
				content := toolResultContent(result, invokeErr)
				if !send(ctx, out, collab.Chunk{Kind: collab.ChunkToolOutput, ToolName: tc.Name, ToolCallID: tc.ID, Content: content}) {
					return
				}
				messages = append(messages, llm.Message{Role: "user", Content: fmt.Sprintf("[tool_result %s] %s", tc.Name, content)})
			}
		}

		send(ctx, out, collab.Chunk{Kind: collab.ChunkEnd})
	}()

	return out, nil
}

func toolResultContent(result tooling.InvokeResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if !result.Success {
		return result.Error
	}
	b, marshalErr := json.Marshal(result.Result)
	if marshalErr != nil {
		return fmt.Sprintf("%v", result.Result)
	}
	return string(b)
}

func toLLMMessages(history []collab.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		role := "user"
		switch m.Role {
		case "ai", "assistant":
			role = "assistant"
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

func splitTokens(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.SplitAfter(s, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
