// Package agentref provides reference implementations of the collab.Agent,
// collab.StreamingAgent, and collab.Validator collaborator interfaces,
// wrapping the llm.Provider abstraction (Claude/OpenAI) so the core can be
// demoed and integration-tested without a user-supplied agent. The
// validator's prompt-template-plus-JSON-verdict-parsing approach and the
// agent's provider/tool-loop shape both build directly on internal/llm.
package agentref

import (
	"context"
	"sort"

	"github.com/stellarlinkco/agentdeck/internal/collab"
	"github.com/stellarlinkco/agentdeck/internal/llm"
	"github.com/stellarlinkco/agentdeck/internal/tooling"
)

const (
	defaultMaxTokens = 1024
	defaultMaxSteps  = 6
)

// ToolExecutor is the narrow surface Agent needs from a tool registry: list
// schemas to advertise to the model, then invoke by name when the model asks
// for one. *tooling.Registry satisfies this.
type ToolExecutor interface {
	ListTools() []tooling.Summary
	Schema(name string) (tooling.Schema, bool)
	Invoke(ctx context.Context, name string, args map[string]any) (tooling.InvokeResult, error)
}

func toolDefinitions(tools ToolExecutor) []llm.ToolDefinition {
	if tools == nil {
		return nil
	}
	summaries := tools.ListTools()
	defs := make([]llm.ToolDefinition, 0, len(summaries))
	for _, s := range summaries {
		schema, ok := tools.Schema(s.Name)
		if !ok {
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        schema.Name,
			Description: schema.Description,
			InputSchema: paramsToJSONSchema(schema.Parameters),
		})
	}
	return defs
}

func paramsToJSONSchema(params []tooling.Param) map[string]any {
	props := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		props[p.Name] = map[string]any{
			"type":        jsonSchemaType(p.TypeName),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func jsonSchemaType(t tooling.ParamType) string {
	switch t {
	case tooling.ParamInt:
		return "integer"
	case tooling.ParamFloat:
		return "number"
	case tooling.ParamBool:
		return "boolean"
	case tooling.ParamJSON:
		return "object"
	default:
		return "string"
	}
}

func messageFromResponse(resp *llm.Response) collab.AgentMessage {
	m := collab.AgentMessage{Role: "ai"}
	if resp == nil {
		return m
	}
	m.Content = llm.Text(resp)
	m.TotalToken = resp.Usage.InputTokens + resp.Usage.OutputTokens
	for _, b := range resp.Content {
		if b.Type == "tool_use" {
			m.ToolCalls = append(m.ToolCalls, collab.ToolCall{ID: b.ID, Name: b.Name, Args: b.Input})
		}
	}
	return m
}

func toolUseBlocks(resp *llm.Response) []llm.ToolUse {
	if resp == nil {
		return nil
	}
	var out []llm.ToolUse
	for _, b := range resp.Content {
		if b.Type == "tool_use" {
			out = append(out, llm.ToolUse{ID: b.ID, Name: b.Name, Input: b.Input})
		}
	}
	return out
}

func send(ctx context.Context, out chan<- collab.Chunk, c collab.Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
