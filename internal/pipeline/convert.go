package pipeline

import (
	"github.com/stellarlinkco/agentdeck/internal/collab"
	"github.com/stellarlinkco/agentdeck/internal/domain"
)

func toDomainToolCalls(in []collab.ToolCall) []domain.ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.ToolCall, len(in))
	for i, tc := range in {
		out[i] = domain.ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args}
	}
	return out
}

func toDomainMessages(in []collab.AgentMessage) []domain.Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Message, len(in))
	for i, m := range in {
		msg := domain.Message{
			Role:      m.Role,
			Content:   m.Content,
			ToolCalls: toDomainToolCalls(m.ToolCalls),
			ToolName:  m.ToolName,
		}
		if m.TotalToken > 0 {
			msg.TokenUsage = &domain.TokenUsage{Total: m.TotalToken}
		}
		out[i] = msg
	}
	return out
}

func toDomainResponse(in *collab.AgentResponse) *domain.AgentResponse {
	if in == nil {
		return nil
	}
	return &domain.AgentResponse{Messages: toDomainMessages(in.Messages)}
}
