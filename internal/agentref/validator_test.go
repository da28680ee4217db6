package agentref

import (
	"context"
	"testing"

	"github.com/stellarlinkco/agentdeck/internal/collab"
	"github.com/stellarlinkco/agentdeck/internal/llm"
)

func TestValidator_Judge_ParsesJSONVerdict(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{name: "fake", completeFn: func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return textResponse(`{"unmet": ["price is numeric"], "reasoning": "the price field was a string"}`), nil
	}}

	v := NewValidator(provider)
	resp := &collab.AgentResponse{Messages: []collab.AgentMessage{{Role: "ai", Content: "the price is \"ten\""}}}

	verdict, err := v.Judge(context.Background(), resp, []string{"price is numeric"})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if verdict.Success {
		t.Fatalf("verdict.Success = true, want false")
	}
	if len(verdict.Unmet) != 1 || verdict.Unmet[0] != "price is numeric" {
		t.Fatalf("verdict.Unmet = %v", verdict.Unmet)
	}
	if verdict.FailureReasons["price is numeric"] == "" {
		t.Fatalf("verdict.FailureReasons missing entry")
	}
}

func TestValidator_Judge_AllSatisfied(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{name: "fake", completeFn: func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return textResponse(`{"unmet": [], "reasoning": "looks good"}`), nil
	}}

	v := NewValidator(provider)
	resp := &collab.AgentResponse{Messages: []collab.AgentMessage{{Role: "ai", Content: "42"}}}

	verdict, err := v.Judge(context.Background(), resp, []string{"price is numeric"})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if !verdict.Success {
		t.Fatalf("verdict.Success = false, want true")
	}
}

func TestValidator_Judge_InvalidJSONBecomesFailure(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{name: "fake", completeFn: func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return textResponse("not json at all"), nil
	}}

	v := NewValidator(provider)
	resp := &collab.AgentResponse{Messages: []collab.AgentMessage{{Role: "ai", Content: "x"}}}

	verdict, err := v.Judge(context.Background(), resp, []string{"anything"})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if verdict.Success {
		t.Fatalf("verdict.Success = true, want false for invalid judge output")
	}
}
