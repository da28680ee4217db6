package agentref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/stellarlinkco/agentdeck/internal/collab"
	"github.com/stellarlinkco/agentdeck/internal/llm"
)

// Validator judges an AgentResponse against free-text expectations by
// asking an llm.Provider to grade the transcript and return JSON: a
// text/template prompt plus llm.ParseJSON to pull a structured verdict out
// of free-form model output.
type Validator struct {
	Provider llm.Provider
	System   string
}

// NewValidator builds a Validator. provider must be non-nil.
func NewValidator(provider llm.Provider) *Validator {
	return &Validator{Provider: provider}
}

// ConcurrentSafe reports false: an llm.Provider's underlying HTTP client is
// not guaranteed safe for the pipeline's concurrent judge calls, so
// pipeline.New wraps Validator in a mutex by default.
func (v *Validator) ConcurrentSafe() bool { return false }

const judgePromptTemplate = `You are grading whether an AI agent's response satisfies a list of expectations.

## Conversation transcript
{{.Transcript}}

## Expectations
{{range .Expectations}}- {{.}}
{{end}}

## Instructions
List every expectation the transcript fails to satisfy, using the expectation's
exact wording. Output ONLY valid JSON in this exact format:
{"unmet": ["<unmet expectation, verbatim>"], "reasoning": "<one paragraph>"}
If every expectation is satisfied, "unmet" must be an empty array.`

var judgeTmpl = template.Must(template.New("judge").Parse(judgePromptTemplate))

type judgePromptData struct {
	Transcript   string
	Expectations []string
}

type judgeOutput struct {
	Unmet     []string `json:"unmet"`
	Reasoning string   `json:"reasoning"`
}

// Judge implements collab.Validator.
func (v *Validator) Judge(ctx context.Context, response *collab.AgentResponse, expectations []string) (*collab.Verdict, error) {
	if v == nil || v.Provider == nil {
		return nil, errors.New("agentref: nil validator or provider")
	}

	var buf bytes.Buffer
	if err := judgeTmpl.Execute(&buf, judgePromptData{
		Transcript:   transcript(response),
		Expectations: expectations,
	}); err != nil {
		return nil, fmt.Errorf("agentref: render judge prompt: %w", err)
	}

	resp, err := v.Provider.Complete(ctx, &llm.Request{
		Messages:  []llm.Message{{Role: "user", Content: buf.String()}},
		System:    v.System,
		MaxTokens: 512,
	})
	if err != nil {
		return nil, fmt.Errorf("agentref: judge: %w", err)
	}

	raw := strings.TrimSpace(llm.Text(resp))
	var out judgeOutput
	if err := llm.ParseJSON(raw, &out); err != nil {
		return &collab.Verdict{
			Success:        false,
			Reasoning:      "invalid judge output: " + err.Error(),
			Unmet:          []string{},
			FailureReasons: map[string]string{"_judge": raw},
		}, nil
	}

	reasoning := strings.TrimSpace(out.Reasoning)
	if reasoning == "" {
		reasoning = "no reasoning provided"
	}
	unmet := out.Unmet
	if unmet == nil {
		unmet = []string{}
	}
	failureReasons := make(map[string]string, len(unmet))
	for _, u := range unmet {
		failureReasons[u] = reasoning
	}

	return &collab.Verdict{
		Success:        len(unmet) == 0,
		Reasoning:      reasoning,
		Unmet:          unmet,
		FailureReasons: failureReasons,
	}, nil
}

func transcript(response *collab.AgentResponse) string {
	if response == nil {
		return ""
	}
	var sb strings.Builder
	for _, m := range response.Messages {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(&sb, "  tool_call: %s(%v)\n", tc.Name, tc.Args)
		}
	}
	return sb.String()
}

