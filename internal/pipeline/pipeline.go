// Package pipeline runs one discovered test to completion: it calls the
// user's agent, checks observed tool calls against the expected multiset,
// calls the validator, and classifies the outcome. A single deterministic
// pass/fail run, not a trial/pass@k evaluation loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stellarlinkco/agentdeck/internal/collab"
	"github.com/stellarlinkco/agentdeck/internal/discovery"
	"github.com/stellarlinkco/agentdeck/internal/domain"
)

// Executor runs tests against a fixed agent and validator pair.
type Executor struct {
	Agent     collab.Agent
	Validator collab.Validator
}

// New creates an Executor. agent must be non-nil; validator may be nil, in
// which case any non-empty expectations list is treated as automatically
// unmet (there is nothing to judge them).
//
// A validator that does not declare itself concurrency-safe (via an
// optional ConcurrentSafe() bool method) is automatically wrapped in a
// mutex, so callers never need to remember to serialize it themselves.
func New(agent collab.Agent, validator collab.Validator) *Executor {
	return &Executor{Agent: agent, Validator: serializeIfNeeded(validator)}
}

func serializeIfNeeded(v collab.Validator) collab.Validator {
	if v == nil {
		return nil
	}
	if aware, ok := v.(collab.ConcurrencyAware); ok && aware.ConcurrentSafe() {
		return v
	}
	return &mutexValidator{validator: v}
}

type mutexValidator struct {
	mu        sync.Mutex
	validator collab.Validator
}

func (m *mutexValidator) Judge(ctx context.Context, response *collab.AgentResponse, expectations []string) (*collab.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validator.Judge(ctx, response, expectations)
}

func (m *mutexValidator) ConcurrentSafe() bool { return true }

// Run executes descriptor's case function and returns the resulting
// TestResult. It never returns a non-nil error for failures internal to
// the test itself — those are reported as a failed TestResult with
// errorType=unexpected, per the pipeline's no-uncaught-exceptions contract.
// Run only returns an error for inputs the caller controls, such as a nil
// case function.
func (e *Executor) Run(ctx context.Context, descriptor domain.TestDescriptor, caseFn discovery.CaseFunc) (domain.TestResult, error) {
	if e == nil || e.Agent == nil {
		return domain.TestResult{}, errors.New("pipeline: nil executor or agent")
	}
	if caseFn == nil {
		return domain.TestResult{}, errors.New("pipeline: nil case function")
	}

	result := domain.TestResult{
		QualifiedName: descriptor.QualifiedName,
		Module:        descriptor.Module,
		Name:          descriptor.Name,
	}

	start := time.Now()
	defer func() {
		result.DurationSeconds = time.Since(start).Seconds()
		result.CompletedAt = time.Now()
	}()

	spec, err := caseFn()
	if err != nil {
		return e.fail(result, domain.ErrorUnexpected, err.Error()), nil
	}
	if spec.Prompt == "" && len(spec.Expectations) == 0 && len(spec.ExpectedToolCalls) == 0 {
		return e.fail(result, domain.ErrorUnexpected, "no case emitted"), nil
	}

	result.Prompt = spec.Prompt
	result.Expectations = spec.Expectations
	result.ExpectedToolCalls = spec.ExpectedToolCalls

	resp, err := e.safeQuery(ctx, spec.Prompt)
	if err != nil {
		return e.fail(result, domain.ErrorUnexpected, err.Error()), nil
	}

	domainResp := toDomainResponse(resp)
	result.Response = domainResp
	result.TotalTokens = sumTokens(domainResp)

	observed := observedToolCalls(domainResp)
	toolCallOK := subMultiset(spec.ExpectedToolCalls, observed)

	verdict, err := e.safeJudge(ctx, resp, spec.Expectations)
	if err != nil {
		return e.fail(result, domain.ErrorUnexpected, err.Error()), nil
	}

	if !toolCallOK {
		result.Unmet = verdict.Unmet
		result.FailureReasons = verdict.FailureReasons
		return e.fail(result, domain.ErrorToolCall, "expected tool call multiset not covered by observed calls"), nil
	}

	if len(verdict.Unmet) > 0 {
		result.Unmet = verdict.Unmet
		result.FailureReasons = verdict.FailureReasons
		return e.fail(result, domain.ErrorExpectation, verdict.Reasoning), nil
	}
	if !verdict.Success {
		result.FailureReasons = verdict.FailureReasons
		return e.fail(result, domain.ErrorValidation, verdict.Reasoning), nil
	}

	result.Passed = true
	result.Unmet = []string{}
	return result, nil
}

func (e *Executor) fail(result domain.TestResult, errType domain.ErrorType, text string) domain.TestResult {
	result.Passed = false
	result.ErrorType = errType
	result.ErrorText = text
	if result.Unmet == nil {
		result.Unmet = []string{}
	}
	return result
}

func (e *Executor) safeQuery(ctx context.Context, prompt string) (resp *collab.AgentResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panicked: %v", r)
		}
	}()
	return e.Agent.Query(ctx, prompt)
}

func (e *Executor) safeJudge(ctx context.Context, resp *collab.AgentResponse, expectations []string) (verdict *collab.Verdict, err error) {
	if len(expectations) == 0 {
		return &collab.Verdict{Success: true}, nil
	}
	if e.Validator == nil {
		return &collab.Verdict{Success: false, Reasoning: "no validator configured"}, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validator panicked: %v", r)
		}
	}()
	v, err := e.Validator.Judge(ctx, resp, expectations)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = &collab.Verdict{}
	}
	return v, nil
}

func sumTokens(resp *domain.AgentResponse) int {
	if resp == nil {
		return 0
	}
	total := 0
	for _, m := range resp.Messages {
		if m.TokenUsage != nil {
			total += m.TokenUsage.Total
		}
	}
	return total
}

func observedToolCalls(resp *domain.AgentResponse) []string {
	if resp == nil {
		return nil
	}
	var names []string
	for _, m := range resp.Messages {
		for _, tc := range m.ToolCalls {
			names = append(names, tc.Name)
		}
	}
	return names
}

// subMultiset reports whether expected is a sub-multiset of observed: every
// name in expected occurs in observed at least as many times.
func subMultiset(expected, observed []string) bool {
	if len(expected) == 0 {
		return true
	}
	counts := make(map[string]int, len(observed))
	for _, name := range observed {
		counts[name]++
	}
	for _, name := range expected {
		counts[name]--
		if counts[name] < 0 {
			return false
		}
	}
	return true
}
