// Package tooling exposes the agent-visible tool set for direct
// interactive invocation: introspection, schema, and a coercing
// synchronous/asynchronous call path, on the same mutex-guarded
// name-keyed map idiom internal/llm uses for providers, generalized to a
// tool registry with typed-argument coercion.
package tooling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ParamType names the wire type of one tool parameter.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
	ParamJSON   ParamType = "json" // arrays, objects: any collection type
)

// Param describes one tool parameter for introspection and coercion.
type Param struct {
	Name        string
	TypeName    ParamType
	Description string
	Required    bool
	Default     any
}

// Tool is one agent-visible callable. Invoke receives already-coerced
// arguments keyed by parameter name.
type Tool interface {
	Name() string
	Description() string
	Group() string
	Parameters() []Param
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Summary is the listTools projection.
type Summary struct {
	Name           string
	Description    string
	ParameterCount int
	Group          string
}

// Schema is the schema(name) projection.
type Schema struct {
	Name        string
	Description string
	Parameters  []Param
}

// InvokeResult is the invoke(name, args) response envelope. Exactly one
// of Result/Error is meaningful, discriminated by Success.
type InvokeResult struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Registry holds the current set of tools, reloadable via a Loader.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	loader Loader
}

// Loader produces the current tool set, e.g. from a plugin scan or a
// static in-process list. It mirrors discovery.Provider's reload seam.
type Loader func(ctx context.Context) ([]Tool, error)

// NewRegistry creates a Registry populated by an initial synchronous load
// from loader. loader may be nil for a registry populated solely via
// Register (embedding tools directly in the host binary).
func NewRegistry(ctx context.Context, loader Loader) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool), loader: loader}
	if loader != nil {
		if err := r.reloadLocked(ctx); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a tool directly, for embedding tools in the
// host binary rather than loading them from a plugin.
func (r *Registry) Register(t Tool) {
	if r == nil || t == nil {
		return
	}
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = make(map[string]Tool)
	}
	r.tools[name] = t
}

// ReloadTools invalidates the cached tool set and reloads it via Loader,
// the same "invalidate cached source, re-scan" mechanism discovery uses
// for tests.
func (r *Registry) ReloadTools(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloadLocked(ctx)
}

func (r *Registry) reloadLocked(ctx context.Context) error {
	if r.loader == nil {
		return nil
	}
	tools, err := r.loader(ctx)
	if err != nil {
		return fmt.Errorf("tooling: reload: %w", err)
	}
	fresh := make(map[string]Tool, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		name := strings.TrimSpace(t.Name())
		if name == "" {
			continue
		}
		fresh[name] = t
	}
	r.tools = fresh
	return nil
}

// ListTools returns a stable, name-sorted summary of every registered
// tool.
func (r *Registry) ListTools() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Summary{
			Name:           t.Name(),
			Description:    t.Description(),
			ParameterCount: len(t.Parameters()),
			Group:          t.Group(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Schema returns the full parameter schema for one tool.
func (r *Registry) Schema(name string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Schema{}, false
	}
	return Schema{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}, true
}

// Invoke coerces args against name's parameter schema and calls the tool.
// Coercion failure and tool panics/errors are both reported as a failed
// InvokeResult rather than as a Go error: only an unknown tool name is a
// genuine caller error.
func (r *Registry) Invoke(ctx context.Context, name string, rawArgs map[string]any) (InvokeResult, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return InvokeResult{}, fmt.Errorf("tooling: unknown tool %q", name)
	}

	coerced, err := coerceArgs(t.Parameters(), rawArgs)
	if err != nil {
		return InvokeResult{Success: false, Error: err.Error()}, nil
	}

	result, err := r.safeInvoke(ctx, t, coerced)
	if err != nil {
		return InvokeResult{Success: false, Error: err.Error()}, nil
	}
	return InvokeResult{Success: true, Result: result}, nil
}

func (r *Registry) safeInvoke(ctx context.Context, t Tool, args map[string]any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool panicked: %v", p)
		}
	}()
	return t.Invoke(ctx, args)
}
