package discovery

import (
	"context"
	"strings"
	"sync"

	"github.com/stellarlinkco/agentdeck/internal/domain"
)

// entry pairs a registered test with its case function and docstring.
type entry struct {
	descriptor domain.TestDescriptor
	fn         CaseFunc
}

// StaticProvider is a registry-style Provider for embedding cases directly
// in the host binary, and for tests: a name-keyed map guarded by a mutex,
// with register-wins-last-write semantics.
type StaticProvider struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewStaticProvider creates an empty registry.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{entries: make(map[string]entry)}
}

// Register adds or replaces a test. Both module and name must be
// non-empty.
func (p *StaticProvider) Register(module, name, docstring string, fn CaseFunc) {
	if p == nil || fn == nil {
		return
	}
	module = strings.TrimSpace(module)
	name = strings.TrimSpace(name)
	if module == "" || name == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.entries == nil {
		p.entries = make(map[string]entry)
	}
	qn := qualifiedName(module, name)
	p.entries[qn] = entry{
		descriptor: domain.TestDescriptor{
			QualifiedName: qn,
			Module:        module,
			Name:          name,
			Docstring:     strings.TrimSpace(docstring),
		},
		fn: fn,
	}
}

// Unregister drops a previously registered test, if present.
func (p *StaticProvider) Unregister(qualifiedName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, qualifiedName)
}

// ListTests returns a stable, sorted snapshot of the registry.
func (p *StaticProvider) ListTests(ctx context.Context) (Result, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.TestDescriptor, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.descriptor)
	}
	sortDescriptors(out)
	return Result{Tests: out}, nil
}

// Case looks up a registered CaseFunc by qualified name.
func (p *StaticProvider) Case(qualifiedName string) (CaseFunc, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[qualifiedName]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// Reload is a no-op for a StaticProvider: registration already happens at
// process startup, so there is no cached source artifact to invalidate.
func (p *StaticProvider) Reload(ctx context.Context) error {
	return nil
}
