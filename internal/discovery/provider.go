// Package discovery enumerates test functions from a user project and
// invalidates cached code on demand, per the plugin-interface seam
// described in the design notes: the core never assumes in-process code
// mutation.
package discovery

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/stellarlinkco/agentdeck/internal/domain"
)

// CaseFunc is a discovered test function. It runs the user's test body and
// returns the single CaseSpec it emits.
type CaseFunc func() (domain.CaseSpec, error)

// Provider is the seam the job manager depends on. Implementations MUST be
// safe for concurrent ListTests calls and MUST serialize Reload against
// ListTests.
type Provider interface {
	ListTests(ctx context.Context) (Result, error)
	Reload(ctx context.Context) error
}

// Result is a discovery scan outcome: partial results are returned for
// artifacts that loaded successfully even when others failed.
type Result struct {
	Tests     []domain.TestDescriptor
	ErrorText string
}

// Case looks up the CaseFunc for a descriptor's qualified name. Returns
// false if the test is unknown (e.g. the set changed between scan and
// lookup).
type CaseLookup interface {
	Case(qualifiedName string) (CaseFunc, bool)
}

func qualifiedName(module, name string) string {
	return module + "::" + name
}

// sortDescriptors orders descriptors by (module, name) as required by the
// listTests contract.
func sortDescriptors(d []domain.TestDescriptor) {
	sort.Slice(d, func(i, j int) bool {
		if d[i].Module != d[j].Module {
			return d[i].Module < d[j].Module
		}
		return d[i].Name < d[j].Name
	})
}

// singleflightScan ensures the second caller of an in-flight scan observes
// the first caller's result instead of running a redundant scan. No
// dependency here imports golang.org/x/sync/singleflight, so this narrow
// seam is hand-rolled rather than reaching for an unimported package.
type singleflightScan struct {
	mu      sync.Mutex
	inFlC   chan struct{}
	last    Result
	lastErr error
}

func (s *singleflightScan) do(fn func() (Result, error)) (Result, error) {
	s.mu.Lock()
	if s.inFlC != nil {
		ch := s.inFlC
		s.mu.Unlock()
		<-ch
		s.mu.Lock()
		r, err := s.last, s.lastErr
		s.mu.Unlock()
		return r, err
	}
	ch := make(chan struct{})
	s.inFlC = ch
	s.mu.Unlock()

	r, err := fn()

	s.mu.Lock()
	s.last, s.lastErr = r, err
	s.inFlC = nil
	s.mu.Unlock()
	close(ch)
	return r, err
}

func trimAll(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
