package history

import (
	"testing"

	"github.com/stellarlinkco/agentdeck/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStore_AppendAndList(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	qn := "billing::test_refund"
	if err := s.Append(qn, domain.TestResult{QualifiedName: qn, Passed: true}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(qn, domain.TestResult{QualifiedName: qn, Passed: false, ErrorType: domain.ErrorToolCall}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	results, err := s.List(qn)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("List: got %d results, want 2", len(results))
	}
	if !results[0].Passed || results[1].Passed {
		t.Fatalf("List order wrong: %+v", results)
	}
}

func TestStore_ListAll_ReturnsLatest(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	qn := "m::test_a"
	s.Append(qn, domain.TestResult{QualifiedName: qn, Passed: false})
	s.Append(qn, domain.TestResult{QualifiedName: qn, Passed: true})

	all, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	r, ok := all[qn]
	if !ok {
		t.Fatalf("ListAll: missing %q", qn)
	}
	if !r.Passed {
		t.Fatalf("ListAll: got stale entry, want latest (passed=true)")
	}
}

func TestStore_DeleteAt(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	qn := "m::test_a"
	for i := 0; i < 3; i++ {
		s.Append(qn, domain.TestResult{QualifiedName: qn, TotalTokens: i})
	}
	if err := s.DeleteAt(qn, 1); err != nil {
		t.Fatalf("DeleteAt: %v", err)
	}
	results, _ := s.List(qn)
	if len(results) != 2 || results[0].TotalTokens != 0 || results[1].TotalTokens != 2 {
		t.Fatalf("results after delete = %+v", results)
	}

	if err := s.DeleteAt(qn, 5); err == nil {
		t.Fatalf("DeleteAt: want error for out-of-range index")
	}
}

func TestStore_Truncate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	qn := "m::test_a"
	s.Append(qn, domain.TestResult{QualifiedName: qn})
	if err := s.Truncate(qn); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	results, err := s.List(qn)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("List after truncate = %+v, want empty", results)
	}
}

func TestStore_TruncateAll(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	s.Append("a::test_1", domain.TestResult{})
	s.Append("b::test_2", domain.TestResult{})
	if err := s.TruncateAll(); err != nil {
		t.Fatalf("TruncateAll: %v", err)
	}
	all, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("ListAll after TruncateAll = %+v, want empty", all)
	}
}

func TestStore_List_UnknownNameIsEmptyNotError(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	results, err := s.List("nothing::test_here")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if results != nil {
		t.Fatalf("List = %+v, want nil", results)
	}
}
