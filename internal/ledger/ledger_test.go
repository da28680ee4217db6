package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stellarlinkco/agentdeck/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Record_AggregatesWithinWindow(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC)
	if err := s.Record(ctx, domain.TestResult{QualifiedName: "m::test_a", Passed: true, DurationSeconds: 1.0, TotalTokens: 10, CompletedAt: at}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, domain.TestResult{QualifiedName: "m::test_a", Passed: false, DurationSeconds: 3.0, TotalTokens: 30, CompletedAt: at.Add(5 * time.Minute)}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	trend, err := s.Trend(ctx, "m::test_a")
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if len(trend) != 1 {
		t.Fatalf("Trend = %+v, want 1 window (same hour)", trend)
	}
	e := trend[0]
	if e.Total != 2 || e.Passed != 1 {
		t.Fatalf("entry = %+v, want total=2 passed=1", e)
	}
	if e.AvgDurationSeconds != 2.0 {
		t.Fatalf("AvgDurationSeconds = %v, want 2.0", e.AvgDurationSeconds)
	}
	if e.AvgTokens != 20.0 {
		t.Fatalf("AvgTokens = %v, want 20.0", e.AvgTokens)
	}
}

func TestStore_Record_SeparatesWindows(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s.Record(ctx, domain.TestResult{QualifiedName: "m::test_a", Passed: true, CompletedAt: base})
	s.Record(ctx, domain.TestResult{QualifiedName: "m::test_a", Passed: true, CompletedAt: base.Add(2 * time.Hour)})

	trend, err := s.Trend(ctx, "m::test_a")
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if len(trend) != 2 {
		t.Fatalf("Trend = %+v, want 2 separate windows", trend)
	}
	if !trend[0].WindowStart.Before(trend[1].WindowStart) {
		t.Fatalf("Trend not ordered oldest-first: %+v", trend)
	}
}

func TestStore_Consume_DrainsChannel(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	ch := make(chan domain.TestResult, 4)
	ch <- domain.TestResult{QualifiedName: "m::test_a", Passed: true}
	ch <- domain.TestResult{QualifiedName: "m::test_a", Passed: false}
	close(ch)

	s.Consume(context.Background(), ch, nil)

	trend, err := s.Trend(context.Background(), "m::test_a")
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	if len(trend) != 1 || trend[0].Total != 2 {
		t.Fatalf("trend = %+v, want one window with total=2", trend)
	}
}

func TestStore_Rebuild(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	s.Record(ctx, domain.TestResult{QualifiedName: "m::test_a", Passed: true})

	results := []domain.TestResult{
		{QualifiedName: "m::test_a", Passed: false},
		{QualifiedName: "m::test_b", Passed: true},
	}
	if err := s.Rebuild(ctx, func(yield func(domain.TestResult) bool) {
		for _, r := range results {
			if !yield(r) {
				return
			}
		}
	}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	trendA, _ := s.Trend(ctx, "m::test_a")
	if len(trendA) != 1 || trendA[0].Total != 1 || trendA[0].Passed != 0 {
		t.Fatalf("trendA = %+v, want rebuilt (not accumulated) state", trendA)
	}
	trendB, _ := s.Trend(ctx, "m::test_b")
	if len(trendB) != 1 || trendB[0].Passed != 1 {
		t.Fatalf("trendB = %+v", trendB)
	}
}
