package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"uplite/internal/domain"
	"uplite/internal/repo/memory"
)

// fake checker you can control
type fakeChecker struct {
	calls   atomic.Int64
	out     domain.CheckResult
	block   chan struct{} // when set, Check waits until closed
	panicit bool
}

func (f *fakeChecker) Check(ctx context.Context, t domain.Target) domain.CheckResult {
	f.calls.Add(1)
	if f.panicit {
		panic("probe exploded")
	}
	if f.block != nil {
		<-f.block
	}
	out := f.out
	out.CheckedAt = time.Now().UTC()
	return out
}

func setup(t *testing.T, chk *fakeChecker) (*Monitor, *memory.Store, *domain.Target) {
	t.Helper()
	store := memory.New(0)
	tgt := &domain.Target{Name: "web", Kind: domain.KindHTTP, Address: "https://example.com", Active: true}
	if err := store.Create(context.Background(), tgt); err != nil {
		t.Fatalf("Create: %v", err)
	}
	m := NewMonitor(zap.NewNop(), store, store, chk, time.Minute, 10*time.Millisecond, 4)
	return m, store, tgt
}

func TestMonitor_CycleRecordsResultAndCachesStatus(t *testing.T) {
	ms := 12.5
	chk := &fakeChecker{out: domain.CheckResult{Status: domain.StatusUp, ResponseTime: &ms}}
	m, store, tgt := setup(t, chk)

	m.runCycle(context.Background())

	recs, err := store.Range(context.Background(), tgt.ID, time.Time{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(recs) != 1 || recs[0].Status != domain.StatusUp {
		t.Fatalf("want one UP record, got %+v", recs)
	}
	got, err := store.Get(context.Background(), tgt.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastStatus != domain.StatusUp || got.LastCheck == nil {
		t.Fatalf("cached status not updated: %+v", got)
	}
	if got.LastResponseTime == nil || *got.LastResponseTime != ms {
		t.Fatalf("cached latency wrong: %v", got.LastResponseTime)
	}
}

func TestMonitor_SkipsInactiveAndNotDue(t *testing.T) {
	chk := &fakeChecker{out: domain.CheckResult{Status: domain.StatusUp}}
	m, store, tgt := setup(t, chk)

	// Fresh last check within the interval: not due.
	recent := time.Now().UTC()
	if err := store.UpdateStatus(context.Background(), tgt.ID, domain.CheckResult{
		Status: domain.StatusUp, CheckedAt: recent,
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	m.runCycle(context.Background())
	if n := chk.calls.Load(); n != 0 {
		t.Fatalf("not-due target checked %d times", n)
	}

	// Stale last check: due again.
	stale := time.Now().UTC().Add(-2 * time.Minute)
	if err := store.UpdateStatus(context.Background(), tgt.ID, domain.CheckResult{
		Status: domain.StatusUp, CheckedAt: stale,
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	m.runCycle(context.Background())
	if n := chk.calls.Load(); n != 1 {
		t.Fatalf("due target checked %d times, want 1", n)
	}
}

func TestMonitor_SkipsTargetStillInFlight(t *testing.T) {
	chk := &fakeChecker{
		out:   domain.CheckResult{Status: domain.StatusUp},
		block: make(chan struct{}),
	}
	m, store, tgt := setup(t, chk)

	done := make(chan struct{})
	go func() {
		m.runCycle(context.Background())
		close(done)
	}()

	// Wait for the blocked check to be in flight.
	deadline := time.After(2 * time.Second)
	for chk.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("first check never started")
		case <-time.After(time.Millisecond):
		}
	}

	// A second cycle must skip the busy target instead of queueing.
	m.runCycle(context.Background())
	if n := chk.calls.Load(); n != 1 {
		t.Fatalf("overlapping check ran %d times, want 1", n)
	}

	close(chk.block)
	<-done

	recs, _ := store.Range(context.Background(), tgt.ID, time.Time{})
	if len(recs) != 1 {
		t.Fatalf("want exactly one record, got %d", len(recs))
	}
}

func TestMonitor_PanicBecomesUnknownResult(t *testing.T) {
	chk := &fakeChecker{panicit: true}
	m, store, tgt := setup(t, chk)

	m.runCycle(context.Background())

	recs, err := store.Range(context.Background(), tgt.ID, time.Time{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(recs) != 1 || recs[0].Status != domain.StatusUnknown {
		t.Fatalf("want one UNKNOWN record, got %+v", recs)
	}
	if recs[0].Error == "" {
		t.Fatalf("want panic text recorded")
	}
	got, _ := store.Get(context.Background(), tgt.ID)
	if got.LastStatus != domain.StatusUnknown {
		t.Fatalf("cached status = %q, want unknown", got.LastStatus)
	}
}

func TestSweeper_DeletesBeyondRetention(t *testing.T) {
	store := memory.New(365 * 24 * time.Hour)
	tgt := &domain.Target{Name: "web", Kind: domain.KindHTTP, Address: "https://example.com", Active: true}
	if err := store.Create(context.Background(), tgt); err != nil {
		t.Fatalf("Create: %v", err)
	}
	old := domain.CheckResult{Status: domain.StatusUp, CheckedAt: time.Now().UTC().Add(-8 * 24 * time.Hour)}
	fresh := domain.CheckResult{Status: domain.StatusUp, CheckedAt: time.Now().UTC()}
	if _, err := store.Append(context.Background(), tgt.ID, old); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := store.Append(context.Background(), tgt.ID, fresh); err != nil {
		t.Fatalf("Append: %v", err)
	}

	s := NewSweeper(zap.NewNop(), store, 7*24*time.Hour)
	s.Sweep()

	recs, _ := store.Range(context.Background(), tgt.ID, time.Time{})
	if len(recs) != 1 || !recs[0].CheckedAt.Equal(fresh.CheckedAt) {
		t.Fatalf("sweep kept wrong records: %+v", recs)
	}
}
