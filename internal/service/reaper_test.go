package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

type mockIdleSource struct {
	idle      []domain.ThreadID
	threshold time.Duration
}

func (m *mockIdleSource) IdleSince(threshold time.Duration) []domain.ThreadID {
	m.threshold = threshold
	return m.idle
}

type closeCall struct {
	thread  domain.ThreadID
	by      domain.ClosedBy
	outcome domain.Outcome
}

type mockCloser struct {
	mu    sync.Mutex
	calls []closeCall
	fail  map[domain.ThreadID]error
	panic domain.ThreadID
}

func (m *mockCloser) CloseTicket(ctx context.Context, thread domain.ThreadID, by domain.ClosedBy, outcome domain.Outcome) error {
	m.mu.Lock()
	m.calls = append(m.calls, closeCall{thread, by, outcome})
	m.mu.Unlock()
	if thread == m.panic {
		panic("boom")
	}
	return m.fail[thread]
}

func TestReap_ClosesIdleThreads(t *testing.T) {
	source := &mockIdleSource{idle: []domain.ThreadID{3, 5, 8, 13}}
	closer := &mockCloser{
		fail: map[domain.ThreadID]error{
			5: errors.New("network down"),
			8: domain.ErrNotFound,
		},
		panic: 13,
	}
	threshold := 72 * time.Hour
	r := NewReaper(source, closer, threshold, time.Minute, nil)

	closed := r.Reap(context.Background())

	if closed != 1 {
		t.Errorf("Expected 1 closed, got %d", closed)
	}
	if source.threshold != threshold {
		t.Errorf("Expected threshold %v, got %v", threshold, source.threshold)
	}
	if len(closer.calls) != 4 {
		t.Fatalf("Expected every idle thread attempted, got %+v", closer.calls)
	}
	for _, c := range closer.calls {
		if c.by != domain.ClosedBySystem || c.outcome != domain.OutcomeForciblyClosed {
			t.Errorf("Unexpected close call: %+v", c)
		}
	}
}

func TestReap_NothingIdle(t *testing.T) {
	closer := &mockCloser{}
	r := NewReaper(&mockIdleSource{}, closer, time.Hour, 0, nil)

	if n := r.Reap(context.Background()); n != 0 {
		t.Errorf("Expected 0, got %d", n)
	}
	if r.interval != DefaultReapInterval {
		t.Errorf("Expected default interval, got %v", r.interval)
	}
}

func TestReap_StopsOnCanceledContext(t *testing.T) {
	closer := &mockCloser{}
	r := NewReaper(&mockIdleSource{idle: []domain.ThreadID{1, 2}}, closer, time.Hour, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Reap(ctx)

	if len(closer.calls) != 0 {
		t.Errorf("Expected no closes after cancel, got %+v", closer.calls)
	}
}

func TestReaper_Loop(t *testing.T) {
	closer := &mockCloser{}
	r := NewReaper(&mockIdleSource{idle: []domain.ThreadID{7}}, closer, time.Hour, 10*time.Millisecond, nil)

	r.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		closer.mu.Lock()
		n := len(closer.calls)
		closer.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()

	closer.mu.Lock()
	defer closer.mu.Unlock()
	if len(closer.calls) == 0 {
		t.Error("Expected the loop to run a scan")
	}
}
