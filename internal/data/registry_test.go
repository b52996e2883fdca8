package data

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

func newTestRegistry(now time.Time) *Registry {
	r := NewRegistry(nil, nil)
	r.SetClock(func() time.Time { return now })
	return r
}

func TestRegistry_OpenOrGetAndBind(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(now)

	if _, isNew := r.OpenOrGet("U1"); !isNew {
		t.Fatal("Expected new session for unknown user")
	}
	if err := r.Bind("U1", 42, now); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	thread, isNew := r.OpenOrGet("U1")
	if isNew || thread != 42 {
		t.Errorf("OpenOrGet = (%d, %v), want (42, false)", thread, isNew)
	}

	user, err := r.LookupByThread(42)
	if err != nil || user != "U1" {
		t.Errorf("LookupByThread(42) = (%q, %v), want U1", user, err)
	}
	if _, err := r.LookupThread("U2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestRegistry_BindConflict(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(now)

	if err := r.Bind("U1", 42, now); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	err := r.Bind("U1", 43, now)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Expected conflict on second thread, got %v", err)
	}
	var ce *domain.ConflictError
	if !errors.As(err, &ce) || ce.ExistingThread != 42 {
		t.Errorf("Expected ExistingThread 42, got %+v", ce)
	}

	if err := r.Bind("U2", 42, now); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected conflict on taken thread, got %v", err)
	}

	// First binding intact
	if thread, _ := r.LookupThread("U1"); thread != 42 {
		t.Errorf("Expected U1 still on 42, got %d", thread)
	}
	if _, err := r.LookupByThread(43); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Thread 43 must not be bound")
	}

	// Identical pair is idempotent
	if err := r.Bind("U1", 42, now); err != nil {
		t.Errorf("Expected idempotent bind, got %v", err)
	}
}

func TestRegistry_BijectionUnderOpenClose(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(now)

	for i := 0; i < 50; i++ {
		user := domain.UserID(fmt.Sprintf("U%d", i%7))
		thread := domain.ThreadID(100 + i%5)
		if i%3 == 0 {
			r.CloseByUser(user)
			continue
		}
		r.Bind(user, thread, now)

		users := make(map[domain.UserID]bool)
		threads := make(map[domain.ThreadID]bool)
		for _, s := range r.ListOpen() {
			if users[s.UserID] || threads[s.ThreadID] {
				t.Fatalf("Bijection broken at step %d: %+v", i, r.ListOpen())
			}
			users[s.UserID] = true
			threads[s.ThreadID] = true
		}
	}
}

func TestRegistry_CloseUnknown(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(now)
	r.Bind("U1", 42, now)
	r.LinkMessages(domain.MessageLink{ThreadID: 42, GroupMessageID: 10, UserMessageID: 20})

	if _, err := r.CloseByUser("nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := r.CloseByThread(99); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if r.Len() != 1 {
		t.Errorf("Expected registry unchanged, got %d sessions", r.Len())
	}
	if u, ok := r.ResolveGroupToUser(10); !ok || u != 20 {
		t.Errorf("Expected link to survive, got (%d, %v)", u, ok)
	}
}

func TestRegistry_ClosePurgesThreadLinks(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := newTestRegistry(created)
	r.Bind("U1", 42, created)
	r.Bind("U2", 43, created)
	r.LinkMessages(domain.MessageLink{ThreadID: 42, GroupMessageID: 10, UserMessageID: 20})
	r.LinkMessages(domain.MessageLink{ThreadID: 42, GroupMessageID: 11, UserMessageID: 21})
	r.LinkMessages(domain.MessageLink{ThreadID: 43, GroupMessageID: 12, UserMessageID: 5})

	session, err := r.CloseByThread(42)
	if err != nil {
		t.Fatalf("CloseByThread failed: %v", err)
	}
	if session.UserID != "U1" || !session.CreatedAt.Equal(created) {
		t.Errorf("Unexpected removed session: %+v", session)
	}

	for _, g := range []domain.MessageID{10, 11} {
		if _, ok := r.ResolveGroupToUser(g); ok {
			t.Errorf("Expected link %d purged", g)
		}
	}
	if u, ok := r.ResolveGroupToUser(12); !ok || u != 5 {
		t.Error("Links of thread 43 must survive")
	}
	if _, err := r.LookupThread("U1"); !errors.Is(err, domain.ErrNotFound) {
		t.Error("Expected U1 session removed")
	}
}

func TestRegistry_LinkOverwrite(t *testing.T) {
	r := newTestRegistry(time.Now())

	r.LinkMessages(domain.MessageLink{ThreadID: 42, GroupMessageID: 10, UserMessageID: 20})
	if u, _ := r.ResolveGroupToUser(10); u != 20 {
		t.Fatalf("Expected 20, got %d", u)
	}
	if g, _ := r.ResolveUserToGroup(20); g != 10 {
		t.Fatalf("Expected 10, got %d", g)
	}

	r.LinkMessages(domain.MessageLink{ThreadID: 42, GroupMessageID: 10, UserMessageID: 21})
	if u, _ := r.ResolveGroupToUser(10); u != 21 {
		t.Errorf("Expected forward lookup updated to 21, got %d", u)
	}
	if g, ok := r.ResolveUserToGroup(20); ok {
		t.Errorf("Expected no dangling reverse entry for 20, got %d", g)
	}
	if g, _ := r.ResolveUserToGroup(21); g != 10 {
		t.Errorf("Expected 21 -> 10, got %d", g)
	}

	// Re-pairing the user side drops the old group entry as well
	r.LinkMessages(domain.MessageLink{ThreadID: 42, GroupMessageID: 11, UserMessageID: 21})
	if _, ok := r.ResolveGroupToUser(10); ok {
		t.Error("Expected group 10 unlinked after 21 moved to 11")
	}
}

func TestRegistry_TouchUnknownThread(t *testing.T) {
	r := newTestRegistry(time.Now())
	r.Touch(77)
	if len(r.Snapshot().LastActivity) != 0 {
		t.Error("Touch on unknown thread must not record activity")
	}
}

func TestRegistry_IdleSinceBoundary(t *testing.T) {
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	threshold := 72 * time.Hour
	r := newTestRegistry(now)

	r.Bind("old", 1, now.Add(-threshold-time.Second))
	r.Bind("fresh", 2, now.Add(-threshold+time.Second))

	idle := r.IdleSince(threshold)
	if len(idle) != 1 || idle[0] != 1 {
		t.Errorf("IdleSince = %v, want [1]", idle)
	}

	r.Touch(1)
	if idle := r.IdleSince(threshold); len(idle) != 0 {
		t.Errorf("Expected no idle threads after touch, got %v", idle)
	}
}

func TestRegistry_ListOpenIsCopy(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(now)
	r.Bind("U2", 43, now)
	r.Bind("U1", 42, now)

	list := r.ListOpen()
	if len(list) != 2 || list[0].ThreadID != 42 || list[1].ThreadID != 43 {
		t.Fatalf("Unexpected list: %+v", list)
	}

	r.CloseByUser("U1")
	if len(list) != 2 {
		t.Error("Returned slice must not change after close")
	}
}
