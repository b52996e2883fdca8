package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
)

func newTestLedger(t *testing.T) *TicketLedger {
	t.Helper()
	ledger, err := NewTicketLedger(filepath.Join(t.TempDir(), "db", "tickets.db"))
	if err != nil {
		t.Fatalf("NewTicketLedger failed: %v", err)
	}
	t.Cleanup(func() { ledger.CloseDB() })
	return ledger
}

func TestTicketLedger_OpenGetClose(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	opened := time.Unix(1714564800, 0)

	err := ledger.Open(ctx, &domain.Ticket{
		ThreadID:         42,
		UserID:           "123456789",
		UserName:         "Alice",
		Username:         "alice",
		OpenedAt:         opened,
		OpeningMessageID: 7,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := ledger.SetMessages(ctx, 42, 100, 5); err != nil {
		t.Fatalf("SetMessages failed: %v", err)
	}

	got, err := ledger.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected ticket")
	}
	if got.UserID != "123456789" || got.UserName != "Alice" || got.Username != "alice" {
		t.Errorf("Unexpected profile: %+v", got)
	}
	if !got.OpenedAt.Equal(opened) || got.OpeningMessageID != 7 || got.CardMessageID != 100 || got.NoticeMessageID != 5 {
		t.Errorf("Unexpected ids/time: %+v", got)
	}
	if !got.IsOpen() {
		t.Error("Expected ticket open")
	}

	closed := opened.Add(90 * time.Second)
	if err := ledger.Close(ctx, 42, closed, domain.ClosedByUser, domain.OutcomeResolved); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	got, _ = ledger.Get(ctx, 42)
	if got.IsOpen() || !got.ClosedAt.Equal(closed) {
		t.Errorf("Expected closed at %v, got %+v", closed, got)
	}
	if got.ClosedBy != domain.ClosedByUser || got.Outcome != domain.OutcomeResolved {
		t.Errorf("Unexpected close record: %+v", got)
	}
}

func TestTicketLedger_GetUnknown(t *testing.T) {
	ledger := newTestLedger(t)

	got, err := ledger.Get(context.Background(), 999)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for unknown thread, got %+v", got)
	}
}

func TestTicketLedger_ListOpen(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	base := time.Unix(1714564800, 0)

	for i, thread := range []domain.ThreadID{43, 42, 44} {
		ledger.Open(ctx, &domain.Ticket{
			ThreadID: thread,
			UserID:   domain.UserIDFromInt(int64(thread)),
			OpenedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	ledger.Close(ctx, 44, base.Add(time.Hour), domain.ClosedBySystem, domain.OutcomeForciblyClosed)

	open, err := ledger.ListOpen(ctx)
	if err != nil {
		t.Fatalf("ListOpen failed: %v", err)
	}
	if len(open) != 2 || open[0].ThreadID != 43 || open[1].ThreadID != 42 {
		t.Errorf("Unexpected open tickets: %+v", open)
	}
}

func TestTicketLedger_ReopenedThreadReplacesRow(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)

	ledger.Open(ctx, &domain.Ticket{ThreadID: 42, UserID: "1", OpenedAt: time.Unix(100, 0)})
	ledger.Close(ctx, 42, time.Unix(200, 0), domain.ClosedBySupport, domain.OutcomeForciblyClosed)
	ledger.Open(ctx, &domain.Ticket{ThreadID: 42, UserID: "2", OpenedAt: time.Unix(300, 0)})

	got, _ := ledger.Get(ctx, 42)
	if got.UserID != "2" || !got.IsOpen() {
		t.Errorf("Expected fresh open row, got %+v", got)
	}
}
