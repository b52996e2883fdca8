package domain

import (
	"errors"
	"testing"
	"time"
)

func TestSession_IsIdle_Boundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	threshold := 72 * time.Hour

	stale := &Session{UserID: "U1", ThreadID: 42, LastActivityAt: now.Add(-threshold - time.Second)}
	if !stale.IsIdle(now, threshold) {
		t.Error("Expected session idle for threshold+1s to be idle")
	}

	fresh := &Session{UserID: "U2", ThreadID: 43, LastActivityAt: now.Add(-threshold + time.Second)}
	if fresh.IsIdle(now, threshold) {
		t.Error("Expected session idle for threshold-1s to be active")
	}

	exact := &Session{UserID: "U3", ThreadID: 44, LastActivityAt: now.Add(-threshold)}
	if exact.IsIdle(now, threshold) {
		t.Error("Expected session idle for exactly threshold to be active")
	}
}

func TestSession_Touch(t *testing.T) {
	oldTime := time.Now().Add(-1 * time.Hour)
	session := &Session{
		UserID:         "U1",
		ThreadID:       42,
		CreatedAt:      oldTime,
		LastActivityAt: oldTime,
	}

	now := time.Now()
	session.Touch(now)

	if !session.LastActivityAt.Equal(now) {
		t.Errorf("Expected LastActivityAt %v, got %v", now, session.LastActivityAt)
	}
	if !session.CreatedAt.Equal(oldTime) {
		t.Error("Expected CreatedAt to be unchanged")
	}
}

func TestUserID_ChatID(t *testing.T) {
	chatID, err := UserID("123456789012").ChatID()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if chatID != 123456789012 {
		t.Errorf("Expected 123456789012, got %d", chatID)
	}

	if _, err := UserID("alice").ChatID(); err == nil {
		t.Error("Expected error for non-numeric user id")
	}

	if got := UserIDFromInt(7000000001); got != "7000000001" {
		t.Errorf("Expected '7000000001', got '%s'", got)
	}
}

func TestConflictError_Is(t *testing.T) {
	err := error(&ConflictError{UserID: "U1", ThreadID: 7, ExistingThread: 42})
	if !errors.Is(err, ErrConflict) {
		t.Error("Expected ConflictError to match ErrConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("ConflictError must not match ErrNotFound")
	}
}

func TestDeliveryError_Retryable(t *testing.T) {
	cases := map[DeliveryKind]bool{
		DeliveryRateLimited: true,
		DeliveryTransient:   true,
		DeliveryForbidden:   false,
		DeliveryNotFound:    false,
		DeliveryTooOld:      false,
		DeliveryRejected:    false,
	}
	for kind, want := range cases {
		err := &DeliveryError{Op: "send", Kind: kind, Err: errors.New("boom")}
		if err.Retryable() != want {
			t.Errorf("%s: expected retryable=%v", kind, want)
		}
		if DeliveryKindOf(err) != kind {
			t.Errorf("%s: DeliveryKindOf returned %s", kind, DeliveryKindOf(err))
		}
	}
	if DeliveryKindOf(errors.New("plain")) != "" {
		t.Error("Expected empty kind for a plain error")
	}
}
