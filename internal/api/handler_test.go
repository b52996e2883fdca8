package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
	"github.com/relaydesk/helpdesk-bridge/internal/biz/usecase"
)

// MockTicketService implements TicketService for testing
type MockTicketService struct {
	open     []usecase.OpenTicket
	closed   []domain.ThreadID
	closeErr error
}

func (m *MockTicketService) ListOpen(ctx context.Context) []usecase.OpenTicket {
	return m.open
}

func (m *MockTicketService) CloseBySupport(ctx context.Context, thread domain.ThreadID) error {
	if m.closeErr != nil {
		return m.closeErr
	}
	m.closed = append(m.closed, thread)
	return nil
}

func newTestServer(svc *MockTicketService) (*Server, time.Time) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewServer(svc, -1001234567890, 0, nil)
	s.now = func() time.Time { return now }
	return s, now
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(&MockTicketService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("Unexpected health response: %d %q", w.Code, w.Body.String())
	}
}

func TestListTickets(t *testing.T) {
	svc := &MockTicketService{}
	s, now := newTestServer(svc)
	svc.open = []usecase.OpenTicket{
		{
			Session: domain.Session{
				UserID:         "1001",
				ThreadID:       42,
				CreatedAt:      now.Add(-time.Hour),
				LastActivityAt: now.Add(-90 * time.Second),
			},
			Ticket: &domain.Ticket{ThreadID: 42, UserID: "1001", UserName: "Alice", Username: "alice"},
		},
		{
			Session: domain.Session{UserID: "1002", ThreadID: 43, LastActivityAt: now},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var result map[string][]Ticket
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	tickets := result["tickets"]
	if len(tickets) != 2 {
		t.Fatalf("Expected 2 tickets, got %d", len(tickets))
	}

	first := tickets[0]
	if first.ThreadID != 42 || first.UserName != "Alice" || first.IdleSeconds != 90 {
		t.Errorf("Unexpected first ticket: %+v", first)
	}
	if first.OpenedAt == nil || !first.OpenedAt.Equal(now.Add(-time.Hour)) {
		t.Errorf("Unexpected opened_at: %v", first.OpenedAt)
	}
	if first.Link != "https://t.me/c/1234567890/42" {
		t.Errorf("Unexpected link: %s", first.Link)
	}
	if tickets[1].OpenedAt != nil {
		t.Error("Expected opened_at omitted when unknown")
	}
}

func TestListTickets_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(&MockTicketService{})

	req := httptest.NewRequest(http.MethodDelete, "/api/tickets", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestCloseTicket(t *testing.T) {
	svc := &MockTicketService{}
	s, _ := newTestServer(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/42/close", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp CloseResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !resp.Closed || resp.ThreadID != 42 {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if len(svc.closed) != 1 || svc.closed[0] != 42 {
		t.Errorf("Expected thread 42 closed, got %v", svc.closed)
	}
}

func TestCloseTicket_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		closeErr error
		want     int
	}{
		{"bad id", "/api/tickets/abc/close", nil, http.StatusBadRequest},
		{"zero id", "/api/tickets/0/close", nil, http.StatusBadRequest},
		{"unknown thread", "/api/tickets/7/close", domain.ErrNotFound, http.StatusNotFound},
		{"close failed", "/api/tickets/7/close", errors.New("forbidden"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(&MockTicketService{closeErr: tt.closeErr})
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}
