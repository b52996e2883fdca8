package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
	"github.com/relaydesk/helpdesk-bridge/internal/biz/usecase"
)

// TicketService is the part of the relay the API exposes
type TicketService interface {
	ListOpen(ctx context.Context) []usecase.OpenTicket
	CloseBySupport(ctx context.Context, thread domain.ThreadID) error
}

// Server provides the loopback ops API used by helpdesk-mcp
type Server struct {
	tickets TicketService
	groupID domain.ChatID
	now     func() time.Time
	logger  *slog.Logger

	server *http.Server
	port   int
}

// Ticket is the API view of an open ticket
type Ticket struct {
	ThreadID       int        `json:"thread_id"`
	UserID         string     `json:"user_id"`
	UserName       string     `json:"user_name,omitempty"`
	Username       string     `json:"username,omitempty"`
	OpenedAt       *time.Time `json:"opened_at,omitempty"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	IdleSeconds    int64      `json:"idle_seconds"`
	Link           string     `json:"link"`
}

// CloseResponse is returned by the close endpoint
type CloseResponse struct {
	ThreadID int  `json:"thread_id"`
	Closed   bool `json:"closed"`
}

// NewServer creates a new API server
func NewServer(tickets TicketService, groupID domain.ChatID, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		tickets: tickets,
		groupID: groupID,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "api")),
		port:    port,
	}
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Tickets
	mux.HandleFunc("GET /api/tickets", s.handleListTickets)
	mux.HandleFunc("POST /api/tickets/{thread}/close", s.handleCloseTicket)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting HTTP server", slog.Int("port", s.port))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// GetPort returns the server port
func (s *Server) GetPort() int {
	return s.port
}

// ============ Ticket Handlers ============

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	open := s.tickets.ListOpen(r.Context())
	now := s.now()

	result := make([]Ticket, 0, len(open))
	for _, o := range open {
		t := Ticket{
			ThreadID:       int(o.Session.ThreadID),
			UserID:         string(o.Session.UserID),
			LastActivityAt: o.Session.LastActivityAt,
			IdleSeconds:    int64(o.Session.IdleFor(now) / time.Second),
			Link:           usecase.ThreadURL(s.groupID, o.Session.ThreadID),
		}
		if !o.Session.CreatedAt.IsZero() {
			opened := o.Session.CreatedAt
			t.OpenedAt = &opened
		}
		if o.Ticket != nil {
			t.UserName = o.Ticket.UserName
			t.Username = o.Ticket.Username
		}
		result = append(result, t)
	}

	s.writeJSON(w, map[string]interface{}{"tickets": result})
}

func (s *Server) handleCloseTicket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("thread"))
	if err != nil || id <= 0 {
		http.Error(w, "invalid thread id", http.StatusBadRequest)
		return
	}
	thread := domain.ThreadID(id)

	err = s.tickets.CloseBySupport(r.Context(), thread)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no open ticket in this thread"})
		return
	case err != nil:
		s.logger.Error("failed to close ticket", slog.Int("thread", id), slog.Any("error", err))
		s.writeError(w, err)
		return
	}

	s.logger.Info("ticket closed via API", slog.Int("thread", id))
	s.writeJSON(w, CloseResponse{ThreadID: id, Closed: true})
}

// ============ Helpers ============

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
