package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// TicketAPI is the part of the ops API the tools call
type TicketAPI interface {
	ListOpenTickets(ctx context.Context) ([]Ticket, error)
	CloseTicket(ctx context.Context, thread int) error
}

// Handler implements the MCP tools on top of the ops API
type Handler struct {
	api TicketAPI
}

// NewHandler creates a new MCP handler
func NewHandler(api TicketAPI) *Handler {
	return &Handler{api: api}
}

// ListOpenTicketsInput is empty - no input needed
type ListOpenTicketsInput struct{}

// ListOpenTicketsOutput contains the open tickets
type ListOpenTicketsOutput struct {
	Count   int      `json:"count"`
	Tickets []Ticket `json:"tickets"`
	Error   string   `json:"error,omitempty"`
}

// ListOpenTickets handles helpdesk_list_open_tickets
func (h *Handler) ListOpenTickets(ctx context.Context, req *sdk.CallToolRequest, input ListOpenTicketsInput) (*sdk.CallToolResult, ListOpenTicketsOutput, error) {
	tickets, err := h.api.ListOpenTickets(ctx)
	if err != nil {
		return nil, ListOpenTicketsOutput{Tickets: []Ticket{}, Error: err.Error()}, nil
	}
	if tickets == nil {
		tickets = []Ticket{}
	}
	return nil, ListOpenTicketsOutput{Count: len(tickets), Tickets: tickets}, nil
}

// CloseTicketInput names the thread to close
type CloseTicketInput struct {
	ThreadID int `json:"thread_id" jsonschema:"The forum thread id of the ticket to close"`
}

// CloseTicketOutput reports the close result
type CloseTicketOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CloseTicket handles helpdesk_close_ticket
func (h *Handler) CloseTicket(ctx context.Context, req *sdk.CallToolRequest, input CloseTicketInput) (*sdk.CallToolResult, CloseTicketOutput, error) {
	if input.ThreadID <= 0 {
		return nil, CloseTicketOutput{Error: "thread_id must be a positive integer"}, nil
	}

	err := h.api.CloseTicket(ctx, input.ThreadID)
	var apiErr *APIError
	switch {
	case err == nil:
		return nil, CloseTicketOutput{Success: true}, nil
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		return nil, CloseTicketOutput{Error: fmt.Sprintf("no open ticket in thread %d", input.ThreadID)}, nil
	default:
		return nil, CloseTicketOutput{Error: err.Error()}, nil
	}
}
