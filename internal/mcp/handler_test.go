package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func newAPIServer(t *testing.T, closed *[]string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/tickets":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"tickets": []Ticket{
					{ThreadID: 42, UserID: "1001", UserName: "Alice", IdleSeconds: 90},
					{ThreadID: 43, UserID: "1002"},
				},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/api/tickets/42/close":
			*closed = append(*closed, r.URL.Path)
			json.NewEncoder(w).Encode(map[string]interface{}{"thread_id": 42, "closed": true})
		case r.URL.Path == "/health":
			w.Write([]byte("ok"))
		default:
			http.Error(w, `{"error":"no open ticket in this thread"}`, http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_ListOpenTickets(t *testing.T) {
	var closed []string
	client := NewClient(newAPIServer(t, &closed).URL + "/")

	tickets, err := client.ListOpenTickets(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("Expected 2 tickets, got %d", len(tickets))
	}
	if tickets[0].UserName != "Alice" || tickets[0].IdleSeconds != 90 {
		t.Errorf("Unexpected first ticket: %+v", tickets[0])
	}
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health failed: %v", err)
	}
}

func TestClient_CloseTicketNotFound(t *testing.T) {
	var closed []string
	client := NewClient(newAPIServer(t, &closed).URL)

	err := client.CloseTicket(context.Background(), 7)
	apiErr, ok := err.(*APIError)
	if !ok || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 APIError, got %v", err)
	}
}

func TestHandler_ListOpenTickets(t *testing.T) {
	var closed []string
	h := NewHandler(NewClient(newAPIServer(t, &closed).URL))

	_, out, err := h.ListOpenTickets(context.Background(), nil, ListOpenTicketsInput{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Count != 2 || len(out.Tickets) != 2 || out.Error != "" {
		t.Errorf("Unexpected output: %+v", out)
	}
}

func TestHandler_ListOpenTicketsUnavailable(t *testing.T) {
	h := NewHandler(NewClient("http://127.0.0.1:1"))

	_, out, err := h.ListOpenTickets(context.Background(), nil, ListOpenTicketsInput{})
	if err != nil {
		t.Fatalf("Tool errors must be reported in the output, got %v", err)
	}
	if out.Error == "" || out.Tickets == nil {
		t.Errorf("Expected error and empty list, got %+v", out)
	}
}

func TestHandler_CloseTicket(t *testing.T) {
	var closed []string
	h := NewHandler(NewClient(newAPIServer(t, &closed).URL))
	ctx := context.Background()

	_, out, _ := h.CloseTicket(ctx, nil, CloseTicketInput{ThreadID: 42})
	if !out.Success {
		t.Errorf("Expected success, got %+v", out)
	}
	if len(closed) != 1 {
		t.Errorf("Expected one close request, got %v", closed)
	}

	_, out, _ = h.CloseTicket(ctx, nil, CloseTicketInput{ThreadID: 7})
	if out.Success || out.Error != "no open ticket in thread 7" {
		t.Errorf("Unexpected output: %+v", out)
	}

	_, out, _ = h.CloseTicket(ctx, nil, CloseTicketInput{})
	if out.Success || out.Error == "" {
		t.Errorf("Expected validation error, got %+v", out)
	}
	if len(closed) != 1 {
		t.Error("Invalid input must not reach the API")
	}
}

func TestNewServer_RegistersTools(t *testing.T) {
	ctx := context.Background()
	server := NewServer(NewHandler(NewClient("")), "test")

	serverTransport, clientTransport := sdk.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("Server connect failed: %v", err)
	}
	defer serverSession.Close()

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Client connect failed: %v", err)
	}
	defer session.Close()

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}

	var names []string
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != ToolCloseTicket || names[1] != ToolListOpenTickets {
		t.Errorf("Unexpected tools: %v", names)
	}
}
