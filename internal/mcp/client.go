package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is where helpdesk-bridge serves its ops API by default
const DefaultBaseURL = "http://127.0.0.1:9876"

// Client is the HTTP client for the helpdesk-bridge ops API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ticket represents an open ticket
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

// APIError is a non-200 response from the API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// ============ Ticket Operations ============

// ListOpenTickets gets all open tickets
func (c *Client) ListOpenTickets(ctx context.Context) ([]Ticket, error) {
	var result struct {
		Tickets []Ticket `json:"tickets"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tickets", &result); err != nil {
		return nil, err
	}
	return result.Tickets, nil
}

// CloseTicket closes the ticket in thread on behalf of support
func (c *Client) CloseTicket(ctx context.Context, thread int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/tickets/%d/close", thread), nil)
}

// Health checks that the bridge is reachable
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil)
}

// ============ HTTP Helpers ============

func (c *Client) do(ctx context.Context, method, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
