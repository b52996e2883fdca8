package mcp

import (
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool names
const (
	ToolListOpenTickets = "helpdesk_list_open_tickets"
	ToolCloseTicket     = "helpdesk_close_ticket"
)

// NewServer creates the helpdesk MCP server with all tools registered
func NewServer(h *Handler, version string) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{
		Name:    "helpdesk-tools",
		Version: version,
	}, nil)

	sdk.AddTool(server, &sdk.Tool{
		Name:        ToolListOpenTickets,
		Description: "List open support tickets with user, thread link and idle time.",
	}, h.ListOpenTickets)

	sdk.AddTool(server, &sdk.Tool{
		Name:        ToolCloseTicket,
		Description: "Close a support ticket on behalf of support. The user is notified and the thread is closed.",
	}, h.CloseTicket)

	return server
}
