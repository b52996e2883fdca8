// helpdesk-mcp exposes the helpdesk ops API as MCP tools over stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/relaydesk/helpdesk-bridge/internal/mcp"
)

const version = "v1.0.0"

func main() {
	// stdout carries the protocol, logs go to stderr
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	baseURL := os.Getenv("HELPDESK_API_URL")
	client := mcp.NewClient(baseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Health(ctx); err != nil {
		logger.Warn("helpdesk bridge not reachable yet", slog.Any("error", err))
	}

	server := mcp.NewServer(mcp.NewHandler(client), version)
	if err := server.Run(ctx, &sdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
