package server

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/api"
	"github.com/relaydesk/helpdesk-bridge/internal/infra/telegram"
	"github.com/relaydesk/helpdesk-bridge/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Poller receives updates from the platform
type Poller interface {
	OnMessage(handler telegram.MessageHandler)
	// Start blocks until ctx is done and no handler call is in flight
	Start(ctx context.Context)
}

// TelegramServer ties polling, the idle reaper and the ops API to one
// lifecycle and flushes state on shutdown
type TelegramServer struct {
	poller     Poller
	dispatcher *service.Dispatcher
	reaper     *service.Reaper
	apiServer  *api.Server // Optional
	store      io.Closer
	logger     *slog.Logger
}

// NewTelegramServer creates a new Telegram server. apiServer may be nil.
func NewTelegramServer(
	poller Poller,
	dispatcher *service.Dispatcher,
	reaper *service.Reaper,
	apiServer *api.Server,
	store io.Closer,
	logger *slog.Logger,
) *TelegramServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramServer{
		poller:     poller,
		dispatcher: dispatcher,
		reaper:     reaper,
		apiServer:  apiServer,
		store:      store,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Run serves until ctx is canceled, then finishes queued updates, stops the
// reaper and the API and flushes the store
func (s *TelegramServer) Run(ctx context.Context) error {
	s.poller.OnMessage(s.dispatcher.Enqueue)

	s.reaper.Start(ctx)

	if s.apiServer != nil {
		go func() {
			if err := s.apiServer.Start(); err != nil {
				s.logger.Error("API server error", slog.Any("error", err))
			}
		}()
	}

	s.logger.Info("server started")
	s.poller.Start(ctx)

	return s.shutdown()
}

func (s *TelegramServer) shutdown() error {
	s.logger.Info("shutting down")

	s.dispatcher.Wait()
	s.reaper.Stop()

	if s.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.apiServer.Stop(ctx); err != nil {
			s.logger.Warn("API server shutdown failed", slog.Any("error", err))
		}
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("failed to flush state", slog.Any("error", err))
		return err
	}
	s.logger.Info("state flushed")
	return nil
}
