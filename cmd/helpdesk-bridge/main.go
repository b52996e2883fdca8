package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/relaydesk/helpdesk-bridge/internal/api"
	"github.com/relaydesk/helpdesk-bridge/internal/biz/usecase"
	"github.com/relaydesk/helpdesk-bridge/internal/conf"
	"github.com/relaydesk/helpdesk-bridge/internal/data"
	"github.com/relaydesk/helpdesk-bridge/internal/infra/telegram"
	"github.com/relaydesk/helpdesk-bridge/internal/server"
	"github.com/relaydesk/helpdesk-bridge/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var envFile, storagePath, ledgerPath string
	var verbose bool

	flagSet := pflag.NewFlagSet("helpdesk-bridge", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "path to the .env file")
	flagSet.StringVar(&storagePath, "storage", "", "snapshot file (overrides STORAGE_FILE)")
	flagSet.StringVar(&ledgerPath, "ledger", "", "ticket ledger database (overrides LEDGER_DB_PATH)")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	// Load .env file
	envErr := godotenv.Load(envFile)
	if envErr != nil && (flagSet.Changed("env-file") || !errors.Is(envErr, fs.ErrNotExist)) {
		return fmt.Errorf("failed to load %s: %w", envFile, envErr)
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if storagePath != "" {
		cfg.Storage.SnapshotPath = storagePath
	}
	if ledgerPath != "" {
		cfg.Storage.LedgerPath = ledgerPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelInfo
	if verbose || cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}
	if cfg.Texts.Source != "" {
		logger.Info("texts loaded", slog.String("path", cfg.Texts.Source))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize platform client
	client, err := telegram.NewClient(ctx, cfg.Telegram.BotToken, cfg.Telegram.SupportGroupID, logger)
	if err != nil {
		return fmt.Errorf("failed to create telegram client: %w", err)
	}
	client.CheckGroup(ctx)

	// Initialize repository layer
	repos, err := data.NewRepositories(client, cfg.ToDataOptions(), logger)
	if err != nil {
		return fmt.Errorf("failed to create repositories: %w", err)
	}

	// Initialize usecase layer
	relay := usecase.NewRelayUsecase(
		repos.Sessions,
		repos.Tickets,
		repos.Messenger,
		repos.Events,
		cfg.ToRelayConfig(client.BotID()),
		logger,
	)

	if stale, err := relay.ReconcileLedger(ctx); err != nil {
		logger.Warn("ledger reconciliation failed", slog.Any("error", err))
	} else if stale > 0 {
		logger.Info("ledger reconciled", slog.Int("stale_closed", stale))
	}

	// Initialize service layer
	dispatcher := service.NewDispatcher(relay, cfg.Telegram.SupportGroupID, client.BotID(), logger)
	reaper := service.NewReaper(repos.Sessions, relay, cfg.InactivityThreshold(), cfg.Tickets.ReapInterval, logger)

	// Initialize HTTP API server for helpdesk-mcp
	var apiServer *api.Server
	if cfg.APIPort != 0 {
		apiServer = api.NewServer(relay, cfg.Telegram.SupportGroupID, cfg.APIPort, logger)
	}

	logger.Info("starting helpdesk bridge",
		slog.Int64("support_group", int64(cfg.Telegram.SupportGroupID)),
		slog.String("bot_id", string(client.BotID())),
		slog.Int("open_threads", repos.Sessions.Len()),
		slog.Int("inactivity_days", cfg.Tickets.InactivityDays),
		slog.String("storage", cfg.Storage.SnapshotPath),
		slog.String("ledger", cfg.Storage.LedgerPath))

	srv := server.NewTelegramServer(client, dispatcher, reaper, apiServer, repos, logger)
	return srv.Run(ctx)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `helpdesk-bridge relays private Telegram chats into forum threads of a
support group and back.

Required environment: BOT_TOKEN, SUPPORT_GROUP_ID, INACTIVITY_DAYS.
See .env.example for the optional settings.

Usage:
  helpdesk-bridge [flags]

Flags:
`)
	flagSet.PrintDefaults()
}
