package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/npezzotti/go-chatclient/internal/api"
	"github.com/npezzotti/go-chatclient/internal/chat"
	"github.com/npezzotti/go-chatclient/internal/config"
	"github.com/npezzotti/go-chatclient/internal/stats"
	"github.com/npezzotti/go-chatclient/internal/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "gochat",
	Short:        "Terminal client for a Rocket.Chat server",
	SilenceUsage: true,
	RunE:         runClient,
}

var (
	flagEnvFile   string
	flagServerURL string
	flagUsername  string
	flagDebugAddr string
	flagLogLevel  string
	flagTimeout   time.Duration
	flagHistory   int
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagEnvFile, "env-file", ".env", "optional file with GOCHAT_* variables")
	flags.StringVar(&flagServerURL, "server", "", "chat server URL (env GOCHAT_SERVER_URL)")
	flags.StringVarP(&flagUsername, "username", "u", "", "username to log in with (env GOCHAT_USERNAME)")
	flags.StringVar(&flagDebugAddr, "debug-addr", "", "serve /healthz, /api/view and /debug/vars on this address (env GOCHAT_DEBUG_ADDR)")
	flags.StringVar(&flagLogLevel, "log-level", "", "trace, debug, info, warn or error (env GOCHAT_LOG_LEVEL)")
	flags.DurationVar(&flagTimeout, "timeout", 0, "timeout for each request to the server (env GOCHAT_REQUEST_TIMEOUT)")
	flags.IntVar(&flagHistory, "history", 0, "number of messages loaded when joining a room (env GOCHAT_HISTORY_COUNT)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagEnvFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = flagServerURL
	}
	if flags.Changed("username") {
		cfg.Username = flagUsername
	}
	if flags.Changed("debug-addr") {
		cfg.DebugAddr = flagDebugAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout = flagTimeout
	}
	if flags.Changed("history") {
		cfg.HistoryCount = flagHistory
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().
		Timestamp().
		Logger(), nil
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tr, err := transport.NewClient(cfg.ServerURL, logger)
	if err != nil {
		return fmt.Errorf("new transport: %w", err)
	}
	defer tr.Close()

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	client := chat.NewClient(tr, statsUpdater, chat.Options{HistoryCount: cfg.HistoryCount}, logger)
	go client.Run()

	var debugSrv *api.DebugServer
	if cfg.DebugAddr != "" {
		debugSrv = api.NewDebugServer(mux, cfg.DebugAddr, client, logger)
		go func() {
			if err := debugSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn().Err(err).Msg("debug server stopped")
			}
		}()
	}

	printer := newFeedPrinter(cmd.OutOrStdout())
	go printer.follow(client.Updates())

	repl := &repl{
		log:     logger,
		client:  client,
		printer: printer,
		in:      newLineReader(cmd.InOrStdin()),
		out:     cmd.OutOrStdout(),
		timeout: cfg.RequestTimeout,
		user:    cfg.Username,
	}
	runErr := repl.run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if client.Authenticated() {
		if err := client.Logout(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("logout on exit")
		}
	}
	if err := client.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("chat client shutdown")
	}
	if debugSrv != nil {
		if err := debugSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("debug server shutdown")
		}
	}

	logger.Debug().Msg("shutdown complete")
	return runErr
}
