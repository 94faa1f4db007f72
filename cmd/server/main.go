package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/collab-whiteboard/backend/internal/config"
	"github.com/collab-whiteboard/backend/internal/model"
)

// Exit statuses.
const (
	exitError = 1
	exitUsage = 2
)

// usageError marks errors caused by bad command-line arguments.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := rootCmd()
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)

		var usage usageError
		if errors.As(err, &usage) || errors.Is(err, model.ErrInvalidPort) {
			fmt.Fprintln(os.Stderr, cmd.UsageString())
			return exitUsage
		}
		return exitError
	}
	return 0
}

func rootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "whiteboard-server",
		Short: "Shared whiteboard server",
		Long: `Serves shared drawing boards to line-protocol clients over TCP.

An admin HTTP server alongside it exposes board snapshots, connection
history, Prometheus metrics and a WebSocket endpoint speaking the same
protocol.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.New(), configFile, cmd.Flags())
			if err != nil {
				return usageError{err}
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return usageError{err}
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (toml, yaml or json)")
	flags.Int("port", config.DefaultPort, "TCP port for the line protocol (0-65535)")
	flags.String("host", "", "interface to listen on")
	flags.String("admin-addr", config.DefaultAdminAddr, "admin HTTP address, empty to disable")
	flags.String("db-path", "", "sqlite file for the connection audit log, empty to disable")
	flags.String("transcript-dir", "", "directory for connection transcripts, empty to keep them in memory")
	flags.Int("send-buffer", config.DefaultSendBuffer, "outbound queue length per connection")
	flags.Int("max-line-bytes", config.DefaultMaxLineBytes, "longest accepted request line")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-format", "text", "text or json")

	return cmd
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler), nil
}
