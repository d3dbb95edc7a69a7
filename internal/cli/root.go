// Package cli wires configuration, storage and transport into the diabot
// commands.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/msomdec/diabot/internal/config"
	"github.com/msomdec/diabot/internal/telegram"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Replaced in tests.
	loadConfig func() (*config.Config, error)
	newClient  func(token string) (*telegram.Client, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the diabot CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		loadConfig: config.Load,
		newClient:  telegram.New,
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diabot",
		Short: "diabot - diabetes self-care assistant for Telegram",
		Long:  "A Telegram bot that records glucose readings, counts bread units and serves short lessons, in Russian and Kazakh.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWebhookCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// setup loads the configuration and installs the process logger.
func (o *RootOptions) setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if o.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(newLogger(cmd.OutOrStdout(), cmd.ErrOrStderr(), level))
	return cfg, nil
}

// newLogger writes human-readable lines to out and JSON to errOut.
func newLogger(out, errOut io.Writer, level slog.Level) *slog.Logger {
	logOpts := &slog.HandlerOptions{Level: level}
	return slog.New(slog.NewMultiHandler(
		slog.NewTextHandler(out, logOpts),
		slog.NewJSONHandler(errOut, logOpts),
	))
}
