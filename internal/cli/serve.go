package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/msomdec/diabot/internal/config"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Long: `Run the HTTP server that receives Telegram updates.

When PUBLIC_URL is set the webhook is registered on startup. The server
stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, cfg)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions, cfg *config.Config) error {
	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()
	slog.Info("storage ready", "backend", cfg.StorageBackend, "dir", cfg.DataDir)

	client, err := opts.newClient(cfg.BotToken)
	if err != nil {
		return err
	}
	slog.Info("bot api connected", "username", client.Username())

	h, limiter, err := newHandler(cfg, storage, client)
	if err != nil {
		return err
	}
	defer limiter.Stop()

	if url := cfg.WebhookURL(); url != "" {
		if err := client.RegisterWebhook(ctx, url, cfg.WebhookSecret); err != nil {
			return err
		}
		slog.Info("webhook registered", "base_url", cfg.PublicURL)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return serveUntilDone(ctx, srv, nil)
}

// serveUntilDone runs srv until ctx is cancelled, then shuts it down. A nil
// listener means srv.Addr is used.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server starting", "addr", srv.Addr)
		var err error
		if ln != nil {
			err = srv.Serve(ln)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
