package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// NewWebhookCommand creates the webhook command group.
func NewWebhookCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook registration",
	}
	cmd.AddCommand(newWebhookSetCommand(rootOpts))
	cmd.AddCommand(newWebhookDeleteCommand(rootOpts))
	cmd.AddCommand(newWebhookStatusCommand(rootOpts))
	return cmd
}

func newWebhookSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set",
		Short: "Register PUBLIC_URL/webhook/<secret> with Telegram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			url := cfg.WebhookURL()
			if url == "" {
				return errors.New("PUBLIC_URL is not set")
			}
			client, err := rootOpts.newClient(cfg.BotToken)
			if err != nil {
				return err
			}
			if err := client.RegisterWebhook(cmd.Context(), url, cfg.WebhookSecret); err != nil {
				return err
			}
			slog.Info("webhook registered", "base_url", cfg.PublicURL, "bot", client.Username())
			return nil
		},
	}
}

func newWebhookDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			client, err := rootOpts.newClient(cfg.BotToken)
			if err != nil {
				return err
			}
			if err := client.DeleteWebhook(cmd.Context()); err != nil {
				return err
			}
			slog.Info("webhook deleted", "bot", client.Username())
			return nil
		},
	}
}

type webhookStatus struct {
	Registered bool `json:"registered"`
	Current    bool `json:"current"`
	Pending    int  `json:"pending_updates"`
}

func newWebhookStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the webhook is registered and how many updates are pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}
			client, err := rootOpts.newClient(cfg.BotToken)
			if err != nil {
				return err
			}
			url, pending, err := client.WebhookStatus(cmd.Context())
			if err != nil {
				return err
			}

			// The registered URL embeds the secret, so only its match is reported.
			status := webhookStatus{
				Registered: url != "",
				Current:    url != "" && url == cfg.WebhookURL(),
				Pending:    pending,
			}
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return json.NewEncoder(out).Encode(status)
			}
			_, err = fmt.Fprintf(out, "registered: %t\ncurrent: %t\npending updates: %d\n",
				status.Registered, status.Current, status.Pending)
			return err
		},
	}
}
