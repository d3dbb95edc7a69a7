package cli

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/msomdec/diabot/internal/domain"
)

// InspectReport is the decrypted view of one user's stored state.
type InspectReport struct {
	UserID       int64             `json:"user_id"`
	Stored       bool              `json:"stored"`
	Language     domain.Language   `json:"language"`
	Phase        domain.Phase      `json:"phase"`
	Scratch      map[string]string `json:"scratch,omitempty"`
	LastUpdateID int64             `json:"last_update_id"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Measurements int               `json:"measurements"`
	FoodEntries  int               `json:"food_entries"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <user-id>",
		Short: "Decrypt and print a user's session and log sizes",
		Long: `Decrypt and print a user's stored session together with the number of
entries in each of their logs. User data is never modified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			cfg, err := rootOpts.setup(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			storage, err := openStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer storage.Close()

			sessions, journal, err := stores(cfg, storage)
			if err != nil {
				return err
			}

			report := InspectReport{UserID: userID}
			switch _, err := storage.Records().Get(ctx, userID); {
			case err == nil:
				report.Stored = true
			case !errors.Is(err, domain.ErrNotFound):
				return fmt.Errorf("read record: %w", err)
			}

			sess, err := sessions.Load(ctx, userID)
			if err != nil {
				return err
			}
			report.Language = sess.Language
			report.Phase = sess.Phase
			report.Scratch = sess.Scratch
			report.LastUpdateID = sess.LastUpdateID
			report.UpdatedAt = sess.UpdatedAt

			if report.Measurements, err = journal.Count(ctx, userID, domain.StreamGlucose); err != nil {
				return err
			}
			if report.FoodEntries, err = journal.Count(ctx, userID, domain.StreamFood); err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return writeReport(cmd.OutOrStdout(), report)
		},
	}
}

func writeReport(w io.Writer, r InspectReport) error {
	updated := "never"
	if !r.UpdatedAt.IsZero() {
		updated = r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if _, err := fmt.Fprintf(w, "user:           %d\nstored:         %t\nlanguage:       %s\nphase:          %s\nlast update id: %d\nupdated at:     %s\n",
		r.UserID, r.Stored, r.Language, r.Phase, r.LastUpdateID, updated); err != nil {
		return err
	}
	for _, k := range slices.Sorted(maps.Keys(r.Scratch)) {
		if _, err := fmt.Fprintf(w, "scratch.%s: %s\n", k, r.Scratch[k]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "measurements:   %d\nfood entries:   %d\n", r.Measurements, r.FoodEntries)
	return err
}
