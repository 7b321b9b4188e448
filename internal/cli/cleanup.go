package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/attrition/internal/retention"
)

// CleanupResult is the outcome of a retention run.
type CleanupResult struct {
	RetentionDays int   `json:"retention_days"`
	Deleted       int64 `json:"deleted"`
}

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit records older than the retention window",
		Long: `Delete audit requests older than --days days. Prediction rows belonging
to deleted requests are removed with them. Running cleanup twice in a row
deletes nothing the second time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if err := requireDatabase(cfg); err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = cfg.Retention.Days
			}
			if days < 0 {
				return NewExitError(ExitCommandError, fmt.Sprintf("--days must not be negative, got %d", days))
			}

			st, closeStore, err := openStore(cmd.Context(), cfg.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "connect database", err)
			}
			defer closeStore()

			n, err := retention.NewSweeper(st, days, 0).Cleanup(cmd.Context(), days)
			if err != nil {
				return WrapExitError(ExitFailure, "cleanup", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Print(CleanupResult{RetentionDays: days, Deleted: n}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %d audit request(s) older than %d day(s)\n", n, days)
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", retention.DefaultDays, "retention window in days (defaults to RETENTION_DAYS)")

	return cmd
}
