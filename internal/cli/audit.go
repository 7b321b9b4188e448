package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print audit row counts and the covered time range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if err := requireDatabase(cfg); err != nil {
				return err
			}

			st, closeStore, err := openStore(cmd.Context(), cfg.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "connect database", err)
			}
			defer closeStore()

			s, err := st.Stats(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "audit stats", err)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Print(s, func(w io.Writer) {
				fmt.Fprintf(w, "Requests:    %d\n", s.Requests)
				fmt.Fprintf(w, "Predictions: %d\n", s.Predictions)
				if s.OldestRequest != nil && s.NewestRequest != nil {
					fmt.Fprintf(w, "Range:       %s .. %s\n",
						s.OldestRequest.UTC().Format(time.RFC3339), s.NewestRequest.UTC().Format(time.RFC3339))
				}
			})
		},
	}

	cmd.AddCommand(stats)
	return cmd
}
