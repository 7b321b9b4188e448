// Package cli implements attritionctl, the operator command line for the
// attrition service.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/attrition/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format      string // "json" | "text"
	DatabaseURL string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for attritionctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "attritionctl",
		Short: "Operate the attrition prediction service",
		Long:  "Maintenance commands for the attrition prediction service: audit retention, migrations, model inspection and offline scoring.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", "", "audit database URL (defaults to DATABASE_URL)")

	cmd.AddCommand(NewCleanupCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))
	cmd.AddCommand(NewModelCommand(opts))
	cmd.AddCommand(NewPredictCommand(opts))

	return cmd
}

// loadConfig reads the service configuration and applies flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.DatabaseURL != "" {
		cfg.Database.URL = opts.DatabaseURL
	}
	return cfg, nil
}

func requireDatabase(cfg *config.Config) error {
	if !cfg.Database.Enabled() {
		return NewExitError(ExitCommandError, "no database configured: set DATABASE_URL or --database-url")
	}
	return nil
}
