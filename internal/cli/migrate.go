package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// MigrationStatus reports the applied schema version.
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

// NewMigrateCommand creates the migrate command and its subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the audit database schema",
	}
	cmd.PersistentFlags().StringVar(&dir, "path", "", "migrations directory (defaults to MIGRATIONS_PATH)")

	migrationsDir := func(fallback string) string {
		if dir != "" {
			return dir
		}
		return fallback
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if err := requireDatabase(cfg); err != nil {
				return err
			}
			if err := runMigrations(cfg.Database.URL, migrationsDir(cfg.Database.MigrationsPath)); err != nil {
				return WrapExitError(ExitFailure, "migrate up", err)
			}
			return printVersion(cmd, rootOpts, cfg.Database.URL, migrationsDir(cfg.Database.MigrationsPath))
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if err := requireDatabase(cfg); err != nil {
				return err
			}
			return printVersion(cmd, rootOpts, cfg.Database.URL, migrationsDir(cfg.Database.MigrationsPath))
		},
	}

	cmd.AddCommand(up, version)
	return cmd
}

func printVersion(cmd *cobra.Command, rootOpts *RootOptions, url, dir string) error {
	v, dirty, err := migrationVersion(url, dir)
	if err != nil {
		return WrapExitError(ExitFailure, "read schema version", err)
	}
	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	return out.Print(MigrationStatus{Version: v, Dirty: dirty}, func(w io.Writer) {
		state := "clean"
		if dirty {
			state = "dirty"
		}
		fmt.Fprintf(w, "Schema version %d (%s)\n", v, state)
	})
}
