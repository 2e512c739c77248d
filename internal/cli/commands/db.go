package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wp-orm/wpmeta/internal/store/sqlstore"
)

// NewDBCommand creates the db command
func NewDBCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}
	cmd.AddCommand(newDBInitCommand(opts))
	return cmd
}

func newDBInitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the object and meta tables if they don't exist",
		Long: `Create the posts, users and terms tables and the four meta tables
under the configured table prefix.

This command is idempotent - it's safe to run multiple times against a
database that already holds a WordPress schema.`,
		Example: `  # Create tables in the database from wpmeta.yaml
  wpmeta db init

  # Use a second site's prefix
  WPMETA_DATABASE_TABLE_PREFIX=wp_2_ wpmeta db init`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			prefix := a.cfg.Database.TablePrefix
			if err := sqlstore.Init(ctx, a.db, a.dialect, prefix); err != nil {
				return fmt.Errorf("failed to initialize schema: %w", err)
			}

			successColor := color.New(color.FgGreen, color.Bold)
			successColor.Fprintf(cmd.OutOrStdout(), "✓ Schema ready (%s)\n", a.dialect.Driver)
			for _, table := range sqlstore.Tables() {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s%s\n", prefix, table)
			}
			return nil
		},
	}
}
