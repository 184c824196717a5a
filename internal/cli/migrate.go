package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long: `Create or upgrade the database schema and exit.

The schema statements are idempotent; serve runs them on start as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, closeStore, err := rootOpts.openStore(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			closeStore()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", rootOpts.Config.DBDriver)
			return nil
		},
	}
}
