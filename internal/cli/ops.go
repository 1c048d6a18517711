package cli

import (
	"github.com/spf13/cobra"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema migrations",
		Long: `Apply the migrations in DB_MIGRATION_FOLDER_PATH up to DB_MIGRATION_VERSION
(0 means latest). A dirty database is rolled back first when
DB_MIGRATION_AUTO_ROLLBACK is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.Migrate(ctx); err != nil {
				return WrapExitError(ExitCommandError, "migration failed", err)
			}
			return opts.printer(cmd).Print(map[string]any{
				"migrated": true,
				"folder":   a.Config.DatabaseMigrationFolderPath,
			})
		},
	}
}

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops server, the product event consumer and the scheduled rematch",
		Long: `Run until interrupted. Serves /health, /health/live, /health/ready, /metrics,
/cache/stats, /cache/rebuild and /products/summary on OPS_PORT, consumes
product ingredient events when KAFKA_BROKERS is set and runs the bulk rematch
on REMATCH_SCHEDULE when set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return a.Serve(ctx)
		},
	}
}
