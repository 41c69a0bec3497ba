package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/smartworking/pkg/store"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Applies the embedded schema migrations to the configured database and
prints the resulting schema version. The memory backend has no schema.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var version int64
			switch cfg.Database.Type {
			case "postgres", "postgresql":
				if err := store.ApplyPostgresMigrations(ctx, cfg.Database.DSN); err != nil {
					return err
				}
				if version, err = store.PostgresMigrationVersion(ctx, cfg.Database.DSN); err != nil {
					return err
				}
			case "sqlite", "":
				s, err := store.NewSQLiteStore(ctx, cfg.Database.Path)
				if err != nil {
					return err
				}
				defer s.Close()
				if version, err = store.MigrationVersion(ctx, s.DB(), "sqlite3"); err != nil {
					return err
				}
			case "memory":
				fmt.Fprintln(cmd.OutOrStdout(), "memory store has no schema to migrate")
				return nil
			default:
				return store.ErrUnsupportedDatabase
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema at version %d\n", cfg.Database.Type, version)
			return nil
		},
	}
}
