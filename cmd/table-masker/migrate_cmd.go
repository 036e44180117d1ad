package main

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/txn2/table-masker/pkg/config"
	"github.com/txn2/table-masker/pkg/credentials"
	"github.com/txn2/table-masker/pkg/database"
	"github.com/txn2/table-masker/pkg/database/migrate"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the template registry schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRegistryDB(cmd, opts, func(_ *config.Config, db *sql.DB) error {
					if err := migrate.Run(db); err != nil {
						return err
					}
					return printVersion(cmd, db)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRegistryDB(cmd, opts, func(_ *config.Config, db *sql.DB) error {
					return migrate.Down(db)
				})
			},
		},
		&cobra.Command{
			Use:   "steps N",
			Short: "Apply (N > 0) or roll back (N < 0) N migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
				}
				return withRegistryDB(cmd, opts, func(_ *config.Config, db *sql.DB) error {
					if err := migrate.Steps(db, n); err != nil {
						return err
					}
					return printVersion(cmd, db)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current migration version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withRegistryDB(cmd, opts, func(_ *config.Config, db *sql.DB) error {
					return printVersion(cmd, db)
				})
			},
		},
	)

	return cmd
}

func printVersion(cmd *cobra.Command, db *sql.DB) error {
	version, dirty, err := migrate.Version(db)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
	return nil
}

// withRegistryDB opens a small pool against the configured database for
// registry maintenance and closes it afterwards.
func withRegistryDB(cmd *cobra.Command, opts *rootOptions, fn func(cfg *config.Config, db *sql.DB) error) error {
	cfg, err := opts.load(cmd)
	if err != nil {
		return err
	}

	tokens, err := credentials.New(cmd.Context(), cfg.Database)
	if err != nil {
		return fmt.Errorf("creating token provider: %w", err)
	}

	db, err := database.NewPostgres(cfg.Database, tokens).Pool(cmd.Context(), 2)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return fn(cfg, db)
}
