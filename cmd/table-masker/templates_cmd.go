package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/txn2/table-masker/internal/server"
	"github.com/txn2/table-masker/pkg/config"
	"github.com/txn2/table-masker/pkg/templates"
	tplpostgres "github.com/txn2/table-masker/pkg/templates/postgres"
)

func newTemplatesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect and publish mask templates",
	}
	cmd.AddCommand(
		newTemplatesListCmd(opts),
		newTemplatesSyncCmd(opts),
		newTemplatesDeleteCmd(opts),
	)
	return cmd
}

func newTemplatesListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list SCHEMA",
		Short: "List the tables a schema would provision from the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			app, err := server.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			tables, err := templates.Resolve(cmd.Context(), app.Store, args[0])
			if err != nil {
				return err
			}
			for _, table := range tables {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), table)
			}
			return nil
		},
	}
}

func newTemplatesSyncCmd(opts *rootOptions) *cobra.Command {
	var root, author string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Publish the template directory into the database registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRegistryDB(cmd, opts, func(cfg *config.Config, db *sql.DB) error {
				if root == "" {
					root = cfg.Templates.Root
				}
				if author == "" {
					author = os.Getenv("USER")
				}
				n, err := templates.Sync(cmd.Context(), templates.NewDirStore(root), tplpostgres.New(db), author)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "synced %d templates from %s\n", n, root)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Template directory (overrides templates.root)")
	cmd.Flags().StringVar(&author, "author", "", "Author recorded with each template (default $USER)")
	return cmd
}

func newTemplatesDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete SCHEMA TABLE",
		Short: "Remove one template from the database registry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistryDB(cmd, opts, func(_ *config.Config, db *sql.DB) error {
				if err := tplpostgres.New(db).Delete(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s.%s\n", args[0], args[1])
				return nil
			})
		},
	}
}
