package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txn2/table-masker/internal/server"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "table-masker version %s\n", server.Version)
			return nil
		},
	}
}
