package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/txn2/table-masker/internal/server"
	"github.com/txn2/table-masker/pkg/handler"
)

func newProvisionCmd(opts *rootOptions) *cobra.Command {
	var schema, partition string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision masked tables for one schema and partition",
		Long: `Runs a single provisioning request and prints the response as JSON.
The command fails when the response status is not 200.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			app, err := server.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			payload := map[string]any{}
			if schema != "" {
				payload["schema_name"] = schema
			}
			if partition != "" {
				payload["partition_name"] = partition
			}

			resp := app.Handler.Handle(cmd.Context(), payload)
			return printResponse(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&schema, "schema", "", "Source schema name")
	cmd.Flags().StringVar(&partition, "partition", "", "Partition name")
	return cmd
}

func printResponse(w io.Writer, resp handler.Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provisioning failed with status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
