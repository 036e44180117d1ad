package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/txn2/table-masker/pkg/config"
	"github.com/txn2/table-masker/pkg/credentials"
	"github.com/txn2/table-masker/pkg/database"
	"github.com/txn2/table-masker/pkg/export"
	"github.com/txn2/table-masker/pkg/metrics"
)

func newPushMetricsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push-metrics",
		Short: "Run the configured metric queries and publish them to CloudWatch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			job, err := metrics.NewFromConfig(cmd.Context(), cfg.Metrics)
			if err != nil {
				return err
			}

			conn, err := connect(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			n, err := job.Run(cmd.Context(), conn)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "published %d data points to %s\n", n, cfg.Metrics.Namespace)
			return nil
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Run the configured export queries and upload CSV files to S3",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			job, err := export.NewFromConfig(cmd.Context(), cfg.Export)
			if err != nil {
				return err
			}

			conn, err := connect(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			keys, err := job.Run(cmd.Context(), conn)
			if err != nil {
				return err
			}
			for _, key := range keys {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s\n", cfg.Export.Bucket, key)
			}
			return nil
		},
	}
}

func connect(cmd *cobra.Command, cfg *config.Config) (database.Conn, error) {
	tokens, err := credentials.New(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating token provider: %w", err)
	}
	return database.NewPostgres(cfg.Database, tokens).Connect(cmd.Context())
}
