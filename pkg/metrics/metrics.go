// Package metrics publishes single-row query results as CloudWatch metrics.
package metrics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/txn2/table-masker/pkg/config"
)

// maxDatumsPerCall is the PutMetricData request limit.
const maxDatumsPerCall = 1000

// Querier runs read queries. database.Conn satisfies it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Putter is the subset of the CloudWatch client used by the job.
type Putter interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Job runs the configured metric queries and pushes the results.
type Job struct {
	cfg    config.MetricsConfig
	client Putter
	now    func() time.Time
}

// New creates a Job with an existing client.
func New(cfg config.MetricsConfig, client Putter) (*Job, error) {
	if client == nil {
		return nil, errors.New("cloudwatch client is required")
	}
	return &Job{cfg: cfg, client: client, now: time.Now}, nil
}

// NewFromConfig creates a Job with a CloudWatch client from the default AWS chain.
func NewFromConfig(ctx context.Context, cfg config.MetricsConfig) (*Job, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return New(cfg, cloudwatch.NewFromConfig(awsCfg))
}

// Run collects every query and publishes the data points. It returns the
// number of data points sent.
func (j *Job) Run(ctx context.Context, db Querier) (int, error) {
	var data []types.MetricDatum
	for _, q := range j.cfg.Queries {
		datums, err := j.collect(ctx, db, q)
		if err != nil {
			return 0, fmt.Errorf("collecting %s: %w", q.Name, err)
		}
		data = append(data, datums...)
	}

	for start := 0; start < len(data); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(data))
		_, err := j.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(j.cfg.Namespace),
			MetricData: data[start:end],
		})
		if err != nil {
			return start, fmt.Errorf("putting metric data: %w", err)
		}
	}

	slog.Info("published metrics", "namespace", j.cfg.Namespace, "datapoints", len(data))
	return len(data), nil
}

// collect reads the first row of q and converts each configured column to a datum.
// NULL values produce no datum.
func (j *Job) collect(ctx context.Context, db Querier, q config.MetricQuery) ([]types.MetricDatum, error) {
	rows, err := db.QueryContext(ctx, q.SQL)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	if len(cols) != len(q.Columns) {
		return nil, fmt.Errorf("query returned %d columns, %d configured", len(cols), len(q.Columns))
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		return nil, errors.New("query returned no rows")
	}

	values := make([]sql.NullFloat64, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scanning row: %w", err)
	}

	ts := j.now()
	datums := make([]types.MetricDatum, 0, len(values))
	for i, v := range values {
		if !v.Valid {
			continue
		}
		datums = append(datums, types.MetricDatum{
			MetricName: aws.String(q.Columns[i]),
			Dimensions: []types.Dimension{{Name: aws.String("Query"), Value: aws.String(q.Name)}},
			Value:      aws.Float64(v.Float64),
			Unit:       types.StandardUnit(q.Unit),
			Timestamp:  aws.Time(ts),
		})
	}
	return datums, nil
}
