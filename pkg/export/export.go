// Package export writes query results as dated CSV objects in S3.
package export

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/txn2/table-masker/pkg/config"
)

const dateLayout = "2006-01-02"

// Querier runs read queries. database.Conn satisfies it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Uploader is the subset of the S3 client used by the job.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Job exports every configured query to its own object.
type Job struct {
	cfg    config.ExportConfig
	client Uploader
	now    func() time.Time
}

// New creates a Job with an existing client.
func New(cfg config.ExportConfig, client Uploader) (*Job, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("export.bucket is required")
	}
	if client == nil {
		return nil, errors.New("s3 client is required")
	}
	return &Job{cfg: cfg, client: client, now: time.Now}, nil
}

// NewFromConfig creates a Job with an S3 client from the default AWS chain.
// A custom endpoint enables S3-compatible stores.
func NewFromConfig(ctx context.Context, cfg config.ExportConfig) (*Job, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("export.bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return New(cfg, client)
}

// Key returns the object key for a query exported on day.
func (j *Job) Key(name string, day time.Time) string {
	date := day.Format(dateLayout)
	return fmt.Sprintf("%s%s/%s_%s.csv", j.cfg.Prefix, date, name, date)
}

// Run exports every query and returns the object keys written.
func (j *Job) Run(ctx context.Context, db Querier) ([]string, error) {
	day := j.now()
	keys := make([]string, 0, len(j.cfg.Queries))

	for _, q := range j.cfg.Queries {
		var buf bytes.Buffer
		n, err := j.query(ctx, db, q, &buf)
		if err != nil {
			return keys, fmt.Errorf("exporting %s: %w", q.Name, err)
		}

		key := j.Key(q.Name, day)
		_, err = j.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(j.cfg.Bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(buf.Bytes()),
			ContentType:   aws.String("text/csv"),
			ContentLength: aws.Int64(int64(buf.Len())),
		})
		if err != nil {
			return keys, fmt.Errorf("uploading s3://%s/%s: %w", j.cfg.Bucket, key, err)
		}

		slog.Info("exported query", "query", q.Name, "rows", n, "bucket", j.cfg.Bucket, "key", key)
		keys = append(keys, key)
	}
	return keys, nil
}

func (j *Job) query(ctx context.Context, db Querier, q config.ExportQuery, w io.Writer) (int, error) {
	rows, err := db.QueryContext(ctx, q.SQL)
	if err != nil {
		return 0, fmt.Errorf("running query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return WriteCSV(rows, w)
}

// WriteCSV writes a header row followed by every result row and returns
// the number of data rows. NULL is written as an empty field.
func WriteCSV(rows *sql.Rows, w io.Writer) (int, error) {
	cols, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("reading columns: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return 0, fmt.Errorf("writing header: %w", err)
	}

	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	record := make([]string, len(cols))

	n := 0
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return n, fmt.Errorf("scanning row: %w", err)
		}
		for i, v := range values {
			record[i] = formatValue(v)
		}
		if err := cw.Write(record); err != nil {
			return n, fmt.Errorf("writing row: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterating rows: %w", err)
	}

	cw.Flush()
	return n, cw.Error()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
