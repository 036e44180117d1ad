package templates

import (
	"context"
	"fmt"
	"log/slog"
)

// Writer stores templates. The postgres registry implements it.
type Writer interface {
	Put(ctx context.Context, schema, table, body, author string) error
}

// Sync copies every template in src into dst and returns how many were written.
// It stops at the first failed write.
func Sync(ctx context.Context, src *FileStore, dst Writer, author string) (int, error) {
	schemas, err := src.Schemas(ctx)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, schema := range schemas {
		tables, err := Resolve(ctx, src, schema)
		if err != nil {
			return written, err
		}
		for _, table := range tables {
			body, err := src.Template(ctx, schema, table)
			if err != nil {
				return written, err
			}
			if err := dst.Put(ctx, schema, table, body, author); err != nil {
				return written, fmt.Errorf("syncing %s.%s: %w", schema, table, err)
			}
			written++
		}
		slog.Info("synced schema templates", "schema", schema, "tables", len(tables))
	}
	return written, nil
}
