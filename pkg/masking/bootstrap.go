package masking

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// DestinationSchema holds every masked table, whatever its source schema or partition.
const DestinationSchema = "masked"

// Execer runs a statement. database.Conn and *sql.DB satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EnsureSchema creates the destination schema if it does not exist.
// Calling it again once the schema exists is a no-op.
func EnsureSchema(ctx context.Context, db Execer) error {
	stmt := "CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(DestinationSchema)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("ensuring schema %s: %w", DestinationSchema, err)
	}
	return nil
}

// MaskedTableName returns the qualified name a template is expected to
// create for table and partition.
func MaskedTableName(table, partition string) string {
	return DestinationSchema + "." + table + "_" + partition + "_masked"
}
