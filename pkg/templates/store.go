// Package templates provides the registry of table-masking SQL templates.
//
// A template is registered per (schema, table) pair. Its body is a SQL
// statement carrying placeholders for the source schema name and the
// partition identifier, which Render substitutes at request time.
//
// Two backends are provided: FileStore reads a directory-per-schema layout
// from any fs.FS, and the postgres subpackage reads a registry table.
package templates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSchemaNotFound is returned when no templates are registered under a
// schema at all. A registered schema with zero tables is not an error.
var ErrSchemaNotFound = errors.New("schema not found")

// Store provides read-only access to masking templates.
type Store interface {
	// Tables returns the table names with a template under schema, or
	// ErrSchemaNotFound if the schema is unknown.
	Tables(ctx context.Context, schema string) ([]string, error)

	// Template returns the raw template body for schema.table.
	Template(ctx context.Context, schema, table string) (string, error)
}

// Resolve returns the table names registered under schema in a stable order.
// Names that could address something outside the schema are treated as not found.
func Resolve(ctx context.Context, store Store, schema string) ([]string, error) {
	if !ValidName(schema) {
		return nil, fmt.Errorf("%w: %q", ErrSchemaNotFound, schema)
	}

	tables, err := store.Tables(ctx, schema)
	if err != nil {
		return nil, err
	}

	sort.Strings(tables)
	return tables, nil
}

// ValidName reports whether name can be used as a schema or table key.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}
