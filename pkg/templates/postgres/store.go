// Package postgres provides a PostgreSQL-backed masking template registry.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/table-masker/pkg/templates"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const templatesTable = "mask_templates"

// Store reads and writes templates in the mask_templates table.
// A schema exists once at least one template row is registered for it.
type Store struct {
	db *sql.DB
}

// New creates a new Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Tables returns the table names registered under schema.
func (s *Store) Tables(ctx context.Context, schema string) ([]string, error) {
	query, args, err := psq.Select("table_name").
		From(templatesTable).
		Where(sq.Eq{"schema_name": schema}).
		OrderBy("table_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building tables query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying templates for %s: %w", schema, err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating templates: %w", err)
	}

	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: %s", templates.ErrSchemaNotFound, schema)
	}
	return tables, nil
}

// Template returns the body registered for schema.table.
func (s *Store) Template(ctx context.Context, schema, table string) (string, error) {
	query, args, err := psq.Select("body").
		From(templatesTable).
		Where(sq.Eq{"schema_name": schema, "table_name": table}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("building template query: %w", err)
	}

	var body string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("template %s.%s not registered", schema, table)
	}
	if err != nil {
		return "", fmt.Errorf("loading template %s.%s: %w", schema, table, err)
	}
	return body, nil
}

// Put registers or replaces the template for schema.table.
func (s *Store) Put(ctx context.Context, schema, table, body, author string) error {
	if !templates.ValidName(schema) || !templates.ValidName(table) {
		return fmt.Errorf("invalid template name %q.%q", schema, table)
	}

	query, args, err := psq.Insert(templatesTable).
		Columns("schema_name", "table_name", "body", "author").
		Values(schema, table, body, author).
		Suffix("ON CONFLICT (schema_name, table_name) DO UPDATE SET body = EXCLUDED.body, author = EXCLUDED.author, updated_at = NOW()").
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("storing template %s.%s: %w", schema, table, err)
	}
	return nil
}

// Delete removes the template for schema.table.
func (s *Store) Delete(ctx context.Context, schema, table string) error {
	query, args, err := psq.Delete(templatesTable).
		Where(sq.Eq{"schema_name": schema, "table_name": table}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting template %s.%s: %w", schema, table, err)
	}
	return nil
}

// Verify interface compliance.
var _ templates.Store = (*Store)(nil)
