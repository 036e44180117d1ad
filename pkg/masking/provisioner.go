// Package masking provisions masked copies of sensitive tables for one
// source schema and partition.
//
// A request runs in stages: validate, connect, ensure the destination
// schema, resolve templates, then render and execute each template.
// The first four stages are fatal on failure and return an *Error. The last
// stage isolates failures per table so one broken template cannot block the
// rest of the schema.
package masking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/txn2/table-masker/pkg/database"
	"github.com/txn2/table-masker/pkg/templates"
)

// Request names the source schema and partition to provision.
type Request struct {
	ID        string // correlation ID for logs, optional
	Schema    string
	Partition string
}

// MissingFields returns the JSON names of the required fields that are empty.
func (r Request) MissingFields() []string {
	var missing []string
	if r.Schema == "" {
		missing = append(missing, "schema_name")
	}
	if r.Partition == "" {
		missing = append(missing, "partition_name")
	}
	return missing
}

// Validate returns an error naming every missing field.
func (r Request) Validate() error {
	if missing := r.MissingFields(); len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, " and "))
	}
	return nil
}

// TableFailure records a table whose template could not be loaded or executed.
type TableFailure struct {
	Table string
	Err   error
}

// Outcome summarizes a request that reached the table stage.
type Outcome struct {
	Schema    string
	Partition string
	Created   []string // masked table names
	Failed    []TableFailure
}

// Attempted returns the number of templates processed.
func (o *Outcome) Attempted() int {
	return len(o.Created) + len(o.Failed)
}

// FailedTables returns the source table names that failed.
func (o *Outcome) FailedTables() []string {
	tables := make([]string, 0, len(o.Failed))
	for _, f := range o.Failed {
		tables = append(tables, f.Table)
	}
	return tables
}

// Provisioner runs provisioning requests. It holds no per-request state and
// may be shared, but each request owns its own connection.
type Provisioner struct {
	connector database.Connector
	store     templates.Store
}

// New creates a Provisioner.
func New(connector database.Connector, store templates.Store) *Provisioner {
	return &Provisioner{
		connector: connector,
		store:     store,
	}
}

// Provision runs one request end to end. A non-nil error is always an *Error
// and the Outcome is nil. Table failures are reported in the Outcome only.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*Outcome, error) {
	log := slog.With("request_id", req.ID, "schema", req.Schema, "partition", req.Partition)

	if err := req.Validate(); err != nil {
		return nil, newError(KindBadRequest, err)
	}

	conn, err := p.connector.Connect(ctx)
	if err != nil {
		log.Error("database connection failed", "error", err)
		return nil, newError(KindConnection, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Warn("closing database connection", "error", cerr)
		}
	}()

	if err := EnsureSchema(ctx, conn); err != nil {
		log.Error("schema bootstrap failed", "error", err)
		return nil, newError(KindBootstrap, err)
	}
	log.Info("ensured destination schema exists", "destination", DestinationSchema)

	tables, err := templates.Resolve(ctx, p.store, req.Schema)
	if errors.Is(err, templates.ErrSchemaNotFound) {
		log.Warn("no template directory for schema")
		return nil, newError(KindNotFound, err)
	}
	if err != nil {
		log.Error("resolving templates failed", "error", err)
		return nil, newError(KindInternal, err)
	}

	outcome := &Outcome{Schema: req.Schema, Partition: req.Partition}
	for _, table := range tables {
		if err := p.provisionTable(ctx, conn, req, table); err != nil {
			log.Warn("masking table failed", "table", table, "error", err)
			outcome.Failed = append(outcome.Failed, TableFailure{Table: table, Err: err})
			continue
		}
		name := MaskedTableName(table, req.Partition)
		log.Info("created masked table", "table", name)
		outcome.Created = append(outcome.Created, name)
	}

	log.Info("provisioning finished",
		"templates", len(tables),
		"created", len(outcome.Created),
		"failed", len(outcome.Failed))
	return outcome, nil
}

func (p *Provisioner) provisionTable(ctx context.Context, conn database.Conn, req Request, table string) error {
	body, err := p.store.Template(ctx, req.Schema, table)
	if err != nil {
		return err
	}

	stmt := templates.Render(body, req.Schema, req.Partition)
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("executing template: %w", err)
	}
	return nil
}
