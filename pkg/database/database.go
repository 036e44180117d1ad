// Package database opens PostgreSQL connections authenticated with per-dial tokens.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/txn2/table-masker/pkg/config"
	"github.com/txn2/table-masker/pkg/credentials"
)

// Conn is a live, auto-committing database session owned by one caller.
// *sql.DB satisfies it.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

// Connector yields a new Conn or fails.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// Postgres opens connections using lib/pq, asking the token provider for a
// fresh password on every attempt.
type Postgres struct {
	cfg    config.DatabaseConfig
	tokens credentials.TokenProvider
	openDB func(dsn string) (*sql.DB, error)
}

// NewPostgres creates a Postgres connector.
func NewPostgres(cfg config.DatabaseConfig, tokens credentials.TokenProvider) *Postgres {
	return &Postgres{
		cfg:    cfg,
		tokens: tokens,
		openDB: openPQ,
	}
}

func openPQ(dsn string) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pq connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// Connect acquires a token, opens a single-connection pool and verifies it with a ping.
// The caller must Close the returned Conn.
func (p *Postgres) Connect(ctx context.Context) (Conn, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring database token: %w", err)
	}

	db, err := p.openDB(DSN(p.cfg, token))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One exclusive session; database/sql runs each statement in autocommit mode.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", p.cfg.Host, err)
	}

	slog.Info("connected to database", "host", p.cfg.Host, "database", p.cfg.Name)
	return db, nil
}

// Pool opens a multi-connection pool for long-lived use such as the template
// registry. Each new physical connection requests a fresh token.
func (p *Postgres) Pool(ctx context.Context, maxOpen int) (*sql.DB, error) {
	db := sql.OpenDB(&tokenConnector{cfg: p.cfg, tokens: p.tokens})
	db.SetMaxOpenConns(maxOpen)
	// IAM tokens expire after 15 minutes; recycle before that.
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s: %w", p.cfg.Host, err)
	}
	return db, nil
}

// tokenConnector is a driver.Connector that builds a lib/pq connector with a
// fresh token for every dial.
type tokenConnector struct {
	cfg    config.DatabaseConfig
	tokens credentials.TokenProvider
}

func (c *tokenConnector) Connect(ctx context.Context) (driver.Conn, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring database token: %w", err)
	}
	pc, err := pq.NewConnector(DSN(c.cfg, token))
	if err != nil {
		return nil, fmt.Errorf("creating pq connector: %w", err)
	}
	return pc.Connect(ctx)
}

func (*tokenConnector) Driver() driver.Driver {
	return &pq.Driver{}
}

// DSN builds a lib/pq key/value connection string. Values are always quoted
// because IAM tokens contain characters that are significant in DSNs.
func DSN(cfg config.DatabaseConfig, password string) string {
	params := map[string]string{
		"host":     cfg.Host,
		"port":     strconv.Itoa(cfg.Port),
		"user":     cfg.User,
		"dbname":   cfg.Name,
		"password": password,
	}
	if cfg.SSLMode != "" {
		params["sslmode"] = cfg.SSLMode
	}
	if cfg.ConnectTimeout > 0 {
		params["connect_timeout"] = strconv.Itoa(int(cfg.ConnectTimeout / time.Second))
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteDSNValue(params[k]))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Verify interface compliance.
var (
	_ Connector = (*Postgres)(nil)
	_ Conn      = (*sql.DB)(nil)

	_ driver.Connector = (*tokenConnector)(nil)
)
