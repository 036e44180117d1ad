// Package server wires configuration into a runnable provisioning service.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/txn2/table-masker/pkg/config"
	"github.com/txn2/table-masker/pkg/credentials"
	"github.com/txn2/table-masker/pkg/database"
	"github.com/txn2/table-masker/pkg/handler"
	"github.com/txn2/table-masker/pkg/health"
	"github.com/txn2/table-masker/pkg/masking"
	"github.com/txn2/table-masker/pkg/templates"
	tplpostgres "github.com/txn2/table-masker/pkg/templates/postgres"
)

// Version is set at build time.
var Version = "dev"

const registryPoolSize = 4

// App holds the long-lived components built from one Config.
type App struct {
	Config    *config.Config
	Connector *database.Postgres
	Store     templates.Store
	Handler   *handler.Handler

	probes   map[string]health.Probe
	registry *sql.DB
}

// New builds the application. The Config must already be validated and is
// not modified.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	tokens, err := credentials.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating token provider: %w", err)
	}

	app := &App{
		Config:    cfg,
		Connector: database.NewPostgres(cfg.Database, tokens),
		probes:    map[string]health.Probe{},
	}

	if err := app.openStore(ctx); err != nil {
		return nil, err
	}

	app.Handler = handler.New(masking.New(app.Connector, app.Store))
	return app, nil
}

func (a *App) openStore(ctx context.Context) error {
	switch a.Config.Templates.Source {
	case config.SourcePostgres:
		db, err := a.Connector.Pool(ctx, registryPoolSize)
		if err != nil {
			return fmt.Errorf("opening template registry: %w", err)
		}
		a.registry = db
		a.Store = tplpostgres.New(db)
		a.probes["template_registry"] = db.PingContext
	default:
		root := a.Config.Templates.Root
		a.Store = templates.NewDirStore(root)
		a.probes["template_root"] = func(context.Context) error {
			info, err := os.Stat(root)
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", root)
			}
			return nil
		}
	}
	return nil
}

// Registry returns the template registry pool, or nil for the file store.
func (a *App) Registry() *sql.DB {
	return a.registry
}

// Close releases the registry pool, if any.
func (a *App) Close() error {
	if a.registry != nil {
		return a.registry.Close()
	}
	return nil
}

// Serve runs the HTTP server until ctx is cancelled, then drains.
func (a *App) Serve(ctx context.Context) error {
	checker := health.NewChecker(a.probes)
	srv := &http.Server{
		Addr:              a.Config.Server.Address,
		Handler:           handler.NewMux(a.Handler, checker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "address", srv.Addr, "version", Version)
		errCh <- srv.ListenAndServe()
	}()
	checker.SetReady()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	checker.SetDraining()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
