package masking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/table-masker/pkg/database"
	"github.com/txn2/table-masker/pkg/templates"
)

var bootstrapSQL = regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "masked"`)

const (
	accountsTemplate = "CREATE TABLE masked.accounts_$(partition_name_from_json_input)_masked AS SELECT id FROM $(schema_name_from_json_input).accounts"
	ordersTemplate   = "CREATE TABLE masked.orders_$(partition_name_from_json_input)_masked AS SELECT id FROM $(schema_name_from_json_input).orders"
)

// countingConn records how often the provisioner releases its connection.
type countingConn struct {
	database.Conn
	closes int
}

func (c *countingConn) Close() error {
	c.closes++
	return c.Conn.Close()
}

type fakeConnector struct {
	conn  *countingConn
	err   error
	calls int
}

func (f *fakeConnector) Connect(_ context.Context) (database.Conn, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

func newMockConnector(t *testing.T) (*fakeConnector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &fakeConnector{conn: &countingConn{Conn: db}}, mock
}

func financeStore() templates.Store {
	return templates.NewFileStore(fstest.MapFS{
		"finance/accounts_mask.sql": {Data: []byte(accountsTemplate)},
		"finance/orders_mask.sql":   {Data: []byte(ordersTemplate)},
		"empty":                     {Mode: fs.ModeDir},
	})
}

type failingStore struct {
	tablesErr   error
	templateErr map[string]error
	tables      []string
}

func (s *failingStore) Tables(_ context.Context, _ string) ([]string, error) {
	return s.tables, s.tablesErr
}

func (s *failingStore) Template(_ context.Context, _, table string) (string, error) {
	if err := s.templateErr[table]; err != nil {
		return "", err
	}
	return "SELECT '" + table + "'", nil
}

func TestProvision_CreatesEveryTable(t *testing.T) {
	connector, mock := newMockConnector(t)

	mock.ExpectExec(bootstrapSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE masked.accounts_2024Q1_masked AS SELECT id FROM finance.accounts")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE masked.orders_2024Q1_masked AS SELECT id FROM finance.orders")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	p := New(connector, financeStore())
	outcome, err := p.Provision(context.Background(), Request{Schema: "finance", Partition: "2024Q1"})
	require.NoError(t, err)

	assert.Equal(t, "finance", outcome.Schema)
	assert.Equal(t, "2024Q1", outcome.Partition)
	assert.Equal(t, []string{"masked.accounts_2024Q1_masked", "masked.orders_2024Q1_masked"}, outcome.Created)
	assert.Empty(t, outcome.Failed)
	assert.Equal(t, 2, outcome.Attempted())
	assert.Equal(t, 1, connector.conn.closes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvision_IsolatesTableFailures(t *testing.T) {
	connector, mock := newMockConnector(t)

	mock.ExpectExec(bootstrapSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("accounts").WillReturnError(errors.New(`syntax error at or near "SELEC"`))
	mock.ExpectExec("orders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	outcome, err := New(connector, financeStore()).
		Provision(context.Background(), Request{Schema: "finance", Partition: "2024Q1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"masked.orders_2024Q1_masked"}, outcome.Created)
	require.Len(t, outcome.Failed, 1)
	assert.Equal(t, "accounts", outcome.Failed[0].Table)
	assert.Contains(t, outcome.Failed[0].Err.Error(), "syntax error")
	assert.Equal(t, []string{"accounts"}, outcome.FailedTables())
	assert.Equal(t, 1, connector.conn.closes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvision_TemplateLoadFailureIsIsolated(t *testing.T) {
	connector, mock := newMockConnector(t)
	store := &failingStore{
		tables:      []string{"b", "a"},
		templateErr: map[string]error{"a": errors.New("read failed")},
	}

	mock.ExpectExec(bootstrapSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT 'b'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	outcome, err := New(connector, store).
		Provision(context.Background(), Request{Schema: "finance", Partition: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"masked.b_p1_masked"}, outcome.Created)
	assert.Equal(t, []string{"a"}, outcome.FailedTables())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvision_EmptySchema(t *testing.T) {
	connector, mock := newMockConnector(t)

	mock.ExpectExec(bootstrapSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	outcome, err := New(connector, financeStore()).
		Provision(context.Background(), Request{Schema: "empty", Partition: "2024Q1"})
	require.NoError(t, err)
	assert.Zero(t, outcome.Attempted())
	assert.Equal(t, 1, connector.conn.closes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvision_FatalStages(t *testing.T) {
	tests := []struct {
		name       string
		req        Request
		connectErr error
		setup      func(sqlmock.Sqlmock)
		store      templates.Store
		wantKind   Kind
		wantCalls  int
		wantCloses int
	}{
		{
			name:      "missing partition",
			req:       Request{Schema: "finance"},
			wantKind:  KindBadRequest,
			wantCalls: 0,
		},
		{
			name:      "missing both",
			req:       Request{},
			wantKind:  KindBadRequest,
			wantCalls: 0,
		},
		{
			name:       "connection failure",
			req:        Request{Schema: "finance", Partition: "2024Q1"},
			connectErr: errors.New("token expired"),
			wantKind:   KindConnection,
			wantCalls:  1,
		},
		{
			name: "bootstrap failure",
			req:  Request{Schema: "finance", Partition: "2024Q1"},
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(bootstrapSQL).WillReturnError(errors.New("permission denied for database"))
			},
			wantKind:   KindBootstrap,
			wantCalls:  1,
			wantCloses: 1,
		},
		{
			name: "schema not found",
			req:  Request{Schema: "hr", Partition: "2024Q1"},
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(bootstrapSQL).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantKind:   KindNotFound,
			wantCalls:  1,
			wantCloses: 1,
		},
		{
			name: "store failure",
			req:  Request{Schema: "finance", Partition: "2024Q1"},
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(bootstrapSQL).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			store:      &failingStore{tablesErr: errors.New("registry unavailable")},
			wantKind:   KindInternal,
			wantCalls:  1,
			wantCloses: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connector, mock := newMockConnector(t)
			connector.err = tt.connectErr
			if tt.setup != nil {
				tt.setup(mock)
			}
			store := tt.store
			if store == nil {
				store = financeStore()
			}

			outcome, err := New(connector, store).Provision(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, outcome)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Equal(t, tt.wantCalls, connector.calls)
			assert.Equal(t, tt.wantCloses, connector.conn.closes)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(bootstrapSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(bootstrapSQL).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(bootstrapSQL).WillReturnError(sql.ErrConnDone)

	err = EnsureSchema(context.Background(), db)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestRequest_Validate(t *testing.T) {
	assert.NoError(t, Request{Schema: "s", Partition: "p"}.Validate())
	assert.EqualError(t, Request{}.Validate(), "missing schema_name and partition_name")
	assert.EqualError(t, Request{Schema: "s"}.Validate(), "missing partition_name")
	assert.Equal(t, []string{"schema_name"}, Request{Partition: "p"}.MissingFields())
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(KindNotFound, templates.ErrSchemaNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.ErrorIs(t, err, templates.ErrSchemaNotFound)
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "internal", KindInternal.String())
}

func TestMaskedTableName(t *testing.T) {
	assert.Equal(t, "masked.orders_2024Q1_masked", MaskedTableName("orders", "2024Q1"))
}
