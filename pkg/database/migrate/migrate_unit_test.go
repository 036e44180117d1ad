package migrate

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const migrateTestFactoryError = "factory error"

type mockMigrator struct {
	upErr      error
	downErr    error
	stepsErr   error
	stepsArg   int
	versionVal uint
	dirty      bool
	versionErr error
}

func (m *mockMigrator) Up() error   { return m.upErr }
func (m *mockMigrator) Down() error { return m.downErr }
func (m *mockMigrator) Steps(n int) error {
	m.stepsArg = n
	return m.stepsErr
}

func (m *mockMigrator) Version() (version uint, dirty bool, err error) {
	return m.versionVal, m.dirty, m.versionErr
}

func withMigrator(t *testing.T, m migrator, err error) {
	t.Helper()
	orig := migratorFactory
	t.Cleanup(func() { migratorFactory = orig })
	migratorFactory = func(_ *sql.DB) (migrator, error) {
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"000001_mask_templates.up.sql",
		"000001_mask_templates.down.sql",
		"000002_mask_templates_author.up.sql",
		"000002_mask_templates_author.down.sql",
	}, names)
}

func TestMigrationFiles(t *testing.T) {
	up, err := migrations.ReadFile("migrations/000001_mask_templates.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS mask_templates")
	assert.Contains(t, string(up), "PRIMARY KEY (schema_name, table_name)")

	down, err := migrations.ReadFile("migrations/000001_mask_templates.down.sql")
	require.NoError(t, err)
	assert.Contains(t, string(down), "DROP TABLE")
}

func TestRun(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		withMigrator(t, &mockMigrator{versionVal: 2}, nil)
		assert.NoError(t, Run(nil))
	})

	t.Run("no change is not an error", func(t *testing.T) {
		withMigrator(t, &mockMigrator{upErr: migrate.ErrNoChange, versionVal: 2}, nil)
		assert.NoError(t, Run(nil))
	})

	t.Run("up error", func(t *testing.T) {
		withMigrator(t, &mockMigrator{upErr: errors.New("up failed")}, nil)
		err := Run(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "running migrations")
	})

	t.Run(migrateTestFactoryError, func(t *testing.T) {
		withMigrator(t, nil, errors.New("factory failed"))
		err := Run(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "factory failed")
	})

	t.Run("version error", func(t *testing.T) {
		withMigrator(t, &mockMigrator{versionErr: errors.New("version failed")}, nil)
		err := Run(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "getting migration version")
	})

	t.Run("nil version is not an error", func(t *testing.T) {
		withMigrator(t, &mockMigrator{versionErr: migrate.ErrNilVersion}, nil)
		assert.NoError(t, Run(nil))
	})

	t.Run("dirty state", func(t *testing.T) {
		withMigrator(t, &mockMigrator{versionVal: 2, dirty: true}, nil)
		assert.NoError(t, Run(nil))
	})
}

func TestVersion(t *testing.T) {
	withMigrator(t, &mockMigrator{versionVal: 2}, nil)
	version, dirty, err := Version(nil)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	withMigrator(t, nil, errors.New(migrateTestFactoryError))
	_, _, err = Version(nil)
	assert.Error(t, err)
}

func TestDown(t *testing.T) {
	withMigrator(t, &mockMigrator{downErr: migrate.ErrNoChange}, nil)
	assert.NoError(t, Down(nil))

	withMigrator(t, &mockMigrator{downErr: errors.New("down failed")}, nil)
	err := Down(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rolling back migrations")
}

func TestSteps(t *testing.T) {
	m := &mockMigrator{}
	withMigrator(t, m, nil)
	require.NoError(t, Steps(nil, -1))
	assert.Equal(t, -1, m.stepsArg)

	withMigrator(t, &mockMigrator{stepsErr: errors.New("steps failed")}, nil)
	err := Steps(nil, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stepping migrations")
}
