package db

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrate struct {
	upErr      error
	version    uint
	versionErr error
	closed     bool
}

func (f *fakeMigrate) Up() error { return f.upErr }

func (f *fakeMigrate) Version() (uint, bool, error) { return f.version, false, f.versionErr }

func (f *fakeMigrate) Close() (error, error) {
	f.closed = true
	return nil, nil
}

func TestMigrator_Up(t *testing.T) {
	tests := []struct {
		name    string
		upErr   error
		wantErr bool
	}{
		{name: "applies", upErr: nil},
		{name: "already current", upErr: migrate.ErrNoChange},
		{name: "fails", upErr: errors.New("relation exists"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{m: &fakeMigrate{upErr: tt.upErr}}

			err := m.Up()
			if tt.wantErr {
				assert.ErrorContains(t, err, "relation exists")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMigrator_VersionOnEmptyDatabase(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}

	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)
}

func TestMigrator_Close(t *testing.T) {
	fake := &fakeMigrate{}
	require.NoError(t, (&Migrator{m: fake}).Close())
	assert.True(t, fake.closed)
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/tourhub", migrateURL("postgres://u:p@db:5432/tourhub"))
	assert.Equal(t, "pgx5://u:p@db:5432/tourhub", migrateURL("postgresql://u:p@db:5432/tourhub"))
	assert.Equal(t, "pgx5://db/tourhub", migrateURL("pgx5://db/tourhub"))
}

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)
}
