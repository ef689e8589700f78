package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLoadMigrations_Ordered(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_late.sql": {Data: []byte("CREATE TABLE late (id INTEGER);")},
		"migrations/002_b.sql":    {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"migrations/001_a.sql":    {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"migrations/README.md":    {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{migrations[0].Version, migrations[1].Version, migrations[2].Version})
	assert.Equal(t, "late", migrations[2].Name)
	assert.Len(t, migrations[0].Checksum, 64)
}

func TestLoadMigrations_Invalid(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{"no name", fstest.MapFS{"001.sql": {Data: []byte("SELECT 1;")}}},
		{"bad version", fstest.MapFS{"abc_x.sql": {Data: []byte("SELECT 1;")}}},
		{"zero version", fstest.MapFS{"000_x.sql": {Data: []byte("SELECT 1;")}}},
		{"duplicate", fstest.MapFS{
			"001_a.sql": {Data: []byte("SELECT 1;")},
			"1_b.sql":   {Data: []byte("SELECT 1;")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMigrations(tt.fsys)
			assert.Error(t, err)
		})
	}
}

func TestMigrate_EmbeddedSchema(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate(), "second run is a no-op")

	status, err := NewMigrator(db, nil).Status(Migrations)
	require.NoError(t, err)
	require.NotEmpty(t, status)
	for _, s := range status {
		assert.True(t, s.Applied, "migration %d_%s", s.Version, s.Name)
	}

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM claims").Scan(&n))
	assert.Zero(t, n)
}

func TestRunMigrations_PendingAndChanged(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, nil)

	v1 := fstest.MapFS{"001_a.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")}}
	require.NoError(t, m.RunMigrations(v1))

	v2 := fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"002_b.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
	}
	status, err := m.Status(v2)
	require.NoError(t, err)
	assert.Equal(t, []MigrationStatus{
		{Version: 1, Name: "a", Applied: true},
		{Version: 2, Name: "b", Applied: false},
	}, status)

	require.NoError(t, m.RunMigrations(v2))

	edited := fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE a (id INTEGER, extra TEXT);")},
		"002_b.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
	}
	err = m.RunMigrations(edited)
	assert.ErrorIs(t, err, ErrMigrationChanged)
}

func TestRunMigrations_FailedMigrationIsNotRecorded(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, nil)

	bad := fstest.MapFS{"001_bad.sql": {Data: []byte("CREATE TABLE oops (;")}}
	require.Error(t, m.RunMigrations(bad))

	status, err := m.Status(bad)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.False(t, status[0].Applied)
}
