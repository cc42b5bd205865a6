package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func TestMigrationFiles_SortedSQLOnly(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"0002_b.sql": "SELECT 2",
		"0001_a.sql": "SELECT 1",
		"README.md":  "docs",
	})

	files, err := migrationFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "0001_a.sql", filepath.Base(files[0]))
	assert.Equal(t, "0002_b.sql", filepath.Base(files[1]))
}

func TestRunMigrations_SkipsApplied(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"0001_bookings.sql": "CREATE TABLE bookings (id UUID)",
		"0002_index.sql":    "CREATE INDEX bookings_idx ON bookings (id)",
	})

	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	conn := sqlx.NewDb(raw, "postgres")

	mock.ExpectExec(`SELECT pg_advisory_lock`).WithArgs(migrationLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT name FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_bookings.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE INDEX bookings_idx`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).WithArgs("0002_index.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`SELECT pg_advisory_unlock`).WithArgs(migrationLockID).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, RunMigrations(context.Background(), conn, dir))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_MissingDir(t *testing.T) {
	raw, _, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	err = RunMigrations(context.Background(), sqlx.NewDb(raw, "postgres"), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
