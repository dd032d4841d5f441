package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCreatesTable(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audience_hash_runs").WillReturnResult(sqlmock.NewResult(0, 0))

	var out bytes.Buffer
	require.NoError(t, migrate(context.Background(), db, 0, &out))
	assert.Contains(t, out.String(), "up to date")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateList(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	mock.ExpectPing()
	mock.ExpectQuery("FROM audience_hash_runs").WithArgs(3).WillReturnRows(
		sqlmock.NewRows([]string{"id", "command", "source", "output", "rows_in", "rows_filtered", "rows_out",
			"duplicates", "unresolved_countries", "malformed", "match_kinds",
			"status", "error", "started_at", "finished_at"}).
			AddRow(uuid.New().String(), "hash", "customers.xlsx", "digests.csv", 10, 0, 8, 2, 0, 0, nil,
				"succeeded", "", started, started))

	var out bytes.Buffer
	require.NoError(t, migrate(context.Background(), db, 3, &out))
	assert.Contains(t, out.String(), "customers.xlsx")
	assert.Contains(t, out.String(), "Total: 1 runs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "DATABASE_URL is required")
}
