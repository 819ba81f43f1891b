package sql

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/quarry/dialect"
)

func TestDebugDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	drv := NewDebugDriver(OpenDB(dialect.Postgres, db), DebugWithLogger(logger))

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT 1", []any{}, rows))
	require.NoError(t, rows.Close())

	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Exec(context.Background(), "UPDATE t SET a = $1", []any{1}, nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())

	out := buf.String()
	assert.Contains(t, out, "driver query")
	assert.Contains(t, out, "SELECT 1")
	assert.Contains(t, out, "begin transaction")
	assert.Contains(t, out, "tx exec")
	assert.Contains(t, out, "commit transaction")
	assert.Equal(t, 4, strings.Count(out, "\n"))
}
