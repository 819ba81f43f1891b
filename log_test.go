package quarry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/quarry/dialect/sql"
)

func TestSlogLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx := context.Background()

	v, err := sql.BindValue(7)
	require.NoError(t, err)
	params := map[string]sql.Value{"p0": v}

	l.LogQuery(ctx, "SELECT * FROM `users` WHERE `id` = :p0", params, 2*time.Millisecond, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "query executed", rec["msg"])
	assert.Contains(t, rec["query"], "`users`")
	assert.Contains(t, rec["params"], "p0=7")
	assert.Equal(t, float64(1), rec["rows"])

	buf.Reset()
	l.LogError(ctx, "DELETE FROM `users`", nil, errors.New("deadlock"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "query failed", rec["msg"])
	assert.Equal(t, "deadlock", rec["error"])
}

func TestFileLogger(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "queries.log")
	l, err := NewFileLogger(path)
	require.NoError(t, err)

	l.LogQuery(context.Background(), "SELECT 1", nil, time.Millisecond, 1)
	require.NoError(t, l.Close())

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf, &rec))
	assert.Equal(t, "SELECT 1", rec["query"])
}
