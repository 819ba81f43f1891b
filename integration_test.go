package quarry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/quarry"
	"github.com/syssam/quarry/cache/memcache"
	"github.com/syssam/quarry/dialect"
	sqld "github.com/syssam/quarry/dialect/sql"
)

// openSQLite returns an engine over an in-memory database seeded with
// the orders fixture.
func openSQLite(t *testing.T, opts ...quarry.Option) *quarry.Engine {
	t.Helper()
	drv, err := sqld.Open(dialect.SQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	// A shared in-memory database disappears with its last connection;
	// keep idle connections around so it survives between statements.
	// More than one connection is needed because the pagination count
	// query runs while the main cursor is still open.
	drv.DB().SetMaxIdleConns(4)
	t.Cleanup(func() { drv.Close() })

	e := quarry.New(drv, opts...)
	ctx := context.Background()

	e.Builder().Raw(`CREATE TABLE orders (id TEXT PRIMARY KEY, value REAL NOT NULL, status INTEGER NOT NULL)`, nil)
	_, err = e.Execute(ctx)
	require.NoError(t, err)

	e.Builder().InsertBatch("orders", []map[string]any{
		{"id": uuid.NewString(), "value": 10.5, "status": 1},
		{"id": uuid.NewString(), "value": 20.0, "status": 1},
		{"id": uuid.NewString(), "value": 5.0, "status": 0},
		{"id": uuid.NewString(), "value": 7.5, "status": 0},
	})
	res, err := e.Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, res.RowCount())
	return e
}

func TestSQLiteAggregates(t *testing.T) {
	e := openSQLite(t)
	ctx := context.Background()

	e.Builder().Select("orders").Where("status", sqld.OpEQ, 1)
	sum, err := e.Sum(ctx, "value")
	require.NoError(t, err)
	assert.InDelta(t, 30.5, sum, 1e-9)

	// The aggregate left the filtered statement in place.
	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	e.Builder().Reset()

	e.Builder().Select("orders")
	n, err = e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	avg, err := e.Avg(ctx, "value")
	require.NoError(t, err)
	assert.InDelta(t, 10.75, avg, 1e-9)

	ok, err := e.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	e.Builder().Reset()

	e.Builder().Select("orders").Where("value", sqld.OpGT, 100)
	ok, err = e.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStreamingAndPagination(t *testing.T) {
	e := openSQLite(t)
	ctx := context.Background()

	e.Builder().Select("orders", "value").Where("status", sqld.OpEQ, 0).OrderBy("value")
	res, err := e.Execute(ctx)
	require.NoError(t, err)
	require.True(t, res.Streaming())
	rows, err := res.All()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 5.0, rows[0]["value"])
	assert.Equal(t, 7.5, rows[1]["value"])

	e.Builder().Select("orders").OrderBy("value").Limit(3)
	res, err = e.Execute(ctx)
	require.NoError(t, err)
	defer res.Close()
	page := res.Pagination()
	require.NotNil(t, page)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 4, page.TotalItems)
}

func TestSQLiteCachedRoundTrip(t *testing.T) {
	e := openSQLite(t, quarry.WithCache(memcache.New()))
	ctx := context.Background()

	e.Builder().Select("orders", "value").Where("status", sqld.OpEQ, 1).OrderBy("value", sqld.Desc)
	first, err := e.Cached(time.Minute).Execute(ctx)
	require.NoError(t, err)
	firstRows, err := first.All()
	require.NoError(t, err)

	// Mutate the table; the cached entry must still serve the old rows.
	e.Builder().Delete("orders").Where("status", sqld.OpEQ, 1)
	_, err = e.Execute(ctx)
	require.NoError(t, err)

	e.Builder().Select("orders", "value").Where("status", sqld.OpEQ, 1).OrderBy("value", sqld.Desc)
	second, err := e.Cached(time.Minute).Execute(ctx)
	require.NoError(t, err)
	secondRows, err := second.All()
	require.NoError(t, err)
	assert.Equal(t, len(firstRows), len(secondRows))
	require.Len(t, secondRows, 2)
	assert.Equal(t, 20.0, secondRows[0]["value"])

	// Flushing the table exposes the live state again.
	require.NoError(t, e.FlushTable(ctx, "orders"))
	e.Builder().Select("orders", "value").Where("status", sqld.OpEQ, 1).OrderBy("value", sqld.Desc)
	third, err := e.Cached(time.Minute).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, third.RowCount())
}

func TestSQLiteTransactionalRollback(t *testing.T) {
	e := openSQLite(t)
	ctx := context.Background()
	boom := errors.New("abort")

	err := e.Transactional(ctx, func(e *quarry.Engine, _ dialect.Tx) error {
		e.Builder().Delete("orders")
		if _, err := e.Execute(ctx); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	e.Builder().Select("orders")
	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n, "rollback restores the fixture rows")
	e.Builder().Reset()
}

func TestSQLiteSavepointNesting(t *testing.T) {
	e := openSQLite(t)
	ctx := context.Background()
	boom := errors.New("inner abort")

	err := e.Transactional(ctx, func(e *quarry.Engine, _ dialect.Tx) error {
		e.Builder().Delete("orders").Where("status", sqld.OpEQ, 0)
		if _, err := e.Execute(ctx); err != nil {
			return err
		}
		inner := e.Transactional(ctx, func(e *quarry.Engine, _ dialect.Tx) error {
			e.Builder().Delete("orders")
			if _, err := e.Execute(ctx); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, inner, boom)
		return nil
	})
	require.NoError(t, err)

	// The outer delete committed, the inner one rolled back.
	e.Builder().Select("orders")
	n, err := e.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSQLiteExplain(t *testing.T) {
	e := openSQLite(t)

	e.Builder().Select("orders").Where("status", sqld.OpEQ, 1)
	rows, err := e.Explain(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	// The statement is still executable afterwards.
	n, err := e.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
