package quarry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/syssam/quarry/dialect"
	"github.com/syssam/quarry/dialect/sql"
)

// Engine couples a statement builder to a connection collaborator and
// orchestrates execution: cache lookup, placeholder compilation, typed
// binding, row streaming or materialization, pagination totals and
// cache writes.
//
// An engine is single-owner and synchronous; every operation runs to
// completion on the caller's goroutine.
type Engine struct {
	drv       dialect.Driver
	b         *sql.Builder
	cache     Cache
	logger    QueryLogger
	paginator Paginator
	ttl       time.Duration
	tx        dialect.Tx
	txDepth   int
	lastID    int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache sets the cache collaborator. Without it, Cached is a no-op.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithLogger sets the optional query logger.
func WithLogger(l QueryLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithPaginator replaces the default paginator collaborator.
func WithPaginator(p Paginator) Option {
	return func(e *Engine) { e.paginator = p }
}

// New returns an engine bound to the given driver.
func New(drv dialect.Driver, opts ...Option) *Engine {
	e := &Engine{
		drv:       drv,
		b:         sql.Dialect(drv.Dialect()),
		paginator: DefaultPaginator,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Builder returns the engine's statement builder. The builder is reset
// by Execute once a statement completes, so the same instance starts
// the next statement.
func (e *Engine) Builder() *sql.Builder { return e.b }

// Driver returns the connection collaborator.
func (e *Engine) Driver() dialect.Driver { return e.drv }

// LastInsertID returns the identifier generated by the most recent
// INSERT executed through the engine.
func (e *Engine) LastInsertID() int64 { return e.lastID }

// Cached arms result caching for the next execution with the given
// TTL. The armed state is consumed by the execution whether it hits
// the cache or the backend.
func (e *Engine) Cached(ttl time.Duration) *Engine {
	e.ttl = ttl
	return e
}

// conn returns the live execution handle: the open transaction when
// one is active, the driver otherwise.
func (e *Engine) conn() dialect.ExecQuerier {
	if e.tx != nil {
		return e.tx
	}
	return e.drv
}

// Execute runs the builder's current statement and returns the result
// envelope. The builder state is reset afterwards. See the package
// documentation for the full orchestration order.
func (e *Engine) Execute(ctx context.Context) (*Result, error) {
	ttl := e.ttl
	e.ttl = 0
	return e.execute(ctx, e.b, ttl, true)
}

func (e *Engine) execute(ctx context.Context, b *sql.Builder, ttl time.Duration, resetAfter bool) (*Result, error) {
	query, err := b.Render()
	if err != nil {
		return nil, err
	}
	params := b.Params()
	armed := ttl > 0 && e.cache != nil
	var key string
	if armed {
		key = CacheKey(b.DialectName(), b.Table(), query, params)
		if res, ok := e.cacheLookup(ctx, key); ok {
			if resetAfter {
				b.Reset()
			}
			return res, nil
		}
	}
	compiled, args, err := sql.Compile(b.DialectName(), query, params)
	if err != nil {
		return nil, err
	}
	var (
		isQuery  = statementReturnsRows(b, query)
		start    = time.Now()
		rows     = &sql.Rows{}
		affected = 0
	)
	if isQuery {
		err = e.conn().Query(ctx, compiled, args, rows)
	} else {
		var res sql.Result
		if err = e.conn().Exec(ctx, compiled, args, &res); err == nil {
			if n, aerr := res.RowsAffected(); aerr == nil {
				affected = int(n)
			}
			if id, ierr := res.LastInsertId(); ierr == nil {
				e.lastID = id
			}
		}
	}
	duration := time.Since(start)
	if err != nil {
		if e.logger != nil {
			e.logger.LogError(ctx, query, params, err)
		}
		return nil, &ExecError{SQL: query, Params: params, Err: err}
	}
	if !isQuery {
		if resetAfter {
			b.Reset()
		}
		if e.logger != nil {
			e.logger.LogQuery(ctx, query, params, duration, affected)
		}
		return &Result{count: affected, lastID: e.lastID, closed: true}, nil
	}
	// Pagination needs the statement after the builder has been reset
	// for the next one.
	snapshot := b.Clone()
	if resetAfter {
		b.Reset()
	}
	res, err := newStreamResult(rows)
	if err != nil {
		return nil, err
	}
	if page, perr := e.paginate(ctx, snapshot); perr != nil {
		res.Close()
		return nil, perr
	} else if page != nil {
		res.page = page
	}
	if !armed {
		if e.logger != nil {
			e.logger.LogQuery(ctx, query, params, duration, -1)
		}
		return res, nil
	}
	buffered, err := res.All()
	if err != nil {
		return nil, err
	}
	if buffered == nil {
		buffered = []map[string]any{}
	}
	if e.logger != nil {
		e.logger.LogQuery(ctx, query, params, duration, len(buffered))
	}
	e.cacheStore(ctx, key, &CachePayload{
		Rows:       buffered,
		RowCount:   len(buffered),
		Pagination: res.page,
		CachedAt:   time.Now(),
		TTL:        int64(ttl / time.Second),
	}, ttl)
	return newRowsResult(buffered, res.page), nil
}

// cacheLookup returns a materialized result on a structurally valid
// cache hit. Every cache fault degrades to a miss.
func (e *Engine) cacheLookup(ctx context.Context, key string) (*Result, bool) {
	buf, err := e.cache.Get(ctx, key)
	if err != nil {
		e.cacheFault(ctx, "cache read failed", key, err)
		return nil, false
	}
	if buf == nil {
		return nil, false
	}
	payload, err := decodePayload(buf)
	if err != nil {
		e.cacheFault(ctx, "cache payload rejected", key, err)
		return nil, false
	}
	return newRowsResult(payload.Rows, payload.Pagination), true
}

// cacheStore persists a payload. Write failures are logged and
// swallowed; they never abort the query.
func (e *Engine) cacheStore(ctx context.Context, key string, payload *CachePayload, ttl time.Duration) {
	buf, err := encodePayload(payload)
	if err != nil {
		e.cacheFault(ctx, "cache encode failed", key, err)
		return
	}
	if err := e.cache.Set(ctx, key, buf, ttl); err != nil {
		e.cacheFault(ctx, "cache write failed", key, err)
	}
}

func (e *Engine) cacheFault(ctx context.Context, msg, key string, err error) {
	if e.logger != nil {
		e.logger.LogError(ctx, msg+" (key: "+key+")", nil, err)
	}
}

// paginate computes page metadata for a limited statement by running a
// total-count query against the pre-reset statement snapshot.
func (e *Engine) paginate(ctx context.Context, snapshot *sql.Builder) (*PageInfo, error) {
	limit, offset, ok := snapshot.LimitInfo()
	if !ok || snapshot.Kind() != sql.StmtSelect {
		return nil, nil
	}
	var (
		countSQL    string
		countParams map[string]sql.Value
	)
	if snapshot.HasGroupBy() {
		// COUNT(*) collapses under GROUP BY; count the subquery rows instead.
		inner, err := snapshot.Clone().ClearLimit().ClearOrderBy().Render()
		if err != nil {
			return nil, err
		}
		countSQL = fmt.Sprintf("SELECT COUNT(*) AS total FROM (%s) AS countsub", inner)
		countParams = snapshot.Params()
	} else {
		cb := snapshot.Clone().ClearLimit().ClearOrderBy().SetProjection("COUNT(*) AS total")
		rendered, err := cb.Render()
		if err != nil {
			return nil, err
		}
		countSQL = rendered
		countParams = cb.Params()
	}
	total, err := e.queryScalarSQL(ctx, snapshot.DialectName(), countSQL, countParams, "total")
	if err != nil {
		return nil, err
	}
	current := 1
	if limit > 0 {
		current = offset/limit + 1
	}
	page := e.paginator.Paginate(int(toInt64(total)), limit, current)
	return &page, nil
}

// queryScalarSQL runs a single-row query and returns the named field of
// its first row.
func (e *Engine) queryScalarSQL(ctx context.Context, dialectName, query string, params map[string]sql.Value, field string) (any, error) {
	compiled, args, err := sql.Compile(dialectName, query, params)
	if err != nil {
		return nil, err
	}
	rows := &sql.Rows{}
	if err := e.conn().Query(ctx, compiled, args, rows); err != nil {
		if e.logger != nil {
			e.logger.LogError(ctx, query, params, err)
		}
		return nil, &ExecError{SQL: query, Params: params, Err: err}
	}
	res, err := newStreamResult(rows)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	row, err := res.Next()
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return row[field], nil
}

// aggregate executes the current statement with its projection swapped
// for expr on a transient copy, leaving the base statement untouched.
func (e *Engine) aggregate(ctx context.Context, expr string) (any, error) {
	ttl := e.ttl
	e.ttl = 0
	c := e.b.Clone()
	c.SetProjection(expr)
	res, err := e.execute(ctx, c, ttl, false)
	if err != nil {
		return nil, err
	}
	rows, err := res.All()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0]["total"], nil
}

// Sum executes the current statement as `SELECT SUM(col)` and returns
// the total.
func (e *Engine) Sum(ctx context.Context, col string) (float64, error) {
	v, err := e.aggregate(ctx, fmt.Sprintf("SUM(%s) AS total", e.b.Ident(col)))
	if err != nil {
		return 0, err
	}
	return toFloat64(v), nil
}

// Avg executes the current statement as `SELECT AVG(col)`.
func (e *Engine) Avg(ctx context.Context, col string) (float64, error) {
	v, err := e.aggregate(ctx, fmt.Sprintf("AVG(%s) AS total", e.b.Ident(col)))
	if err != nil {
		return 0, err
	}
	return toFloat64(v), nil
}

// Max executes the current statement as `SELECT MAX(col)`.
func (e *Engine) Max(ctx context.Context, col string) (any, error) {
	return e.aggregate(ctx, fmt.Sprintf("MAX(%s) AS total", e.b.Ident(col)))
}

// Min executes the current statement as `SELECT MIN(col)`.
func (e *Engine) Min(ctx context.Context, col string) (any, error) {
	return e.aggregate(ctx, fmt.Sprintf("MIN(%s) AS total", e.b.Ident(col)))
}

// Count executes the current statement as `SELECT COUNT(*)`.
func (e *Engine) Count(ctx context.Context) (int64, error) {
	v, err := e.aggregate(ctx, "COUNT(*) AS total")
	if err != nil {
		return 0, err
	}
	return toInt64(v), nil
}

// Exists reports whether the current statement matches any row.
func (e *Engine) Exists(ctx context.Context) (bool, error) {
	n, err := e.Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TxFunc is the body of a Transactional call. It receives the engine
// bound to the live transaction handle.
type TxFunc func(e *Engine, tx dialect.Tx) error

// Transactional runs fn inside a transaction: begun here, committed on
// success, rolled back when fn returns an error (the error is returned
// after the rollback). Nested calls inside an open transaction are
// layered as savepoints on a sequential depth counter.
func (e *Engine) Transactional(ctx context.Context, fn TxFunc) error {
	if e.tx != nil {
		return e.savepoint(ctx, fn)
	}
	tx, err := e.drv.Tx(ctx)
	if err != nil {
		return err
	}
	e.tx = tx
	defer func() { e.tx = nil }()
	if err := fn(e, tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, fmt.Errorf("quarry: rollback: %w", rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("quarry: commit: %w", err)
	}
	return nil
}

// savepoint nests fn inside the open transaction.
func (e *Engine) savepoint(ctx context.Context, fn TxFunc) error {
	e.txDepth++
	name := fmt.Sprintf("sp%d", e.txDepth)
	defer func() { e.txDepth-- }()
	if err := e.tx.Exec(ctx, "SAVEPOINT "+name, []any{}, nil); err != nil {
		return err
	}
	if err := fn(e, e.tx); err != nil {
		if rerr := e.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name, []any{}, nil); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return e.tx.Exec(ctx, "RELEASE SAVEPOINT "+name, []any{}, nil)
}

// Explain renders the current statement with the dialect's explain
// syntax, binds the same parameters and returns the raw explain rows.
// The builder state is left intact.
func (e *Engine) Explain(ctx context.Context) ([]map[string]any, error) {
	snapshot := e.b.Clone()
	query, err := snapshot.Render()
	if err != nil {
		return nil, err
	}
	switch e.drv.Dialect() {
	case dialect.Postgres:
		query = "EXPLAIN (FORMAT JSON, ANALYZE) " + query
	case dialect.SQLite:
		query = "EXPLAIN QUERY PLAN " + query
	case dialect.Oracle:
		query = "EXPLAIN PLAN FOR " + query
	default:
		query = "EXPLAIN " + query
	}
	params := snapshot.Params()
	compiled, args, err := sql.Compile(snapshot.DialectName(), query, params)
	if err != nil {
		return nil, err
	}
	rows := &sql.Rows{}
	if err := e.conn().Query(ctx, compiled, args, rows); err != nil {
		return nil, &ExecError{SQL: query, Params: params, Err: err}
	}
	res, err := newStreamResult(rows)
	if err != nil {
		return nil, err
	}
	return res.All()
}

// FlushTable drops every cached result derived from the given table.
func (e *Engine) FlushTable(ctx context.Context, table string) error {
	if e.cache == nil {
		return nil
	}
	_, err := e.cache.DeletePattern(ctx, TablePattern(table))
	return err
}

// statementReturnsRows reports whether the statement produces a row
// set. Raw statements are classified by their leading keyword.
func statementReturnsRows(b *sql.Builder, query string) bool {
	switch b.Kind() {
	case sql.StmtSelect:
		return true
	case sql.StmtRaw:
		head := strings.ToUpper(query)
		for _, kw := range []string{"SELECT", "WITH", "EXPLAIN", "PRAGMA", "SHOW", "VALUES"} {
			if strings.HasPrefix(strings.TrimSpace(head), kw) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func toInt64(v any) int64 {
	switch v := v.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		var n int64
		fmt.Sscan(v, &n)
		return n
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch v := v.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		var f float64
		fmt.Sscan(v, &f)
		return f
	default:
		return 0
	}
}
