package sql

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/syssam/quarry/dialect"
)

// identCacheSize bounds the per-builder identifier quoting memo table.
const identCacheSize = 256

// StmtKind is the specialization of the statement under construction.
type StmtKind uint8

const (
	StmtNone StmtKind = iota
	StmtSelect
	StmtInsert
	StmtUpdate
	StmtDelete
	StmtRaw
)

// limitClause is an optional (count, offset) pair.
type limitClause struct {
	count  int
	offset int
}

// Builder holds the state of an in-progress statement and exposes the
// fluent mutation API. Every mutating method returns the receiver so
// calls can be chained. A builder is mutable, single-owner and not safe
// for concurrent use.
//
// Precondition violations (unknown operator, HAVING without GROUP BY,
// empty IN lists, ...) are recorded on the first occurrence and surface
// from Render and from the execution engine; once recorded, further
// mutations are ignored.
type Builder struct {
	dialect   string
	kind      StmtKind
	table     string
	fragments []string // ordered rendered clause strings
	wheres    []string // rendered predicates, AND-joined
	orGroup   []string // open OR-group, closed by Where or Render
	joins     []string
	groupBys  []string
	havings   []string
	orderBys  []string
	limit     *limitClause
	params    map[string]Value
	idents    *lru.Cache[string, string]
	err       error
}

// Dialect returns a new builder for the given dialect.
func Dialect(name string) *Builder {
	idents, _ := lru.New[string, string](identCacheSize)
	b := &Builder{dialect: name, idents: idents}
	if err := dialect.Validate(name); err != nil {
		b.err = err
	}
	b.Reset()
	return b
}

// DialectName returns the dialect the builder renders for.
func (b *Builder) DialectName() string { return b.dialect }

// Kind returns the statement specialization.
func (b *Builder) Kind() StmtKind { return b.kind }

// Table returns the table of the current statement.
func (b *Builder) Table() string { return b.table }

// Err returns the first recorded precondition violation, if any.
func (b *Builder) Err() error { return b.err }

// Reset clears all statement state. The identifier memo table and any
// dialect validation error survive the reset.
func (b *Builder) Reset() *Builder {
	b.kind = StmtNone
	b.table = ""
	b.fragments = nil
	b.wheres = nil
	b.orGroup = nil
	b.joins = nil
	b.groupBys = nil
	b.havings = nil
	b.orderBys = nil
	b.limit = nil
	b.params = make(map[string]Value)
	if b.err != nil {
		if err := dialect.Validate(b.dialect); err == nil {
			b.err = nil
		}
	}
	return b
}

// fail records the first precondition violation.
func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// misuse records a builder-misuse error with the offending fragment.
func (b *Builder) misuse(fragment, format string, args ...any) *Builder {
	return b.fail(&MisuseError{Fragment: fragment, Reason: fmt.Sprintf(format, args...)})
}

// bind stores value under the given placeholder name.
func (b *Builder) bind(name string, value any) bool {
	v, err := BindValue(value)
	if err != nil {
		b.fail(err)
		return false
	}
	b.params[name] = v
	return true
}

// nextParam returns a fresh `p<N>` placeholder name. N counts the bound
// parameters, so names are never reused within a statement.
func (b *Builder) nextParam() string {
	return "p" + strconv.Itoa(len(b.params))
}

// paramName strips characters that cannot appear in a placeholder name.
func paramName(col string) string {
	var sb strings.Builder
	sb.Grow(len(col))
	for i := 0; i < len(col); i++ {
		if isPlaceholderByte(col[i]) {
			sb.WriteByte(col[i])
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Params returns a copy of the bound parameter set.
func (b *Builder) Params() map[string]Value {
	m := make(map[string]Value, len(b.params))
	for k, v := range b.params {
		m[k] = v
	}
	return m
}

// Select starts a SELECT statement. With no columns, `*` is selected.
// Columns may be qualified (`users.name`) or aliased (`name as n`).
func (b *Builder) Select(table string, columns ...string) *Builder {
	b.Reset()
	b.kind = StmtSelect
	b.table = table
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = b.Ident(c)
	}
	b.fragments = []string{
		"SELECT " + strings.Join(quoted, ", "),
		"FROM " + b.Ident(table),
	}
	return b
}

// Alias appends an alias to the statement source. Meaningful only
// immediately after Select.
func (b *Builder) Alias(name string) *Builder {
	if b.err != nil {
		return b
	}
	if b.kind != StmtSelect {
		return b.misuse(name, "alias can only follow a select statement")
	}
	b.fragments = append(b.fragments, "AS "+b.Ident(name))
	return b
}

// Insert starts an INSERT statement binding one `:column` placeholder
// per column of row. Columns render in sorted order so the statement
// text is deterministic.
func (b *Builder) Insert(table string, row map[string]any) *Builder {
	b.Reset()
	b.kind = StmtInsert
	b.table = table
	if len(row) == 0 {
		return b.misuse(table, "insert requires at least one column")
	}
	cols := sortedColumns(row)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = b.Ident(c)
		name := paramName(c)
		marks[i] = ":" + name
		if !b.bind(name, row[c]) {
			return b
		}
	}
	b.fragments = []string{fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		b.Ident(table), strings.Join(quoted, ", "), strings.Join(marks, ", "),
	)}
	return b
}

// InsertBatch starts a multi-row INSERT. Every row must carry an
// identical column set; placeholders are suffixed with the row index
// (`:column_<row>`) to avoid collisions.
func (b *Builder) InsertBatch(table string, rows []map[string]any) *Builder {
	b.Reset()
	b.kind = StmtInsert
	b.table = table
	if len(rows) == 0 {
		return b.misuse(table, "insert batch requires at least one row")
	}
	cols := sortedColumns(rows[0])
	for i, row := range rows {
		if !sameColumns(cols, row) {
			return b.misuse(table, "insert batch row %d has a different column set", i)
		}
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = b.Ident(c)
	}
	groups := make([]string, len(rows))
	for i, row := range rows {
		marks := make([]string, len(cols))
		for j, c := range cols {
			name := paramName(c) + "_" + strconv.Itoa(i)
			marks[j] = ":" + name
			if !b.bind(name, row[c]) {
				return b
			}
		}
		groups[i] = "(" + strings.Join(marks, ", ") + ")"
	}
	b.fragments = []string{fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		b.Ident(table), strings.Join(quoted, ", "), strings.Join(groups, ", "),
	)}
	return b
}

// Update starts an UPDATE statement binding one `:column` placeholder
// per column of row.
func (b *Builder) Update(table string, row map[string]any) *Builder {
	b.Reset()
	b.kind = StmtUpdate
	b.table = table
	if len(row) == 0 {
		return b.misuse(table, "update requires at least one column")
	}
	cols := sortedColumns(row)
	sets := make([]string, len(cols))
	for i, c := range cols {
		name := paramName(c)
		sets[i] = b.Ident(c) + " = :" + name
		if !b.bind(name, row[c]) {
			return b
		}
	}
	b.fragments = []string{fmt.Sprintf("UPDATE %s SET %s", b.Ident(table), strings.Join(sets, ", "))}
	return b
}

// Delete starts a DELETE statement.
func (b *Builder) Delete(table string) *Builder {
	b.Reset()
	b.kind = StmtDelete
	b.table = table
	b.fragments = []string{"DELETE FROM " + b.Ident(table)}
	return b
}

// Raw starts a statement from raw SQL text with named `:param` markers
// bound from params.
func (b *Builder) Raw(query string, params map[string]any) *Builder {
	b.Reset()
	b.kind = StmtRaw
	b.fragments = []string{query}
	for name, v := range params {
		if !b.bind(name, v) {
			return b
		}
	}
	return b
}

// closeOrGroup wraps a pending OR-run in parentheses and appends it as a
// single AND-combined predicate.
func (b *Builder) closeOrGroup() {
	if len(b.orGroup) == 0 {
		return
	}
	b.wheres = append(b.wheres, "("+strings.Join(b.orGroup, " OR ")+")")
	b.orGroup = nil
}

// Where appends an AND-combined predicate `col op :pN` and binds value.
// Any pending OR-group is closed first.
func (b *Builder) Where(col string, op any, value any) *Builder {
	if b.err != nil {
		return b
	}
	text, err := normalizeOp(op)
	if err != nil {
		return b.fail(err)
	}
	b.closeOrGroup()
	name := b.nextParam()
	if !b.bind(name, value) {
		return b
	}
	b.wheres = append(b.wheres, fmt.Sprintf("%s %s :%s", b.Ident(col), text, name))
	return b
}

// OrWhere extends the current OR-group with `col op :pN`. The first
// OrWhere in a run pops the immediately preceding plain predicate and
// starts the group; the group closes at the next Where call or at
// render time. `Where(a).OrWhere(b)` therefore renders as `(a OR b)`.
func (b *Builder) OrWhere(col string, op any, value any) *Builder {
	if b.err != nil {
		return b
	}
	text, err := normalizeOp(op)
	if err != nil {
		return b.fail(err)
	}
	if len(b.orGroup) == 0 && len(b.wheres) > 0 {
		last := len(b.wheres) - 1
		b.orGroup = append(b.orGroup, b.wheres[last])
		b.wheres = b.wheres[:last]
	}
	name := b.nextParam()
	if !b.bind(name, value) {
		return b
	}
	b.orGroup = append(b.orGroup, fmt.Sprintf("%s %s :%s", b.Ident(col), text, name))
	return b
}

// whereList renders a membership predicate for WhereIn and WhereNotIn.
func (b *Builder) whereList(col, keyword, suffix string, values []any) *Builder {
	if b.err != nil {
		return b
	}
	if len(values) == 0 {
		return b.misuse(col, "%s requires at least one value", keyword)
	}
	b.closeOrGroup()
	marks := make([]string, len(values))
	for i, v := range values {
		name := paramName(col) + suffix + strconv.Itoa(i)
		marks[i] = ":" + name
		if !b.bind(name, v) {
			return b
		}
	}
	b.wheres = append(b.wheres, fmt.Sprintf("%s %s (%s)", b.Ident(col), keyword, strings.Join(marks, ", ")))
	return b
}

// WhereIn appends `col IN (...)` with `:col_in_<i>` placeholders.
// The value list must be non-empty.
func (b *Builder) WhereIn(col string, values ...any) *Builder {
	return b.whereList(col, "IN", "_in_", values)
}

// WhereNotIn appends `col NOT IN (...)` with `:col_notin_<i>` placeholders.
// The value list must be non-empty.
func (b *Builder) WhereNotIn(col string, values ...any) *Builder {
	return b.whereList(col, "NOT IN", "_notin_", values)
}

// whereRange renders a BETWEEN predicate for WhereBetween and WhereNotBetween.
func (b *Builder) whereRange(col, keyword, suffix string, values []any) *Builder {
	if b.err != nil {
		return b
	}
	if len(values) != 2 {
		return b.misuse(col, "%s requires exactly two values, got %d", keyword, len(values))
	}
	b.closeOrGroup()
	lo := paramName(col) + suffix + "1"
	hi := paramName(col) + suffix + "2"
	if !b.bind(lo, values[0]) || !b.bind(hi, values[1]) {
		return b
	}
	b.wheres = append(b.wheres, fmt.Sprintf("%s %s :%s AND :%s", b.Ident(col), keyword, lo, hi))
	return b
}

// WhereBetween appends `col BETWEEN :col_bt1 AND :col_bt2`. Exactly two
// values are required.
func (b *Builder) WhereBetween(col string, values ...any) *Builder {
	return b.whereRange(col, "BETWEEN", "_bt", values)
}

// WhereNotBetween appends `col NOT BETWEEN :col_nbt1 AND :col_nbt2`.
// Exactly two values are required.
func (b *Builder) WhereNotBetween(col string, values ...any) *Builder {
	return b.whereRange(col, "NOT BETWEEN", "_nbt", values)
}

// WhereNull appends `col IS NULL`. No parameter is bound.
func (b *Builder) WhereNull(col string) *Builder {
	if b.err != nil {
		return b
	}
	b.closeOrGroup()
	b.wheres = append(b.wheres, b.Ident(col)+" IS NULL")
	return b
}

// WhereNotNull appends `col IS NOT NULL`. No parameter is bound.
func (b *Builder) WhereNotNull(col string) *Builder {
	if b.err != nil {
		return b
	}
	b.closeOrGroup()
	b.wheres = append(b.wheres, b.Ident(col)+" IS NOT NULL")
	return b
}

// Join types accepted by Join.
const (
	JoinInner = "INNER"
	JoinLeft  = "LEFT"
	JoinRight = "RIGHT"
	JoinFull  = "FULL"
	JoinCross = "CROSS"
)

// Join appends a join clause. The default join type is INNER. FULL
// joins are rejected on dialects without native support (MySQL, MariaDB
// and SQLite); combine a LEFT and a RIGHT join with UNION instead.
func (b *Builder) Join(table, leftKey string, op any, rightKey string, joinType ...string) *Builder {
	if b.err != nil {
		return b
	}
	jt := JoinInner
	if len(joinType) > 0 {
		jt = strings.ToUpper(strings.TrimSpace(joinType[0]))
	}
	switch jt {
	case JoinInner, JoinLeft, JoinRight, JoinCross:
	case JoinFull:
		switch b.dialect {
		case dialect.MySQL, dialect.MariaDB, dialect.SQLite:
			return b.misuse(table, "%s does not support FULL JOIN; use a UNION of LEFT and RIGHT joins", b.dialect)
		}
	default:
		return b.misuse(table, "unknown join type %q", jt)
	}
	text, err := normalizeOp(op)
	if err != nil {
		return b.fail(err)
	}
	b.joins = append(b.joins, fmt.Sprintf(
		"%s JOIN %s ON %s %s %s",
		jt, b.Ident(table), b.Ident(leftKey), text, b.Ident(rightKey),
	))
	return b
}

// GroupBy appends a GROUP BY column.
func (b *Builder) GroupBy(col string) *Builder {
	if b.err != nil {
		return b
	}
	b.groupBys = append(b.groupBys, b.Ident(col))
	return b
}

// Having appends a HAVING predicate binding a `:having<N>` placeholder.
// A GROUP BY column must have been set first.
func (b *Builder) Having(col string, op any, value any) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.groupBys) == 0 {
		return b.misuse(col, "having requires a prior group by")
	}
	text, err := normalizeOp(op)
	if err != nil {
		return b.fail(err)
	}
	name := "having" + strconv.Itoa(len(b.params))
	if !b.bind(name, value) {
		return b
	}
	b.havings = append(b.havings, fmt.Sprintf("%s %s :%s", b.Ident(col), text, name))
	return b
}

// HavingRaw appends a raw HAVING condition. A GROUP BY column must have
// been set first.
func (b *Builder) HavingRaw(condition string) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.groupBys) == 0 {
		return b.misuse(condition, "having requires a prior group by")
	}
	b.havings = append(b.havings, condition)
	return b
}

// Order directions accepted by OrderBy.
const (
	Asc  = "ASC"
	Desc = "DESC"
)

// OrderBy appends an ORDER BY term. The default direction is ASC.
func (b *Builder) OrderBy(col string, direction ...string) *Builder {
	if b.err != nil {
		return b
	}
	dir := Asc
	if len(direction) > 0 {
		dir = strings.ToUpper(strings.TrimSpace(direction[0]))
	}
	if dir != Asc && dir != Desc {
		return b.misuse(col, "unknown order direction %q", dir)
	}
	b.orderBys = append(b.orderBys, b.Ident(col)+" "+dir)
	return b
}

// Limit sets the LIMIT clause. The optional second argument is the offset.
func (b *Builder) Limit(count int, offset ...int) *Builder {
	if b.err != nil {
		return b
	}
	lc := &limitClause{count: count}
	if len(offset) > 0 {
		lc.offset = offset[0]
	}
	b.limit = lc
	return b
}

// LimitInfo returns the (count, offset) pair and whether a limit is set.
func (b *Builder) LimitInfo() (count, offset int, ok bool) {
	if b.limit == nil {
		return 0, 0, false
	}
	return b.limit.count, b.limit.offset, true
}

// HasGroupBy reports whether any GROUP BY column has been set.
func (b *Builder) HasGroupBy() bool { return len(b.groupBys) > 0 }

// SetProjection replaces the SELECT projection with the given raw
// expression, keeping the rest of the statement intact. It is used by
// the aggregate helpers on a transient copy of the builder.
func (b *Builder) SetProjection(expr string) *Builder {
	if b.err != nil {
		return b
	}
	if b.kind != StmtSelect || len(b.fragments) == 0 {
		return b.misuse(expr, "projection can only be set on a select statement")
	}
	b.fragments[0] = "SELECT " + expr
	return b
}

// ClearLimit removes the LIMIT clause.
func (b *Builder) ClearLimit() *Builder {
	b.limit = nil
	return b
}

// ClearOrderBy removes all ORDER BY terms.
func (b *Builder) ClearOrderBy() *Builder {
	b.orderBys = nil
	return b
}

// Clone returns an independent copy of the builder state. The copy
// shares nothing mutable with the original, so executing or mutating it
// leaves the original untouched.
func (b *Builder) Clone() *Builder {
	idents, _ := lru.New[string, string](identCacheSize)
	c := &Builder{
		dialect:   b.dialect,
		kind:      b.kind,
		table:     b.table,
		fragments: append([]string(nil), b.fragments...),
		wheres:    append([]string(nil), b.wheres...),
		orGroup:   append([]string(nil), b.orGroup...),
		joins:     append([]string(nil), b.joins...),
		groupBys:  append([]string(nil), b.groupBys...),
		havings:   append([]string(nil), b.havings...),
		orderBys:  append([]string(nil), b.orderBys...),
		params:    make(map[string]Value, len(b.params)),
		idents:    idents,
		err:       b.err,
	}
	if b.limit != nil {
		lc := *b.limit
		c.limit = &lc
	}
	for k, v := range b.params {
		c.params[k] = v
	}
	return c
}

// Render concatenates the statement clauses in fixed order: base
// fragments, joins, WHERE, GROUP BY, HAVING, ORDER BY and the
// dialect-specific LIMIT clause. Rendering is idempotent; its only side
// effect is closing a pending OR-group, after which repeated renders
// are stable.
func (b *Builder) Render() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if b.kind == StmtNone {
		return "", &MisuseError{Reason: "no statement has been started"}
	}
	b.closeOrGroup()
	var sb strings.Builder
	sb.WriteString(strings.Join(b.fragments, " "))
	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if len(b.wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.wheres, " AND "))
	}
	if len(b.groupBys) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBys, ", "))
	}
	if len(b.havings) > 0 {
		sb.WriteString(" HAVING ")
		sb.WriteString(strings.Join(b.havings, " AND "))
	}
	if len(b.orderBys) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBys, ", "))
	}
	if b.limit != nil {
		switch b.dialect {
		case dialect.MySQL, dialect.MariaDB:
			fmt.Fprintf(&sb, " LIMIT %d , %d", b.limit.offset, b.limit.count)
		case dialect.MSSQL, dialect.Oracle:
			fmt.Fprintf(&sb, " OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", b.limit.offset, b.limit.count)
		default: // postgres, sqlite
			fmt.Fprintf(&sb, " LIMIT %d OFFSET %d", b.limit.count, b.limit.offset)
		}
	}
	return sb.String(), nil
}

// sortedColumns returns the column names of row in sorted order.
func sortedColumns(row map[string]any) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// sameColumns reports whether row has exactly the given column set.
func sameColumns(cols []string, row map[string]any) bool {
	if len(cols) != len(row) {
		return false
	}
	for _, c := range cols {
		if _, ok := row[c]; !ok {
			return false
		}
	}
	return true
}
