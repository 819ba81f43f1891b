// Package sql provides the fluent SQL statement builder and the
// database/sql driver wrapper used by quarry.
//
// # Statement Builder
//
// A Builder holds one statement at a time. Each lifecycle method
// (Select, Insert, InsertBatch, Update, Delete, Raw) resets the state;
// fluent methods mutate it and return the receiver:
//
//	b := sql.Dialect(dialect.Postgres)
//	b.Select("users", "id", "name").
//	    Where("status", sql.OpEQ, 1).
//	    OrWhere("role", "LIKE", "%admin%").
//	    OrderBy("name").
//	    Limit(10, 20)
//	query, err := b.Render()
//	// SELECT "id", "name" FROM "users" WHERE ("status" = :p0 OR "role" LIKE :p1)
//	// ORDER BY "name" ASC LIMIT 10 OFFSET 20
//
// Rendered statements carry named `:param` placeholders; Compile
// rewrites them into the positional markers of the dialect and returns
// the ordered argument list.
//
// Precondition violations are recorded as a *MisuseError and surface
// from Render; they never reach the backend.
//
// # Driver
//
// Driver wraps database/sql behind the dialect.Driver interface:
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db")
//
// NewStatsDriver adds statement statistics and slow-query detection on
// top of any Driver.
package sql
