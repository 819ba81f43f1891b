// Package dialect provides the database dialect abstraction for quarry.
//
// A dialect tag identifies the SQL syntax variant of a backend and drives
// identifier quoting, LIMIT rendering and FULL JOIN policy in the statement
// builder.
//
// # Supported Dialects
//
//   - MySQL / MariaDB: backtick quoting, `LIMIT <offset> , <limit>`
//   - Postgres: double-quote quoting, `LIMIT <limit> OFFSET <offset>`
//   - SQLite: double-quote quoting, `LIMIT <limit> OFFSET <offset>`
//   - MSSQL: bracket quoting, `OFFSET <offset> ROWS FETCH NEXT <limit> ROWS ONLY`
//   - Oracle: double-quote quoting, `OFFSET <offset> ROWS FETCH NEXT <limit> ROWS ONLY`
//
// # Driver Interface
//
// The package defines the Driver interface implemented by dialect/sql:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// Opening a connection:
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
package dialect
