package dialect

import (
	"context"
	"fmt"
)

// Supported dialect names. The dialect tag selects the identifier quote
// character, the LIMIT clause syntax and the FULL JOIN policy used when
// rendering statements.
const (
	MySQL    = "mysql"
	MariaDB  = "mariadb"
	Postgres = "postgres"
	SQLite   = "sqlite"
	MSSQL    = "mssql"
	Oracle   = "oracle"
)

// All returns the closed set of supported dialect names.
func All() []string {
	return []string{MySQL, MariaDB, Postgres, SQLite, MSSQL, Oracle}
}

// Validate reports whether name is one of the supported dialects.
func Validate(name string) error {
	switch name {
	case MySQL, MariaDB, Postgres, SQLite, MSSQL, Oracle:
		return nil
	default:
		return fmt.Errorf("dialect: unsupported dialect %q", name)
	}
}

// ExecQuerier wraps the two database operations used by the engine.
//
// For Exec, the v argument is expected to be nil or *sql.Result.
// For Query, the v argument is expected to be *sql.Rows.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the connection collaborator. It is implemented for SQL
// databases by the dialect/sql package.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	// The provided context is used until the transaction is committed or rolled back.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps transaction behavior on top of ExecQuerier.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}
