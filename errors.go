package quarry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/syssam/quarry/dialect/sql"
)

// ErrExec is the sentinel all backend execution failures match via
// errors.Is.
var ErrExec = errors.New("quarry: execution failed")

// ExecError wraps a backend failure with the attempted SQL text and
// parameter set for diagnostics. It is distinct from builder-misuse
// errors, which never reach the backend.
type ExecError struct {
	SQL    string
	Params map[string]sql.Value
	Err    error
}

// Error returns the error string.
func (e *ExecError) Error() string {
	return fmt.Sprintf("quarry: %v (sql: %s; params: %s)", e.Err, e.SQL, sql.ParamsKey(e.Params))
}

// Unwrap returns the underlying driver error.
func (e *ExecError) Unwrap() error { return e.Err }

// Is reports whether the target matches ErrExec.
func (e *ExecError) Is(err error) bool { return err == ErrExec }

// IsExec reports whether err is a backend execution error.
func IsExec(err error) bool {
	if err == nil {
		return false
	}
	var e *ExecError
	return errors.As(err, &e) || errors.Is(err, ErrExec)
}

// IsMisuse reports whether err is a builder-misuse error.
func IsMisuse(err error) bool { return sql.IsMisuse(err) }

// IsConstraint reports whether err was caused by a database constraint
// violation. It understands the error types of the MySQL and Postgres
// drivers and falls back to message matching for SQLite.
func IsConstraint(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1062, 1048, 1451, 1452, 1557, 1586, 1761, 1762, 3819:
			return true
		}
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return strings.HasPrefix(string(pe.Code), "23")
	}
	return strings.Contains(err.Error(), "constraint failed") ||
		strings.Contains(err.Error(), "CONSTRAINT")
}
