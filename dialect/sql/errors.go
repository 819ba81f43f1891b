package sql

import (
	"errors"
	"fmt"
)

// ErrMisuse is the sentinel all builder precondition violations match
// via errors.Is.
var ErrMisuse = errors.New("sql: builder misuse")

// MisuseError reports a statement-builder precondition violation:
// unknown or disallowed operator, empty IN list, wrong BETWEEN arity,
// HAVING without GROUP BY, mismatched batch-insert columns, an array
// bound as a scalar parameter, or FULL JOIN on a dialect without native
// support. These never reach the backend.
type MisuseError struct {
	// Fragment is the offending SQL fragment or column, when known.
	Fragment string
	Reason   string
}

// Error returns the error string.
func (e *MisuseError) Error() string {
	if e.Fragment != "" {
		return fmt.Sprintf("sql: %s (fragment: %s)", e.Reason, e.Fragment)
	}
	return "sql: " + e.Reason
}

// Is reports whether the target matches ErrMisuse.
func (e *MisuseError) Is(err error) bool {
	return err == ErrMisuse
}

// IsMisuse reports whether err is a builder-misuse error.
func IsMisuse(err error) bool {
	if err == nil {
		return false
	}
	var e *MisuseError
	return errors.As(err, &e) || errors.Is(err, ErrMisuse)
}
