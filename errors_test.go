package quarry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/quarry/dialect/sql"
)

func TestExecError(t *testing.T) {
	t.Parallel()
	cause := errors.New("server has gone away")
	err := &ExecError{SQL: "SELECT * FROM `users`", Err: cause}

	assert.True(t, IsExec(err))
	assert.True(t, errors.Is(err, ErrExec))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "SELECT * FROM `users`")

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsExec(wrapped))

	assert.False(t, IsExec(nil))
	assert.False(t, IsExec(errors.New("plain")))
}

func TestIsMisuse(t *testing.T) {
	t.Parallel()
	b := sql.Dialect("mysql")
	b.Select("users").WhereIn("id")
	_, err := b.Render()
	require.Error(t, err)
	assert.True(t, IsMisuse(err))
	assert.False(t, IsExec(err))
}

func TestIsConstraint(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"mysql duplicate entry", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, true},
		{"mysql fk child row", &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"}, true},
		{"mysql syntax error", &mysql.MySQLError{Number: 1064, Message: "You have an error"}, false},
		{"pq unique violation", &pq.Error{Code: "23505"}, true},
		{"pq not null violation", &pq.Error{Code: "23502"}, true},
		{"pq undefined table", &pq.Error{Code: "42P01"}, false},
		{"sqlite message", errors.New("UNIQUE constraint failed: users.email"), true},
		{"plain error", errors.New("connection refused"), false},
		{"wrapped in exec error", &ExecError{SQL: "x", Err: &mysql.MySQLError{Number: 1062}}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsConstraint(tt.err))
		})
	}
}
