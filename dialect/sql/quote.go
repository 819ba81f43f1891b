package sql

import (
	"fmt"
	"strings"

	"github.com/syssam/quarry/dialect"
)

// Op is a comparison operator accepted by the generic Where, OrWhere,
// Having and Join methods. Operators with a dedicated builder method
// (IN, BETWEEN, IS NULL and their negations) are intentionally absent;
// normalizeOp rejects their textual forms.
type Op uint8

const (
	OpEQ      Op = iota // =
	OpNEQ               // <>
	OpGT                // >
	OpGTE               // >=
	OpLT                // <
	OpLTE               // <=
	OpLike              // LIKE
	OpNotLike           // NOT LIKE
)

var opText = [...]string{
	OpEQ:      "=",
	OpNEQ:     "<>",
	OpGT:      ">",
	OpGTE:     ">=",
	OpLT:      "<",
	OpLTE:     "<=",
	OpLike:    "LIKE",
	OpNotLike: "NOT LIKE",
}

// String returns the SQL text of the operator.
func (o Op) String() string {
	if int(o) < len(opText) {
		return opText[o]
	}
	return ""
}

// reservedOps are operators served by specialized builder methods and
// therefore disallowed in the generic predicate methods.
var reservedOps = map[string]string{
	"IN":          "WhereIn",
	"NOT IN":      "WhereNotIn",
	"BETWEEN":     "WhereBetween",
	"NOT BETWEEN": "WhereNotBetween",
	"IS NULL":     "WhereNull",
	"IS NOT NULL": "WhereNotNull",
}

// normalizeOp validates op, which may be an Op token or a raw string
// matched case-insensitively against the known operator set.
func normalizeOp(op any) (string, error) {
	switch op := op.(type) {
	case Op:
		if s := op.String(); s != "" {
			return s, nil
		}
		return "", &MisuseError{Reason: fmt.Sprintf("unknown operator token %d", op)}
	case string:
		upper := strings.ToUpper(strings.TrimSpace(op))
		if method, ok := reservedOps[upper]; ok {
			return "", &MisuseError{
				Fragment: op,
				Reason:   fmt.Sprintf("operator %q is reserved for the %s method", upper, method),
			}
		}
		switch upper {
		case "=", ">", ">=", "<", "<=", "LIKE", "NOT LIKE":
			return upper, nil
		case "<>", "!=":
			return "<>", nil
		default:
			return "", &MisuseError{Fragment: op, Reason: fmt.Sprintf("unknown operator %q", op)}
		}
	default:
		return "", &MisuseError{Reason: fmt.Sprintf("invalid operator type %T", op)}
	}
}

// quotePair returns the opening and closing quote characters of the dialect.
func quotePair(d string) (lq, rq string) {
	switch d {
	case dialect.Postgres, dialect.SQLite, dialect.Oracle:
		return `"`, `"`
	case dialect.MSSQL:
		return "[", "]"
	default: // mysql, mariadb
		return "`", "`"
	}
}

// quoteIdent quotes a possibly qualified, possibly aliased identifier for
// the given dialect. `*` passes through unquoted. Aliased inputs split on
// a case-insensitive " as " and both sides are quoted recursively.
func quoteIdent(d, raw string) string {
	if base, alias, ok := splitAlias(raw); ok {
		return quoteIdent(d, base) + " AS " + quoteIdent(d, alias)
	}
	lq, rq := quotePair(d)
	parts := strings.Split(raw, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = lq + strings.ReplaceAll(p, rq, rq+rq) + rq
	}
	return strings.Join(parts, ".")
}

// splitAlias splits raw on the first case-insensitive " as " separator.
func splitAlias(raw string) (base, alias string, ok bool) {
	lower := strings.ToLower(raw)
	i := strings.Index(lower, " as ")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i+4:]), true
}

// Ident quotes the given identifier for the builder's dialect. Results
// are memoized for the builder's lifetime; the memo table is private to
// the builder instance.
func (b *Builder) Ident(raw string) string {
	if q, ok := b.idents.Get(raw); ok {
		return q
	}
	q := quoteIdent(b.dialect, raw)
	b.idents.Add(raw, q)
	return q
}
