package sql

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/quarry/dialect"
)

// timeLayout is the textual form used for timestamp binds.
const timeLayout = "2006-01-02 15:04:05"

// Kind tags a bound parameter value. The set is closed: every bindable
// value is one of these, and aggregate values (slices, arrays, maps) are
// rejected at bind time.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindBool
	KindFloat
	KindText
	KindTime
	KindBytes
)

var kindNames = [...]string{
	KindNull:  "null",
	KindInt:   "int",
	KindBool:  "bool",
	KindFloat: "float",
	KindText:  "text",
	KindTime:  "time",
	KindBytes: "bytes",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Value is a bound statement parameter: a closed tagged union of the
// types the engine knows how to bind.
type Value struct {
	kind  Kind
	i     int64
	f     float64
	s     string
	t     time.Time
	bytes []byte
}

// Kind returns the type tag of the value.
func (v Value) Kind() Kind { return v.kind }

// BindValue converts a runtime value into a typed Value. Slices, arrays
// and maps are never valid scalar bindings and fail with a misuse error;
// []byte and io.Reader are the binary-stream exceptions.
func BindValue(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return Value{kind: KindNull}, nil
	case bool:
		i := int64(0)
		if v {
			i = 1
		}
		return Value{kind: KindBool, i: i}, nil
	case int:
		return Value{kind: KindInt, i: int64(v)}, nil
	case int8:
		return Value{kind: KindInt, i: int64(v)}, nil
	case int16:
		return Value{kind: KindInt, i: int64(v)}, nil
	case int32:
		return Value{kind: KindInt, i: int64(v)}, nil
	case int64:
		return Value{kind: KindInt, i: v}, nil
	case uint:
		return Value{kind: KindInt, i: int64(v)}, nil
	case uint8:
		return Value{kind: KindInt, i: int64(v)}, nil
	case uint16:
		return Value{kind: KindInt, i: int64(v)}, nil
	case uint32:
		return Value{kind: KindInt, i: int64(v)}, nil
	case uint64:
		return Value{kind: KindInt, i: int64(v)}, nil
	case float32:
		return Value{kind: KindFloat, f: float64(v)}, nil
	case float64:
		return Value{kind: KindFloat, f: v}, nil
	case string:
		return Value{kind: KindText, s: v}, nil
	case time.Time:
		return Value{kind: KindTime, t: v}, nil
	case []byte:
		return Value{kind: KindBytes, bytes: v}, nil
	case io.Reader:
		buf, err := io.ReadAll(v)
		if err != nil {
			return Value{}, fmt.Errorf("sql: read binary parameter: %w", err)
		}
		return Value{kind: KindBytes, bytes: buf}, nil
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return Value{}, &MisuseError{Reason: fmt.Sprintf("array value of type %T cannot be bound as a scalar parameter", v)}
	default:
		return Value{kind: KindText, s: fmt.Sprint(v)}, nil
	}
}

// Arg returns the value in the form handed to database/sql.
func (v Value) Arg() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindInt, KindBool:
		return v.i
	case KindFloat:
		return v.f
	case KindTime:
		return v.t.Format(timeLayout)
	case KindBytes:
		return v.bytes
	default:
		return v.s
	}
}

// Key returns a stable textual form of the value, used for cache-key
// derivation.
func (v Value) Key() string {
	switch v.kind {
	case KindNull:
		return "<nil>"
	case KindInt, KindBool:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindTime:
		return v.t.Format(timeLayout)
	case KindBytes:
		return string(v.bytes)
	default:
		return v.s
	}
}

// isPlaceholderByte reports whether c may appear in a placeholder name.
func isPlaceholderByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// Compile rewrites the named placeholders of query into the positional
// syntax of the dialect and returns the argument list in placeholder
// order. Placeholders repeated in the text are bound once for dialects
// with numbered markers and duplicated for `?` markers. Every referenced
// placeholder must have exactly one entry in params. Single-quoted
// string literals pass through untouched, as does the `::` Postgres
// cast.
func Compile(d, query string, params map[string]Value) (string, []any, error) {
	var (
		sb      strings.Builder
		args    []any
		ordinal = map[string]int{} // name -> 1-based marker number
	)
	sb.Grow(len(query))
	for i := 0; i < len(query); {
		c := query[i]
		// String literals are copied verbatim so a `:` inside one is
		// never taken for a placeholder. A doubled '' stays inside the
		// literal.
		if c == '\'' {
			j := i + 1
			for j < len(query) {
				if query[j] == '\'' {
					if j+1 < len(query) && query[j+1] == '\'' {
						j += 2
						continue
					}
					j++
					break
				}
				j++
			}
			sb.WriteString(query[i:j])
			i = j
			continue
		}
		if c != ':' {
			sb.WriteByte(c)
			i++
			continue
		}
		// `::` is a Postgres cast, not a placeholder.
		if i+1 < len(query) && query[i+1] == ':' {
			sb.WriteString("::")
			i += 2
			continue
		}
		j := i + 1
		for j < len(query) && isPlaceholderByte(query[j]) {
			j++
		}
		if j == i+1 {
			sb.WriteByte(c)
			i++
			continue
		}
		name := query[i+1 : j]
		v, ok := params[name]
		if !ok {
			return "", nil, fmt.Errorf("sql: placeholder %q has no bound parameter", name)
		}
		switch d {
		case dialect.Postgres, dialect.MSSQL:
			n, seen := ordinal[name]
			if !seen {
				args = append(args, v.Arg())
				n = len(args)
				ordinal[name] = n
			}
			if d == dialect.Postgres {
				sb.WriteString("$" + strconv.Itoa(n))
			} else {
				sb.WriteString("@p" + strconv.Itoa(n))
			}
		default: // mysql, mariadb, sqlite, oracle
			sb.WriteByte('?')
			args = append(args, v.Arg())
		}
		i = j
	}
	return sb.String(), args, nil
}

// ParamsKey renders the parameter set in a `name=value;` form with
// sorted names, for log and error messages. The form is readable, not
// injective: values containing `=` or `;` can collide with other
// parameter sets, so it must not be used where distinct sets need
// distinct encodings.
func ParamsKey(params map[string]Value) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(params[name].Key())
		sb.WriteByte(';')
	}
	return sb.String()
}
