// Package validation checks names, rows and update functions before an
// operation is queued.
package validation

import (
	"fmt"
	"regexp"

	dberrors "github.com/maruel/idb/internal/errors"
	"github.com/maruel/idb/internal/query"
)

var filenameRe = regexp.MustCompile(`^[a-zA-Z0-9]+([-_][a-zA-Z0-9]+)*$`)

// ValidFilename reports whether name can be used as a database or table name.
func ValidFilename(name string) bool {
	return filenameRe.MatchString(name)
}

// Name returns an error when name is not a valid database or table name.
func Name(name string) error {
	if !ValidFilename(name) {
		return dberrors.InvalidName(fmt.Sprintf("Expected %s to match [a-zA-Z0-9]+([-_][a-zA-Z0-9]+)* pattern.", name)).
			WithDetail("name", name)
	}
	return nil
}

// Rows validates the rows of an insert.
func Rows(rows []map[string]any) error {
	if len(rows) == 0 {
		return dberrors.Validation(fmt.Sprintf("Expected one or more rows to insert, got %d.", len(rows)))
	}
	for i, r := range rows {
		if err := Row(i, r); err != nil {
			return err
		}
	}
	return nil
}

// Row validates a single row at position i of an insert.
func Row(i int, row map[string]any) error {
	if row == nil {
		return dberrors.Validation(fmt.Sprintf("Expected row to be an object, got nil at %d.", i)).WithDetail("index", i)
	}
	if _, ok := row[query.IDField]; ok {
		return dberrors.Validation(fmt.Sprintf("Expected row to not set reserved field %q, got one at %d.", query.IDField, i)).
			WithDetail("index", i)
	}
	return nil
}

// probeColumn is the only field of the row handed to an update probe.
const probeColumn = "column"

type probeValue struct{ _ byte }

// Update checks an update function before it is queued.
//
// The function is called once on a probe row. If it returns normally it must
// leave the probe untouched and return non-nil fields. A probe that panics or
// returns an error says nothing about the function, which is then accepted;
// the same failure will surface when the queue is applied.
func Update(fn query.Transform) error {
	if fn == nil {
		return dberrors.Validation(`Expected "update" to be a function, got nil.`)
	}
	sentinel := &probeValue{}
	row := &query.Row{Fields: map[string]any{probeColumn: sentinel}}
	out, ok := probe(fn, row)
	if !ok {
		return nil
	}
	if len(row.Fields) != 1 || row.Fields[probeColumn] != any(sentinel) || row.ID != 0 {
		return dberrors.Validation(`Expected "update" to not mutate rows, got a function that will.`)
	}
	if out == nil {
		return dberrors.Validation(`Expected "update" to return an object, got a function that will return nil.`)
	}
	return nil
}

func probe(fn query.Transform, row *query.Row) (out map[string]any, ok bool) {
	defer func() {
		if recover() != nil {
			out, ok = nil, false
		}
	}()
	out, err := fn(row)
	if err != nil {
		return nil, false
	}
	return out, true
}

// Object returns v as a row when it is a decoded JSON object. Null, arrays
// and scalars are rejected with the same message as a nil row.
func Object(i int, v any) (map[string]any, error) {
	var kind string
	switch t := v.(type) {
	case map[string]any:
		if t != nil {
			return t, nil
		}
		kind = "nil"
	case nil:
		kind = "null"
	case []any:
		kind = "array"
	case string:
		kind = "string"
	case bool:
		kind = "boolean"
	case float64:
		kind = "number"
	default:
		kind = fmt.Sprintf("%T", v)
	}
	return nil, dberrors.Validation(fmt.Sprintf("Expected row to be an object, got %s at %d.", kind, i)).WithDetail("index", i)
}
