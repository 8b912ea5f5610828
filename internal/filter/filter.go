// Package filter selects rows from a table state by predicate or by id.
package filter

import (
	"reflect"

	"github.com/maruel/idb/internal/query"
)

// Criteria selects rows. It is either a [Where] predicate or an [IDs] list.
// A nil Criteria selects every row.
type Criteria interface {
	criteria()
}

// Where selects the rows for which the predicate returns true. A nil Where
// selects every row.
type Where query.Predicate

// IDs selects rows by id.
type IDs []query.RowID

func (Where) criteria() {}
func (IDs) criteria()   {}

// All returns criteria matching every row.
func All() Criteria {
	return Where(nil)
}

// ID returns criteria matching a single id.
func ID(id query.RowID) Criteria {
	return IDs{id}
}

// Select returns the rows of s matched by c.
//
// Predicate matches are returned in row order. Id lookups are returned in the
// order requested; ids absent from the index are skipped.
func Select(c Criteria, s *query.State) []*query.Row {
	switch c := c.(type) {
	case nil:
		return selectWhere(nil, s)
	case Where:
		return selectWhere(c, s)
	case IDs:
		rows := make([]*query.Row, 0, len(c))
		for _, id := range c {
			if r := s.Get(id); r != nil {
				rows = append(rows, r)
			}
		}
		return rows
	default:
		return nil
	}
}

func selectWhere(w Where, s *query.State) []*query.Row {
	if w == nil {
		rows := make([]*query.Row, len(s.Rows))
		copy(rows, s.Rows)
		return rows
	}
	var rows []*query.Row
	for _, r := range s.Rows {
		if w(r) {
			rows = append(rows, r)
		}
	}
	return rows
}

// Equals returns a predicate matching rows whose field key equals value.
// Numbers are compared as float64 so that rows loaded from disk match
// integer literals, except integers beyond 2^53 which compare exactly.
func Equals(key string, value any) Where {
	want := normalize(value)
	return func(r *query.Row) bool {
		v, ok := r.Get(key)
		if !ok {
			return false
		}
		v = normalize(v)
		if !isComparable(v) || !isComparable(want) {
			return false
		}
		return v == want
	}
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return normalizeInt(int64(n))
	case int32:
		return float64(n)
	case int64:
		return normalizeInt(n)
	case query.RowID:
		return normalizeInt(int64(n))
	case float32:
		return float64(n)
	default:
		return v
	}
}

// normalizeInt keeps integers float64 cannot hold exactly as int64, the way
// rows decode them.
func normalizeInt(n int64) any {
	if n > 1<<53 || n < -(1<<53) {
		return n
	}
	return float64(n)
}

func isComparable(v any) bool {
	return v == nil || reflect.TypeOf(v).Comparable()
}
