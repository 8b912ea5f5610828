// Folds queued operations over a table state.

package query

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrNilUpdate is returned when a Transform returns nil fields.
var ErrNilUpdate = errors.New("update returned nil fields")

// Apply folds ops over s in order and returns the resulting state.
//
// Apply has no side effects: s is never modified and rows that are not
// touched keep their identity in the result. A nil s is treated as [Empty].
// An error returned by a Transform aborts the fold; the partial result is
// discarded.
func Apply(ops []Op, s *State) (*State, error) {
	if s == nil {
		s = Empty()
	}
	for i, op := range ops {
		next, err := applyOp(s, op)
		if err != nil {
			return nil, fmt.Errorf("operation %d (%s): %w", i, op.Kind(), err)
		}
		s = next
	}
	return s, nil
}

func applyOp(s *State, op Op) (*State, error) {
	switch op := op.(type) {
	case Insert:
		return insertRows(s, op.Rows), nil
	case UpdateByFilter:
		return updateRows(s, matchingPositions(s, op.Match), op.Update)
	case UpdateByIDs:
		positions := resolveIDs(s, op.IDs)
		slices.Sort(positions)
		return updateRows(s, positions, op.Update)
	case DeleteByFilter:
		return deleteRows(s, matchingPositions(s, op.Match)), nil
	case DeleteByIDs:
		return deleteRows(s, resolveIDs(s, op.IDs)), nil
	default:
		return nil, fmt.Errorf("unknown operation %T", op)
	}
}

// insertRows appends the rows with consecutive ids then rebuilds the index.
func insertRows(s *State, fields []map[string]any) *State {
	rows := make([]*Row, len(s.Rows), len(s.Rows)+len(fields))
	copy(rows, s.Rows)
	last := s.LastInsertID
	for _, f := range fields {
		last++
		r := &Row{ID: last, Fields: maps.Clone(f)}
		if r.Fields == nil {
			r.Fields = map[string]any{}
		}
		delete(r.Fields, IDField)
		rows = append(rows, r)
	}
	return &State{
		Index:        buildIndex(rows),
		Rows:         rows,
		LastInsertID: last,
	}
}

// updateRows replaces the rows at the given ascending positions. The index
// and LastInsertID are shared with s since no row moves.
func updateRows(s *State, positions []int, fn Transform) (*State, error) {
	if len(positions) == 0 {
		return s, nil
	}
	if fn == nil {
		return nil, errors.New("update function is nil")
	}
	rows := slices.Clone(s.Rows)
	for _, pos := range positions {
		orig := s.Rows[pos]
		upd, err := fn(orig.Clone())
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", orig.ID, err)
		}
		if upd == nil {
			return nil, fmt.Errorf("row %d: %w", orig.ID, ErrNilUpdate)
		}
		f := maps.Clone(orig.Fields)
		if f == nil {
			f = make(map[string]any, len(upd))
		}
		maps.Copy(f, upd)
		delete(f, IDField)
		rows[pos] = &Row{ID: orig.ID, Fields: f}
	}
	return &State{
		Index:        s.Index,
		Rows:         rows,
		LastInsertID: s.LastInsertID,
	}, nil
}

// deleteRows removes the rows at the given positions in a single pass and
// rebuilds the index. It returns s itself when there is nothing to remove.
func deleteRows(s *State, positions []int) *State {
	if len(positions) == 0 {
		return s
	}
	drop := make([]bool, len(s.Rows))
	for _, pos := range positions {
		drop[pos] = true
	}
	rows := make([]*Row, 0, len(s.Rows))
	for i, r := range s.Rows {
		if !drop[i] {
			rows = append(rows, r)
		}
	}
	return &State{
		Index:        buildIndex(rows),
		Rows:         rows,
		LastInsertID: s.LastInsertID,
	}
}

// matchingPositions returns the ascending positions of the rows matched by
// match. A nil match selects every row.
func matchingPositions(s *State, match Predicate) []int {
	var positions []int
	for i, r := range s.Rows {
		if match == nil || match(r) {
			positions = append(positions, i)
		}
	}
	return positions
}

// resolveIDs maps ids to positions through the index, dropping unknown and
// duplicate ids.
func resolveIDs(s *State, ids []RowID) []int {
	var positions []int
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		pos, ok := s.Index[id]
		if !ok || pos < 0 || pos >= len(s.Rows) {
			continue
		}
		if _, dup := seen[pos]; dup {
			continue
		}
		seen[pos] = struct{}{}
		positions = append(positions, pos)
	}
	return positions
}
