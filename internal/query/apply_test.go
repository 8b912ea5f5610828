package query

import (
	"errors"
	"fmt"
	"testing"
)

func mustApply(t *testing.T, ops []Op, s *State) *State {
	t.Helper()
	got, err := Apply(ops, s)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := got.Verify(); err != nil {
		t.Fatalf("Verify() after Apply = %v", err)
	}
	return got
}

func ids(s *State) []RowID {
	out := make([]RowID, 0, len(s.Rows))
	for _, r := range s.Rows {
		out = append(out, r.ID)
	}
	return out
}

func equalIDs(a, b []RowID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// threeRows returns a state with ids 1, 2, 3 holding column 3, 4, 5.
func threeRows(t *testing.T) *State {
	t.Helper()
	return mustApply(t, []Op{Insert{Rows: []map[string]any{
		{"column": 3}, {"column": 4}, {"column": 5},
	}}}, Empty())
}

func double(r *Row) (map[string]any, error) {
	return map[string]any{"column": r.Fields["column"].(int) * 2}, nil
}

func TestApply(t *testing.T) {
	t.Run("Insert", func(t *testing.T) {
		t.Run("single row into empty state", func(t *testing.T) {
			got := mustApply(t, []Op{Insert{Rows: []map[string]any{{"column": "column"}}}}, Empty())
			if len(got.Rows) != 1 {
				t.Fatalf("len(Rows) = %d, want 1", len(got.Rows))
			}
			if r := got.Rows[0]; r.ID != 1 || r.Fields["column"] != "column" {
				t.Errorf("Rows[0] = %+v, want {ID:1 column:column}", r)
			}
			if got.Index[1] != 0 || len(got.Index) != 1 {
				t.Errorf("Index = %v, want {1:0}", got.Index)
			}
			if got.LastInsertID != 1 {
				t.Errorf("LastInsertID = %d, want 1", got.LastInsertID)
			}
		})

		t.Run("batch continues ids", func(t *testing.T) {
			s := mustApply(t, []Op{Insert{Rows: []map[string]any{{"column": "column"}}}}, Empty())
			got := mustApply(t, []Op{Insert{Rows: []map[string]any{
				{"column": "column"}, {"column": "column"},
			}}}, s)
			if want := []RowID{1, 2, 3}; !equalIDs(ids(got), want) {
				t.Errorf("ids = %v, want %v", ids(got), want)
			}
			for id, pos := range map[RowID]int{1: 0, 2: 1, 3: 2} {
				if got.Index[id] != pos {
					t.Errorf("Index[%d] = %d, want %d", id, got.Index[id], pos)
				}
			}
			if got.LastInsertID != 3 {
				t.Errorf("LastInsertID = %d, want 3", got.LastInsertID)
			}
		})

		t.Run("continues from non-zero lastInsertId", func(t *testing.T) {
			s := &State{Index: map[RowID]int{}, Rows: []*Row{}, LastInsertID: 41}
			got := mustApply(t, []Op{
				Insert{Rows: []map[string]any{{"a": 1}}},
				Insert{Rows: []map[string]any{{"a": 2}, {"a": 3}}},
			}, s)
			if want := []RowID{42, 43, 44}; !equalIDs(ids(got), want) {
				t.Errorf("ids = %v, want %v", ids(got), want)
			}
			if got.LastInsertID != 44 {
				t.Errorf("LastInsertID = %d, want 44", got.LastInsertID)
			}
		})

		t.Run("zero rows still rebuilds index", func(t *testing.T) {
			s := threeRows(t)
			got := mustApply(t, []Op{Insert{}}, s)
			if got.LastInsertID != 3 || len(got.Rows) != 3 {
				t.Errorf("got %d rows, lastInsertId %d; want 3, 3", len(got.Rows), got.LastInsertID)
			}
		})

		t.Run("copies caller maps and drops id", func(t *testing.T) {
			in := map[string]any{"name": "a", IDField: 99}
			got := mustApply(t, []Op{Insert{Rows: []map[string]any{in}}}, Empty())
			in["name"] = "changed"
			if got.Rows[0].Fields["name"] != "a" {
				t.Error("inserted row aliases the caller's map")
			}
			if _, ok := got.Rows[0].Fields[IDField]; ok {
				t.Error("inserted row kept a caller supplied id field")
			}
			if got.Rows[0].ID != 1 {
				t.Errorf("ID = %d, want 1", got.Rows[0].ID)
			}
		})
	})

	t.Run("UpdateByFilter", func(t *testing.T) {
		t.Run("transforms matching rows", func(t *testing.T) {
			s := threeRows(t)
			got := mustApply(t, []Op{UpdateByFilter{
				Match:  func(r *Row) bool { return r.ID > 1 },
				Update: double,
			}}, s)
			want := map[RowID]int{1: 3, 2: 8, 3: 10}
			for _, r := range got.Rows {
				if r.Fields["column"] != want[r.ID] {
					t.Errorf("row %d column = %v, want %d", r.ID, r.Fields["column"], want[r.ID])
				}
			}
			if got.Rows[0] != s.Rows[0] {
				t.Error("unmatched row was replaced")
			}
			if got.LastInsertID != s.LastInsertID {
				t.Errorf("LastInsertID = %d, want %d", got.LastInsertID, s.LastInsertID)
			}
			if len(got.Index) != len(s.Index) {
				t.Errorf("Index changed: %v", got.Index)
			}
			if s.Rows[1].Fields["column"] != 4 {
				t.Error("input state was modified")
			}
		})

		t.Run("merges and keeps id", func(t *testing.T) {
			s := mustApply(t, []Op{Insert{Rows: []map[string]any{{"a": 1, "b": 2}}}}, Empty())
			got := mustApply(t, []Op{UpdateByFilter{Update: func(r *Row) (map[string]any, error) {
				return map[string]any{"b": 3, IDField: 77}, nil
			}}}, s)
			r := got.Rows[0]
			if r.ID != 1 || r.Fields["a"] != 1 || r.Fields["b"] != 3 {
				t.Errorf("row = %+v, want {ID:1 a:1 b:3}", r)
			}
			if _, ok := r.Fields[IDField]; ok {
				t.Error("id leaked into fields")
			}
		})

		t.Run("transform mutating its input does not leak", func(t *testing.T) {
			s := threeRows(t)
			mustApply(t, []Op{UpdateByFilter{Update: func(r *Row) (map[string]any, error) {
				r.Fields["column"] = -1
				return map[string]any{}, nil
			}}}, s)
			if s.Rows[0].Fields["column"] != 3 {
				t.Error("transform modified the stored row")
			}
		})

		t.Run("called once per match in row order", func(t *testing.T) {
			s := threeRows(t)
			var seen []RowID
			mustApply(t, []Op{UpdateByFilter{
				Match: func(r *Row) bool { return r.ID != 2 },
				Update: func(r *Row) (map[string]any, error) {
					seen = append(seen, r.ID)
					return map[string]any{}, nil
				},
			}}, s)
			if want := []RowID{1, 3}; !equalIDs(seen, want) {
				t.Errorf("calls = %v, want %v", seen, want)
			}
		})

		t.Run("no match returns same state", func(t *testing.T) {
			s := threeRows(t)
			got := mustApply(t, []Op{UpdateByFilter{
				Match:  func(*Row) bool { return false },
				Update: double,
			}}, s)
			if got != s {
				t.Error("no-op update returned a new state")
			}
		})
	})

	t.Run("UpdateByIDs", func(t *testing.T) {
		t.Run("valid", func(t *testing.T) {
			tests := []struct {
				name string
				ids  []RowID
				want map[RowID]int
			}{
				{"single", []RowID{2}, map[RowID]int{1: 3, 2: 8, 3: 5}},
				{"unordered with duplicates", []RowID{3, 1, 3}, map[RowID]int{1: 6, 2: 4, 3: 10}},
				{"unknown ignored", []RowID{9, 1}, map[RowID]int{1: 6, 2: 4, 3: 5}},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					s := threeRows(t)
					got := mustApply(t, []Op{UpdateByIDs{IDs: tt.ids, Update: double}}, s)
					for _, r := range got.Rows {
						if r.Fields["column"] != tt.want[r.ID] {
							t.Errorf("row %d column = %v, want %d", r.ID, r.Fields["column"], tt.want[r.ID])
						}
					}
					if got.LastInsertID != 3 {
						t.Errorf("LastInsertID = %d, want 3", got.LastInsertID)
					}
				})
			}
		})

		t.Run("only unknown ids returns same state", func(t *testing.T) {
			s := threeRows(t)
			if got := mustApply(t, []Op{UpdateByIDs{IDs: []RowID{7}, Update: double}}, s); got != s {
				t.Error("no-op update returned a new state")
			}
		})
	})

	t.Run("DeleteByIDs", func(t *testing.T) {
		t.Run("removes and reindexes", func(t *testing.T) {
			s := threeRows(t)
			got := mustApply(t, []Op{DeleteByIDs{IDs: []RowID{1, 2}}}, s)
			if want := []RowID{3}; !equalIDs(ids(got), want) {
				t.Errorf("ids = %v, want %v", ids(got), want)
			}
			if len(got.Index) != 1 || got.Index[3] != 0 {
				t.Errorf("Index = %v, want {3:0}", got.Index)
			}
			if got.LastInsertID != 3 {
				t.Errorf("LastInsertID = %d, want 3", got.LastInsertID)
			}
			if len(s.Rows) != 3 {
				t.Error("input state was modified")
			}
		})

		t.Run("unknown id returns same state", func(t *testing.T) {
			s := threeRows(t)
			got := mustApply(t, []Op{DeleteByIDs{IDs: []RowID{4, 0, -1}}}, s)
			if got != s {
				t.Error("no-op delete returned a new state")
			}
		})

		t.Run("duplicate ids", func(t *testing.T) {
			s := threeRows(t)
			got := mustApply(t, []Op{DeleteByIDs{IDs: []RowID{2, 2}}}, s)
			if want := []RowID{1, 3}; !equalIDs(ids(got), want) {
				t.Errorf("ids = %v, want %v", ids(got), want)
			}
		})
	})

	t.Run("DeleteByFilter", func(t *testing.T) {
		t.Run("keeps survivor order", func(t *testing.T) {
			s := mustApply(t, []Op{Insert{Rows: []map[string]any{
				{"n": 1}, {"n": 2}, {"n": 3}, {"n": 4}, {"n": 5},
			}}}, Empty())
			got := mustApply(t, []Op{DeleteByFilter{Match: func(r *Row) bool {
				return r.Fields["n"].(int)%2 == 0
			}}}, s)
			if want := []RowID{1, 3, 5}; !equalIDs(ids(got), want) {
				t.Errorf("ids = %v, want %v", ids(got), want)
			}
			if got.LastInsertID != 5 {
				t.Errorf("LastInsertID = %d, want 5", got.LastInsertID)
			}
		})

		t.Run("every other row of a large table", func(t *testing.T) {
			s := evenOddState(10000)
			got := mustApply(t, []Op{DeleteByFilter{Match: isEven}}, s)
			if len(got.Rows) != 5000 {
				t.Fatalf("len(Rows) = %d, want 5000", len(got.Rows))
			}
			for i, r := range got.Rows {
				if want := RowID(2*i + 1); r.ID != want || got.Index[want] != i {
					t.Fatalf("Rows[%d].ID = %d, index %d; want %d", i, r.ID, got.Index[want], want)
				}
				if r != s.Rows[2*i] {
					t.Fatalf("Rows[%d] is not the original row", i)
				}
			}
		})

		t.Run("nil match deletes everything", func(t *testing.T) {
			got := mustApply(t, []Op{DeleteByFilter{}}, threeRows(t))
			if len(got.Rows) != 0 || len(got.Index) != 0 || got.LastInsertID != 3 {
				t.Errorf("got %+v, want no rows and lastInsertId 3", got)
			}
		})
	})

	t.Run("Sequences", func(t *testing.T) {
		t.Run("empty sequence", func(t *testing.T) {
			s := threeRows(t)
			if got := mustApply(t, nil, s); got != s {
				t.Error("empty fold returned a new state")
			}
		})

		t.Run("nil state is empty", func(t *testing.T) {
			got := mustApply(t, []Op{Insert{Rows: []map[string]any{{}}}}, nil)
			if got.LastInsertID != 1 {
				t.Errorf("LastInsertID = %d, want 1", got.LastInsertID)
			}
		})

		t.Run("delete then insert never reuses ids", func(t *testing.T) {
			got := mustApply(t, []Op{
				Insert{Rows: []map[string]any{{}, {}}},
				DeleteByIDs{IDs: []RowID{2}},
				Insert{Rows: []map[string]any{{}}},
				DeleteByFilter{},
				Insert{Rows: []map[string]any{{}}},
			}, Empty())
			if want := []RowID{4}; !equalIDs(ids(got), want) {
				t.Errorf("ids = %v, want %v", ids(got), want)
			}
		})

		t.Run("update then delete discards update", func(t *testing.T) {
			got := mustApply(t, []Op{
				UpdateByIDs{IDs: []RowID{2}, Update: double},
				DeleteByIDs{IDs: []RowID{2}},
			}, threeRows(t))
			if got.Get(2) != nil {
				t.Error("row 2 still present")
			}
		})

		t.Run("update sees earlier insert", func(t *testing.T) {
			got := mustApply(t, []Op{
				Insert{Rows: []map[string]any{{"column": 1}}},
				UpdateByIDs{IDs: []RowID{4}, Update: double},
			}, threeRows(t))
			if r := got.Get(4); r == nil || r.Fields["column"] != 2 {
				t.Errorf("row 4 = %+v, want column 2", r)
			}
		})
	})

	t.Run("errors", func(t *testing.T) {
		errBoom := errors.New("boom")
		tests := []struct {
			name string
			op   Op
			want error
		}{
			{"transform error", UpdateByFilter{Update: func(*Row) (map[string]any, error) {
				return nil, errBoom
			}}, errBoom},
			{"nil result", UpdateByIDs{IDs: []RowID{1}, Update: func(*Row) (map[string]any, error) {
				return nil, nil
			}}, ErrNilUpdate},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s := threeRows(t)
				got, err := Apply([]Op{Insert{Rows: []map[string]any{{}}}, tt.op}, s)
				if !errors.Is(err, tt.want) {
					t.Fatalf("Apply() error = %v, want %v", err, tt.want)
				}
				if got != nil {
					t.Errorf("Apply() state = %+v, want nil", got)
				}
				if s.LastInsertID != 3 || len(s.Rows) != 3 {
					t.Error("input state was modified by the aborted fold")
				}
			})
		}
	})
}

// evenOddState returns a state with ids 1..n holding their id in "n".
func evenOddState(n int) *State {
	fields := make([]map[string]any, n)
	for i := range fields {
		fields[i] = map[string]any{"n": i + 1}
	}
	s, _ := Apply([]Op{Insert{Rows: fields}}, Empty())
	return s
}

func isEven(r *Row) bool {
	return r.Fields["n"].(int)%2 == 0
}

func BenchmarkDeleteByFilter(b *testing.B) {
	for _, n := range []int{1000, 100000} {
		s := evenOddState(n)
		ops := []Op{DeleteByFilter{Match: isEven}}
		b.Run(fmt.Sprintf("rows=%d", n), func(b *testing.B) {
			for range b.N {
				if _, err := Apply(ops, s); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
