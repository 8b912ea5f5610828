package filter

import (
	"testing"

	"github.com/maruel/idb/internal/query"
)

// tableState has ids 10, 15, 20 in that order.
func tableState() *query.State {
	return &query.State{
		Index: map[query.RowID]int{10: 0, 15: 1, 20: 2},
		Rows: []*query.Row{
			{ID: 10, Fields: map[string]any{"column": "column"}},
			{ID: 15, Fields: map[string]any{"column": "column match", "n": float64(2)}},
			{ID: 20, Fields: map[string]any{"column": "other", "tags": []any{"a"}, "big": int64(1<<53 + 1)}},
		},
		LastInsertID: 20,
	}
}

func gotIDs(rows []*query.Row) []query.RowID {
	out := make([]query.RowID, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     []query.RowID
	}{
		{"nil criteria", nil, []query.RowID{10, 15, 20}},
		{"all", All(), []query.RowID{10, 15, 20}},
		{"predicate", Where(func(r *query.Row) bool { return r.Fields["column"] == "column match" }), []query.RowID{15}},
		{"single id", ID(10), []query.RowID{10}},
		{"ids in requested order", IDs{20, 10}, []query.RowID{20, 10}},
		{"unknown id skipped", IDs{10, 99, 20}, []query.RowID{10, 20}},
		{"no ids", IDs{}, []query.RowID{}},
		{"equals string", Equals("column", "other"), []query.RowID{20}},
		{"equals int matches float", Equals("n", 2), []query.RowID{15}},
		{"equals id", Equals(query.IDField, 15), []query.RowID{15}},
		{"equals missing key", Equals("nope", 1), []query.RowID{}},
		{"equals large int", Equals("big", 1<<53+1), []query.RowID{20}},
		{"large int is exact", Equals("big", 1<<53+2), []query.RowID{}},
		{"equals incomparable value", Equals("tags", "a"), []query.RowID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gotIDs(Select(tt.criteria, tableState()))
			if len(got) != len(tt.want) {
				t.Fatalf("Select() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Select() = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}

	t.Run("all returns a copy", func(t *testing.T) {
		s := tableState()
		rows := Select(nil, s)
		rows[0] = nil
		if s.Rows[0] == nil {
			t.Error("Select() returned the state's backing slice")
		}
	})
}
