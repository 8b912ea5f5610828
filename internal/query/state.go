// Defines the persisted table state: rows, the id to position index and the
// last assigned id.

package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/invopop/jsonschema"
)

// IDField is the reserved row field holding the RowID.
const IDField = "id"

// RowID identifies a row within a table. Ids start at 1 and are never reused.
type RowID int64

// Row is a single document stored in a table.
//
// On disk a row is a flat JSON object; the id is stored under [IDField]
// alongside the user fields.
type Row struct {
	ID     RowID
	Fields map[string]any
}

// Clone returns a copy of the row. The top-level field map is copied; nested
// values are shared.
func (r *Row) Clone() *Row {
	f := maps.Clone(r.Fields)
	if f == nil {
		f = map[string]any{}
	}
	return &Row{ID: r.ID, Fields: f}
}

// Get returns a field value.
func (r *Row) Get(key string) (any, bool) {
	if key == IDField {
		return r.ID, true
	}
	v, ok := r.Fields[key]
	return v, ok
}

// MarshalJSON implements json.Marshaler.
func (r Row) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+1)
	maps.Copy(m, r.Fields)
	m[IDField] = r.ID
	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler.
//
// Numbers decode as float64, except integers that float64 cannot represent
// exactly, which decode as int64.
func (r *Row) UnmarshalJSON(data []byte) error {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	var m map[string]any
	if err := d.Decode(&m); err != nil {
		return err
	}
	if m == nil {
		return errors.New("row must be an object")
	}
	raw, ok := m[IDField]
	if !ok {
		return fmt.Errorf("row is missing %q", IDField)
	}
	n, ok := raw.(json.Number)
	if !ok {
		return fmt.Errorf("row has invalid %q: %v", IDField, raw)
	}
	id, err := n.Int64()
	if err != nil || id < 1 {
		return fmt.Errorf("row has invalid %q: %v", IDField, raw)
	}
	delete(m, IDField)
	for k, v := range m {
		m[k] = fromNumbers(v)
	}
	r.ID = RowID(id)
	r.Fields = m
	return nil
}

// maxExactInt is the largest integer magnitude float64 holds exactly.
const maxExactInt = 1 << 53

// fromNumbers replaces the json.Number values found in v.
func fromNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil && (i > maxExactInt || i < -maxExactInt) {
			return i
		}
		f, err := v.Float64()
		if err != nil {
			// Out of float64 range; keep the literal.
			return v
		}
		return f
	case map[string]any:
		for k, e := range v {
			v[k] = fromNumbers(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = fromNumbers(e)
		}
		return v
	default:
		return v
	}
}

// JSONSchema describes the on-disk shape of a row.
func (Row) JSONSchema() *jsonschema.Schema {
	props := jsonschema.NewProperties()
	props.Set(IDField, &jsonschema.Schema{
		Type:        "integer",
		Description: "Row identifier assigned at insert time",
	})
	return &jsonschema.Schema{
		Type:        "object",
		Description: "A row: user fields plus the reserved id",
		Properties:  props,
		Required:    []string{IDField},
	}
}

// State is the unit of persistence for one table.
//
// A State is treated as immutable once built: Apply never modifies a State it
// was given, it returns a new one sharing unchanged rows.
type State struct {
	Index        map[RowID]int `json:"index" jsonschema:"description=Row id to position in rows"`
	Rows         []*Row        `json:"rows" jsonschema:"description=Rows in insertion order"`
	LastInsertID RowID         `json:"lastInsertId" jsonschema:"description=Highest id ever assigned"`
}

// Empty returns the state of a table that was never saved.
func Empty() *State {
	return &State{
		Index: map[RowID]int{},
		Rows:  []*Row{},
	}
}

// Len returns the number of rows.
func (s *State) Len() int {
	return len(s.Rows)
}

// Get returns the row with the given id, or nil.
func (s *State) Get(id RowID) *Row {
	pos, ok := s.Index[id]
	if !ok || pos < 0 || pos >= len(s.Rows) {
		return nil
	}
	return s.Rows[pos]
}

// Verify checks the state invariants: every row is indexed at its position,
// the index has no extra entries, ids are unique and none exceeds
// LastInsertID.
func (s *State) Verify() error {
	if len(s.Index) != len(s.Rows) {
		return fmt.Errorf("index has %d entries for %d rows", len(s.Index), len(s.Rows))
	}
	seen := make(map[RowID]struct{}, len(s.Rows))
	for i, r := range s.Rows {
		if r == nil {
			return fmt.Errorf("row %d is null", i)
		}
		if r.ID < 1 || r.ID > s.LastInsertID {
			return fmt.Errorf("row %d has id %d outside [1, %d]", i, r.ID, s.LastInsertID)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("duplicate id %d", r.ID)
		}
		seen[r.ID] = struct{}{}
		if pos, ok := s.Index[r.ID]; !ok || pos != i {
			return fmt.Errorf("index entry for id %d is %d, want %d", r.ID, pos, i)
		}
	}
	return nil
}

func buildIndex(rows []*Row) map[RowID]int {
	index := make(map[RowID]int, len(rows))
	for i, r := range rows {
		index[r.ID] = i
	}
	return index
}
