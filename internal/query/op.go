// Defines the queued mutation operations.

package query

// Predicate selects rows. It must not modify the row it is given.
type Predicate func(r *Row) bool

// Transform computes the updated fields of a row.
//
// It receives a clone of the row. The returned fields are merged over the
// row's current fields; an IDField key in the result is ignored, the row
// keeps its id.
type Transform func(r *Row) (map[string]any, error)

// Op is a queued mutation. The set of operations is closed: Insert,
// UpdateByFilter, UpdateByIDs, DeleteByFilter and DeleteByIDs.
type Op interface {
	// Kind returns a short name for logging.
	Kind() string

	isOp()
}

// Insert appends rows, assigning each one the next id.
type Insert struct {
	Rows []map[string]any
}

// UpdateByFilter transforms every row matched by Match.
type UpdateByFilter struct {
	Match  Predicate
	Update Transform
}

// UpdateByIDs transforms the rows with the given ids. Unknown ids are ignored.
type UpdateByIDs struct {
	IDs    []RowID
	Update Transform
}

// DeleteByFilter removes every row matched by Match.
type DeleteByFilter struct {
	Match Predicate
}

// DeleteByIDs removes the rows with the given ids. Unknown ids are ignored.
type DeleteByIDs struct {
	IDs []RowID
}

func (Insert) Kind() string         { return "insert" }
func (UpdateByFilter) Kind() string { return "update_by_filter" }
func (UpdateByIDs) Kind() string    { return "update_by_ids" }
func (DeleteByFilter) Kind() string { return "delete_by_filter" }
func (DeleteByIDs) Kind() string    { return "delete_by_ids" }

func (Insert) isOp()         {}
func (UpdateByFilter) isOp() {}
func (UpdateByIDs) isOp()    {}
func (DeleteByFilter) isOp() {}
func (DeleteByIDs) isOp()    {}
