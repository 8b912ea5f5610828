package idb

import (
	"github.com/maruel/idb/internal/filter"
	"github.com/maruel/idb/internal/query"
	"github.com/maruel/idb/internal/storage/git"
)

type (
	// Row is a stored document: user fields plus the engine-assigned ID.
	Row = query.Row
	// RowID identifies a row within its table.
	RowID = query.RowID
	// Predicate selects rows.
	Predicate = query.Predicate
	// Transform computes the fields to merge into a row. It must not modify
	// the row it is given.
	Transform = query.Transform
	// Criteria selects the rows an update, delete or query applies to.
	Criteria = filter.Criteria
	// Where selects rows with a predicate.
	Where = filter.Where
	// IDs selects rows by id.
	IDs = filter.IDs
	// Commit is an entry of a table's history.
	Commit = git.Commit
)

// IDField is the reserved field holding the row id in documents.
const IDField = query.IDField

// All selects every row.
func All() Criteria {
	return filter.All()
}

// ID selects a single row.
func ID(id RowID) Criteria {
	return filter.ID(id)
}

// Equals selects rows whose field key equals value. Numbers compare by value
// regardless of their Go type.
func Equals(key string, value any) Where {
	return filter.Equals(key, value)
}
