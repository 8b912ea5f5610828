// Package query turns a queue of pending mutations into a new table state.
//
// # State
//
// A [State] holds the rows of a table in insertion order, an index from
// [RowID] to position in the rows, and the last id ever assigned. After every
// operation the index agrees with the row positions and ids only grow: a
// deleted id is never assigned again.
//
// # Operations
//
// [Op] is a closed set of mutations: [Insert], [UpdateByFilter],
// [UpdateByIDs], [DeleteByFilter] and [DeleteByIDs]. [Apply] folds them over a
// starting state strictly in submission order; a later operation sees the
// effect of every earlier one.
//
// Updates never move rows, so they leave the index untouched. Inserts and
// deletes rebuild it. Operations that change nothing return the state they
// were given, so callers can detect a no-op by pointer comparison.
//
// # Queue
//
// [Queue] collects operations between saves. It is drained once per save,
// after the persisted state has been loaded, so operations submitted while
// the load is in flight are part of the same fold.
package query
