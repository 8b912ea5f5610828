// Package idb is an embedded document store backed by plain JSON files.
//
// A Database is a directory holding a catalog and one JSON document per
// table. Each document has the layout:
//
//	{"index": {"<id>": <position>, ...}, "rows": [{"id": <id>, ...}, ...], "lastInsertId": <id>}
//
// Mutations are queued on a Table handle without any I/O. Save loads the
// document, drains the queue, applies every operation in submission order and
// writes the result back in one replace. A table that was never saved loads
// as empty for the purpose of Save, but Query reports it as not found.
//
// Row ids are assigned at insert time, start at 1 and are never reused, even
// after the row is deleted.
//
// Saves on the same handle are serialized. Nothing coordinates writers in
// different processes: the last write wins.
package idb
