package idb

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	dberrors "github.com/maruel/idb/internal/errors"
	"github.com/maruel/idb/internal/filter"
	"github.com/maruel/idb/internal/query"
	"github.com/maruel/idb/internal/validation"
)

// Table is the handle of a table. Mutations are queued until Save.
//
// Table is safe for concurrent use. Operations queued while a Save is in
// flight are either part of that save or left for the next one, never both.
type Table struct {
	db   *Database
	name string

	queue  query.Queue
	saveMu sync.Mutex
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Path returns the path of the table document.
func (t *Table) Path() string {
	return t.db.store.TablePath(t.db.name, t.name)
}

// Insert queues rows for insertion. Each row gets the next id when applied.
//
// The rows are copied; the caller may reuse the maps.
func (t *Table) Insert(rows ...map[string]any) error {
	if err := validation.Rows(rows); err != nil {
		return err
	}
	cloned := make([]map[string]any, len(rows))
	for i, r := range rows {
		cloned[i] = maps.Clone(r)
	}
	t.queue.Enqueue(query.Insert{Rows: cloned})
	return nil
}

// Update queues fn to run on every row selected by c. The fields fn returns
// are merged into the row; the row id never changes.
//
// fn must not modify the row it is given. It is probed once before being
// queued.
func (t *Table) Update(fn Transform, c Criteria) error {
	if err := validation.Update(fn); err != nil {
		return err
	}
	switch c := c.(type) {
	case nil:
		t.queue.Enqueue(query.UpdateByFilter{Update: fn})
	case filter.Where:
		t.queue.Enqueue(query.UpdateByFilter{Match: query.Predicate(c), Update: fn})
	case filter.IDs:
		t.queue.Enqueue(query.UpdateByIDs{IDs: slices.Clone([]query.RowID(c)), Update: fn})
	default:
		return dberrors.Internal(fmt.Sprintf("unsupported criteria %T", c))
	}
	return nil
}

// Delete queues the removal of every row selected by c. A nil c removes all
// rows.
func (t *Table) Delete(c Criteria) error {
	switch c := c.(type) {
	case nil:
		t.queue.Enqueue(query.DeleteByFilter{})
	case filter.Where:
		t.queue.Enqueue(query.DeleteByFilter{Match: query.Predicate(c)})
	case filter.IDs:
		t.queue.Enqueue(query.DeleteByIDs{IDs: slices.Clone([]query.RowID(c))})
	default:
		return dberrors.Internal(fmt.Sprintf("unsupported criteria %T", c))
	}
	return nil
}

// Query returns the saved rows selected by c. Queued operations are not
// visible until saved.
//
// A table that was never saved returns a TABLE_NOT_FOUND error.
func (t *Table) Query(ctx context.Context, c Criteria) ([]*Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := t.db.store.LoadTable(t.db.name, t.name)
	if err != nil {
		return nil, err
	}
	return filter.Select(c, s), nil
}

// Revert discards the queued operations and returns how many were dropped.
func (t *Table) Revert() int {
	n := t.queue.Clear()
	if n != 0 {
		slog.Debug("Reverted queued operations", "db", t.db.name, "table", t.name, "ops", n)
	}
	return n
}

// Pending returns the number of queued operations.
func (t *Table) Pending() int {
	return t.queue.Len()
}

// Save applies the queued operations to the saved table and writes it back.
//
// A table that cannot be loaded, typically because it was never saved,
// starts empty. When an update function or predicate fails, nothing is
// written and the operations drained for this save are lost.
//
// ctx is only checked before loading; once started the save runs to
// completion. A handle whose table was dropped, even if a table of the same
// name was created since, returns a TABLE_NOT_FOUND error.
func (t *Table) Save(ctx context.Context) error {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	// DropTable and CreateTable wait until the document is written.
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()
	if err := t.db.checkHandle(t); err != nil {
		return err
	}
	start := time.Now()

	s, err := t.db.store.LoadTable(t.db.name, t.name)
	if err != nil {
		if dberrors.CodeOf(err) != dberrors.ErrTableNotFound {
			slog.WarnContext(ctx, "Failed to load table, saving over it", "db", t.db.name, "table", t.name, "err", err)
		}
		s = query.Empty()
	}
	if t.db.loaded != nil {
		t.db.loaded(t.name)
	}

	// Drain only now so operations queued during the load are included.
	ops := t.queue.Drain()
	next, err := query.Apply(ops, s)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to apply queued operations", "db", t.db.name, "table", t.name, "ops", len(ops), "err", err)
		return dberrors.ApplyFailed(t.name, len(ops), err)
	}
	if err := t.db.saveTable(ctx, t.name, next, len(ops)); err != nil {
		return err
	}
	slog.DebugContext(ctx, "Saved table",
		"db", t.db.name,
		"table", t.name,
		"ops", len(ops),
		"rows", next.Len(),
		"lastInsertId", next.LastInsertID,
		"duration", time.Since(start).Round(time.Microsecond))
	return nil
}
