package idb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	dberrors "github.com/maruel/idb/internal/errors"
	"github.com/maruel/idb/internal/query"
	"github.com/maruel/idb/internal/storage"
	"github.com/maruel/idb/internal/storage/git"
	"github.com/maruel/idb/internal/validation"
)

// catalogFile is the catalog name relative to the database directory, as
// committed in history.
const catalogFile = ".idb"

// Database is a named directory of tables.
//
// It is safe for concurrent use. A Database hands out a single Table handle
// per table name.
type Database struct {
	name   string
	store  *storage.FileStore
	repo   *git.Repo // nil when history is disabled
	author git.Author

	// mu is held for reading by Table.Save from the catalog check until the
	// document is written, so catalog changes never interleave with a save.
	mu      sync.RWMutex
	catalog *storage.Catalog
	tables  map[string]*Table

	// loaded, when set, runs in Save right after the table is loaded.
	loaded func(table string)
}

// Open opens the database name under rootDir, creating its directory and
// catalog when missing.
func Open(rootDir, name string, opts ...Option) (*Database, error) {
	if err := validation.Name(name); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	store, err := storage.NewFileStore(rootDir)
	if err != nil {
		return nil, dberrors.Storage("failed to open data directory", err).WithDetail("dir", rootDir)
	}
	if err := store.CreateDatabase(name); err != nil {
		return nil, err
	}
	db := &Database{
		name:   name,
		store:  store,
		author: o.author,
		tables: map[string]*Table{},
	}
	if o.history {
		if db.repo, err = git.Open(store.DatabaseDir(name), o.author.Name, o.author.Email); err != nil {
			return nil, dberrors.Storage("failed to open history", err).WithDetail("database", name)
		}
	}

	db.catalog, err = store.LoadCatalog(name)
	switch {
	case dberrors.CodeOf(err) == dberrors.ErrDatabaseNotFound:
		db.catalog = storage.NewCatalog()
		if err := db.saveCatalog(context.Background(), "create database "+name); err != nil {
			return nil, err
		}
		slog.Debug("Created database", "db", name, "dir", db.Dir())
	case err != nil:
		return nil, err
	}
	return db, nil
}

// Name returns the database name.
func (db *Database) Name() string {
	return db.name
}

// Dir returns the database directory.
func (db *Database) Dir() string {
	return db.store.DatabaseDir(db.name)
}

// CreateTable registers the table in the catalog if needed and returns its
// handle. Calling it again for the same name returns the same handle.
//
// The table document itself is only written by the first Save.
func (db *Database) CreateTable(name string) (*Table, error) {
	if err := validation.Name(name); err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if _, created := db.catalog.Add(name); created {
		if err := db.saveCatalog(context.Background(), "create table "+name); err != nil {
			db.catalog.Remove(name)
			return nil, err
		}
		slog.Debug("Created table", "db", db.name, "table", name)
	}
	return db.handle(name), nil
}

// Table returns the handle of an existing table.
func (db *Database) Table(name string) (*Table, error) {
	if err := validation.Name(name); err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkTable(name); err != nil {
		return nil, err
	}
	return db.handle(name), nil
}

// DropTable deletes the table document and removes it from the catalog.
// Handles previously returned for the table become invalid.
func (db *Database) DropTable(name string) error {
	if err := validation.Name(name); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkTable(name); err != nil {
		return err
	}
	if err := db.store.DeleteTable(db.name, name); err != nil {
		return err
	}
	info := db.catalog.Tables[name]
	db.catalog.Remove(name)
	if err := db.saveCatalog(context.Background(), "drop table "+name, storage.TableFile(name)); err != nil {
		db.catalog.Tables[name] = info
		return err
	}
	delete(db.tables, name)
	slog.Debug("Dropped table", "db", db.name, "table", name)
	return nil
}

// ListTables returns the sorted table names.
func (db *Database) ListTables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.catalog == nil {
		return []string{}
	}
	return db.catalog.Names()
}

// Drop deletes the database directory, its tables and its history. The
// Database and its handles must not be used afterward.
func (db *Database) Drop() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkOpen(); err != nil {
		return err
	}
	if err := db.store.DeleteDatabase(db.name); err != nil {
		return err
	}
	db.catalog = nil
	db.tables = map[string]*Table{}
	slog.Debug("Dropped database", "db", db.name)
	return nil
}

// History returns the commits that changed the table, newest first, limited
// to n. It requires WithHistory.
func (db *Database) History(ctx context.Context, table string, n int) ([]*Commit, error) {
	repo, err := db.history(table)
	if err != nil {
		return nil, err
	}
	commits, err := repo.History(ctx, storage.TableFile(table), n)
	if err != nil {
		return nil, dberrors.Storage("failed to read history", err).WithDetail("table", table)
	}
	if commits == nil {
		commits = []*Commit{}
	}
	return commits, nil
}

// TableAt returns the rows of the table as of revision rev, a commit hash or
// a revision such as HEAD~1. It requires WithHistory.
func (db *Database) TableAt(ctx context.Context, table, rev string) ([]*Row, error) {
	repo, err := db.history(table)
	if err != nil {
		return nil, err
	}
	file := storage.TableFile(table)
	data, err := repo.FileAt(ctx, rev, file)
	if err != nil {
		return nil, dberrors.TableNotFound(db.name, table).WithDetail("revision", rev).Wrap(err)
	}
	s, err := storage.DecodeTable(rev+":"+file, data)
	if err != nil {
		return nil, err
	}
	return s.Rows, nil
}

func (db *Database) history(table string) (*git.Repo, error) {
	if err := validation.Name(table); err != nil {
		return nil, err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if db.repo == nil {
		return nil, dberrors.Validation(fmt.Sprintf("Expected database %s to be opened with history, got none.", db.name))
	}
	return db.repo, nil
}

// handle returns the table handle, creating it on first use. db.mu must be
// held.
func (db *Database) handle(name string) *Table {
	t := db.tables[name]
	if t == nil {
		t = &Table{db: db, name: name}
		db.tables[name] = t
	}
	return t
}

// checkOpen returns an error once the database was dropped. db.mu must be
// held.
func (db *Database) checkOpen() error {
	if db.catalog == nil {
		return dberrors.DatabaseNotFound(db.name)
	}
	return nil
}

// checkTable returns an error unless name is in the catalog. db.mu must be
// held.
func (db *Database) checkTable(name string) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if !db.catalog.Has(name) {
		return dberrors.TableNotFound(db.name, name)
	}
	return nil
}

// checkHandle returns an error unless t is the current handle of a
// catalogued table. A handle outlives DropTable but not its table. db.mu must
// be held.
func (db *Database) checkHandle(t *Table) error {
	if err := db.checkTable(t.name); err != nil {
		return err
	}
	if db.tables[t.name] != t {
		return dberrors.TableNotFound(db.name, t.name).WithDetail("reason", "handle was dropped")
	}
	return nil
}

// saveCatalog writes the catalog and, with history enabled, commits it along
// with extra files.
func (db *Database) saveCatalog(ctx context.Context, msg string, extra ...string) error {
	if db.repo == nil {
		return db.store.SaveCatalog(db.name, db.catalog)
	}
	var saveErr error
	err := db.repo.CommitTx(ctx, db.author, func() (string, []string, error) {
		if saveErr = db.store.SaveCatalog(db.name, db.catalog); saveErr != nil {
			return "", nil, saveErr
		}
		return msg, append([]string{catalogFile}, extra...), nil
	})
	if saveErr != nil {
		return saveErr
	}
	if err != nil {
		return dberrors.Storage("failed to record history", err).WithDetail("database", db.name)
	}
	return nil
}

// saveTable writes the table document and, with history enabled, commits it.
// The write is not interrupted by ctx.
func (db *Database) saveTable(ctx context.Context, table string, s *query.State, ops int) error {
	if db.repo == nil {
		return db.store.SaveTable(db.name, table, s)
	}
	var saveErr error
	err := db.repo.CommitTx(context.WithoutCancel(ctx), db.author, func() (string, []string, error) {
		if saveErr = db.store.SaveTable(db.name, table, s); saveErr != nil {
			return "", nil, saveErr
		}
		return fmt.Sprintf("save %s: %d operations", table, ops), []string{storage.TableFile(table)}, nil
	})
	if saveErr != nil {
		return saveErr
	}
	if err != nil {
		return dberrors.Storage("failed to record table history", err).
			WithDetails(map[string]any{"database": db.name, "table": table})
	}
	return nil
}
