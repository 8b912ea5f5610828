package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	dberrors "github.com/maruel/idb/internal/errors"
	"github.com/maruel/idb/internal/query"
)

const (
	// catalogFile is the per-database catalog, relative to the database
	// directory.
	catalogFile = ".idb"
	// tableExt is appended to the table name to form its file name.
	tableExt = ".json"
)

// FileStore handles all file system operations.
// Each database is a directory under the root directory:
// - <db>/.idb: catalog of tables
// - <db>/<table>.json: one JSON document per table
//
// Names are not validated here; callers must check them first.
type FileStore struct {
	rootDir string
}

// NewFileStore initializes a FileStore with the given root directory.
func NewFileStore(rootDir string) (*FileStore, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	return &FileStore{rootDir: rootDir}, nil
}

// RootDir returns the root directory path.
func (fs *FileStore) RootDir() string {
	return fs.rootDir
}

// DatabaseDir returns the directory of a database.
func (fs *FileStore) DatabaseDir(db string) string {
	return filepath.Join(fs.rootDir, db)
}

// CatalogPath returns the path of a database catalog.
func (fs *FileStore) CatalogPath(db string) string {
	return filepath.Join(fs.DatabaseDir(db), catalogFile)
}

// TableFile returns the file name of a table, relative to its database
// directory.
func TableFile(table string) string {
	return table + tableExt
}

// TablePath returns the path of a table document.
func (fs *FileStore) TablePath(db, table string) string {
	return filepath.Join(fs.DatabaseDir(db), TableFile(table))
}

// DatabaseExists reports whether the database catalog exists.
func (fs *FileStore) DatabaseExists(db string) bool {
	return isFile(fs.CatalogPath(db))
}

// TableExists reports whether the table document exists.
func (fs *FileStore) TableExists(db, table string) bool {
	return isFile(fs.TablePath(db, table))
}

// CreateDatabase creates the database directory if missing.
func (fs *FileStore) CreateDatabase(db string) error {
	if err := os.MkdirAll(fs.DatabaseDir(db), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return dberrors.Storage("failed to create database directory", err).WithDetail("database", db)
	}
	return nil
}

// DeleteDatabase removes the database directory and everything in it.
func (fs *FileStore) DeleteDatabase(db string) error {
	if err := os.RemoveAll(fs.DatabaseDir(db)); err != nil {
		return dberrors.Storage("failed to delete database", err).WithDetail("database", db)
	}
	return nil
}

// LoadCatalog reads the database catalog.
func (fs *FileStore) LoadCatalog(db string) (*Catalog, error) {
	path := fs.CatalogPath(db)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from validated names
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dberrors.DatabaseNotFound(db).Wrap(err)
		}
		return nil, dberrors.Storage("failed to read catalog", err).WithDetail("path", path)
	}
	c := &Catalog{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, dberrors.Storage("failed to parse catalog", err).WithDetail("path", path)
	}
	if c.Tables == nil {
		c.Tables = map[string]*TableInfo{}
	}
	if err := c.Validate(); err != nil {
		return nil, dberrors.Storage("invalid catalog", err).WithDetail("path", path)
	}
	return c, nil
}

// SaveCatalog writes the database catalog.
func (fs *FileStore) SaveCatalog(db string, c *Catalog) error {
	if err := c.Validate(); err != nil {
		return dberrors.Internal("refusing to write invalid catalog").Wrap(err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if err := writeFileAtomic(fs.CatalogPath(db), append(data, '\n')); err != nil {
		return dberrors.Storage("failed to write catalog", err).WithDetail("database", db)
	}
	return nil
}

// LoadTable reads a table document.
//
// A missing file returns a TABLE_NOT_FOUND error. A file that does not parse
// or whose index disagrees with its rows returns a CORRUPT_TABLE error.
func (fs *FileStore) LoadTable(db, table string) (*query.State, error) {
	path := fs.TablePath(db, table)
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is built from validated names
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dberrors.TableNotFound(db, table).Wrap(err)
		}
		return nil, dberrors.Storage(fmt.Sprintf("failed to read table file %s", path), err)
	}
	return DecodeTable(path, data)
}

// DecodeTable parses and verifies a table document. path is only used in
// errors.
func DecodeTable(path string, data []byte) (*query.State, error) {
	s := &query.State{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, dberrors.CorruptTable(path, err)
	}
	if s.Index == nil {
		s.Index = map[query.RowID]int{}
	}
	if s.Rows == nil {
		s.Rows = []*query.Row{}
	}
	if err := s.Verify(); err != nil {
		return nil, dberrors.CorruptTable(path, err)
	}
	return s, nil
}

// SaveTable replaces the table document with s.
func (fs *FileStore) SaveTable(db, table string, s *query.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal table %s: %w", table, err)
	}
	if err := writeFileAtomic(fs.TablePath(db, table), append(data, '\n')); err != nil {
		return dberrors.Storage("failed to write table", err).
			WithDetails(map[string]any{"database": db, "table": table})
	}
	return nil
}

// DeleteTable removes the table document. A missing file is not an error.
func (fs *FileStore) DeleteTable(db, table string) error {
	if err := os.Remove(fs.TablePath(db, table)); err != nil && !os.IsNotExist(err) {
		return dberrors.Storage("failed to delete table", err).
			WithDetails(map[string]any{"database": db, "table": table})
	}
	return nil
}

// writeFileAtomic writes data to a temporary file in the same directory then
// renames it over path, so readers never observe a partial document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		// No-op once renamed.
		_ = os.Remove(tmp)
	}()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil { //nolint:gosec // G302: table files are not secret
		return err
	}
	return os.Rename(tmp, path)
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}
