// Defines the per-database catalog of tables.

package storage

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/maruel/ksid"

	"github.com/maruel/idb/internal/validation"
)

// catalogVersion is the current version of the catalog format.
const catalogVersion = "1.0"

// Catalog lists the tables of a database. It is stored as <db>/.idb.
type Catalog struct {
	Version string                `json:"version" jsonschema:"description=Catalog format version"`
	Tables  map[string]*TableInfo `json:"tables" jsonschema:"description=Tables by name"`
}

// TableInfo is the catalog entry of a table.
type TableInfo struct {
	ID      ksid.ID   `json:"id" jsonschema:"type=string,description=Stable table identifier"`
	Created time.Time `json:"created" jsonschema:"description=Creation time"`
}

// NewCatalog returns an empty catalog at the current version.
func NewCatalog() *Catalog {
	return &Catalog{
		Version: catalogVersion,
		Tables:  map[string]*TableInfo{},
	}
}

// Validate checks that the catalog is well-formed.
func (c *Catalog) Validate() error {
	if c.Version == "" {
		return errors.New("catalog version is required")
	}
	for name, info := range c.Tables {
		if !validation.ValidFilename(name) {
			return fmt.Errorf("table %q: invalid name", name)
		}
		if info == nil {
			return fmt.Errorf("table %q: entry is null", name)
		}
		if info.ID.IsZero() {
			return fmt.Errorf("table %q: id is required", name)
		}
	}
	return nil
}

// Has reports whether the table is registered.
func (c *Catalog) Has(name string) bool {
	_, ok := c.Tables[name]
	return ok
}

// Add registers a table. It returns the existing entry and false when the
// table is already registered.
func (c *Catalog) Add(name string) (*TableInfo, bool) {
	if info, ok := c.Tables[name]; ok {
		return info, false
	}
	if c.Tables == nil {
		c.Tables = map[string]*TableInfo{}
	}
	info := &TableInfo{ID: ksid.NewID(), Created: time.Now().UTC()}
	c.Tables[name] = info
	return info, true
}

// Remove unregisters a table and reports whether it was registered.
func (c *Catalog) Remove(name string) bool {
	if _, ok := c.Tables[name]; !ok {
		return false
	}
	delete(c.Tables, name)
	return true
}

// Names returns the sorted table names.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
