package storage

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/maruel/idb/internal/query"
)

// TableSchema returns the JSON schema of a table document.
func TableSchema() ([]byte, error) {
	return reflectSchema(&query.State{})
}

// CatalogSchema returns the JSON schema of a database catalog.
func CatalogSchema() ([]byte, error) {
	return reflectSchema(&Catalog{})
}

func reflectSchema(v any) ([]byte, error) {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	return json.MarshalIndent(r.Reflect(v), "", "  ")
}
