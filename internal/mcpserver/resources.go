package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"nlsql/internal/schema"
)

// ResourceReader serves the two schema:// resources (spec.md §6) by
// reading the same introspection tables internal/retrieval reads,
// reusing schema.RenderCompactDDL so the prompt's schema context and the
// externally exposed resource share one rendering path (SPEC_FULL.md
// §4.10 EXPANSION).
type ResourceReader struct {
	Store *schema.Store
}

// NewResourceReader wraps a schema.Store for resource serving.
func NewResourceReader(store *schema.Store) *ResourceReader {
	return &ResourceReader{Store: store}
}

const (
	tablesURI       = "schema://tables"
	tableSchemaPrefix = "schema://tables/"
	tableSchemaSuffix = "/schema"
)

// Read resolves one schema:// URI into its JSON text body and MIME type.
func (r *ResourceReader) Read(ctx context.Context, databaseID, uri string) (text string, mimeType string, err error) {
	switch {
	case uri == tablesURI:
		return r.readTableList(ctx, databaseID)
	case strings.HasPrefix(uri, tableSchemaPrefix) && strings.HasSuffix(uri, tableSchemaSuffix):
		name := strings.TrimSuffix(strings.TrimPrefix(uri, tableSchemaPrefix), tableSchemaSuffix)
		return r.readTableSchema(ctx, databaseID, name)
	default:
		return "", "", fmt.Errorf("unknown resource uri: %s", uri)
	}
}

type tableListEntry struct {
	Name      string `json:"name"`
	Module    string `json:"module"`
	Gloss     string `json:"gloss,omitempty"`
	IsHub     bool   `json:"is_hub"`
	FKDegree  int    `json:"fk_degree"`
}

func (r *ResourceReader) readTableList(ctx context.Context, databaseID string) (string, string, error) {
	tables, err := r.Store.ListTables(ctx, databaseID)
	if err != nil {
		return "", "", fmt.Errorf("list tables: %w", err)
	}
	entries := make([]tableListEntry, 0, len(tables))
	for _, t := range tables {
		entries = append(entries, tableListEntry{
			Name: t.QualifiedName(), Module: t.ModuleTag, Gloss: t.Gloss, IsHub: t.IsHub, FKDegree: t.FKDegree,
		})
	}
	body, err := json.Marshal(map[string]interface{}{"tables": entries})
	if err != nil {
		return "", "", err
	}
	return string(body), "application/json", nil
}

type tableSchemaBody struct {
	Name       string `json:"name"`
	CompactDDL string `json:"compact_ddl"`
}

func (r *ResourceReader) readTableSchema(ctx context.Context, databaseID, name string) (string, string, error) {
	tables, err := r.Store.ListTables(ctx, databaseID)
	if err != nil {
		return "", "", fmt.Errorf("list tables: %w", err)
	}
	var found *schema.Table
	for i := range tables {
		if strings.EqualFold(tables[i].TableName, name) {
			found = &tables[i]
			break
		}
	}
	if found == nil {
		return "", "", fmt.Errorf("unknown table: %s", name)
	}
	cols, err := r.Store.ListColumnsForTable(ctx, databaseID, found.SchemaName, found.TableName)
	if err != nil {
		return "", "", fmt.Errorf("list columns for %s: %w", name, err)
	}
	body, err := json.Marshal(tableSchemaBody{
		Name:       found.QualifiedName(),
		CompactDDL: schema.RenderCompactDDL(*found, cols),
	})
	if err != nil {
		return "", "", err
	}
	return string(body), "application/json", nil
}
