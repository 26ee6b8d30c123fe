package schema

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"nlsql/internal/logging"
)

// Introspector reads the live structure of a Postgres database via
// information_schema, the standard, driver-agnostic surface (spec.md §6:
// "the target database's information_schema is the source of truth for
// introspection"). It never touches the target database's rows — only
// catalog metadata — so it runs against the same read-only connection the
// executor uses.
type Introspector struct {
	db *sql.DB
}

// NewIntrospector wraps an existing connection pool.
func NewIntrospector(db *sql.DB) *Introspector {
	return &Introspector{db: db}
}

// ListTables returns every base table in the given schemas (or all
// non-system schemas if schemas is empty).
func (ins *Introspector) ListTables(ctx context.Context, schemas []string) ([]Table, error) {
	log := logging.For(logging.CategoryBoot)

	query := `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')
		  AND ($1::text[] IS NULL OR table_schema = ANY($1))
		ORDER BY table_schema, table_name`

	var schemaFilter interface{}
	if len(schemas) > 0 {
		schemaFilter = pqStringArray(schemas)
	}

	rows, err := ins.db.QueryContext(ctx, query, schemaFilter)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.SchemaName, &t.TableName); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	log.Infow("introspected tables", "count", len(tables))
	return tables, nil
}

// ListColumns returns every column of the given table, in ordinal order,
// with primary-key and foreign-key flags resolved from the constraint
// catalogs.
func (ins *Introspector) ListColumns(ctx context.Context, schemaName, tableName string) ([]Column, error) {
	query := `
		SELECT column_name, data_type, is_nullable, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := ins.db.QueryContext(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("list columns for %s.%s: %w", schemaName, tableName, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var nullable string
		if err := rows.Scan(&c.ColumnName, &c.DataType, &nullable, &c.Ordinal); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		c.SchemaName = schemaName
		c.TableName = tableName
		c.IsNullable = nullable == "YES"
		c.IsGeneric = IsGenericColumnName(c.ColumnName)
		c.Fingerprint = ColumnFingerprint(c)
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pkCols, err := ins.primaryKeyColumns(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	for i := range cols {
		cols[i].IsPrimaryKey = pkCols[cols[i].ColumnName]
	}

	fks, err := ins.ListForeignKeys(ctx, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	fkByCol := make(map[string]ForeignKeyEdge, len(fks))
	for _, fk := range fks {
		fkByCol[fk.FromColumn] = fk
	}
	for i := range cols {
		if fk, ok := fkByCol[cols[i].ColumnName]; ok {
			cols[i].IsForeignKey = true
			cols[i].FKTargetTable = fk.ToTable
			cols[i].FKTargetCol = fk.ToColumn
		}
	}

	return cols, nil
}

func (ins *Introspector) primaryKeyColumns(ctx context.Context, schemaName, tableName string) (map[string]bool, error) {
	query := `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1 AND tc.table_name = $2`

	rows, err := ins.db.QueryContext(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("primary keys for %s.%s: %w", schemaName, tableName, err)
	}
	defer rows.Close()

	pk := make(map[string]bool)
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, err
		}
		pk[col] = true
	}
	return pk, rows.Err()
}

// ListForeignKeys returns the foreign key edges originating from the
// given table (or from every table in schemaName when tableName is
// empty, used to build the module's FK graph for expansion).
func (ins *Introspector) ListForeignKeys(ctx context.Context, schemaName, tableName string) ([]ForeignKeyEdge, error) {
	query := `
		SELECT
			tc.constraint_name,
			kcu.table_name   AS from_table,
			kcu.column_name  AS from_column,
			ccu.table_name   AS to_table,
			ccu.column_name  AS to_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND ($2 = '' OR kcu.table_name = $2)`

	rows, err := ins.db.QueryContext(ctx, query, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("foreign keys for %s.%s: %w", schemaName, tableName, err)
	}
	defer rows.Close()

	var edges []ForeignKeyEdge
	for rows.Next() {
		var e ForeignKeyEdge
		if err := rows.Scan(&e.ConstraintName, &e.FromTable, &e.FromColumn, &e.ToTable, &e.ToColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key row: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// pqStringArray renders a Go string slice as a Postgres text[] literal
// recognized by lib/pq's array parameter support.
func pqStringArray(ss []string) interface{} {
	return stringArray(ss)
}

// stringArray implements driver.Valuer for a Postgres text[] literal,
// avoiding a hard dependency on lib/pq's pq.Array helper at this layer so
// Introspector stays testable against any database/sql-compatible mock.
type stringArray []string

func (a stringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	out := "{"
	for i, s := range a {
		if i > 0 {
			out += ","
		}
		out += `"` + s + `"`
	}
	out += "}"
	return out, nil
}
