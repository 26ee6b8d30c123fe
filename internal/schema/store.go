package schema

import (
	"context"
	"database/sql"
	"fmt"

	"nlsql/internal/logging"
)

// Store persists the schema index tables created by RunMigrations. It is
// the single write path for refreshed introspection results and the
// single read path the retriever uses to build candidate pools.
type Store struct {
	db *sql.DB
}

// NewStore wraps a connection pool that has already run RunMigrations.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertTable records or refreshes one table's metadata row.
func (s *Store) UpsertTable(ctx context.Context, databaseID string, t Table) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schema_tables (database_id, schema_name, table_name, module_tag, fingerprint, gloss, fk_degree, is_hub, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (database_id, schema_name, table_name) DO UPDATE SET
			module_tag = EXCLUDED.module_tag,
			fingerprint = EXCLUDED.fingerprint,
			gloss = EXCLUDED.gloss,
			fk_degree = EXCLUDED.fk_degree,
			is_hub = EXCLUDED.is_hub,
			updated_at = now()`,
		databaseID, t.SchemaName, t.TableName, t.ModuleTag, t.Fingerprint, t.Gloss, t.FKDegree, t.IsHub)
	if err != nil {
		return fmt.Errorf("upsert table %s.%s: %w", t.SchemaName, t.TableName, err)
	}
	return nil
}

// UpsertColumn records or refreshes one column's metadata row.
func (s *Store) UpsertColumn(ctx context.Context, databaseID string, c Column) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schema_columns (database_id, schema_name, table_name, column_name, data_type, is_nullable, ordinal, is_primary_key, is_foreign_key, fk_target_table, fk_target_col, is_generic, inferred_gloss, fingerprint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (database_id, schema_name, table_name, column_name) DO UPDATE SET
			data_type = EXCLUDED.data_type,
			is_nullable = EXCLUDED.is_nullable,
			ordinal = EXCLUDED.ordinal,
			is_primary_key = EXCLUDED.is_primary_key,
			is_foreign_key = EXCLUDED.is_foreign_key,
			fk_target_table = EXCLUDED.fk_target_table,
			fk_target_col = EXCLUDED.fk_target_col,
			is_generic = EXCLUDED.is_generic,
			inferred_gloss = EXCLUDED.inferred_gloss,
			fingerprint = EXCLUDED.fingerprint`,
		databaseID, c.SchemaName, c.TableName, c.ColumnName, c.DataType, c.IsNullable, c.Ordinal,
		c.IsPrimaryKey, c.IsForeignKey, c.FKTargetTable, c.FKTargetCol, c.IsGeneric, c.InferredGloss, c.Fingerprint)
	if err != nil {
		return fmt.Errorf("upsert column %s.%s.%s: %w", c.SchemaName, c.TableName, c.ColumnName, err)
	}
	return nil
}

// UpsertForeignKey records or refreshes one FK edge.
func (s *Store) UpsertForeignKey(ctx context.Context, databaseID string, e ForeignKeyEdge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schema_fks (database_id, constraint_name, from_table, from_column, to_table, to_column)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (database_id, constraint_name) DO UPDATE SET
			from_table = EXCLUDED.from_table,
			from_column = EXCLUDED.from_column,
			to_table = EXCLUDED.to_table,
			to_column = EXCLUDED.to_column`,
		databaseID, e.ConstraintName, e.FromTable, e.FromColumn, e.ToTable, e.ToColumn)
	if err != nil {
		return fmt.Errorf("upsert foreign key %s: %w", e.ConstraintName, err)
	}
	return nil
}

// UpsertEmbedding records or refreshes one table/column embedding row.
func (s *Store) UpsertEmbedding(ctx context.Context, databaseID string, e Embedding) error {
	colName := e.ColumnName
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schema_embeddings (database_id, entity_kind, schema_name, table_name, column_name, gloss_text, embed_source_text, compact_schema_text, vector, embedding_model_tag, fingerprint, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (database_id, entity_kind, schema_name, table_name, column_name) DO UPDATE SET
			gloss_text = EXCLUDED.gloss_text,
			embed_source_text = EXCLUDED.embed_source_text,
			compact_schema_text = EXCLUDED.compact_schema_text,
			vector = EXCLUDED.vector,
			embedding_model_tag = EXCLUDED.embedding_model_tag,
			fingerprint = EXCLUDED.fingerprint,
			updated_at = now()`,
		databaseID, string(e.EntityKind), e.SchemaName, e.TableName, colName, e.GlossText, e.EmbedSourceText,
		e.CompactSchemaText, string(EncodeVectorJSON(e.Vector)), e.EmbeddingModelTag, e.Fingerprint)
	if err != nil {
		return fmt.Errorf("upsert embedding %s/%s.%s.%s: %w", e.EntityKind, e.SchemaName, e.TableName, colName, err)
	}
	return nil
}

// ListEmbeddings loads every embedding row of the given kind for a
// database, decoding the stored vector JSON back into []float32. Called
// once per retrieval request; the brute-force cosine scan in
// internal/retrieval runs over this slice in memory.
func (s *Store) ListEmbeddings(ctx context.Context, databaseID string, kind EntityKind) ([]Embedding, error) {
	log := logging.For(logging.CategoryRetrieval)

	rows, err := s.db.QueryContext(ctx, `
		SELECT schema_name, table_name, column_name, gloss_text, embed_source_text, compact_schema_text, vector, embedding_model_tag, fingerprint
		FROM schema_embeddings
		WHERE database_id = $1 AND entity_kind = $2`, databaseID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		var e Embedding
		var vectorJSON string
		e.EntityKind = kind
		if err := rows.Scan(&e.SchemaName, &e.TableName, &e.ColumnName, &e.GlossText, &e.EmbedSourceText, &e.CompactSchemaText, &vectorJSON, &e.EmbeddingModelTag, &e.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		vec, err := ParseVectorJSON([]byte(vectorJSON))
		if err != nil {
			return nil, fmt.Errorf("parse vector for %s.%s.%s: %w", e.SchemaName, e.TableName, e.ColumnName, err)
		}
		e.Vector = vec
		e.DatabaseID = databaseID
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	log.Debugw("loaded embeddings", "kind", kind, "count", len(out))
	return out, nil
}

// ListTables returns every indexed table for a database.
func (s *Store) ListTables(ctx context.Context, databaseID string) ([]Table, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT schema_name, table_name, module_tag, fingerprint, gloss, fk_degree, is_hub
		FROM schema_tables WHERE database_id = $1`, databaseID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []Table
	for rows.Next() {
		var t Table
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.ModuleTag, &t.Fingerprint, &t.Gloss, &t.FKDegree, &t.IsHub); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListColumnsForTable returns the indexed columns of one table.
func (s *Store) ListColumnsForTable(ctx context.Context, databaseID, schemaName, tableName string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable, ordinal, is_primary_key, is_foreign_key, fk_target_table, fk_target_col, is_generic, inferred_gloss, fingerprint
		FROM schema_columns
		WHERE database_id = $1 AND schema_name = $2 AND table_name = $3
		ORDER BY ordinal`, databaseID, schemaName, tableName)
	if err != nil {
		return nil, fmt.Errorf("list columns for %s.%s: %w", schemaName, tableName, err)
	}
	defer rows.Close()

	var out []Column
	for rows.Next() {
		c := Column{SchemaName: schemaName, TableName: tableName}
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &c.Ordinal, &c.IsPrimaryKey, &c.IsForeignKey, &c.FKTargetTable, &c.FKTargetCol, &c.IsGeneric, &c.InferredGloss, &c.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListForeignKeys returns every indexed FK edge for a database.
func (s *Store) ListForeignKeys(ctx context.Context, databaseID string) ([]ForeignKeyEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT constraint_name, from_table, from_column, to_table, to_column
		FROM schema_fks WHERE database_id = $1`, databaseID)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	defer rows.Close()

	var out []ForeignKeyEdge
	for rows.Next() {
		var e ForeignKeyEdge
		if err := rows.Scan(&e.ConstraintName, &e.FromTable, &e.FromColumn, &e.ToTable, &e.ToColumn); err != nil {
			return nil, fmt.Errorf("scan fk row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Glossary returns the abbreviation-to-expansion map the retriever uses
// to expand abbreviations in the question before embedding it (spec.md
// §4.4: glossary abbreviation expansion pre-embedding).
func (s *Store) Glossary(ctx context.Context, databaseID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT abbrev, expansion FROM glossary WHERE database_id = $1`, databaseID)
	if err != nil {
		return nil, fmt.Errorf("load glossary: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var abbrev, expansion string
		if err := rows.Scan(&abbrev, &expansion); err != nil {
			return nil, fmt.Errorf("scan glossary row: %w", err)
		}
		out[abbrev] = expansion
	}
	return out, rows.Err()
}

// UpsertGlossaryEntry adds or updates one abbreviation mapping.
func (s *Store) UpsertGlossaryEntry(ctx context.Context, databaseID, abbrev, expansion string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO glossary (database_id, abbrev, expansion) VALUES ($1, $2, $3)
		ON CONFLICT (database_id, abbrev) DO UPDATE SET expansion = EXCLUDED.expansion`,
		databaseID, abbrev, expansion)
	return err
}
