package schema

import (
	"database/sql"
	"fmt"

	"nlsql/internal/logging"
)

// CurrentSchemaVersion is the highest migration version this binary knows
// how to apply. Bumped whenever migrations is appended to.
const CurrentSchemaVersion = 1

// migration is one forward-only schema change, applied inside its own
// transaction and recorded in schema_migrations so RunMigrations is
// idempotent across restarts (grounded on the teacher's versioned
// migration runner, internal/store/migrations.go, adapted from SQLite's
// column-by-column ALTER TABLE style to Postgres CREATE TABLE IF NOT
// EXISTS statements since this index starts from nothing rather than
// upgrading a pre-sqlite-vec database).
type migration struct {
	version     int
	description string
	statements  []string
}

// migrations lists, in order, every table this package owns (spec.md §6
// persisted state: schema_tables, schema_columns, schema_fks,
// module_mapping, glossary, schema_embeddings, generic_columns). The
// vector column is stored as JSON-encoded float32 arrays rather than a
// native pgvector column: spec.md's Non-goals exclude requiring a vector
// extension, so similarity search falls back to the brute-force cosine
// scan in retrieval, the same tradeoff the teacher's vector_store.go
// makes for sqlite-vec-less installs.
var migrations = []migration{
	{
		version:     1,
		description: "create schema index tables",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS schema_tables (
				database_id   TEXT NOT NULL,
				schema_name   TEXT NOT NULL,
				table_name    TEXT NOT NULL,
				module_tag    TEXT NOT NULL DEFAULT '',
				fingerprint   TEXT NOT NULL,
				gloss         TEXT NOT NULL DEFAULT '',
				fk_degree     INTEGER NOT NULL DEFAULT 0,
				is_hub        BOOLEAN NOT NULL DEFAULT FALSE,
				updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (database_id, schema_name, table_name)
			)`,
			`CREATE TABLE IF NOT EXISTS schema_columns (
				database_id     TEXT NOT NULL,
				schema_name     TEXT NOT NULL,
				table_name      TEXT NOT NULL,
				column_name     TEXT NOT NULL,
				data_type       TEXT NOT NULL,
				is_nullable     BOOLEAN NOT NULL DEFAULT TRUE,
				ordinal         INTEGER NOT NULL,
				is_primary_key  BOOLEAN NOT NULL DEFAULT FALSE,
				is_foreign_key  BOOLEAN NOT NULL DEFAULT FALSE,
				fk_target_table TEXT NOT NULL DEFAULT '',
				fk_target_col   TEXT NOT NULL DEFAULT '',
				is_generic      BOOLEAN NOT NULL DEFAULT FALSE,
				inferred_gloss  TEXT NOT NULL DEFAULT '',
				fingerprint     TEXT NOT NULL,
				PRIMARY KEY (database_id, schema_name, table_name, column_name)
			)`,
			`CREATE TABLE IF NOT EXISTS schema_fks (
				database_id     TEXT NOT NULL,
				constraint_name TEXT NOT NULL,
				from_table      TEXT NOT NULL,
				from_column     TEXT NOT NULL,
				to_table        TEXT NOT NULL,
				to_column       TEXT NOT NULL,
				PRIMARY KEY (database_id, constraint_name)
			)`,
			`CREATE TABLE IF NOT EXISTS module_mapping (
				database_id TEXT NOT NULL,
				table_name  TEXT NOT NULL,
				module_tag  TEXT NOT NULL,
				PRIMARY KEY (database_id, table_name)
			)`,
			`CREATE TABLE IF NOT EXISTS glossary (
				database_id TEXT NOT NULL,
				abbrev      TEXT NOT NULL,
				expansion   TEXT NOT NULL,
				PRIMARY KEY (database_id, abbrev)
			)`,
			`CREATE TABLE IF NOT EXISTS generic_columns (
				database_id TEXT NOT NULL,
				pattern     TEXT NOT NULL,
				PRIMARY KEY (database_id, pattern)
			)`,
			`CREATE TABLE IF NOT EXISTS schema_embeddings (
				database_id         TEXT NOT NULL,
				entity_kind         TEXT NOT NULL,
				schema_name         TEXT NOT NULL,
				table_name          TEXT NOT NULL,
				column_name         TEXT NOT NULL DEFAULT '',
				gloss_text          TEXT NOT NULL DEFAULT '',
				embed_source_text   TEXT NOT NULL,
				compact_schema_text TEXT NOT NULL DEFAULT '',
				vector              TEXT NOT NULL,
				embedding_model_tag TEXT NOT NULL,
				fingerprint         TEXT NOT NULL,
				updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (database_id, entity_kind, schema_name, table_name, column_name)
			)`,
		},
	},
}

// RunMigrations applies every migration not yet recorded in
// schema_migrations, in version order, each inside its own transaction.
func RunMigrations(db *sql.DB) error {
	log := logging.For(logging.CategoryBoot)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan schema_migrations row: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	ran := 0
	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		log.Infow("applying migration", "version", m.version, "description", m.description)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d: begin failed: %w", m.version, err)
		}
		failed := false
		for _, stmt := range m.statements {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
			}
		}
		if !failed {
			if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d: recording version failed: %w", m.version, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit failed: %w", m.version, err)
		}
		ran++
	}

	log.Infow("schema migrations complete", "applied", ran, "total", len(migrations))
	return nil
}

// SchemaVersion returns the highest migration version recorded as applied,
// or 0 if schema_migrations doesn't exist yet or is empty.
func SchemaVersion(db *sql.DB) int {
	var version sql.NullInt64
	err := db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil || !version.Valid {
		return 0
	}
	return int(version.Int64)
}
