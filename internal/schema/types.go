// Package schema defines the RAG schema index's data model (spec.md §3):
// the persisted introspection of the target database (SchemaTable,
// SchemaColumn, ForeignKeyEdge), its embeddings, and the ephemeral,
// per-request SchemaPacket the retriever hands to the prompt composer.
package schema

// Table describes one table known to the retriever, refreshed whenever
// its Fingerprint changes (spec.md §3 SchemaTable).
type Table struct {
	SchemaName  string
	TableName   string
	ModuleTag   string
	Fingerprint string
	Gloss       string
	FKDegree    int
	IsHub       bool
}

// QualifiedName returns "schema.table", or the bare table name when the
// schema is empty or "public".
func (t Table) QualifiedName() string {
	if t.SchemaName == "" || t.SchemaName == "public" {
		return t.TableName
	}
	return t.SchemaName + "." + t.TableName
}

// Column describes one column of one Table (spec.md §3 SchemaColumn).
// IsPrimaryKey and IsForeignKey are not mutually exclusive: a composite
// key column can be both.
type Column struct {
	SchemaName    string
	TableName     string
	ColumnName    string
	DataType      string
	IsNullable    bool
	Ordinal       int
	IsPrimaryKey  bool
	IsForeignKey  bool
	FKTargetTable string
	FKTargetCol   string
	IsGeneric     bool
	InferredGloss string
	Fingerprint   string
}

// genericPatterns is the closed set of patterns that mark a column as
// generic (spec.md §3: "derived from a closed set of patterns: id-like,
// timestamp, audit, status, name/description"). Checked against the
// lowercase column name as substrings.
var genericPatterns = []string{
	"id", "_id", "uuid",
	"created_at", "updated_at", "deleted_at", "timestamp",
	"created_by", "updated_by", "modified_by",
	"status", "state",
	"name", "description", "label",
}

// IsGenericColumnName reports whether a column name matches the closed set
// of generic patterns used to downweight retrieval scores.
func IsGenericColumnName(name string) bool {
	lower := toLower(name)
	for _, p := range genericPatterns {
		if contains(lower, p) {
			return true
		}
	}
	return false
}

// ForeignKeyEdge is a directed edge between two columns enforced by a
// foreign key constraint (spec.md §3 ForeignKeyEdge).
type ForeignKeyEdge struct {
	FromTable      string
	FromColumn     string
	ToTable        string
	ToColumn       string
	ConstraintName string
}

// EntityKind mirrors embedding.EntityKind for the persisted Embedding row
// (spec.md §3: entity_kind in {table, column}).
type EntityKind string

const (
	EntityKindTable  EntityKind = "table"
	EntityKindColumn EntityKind = "column"
)

// Embedding is a persisted vector for one table or column (spec.md §3).
// Uniqueness: (database_id, entity_kind, schema, table, column?).
type Embedding struct {
	DatabaseID        string
	EntityKind        EntityKind
	SchemaName        string
	TableName         string
	ColumnName        string // empty for table-level embeddings
	GlossText         string
	EmbedSourceText   string
	CompactSchemaText string // tables only
	Vector            []float32
	EmbeddingModelTag string
	Fingerprint       string
}

// Packet is the ephemeral, per-request bundle the retriever hands to the
// prompt composer (spec.md §3 SchemaPacket): the selected tables in
// deterministic order, the modules they span, and the FK edges among them.
type Packet struct {
	Tables  []PacketTable
	Modules []string
	Edges   []ForeignKeyEdge
}

// PacketTable is one table selected into a Packet, with its compact
// DDL-like rendering ready to paste into a prompt.
type PacketTable struct {
	Table      Table
	Columns    []Column
	CompactDDL string
	Score      float64
}

// AllowedTables returns the set of table names (unqualified) the packet
// permits referencing, used by the structural validator's UNKNOWN_TABLE
// rule (spec.md §4.2).
func (p Packet) AllowedTables() map[string]bool {
	allowed := make(map[string]bool, len(p.Tables))
	for _, t := range p.Tables {
		allowed[t.Table.TableName] = true
	}
	return allowed
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func contains(haystack, needle string) bool {
	if len(needle) == 0 {
		return true
	}
	if len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
