package embedding

import "nlsql/internal/logging"

// EntityKind identifies what is being embedded, matching the Embedding
// entity's entity_kind field (spec.md §3) plus the question itself.
type EntityKind string

const (
	EntityKindTable    EntityKind = "table"
	EntityKindColumn   EntityKind = "column"
	EntityKindQuestion EntityKind = "question"
)

// SelectTaskType picks the GenAI task type that best matches how an
// embedding will be used: schema rows are indexed once and searched many
// times (RETRIEVAL_DOCUMENT), while the incoming question is the search
// query (RETRIEVAL_QUERY).
func SelectTaskType(kind EntityKind) string {
	var taskType string
	switch kind {
	case EntityKindQuestion:
		taskType = "RETRIEVAL_QUERY"
	case EntityKindTable, EntityKindColumn:
		taskType = "RETRIEVAL_DOCUMENT"
	default:
		taskType = "SEMANTIC_SIMILARITY"
	}
	logging.For(logging.CategoryEmbedding).Debugw("selected task type", "kind", kind, "task_type", taskType)
	return taskType
}
