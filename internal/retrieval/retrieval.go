// Package retrieval implements the C4 Schema Retriever (spec.md §4.4):
// selects a small, question-relevant schema.Packet out of potentially
// thousands of tables, via module routing, dual table/column vector
// retrieval, reciprocal-rank-fusion scoring, and bounded FK expansion.
package retrieval

import (
	"context"
	"sort"
	"strings"

	"nlsql/internal/apperr"
	"nlsql/internal/embedding"
	"nlsql/internal/logging"
	"nlsql/internal/schema"
)

// Config mirrors internal/config's RetrievalConfig, kept as its own type
// so this package has no dependency on internal/config (callers pass the
// fields they need, following the teacher's convention of small
// leaf-package configs rather than one God config struct threaded
// everywhere).
type Config struct {
	DefaultTopN       int
	MaxTopN           int
	MinModules        int
	MaxModules        int
	GenericDownweight float64
	HubBonus          float64
	HubDegreeFloor    int
	MaxFKExpansion    int
	MinScoreFloor     float64
	RRFK              int // reciprocal-rank-fusion constant, default 60
}

// Module describes one hand-curated module for routing (spec.md §4.4
// step 2): a keyword vocabulary and an optional centroid vector computed
// at indexing time.
type Module struct {
	Name     string
	Keywords []string
	Centroid []float32
}

// Retriever holds the process-wide, read-only state needed to answer
// retrieval requests: the schema index store, the embedding engines, the
// module vocabulary, and scoring configuration.
type Retriever struct {
	Store          *schema.Store
	QuestionEngine embedding.Engine
	Modules        []Module
	Config         Config
}

// NewRetriever constructs a Retriever. modules should be loaded once at
// boot (spec.md §3: "the retrieval index is process-wide read-only state
// loaded lazily on first use").
func NewRetriever(store *schema.Store, questionEngine embedding.Engine, modules []Module, cfg Config) *Retriever {
	if cfg.RRFK <= 0 {
		cfg.RRFK = 60
	}
	return &Retriever{Store: store, QuestionEngine: questionEngine, Modules: modules, Config: cfg}
}

// Retrieve runs the full C4 algorithm and returns a schema.Packet, or a
// classified *apperr.Error for retrieval_unavailable / no_relevant_schema
// (spec.md §4.4 failure modes).
func (r *Retriever) Retrieve(ctx context.Context, databaseID, question string, moduleHints []string) (*schema.Packet, error) {
	log := logging.For(logging.CategoryRetrieval)

	glossary, err := r.Store.Glossary(ctx, databaseID)
	if err != nil {
		log.Warnw("glossary load failed, continuing without expansion", "error", err)
		glossary = nil
	}
	expandedQuestion := schema.ExpandGlossary(question, glossary)

	queryVector, err := r.QuestionEngine.Embed(ctx, expandedQuestion)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalUnavailable, "embedding service unavailable", err)
	}

	modules := r.routeModules(expandedQuestion, queryVector, moduleHints)
	if len(modules) == 0 {
		return nil, apperr.New(apperr.KindNoRelevantSchema, "no module scored above routing threshold")
	}
	moduleSet := make(map[string]bool, len(modules))
	for _, m := range modules {
		moduleSet[m] = true
	}

	tableEmbeddings, err := r.Store.ListEmbeddings(ctx, databaseID, schema.EntityKindTable)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalUnavailable, "failed to load table embeddings", err)
	}
	columnEmbeddings, err := r.Store.ListEmbeddings(ctx, databaseID, schema.EntityKindColumn)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalUnavailable, "failed to load column embeddings", err)
	}
	allTables, err := r.Store.ListTables(ctx, databaseID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalUnavailable, "failed to load tables", err)
	}
	tableByName := make(map[string]schema.Table, len(allTables))
	for _, t := range allTables {
		tableByName[t.TableName] = t
	}

	scores := r.fuseScores(queryVector, tableEmbeddings, columnEmbeddings, tableByName, moduleSet)

	matchedCols := matchedColumnsByTable(queryVector, columnEmbeddings, 0.3)

	edges, err := r.Store.ListForeignKeys(ctx, databaseID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRetrievalUnavailable, "failed to load foreign keys", err)
	}
	scores = expandViaForeignKeys(scores, edges, tableByName, matchedCols, r.Config.MaxFKExpansion)

	selected := selectTopN(scores, tableByName, r.Config)
	if len(selected) == 0 {
		return nil, apperr.New(apperr.KindNoRelevantSchema, "no table scored above the minimum floor")
	}

	packet, err := r.buildPacket(ctx, databaseID, selected, edges)
	if err != nil {
		return nil, err
	}
	log.Infow("retrieval complete", "modules", modules, "tables", len(packet.Tables))
	return packet, nil
}

func (r *Retriever) buildPacket(ctx context.Context, databaseID string, selected []tableScore, edges []schema.ForeignKeyEdge) (*schema.Packet, error) {
	moduleSet := make(map[string]bool)
	packet := &schema.Packet{}

	for _, ts := range selected {
		cols, err := r.Store.ListColumnsForTable(ctx, databaseID, ts.table.SchemaName, ts.table.TableName)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindRetrievalUnavailable, "failed to load columns for "+ts.table.TableName, err)
		}
		packet.Tables = append(packet.Tables, schema.PacketTable{
			Table:      ts.table,
			Columns:    cols,
			CompactDDL: schema.RenderCompactDDL(ts.table, cols),
			Score:      ts.score,
		})
		if ts.table.ModuleTag != "" {
			moduleSet[ts.table.ModuleTag] = true
		}
	}
	for m := range moduleSet {
		packet.Modules = append(packet.Modules, m)
	}
	sort.Strings(packet.Modules)

	allowed := packet.AllowedTables()
	for _, e := range edges {
		if allowed[e.FromTable] && allowed[e.ToTable] {
			packet.Edges = append(packet.Edges, e)
		}
	}
	return packet, nil
}

// tableScore is the per-table fused score plus enough context to break
// ties deterministically (spec.md §4.4: "(score desc, module asc,
// table_name asc)").
type tableScore struct {
	table schema.Table
	score float64
}

func selectTopN(scores map[string]float64, tableByName map[string]schema.Table, cfg Config) []tableScore {
	floor := cfg.MinScoreFloor
	var ranked []tableScore
	for name, score := range scores {
		if score < floor {
			continue
		}
		t, ok := tableByName[name]
		if !ok {
			continue
		}
		ranked = append(ranked, tableScore{table: t, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].table.ModuleTag != ranked[j].table.ModuleTag {
			return ranked[i].table.ModuleTag < ranked[j].table.ModuleTag
		}
		return ranked[i].table.TableName < ranked[j].table.TableName
	})

	topN := cfg.DefaultTopN
	if topN <= 0 {
		topN = 8
	}
	if cfg.MaxTopN > 0 && topN > cfg.MaxTopN {
		topN = cfg.MaxTopN
	}
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
