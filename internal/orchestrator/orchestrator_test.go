package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlsql/internal/executor"
	"nlsql/internal/generation"
	"nlsql/internal/retrieval"
	"nlsql/internal/schema"
)

type fakeEngine struct{ vec []float32 }

func (f fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) { return f.vec, nil }

func (f fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f fakeEngine) Dimensions() int { return len(f.vec) }
func (f fakeEngine) Name() string    { return "fake" }

func newTestRetriever(t *testing.T) (*retrieval.Retriever, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := schema.NewStore(db)

	mock.ExpectQuery("glossary").WillReturnRows(sqlmock.NewRows([]string{"abbrev", "expansion"}))
	mock.ExpectQuery("schema_embeddings").WillReturnRows(
		sqlmock.NewRows([]string{"schema_name", "table_name", "column_name", "gloss_text", "embed_source_text", "compact_schema_text", "vector", "embedding_model_tag", "fingerprint"}).
			AddRow("public", "orders", "", "orders", "orders", "orders(...)", []byte(`[0.1,0.2]`), "fake", "fp1"))
	mock.ExpectQuery("schema_embeddings").WillReturnRows(
		sqlmock.NewRows([]string{"schema_name", "table_name", "column_name", "gloss_text", "embed_source_text", "compact_schema_text", "vector", "embedding_model_tag", "fingerprint"}).
			AddRow("public", "orders", "id", "", "orders.id", "", []byte(`[0.1,0.2]`), "fake", "fpc1"))
	mock.ExpectQuery("schema_tables").WillReturnRows(
		sqlmock.NewRows([]string{"schema_name", "table_name", "module_tag", "fingerprint", "gloss", "fk_degree", "is_hub"}).
			AddRow("public", "orders", "sales", "fp1", "orders", 1, false))
	mock.ExpectQuery("schema_fks").WillReturnRows(
		sqlmock.NewRows([]string{"constraint_name", "from_table", "from_column", "to_table", "to_column"}))
	mock.ExpectQuery("schema_columns").WillReturnRows(
		sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "ordinal", "is_primary_key", "is_foreign_key", "fk_target_table", "fk_target_col", "is_generic", "inferred_gloss", "fingerprint"}).
			AddRow("id", "bigint", false, 1, true, false, "", "", true, "", "fpc1"))

	r := retrieval.NewRetriever(store, fakeEngine{vec: []float32{0.1, 0.2}}, nil, retrieval.Config{DefaultTopN: 5, MaxTopN: 5, MinModules: 1, MaxModules: 3})
	return r, mock
}

func newTestExecutor(t *testing.T) (*executor.Executor, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return executor.New(db, executor.Config{ProbeTimeout: 50 * time.Millisecond, ExecTimeout: 200 * time.Millisecond}), mock
}

func newTestGeneration(t *testing.T, sqlText string) *generation.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"sql_generated": sqlText})
	}))
	t.Cleanup(server.Close)
	return generation.NewClient(server.URL, 2*time.Second)
}

func TestRunExecutesWinningCandidate(t *testing.T) {
	retriever, _ := newTestRetriever(t)
	ex, execMock := newTestExecutor(t)
	execMock.ExpectExec("SET statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	execMock.ExpectQuery("EXPLAIN").WillReturnRows(sqlmock.NewRows([]string{"QUERY PLAN"}).AddRow(`[{"Plan":{}}]`))
	execMock.ExpectBegin()
	execMock.ExpectExec("SET statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	execMock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	execMock.ExpectCommit()

	gen := newTestGeneration(t, "SELECT id FROM orders LIMIT 10")
	orc := New(retriever, gen, ex, Config{})

	result := orc.Run(context.Background(), Request{QueryID: "q1", DatabaseID: "db1", Question: "list orders", ModuleHints: []string{"sales"}})
	require.Nil(t, result.Error)
	assert.Equal(t, 1, result.RowCount)
	assert.Contains(t, result.TablesReferenced, "orders")
	assert.Greater(t, result.Confidence, 0.0)
}

func TestRunReturnsClassifiedErrorWhenRetrievalFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := schema.NewStore(db)
	mock.ExpectQuery("glossary").WillReturnError(assert.AnError)

	retriever := retrieval.NewRetriever(store, fakeEngine{vec: []float32{0.1}}, nil, retrieval.Config{})
	ex, _ := newTestExecutor(t)
	gen := newTestGeneration(t, "SELECT 1")
	orc := New(retriever, gen, ex, Config{})

	result := orc.Run(context.Background(), Request{QueryID: "q2", DatabaseID: "db1", Question: "anything"})
	require.NotNil(t, result.Error)
	assert.Nil(t, result.Rows)
}
