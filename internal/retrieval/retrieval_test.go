package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"nlsql/internal/schema"
)

func TestKeywordOverlapScore(t *testing.T) {
	score := keywordOverlapScore("show total orders by customer", []string{"order", "customer", "invoice"})
	assert.InDelta(t, 1.0/3.0, score, 1e-9) // whole-word match required; "orders" != "order", only "customer" counts

	score2 := keywordOverlapScore("show total order by customer", []string{"order", "customer", "invoice"})
	assert.InDelta(t, 2.0/3.0, score2, 1e-9)
}

func TestRouteModulesRespectsHints(t *testing.T) {
	r := &Retriever{
		Modules: []Module{
			{Name: "sales", Keywords: []string{"order", "customer"}},
			{Name: "inventory", Keywords: []string{"sku", "warehouse"}},
		},
		Config: Config{MinModules: 1, MaxModules: 2},
	}
	modules := r.routeModules("order totals", nil, []string{"inventory"})
	assert.Contains(t, modules, "inventory")
}

func TestRouteModulesFallsBackToMinimumOne(t *testing.T) {
	r := &Retriever{
		Modules: []Module{
			{Name: "sales", Keywords: []string{"zzz_no_match"}},
		},
		Config: Config{MinModules: 1, MaxModules: 3},
	}
	modules := r.routeModules("totally unrelated text", nil, nil)
	assert.Len(t, modules, 1)
}

func TestRankByCosinePrefersHigherSimilarity(t *testing.T) {
	query := []float32{1, 0}
	embeddings := []schema.Embedding{
		{TableName: "orders", Vector: []float32{1, 0}},
		{TableName: "customers", Vector: []float32{0, 1}},
	}
	ranks := rankByCosine(query, embeddings)
	assert.Equal(t, 1, ranks["orders"])
	assert.Equal(t, 2, ranks["customers"])
}

func TestRankColumnsAggregatedDownweightsGeneric(t *testing.T) {
	query := []float32{1, 0}
	embeddings := []schema.Embedding{
		{TableName: "orders", ColumnName: "id", Vector: []float32{1, 0}},     // generic, downweighted
		{TableName: "customers", ColumnName: "email", Vector: []float32{1, 0}}, // not generic
	}
	ranks := rankColumnsAggregatedByTable(query, embeddings, 0.5)
	assert.Equal(t, 1, ranks["customers"])
	assert.Equal(t, 2, ranks["orders"])
}

func TestExpandViaForeignKeysAddsMatchedNeighborOnly(t *testing.T) {
	scores := map[string]float64{"orders": 0.9}
	edges := []schema.ForeignKeyEdge{
		{FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"},
		{FromTable: "orders", FromColumn: "warehouse_id", ToTable: "warehouses", ToColumn: "id"},
	}
	tableByName := map[string]schema.Table{
		"orders": {TableName: "orders"}, "customers": {TableName: "customers"}, "warehouses": {TableName: "warehouses"},
	}
	matched := map[string]bool{"customers": true}

	out := expandViaForeignKeys(scores, edges, tableByName, matched, 3)
	_, hasCustomers := out["customers"]
	_, hasWarehouses := out["warehouses"]
	assert.True(t, hasCustomers)
	assert.False(t, hasWarehouses)
}

func TestExpandViaForeignKeysCapsAdditions(t *testing.T) {
	scores := map[string]float64{"orders": 0.9}
	edges := []schema.ForeignKeyEdge{
		{FromTable: "orders", ToTable: "a"},
		{FromTable: "orders", ToTable: "b"},
		{FromTable: "orders", ToTable: "c"},
		{FromTable: "orders", ToTable: "d"},
	}
	tableByName := map[string]schema.Table{
		"orders": {TableName: "orders"}, "a": {TableName: "a"}, "b": {TableName: "b"},
		"c": {TableName: "c"}, "d": {TableName: "d"},
	}
	matched := map[string]bool{"a": true, "b": true, "c": true, "d": true}

	out := expandViaForeignKeys(scores, edges, tableByName, matched, 2)
	added := 0
	for name := range out {
		if name != "orders" {
			added++
		}
	}
	assert.Equal(t, 2, added)
}

func TestSelectTopNAppliesDeterministicTieBreak(t *testing.T) {
	scores := map[string]float64{"b_table": 0.5, "a_table": 0.5}
	tableByName := map[string]schema.Table{
		"b_table": {TableName: "b_table", ModuleTag: "sales"},
		"a_table": {TableName: "a_table", ModuleTag: "sales"},
	}
	cfg := Config{DefaultTopN: 8, MinScoreFloor: 0}
	ranked := selectTopN(scores, tableByName, cfg)
	if assert.Len(t, ranked, 2) {
		assert.Equal(t, "a_table", ranked[0].table.TableName)
		assert.Equal(t, "b_table", ranked[1].table.TableName)
	}
}

func TestSelectTopNFiltersBelowFloor(t *testing.T) {
	scores := map[string]float64{"low": 0.01, "high": 0.9}
	tableByName := map[string]schema.Table{
		"low": {TableName: "low"}, "high": {TableName: "high"},
	}
	ranked := selectTopN(scores, tableByName, Config{DefaultTopN: 8, MinScoreFloor: 0.15})
	assert.Len(t, ranked, 1)
	assert.Equal(t, "high", ranked[0].table.TableName)
}
