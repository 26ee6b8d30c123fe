package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsGenericColumnName(t *testing.T) {
	assert.True(t, IsGenericColumnName("id"))
	assert.True(t, IsGenericColumnName("customer_id"))
	assert.True(t, IsGenericColumnName("created_at"))
	assert.True(t, IsGenericColumnName("status"))
	assert.False(t, IsGenericColumnName("total_amount"))
	assert.False(t, IsGenericColumnName("sku"))
}

func TestQualifiedName(t *testing.T) {
	assert.Equal(t, "orders", Table{SchemaName: "public", TableName: "orders"}.QualifiedName())
	assert.Equal(t, "billing.orders", Table{SchemaName: "billing", TableName: "orders"}.QualifiedName())
	assert.Equal(t, "orders", Table{TableName: "orders"}.QualifiedName())
}

func TestFingerprintStable(t *testing.T) {
	cols := []Column{
		{ColumnName: "id", DataType: "integer", IsNullable: false, Ordinal: 1},
		{ColumnName: "name", DataType: "text", IsNullable: true, Ordinal: 2},
	}
	fp1 := Fingerprint(cols)
	fp2 := Fingerprint(cols)
	assert.Equal(t, fp1, fp2)

	changed := []Column{
		{ColumnName: "id", DataType: "integer", IsNullable: false, Ordinal: 1},
		{ColumnName: "name", DataType: "varchar", IsNullable: true, Ordinal: 2},
	}
	assert.NotEqual(t, fp1, Fingerprint(changed))
}

func TestVectorJSONRoundTrip(t *testing.T) {
	v := []float32{0.1, -0.25, 3, 0}
	encoded := EncodeVectorJSON(v)
	decoded, err := ParseVectorJSON(encoded)
	assert.NoError(t, err)
	if assert.Len(t, decoded, len(v)) {
		for i := range v {
			assert.InDelta(t, v[i], decoded[i], 1e-6)
		}
	}
}

func TestParseVectorJSONEmpty(t *testing.T) {
	decoded, err := ParseVectorJSON([]byte(""))
	assert.NoError(t, err)
	assert.Empty(t, decoded)

	decoded, err = ParseVectorJSON([]byte("[]"))
	assert.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestParseVectorJSONRejectsMalformed(t *testing.T) {
	_, err := ParseVectorJSON([]byte("0.1,0.2"))
	assert.Error(t, err)
}

func TestExpandGlossaryAppendsKnownAbbreviations(t *testing.T) {
	glossary := map[string]string{"cust": "customer", "qty": "quantity"}
	out := ExpandGlossary("show cust orders by qty", glossary)
	assert.Contains(t, out, "customer")
	assert.Contains(t, out, "quantity")
}

func TestExpandGlossaryNoOpWithoutMatches(t *testing.T) {
	glossary := map[string]string{"cust": "customer"}
	out := ExpandGlossary("show total revenue", glossary)
	assert.Equal(t, "show total revenue", out)
}

func TestRenderCompactDDL(t *testing.T) {
	tbl := Table{SchemaName: "public", TableName: "orders"}
	cols := []Column{
		{ColumnName: "id", DataType: "integer", IsPrimaryKey: true},
		{ColumnName: "customer_id", DataType: "integer", IsForeignKey: true, FKTargetTable: "customers"},
	}
	ddl := RenderCompactDDL(tbl, cols)
	assert.Contains(t, ddl, "orders(")
	assert.Contains(t, ddl, "id integer PK")
	assert.Contains(t, ddl, "customer_id integer FK->customers")
}

func TestAllowedTables(t *testing.T) {
	p := Packet{Tables: []PacketTable{
		{Table: Table{TableName: "orders"}},
		{Table: Table{TableName: "customers"}},
	}}
	allowed := p.AllowedTables()
	assert.True(t, allowed["orders"])
	assert.True(t, allowed["customers"])
	assert.False(t, allowed["products"])
}
