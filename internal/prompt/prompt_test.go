package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"nlsql/internal/schema"
)

func samplePacket() *schema.Packet {
	return &schema.Packet{
		Tables: []schema.PacketTable{
			{Table: schema.Table{TableName: "orders"}, CompactDDL: "orders(id integer PK)"},
		},
		Edges: []schema.ForeignKeyEdge{
			{FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"},
		},
	}
}

func TestBaseRenderIncludesSchemaAndQuestion(t *testing.T) {
	b := Base{Dialect: "postgres", Question: "how many orders?", Packet: samplePacket()}
	rendered := b.Render()
	assert.Contains(t, rendered, "orders(id integer PK)")
	assert.Contains(t, rendered, "how many orders?")
	assert.Contains(t, rendered, "postgres")
	assert.Contains(t, rendered, "customer_id -> customers.id")
}

func TestComposeAppendsDeltasInOrder(t *testing.T) {
	b := Base{Dialect: "postgres", Question: "q", Packet: samplePacket()}
	composed := Compose(b,
		UnknownTableDelta{OffendingTable: "secret", AllowedTables: []string{"orders"}},
		MultiCandidateDelta{K: 3},
	)
	baseIdx := indexOf(composed, "Question: q")
	deltaIdx := indexOf(composed, "does not exist")
	multiIdx := indexOf(composed, "Produce 3 independent")
	assert.True(t, baseIdx < deltaIdx)
	assert.True(t, deltaIdx < multiIdx)
}

func TestComposeNeverMutatesBase(t *testing.T) {
	b := Base{Dialect: "postgres", Question: "q", Packet: samplePacket()}
	before := b.Render()
	_ = Compose(b, MultiCandidateDelta{K: 2})
	after := b.Render()
	assert.Equal(t, before, after)
}

func TestMultiCandidateDeltaNoOpForSingleCandidate(t *testing.T) {
	assert.Equal(t, "", MultiCandidateDelta{K: 1}.Render())
	assert.Equal(t, "", MultiCandidateDelta{K: 0}.Render())
}

func TestColumnWhitelistDeltaEmptyWithNoColumns(t *testing.T) {
	assert.Equal(t, "", ColumnWhitelistDelta{}.Render())
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
