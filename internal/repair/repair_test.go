package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlsql/internal/apperr"
	"nlsql/internal/evaluator"
	"nlsql/internal/executor"
	"nlsql/internal/prompt"
	"nlsql/internal/schema"
	"nlsql/internal/validator"
)

func samplePacket() *schema.Packet {
	return &schema.Packet{
		Tables: []schema.PacketTable{
			{
				Table:      schema.Table{TableName: "orders"},
				Columns:    []schema.Column{{ColumnName: "id", DataType: "bigint"}, {ColumnName: "customer_id", DataType: "bigint"}},
				CompactDDL: "orders(id bigint PK, customer_id bigint FK->customers.id)",
			},
			{
				Table:      schema.Table{TableName: "customers"},
				Columns:    []schema.Column{{ColumnName: "id", DataType: "bigint"}},
				CompactDDL: "customers(id bigint PK)",
			},
		},
		Edges: []schema.ForeignKeyEdge{{FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"}},
	}
}

func TestClassifyFailFastIsNotRecoverable(t *testing.T) {
	ev := evaluator.Evaluated{
		ValidatorResult: validator.Result{
			Violations: []validator.Violation{{Rule: validator.RuleDangerousKeyword, Action: validator.ActionFailFast}},
		},
	}
	plan := Classify(ev, samplePacket())
	assert.False(t, plan.Recoverable)
}

func TestClassifyUnknownTableViolationBuildsDelta(t *testing.T) {
	ev := evaluator.Evaluated{
		ValidatorResult: validator.Result{
			Violations: []validator.Violation{{Rule: validator.RuleUnknownTable, Action: validator.ActionRewrite, Table: "shipments"}},
		},
	}
	plan := Classify(ev, samplePacket())
	require.True(t, plan.Recoverable)
	delta, ok := plan.Delta.(prompt.UnknownTableDelta)
	require.True(t, ok)
	assert.Equal(t, "shipments", delta.OffendingTable)
	assert.ElementsMatch(t, []string{"orders", "customers"}, delta.AllowedTables)
}

func TestClassifyUnknownColumnResolvesAliasAndBuildsWhitelist(t *testing.T) {
	ev := evaluator.Evaluated{
		Candidate:     evaluator.Candidate{SQL: "SELECT o.bogus FROM orders o LIMIT 10"},
		NormalizedSQL: "select o.bogus from orders o limit 10",
		ProbeResult: executor.ProbeResult{
			Err: apperr.New(apperr.KindUnknownColumn, `column "bogus" does not exist`),
		},
	}
	plan := Classify(ev, samplePacket())
	require.True(t, plan.Recoverable)
	delta, ok := plan.Delta.(prompt.ColumnWhitelistDelta)
	require.True(t, ok)
	assert.Equal(t, "orders", delta.Table.TableName)
	require.Len(t, delta.Neighbors, 1)
	assert.Equal(t, "customers", delta.Neighbors[0].Table.TableName)
}

func TestClassifyNonRecoverableProbeErrorStopsRepair(t *testing.T) {
	ev := evaluator.Evaluated{
		ProbeResult: executor.ProbeResult{
			Err: apperr.New(apperr.KindPermissionDenied, "permission denied for table orders"),
		},
	}
	plan := Classify(ev, samplePacket())
	assert.False(t, plan.Recoverable)
}

func TestClassifySyntaxErrorBuildsDialectDelta(t *testing.T) {
	ev := evaluator.Evaluated{
		NormalizedSQL: "select year(created_at) from orders limit 10",
		ProbeResult: executor.ProbeResult{
			Err: apperr.New(apperr.KindSyntaxError, "syntax error near year"),
		},
	}
	plan := Classify(ev, samplePacket())
	require.True(t, plan.Recoverable)
	delta, ok := plan.Delta.(prompt.DialectSyntaxDelta)
	require.True(t, ok)
	assert.Equal(t, "syntax_error", delta.ErrorClass)
}

func TestClassifyUnresolvableColumnAliasIsNotRecoverable(t *testing.T) {
	ev := evaluator.Evaluated{
		NormalizedSQL: "select bogus from a, b limit 10",
		ProbeResult: executor.ProbeResult{
			Err: apperr.New(apperr.KindUnknownColumn, `column "bogus" does not exist`),
		},
	}
	plan := Classify(ev, samplePacket())
	assert.False(t, plan.Recoverable)
}
