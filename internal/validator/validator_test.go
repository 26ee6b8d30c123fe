package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func defaultOpts(allowed ...string) Options {
	set := make(map[string]bool)
	for _, a := range allowed {
		set[a] = true
	}
	return Options{AllowedTables: set, DefaultMaxRows: 100, CeilingRows: 1000}
}

func TestValidateAcceptsPlainSelect(t *testing.T) {
	r := Validate("SELECT id FROM orders LIMIT 10", defaultOpts("orders"))
	assert.False(t, r.HasFailFast())
}

func TestValidateRejectsNonSelect(t *testing.T) {
	r := Validate("INSERT INTO orders (id) VALUES (1)", defaultOpts("orders"))
	assert.True(t, r.HasFailFast())
	assert.Equal(t, RuleNoSelect, r.Violations[0].Rule)
}

func TestValidateRejectsDangerousKeywordMidStatement(t *testing.T) {
	r := Validate("SELECT * INTO shadow_orders FROM orders", defaultOpts("orders", "shadow_orders"))
	assert.True(t, r.HasFailFast())
}

func TestValidateRejectsUpdateDeleteDrop(t *testing.T) {
	for _, sql := range []string{
		"UPDATE orders SET total = 0",
		"DELETE FROM orders",
		"DROP TABLE orders",
	} {
		r := Validate(sql, defaultOpts("orders"))
		assert.True(t, r.HasFailFast(), "expected fail-fast for %q", sql)
	}
}

func TestValidateRejectsStatementNotStartingWithSelect(t *testing.T) {
	r := Validate("EXPLAIN SELECT 1", defaultOpts())
	assert.True(t, r.HasFailFast())
	assert.Equal(t, RuleNoSelect, r.Violations[0].Rule)
}

func TestValidateAcceptsWithThenSelect(t *testing.T) {
	r := Validate("WITH x AS (SELECT 1) SELECT * FROM x LIMIT 10", defaultOpts("x"))
	assert.False(t, r.HasFailFast())
}

func TestValidateRejectsMultipleStatements(t *testing.T) {
	r := Validate("SELECT 1; SELECT 2", defaultOpts())
	assert.True(t, r.HasFailFast())
	assert.Equal(t, RuleMultipleStatements, r.Violations[0].Rule)
}

func TestValidateAllowsSemicolonInsideLiteral(t *testing.T) {
	r := Validate("SELECT 'a;b' FROM orders LIMIT 10", defaultOpts("orders"))
	assert.False(t, r.HasFailFast())
}

func TestValidateRejectsUnterminatedLiteral(t *testing.T) {
	r := Validate("SELECT 'abc FROM orders", defaultOpts("orders"))
	assert.True(t, r.HasFailFast())
	assert.Equal(t, RuleUnterminatedLiteral, r.Violations[0].Rule)
}

func TestValidateRejectsDangerousFunction(t *testing.T) {
	r := Validate("SELECT pg_sleep(5) FROM orders", defaultOpts("orders"))
	assert.True(t, r.HasFailFast())
	assert.Equal(t, RuleDangerousFunction, r.Violations[0].Rule)
}

func TestValidateFlagsUnknownTableAsRewrite(t *testing.T) {
	r := Validate("SELECT * FROM secret_table LIMIT 10", defaultOpts("orders"))
	assert.False(t, r.HasFailFast())
	found := false
	for _, v := range r.Violations {
		if v.Rule == RuleUnknownTable {
			found = true
			assert.Equal(t, ActionRewrite, v.Action)
			assert.Equal(t, "secret_table", v.Table)
		}
	}
	assert.True(t, found)
}

func TestValidateAppendsMissingLimit(t *testing.T) {
	r := Validate("SELECT * FROM orders", defaultOpts("orders"))
	assert.Contains(t, r.NormalizedSQL, "LIMIT 100")
	found := false
	for _, v := range r.Violations {
		if v.Rule == RuleMissingLimit {
			found = true
			assert.Equal(t, ActionAutoFix, v.Action)
		}
	}
	assert.True(t, found)
}

func TestValidateCapsOversizedLimit(t *testing.T) {
	r := Validate("SELECT * FROM orders LIMIT 50000", defaultOpts("orders"))
	assert.Contains(t, r.NormalizedSQL, "LIMIT 1000")
	found := false
	for _, v := range r.Violations {
		if v.Rule == RuleOversizedLimit {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateIgnoresLimitInsideSubquery(t *testing.T) {
	r := Validate("SELECT * FROM (SELECT id FROM orders LIMIT 5) sub", defaultOpts("orders", "sub"))
	found := false
	for _, v := range r.Violations {
		if v.Rule == RuleMissingLimit {
			found = true
		}
	}
	assert.True(t, found, "outer statement has no top-level LIMIT despite the subquery's own LIMIT 5")
}
