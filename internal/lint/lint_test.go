package lint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasSuperlativeIntent(t *testing.T) {
	assert.True(t, HasSuperlativeIntent("what is the top customer by revenue"))
	assert.True(t, HasSuperlativeIntent("show the highest total order"))
	assert.False(t, HasSuperlativeIntent("list all customers"))
}

func TestLintMissingGroupBy(t *testing.T) {
	issues := Lint("SELECT customer_id, SUM(total) FROM orders", "totals by customer")
	found := false
	for _, i := range issues {
		if i.Kind == IssueMissingGroupBy {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLintNoMissingGroupByWhenPresent(t *testing.T) {
	issues := Lint("SELECT customer_id, SUM(total) FROM orders GROUP BY customer_id", "totals by customer")
	for _, i := range issues {
		assert.NotEqual(t, IssueMissingGroupBy, i.Kind)
	}
}

func TestLintOrderByWithoutLimitOnSuperlative(t *testing.T) {
	issues := Lint("SELECT * FROM orders ORDER BY total DESC", "what is the top order")
	found := false
	for _, i := range issues {
		if i.Kind == IssueOrderByNoLimit {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLintNoIssueWhenOrderByHasLimit(t *testing.T) {
	issues := Lint("SELECT * FROM orders ORDER BY total DESC LIMIT 1", "what is the top order")
	for _, i := range issues {
		assert.NotEqual(t, IssueOrderByNoLimit, i.Kind)
	}
}

func TestLintDialectForeignSyntax(t *testing.T) {
	issues := Lint("SELECT YEAR(created_at) FROM orders", "totals by year")
	found := false
	for _, i := range issues {
		if i.Kind == IssueDialectForeignSQL {
			found = true
		}
	}
	assert.True(t, found)
}

func TestApplyAutocorrectsRewritesYear(t *testing.T) {
	out, fixes := ApplyAutocorrects("SELECT YEAR(created_at) AS y FROM orders")
	assert.Equal(t, "SELECT EXTRACT(YEAR FROM created_at) AS y FROM orders", out)
	assert.Len(t, fixes, 1)
}

func TestApplyAutocorrectsLeavesMultiArgYearAlone(t *testing.T) {
	out, fixes := ApplyAutocorrects("SELECT YEAR(a, b) FROM orders")
	assert.Equal(t, "SELECT YEAR(a, b) FROM orders", out)
	assert.Empty(t, fixes)
}

func TestApplyAutocorrectsNoOpWhenNoMatch(t *testing.T) {
	out, fixes := ApplyAutocorrects("SELECT * FROM orders")
	assert.Equal(t, "SELECT * FROM orders", out)
	assert.Empty(t, fixes)
}
