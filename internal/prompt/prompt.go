// Package prompt implements the C5 Prompt Composer (spec.md §4.5):
// base + delta composition, where the base is built once per request and
// never mutated, and repair deltas are appended in a fixed order for
// cache friendliness.
package prompt

import (
	"fmt"
	"strings"

	"nlsql/internal/schema"
)

// Base is the immutable role/schema/style portion of every prompt for a
// request, built once from the retrieved schema.Packet.
type Base struct {
	Dialect  string
	Question string
	Packet   *schema.Packet
}

// Render produces the base prompt text. Deltas are appended afterward by
// Compose; Render itself never includes any delta.
func (b Base) Render() string {
	var out strings.Builder
	out.WriteString("Generate a single SELECT statement for the described relational database.\n")
	fmt.Fprintf(&out, "Dialect: %s\n\n", b.Dialect)

	out.WriteString("Schema:\n")
	for _, t := range b.Packet.Tables {
		out.WriteString(t.CompactDDL)
		out.WriteString("\n")
	}
	if len(b.Packet.Edges) > 0 {
		out.WriteString("\nForeign keys:\n")
		for _, e := range b.Packet.Edges {
			fmt.Fprintf(&out, "%s.%s -> %s.%s\n", e.FromTable, e.FromColumn, e.ToTable, e.ToColumn)
		}
	}

	out.WriteString("\nStyle:\n")
	out.WriteString("- Alias every table and always qualify column references with their table alias.\n")
	out.WriteString("- The statement must include a LIMIT clause.\n")
	out.WriteString("- Return exactly one SELECT statement, nothing else.\n")

	out.WriteString("\nExamples:\n")
	for _, ex := range fewShotExamples(b.Dialect) {
		fmt.Fprintf(&out, "Q: %s\nA: %s\n", ex.Question, ex.SQL)
	}

	fmt.Fprintf(&out, "\nQuestion: %s\n", b.Question)
	return out.String()
}

// example is one dialect-bound few-shot pair (spec.md §4.5: "few-shot
// examples bound to the dialect").
type example struct {
	Question string
	SQL      string
}

func fewShotExamples(dialect string) []example {
	// Only Postgres examples exist today; spec.md §9 notes the dialect
	// coupling is architecturally isolated here and in the executor.
	return []example{
		{Question: "How many orders were placed last month?", SQL: "SELECT COUNT(*) AS order_count FROM orders o WHERE o.created_at >= date_trunc('month', now()) - interval '1 month' AND o.created_at < date_trunc('month', now()) LIMIT 100"},
		{Question: "Top 5 customers by total spend", SQL: "SELECT c.id, c.name, SUM(o.total) AS total_spend FROM customers c JOIN orders o ON o.customer_id = c.id GROUP BY c.id, c.name ORDER BY total_spend DESC LIMIT 5"},
	}
}

// Delta is one piece of repair context appended to the base prompt. Kept
// as an interface so Compose can keep deltas in strict, cache-friendly
// append order regardless of which kinds are present.
type Delta interface {
	Render() string
}

// Compose builds the full prompt text: base, then every delta in the
// order given (spec.md §4.5: "deltas are appended in a fixed order").
func Compose(base Base, deltas ...Delta) string {
	var out strings.Builder
	out.WriteString(base.Render())
	for _, d := range deltas {
		if d == nil {
			continue
		}
		text := d.Render()
		if text == "" {
			continue
		}
		out.WriteString("\n")
		out.WriteString(text)
	}
	return out.String()
}
