package prompt

import (
	"fmt"
	"strings"

	"nlsql/internal/schema"
)

// DialectSyntaxDelta carries an EXPLAIN/validator error class and exact
// text back to the generator (spec.md §4.5 "Dialect/syntax delta").
type DialectSyntaxDelta struct {
	ErrorClass string
	ErrorText  string
	PriorSQL   string
}

func (d DialectSyntaxDelta) Render() string {
	var out strings.Builder
	out.WriteString("The previous attempt failed.\n")
	fmt.Fprintf(&out, "Prior SQL: %s\n", d.PriorSQL)
	fmt.Fprintf(&out, "Error class: %s\n", d.ErrorClass)
	fmt.Fprintf(&out, "Error: %s\n", d.ErrorText)
	out.WriteString("Fix the statement while keeping it a single valid SELECT.\n")
	return out.String()
}

// UnknownTableDelta lists the allowed tables verbatim (spec.md §4.5
// "Unknown-table delta"). Cumulative rewrites must never widen the
// allowed-table set, so AllowedTables here must always be (a subset of)
// the original packet's tables.
type UnknownTableDelta struct {
	OffendingTable string
	AllowedTables  []string
}

func (d UnknownTableDelta) Render() string {
	if d.OffendingTable == "" && len(d.AllowedTables) == 0 {
		return ""
	}
	var out strings.Builder
	if d.OffendingTable != "" {
		fmt.Fprintf(&out, "Table %q does not exist in this schema.\n", d.OffendingTable)
	}
	out.WriteString("Allowed tables: ")
	out.WriteString(strings.Join(d.AllowedTables, ", "))
	out.WriteString("\n")
	return out.String()
}

// ColumnWhitelistDelta lists one table's exact column names and its
// one-hop FK neighbors (spec.md §4.5 "Column-whitelist delta" / §4.8
// "surgical whitelist"), resolved from a `column does not exist` error.
type ColumnWhitelistDelta struct {
	Table     schema.Table
	Columns   []schema.Column
	Neighbors []schema.PacketTable
}

func (d ColumnWhitelistDelta) Render() string {
	if len(d.Columns) == 0 {
		return ""
	}
	var out strings.Builder
	fmt.Fprintf(&out, "Columns that actually exist on %s:\n", d.Table.TableName)
	for _, c := range d.Columns {
		fmt.Fprintf(&out, "- %s (%s)\n", c.ColumnName, c.DataType)
	}
	if len(d.Neighbors) > 0 {
		out.WriteString("Related tables you may join instead:\n")
		for _, n := range d.Neighbors {
			out.WriteString(n.CompactDDL)
			out.WriteString("\n")
		}
	}
	out.WriteString("Do not invent columns; if a concept is missing, join a table that has it.\n")
	return out.String()
}

// MultiCandidateDelta instructs the generator to produce K diverse,
// independently valid candidates (spec.md §4.5 "Multi-candidate delta").
type MultiCandidateDelta struct {
	K int
}

func (d MultiCandidateDelta) Render() string {
	if d.K <= 1 {
		return ""
	}
	return fmt.Sprintf("Produce %d independent, diverse candidate queries; each must be a complete, valid standalone SELECT statement.\n", d.K)
}
