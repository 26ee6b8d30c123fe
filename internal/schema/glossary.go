package schema

import "strings"

// ExpandGlossary appends the expansion of any glossary abbreviation found
// as a whole word in text, so "cust orders" embeds alongside "customer
// orders" (spec.md §4.4: glossary abbreviation expansion runs before
// embedding, on both schema gloss text and incoming questions).
func ExpandGlossary(text string, glossary map[string]string) string {
	if len(glossary) == 0 {
		return text
	}
	words := strings.Fields(strings.ToLower(text))
	seen := make(map[string]bool)
	var additions []string
	for _, w := range words {
		w = strings.Trim(w, ".,;:()")
		if exp, ok := glossary[w]; ok && !seen[w] {
			seen[w] = true
			additions = append(additions, exp)
		}
	}
	if len(additions) == 0 {
		return text
	}
	return text + " " + strings.Join(additions, " ")
}

// RenderCompactDDL renders a table and its columns as a compact,
// CREATE-TABLE-like string suitable for pasting into a prompt (spec.md
// §5 base prompt: "schema rendered compactly, not as full DDL").
func RenderCompactDDL(t Table, cols []Column) string {
	var b strings.Builder
	b.WriteString(t.QualifiedName())
	b.WriteString("(")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.ColumnName)
		b.WriteString(" ")
		b.WriteString(c.DataType)
		if c.IsPrimaryKey {
			b.WriteString(" PK")
		}
		if c.IsForeignKey {
			b.WriteString(" FK->")
			b.WriteString(c.FKTargetTable)
		}
	}
	b.WriteString(")")
	return b.String()
}
