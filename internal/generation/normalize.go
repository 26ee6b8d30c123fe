package generation

import (
	"strings"

	"nlsql/internal/sqltoken"
)

// Normalize renders sql into its deduplication key (spec.md §4.6:
// "tokenized, lowercased keywords, whitespace collapsed, literal values
// preserved"). Two candidates that differ only in keyword casing or
// incidental whitespace collapse to the same normalized form; literal
// values are never altered, since changing them could change query
// semantics.
func Normalize(sql string) string {
	tokens := sqltoken.SignificantTokens(sqltoken.Tokenize(sql))
	var b strings.Builder
	for i, t := range tokens {
		if i > 0 {
			b.WriteString(" ")
		}
		switch t.Kind {
		case sqltoken.KindKeyword:
			b.WriteString(strings.ToLower(t.Text))
		default:
			b.WriteString(t.Text)
		}
	}
	return b.String()
}
