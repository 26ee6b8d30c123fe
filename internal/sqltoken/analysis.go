package sqltoken

import "strings"

// Reconstruct concatenates token text in order, proving the round-trip
// law: Reconstruct(Tokenize(s)) == s for every s (spec.md §8).
func Reconstruct(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

// SignificantTokens filters out whitespace and comments, the view the
// structural validator and lint engine work against.
func SignificantTokens(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Kind == KindEOF || t.IsTrivia() {
			continue
		}
		out = append(out, t)
	}
	return out
}

// CountStatements counts top-level statements by counting semicolons that
// are not the statement's own trailing terminator, using only
// significant tokens so semicolons inside string/dollar literals or
// comments never get mistaken for statement separators (spec.md §4.2
// MULTIPLE_STATEMENTS rule).
func CountStatements(tokens []Token) int {
	sig := SignificantTokens(tokens)
	if len(sig) == 0 {
		return 0
	}
	semicolons := 0
	trailingSemicolon := sig[len(sig)-1].Kind == KindSemicolon
	for _, t := range sig {
		if t.Kind == KindSemicolon {
			semicolons++
		}
	}
	statements := semicolons + 1
	if trailingSemicolon {
		statements--
	}
	return statements
}

// AliasBinding maps a FROM/JOIN alias (or the bare table name when no
// alias is given) to the table it refers to.
type AliasBinding struct {
	Alias string
	Table string
}

// ExtractTableAliases walks the significant token stream looking for
// `FROM table [AS] alias` and `JOIN table [AS] alias` patterns, the
// minimum needed by the structural validator's UNKNOWN_TABLE rule and
// the repair controller's alias->table resolution for undefined-column
// errors (spec.md §4.2, §4.8). It does not attempt full expression
// parsing: subqueries and derived tables are skipped, not resolved.
func ExtractTableAliases(tokens []Token) []AliasBinding {
	sig := SignificantTokens(tokens)
	var bindings []AliasBinding

	isIntroducer := func(t Token) bool {
		if t.Kind != KindKeyword {
			return false
		}
		w := strings.ToLower(t.Text)
		return w == "from" || w == "join"
	}

	for i := 0; i < len(sig); i++ {
		if !isIntroducer(sig[i]) {
			continue
		}
		j := i + 1
		if j >= len(sig) || sig[j].Kind != KindIdentifier {
			continue
		}
		table := sig[j].Text
		j++
		// optional schema-qualified form table.sub is not handled here;
		// callers operate on unqualified names per the retrieval packet.
		alias := table
		if j < len(sig) && sig[j].Kind == KindKeyword && strings.EqualFold(sig[j].Text, "as") {
			j++
		}
		// A following identifier is the alias; a keyword (WHERE, JOIN, ON,
		// ...) means no alias was given, so alias stays equal to table.
		if j < len(sig) && sig[j].Kind == KindIdentifier {
			alias = sig[j].Text
			j++
		}
		bindings = append(bindings, AliasBinding{Alias: alias, Table: table})
		i = j - 1
	}
	return bindings
}

// ResolveAlias looks up which table an alias (or bare table name) refers
// to among the bindings extracted from a statement's FROM/JOIN clauses.
func ResolveAlias(bindings []AliasBinding, aliasOrTable string) (string, bool) {
	for _, b := range bindings {
		if strings.EqualFold(b.Alias, aliasOrTable) {
			return b.Table, true
		}
	}
	return "", false
}
