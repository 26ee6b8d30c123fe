package lint

import (
	"strings"

	"nlsql/internal/sqltoken"
)

// Autocorrect is one documented, provably-equivalent rewrite (spec.md
// §4.3: "Autocorrect may only apply a change when the original is
// provably equivalent after the rewrite"). The slice ApplyAutocorrects
// returns is non-empty when a rewrite fired.
type Autocorrect struct {
	Description string
	Before      string
	After       string
}

// ApplyAutocorrects runs the closed whitelist of mechanical rewrites
// against sql and returns the corrected text plus a record of every
// rewrite applied, in source order.
func ApplyAutocorrects(sql string) (string, []Autocorrect) {
	tokens := sqltoken.Tokenize(sql)
	out, fixes := rewriteYearCalls(tokens)
	return out, fixes
}

// rewriteYearCalls finds every YEAR(<balanced-expr>) call and replaces it
// with EXTRACT(YEAR FROM <expr>), which is exactly equivalent for any
// expr since both extract the calendar year of a timestamp/date value.
// Only balanced, single-argument calls are rewritten; anything else
// (missing close paren, comma-separated arguments) is left untouched
// rather than guessed at.
func rewriteYearCalls(tokens []sqltoken.Token) (string, []Autocorrect) {
	var b strings.Builder
	var fixes []Autocorrect

	i := 0
	for i < len(tokens) {
		t := tokens[i]
		if isYearIdent(t) {
			if open, argTokens, closeIdx, ok := matchYearCall(tokens, i); ok {
				argText := sqltoken.Reconstruct(argTokens)
				before := sqltoken.Reconstruct(tokens[i : closeIdx+1])
				after := "EXTRACT(YEAR FROM " + strings.TrimSpace(argText) + ")"
				b.WriteString(after)
				fixes = append(fixes, Autocorrect{
					Description: "YEAR(expr) -> EXTRACT(YEAR FROM expr)",
					Before:      before,
					After:       after,
				})
				_ = open
				i = closeIdx + 1
				continue
			}
		}
		b.WriteString(t.Text)
		i++
	}
	return b.String(), fixes
}

func isYearIdent(t sqltoken.Token) bool {
	return (t.Kind == sqltoken.KindIdentifier || t.Kind == sqltoken.KindKeyword) && strings.EqualFold(t.Text, "year")
}

// matchYearCall checks that tokens[start] is "year" immediately followed
// (ignoring trivia) by a balanced parenthesized single-argument call,
// with no top-level comma inside (a comma would mean YEAR is being used
// as some other multi-arg function, which this rewrite must not touch).
func matchYearCall(tokens []sqltoken.Token, start int) (openIdx int, arg []sqltoken.Token, closeIdx int, ok bool) {
	i := start + 1
	for i < len(tokens) && tokens[i].IsTrivia() {
		i++
	}
	if i >= len(tokens) || tokens[i].Kind != sqltoken.KindPunctuation || tokens[i].Text != "(" {
		return 0, nil, 0, false
	}
	openIdx = i
	depth := 1
	i++
	argStart := i
	for i < len(tokens) && depth > 0 {
		switch {
		case tokens[i].Kind == sqltoken.KindPunctuation && tokens[i].Text == "(":
			depth++
		case tokens[i].Kind == sqltoken.KindPunctuation && tokens[i].Text == ")":
			depth--
			if depth == 0 {
				return openIdx, tokens[argStart:i], i, true
			}
		case depth == 1 && tokens[i].Kind == sqltoken.KindPunctuation && tokens[i].Text == ",":
			return 0, nil, 0, false
		}
		i++
	}
	return 0, nil, 0, false
}
