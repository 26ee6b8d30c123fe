// Package lint implements the C3 Lint & Autocorrect stage (spec.md
// §4.3): soft rules that contribute to candidate scoring plus a closed,
// provably-equivalent whitelist of mechanical rewrites. Unlike
// internal/validator, nothing here ever drops a candidate — issues only
// feed C7's scoring formula.
package lint

import (
	"strings"

	"nlsql/internal/sqltoken"
)

// IssueKind names one soft rule from spec.md §4.3.
type IssueKind string

const (
	IssueMissingGroupBy    IssueKind = "missing_group_by"
	IssueOrderByNoLimit    IssueKind = "order_by_no_limit_superlative"
	IssueDialectForeignSQL IssueKind = "dialect_foreign_syntax"
)

// Issue is one soft-rule finding.
type Issue struct {
	Kind    IssueKind
	Message string
}

// superlativeWords trigger the ORDER BY / LIMIT soft rule when present in
// the original question (spec.md §4.3: "question intent includes
// superlatives").
var superlativeWords = []string{"top", "highest", "lowest", "most", "least", "best", "worst", "largest", "smallest"}

// groupByWords trigger the has_expected_group_by scoring bonus (spec.md
// §4.7) when present in the original question: per-bucket aggregation
// phrasing ("by region", "per customer", "each department", "grouped by").
var groupByWords = []string{"by ", "per ", "each ", "grouped by", "group by", "broken down"}

// HasGroupByIntent reports whether question's phrasing asks for a
// per-bucket aggregate (e.g. "total revenue by region"), the signal
// internal/evaluator's scoring formula uses for the
// has_expected_group_by term.
func HasGroupByIntent(question string) bool {
	lower := strings.ToLower(question)
	for _, w := range groupByWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// HasSuperlativeIntent reports whether question asks for a ranked
// extreme, the signal the ORDER BY/LIMIT soft rule keys off.
func HasSuperlativeIntent(question string) bool {
	lower := strings.ToLower(question)
	for _, w := range superlativeWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// aggregateFunctions are the SQL aggregates whose presence alongside a
// non-aggregated column requires a GROUP BY.
var aggregateFunctions = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
}

// Lint scans sql for soft issues, using question for superlative intent.
// It never modifies sql; callers apply Autocorrect separately.
func Lint(sql string, question string) []Issue {
	tokens := sqltoken.Tokenize(sql)
	sig := sqltoken.SignificantTokens(tokens)

	var issues []Issue
	if missingGroupBy(sig) {
		issues = append(issues, Issue{Kind: IssueMissingGroupBy, Message: "aggregate coexists with non-aggregated column but no GROUP BY"})
	}
	if HasSuperlativeIntent(question) && hasOrderBy(sig) && !hasTopLevelLimit(sig) {
		issues = append(issues, Issue{Kind: IssueOrderByNoLimit, Message: "superlative question uses ORDER BY without LIMIT"})
	}
	if hasDialectForeignSyntax(sig) {
		issues = append(issues, Issue{Kind: IssueDialectForeignSQL, Message: "uses dialect-foreign syntax with a known equivalent rewrite"})
	}
	return issues
}

// missingGroupBy is a conservative heuristic: it fires only when an
// aggregate function call and a bare (non-aggregated, non-star) column
// reference both appear in the top-level SELECT list and no GROUP BY
// keyword exists anywhere in the statement. It deliberately
// under-reports rather than flags queries it cannot confidently parse
// without a real SQL grammar.
func missingGroupBy(sig []sqltoken.Token) bool {
	selectIdx := -1
	fromIdx := -1
	for i, t := range sig {
		if t.Kind == sqltoken.KindKeyword && strings.EqualFold(t.Text, "select") && selectIdx < 0 {
			selectIdx = i
		}
		if t.Kind == sqltoken.KindKeyword && strings.EqualFold(t.Text, "from") && fromIdx < 0 {
			fromIdx = i
			break
		}
	}
	if selectIdx < 0 || fromIdx < 0 || fromIdx <= selectIdx {
		return false
	}

	hasAggregate := false
	hasBareColumn := false
	depth := 0
	for i := selectIdx + 1; i < fromIdx; i++ {
		t := sig[i]
		switch {
		case t.Kind == sqltoken.KindPunctuation && t.Text == "(":
			depth++
		case t.Kind == sqltoken.KindPunctuation && t.Text == ")":
			depth--
		case depth == 0 && (t.Kind == sqltoken.KindIdentifier || t.Kind == sqltoken.KindKeyword):
			name := strings.ToLower(t.Text)
			if aggregateFunctions[name] && i+1 < fromIdx && sig[i+1].Text == "(" {
				hasAggregate = true
			} else if t.Kind == sqltoken.KindIdentifier {
				hasBareColumn = true
			}
		}
	}
	if !hasAggregate || !hasBareColumn {
		return false
	}
	for _, t := range sig {
		if t.Kind == sqltoken.KindKeyword && strings.EqualFold(t.Text, "group") {
			return false
		}
	}
	return true
}

func hasOrderBy(sig []sqltoken.Token) bool {
	for _, t := range sig {
		if t.Kind == sqltoken.KindKeyword && strings.EqualFold(t.Text, "order") {
			return true
		}
	}
	return false
}

func hasTopLevelLimit(sig []sqltoken.Token) bool {
	depth := 0
	for _, t := range sig {
		switch {
		case t.Kind == sqltoken.KindPunctuation && t.Text == "(":
			depth++
		case t.Kind == sqltoken.KindPunctuation && t.Text == ")":
			depth--
		case depth == 0 && t.Kind == sqltoken.KindKeyword && strings.EqualFold(t.Text, "limit"):
			return true
		}
	}
	return false
}

// hasDialectForeignSyntax reports YEAR(expr)-shaped calls, the one
// dialect-foreign form spec.md §4.3 names explicitly.
func hasDialectForeignSyntax(sig []sqltoken.Token) bool {
	for i, t := range sig {
		if isYearIdent(t) && i+1 < len(sig) && sig[i+1].Kind == sqltoken.KindPunctuation && sig[i+1].Text == "(" {
			return true
		}
	}
	return false
}
