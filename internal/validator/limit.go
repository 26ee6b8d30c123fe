package validator

import (
	"strconv"
	"strings"

	"nlsql/internal/sqltoken"
)

// applyLimitPolicy enforces MISSING_LIMIT and OVERSIZED_LIMIT (spec.md
// §4.2), both auto_fix: append a default LIMIT if none exists at the
// outermost level, or cap an existing LIMIT above the configured
// ceiling. Operates on the raw token stream (not just significant
// tokens) so the rewritten SQL preserves surrounding whitespace and
// comments exactly except where the LIMIT clause itself changes.
func applyLimitPolicy(tokens []sqltoken.Token, opts Options) (string, []Violation, bool) {
	sig := sqltoken.SignificantTokens(tokens)
	limitIdx, valueIdx := findTopLevelLimit(sig)

	if limitIdx < 0 {
		if opts.DefaultMaxRows <= 0 {
			return "", nil, false
		}
		appended := sqltoken.Reconstruct(tokens) + " LIMIT " + strconv.Itoa(opts.DefaultMaxRows)
		return appended, []Violation{{
			Rule: RuleMissingLimit, Action: ActionAutoFix,
			Message: "no LIMIT clause; appended default " + strconv.Itoa(opts.DefaultMaxRows),
		}}, true
	}

	if valueIdx < 0 || opts.CeilingRows <= 0 {
		return "", nil, false
	}
	current, err := strconv.Atoi(sig[valueIdx].Text)
	if err != nil || current <= opts.CeilingRows {
		return "", nil, false
	}

	rewritten := replaceToken(tokens, sig[valueIdx], strconv.Itoa(opts.CeilingRows))
	return rewritten, []Violation{{
		Rule: RuleOversizedLimit, Action: ActionAutoFix,
		Message: "LIMIT " + sig[valueIdx].Text + " exceeds ceiling; capped to " + strconv.Itoa(opts.CeilingRows),
	}}, true
}

// findTopLevelLimit locates the LIMIT keyword at paren-depth 0 (so a
// LIMIT inside a subquery is not mistaken for the outer statement's
// limit) and, if present, the index of its numeric argument.
func findTopLevelLimit(sig []sqltoken.Token) (limitIdx, valueIdx int) {
	depth := 0
	limitIdx, valueIdx = -1, -1
	for i, t := range sig {
		switch {
		case t.Kind == sqltoken.KindPunctuation && t.Text == "(":
			depth++
		case t.Kind == sqltoken.KindPunctuation && t.Text == ")":
			depth--
		case depth == 0 && t.Kind == sqltoken.KindKeyword && strings.EqualFold(t.Text, "limit"):
			limitIdx = i
			if i+1 < len(sig) && sig[i+1].Kind == sqltoken.KindNumber {
				valueIdx = i + 1
			}
		}
	}
	return limitIdx, valueIdx
}

// replaceToken rebuilds the full token stream's text with target's slot
// replaced by replacement, identified by source offset rather than
// object identity (tokens are plain values).
func replaceToken(tokens []sqltoken.Token, target sqltoken.Token, replacement string) string {
	var b strings.Builder
	for _, t := range tokens {
		if t.Start == target.Start && t.End == target.End {
			b.WriteString(replacement)
			continue
		}
		b.WriteString(t.Text)
	}
	return b.String()
}
