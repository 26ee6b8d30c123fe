// Package validator implements the C2 Structural Validator (spec.md
// §4.2): given a SQL string and an allowed-table set it returns either an
// ok normalized statement or a set of classified violations, each with a
// fixed action (fail_fast, rewrite, auto_fix, warn). It never inspects
// raw text directly — every rule walks the sqltoken stream so dangerous
// keywords or table names inside string/comment literals are never
// mistaken for live SQL.
package validator

import (
	"strconv"
	"strings"

	"nlsql/internal/sqltoken"
)

// Action is the fixed disposition of a violated rule (spec.md §4.2).
type Action string

const (
	ActionFailFast Action = "fail_fast"
	ActionRewrite  Action = "rewrite"
	ActionAutoFix  Action = "auto_fix"
	ActionWarn     Action = "warn"
)

// Rule names the violated check, matching the table in spec.md §4.2.
type Rule string

const (
	RuleNoSelect            Rule = "NO_SELECT"
	RuleMultipleStatements  Rule = "MULTIPLE_STATEMENTS"
	RuleDangerousKeyword    Rule = "DANGEROUS_KEYWORD"
	RuleDangerousFunction   Rule = "DANGEROUS_FUNCTION"
	RuleUnknownTable        Rule = "UNKNOWN_TABLE"
	RuleMissingLimit        Rule = "MISSING_LIMIT"
	RuleOversizedLimit      Rule = "OVERSIZED_LIMIT"
	RuleUnterminatedLiteral Rule = "UNTERMINATED_LITERAL"
)

// Violation is one rule failure, carrying enough detail for the prompt
// composer's rewrite delta or the repair controller's classification.
type Violation struct {
	Rule    Rule
	Action  Action
	Message string
	// Table/Alias are set for UNKNOWN_TABLE violations.
	Table string
	Alias string
}

// dangerousKeywords is the NORMAL-state keyword blocklist (spec.md §4.2
// DANGEROUS_KEYWORD). Checked case-insensitively against every
// keyword token, not substrings, so a column literally named
// "dropped_at" never trips the rule. "copy" is not in the tokenizer's
// keyword set, so it never matches here; a statement starting with COPY
// is refused by NO_SELECT instead.
var dangerousKeywords = map[string]bool{
	"insert": true, "update": true, "delete": true, "drop": true,
	"alter": true, "truncate": true, "create": true, "grant": true,
	"revoke": true, "copy": true, "into": true,
}

// dangerousFunctions is the configured function blocklist (spec.md §4.2
// DANGEROUS_FUNCTION): filesystem, sleep/timing, process, and
// privilege-escalation surfaces with no legitimate role in a read-only
// reporting query.
var dangerousFunctions = map[string]bool{
	"pg_read_file": true, "pg_ls_dir": true, "pg_read_binary_file": true,
	"lo_import": true, "lo_export": true,
	"pg_sleep": true, "pg_sleep_for": true, "pg_sleep_until": true,
	"dblink": true, "dblink_exec": true,
	"pg_terminate_backend": true, "pg_cancel_backend": true,
	"current_setting": true, "set_config": true,
}

// Options configures a validation run with the request's retrieved
// table set and the configured row-limit policy.
type Options struct {
	AllowedTables   map[string]bool
	DefaultMaxRows  int
	CeilingRows     int
}

// Result is the validator's verdict: the normalized SQL (after any
// auto_fix rewrites) plus every violation found, in rule-evaluation
// order.
type Result struct {
	NormalizedSQL string
	Violations    []Violation
}

// HasFailFast reports whether any violation is fail_fast, meaning the
// candidate must be dropped without ever reaching the generator again.
func (r Result) HasFailFast() bool {
	for _, v := range r.Violations {
		if v.Action == ActionFailFast {
			return true
		}
	}
	return false
}

// RewriteViolations returns only the violations the prompt composer's
// rewrite delta needs to communicate back to the generator.
func (r Result) RewriteViolations() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Action == ActionRewrite {
			out = append(out, v)
		}
	}
	return out
}

// Validate runs every structural rule against sql in order, applying
// auto_fix rewrites as it goes so later rules (MISSING_LIMIT,
// OVERSIZED_LIMIT) see the effect of earlier ones.
func Validate(sql string, opts Options) Result {
	tokens := sqltoken.Tokenize(sql)
	var violations []Violation

	for _, t := range tokens {
		if t.IsUnterminated() {
			violations = append(violations, Violation{
				Rule: RuleUnterminatedLiteral, Action: ActionFailFast,
				Message: "unterminated literal: " + t.Text,
			})
		}
	}
	if len(violations) > 0 {
		return Result{NormalizedSQL: sql, Violations: violations}
	}

	sig := sqltoken.SignificantTokens(tokens)

	if v, ok := checkNoSelect(sig); !ok {
		violations = append(violations, v)
		return Result{NormalizedSQL: sql, Violations: violations}
	}

	if n := sqltoken.CountStatements(tokens); n > 1 {
		violations = append(violations, Violation{
			Rule: RuleMultipleStatements, Action: ActionFailFast,
			Message: "statement contains " + strconv.Itoa(n) + " top-level statements",
		})
		return Result{NormalizedSQL: sql, Violations: violations}
	}

	for _, t := range sig {
		if t.Kind == sqltoken.KindKeyword && dangerousKeywords[strings.ToLower(t.Text)] {
			violations = append(violations, Violation{
				Rule: RuleDangerousKeyword, Action: ActionFailFast,
				Message: "dangerous keyword: " + t.Text,
			})
		}
	}
	if fnViolations := checkDangerousFunctions(sig); len(fnViolations) > 0 {
		violations = append(violations, fnViolations...)
	}
	if hasFailFast(violations) {
		return Result{NormalizedSQL: sql, Violations: violations}
	}

	if tblViolations := checkUnknownTables(sig, opts.AllowedTables); len(tblViolations) > 0 {
		violations = append(violations, tblViolations...)
	}

	normalized := sql
	if fixed, v, changed := applyLimitPolicy(tokens, opts); changed {
		normalized = fixed
		violations = append(violations, v...)
	}

	return Result{NormalizedSQL: normalized, Violations: violations}
}

func hasFailFast(vs []Violation) bool {
	for _, v := range vs {
		if v.Action == ActionFailFast {
			return true
		}
	}
	return false
}

// checkNoSelect enforces that the first significant keyword is SELECT,
// or WITH followed eventually by SELECT (spec.md §4.2 NO_SELECT).
func checkNoSelect(sig []sqltoken.Token) (Violation, bool) {
	if len(sig) == 0 {
		return Violation{Rule: RuleNoSelect, Action: ActionFailFast, Message: "empty statement"}, false
	}
	first := sig[0]
	if first.Kind != sqltoken.KindKeyword {
		return Violation{Rule: RuleNoSelect, Action: ActionFailFast, Message: "statement does not begin with SELECT"}, false
	}
	word := strings.ToLower(first.Text)
	switch word {
	case "select":
		return Violation{}, true
	case "with":
		for _, t := range sig[1:] {
			if t.Kind == sqltoken.KindKeyword && strings.ToLower(t.Text) == "select" {
				return Violation{}, true
			}
		}
		return Violation{Rule: RuleNoSelect, Action: ActionFailFast, Message: "WITH clause never reaches a SELECT"}, false
	default:
		return Violation{Rule: RuleNoSelect, Action: ActionFailFast, Message: "statement does not begin with SELECT: " + first.Text}, false
	}
}

// checkDangerousFunctions flags calls `name(` where name is on the
// blocklist, scanning significant tokens for an identifier immediately
// followed by an opening parenthesis.
func checkDangerousFunctions(sig []sqltoken.Token) []Violation {
	var out []Violation
	for i := 0; i+1 < len(sig); i++ {
		if sig[i].Kind != sqltoken.KindIdentifier && sig[i].Kind != sqltoken.KindKeyword {
			continue
		}
		if sig[i+1].Kind != sqltoken.KindPunctuation || sig[i+1].Text != "(" {
			continue
		}
		name := strings.ToLower(sig[i].Text)
		if dangerousFunctions[name] {
			out = append(out, Violation{
				Rule: RuleDangerousFunction, Action: ActionFailFast,
				Message: "call to blocked function: " + name,
			})
		}
	}
	return out
}

// checkUnknownTables resolves every FROM/JOIN table reference through
// alias extraction and flags any table not present in allowed (spec.md
// §4.2 UNKNOWN_TABLE: rewrite, not fail_fast, since the generator may
// simply need a narrower schema hint). CTEs named in the statement's own
// WITH clause are treated as locally allowed, not unknown tables (spec.md
// §4.2: "Views and CTEs declared in the same statement are treated as
// locally allowed"); derived-table subqueries never produce a binding in
// the first place, since ExtractTableAliases only matches `FROM/JOIN
// <identifier>`.
func checkUnknownTables(sig []sqltoken.Token, allowed map[string]bool) []Violation {
	if allowed == nil {
		return nil
	}
	locallyAllowed := collectCTENames(sig)
	bindings := sqltoken.ExtractTableAliases(sig)
	seen := make(map[string]bool)
	var out []Violation
	for _, b := range bindings {
		if seen[b.Table] {
			continue
		}
		seen[b.Table] = true
		if allowed[b.Table] || locallyAllowed[strings.ToLower(b.Table)] {
			continue
		}
		out = append(out, Violation{
			Rule: RuleUnknownTable, Action: ActionRewrite,
			Message: "table not in allowed set: " + b.Table,
			Table:   b.Table, Alias: b.Alias,
		})
	}
	return out
}

// collectCTENames scans a leading WITH clause for every `name AS (...)`
// binding it declares, so checkUnknownTables can treat references to
// those names as locally allowed rather than UNKNOWN_TABLE. Only a
// statement that begins with WITH (optionally WITH RECURSIVE) is
// scanned; anything else returns an empty set.
func collectCTENames(sig []sqltoken.Token) map[string]bool {
	names := map[string]bool{}
	if len(sig) == 0 || sig[0].Kind != sqltoken.KindKeyword || !strings.EqualFold(sig[0].Text, "with") {
		return names
	}
	i := 1
	if i < len(sig) && sig[i].Kind == sqltoken.KindKeyword && strings.EqualFold(sig[i].Text, "recursive") {
		i++
	}
	for i < len(sig) {
		if sig[i].Kind != sqltoken.KindIdentifier {
			break
		}
		names[strings.ToLower(sig[i].Text)] = true
		i++

		// optional column alias list: (col1, col2)
		i = skipParenGroup(sig, i)

		if i < len(sig) && sig[i].Kind == sqltoken.KindKeyword && strings.EqualFold(sig[i].Text, "as") {
			i++
		} else {
			break
		}
		// optional MATERIALIZED / NOT MATERIALIZED before the body
		for i < len(sig) && sig[i].Kind == sqltoken.KindKeyword &&
			(strings.EqualFold(sig[i].Text, "materialized") || strings.EqualFold(sig[i].Text, "not")) {
			i++
		}

		if i >= len(sig) || sig[i].Kind != sqltoken.KindPunctuation || sig[i].Text != "(" {
			break
		}
		i = skipParenGroup(sig, i)

		if i < len(sig) && sig[i].Kind == sqltoken.KindPunctuation && sig[i].Text == "," {
			i++
			continue
		}
		break
	}
	return names
}

// skipParenGroup returns the index just past the balanced "(...)" group
// starting at i, or i unchanged if sig[i] is not an opening paren.
func skipParenGroup(sig []sqltoken.Token, i int) int {
	if i >= len(sig) || sig[i].Kind != sqltoken.KindPunctuation || sig[i].Text != "(" {
		return i
	}
	depth := 0
	for i < len(sig) {
		if sig[i].Kind == sqltoken.KindPunctuation {
			if sig[i].Text == "(" {
				depth++
			} else if sig[i].Text == ")" {
				depth--
				if depth == 0 {
					return i + 1
				}
			}
		}
		i++
	}
	return i
}
