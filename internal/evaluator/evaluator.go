// Package evaluator implements the C7 Candidate Evaluator (spec.md
// §4.7): validates, lints, EXPLAIN-probes, scores, and ranks the
// deduplicated candidates from a generation round.
package evaluator

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"nlsql/internal/executor"
	"nlsql/internal/lint"
	"nlsql/internal/logging"
	"nlsql/internal/sqltoken"
	"nlsql/internal/validator"
)

// Candidate is one generated SQL text entering evaluation.
type Candidate struct {
	SQL           string
	SourceAttempt int
}

// Evaluated is a Candidate plus every signal evaluation produced.
type Evaluated struct {
	Candidate
	NormalizedSQL   string
	Autocorrects    []lint.Autocorrect
	ValidatorResult validator.Result
	LintIssues      []lint.Issue
	ProbeResult     executor.ProbeResult
	Score           int
	Eligible        bool // passed structural validation (no fail_fast, no rewrite violation)
	PassedExplain   bool
}

// Options bundles the per-request context evaluation needs.
type Options struct {
	ValidatorOptions   validator.Options
	Question           string
	HasExpectedGroupBy bool
}

// Evaluate runs the full C7 pipeline over candidates concurrently (EXPLAIN
// probes are the one genuinely concurrent step per spec.md §5) and
// returns one Evaluated per input candidate, in input order, including
// ineligible ones (Eligible=false); callers use SelectWinner to pick.
func Evaluate(ctx context.Context, ex *executor.Executor, candidates []Candidate, opts Options) ([]Evaluated, error) {
	log := logging.For(logging.CategoryEvaluator)
	results := make([]Evaluated, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			results[i] = evaluateOne(gctx, ex, c, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debugw("evaluation complete", "candidates", len(results))
	return results, nil
}

func evaluateOne(ctx context.Context, ex *executor.Executor, c Candidate, opts Options) Evaluated {
	vr := validator.Validate(c.SQL, opts.ValidatorOptions)
	ev := Evaluated{
		Candidate:       c,
		NormalizedSQL:   vr.NormalizedSQL,
		ValidatorResult: vr,
	}
	if vr.HasFailFast() {
		ev.Eligible = false
		return ev
	}
	ev.Eligible = len(vr.RewriteViolations()) == 0

	// Autocorrect runs before lint/EXPLAIN so a candidate that only fails
	// on a mechanically-rewritable pattern (e.g. YEAR(x)) is judged, and
	// later executed, on the corrected text (spec.md §8 scenario 6).
	corrected, fixes := lint.ApplyAutocorrects(vr.NormalizedSQL)
	ev.NormalizedSQL = corrected
	ev.Autocorrects = fixes

	ev.LintIssues = lint.Lint(ev.NormalizedSQL, opts.Question)

	if ev.Eligible {
		ev.ProbeResult = ex.Probe(ctx, ev.NormalizedSQL)
		ev.PassedExplain = ev.ProbeResult.Passed
	}

	ev.Score = score(ev, opts)
	return ev
}

// score implements spec.md §4.7's formula:
//
//	100 − 25·lint_error_count − 50·explain_failed
//	    + 10·has_expected_group_by + 10·has_order_by_and_limit_when_superlative
func score(ev Evaluated, opts Options) int {
	s := 100
	s -= 25 * len(ev.LintIssues)
	if ev.Eligible && !ev.PassedExplain {
		s -= 50
	}
	if opts.HasExpectedGroupBy {
		missingGroupBy := false
		for _, issue := range ev.LintIssues {
			if issue.Kind == lint.IssueMissingGroupBy {
				missingGroupBy = true
			}
		}
		if !missingGroupBy {
			s += 10
		}
	}
	if lint.HasSuperlativeIntent(opts.Question) {
		hasOrderByNoLimitIssue := false
		for _, issue := range ev.LintIssues {
			if issue.Kind == lint.IssueOrderByNoLimit {
				hasOrderByNoLimitIssue = true
			}
		}
		// The ORDER-BY-without-LIMIT issue fires whenever ORDER BY lacks a
		// top-level LIMIT, so ORDER BY plus no issue means both are present.
		hasOrderBy := false
		for _, t := range sqltoken.SignificantTokens(sqltoken.Tokenize(ev.NormalizedSQL)) {
			if t.Kind == sqltoken.KindKeyword && strings.EqualFold(t.Text, "order") {
				hasOrderBy = true
			}
		}
		if hasOrderBy && !hasOrderByNoLimitIssue {
			s += 10
		}
	}
	return s
}

// SelectWinner applies spec.md §4.7's selection policy: the
// highest-scoring candidate that passed EXPLAIN; if none passed, the
// highest-scoring candidate that at least passed structural validation
// (to be routed through the Repair Controller). Ties break by (lower
// lint_error_count, shorter SQL, lexical order).
func SelectWinner(evaluated []Evaluated) (Evaluated, bool) {
	var explainPassed, structurallyOK []Evaluated
	for _, e := range evaluated {
		if !e.Eligible {
			continue
		}
		structurallyOK = append(structurallyOK, e)
		if e.PassedExplain {
			explainPassed = append(explainPassed, e)
		}
	}
	if len(explainPassed) > 0 {
		return bestOf(explainPassed), true
	}
	if len(structurallyOK) > 0 {
		return bestOf(structurallyOK), true
	}
	return Evaluated{}, false
}

func bestOf(candidates []Evaluated) Evaluated {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if len(a.LintIssues) != len(b.LintIssues) {
			return len(a.LintIssues) < len(b.LintIssues)
		}
		if len(a.NormalizedSQL) != len(b.NormalizedSQL) {
			return len(a.NormalizedSQL) < len(b.NormalizedSQL)
		}
		return a.NormalizedSQL < b.NormalizedSQL
	})
	return candidates[0]
}
