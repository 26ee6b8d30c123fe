// Package orchestrator implements the C10 Request Orchestrator (spec.md
// §4.10): the top-level, stateless-per-request state machine
//
//	START → RETRIEVE → GENERATE → EVALUATE → [REPAIR → GENERATE → EVALUATE]* → EXECUTE → DONE
//
// It owns the attempt counter, assembles the final QueryResult, and
// guarantees that either rows or a classified error is always set
// (spec.md §3 invariant c).
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nlsql/internal/apperr"
	"nlsql/internal/evaluator"
	"nlsql/internal/executor"
	"nlsql/internal/generation"
	"nlsql/internal/lint"
	"nlsql/internal/logging"
	"nlsql/internal/prompt"
	"nlsql/internal/repair"
	"nlsql/internal/retrieval"
	"nlsql/internal/schema"
	"nlsql/internal/sqltoken"
	"nlsql/internal/validator"
)

// Config configures one Orchestrator instance; fields mirror
// internal/config's pipeline section.
type Config struct {
	Dialect          string
	MaxAttempts      int // default 3, including the initial generation (spec.md §9 resolved)
	EasyK            int // K for the first attempt on an easy question, default 2
	MediumK          int // K for the first attempt on a medium question, default 4
	HardK            int // K for the first attempt on a hard question, default 6
	RepairK          int // K for every repair attempt (attempt > 1), default 1 (spec.md §4.8)
	DefaultMaxRows   int
	CeilingRows      int
	ValidatorOptions func(allowed map[string]bool) validator.Options
}

// Orchestrator wires together every pipeline stage (C4-C9) behind one
// per-request entry point.
type Orchestrator struct {
	Retriever  *retrieval.Retriever
	Generation *generation.Client
	Executor   *executor.Executor
	Config     Config
}

// New builds an Orchestrator, filling in Config defaults.
func New(retriever *retrieval.Retriever, gen *generation.Client, ex *executor.Executor, cfg Config) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.EasyK <= 0 {
		cfg.EasyK = 2
	}
	if cfg.MediumK <= 0 {
		cfg.MediumK = 4
	}
	if cfg.HardK <= 0 {
		cfg.HardK = 6
	}
	if cfg.RepairK <= 0 {
		cfg.RepairK = 1
	}
	if cfg.DefaultMaxRows <= 0 {
		cfg.DefaultMaxRows = 200
	}
	if cfg.CeilingRows <= 0 {
		cfg.CeilingRows = 5000
	}
	if cfg.Dialect == "" {
		cfg.Dialect = "postgres"
	}
	return &Orchestrator{Retriever: retriever, Generation: gen, Executor: ex, Config: cfg}
}

// Request is one natural-language query request.
type Request struct {
	QueryID     string
	DatabaseID  string
	Question    string
	ModuleHints []string
}

// AttemptRecord is one generate/evaluate round's audit trail (spec.md
// §3 AttemptRecord).
type AttemptRecord struct {
	AttemptNumber    int
	PriorSQL         string
	ValidatorIssues  []validator.Violation
	ExplainError     error
	RepairDeltaApplied string
}

// QueryResult is the orchestrator's terminal output (spec.md §3
// QueryResult). Exactly one of (Rows != nil) or (Error != nil) holds.
type QueryResult struct {
	QueryID          string
	ExecutedSQL      string
	Rows             []executor.Row
	RowCount         int
	Confidence       float64
	TablesReferenced []string
	Notes            string
	Error            *apperr.Error
	Attempts         []AttemptRecord
}

// Run drives one request through the full state machine.
func (o *Orchestrator) Run(ctx context.Context, req Request) QueryResult {
	log := logging.For(logging.CategoryOrchestrator)
	logging.Global.RecordRequest()
	result := QueryResult{QueryID: req.QueryID}

	packet, err := o.Retriever.Retrieve(ctx, req.DatabaseID, req.Question, req.ModuleHints)
	if err != nil {
		result.Error = classify(err)
		result.Notes = summarizeAttempts(result.Attempts)
		logging.Global.RecordErrored()
		log.Warnw("retrieval failed", "query_id", req.QueryID, "kind", result.Error.Kind)
		return result
	}

	base := prompt.Base{Dialect: o.Config.Dialect, Question: req.Question, Packet: packet}
	valOpts := o.validatorOptions(packet)
	hasExpectedGroupBy := lint.HasGroupByIntent(req.Question)

	var deltas []prompt.Delta
	var winner evaluator.Evaluated
	var haveWinner bool

	for attempt := 1; attempt <= o.Config.MaxAttempts; attempt++ {
		logging.Global.RecordAttempt()
		composed := prompt.Compose(base, deltas...)

		k := o.candidatesForAttempt(attempt, req.Question, packet)
		candidates, genErr := o.Generation.GenerateK(ctx, req.Question, req.DatabaseID, composed, k, attempt)
		record := AttemptRecord{AttemptNumber: attempt}
		if genErr != nil {
			record.ExplainError = genErr
			result.Attempts = append(result.Attempts, record)
			if attempt == o.Config.MaxAttempts {
				result.Error = classify(genErr)
				break
			}
			continue
		}

		evalCandidates := make([]evaluator.Candidate, len(candidates))
		for i, c := range candidates {
			evalCandidates[i] = evaluator.Candidate{SQL: c.SQL, SourceAttempt: attempt}
		}

		evaluated, err := evaluator.Evaluate(ctx, o.Executor, evalCandidates, evaluator.Options{
			ValidatorOptions:   valOpts,
			Question:           req.Question,
			HasExpectedGroupBy: hasExpectedGroupBy,
		})
		if err != nil {
			result.Error = apperr.Wrap(apperr.KindServerInternal, "evaluation pipeline failed", err)
			break
		}

		best, ok := evaluator.SelectWinner(evaluated)
		if ok {
			record.PriorSQL = best.NormalizedSQL
			record.ValidatorIssues = best.ValidatorResult.Violations
			record.ExplainError = best.ProbeResult.Err
		}

		if ok && best.PassedExplain {
			result.Attempts = append(result.Attempts, record)
			winner = best
			haveWinner = true
			break
		}

		if attempt == o.Config.MaxAttempts {
			result.Attempts = append(result.Attempts, record)
			if ok {
				result.Error = classifyEvaluated(best)
			} else {
				result.Error = apperr.New(apperr.KindGenerationFailed, "no candidate survived structural validation")
			}
			break
		}

		if !ok {
			result.Attempts = append(result.Attempts, record)
			continue
		}

		plan := repair.Classify(best, packet)
		record.RepairDeltaApplied = plan.Reason
		result.Attempts = append(result.Attempts, record)
		if !plan.Recoverable {
			result.Error = classifyEvaluated(best)
			break
		}
		if plan.Delta != nil {
			deltas = append(deltas, plan.Delta)
		}
	}

	if !haveWinner {
		if result.Error == nil {
			result.Error = apperr.New(apperr.KindServerInternal, "exhausted attempts with no classified error")
		}
		result.Notes = summarizeAttempts(result.Attempts)
		logging.Global.RecordErrored()
		log.Warnw("request failed before execution", "query_id", req.QueryID, "kind", result.Error.Kind)
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, requestDeadline(o.Config))
	defer cancel()

	execResult, err := o.Executor.Execute(execCtx, winner.NormalizedSQL, o.Config.DefaultMaxRows)
	if err != nil {
		result.Error = classify(err)
		result.Notes = summarizeAttempts(result.Attempts)
		logging.Global.RecordErrored()
		log.Warnw("execution failed", "query_id", req.QueryID, "kind", result.Error.Kind)
		return result
	}

	result.ExecutedSQL = winner.NormalizedSQL
	result.Rows = execResult.Rows
	if result.Rows == nil {
		result.Rows = []executor.Row{}
	}
	result.RowCount = execResult.RowCount
	result.TablesReferenced = referencedTables(winner.NormalizedSQL)
	result.Confidence = confidence(winner)
	result.Notes = summarizeAttempts(result.Attempts)
	logging.Global.RecordExecuted()
	log.Infow("request executed", "query_id", req.QueryID, "row_count", result.RowCount, "confidence", result.Confidence)
	return result
}

// summarizeAttempts renders spec.md §7's required notes field: how many
// attempts ran and which repair deltas were applied (spec.md §8 scenario
// 5: "notes indicates one repair").
func summarizeAttempts(attempts []AttemptRecord) string {
	if len(attempts) == 0 {
		return "no attempts ran"
	}
	plural := "s"
	if len(attempts) == 1 {
		plural = ""
	}
	note := fmt.Sprintf("%d attempt%s", len(attempts), plural)

	var repairs []string
	for _, a := range attempts {
		if a.RepairDeltaApplied != "" {
			repairs = append(repairs, fmt.Sprintf("attempt %d: %s", a.AttemptNumber, a.RepairDeltaApplied))
		}
	}
	if len(repairs) == 0 {
		return note
	}
	return fmt.Sprintf("%s; repairs applied: %s", note, strings.Join(repairs, "; "))
}

// difficulty is the C6 difficulty classifier's verdict (spec.md §4.6),
// selecting how many candidates the first generation attempt requests.
type difficulty int

const (
	difficultyEasy difficulty = iota
	difficultyMedium
	difficultyHard
)

// classifyDifficulty is a deterministic heuristic over the retrieved
// schema packet's size and the question's own intent signals: a
// question touching three or more tables, or one that combines a
// superlative with a per-bucket aggregate (spec.md §4.7's two scoring
// intents), is hard; a single-table question with neither signal is
// easy; everything else is medium. This mapping is an Open Question
// resolution (spec.md §9 leaves the classifier unspecified beyond the
// default K mapping); recorded in DESIGN.md.
func classifyDifficulty(question string, packet *schema.Packet) difficulty {
	tableCount := len(packet.Tables)
	superlative := lint.HasSuperlativeIntent(question)
	groupBy := lint.HasGroupByIntent(question)

	if tableCount >= 3 || (superlative && groupBy) {
		return difficultyHard
	}
	if tableCount <= 1 && !superlative && !groupBy {
		return difficultyEasy
	}
	return difficultyMedium
}

// candidatesForAttempt picks K for one generation round: the first
// attempt uses the difficulty classifier's K, every repair attempt
// (attempt > 1) uses the smaller, fixed RepairK (spec.md §4.8: "K
// reduced, typically K=1") since a repair round has one targeted delta
// to react to rather than an open generation problem.
func (o *Orchestrator) candidatesForAttempt(attempt int, question string, packet *schema.Packet) int {
	if attempt > 1 {
		return o.Config.RepairK
	}
	switch classifyDifficulty(question, packet) {
	case difficultyEasy:
		return o.Config.EasyK
	case difficultyHard:
		return o.Config.HardK
	default:
		return o.Config.MediumK
	}
}

func (o *Orchestrator) validatorOptions(packet *schema.Packet) validator.Options {
	if o.Config.ValidatorOptions != nil {
		return o.Config.ValidatorOptions(packet.AllowedTables())
	}
	return validator.Options{
		AllowedTables:  packet.AllowedTables(),
		DefaultMaxRows: o.Config.DefaultMaxRows,
		CeilingRows:    o.Config.CeilingRows,
	}
}

// referencedTables returns the unique, lower-cased table names the final
// SQL's FROM/JOIN clauses mention, for the invariant that executed
// tables are a subset of the retrieved packet (spec.md §3 invariant a).
func referencedTables(sql string) []string {
	bindings := sqltoken.ExtractTableAliases(sqltoken.Tokenize(sql))
	seen := map[string]bool{}
	var out []string
	for _, b := range bindings {
		if !seen[b.Table] {
			seen[b.Table] = true
			out = append(out, b.Table)
		}
	}
	return out
}

// confidence derives a 0-1 score from the evaluator's 0-100 scale
// (spec.md §9 open question, resolved: the generation service's own
// confidence field is advisory only; the orchestrator's reported
// confidence always reflects the evaluator's deterministic score so it
// cannot be spoofed by the external generation service).
func confidence(ev evaluator.Evaluated) float64 {
	c := float64(ev.Score) / 100
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

func classify(err error) *apperr.Error {
	if e, ok := apperr.As(err); ok {
		return e
	}
	return apperr.Wrap(apperr.KindServerInternal, "unclassified error", err)
}

func classifyEvaluated(ev evaluator.Evaluated) *apperr.Error {
	if ev.ProbeResult.Err != nil {
		return classify(ev.ProbeResult.Err)
	}
	if len(ev.ValidatorResult.Violations) > 0 {
		return apperr.New(apperr.KindValidationFailFast, "candidate failed structural validation")
	}
	return apperr.New(apperr.KindGenerationFailed, "candidate did not survive evaluation")
}

func requestDeadline(cfg Config) time.Duration {
	return 60 * time.Second
}
