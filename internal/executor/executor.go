// Package executor implements the C9 Safe Executor (spec.md §4.9): a
// probe mode (EXPLAIN (FORMAT JSON), tight statement timeout) used during
// candidate evaluation, and an execute mode (read-only transaction,
// longer statement timeout, row cap) used once for the winning candidate.
package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"nlsql/internal/apperr"
	"nlsql/internal/logging"
)

// Executor runs SQL against a single Postgres connection pool.
type Executor struct {
	db               *sql.DB
	probeTimeout     time.Duration
	execTimeout      time.Duration
}

// Config mirrors the relevant internal/config fields.
type Config struct {
	ProbeTimeout time.Duration
	ExecTimeout  time.Duration
	MaxOpenConns int
	MaxIdleConns int
}

// New wraps an already-open *sql.DB, applying the configured pool bounds.
func New(db *sql.DB, cfg Config) *Executor {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2000 * time.Millisecond
	}
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 30000 * time.Millisecond
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	return &Executor{db: db, probeTimeout: cfg.ProbeTimeout, execTimeout: cfg.ExecTimeout}
}

// ProbeResult is the outcome of an EXPLAIN probe.
type ProbeResult struct {
	Passed bool
	PlanJSON string
	Err    error
}

// Probe runs `EXPLAIN (FORMAT JSON) <sql>` with a tight statement
// timeout, never mutating anything and never committing. It runs during
// candidate evaluation; the winner's passing probe from that round is
// what admits it to Execute, which does not probe again (spec.md §4.9).
func (e *Executor) Probe(ctx context.Context, sqlText string) ProbeResult {
	log := logging.For(logging.CategoryExecutor)

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return ProbeResult{Err: apperr.Wrap(apperr.KindConnectionError, "failed to acquire connection", err)}
	}
	defer conn.Close()

	probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout)
	defer cancel()

	if _, err := conn.ExecContext(probeCtx, fmt.Sprintf("SET statement_timeout = %d", e.probeTimeout.Milliseconds())); err != nil {
		return ProbeResult{Err: apperr.Wrap(apperr.KindConnectionError, "failed to set statement_timeout", err)}
	}

	var planJSON string
	row := conn.QueryRowContext(probeCtx, "EXPLAIN (FORMAT JSON) "+sqlText)
	if err := row.Scan(&planJSON); err != nil {
		classified := classifyError(err)
		log.Debugw("probe failed", "kind", classified.Kind, "error", err)
		return ProbeResult{Passed: false, Err: classified}
	}
	if PlanFailed(planJSON) {
		log.Debugw("probe returned an empty or unparseable plan", "plan_json", planJSON)
		return ProbeResult{Passed: false, Err: apperr.New(apperr.KindExecutionError, "EXPLAIN returned no usable plan")}
	}
	return ProbeResult{Passed: true, PlanJSON: planJSON}
}

// Row is one result row, keyed by column name, decoded into driver-native
// Go types.
type Row map[string]interface{}

// ExecuteResult is the outcome of a real execution.
type ExecuteResult struct {
	Rows     []Row
	RowCount int
}

// Execute runs sqlText inside a read-only transaction with a longer
// statement timeout, reading at most maxRows rows, then commits (or
// rolls back on any error). The connection always returns to the shared
// pool (spec.md §4.9).
func (e *Executor) Execute(ctx context.Context, sqlText string, maxRows int) (ExecuteResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.execTimeout)
	defer cancel()

	tx, err := e.db.BeginTx(execCtx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return ExecuteResult{}, apperr.Wrap(apperr.KindConnectionError, "failed to begin transaction", err)
	}

	if _, err := tx.ExecContext(execCtx, fmt.Sprintf("SET statement_timeout = %d", e.execTimeout.Milliseconds())); err != nil {
		tx.Rollback()
		return ExecuteResult{}, apperr.Wrap(apperr.KindConnectionError, "failed to set statement_timeout", err)
	}

	rows, err := tx.QueryContext(execCtx, sqlText)
	if err != nil {
		tx.Rollback()
		return ExecuteResult{}, classifyError(err)
	}

	result, err := scanRows(rows, maxRows)
	rows.Close()
	if err != nil {
		tx.Rollback()
		return ExecuteResult{}, apperr.Wrap(apperr.KindExecutionError, "failed to scan result rows", err)
	}

	if err := tx.Commit(); err != nil {
		return ExecuteResult{}, apperr.Wrap(apperr.KindExecutionError, "failed to commit read-only transaction", err)
	}
	return result, nil
}

func scanRows(rows *sql.Rows, maxRows int) (ExecuteResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return ExecuteResult{}, err
	}
	var out []Row
	for rows.Next() {
		if maxRows > 0 && len(out) >= maxRows {
			break
		}
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return ExecuteResult{}, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return ExecuteResult{}, err
	}
	return ExecuteResult{Rows: out, RowCount: len(out)}, nil
}

// classifyError maps a lib/pq error (or a generic driver error) into the
// spec.md §7 taxonomy, using the Postgres SQLSTATE class when available
// so the Repair Controller can distinguish repairable syntax/reference
// errors from fail-fast database classes.
func classifyError(err error) *apperr.Error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return classifyPQError(pqErr)
	}
	if err == context.DeadlineExceeded {
		return apperr.Wrap(apperr.KindDeadlineExceeded, "statement exceeded its timeout", err)
	}
	return apperr.Wrap(apperr.KindExecutionError, "uncategorized database error", err)
}

func classifyPQError(pqErr *pq.Error) *apperr.Error {
	code := string(pqErr.Code)
	message := pqErr.Message
	var position string
	if pqErr.Position != "" {
		position = pqErr.Position
	}
	withPos := func(kind apperr.Kind) *apperr.Error {
		e := apperr.Wrap(kind, message, pqErr)
		if position != "" {
			e.Message = message + " (position " + position + ")"
		}
		return e
	}

	switch {
	case code == "42601": // syntax_error
		return withPos(apperr.KindSyntaxError)
	case code == "42P01": // undefined_table
		return withPos(apperr.KindUnknownTable)
	case code == "42703": // undefined_column
		return withPos(apperr.KindUnknownColumn)
	case code == "42804" || code == "42883": // datatype_mismatch / undefined_function
		return withPos(apperr.KindTypeMismatch)
	case pqErr.Code.Class() == "28": // invalid_authorization_specification
		return withPos(apperr.KindPermissionDenied)
	case pqErr.Code.Class() == "08": // connection_exception
		return withPos(apperr.KindConnectionError)
	case pqErr.Code.Class() == "53": // insufficient_resources
		return withPos(apperr.KindResourceExhausted)
	case pqErr.Code.Class() == "57" && code == "57014": // statement_timeout
		return withPos(apperr.KindDeadlineExceeded)
	case pqErr.Code.Class() == "XX": // internal_error
		return withPos(apperr.KindServerInternal)
	default:
		return withPos(apperr.KindExecutionError)
	}
}

// PlanFailed reports, from a previously decoded EXPLAIN (FORMAT JSON)
// response, whether Postgres reported the plan could not run (this is a
// defensive secondary check; the primary failure signal is probe.Err
// being non-nil from the query itself failing).
func PlanFailed(planJSON string) bool {
	var plan []map[string]interface{}
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return true
	}
	return len(plan) == 0
}
