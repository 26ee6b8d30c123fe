// Package generation implements the C6 Generation Client (spec.md
// §4.6): K concurrent calls to the external generation service,
// deduplicated by normalized SQL, tolerant of partial failure.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"nlsql/internal/apperr"
	"nlsql/internal/logging"
)

// Client calls the external generation service's /generate_sql and
// /repair_sql endpoints (spec.md §6).
type Client struct {
	baseURL        string
	httpClient     *http.Client
	perCallTimeout time.Duration
}

// NewClient creates a generation client.
func NewClient(baseURL string, perCallTimeout time.Duration) *Client {
	if perCallTimeout <= 0 {
		perCallTimeout = 20 * time.Second
	}
	return &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: perCallTimeout + 5*time.Second},
		perCallTimeout: perCallTimeout,
	}
}

// generateRequest matches spec.md §6's POST /generate_sql body.
type generateRequest struct {
	Question        string `json:"question"`
	DatabaseID      string `json:"database_id"`
	SchemaContext   string `json:"schema_context"`
	MultiCandidateK int    `json:"multi_candidate_k,omitempty"`
	Attempt         int    `json:"attempt,omitempty"`
}

// generateResponse matches spec.md §6's /generate_sql response. Confidence
// is decoded but never surfaced: the orchestrator's reported confidence is
// always derived from the evaluator's own score (spec.md §9 resolved).
type generateResponse struct {
	SQLGenerated  string   `json:"sql_generated"`
	SQLCandidates []string `json:"sql_candidates,omitempty"`
	Confidence    float64  `json:"confidence"`
	Notes         string   `json:"notes,omitempty"`
}

// DBError carries the classified database failure that triggered a repair
// round, matching spec.md §6's /repair_sql `db_error` object.
type DBError struct {
	SQLState         string
	Message          string
	MinimalWhitelist []string
}

// repairRequest matches spec.md §6's POST /repair_sql body.
type repairRequest struct {
	Question        string       `json:"question"`
	DatabaseID      string       `json:"database_id"`
	PreviousSQL     string       `json:"previous_sql"`
	ValidatorIssues []string     `json:"validator_issues,omitempty"`
	DBError         *dbErrorWire `json:"db_error,omitempty"`
	Attempt         int          `json:"attempt"`
	MaxAttempts     int          `json:"max_attempts"`
}

type dbErrorWire struct {
	SQLState         string   `json:"sqlstate"`
	Message          string   `json:"message"`
	MinimalWhitelist []string `json:"minimal_whitelist,omitempty"`
}

// Candidate is one deduplicated SQL text returned by a generation round.
type Candidate struct {
	SQL            string
	NormalizedForm string
	SourceAttempt  int
}

// GenerateK issues K concurrent calls to /generate_sql carrying question,
// databaseID and schemaContext (the composed prompt text, spec.md §6's
// schema_context), each tagged with the round's attempt number. The
// external service is responsible for sampling diversity across the K
// concurrent calls (spec.md §4.6: "each call uses a nonzero sampling
// temperature"); that knob is not part of the wire contract. The overall
// wall-clock budget is min(perCallTimeout, deadline from ctx).
func (c *Client) GenerateK(ctx context.Context, question, databaseID, schemaContext string, k int, attemptNumber int) ([]Candidate, error) {
	if k <= 0 {
		k = 1
	}
	results := make([][]string, k)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < k; i++ {
		i := i
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, c.perCallTimeout)
			defer cancel()
			sqls, err := c.callGenerate(callCtx, question, databaseID, schemaContext, k, attemptNumber)
			if err != nil {
				logging.For(logging.CategoryGeneration).Warnw("generation call failed", "call", i, "error", err)
				return nil // partial failure tolerated, spec.md §4.6
			}
			results[i] = sqls
			return nil
		})
	}
	_ = g.Wait() // every call returns nil, so Wait never reports an error

	var flat []string
	for _, sqls := range results {
		flat = append(flat, sqls...)
	}
	return dedupeCandidates(flat, attemptNumber)
}

// Repair issues a single call to /repair_sql carrying the prior SQL and
// classified failure (spec.md §6). validatorIssues and dbErr are both
// optional: a candidate can fail structural validation (issues only) or
// EXPLAIN/execution (dbErr only).
func (c *Client) Repair(ctx context.Context, question, databaseID, previousSQL string, validatorIssues []string, dbErr *DBError, attempt, maxAttempts int) (Candidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.perCallTimeout)
	defer cancel()
	sql, err := c.callRepair(callCtx, question, databaseID, previousSQL, validatorIssues, dbErr, attempt, maxAttempts)
	if err != nil {
		return Candidate{}, apperr.Wrap(apperr.KindGenerationFailed, "repair call failed", err)
	}
	return Candidate{SQL: sql, NormalizedForm: Normalize(sql), SourceAttempt: attempt}, nil
}

func (c *Client) callGenerate(ctx context.Context, question, databaseID, schemaContext string, k, attempt int) ([]string, error) {
	var out generateResponse
	if err := c.post(ctx, "/generate_sql", generateRequest{
		Question:        question,
		DatabaseID:      databaseID,
		SchemaContext:   schemaContext,
		MultiCandidateK: k,
		Attempt:         attempt,
	}, &out); err != nil {
		return nil, err
	}
	if out.SQLGenerated == "" && len(out.SQLCandidates) == 0 {
		return nil, fmt.Errorf("generate_sql response carried no sql")
	}
	sqls := make([]string, 0, 1+len(out.SQLCandidates))
	if out.SQLGenerated != "" {
		sqls = append(sqls, out.SQLGenerated)
	}
	sqls = append(sqls, out.SQLCandidates...)
	return sqls, nil
}

func (c *Client) callRepair(ctx context.Context, question, databaseID, previousSQL string, validatorIssues []string, dbErr *DBError, attempt, maxAttempts int) (string, error) {
	var wire *dbErrorWire
	if dbErr != nil {
		wire = &dbErrorWire{SQLState: dbErr.SQLState, Message: dbErr.Message, MinimalWhitelist: dbErr.MinimalWhitelist}
	}
	var out generateResponse
	if err := c.post(ctx, "/repair_sql", repairRequest{
		Question:        question,
		DatabaseID:      databaseID,
		PreviousSQL:     previousSQL,
		ValidatorIssues: validatorIssues,
		DBError:         wire,
		Attempt:         attempt,
		MaxAttempts:     maxAttempts,
	}, &out); err != nil {
		return "", err
	}
	if out.SQLGenerated == "" {
		return "", fmt.Errorf("repair_sql response carried no sql_generated")
	}
	return out.SQLGenerated, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// dedupeCandidates drops empty results (failed calls) and collapses
// duplicates by normalized SQL (spec.md §4.6), surfacing generation_failed
// only when every call failed.
func dedupeCandidates(raw []string, attemptNumber int) ([]Candidate, error) {
	seen := make(map[string]bool)
	var out []Candidate
	for _, sql := range raw {
		if sql == "" {
			continue
		}
		norm := Normalize(sql)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, Candidate{SQL: sql, NormalizedForm: norm, SourceAttempt: attemptNumber})
	}
	if len(out) == 0 {
		return nil, apperr.New(apperr.KindGenerationFailed, "all generation calls failed")
	}
	return out, nil
}
