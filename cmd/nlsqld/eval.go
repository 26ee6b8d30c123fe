package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"nlsql/internal/apperr"
	"nlsql/internal/embedding"
	"nlsql/internal/executor"
	"nlsql/internal/generation"
	"nlsql/internal/logging"
	"nlsql/internal/orchestrator"
	"nlsql/internal/retrieval"
	"nlsql/internal/schema"
	"nlsql/internal/validator"
)

var evalFile string

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "run a batch of question/expected-tables scenarios against the orchestrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		code := runEval(cmd.Context())
		logging.Sync()
		os.Exit(code)
		return nil
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalFile, "scenarios", "", "path to a JSONL file of {question, expected_tables} scenarios")
	evalCmd.MarkFlagRequired("scenarios")
}

// scenario is one line of the eval JSONL file (SPEC_FULL.md §6 EXPANSION).
type scenario struct {
	Question       string   `json:"question"`
	ExpectedTables []string `json:"expected_tables"`
}

// scenarioOutcome is the per-scenario report line written to stdout.
type scenarioOutcome struct {
	Question       string   `json:"question"`
	ExpectedTables []string `json:"expected_tables"`
	TablesUsed     []string `json:"tables_used"`
	Matched        bool     `json:"matched"`
	RowCount       int      `json:"row_count"`
	Confidence     float64  `json:"confidence"`
	Error          string   `json:"error,omitempty"`
}

func runEval(ctx context.Context) int {
	log := logging.For(logging.CategoryBoot)

	f, err := os.Open(evalFile)
	if err != nil {
		log.Errorw("failed to open scenarios file", "error", err)
		return exitConfigError
	}
	defer f.Close()

	var scenarios []scenario
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var s scenario
		if err := json.Unmarshal(line, &s); err != nil {
			log.Errorw("malformed scenario line", "error", err)
			return exitConfigError
		}
		scenarios = append(scenarios, s)
	}
	if err := scanner.Err(); err != nil {
		log.Errorw("failed to read scenarios file", "error", err)
		return exitConfigError
	}

	if cfg.Database.DSN == "" {
		log.Errorw("database.dsn is not configured")
		return exitConfigError
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Errorw("failed to open database", "error", err)
		return exitExternalUnavailable
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Errorw("database unreachable", "error", err)
		return exitExternalUnavailable
	}

	store := schema.NewStore(db)
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:    cfg.Embedding.Provider,
		GenAIAPIKey: cfg.Embedding.GenAIAPIKey,
		GenAIModel:  cfg.Embedding.ModelTag,
		TaskType:    "RETRIEVAL_QUERY",
		HTTPURL:     cfg.Embedding.HTTPURL,
	})
	if err != nil {
		log.Errorw("failed to build embedding engine", "error", err)
		return exitExternalUnavailable
	}

	modules := make([]retrieval.Module, 0, len(cfg.Modules))
	for _, name := range cfg.Modules {
		modules = append(modules, retrieval.Module{Name: name})
	}
	retriever := retrieval.NewRetriever(store, engine, modules, retrieval.Config{
		DefaultTopN:       cfg.Retrieval.DefaultTopN,
		MaxTopN:           cfg.Retrieval.MaxTopN,
		MinModules:        cfg.Retrieval.MinModules,
		MaxModules:        cfg.Retrieval.MaxModules,
		GenericDownweight: cfg.Retrieval.GenericDownweight,
		HubBonus:          cfg.Retrieval.HubBonus,
		HubDegreeFloor:    cfg.Retrieval.HubDegreeFloor,
		MaxFKExpansion:    cfg.Retrieval.MaxFKExpansion,
		MinScoreFloor:     cfg.Retrieval.MinScoreFloor,
	})
	genClient := generation.NewClient(cfg.Generation.ServiceURL, cfg.Generation.PerCallTimeout)
	ex := executor.New(db, executor.Config{
		ProbeTimeout: msToDuration(cfg.Database.ProbeTimeoutMs),
		ExecTimeout:  msToDuration(cfg.Database.ExecTimeoutMs),
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	orc := orchestrator.New(retriever, genClient, ex, orchestrator.Config{
		Dialect:        cfg.Dialect,
		MaxAttempts:    cfg.Attempts.MaxAttempts,
		EasyK:          cfg.Generation.EasyK,
		MediumK:        cfg.Generation.MediumK,
		HardK:          cfg.Generation.HardK,
		RepairK:        cfg.Generation.RepairK,
		DefaultMaxRows: cfg.RowLimits.DefaultMaxRows,
		CeilingRows:    cfg.RowLimits.CeilingRows,
		ValidatorOptions: func(allowed map[string]bool) validator.Options {
			return validator.Options{
				AllowedTables:  allowed,
				DefaultMaxRows: cfg.RowLimits.DefaultMaxRows,
				CeilingRows:    cfg.RowLimits.CeilingRows,
			}
		},
	})

	encoder := json.NewEncoder(os.Stdout)
	anyInternalError := false
	anyExternalUnavailable := false
	for i, s := range scenarios {
		result := orc.Run(ctx, orchestrator.Request{
			QueryID:    fmt.Sprintf("eval-%d", i),
			DatabaseID: databaseID,
			Question:   s.Question,
		})

		outcome := scenarioOutcome{
			Question:       s.Question,
			ExpectedTables: s.ExpectedTables,
			TablesUsed:     result.TablesReferenced,
			RowCount:       result.RowCount,
			Confidence:     result.Confidence,
			Matched:        tablesMatch(s.ExpectedTables, result.TablesReferenced),
		}
		if result.Error != nil {
			outcome.Error = result.Error.Message
			switch {
			case result.Error.Kind == apperr.KindRetrievalUnavailable || result.Error.Kind == apperr.KindConnectionError:
				anyExternalUnavailable = true
			case !result.Error.Recoverable():
				anyInternalError = true
			}
		}
		if err := encoder.Encode(outcome); err != nil {
			log.Errorw("failed to write outcome", "error", err)
			return exitInternalError
		}
	}

	if anyInternalError {
		return exitInternalError
	}
	if anyExternalUnavailable {
		return exitExternalUnavailable
	}
	return exitSuccess
}

func tablesMatch(expected, actual []string) bool {
	if len(expected) == 0 {
		return true
	}
	seen := make(map[string]bool, len(actual))
	for _, t := range actual {
		seen[t] = true
	}
	for _, e := range expected {
		if !seen[e] {
			return false
		}
	}
	return true
}
