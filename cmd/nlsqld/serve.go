package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"nlsql/internal/embedding"
	"nlsql/internal/executor"
	"nlsql/internal/generation"
	"nlsql/internal/logging"
	"nlsql/internal/mcpserver"
	"nlsql/internal/orchestrator"
	"nlsql/internal/retrieval"
	"nlsql/internal/schema"
	"nlsql/internal/validator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the nlsql MCP server over stdio (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	log := logging.For(logging.CategoryBoot)

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Errorw("failed to open database", "error", err)
		logging.Sync()
		os.Exit(exitExternalUnavailable)
	}
	if err := db.PingContext(ctx); err != nil {
		log.Errorw("database unreachable", "error", err)
		logging.Sync()
		os.Exit(exitExternalUnavailable)
	}
	defer db.Close()

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
		logging.Sync()
		os.Exit(exitExternalUnavailable)
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

	srv := mcpserver.New(orc, mcpserver.NewResourceReader(store), databaseID)

	log.Infow("nlsqld serving on stdio", "database_id", databaseID, "dialect", cfg.Dialect)
	if err := srv.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil {
		log.Errorw("stdio server exited with error", "error", err)
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
