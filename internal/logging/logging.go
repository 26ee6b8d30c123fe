// Package logging provides category-tagged structured logging for nlsql,
// wrapping go.uber.org/zap. Every stage of the pipeline logs through a
// category-scoped sugared logger so operators can grep one concern
// (retrieval, generation, repair, ...) without parsing prose.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies which pipeline stage emitted a log line.
type Category string

const (
	CategoryBoot         Category = "boot"
	CategoryConfig       Category = "config"
	CategoryRetrieval    Category = "retrieval"
	CategoryEmbedding    Category = "embedding"
	CategoryPrompt       Category = "prompt"
	CategoryGeneration   Category = "generation"
	CategoryValidator    Category = "validator"
	CategoryLint         Category = "lint"
	CategoryEvaluator    Category = "evaluator"
	CategoryRepair       Category = "repair"
	CategoryExecutor     Category = "executor"
	CategoryOrchestrator Category = "orchestrator"
	CategoryMCP          Category = "mcp"
	CategoryAudit        Category = "audit"
)

var (
	mu       sync.RWMutex
	base     *zap.Logger
	initOnce sync.Once
)

// Init builds the process-wide zap logger. level is one of
// debug/info/warn/error; format is "json" or "console". Safe to call once
// at process start; subsequent calls are no-ops.
func Init(level string, format string) error {
	var err error
	initOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
		if format == "console" {
			cfg.Encoding = "console"
			cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		}
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}

		var l *zap.Logger
		l, err = cfg.Build()
		if err != nil {
			return
		}
		mu.Lock()
		base = l
		mu.Unlock()
	})
	return err
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// root returns the process logger, falling back to a bare stderr logger if
// Init was never called (e.g. in unit tests).
func root() *zap.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		return l
	}
	fallback, err := zap.NewDevelopment()
	if err != nil {
		// last resort: a no-op core so logging never crashes a request
		return zap.NewNop()
	}
	return fallback
}

// For returns a logger scoped to category, with category attached as a
// structured field on every entry.
func For(category Category) *zap.SugaredLogger {
	return root().With(zap.String("category", string(category))).Sugar()
}

// WithRequest returns a logger scoped to category and tagged with the
// given request id, so every stage of one request's logs can be grepped
// by request_id.
func WithRequest(category Category, requestID string) *zap.SugaredLogger {
	return root().With(
		zap.String("category", string(category)),
		zap.String("request_id", requestID),
	).Sugar()
}

// Sync flushes buffered log entries. Call before process exit.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

// Fatal logs at error level and exits 3 (internal error per the CLI exit
// code contract), mirroring the teacher's boot-failure handling.
func Fatal(category Category, msg string, args ...interface{}) {
	For(category).Errorf(msg, args...)
	Sync()
	os.Exit(3)
}
