package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "postgres", cfg.Dialect)
	assert.Equal(t, 3, cfg.Attempts.MaxAttempts)
	assert.Equal(t, 100, cfg.RowLimits.DefaultMaxRows)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Generation.EasyK, cfg.Generation.EasyK)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nlsql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dialect: postgres
attempts:
  max_attempts: 5
row_limits:
  default_max_rows: 50
  ceiling_rows: 500
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Attempts.MaxAttempts)
	assert.Equal(t, 50, cfg.RowLimits.DefaultMaxRows)
}

func TestEnvOverridesFileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nlsql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("attempts:\n  max_attempts: 5\n"), 0o644))

	t.Setenv("NLSQL_MAX_ATTEMPTS", "7")
	t.Setenv("NLSQL_DATABASE_DSN", "postgres://example/test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Attempts.MaxAttempts)
	assert.Equal(t, "postgres://example/test", cfg.Database.DSN)
}

func TestValidateRejectsInconsistentLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RowLimits.CeilingRows = 10
	cfg.RowLimits.DefaultMaxRows = 100
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownEmbeddingProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "unknown"
	assert.Error(t, cfg.Validate())
}
