package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no config.yaml present

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "jobs", cfg.Jobs.Root)
	assert.Equal(t, "export/lease_jobs.xlsx", cfg.Export.WorkbookPath)
	assert.Equal(t, "Lease Jobs", cfg.Export.SheetName)
	assert.Equal(t, "lease-ocr", cfg.Stages.Preprocess.Bin)
	assert.Equal(t, "lease-extract", cfg.Stages.Extract.Bin)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.OllamaBaseURL)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentJobs)
	assert.InDelta(t, 0.7, cfg.Pipeline.LowConfidenceThreshold, 1e-9)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LEASEREVIEW_STORE_DRIVER", "postgres")
	t.Setenv("LEASEREVIEW_JOBS_ROOT", "/var/lib/lease-review/jobs")
	t.Setenv("LEASEREVIEW_LLM_PROVIDER", "anthropic")
	t.Setenv("LEASEREVIEW_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "/var/lib/lease-review/jobs", cfg.Jobs.Root)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestInitLogger_BadLevel(t *testing.T) {
	require.Error(t, InitLogger(LogConfig{Level: "verbose"}))
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}
