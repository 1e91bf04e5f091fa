package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	log "github.com/sirupsen/logrus"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_PATH", "/var/lib/scout/scout.db")
	t.Setenv("RUN_MODE", "forever")
	t.Setenv("INFOJOBS_CLIENT_ID", "id")
	t.Setenv("INFOJOBS_CLIENT_SECRET", "secret")
	t.Setenv("SHEET_ID", "sheet-123")
	t.Setenv("GOOGLE_CREDENTIALS_FILE", "/etc/scout/sa.json")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/scout/scout.db", cfg.DBPath)
	assert.Equal(t, RunModeForever, cfg.RunMode)
	assert.Equal(t, log.InfoLevel, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.CatalogPath)
	assert.Equal(t, "Companies", cfg.Sheet.SheetName)
	assert.Equal(t, 45*time.Minute, cfg.Scheduler.CycleSleepMin)
	assert.Equal(t, 90*time.Minute, cfg.Scheduler.CycleSleepMax)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("RUN_MODE", "once")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("SHEET_NAME", "Empresas")
	t.Setenv("CATALOG_PATH", "/etc/scout/catalog.yaml")
	t.Setenv("CYCLE_SLEEP_MIN", "10m")
	t.Setenv("CYCLE_SLEEP_MAX", "20m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, RunModeOnce, cfg.RunMode)
	assert.Equal(t, log.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "Empresas", cfg.Sheet.SheetName)
	assert.Equal(t, "/etc/scout/catalog.yaml", cfg.CatalogPath)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.CycleSleepMin)
	assert.Equal(t, 20*time.Minute, cfg.Scheduler.CycleSleepMax)
}

func TestLoadReportsAllMissingKeys(t *testing.T) {
	t.Setenv("DB_PATH", "")
	t.Setenv("RUN_MODE", "")
	t.Setenv("INFOJOBS_CLIENT_ID", "")
	t.Setenv("INFOJOBS_CLIENT_SECRET", "")
	t.Setenv("SHEET_ID", "")
	t.Setenv("GOOGLE_CREDENTIALS_FILE", "")

	_, err := Load()
	require.Error(t, err)
	for _, key := range []string{
		"DB_PATH", "RUN_MODE", "INFOJOBS_CLIENT_ID",
		"INFOJOBS_CLIENT_SECRET", "SHEET_ID", "GOOGLE_CREDENTIALS_FILE",
	} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("RUN_MODE", "sometimes")
	_, err := Load()
	assert.ErrorContains(t, err, "RUN_MODE")

	setRequired(t)
	t.Setenv("LOG_LEVEL", "chatty")
	_, err = Load()
	assert.ErrorContains(t, err, "LOG_LEVEL")

	setRequired(t)
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "yaml")
	_, err = Load()
	assert.ErrorContains(t, err, "LOG_FORMAT")

	setRequired(t)
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("CYCLE_SLEEP_MIN", "soon")
	_, err = Load()
	assert.ErrorContains(t, err, "CYCLE_SLEEP_MIN")

	setRequired(t)
	t.Setenv("CYCLE_SLEEP_MIN", "30m")
	t.Setenv("CYCLE_SLEEP_MAX", "10m")
	_, err = Load()
	assert.ErrorContains(t, err, "not a valid interval")
}
