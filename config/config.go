// Package config assembles the process configuration from the environment.
// A .env file, when present, is loaded by main before Load runs; Load itself
// only reads the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RunMode selects between a single cycle and the continuous loop.
type RunMode string

const (
	RunModeOnce    RunMode = "once"
	RunModeForever RunMode = "forever"
)

const (
	_defaultLogLevel  = "info"
	_defaultLogFormat = "text"
	_defaultSheetName = "Companies"

	_defaultCycleSleepMin = 45 * time.Minute
	_defaultCycleSleepMax = 90 * time.Minute
)

// Config is the full process configuration.
type Config struct {
	DBPath      string
	RunMode     RunMode
	LogLevel    log.Level
	LogFormat   string
	CatalogPath string

	InfoJobs  InfoJobsConfig
	Sheet     SheetConfig
	Scheduler SchedulerConfig
}

// InfoJobsConfig carries the marketplace API credentials.
type InfoJobsConfig struct {
	ClientID     string
	ClientSecret string
}

// SheetConfig locates the shared review sheet.
type SheetConfig struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
}

// SchedulerConfig carries the operator-tunable cycle timings.
type SchedulerConfig struct {
	CycleSleepMin time.Duration
	CycleSleepMax time.Duration
}

// Load reads and validates the environment. All missing required keys are
// reported together.
func Load() (*Config, error) {
	var missing []string
	cfg := &Config{
		DBPath:      requireEnv(&missing, "DB_PATH"),
		RunMode:     RunMode(requireEnv(&missing, "RUN_MODE")),
		CatalogPath: strings.TrimSpace(os.Getenv("CATALOG_PATH")),
		InfoJobs: InfoJobsConfig{
			ClientID:     requireEnv(&missing, "INFOJOBS_CLIENT_ID"),
			ClientSecret: requireEnv(&missing, "INFOJOBS_CLIENT_SECRET"),
		},
		Sheet: SheetConfig{
			SpreadsheetID:   requireEnv(&missing, "SHEET_ID"),
			SheetName:       envOr("SHEET_NAME", _defaultSheetName),
			CredentialsFile: requireEnv(&missing, "GOOGLE_CREDENTIALS_FILE"),
		},
	}
	if len(missing) > 0 {
		return nil, errors.Errorf("missing required environment: %s", strings.Join(missing, ", "))
	}

	if cfg.RunMode != RunModeOnce && cfg.RunMode != RunModeForever {
		return nil, errors.Errorf("RUN_MODE must be %q or %q, got %q", RunModeOnce, RunModeForever, cfg.RunMode)
	}

	level, err := log.ParseLevel(envOr("LOG_LEVEL", _defaultLogLevel))
	if err != nil {
		return nil, errors.Wrap(err, "parse LOG_LEVEL")
	}
	cfg.LogLevel = level

	cfg.LogFormat = envOr("LOG_FORMAT", _defaultLogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, errors.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	cfg.Scheduler.CycleSleepMin, err = durationOr("CYCLE_SLEEP_MIN", _defaultCycleSleepMin)
	if err != nil {
		return nil, err
	}
	cfg.Scheduler.CycleSleepMax, err = durationOr("CYCLE_SLEEP_MAX", _defaultCycleSleepMax)
	if err != nil {
		return nil, err
	}
	if cfg.Scheduler.CycleSleepMin <= 0 || cfg.Scheduler.CycleSleepMax < cfg.Scheduler.CycleSleepMin {
		return nil, errors.Errorf("cycle sleep range %s..%s is not a valid interval",
			cfg.Scheduler.CycleSleepMin, cfg.Scheduler.CycleSleepMax)
	}
	return cfg, nil
}

func requireEnv(missing *[]string, key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		*missing = append(*missing, key)
	}
	return v
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}
