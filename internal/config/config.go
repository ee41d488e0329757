// Package config loads the process-wide configuration for the AI-Ops
// daemon from a JSON file, applies environment-variable overrides, and
// validates the result. Mirrors the teacher's internal/config loading
// convention (file + env overrides + validation).
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aiops/fleet-intel/internal/apperr"
)

// MetricsConfig controls the metrics collector (§6 metrics-config.json).
type MetricsConfig struct {
	IntervalMs    int64 `json:"intervalMs"`
	RetentionDays int   `json:"retentionDays"`
	Enabled       bool  `json:"enabled"`
}

// DeviceConfig describes one managed device's connection parameters
// (§1's fleet scope: the daemon drives N devices, each through its own
// collab.DeviceClient).
type DeviceConfig struct {
	ID       string `json:"id"`
	BaseURL  string `json:"baseUrl"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Config is the full process configuration.
type Config struct {
	DataDir              string        `json:"dataDir"`
	LogFormat            string        `json:"logFormat"`
	LogLevel             string        `json:"logLevel"`
	Metrics              MetricsConfig `json:"metrics"`
	AuditRetentionDays   int           `json:"auditRetentionDays"`
	DecisionRetentionDays int          `json:"decisionRetentionDays"`
	AnalysisRetentionDays int          `json:"analysisRetentionDays"`
	SnapshotRetentionMax int           `json:"snapshotRetentionMax"`
	FingerprintTTL       time.Duration `json:"fingerprintTTLMs"`
	DeviceTimeout        time.Duration `json:"deviceTimeoutMs"`
	LLMTimeout           time.Duration `json:"llmTimeoutMs"`
	SyslogListenAddr     string        `json:"syslogListenAddr"`
	Devices              []DeviceConfig `json:"devices"`
	NotificationChannels map[string]string `json:"notificationChannels"`
}

// Default returns the configuration's zero-value-safe defaults.
func Default() Config {
	return Config{
		DataDir:   "data/ai-ops",
		LogFormat: "console",
		LogLevel:  "info",
		Metrics: MetricsConfig{
			IntervalMs:    60_000,
			RetentionDays: 7,
			Enabled:       true,
		},
		AuditRetentionDays:    90,
		DecisionRetentionDays: 90,
		AnalysisRetentionDays: 30,
		SnapshotRetentionMax:  30,
		FingerprintTTL:        5 * time.Minute,
		DeviceTimeout:         10 * time.Second,
		LLMTimeout:            30 * time.Second,
		SyslogListenAddr:      ":1514",
	}
}

// Load reads configuration from path (if it exists), applies
// AIOPS_-prefixed environment variable overrides, validates, and
// returns the result. A missing file is not an error — defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := json.Unmarshal(data, &cfg); err != nil {
				return Config{}, apperr.Wrap(apperr.Validation, "config.Load", "malformed config file", err)
			}
			var ms struct {
				FingerprintTTLMs *int64 `json:"fingerprintTTLMs"`
				DeviceTimeoutMs  *int64 `json:"deviceTimeoutMs"`
				LLMTimeoutMs     *int64 `json:"llmTimeoutMs"`
			}
			_ = json.Unmarshal(data, &ms)
			if ms.FingerprintTTLMs != nil {
				cfg.FingerprintTTL = time.Duration(*ms.FingerprintTTLMs) * time.Millisecond
			}
			if ms.DeviceTimeoutMs != nil {
				cfg.DeviceTimeout = time.Duration(*ms.DeviceTimeoutMs) * time.Millisecond
			}
			if ms.LLMTimeoutMs != nil {
				cfg.LLMTimeout = time.Duration(*ms.LLMTimeoutMs) * time.Millisecond
			}
		} else if !os.IsNotExist(err) {
			return Config{}, apperr.Wrap(apperr.IO, "config.Load", "reading config file", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("AIOPS_DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := os.LookupEnv("AIOPS_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("AIOPS_LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}
	if v, ok := os.LookupEnv("AIOPS_METRICS_INTERVAL_MS"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Metrics.IntervalMs = n
		}
	}
	if v, ok := os.LookupEnv("AIOPS_SYSLOG_ADDR"); ok {
		cfg.SyslogListenAddr = v
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return apperr.New(apperr.Validation, "config.Load", "dataDir must not be empty")
	}
	if cfg.Metrics.IntervalMs <= 0 {
		return apperr.New(apperr.Validation, "config.Load", "metrics.intervalMs must be positive")
	}
	if cfg.SnapshotRetentionMax <= 0 {
		return apperr.New(apperr.Validation, "config.Load", "snapshotRetentionMax must be positive")
	}
	return nil
}

// Path joins the data dir with the given relative path components,
// matching the persisted-state layout in §6.
func (c Config) Path(elems ...string) string {
	return filepath.Join(append([]string{c.DataDir}, elems...)...)
}
