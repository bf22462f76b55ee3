package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadFrom tests loading with various file and environment combinations
func TestLoadFrom(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		yaml        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults with no file and no env",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.True(t, cfg.Server.RateLimit.Enabled)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, "both", cfg.Logging.Output)

				assert.Equal(t, 1e-8, cfg.Calibration.Tolerance)
				assert.Equal(t, 100000, cfg.Calibration.MaxIterations)
				assert.Equal(t, 1000, cfg.Calibration.SeriesMaxIterations)
				assert.Equal(t, CDFClosedForm, cfg.Calibration.CDFMethod)
				assert.Equal(t, 0.01, cfg.Calibration.DefaultRate)
				assert.Equal(t, 1.0, cfg.Calibration.DefaultHorizon)
				assert.Equal(t, 120, cfg.Calibration.Window)

				assert.Equal(t, 4, cfg.Jobs.Workers)
				assert.Equal(t, "data/reports", cfg.Paths.ReportsDir)
			},
		},
		{
			name: "file overrides defaults",
			yaml: `
server:
  port: 9191
  read_timeout: 5s
calibration:
  cdf_method: QUADRATURE
  workers: 4
  window: 60
jobs:
  workers: 2
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9191, cfg.Server.Port)
				assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
				assert.Equal(t, CDFQuadrature, cfg.Calibration.CDFMethod)
				assert.Equal(t, 4, cfg.Calibration.Workers)
				assert.Equal(t, 60, cfg.Calibration.Window)
				assert.Equal(t, 2, cfg.Jobs.Workers)
				assert.Equal(t, 1e-8, cfg.Calibration.Tolerance)
			},
		},
		{
			name: "env overrides file",
			yaml: `
server:
  port: 9191
calibration:
  workers: 4
`,
			env: map[string]string{
				"MERTON_SERVER_PORT":                      "7070",
				"MERTON_CALIBRATION_TOLERANCE":            "1e-10",
				"MERTON_CALIBRATION_SERIES_MAX_ITERATIONS": "50",
				"MERTON_LOGGING_LEVEL":                    "DEBUG",
				"MERTON_SERVER_RATE_LIMIT_RPS":            "5",
				"MERTON_SERVER_ALLOWED_ORIGINS":           "http://a.local,http://b.local",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7070, cfg.Server.Port)
				assert.Equal(t, 4, cfg.Calibration.Workers)
				assert.Equal(t, 1e-10, cfg.Calibration.Tolerance)
				assert.Equal(t, 50, cfg.Calibration.SeriesMaxIterations)
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, 5.0, cfg.Server.RateLimit.RPS)
				assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.Server.AllowedOrigins)
			},
		},
		{
			name: "text format",
			env:  map[string]string{"MERTON_LOGGING_FORMAT": "TEXT"},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "text", cfg.Logging.Format)
			},
		},
		{
			name:    "unknown log format",
			env:     map[string]string{"MERTON_LOGGING_FORMAT": "xml"},
			wantErr: true,
		},
		{
			name:    "unknown cdf method",
			env:     map[string]string{"MERTON_CALIBRATION_CDF_METHOD": "simpson"},
			wantErr: true,
		},
		{
			name:    "invalid port",
			yaml:    "server:\n  port: 70000\n",
			wantErr: true,
		},
		{
			name:    "malformed env value",
			env:     map[string]string{"MERTON_SERVER_PORT": "not-a-number"},
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "server: [port",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var file string
			if tt.yaml != "" {
				file = filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(file, []byte(tt.yaml), 0644))
			}

			cfg, err := LoadFrom(file)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadUsesConfigFileEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "merton.yaml")
	require.NoError(t, os.WriteFile(file, []byte("jobs:\n  queue_size: 7\n"), 0644))
	t.Setenv(ConfigFileEnv, file)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Jobs.QueueSize)
}

// TestCalibrationValidate tests the calibration section checks
func TestCalibrationValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CalibrationConfig)
		wantErr bool
	}{
		{"defaults", func(c *CalibrationConfig) {}, false},
		{"quadrature", func(c *CalibrationConfig) { c.CDFMethod = CDFQuadrature }, false},
		{"quadrature without tolerance", func(c *CalibrationConfig) {
			c.CDFMethod = CDFQuadrature
			c.QuadratureTolerance = 0
		}, true},
		{"zero tolerance", func(c *CalibrationConfig) { c.Tolerance = 0 }, true},
		{"zero cap", func(c *CalibrationConfig) { c.MaxIterations = 0 }, true},
		{"zero series cap", func(c *CalibrationConfig) { c.SeriesMaxIterations = 0 }, true},
		{"zero workers", func(c *CalibrationConfig) { c.Workers = 0 }, true},
		{"zero horizon", func(c *CalibrationConfig) { c.DefaultHorizon = 0 }, true},
		{"window of one", func(c *CalibrationConfig) { c.Window = 1 }, true},
		{"negative rate allowed", func(c *CalibrationConfig) { c.DefaultRate = -0.01 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default().Calibration
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
	assert.Equal(t, "prometheus", cfg.Telemetry.MetricExporter)
}
