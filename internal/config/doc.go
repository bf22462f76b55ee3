// Package config provides centralized configuration management for the
// calibration service and CLI. It loads configuration from multiple sources,
// validates it, and resolves the file system layout used for datasets,
// reports and logs.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern MERTON_<SECTION>_<FIELD>:
//
//	MERTON_SERVER_PORT=8080
//	MERTON_LOGGING_LEVEL=debug
//	MERTON_CALIBRATION_CDF_METHOD=quadrature
//	MERTON_CALIBRATION_WORKERS=4
//	MERTON_JOBS_WORKERS=8
//
// MERTON_CONFIG_FILE points at the YAML file. Without it, config.yaml and
// configs/config.yaml are tried.
//
// # Calibration Settings
//
// The calibration section carries the convergence tolerance (1e-8), the
// single-point iteration cap (100000), the time-series iteration cap (1000),
// the minimizer step tolerance and stall count, the per-observation worker
// count and the normal CDF method (closed_form or quadrature).
//
// # Path Management
//
//	paths := config.ResolvePaths(baseDir, cfg.Paths)
//	reportPath := paths.GetReportPath(config.ReportFileName("005930", "csv"))
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
