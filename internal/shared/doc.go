// Package shared holds helpers used across packages that belong to no single
// layer. Today that is testutil, which captures slog output in tests:
//
//	logger, logs := testutil.NewTestLogger(t)
//	svc := services.NewCalibrationService(cfg, paths, tracer, metrics, logger)
//	...
//	testutil.AssertLogContains(t, logs, slog.LevelInfo, "calibration completed")
package shared
