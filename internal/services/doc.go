// Package services implements the business logic layer between the HTTP
// handlers and the calibration engine.
//
// CalibrationService validates requests with validator struct tags, fills in
// configured defaults (rate, horizon, numerical settings), runs the merton
// calibrators inside OpenTelemetry spans and records calibration metrics.
// Non-convergence is returned as data; only rejected input and pricing domain
// failures come back as errors, unchanged so handlers can map them:
//
//	resp, err := svc.CalibrateTimeSeries(ctx, services.TimeSeriesRequest{
//	    Equities: caps,
//	    Debt:     debt,
//	})
//
// CalibrateDataset loads a firm's price and fundamentals tables from the data
// directory first, so a firm can be scored by code.
//
// HealthService serves liveness, readiness and version information. Other
// components register readiness checks with AddCheck.
package services
