// Package http implements the HTTP handlers of the calibration service.
// Handlers stay thin: they decode the request, delegate to a service and
// render the result. Every failure goes through errors.ErrorHandler so clients
// always receive RFC 7807 problem details.
//
// # Routes
//
//	POST   /api/calibrations/single       single-point calibration
//	POST   /api/calibrations/timeseries   time-series calibration
//	POST   /api/calibrations/dataset      calibration from dataset files
//	POST   /api/jobs                      submit a batch, answers 202
//	GET    /api/jobs                      list job summaries
//	GET    /api/jobs/{id}                 job with per-item results
//	DELETE /api/jobs/{id}                 cancel a job
//	GET    /api/jobs/{id}/stream          websocket progress stream
//	GET    /api/datasets                  dataset files under the data directory
//	GET    /api/reports                   generated reports
//	GET    /api/reports/*                 download one report
//	GET    /api/health[/live|/ready]      health probes
//	GET    /api/version                   build information
//	GET    /api/metrics                   runtime and queue snapshot
//	GET    /metrics                       Prometheus scrape endpoint
//
// Handlers depend on the CalibrationService, JobService and FileCatalog
// interfaces so tests can substitute testify mocks.
package http
