// Package app wires the calibrator's HTTP service together.
//
// New resolves the working paths, starts OpenTelemetry with a dedicated
// Prometheus registry, builds the calibration service and the batch job
// queue, and mounts every route on a chi router:
//
//	GET    /metrics                     Prometheus exposition
//	GET    /api/health[/ready|/live]    probes
//	GET    /api/version                 build information
//	GET    /api/metrics                 runtime and queue snapshot
//	POST   /api/calibrations/{single,timeseries,dataset}
//	GET    /api/datasets                input files under the data directory
//	GET    /api/reports[/{name}]        list or download generated reports
//	POST   /api/jobs                    submit a batch
//	GET    /api/jobs[/{id}]             list or poll
//	DELETE /api/jobs/{id}               cancel
//	GET    /api/jobs/{id}/stream        websocket progress
//
// Run blocks until SIGINT or SIGTERM, then drains the server and the job
// queue within the configured shutdown timeout. Errors are returned to the
// caller; the package never calls os.Exit.
package app
