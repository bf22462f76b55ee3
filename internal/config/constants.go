package config

import "time"

// Application constants
const (
	// Application Info
	AppName    = "Merton Calibrator"
	AppVersion = "1.0.0"

	// Calibration engine defaults
	DefaultTolerance           = 1e-8
	DefaultMaxIterations       = 100000
	DefaultSeriesMaxIterations = 1000
	DefaultStepTolerance       = 1e-8
	DefaultStallIterations     = 64
	DefaultMinimizerIterations = 20000
	DefaultQuadratureTolerance = 1e-12

	// Market defaults
	DefaultRiskFreeRate = 0.01
	DefaultHorizon      = 1.0
	DefaultWindow       = 120

	// Rate Limiting
	DefaultRateLimit = 100 // requests per second
	DefaultBurstSize = 50

	// Network Timeouts
	DefaultRequestTimeout = 60 * time.Second
	StreamPingPeriod      = 30 * time.Second
	StreamPongWait        = 60 * time.Second

	// Batch jobs
	DefaultJobWorkers     = 4
	DefaultJobQueueSize   = 100
	DefaultMaxBatchSize   = 500
	DefaultJobRetention   = 24 * time.Hour
	DefaultStreamInterval = 500 * time.Millisecond

	// File Paths (relative to the base directory)
	DefaultDataDir    = "data"
	DefaultReportsDir = "data/reports"
	DefaultLogsDir    = "logs"
)
