package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "MERTON"

// ConfigFileEnv names the environment variable pointing at a YAML config file.
const ConfigFileEnv = "MERTON_CONFIG_FILE"

// Config represents the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
	Logging     LoggingConfig     `yaml:"logging" envconfig:"LOGGING"`
	Calibration CalibrationConfig `yaml:"calibration" envconfig:"CALIBRATION"`
	Paths       PathsConfig       `yaml:"paths" envconfig:"PATHS"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" envconfig:"TELEMETRY"`
	Jobs        JobsConfig        `yaml:"jobs" envconfig:"JOBS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int             `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration   `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	// AllowedOrigins are extra CORS and websocket origins, comma separated in the environment
	AllowedOrigins  []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// CDF method names accepted by CalibrationConfig.CDFMethod.
const (
	CDFClosedForm = "closed_form"
	CDFQuadrature = "quadrature"
)

// CalibrationConfig holds the numerical settings of the calibration engine
// and the defaults applied to requests that leave them out.
type CalibrationConfig struct {
	Tolerance           float64 `yaml:"tolerance" envconfig:"TOLERANCE"`
	MaxIterations       int     `yaml:"max_iterations" envconfig:"MAX_ITERATIONS"`
	SeriesMaxIterations int     `yaml:"series_max_iterations" envconfig:"SERIES_MAX_ITERATIONS"`
	StepTolerance       float64 `yaml:"step_tolerance" envconfig:"STEP_TOLERANCE"`
	StallIterations     int     `yaml:"stall_iterations" envconfig:"STALL_ITERATIONS"`
	MinimizerIterations int     `yaml:"minimizer_iterations" envconfig:"MINIMIZER_ITERATIONS"`
	Workers             int     `yaml:"workers" envconfig:"WORKERS"`
	CDFMethod           string  `yaml:"cdf_method" envconfig:"CDF_METHOD"`
	QuadratureTolerance float64 `yaml:"quadrature_tolerance" envconfig:"QUADRATURE_TOLERANCE"`
	DefaultRate         float64 `yaml:"default_rate" envconfig:"DEFAULT_RATE"`
	DefaultHorizon      float64 `yaml:"default_horizon" envconfig:"DEFAULT_HORIZON"`
	Window              int     `yaml:"window" envconfig:"WINDOW"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	BaseDir    string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR"`
	ReportsDir string `yaml:"reports_dir" envconfig:"REPORTS_DIR"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	EnableTracing  bool    `yaml:"enable_tracing" envconfig:"ENABLE_TRACING"`
	EnableMetrics  bool    `yaml:"enable_metrics" envconfig:"ENABLE_METRICS"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// JobsConfig contains batch job queue configuration
type JobsConfig struct {
	Workers        int           `yaml:"workers" envconfig:"WORKERS"`
	QueueSize      int           `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
	MaxBatchSize   int           `yaml:"max_batch_size" envconfig:"MAX_BATCH_SIZE"`
	Retention      time.Duration `yaml:"retention" envconfig:"RETENTION"`
	StreamInterval time.Duration `yaml:"stream_interval" envconfig:"STREAM_INTERVAL"`
}

// Load loads configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file. An empty path skips the file.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	// Load from config file if given
	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Environment variables override file values. Fields carry no default
	// tags so unset variables leave the file and default values alone.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// normalize lower-cases enumerations and fills values that must never be empty
func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	c.Logging.Output = strings.ToLower(c.Logging.Output)
	c.Calibration.CDFMethod = strings.ToLower(c.Calibration.CDFMethod)

	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Server.RateLimit.Enabled && (c.Server.RateLimit.RPS <= 0 || c.Server.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive rps and burst")
	}

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output: %q", c.Logging.Output)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	if err := c.Calibration.Validate(); err != nil {
		return err
	}

	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("job workers must be positive")
	}
	if c.Jobs.QueueSize <= 0 {
		return fmt.Errorf("job queue size must be positive")
	}
	if c.Jobs.MaxBatchSize <= 0 {
		return fmt.Errorf("job max batch size must be positive")
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0,1]: %g", c.Telemetry.SampleRatio)
	}

	return nil
}

// Validate checks the numerical calibration settings
func (c CalibrationConfig) Validate() error {
	if !(c.Tolerance > 0) {
		return fmt.Errorf("calibration tolerance must be positive")
	}
	if c.MaxIterations <= 0 || c.SeriesMaxIterations <= 0 {
		return fmt.Errorf("calibration iteration caps must be positive")
	}
	if !(c.StepTolerance > 0) || c.StallIterations <= 0 || c.MinimizerIterations <= 0 {
		return fmt.Errorf("minimizer settings must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("calibration workers must be positive")
	}
	switch c.CDFMethod {
	case CDFClosedForm:
	case CDFQuadrature:
		if !(c.QuadratureTolerance > 0) {
			return fmt.Errorf("quadrature tolerance must be positive")
		}
	default:
		return fmt.Errorf("unknown cdf method: %q", c.CDFMethod)
	}
	if !(c.DefaultHorizon > 0) {
		return fmt.Errorf("default horizon must be positive")
	}
	if c.Window < 2 {
		return fmt.Errorf("window must cover at least two observations: %d", c.Window)
	}
	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv(ConfigFileEnv); path != "" {
		return path
	}

	// Check for config file in common locations
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  DefaultRequestTimeout,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "both",
			FilePath: "logs/app.log",
		},
		Calibration: CalibrationConfig{
			Tolerance:           DefaultTolerance,
			MaxIterations:       DefaultMaxIterations,
			SeriesMaxIterations: DefaultSeriesMaxIterations,
			StepTolerance:       DefaultStepTolerance,
			StallIterations:     DefaultStallIterations,
			MinimizerIterations: DefaultMinimizerIterations,
			Workers:             1,
			CDFMethod:           CDFClosedForm,
			QuadratureTolerance: DefaultQuadratureTolerance,
			DefaultRate:         DefaultRiskFreeRate,
			DefaultHorizon:      DefaultHorizon,
			Window:              DefaultWindow,
		},
		Paths: PathsConfig{
			DataDir:    DefaultDataDir,
			ReportsDir: DefaultReportsDir,
			LogsDir:    DefaultLogsDir,
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			EnableTracing:  true,
			EnableMetrics:  true,
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		Jobs: JobsConfig{
			Workers:        DefaultJobWorkers,
			QueueSize:      DefaultJobQueueSize,
			MaxBatchSize:   DefaultMaxBatchSize,
			Retention:      DefaultJobRetention,
			StreamInterval: DefaultStreamInterval,
		},
	}
}
