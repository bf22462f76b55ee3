package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Paths contains all the application paths
type Paths struct {
	BaseDir    string
	DataDir    string
	ReportsDir string
	LogsDir    string
}

// GetPaths returns the application paths relative to the executable location
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	// Resolve symlinks to get the actual executable location
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}

	return ResolvePaths(filepath.Dir(exe), PathsConfig{}), nil
}

// ResolvePaths resolves cfg against base. Absolute entries are kept as-is,
// empty entries fall back to the defaults and a non-empty cfg.BaseDir
// replaces base.
func ResolvePaths(base string, cfg PathsConfig) *Paths {
	if cfg.BaseDir != "" {
		base = cfg.BaseDir
	}

	resolve := func(configured, fallback string) string {
		if configured == "" {
			configured = fallback
		}
		if filepath.IsAbs(configured) {
			return configured
		}
		return filepath.Join(base, filepath.FromSlash(configured))
	}

	return &Paths{
		BaseDir:    base,
		DataDir:    resolve(cfg.DataDir, DefaultDataDir),
		ReportsDir: resolve(cfg.ReportsDir, DefaultReportsDir),
		LogsDir:    resolve(cfg.LogsDir, DefaultLogsDir),
	}
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.ReportsDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// GetDataPath returns the path of an input dataset file
func (p *Paths) GetDataPath(filename string) string {
	return p.resolveUnder(p.DataDir, filename)
}

// GetReportPath returns the path of a generated report
func (p *Paths) GetReportPath(filename string) string {
	return p.resolveUnder(p.ReportsDir, filename)
}

// GetLogPath returns the path of a log file
func (p *Paths) GetLogPath(filename string) string {
	return p.resolveUnder(p.LogsDir, filename)
}

// ReportFileName builds the report file name for a company code and extension,
// e.g. "005930_merton.csv".
func ReportFileName(code, ext string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		code = "firm"
	}
	code = strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(code)
	return fmt.Sprintf("%s_merton.%s", code, strings.TrimPrefix(ext, "."))
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// LogPathResolution logs the resolved directories
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("data", p.DataDir),
			slog.String("reports", p.ReportsDir),
			slog.String("logs", p.LogsDir),
		))
}

func (p *Paths) resolveUnder(dir, filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(dir, filename)
}
