package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"mertoncli/internal/config"
	"mertoncli/internal/infrastructure"
)

// Health status values
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	StatusAlive    = "alive"
)

// ReadinessCheck reports whether a dependency can serve requests
type ReadinessCheck func(ctx context.Context) error

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	paths     *config.Paths
	system    *infrastructure.SystemMetrics
	startTime time.Time
	logger    *slog.Logger

	mu     sync.RWMutex
	checks map[string]ReadinessCheck
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                       `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Version   string                       `json:"version"`
	Runtime   *infrastructure.RuntimeStats `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth     `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// VersionInfo describes the running build
type VersionInfo struct {
	Name      string  `json:"name"`
	Version   string  `json:"version"`
	BuildTime string  `json:"build_time,omitempty"`
	GoVersion string  `json:"go_version"`
	OS        string  `json:"os"`
	Arch      string  `json:"arch"`
	StartTime string  `json:"start_time"`
	Uptime    float64 `json:"uptime_seconds"`
}

// NewHealthService creates a health service. system may be nil, in which
// case runtime stats are sampled without metric registration.
func NewHealthService(version, buildTime string, paths *config.Paths, system *infrastructure.SystemMetrics, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("HealthService initialized",
		slog.String("version", version),
		slog.String("build_time", buildTime))

	hs := &HealthService{
		version:   version,
		buildTime: buildTime,
		paths:     paths,
		system:    system,
		startTime: time.Now(),
		logger:    infrastructure.WithComponent(logger, "health_service"),
		checks:    make(map[string]ReadinessCheck),
	}
	if paths != nil {
		hs.AddCheck("data", hs.checkDataDir)
	}
	return hs
}

// AddCheck registers a readiness check under name, replacing any previous one
func (hs *HealthService) AddCheck(name string, check ReadinessCheck) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.checks[name] = check
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	stats := hs.system.Snapshot()
	status := HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime:   &stats,
	}

	hs.logger.DebugContext(ctx, "HealthCheck: completed",
		slog.String("status", status.Status),
		slog.Int("goroutines", stats.Goroutines))

	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusAlive,
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck runs every registered check. The service is ready only
// when all of them pass.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	hs.mu.RLock()
	names := make([]string, 0, len(hs.checks))
	for name := range hs.checks {
		names = append(names, name)
	}
	checks := make(map[string]ReadinessCheck, len(hs.checks))
	for name, check := range hs.checks {
		checks[name] = check
	}
	hs.mu.RUnlock()
	sort.Strings(names)

	status := HealthStatus{
		Status:    StatusReady,
		Timestamp: time.Now(),
		Version:   hs.version,
		Services:  make(map[string]ServiceHealth, len(names)),
	}

	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			status.Services[name] = ServiceHealth{Status: StatusNotReady, Message: err.Error()}
			status.Status = StatusNotReady
			continue
		}
		status.Services[name] = ServiceHealth{Status: StatusReady}
	}

	if status.Status != StatusReady {
		hs.logger.WarnContext(ctx, "ReadinessCheck: not ready", slog.Any("services", status.Services))
	}
	return status
}

// Version returns version information
func (hs *HealthService) Version() VersionInfo {
	return VersionInfo{
		Name:      config.AppName,
		Version:   hs.version,
		BuildTime: hs.buildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		StartTime: hs.startTime.Format(time.RFC3339),
		Uptime:    time.Since(hs.startTime).Seconds(),
	}
}

// checkDataDir checks the dataset directory is present
func (hs *HealthService) checkDataDir(ctx context.Context) error {
	info, err := os.Stat(hs.paths.DataDir)
	if err != nil {
		return fmt.Errorf("data directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path is not a directory: %s", hs.paths.DataDir)
	}
	return nil
}
