package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

const storePingTimeout = 2 * time.Second

// Pinger reports whether a backend is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientCounter reports connected websocket clients
type ClientCounter interface {
	ClientCount() int
}

// SessionCounter reports open wizard sessions
type SessionCounter interface {
	Count() int
}

// HealthDeps are the components a HealthService inspects. Nil components
// are reported as not configured.
type HealthDeps struct {
	Store     Pinger
	Hub       ClientCounter
	Sessions  SessionCounter
	Version   string
	BuildTime string
	Logger    *slog.Logger
}

// HealthService provides health check functionality
type HealthService struct {
	deps      HealthDeps
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Count   *int   `json:"count,omitempty"`
}

// Health states
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	StatusAlive    = "alive"
)

// NewHealthService creates a health service
func NewHealthService(deps HealthDeps) *HealthService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &HealthService{
		deps:      deps,
		startTime: time.Now(),
		logger:    deps.Logger.With(slog.String("service", "health")),
	}
}

// HealthCheck reports every component. The overall status is degraded when
// the record store cannot be reached.
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
		Version:   hs.deps.Version,
		Services: map[string]ServiceHealth{
			"store":     hs.checkStore(ctx),
			"websocket": hs.checkWebSocket(),
			"wizard":    hs.checkWizard(),
		},
	}
	if status.Services["store"].Status != StatusReady {
		status.Status = StatusDegraded
	}

	hs.logger.DebugContext(ctx, "health_checked", slog.String("status", status.Status))
	return status
}

// LivenessCheck reports that the process is serving
func (hs *HealthService) LivenessCheck(context.Context) HealthStatus {
	return HealthStatus{
		Status:    StatusAlive,
		Timestamp: time.Now().UTC(),
		Version:   hs.deps.Version,
		Runtime: map[string]interface{}{
			"uptime_seconds": time.Since(hs.startTime).Seconds(),
			"go_version":     runtime.Version(),
			"goroutines":     runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":    hs.deps.Version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"start_time": hs.startTime.Format(time.RFC3339),
	}
	if hs.deps.BuildTime != "" {
		result["build_time"] = hs.deps.BuildTime
	}
	return result
}

func (hs *HealthService) checkStore(ctx context.Context) ServiceHealth {
	if hs.deps.Store == nil {
		return ServiceHealth{Status: StatusNotReady, Message: "record store not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, storePingTimeout)
	defer cancel()
	if err := hs.deps.Store.Ping(ctx); err != nil {
		hs.logger.WarnContext(ctx, "store_ping_failed", slog.String("error", err.Error()))
		return ServiceHealth{Status: StatusNotReady, Message: "record store unreachable"}
	}
	return ServiceHealth{Status: StatusReady}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.deps.Hub == nil {
		return ServiceHealth{Status: StatusNotReady, Message: "websocket hub not configured"}
	}
	n := hs.deps.Hub.ClientCount()
	return ServiceHealth{Status: StatusReady, Count: &n}
}

func (hs *HealthService) checkWizard() ServiceHealth {
	if hs.deps.Sessions == nil {
		return ServiceHealth{Status: StatusNotReady, Message: "wizard service not configured"}
	}
	n := hs.deps.Sessions.Count()
	return ServiceHealth{Status: StatusReady, Count: &n}
}
