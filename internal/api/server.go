package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joakim000/grow/internal/control"
	"github.com/joakim000/grow/internal/device"
	"github.com/joakim000/grow/internal/event"
	"github.com/joakim000/grow/internal/infrastructure/config"
	"github.com/joakim000/grow/internal/infrastructure/logging"
	"github.com/joakim000/grow/internal/irrigation"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StatusSource reports the latest per-device snapshot of the control loop.
type StatusSource interface {
	Status() []control.Snapshot
}

// CycleSource lists the watering cycles that are queued or running.
type CycleSource interface {
	Active() []irrigation.CycleInfo
}

// HistorySource reads recorded alert and cycle events for one device.
type HistorySource interface {
	Recent(ctx context.Context, ref device.Ref, limit int) ([]event.Event, error)
}

// EventSource holds the most recent events in memory.
type EventSource interface {
	Events(types ...event.Type) []event.Event
}

// HealthChecker is implemented by infrastructure components that can report
// their own health (database, MQTT client).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Status   StatusSource
	Cycles   CycleSource
	History  HistorySource            // optional; history routes return 503 without it
	Events   EventSource              // optional; /api/v1/events returns 503 without it
	Metrics  http.Handler             // optional; /metrics returns 404 without it
	Checks   map[string]HealthChecker // optional; reported by /api/v1/health
	Version  string
}

// Server is the read-only HTTP status server of the controller.
//
// It is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	registry  *device.Registry
	status    StatusSource
	cycles    CycleSource
	history   HistorySource
	events    EventSource
	metrics   http.Handler
	checks    map[string]HealthChecker
	version   string
	startTime time.Time
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, registry, status and cycle sources)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Status == nil {
		return nil, fmt.Errorf("status source is required")
	}
	if deps.Cycles == nil {
		return nil, fmt.Errorf("cycle source is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		registry:  deps.Registry,
		status:    deps.Status,
		cycles:    deps.Cycles,
		history:   deps.History,
		events:    deps.Events,
		metrics:   deps.Metrics,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Handler returns the fully wired router. Start uses it for the listener;
// tests drive it through httptest.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
