package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/fleet-telemetry-core/internal/audit"
	"github.com/nerrad567/fleet-telemetry-core/internal/device"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/config"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/database"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/logging"
	"github.com/nerrad567/fleet-telemetry-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/fleet-telemetry-core/internal/ingest"
	"github.com/nerrad567/fleet-telemetry-core/internal/query"
	"github.com/nerrad567/fleet-telemetry-core/internal/telemetry"
	"github.com/nerrad567/fleet-telemetry-core/internal/transport"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Streams   *telemetry.Streams
	Registry  *device.Registry
	Engine    *query.Engine
	Transport *transport.Transport

	// Optional collaborators.
	AuditRepo audit.Repository
	DB        *database.DB
	MQTT      *mqtt.Client
	Ingest    *ingest.Bridge
	InfluxDB  *influxdb.Client

	Version string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	streams   *telemetry.Streams
	registry  *device.Registry
	engine    *query.Engine
	transport *transport.Transport
	auditRepo audit.Repository
	db        *database.DB
	mqtt      *mqtt.Client
	ingest    *ingest.Bridge
	influx    *influxdb.Client
	version   string
	startTime time.Time

	server    *http.Server
	hub       *Hub
	auditCh   chan *audit.Entry
	auditDone chan struct{}
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The WebSocket hub is created here and subscribed to every stream.
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, streams, registry, engine, transport)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Streams == nil:
		return nil, fmt.Errorf("telemetry streams are required")
	case deps.Registry == nil:
		return nil, fmt.Errorf("device registry is required")
	case deps.Engine == nil:
		return nil, fmt.Errorf("query engine is required")
	case deps.Transport == nil:
		return nil, fmt.Errorf("transport is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		streams:   deps.Streams,
		registry:  deps.Registry,
		engine:    deps.Engine,
		transport: deps.Transport,
		auditRepo: deps.AuditRepo,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		ingest:    deps.Ingest,
		influx:    deps.InfluxDB,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
	}
	if s.auditRepo != nil {
		s.auditCh = make(chan *audit.Entry, auditChanSize)
	}

	s.streams.Subscribe(s.hub)
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and the audit writer, then launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for the background goroutines (not the listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	if s.auditCh != nil {
		s.auditDone = make(chan struct{})
		go func() {
			defer close(s.auditDone)
			s.drainAuditLog(srvCtx)
		}()
	}

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
// It waits up to 10 seconds for in-flight requests to complete, then
// flushes pending audit entries.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)

	if s.cancel != nil {
		s.cancel()
	}
	if s.auditDone != nil {
		<-s.auditDone
	}

	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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
