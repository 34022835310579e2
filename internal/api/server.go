package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/labrig/internal/data"
	"github.com/nerrad567/labrig/internal/device"
	"github.com/nerrad567/labrig/internal/infrastructure/config"
	"github.com/nerrad567/labrig/internal/infrastructure/logging"
	"github.com/nerrad567/labrig/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SessionController is the slice of the procedure the API needs.
type SessionController interface {
	Snapshot() session.Snapshot
	Stop()
	AddNote(text string)
}

// Rig is the read-only device view served by the API.
type Rig interface {
	All() []device.Device
	Device(id string) (device.Device, bool)
}

// DataView serves the latest-value cache and delivery stats.
type DataView interface {
	Latest(deviceID string) (data.Record, bool)
	LatestByType(deviceType string) (data.Record, bool)
	Stats() []data.DeviceStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Session SessionController
	Rig     Rig
	Data    DataView
	Version string
}

// Server is the read-only introspection API for a running session.
//
// It serves session and device snapshots, the latest-value cache, and
// a WebSocket record stream. The only mutating endpoint is the
// session stop request.
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	sess    SessionController
	rig     Rig
	data    DataView
	version string

	server  *http.Server
	hub     *Hub
	cancel  context.CancelFunc
	started time.Time
}

// New creates an API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session controller is required")
	}
	if deps.Rig == nil {
		return nil, fmt.Errorf("rig view is required")
	}
	if deps.Data == nil {
		return nil, fmt.Errorf("data view is required")
	}

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		sess:    deps.Session,
		rig:     deps.Rig,
		data:    deps.Data,
		version: deps.Version,
	}, nil
}

// Hub returns the WebSocket hub so it can be registered as a data
// consumer. Valid only after Start.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start launches the WebSocket hub and the HTTP listener in the
// background. Stop with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	s.started = time.Now()
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

// Close gracefully shuts down the listener, waiting for in-flight
// requests up to the shutdown timeout.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
