// Package runner embeds the agent runner supervisor: a process registry
// with durable state, output capture, event streaming and an HTTP API.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fiercefairy/PortOS-sub006/internal/config"
	"github.com/fiercefairy/PortOS-sub006/internal/events"
	"github.com/fiercefairy/PortOS-sub006/internal/history"
	"github.com/fiercefairy/PortOS-sub006/internal/history/factory"
	"github.com/fiercefairy/PortOS-sub006/internal/jobdir"
	"github.com/fiercefairy/PortOS-sub006/internal/manager"
	"github.com/fiercefairy/PortOS-sub006/internal/metrics"
	"github.com/fiercefairy/PortOS-sub006/internal/server"
	"github.com/fiercefairy/PortOS-sub006/internal/state"
	tlsutil "github.com/fiercefairy/PortOS-sub006/internal/tls"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type Manager = manager.Manager

type SpawnRequest = manager.SpawnRequest

type RunRequest = manager.RunRequest

type ActiveJob = manager.ActiveJob

type Stats = manager.Stats

type Health = manager.Health

type Event = events.Event

type Subscription = events.Subscription

type HistorySink = history.Sink

// httpShutdownTimeout bounds how long Serve waits for open requests after
// the supervisor has drained.
const httpShutdownTimeout = 5 * time.Second

// LoadConfig reads a TOML config file. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// DefaultConfig returns the built-in configuration with environment
// overrides applied.
func DefaultConfig() (*Config, error) { return config.Default() }

// Supervisor wires the registry, its stores and the HTTP surface together.
type Supervisor struct {
	cfg    *Config
	log    *slog.Logger
	state  *state.Store
	hub    *events.Hub
	mgr    *manager.Manager
	router *server.Router
}

// New opens the state store and job directory and builds the registry.
// Nothing is started until Start or Serve.
func New(cfg *Config, log *slog.Logger) (*Supervisor, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if log == nil {
		log = slog.Default()
	}
	st, err := state.Open(cfg.Storage.StateFile, log)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	dir, err := jobdir.New(cfg.Storage.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("open output dir: %w", err)
	}
	globalEnv, err := cfg.GlobalEnv()
	if err != nil {
		return nil, err
	}

	hub := events.NewHub()
	hub.OnDrop = func(t events.Type) { metrics.IncDroppedEvent(string(t)) }

	mgr := manager.New(st, dir, hub, manager.Options{
		AllowedCommands:  cfg.Supervisor.AllowedCommands,
		GracePeriod:      cfg.Supervisor.GracePeriod,
		DrainTimeout:     cfg.Supervisor.DrainTimeout,
		OrphanCheckDelay: cfg.Supervisor.OrphanCheckDelay,
		Env:              globalEnv,
		Logger:           log,
	})

	var sinks []history.Sink
	for _, dsn := range cfg.EnabledHistory() {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			log.Warn("history sink disabled", "dsn", redactDSN(dsn), "error", err)
			continue
		}
		sinks = append(sinks, s)
	}
	mgr.SetHistorySinks(sinks...)

	ropts := server.Options{Logger: log}
	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		ropts.MetricsHandler = metrics.Handler()
		ropts.MetricsPath = cfg.Metrics.Path
	}

	return &Supervisor{
		cfg:    cfg,
		log:    log,
		state:  st,
		hub:    hub,
		mgr:    mgr,
		router: server.NewRouter(mgr, hub, cfg.Server.BasePath, ropts),
	}, nil
}

// Manager exposes the registry for in-process callers.
func (s *Supervisor) Manager() *Manager { return s.mgr }

// Handler returns the HTTP API for mounting in another server.
func (s *Supervisor) Handler() http.Handler { return s.router.Handler() }

// Subscribe attaches a live event consumer.
func (s *Supervisor) Subscribe(buffer int) *Subscription { return s.hub.Subscribe(buffer) }

// Start schedules the boot-time orphan reconciliation.
func (s *Supervisor) Start() {
	st := s.state.Stats()
	s.log.Info("supervisor starting",
		"state", s.state.Path(),
		"persisted_processes", len(s.state.Processes()),
		"spawned", st.Spawned, "completed", st.Completed, "orphaned", st.Orphaned)
	s.mgr.StartReconciler()
}

// WatchConfig applies edits to the loaded config file's allow-list without
// a restart. Other settings need a restart and are ignored.
func (s *Supervisor) WatchConfig() error {
	return config.Watch(s.cfg.Source(), func(c *Config, err error) {
		if err != nil {
			s.log.Warn("config reload rejected", "path", s.cfg.Source(), "error", err)
			return
		}
		s.mgr.SetAllowedCommands(c.Supervisor.AllowedCommands)
		s.log.Info("allow-list reloaded", "commands", c.Supervisor.AllowedCommands)
	})
}

// Shutdown terminates every job, waits for the drain window and
// disconnects event subscribers. It returns the number of jobs left.
func (s *Supervisor) Shutdown(ctx context.Context) int {
	left := s.mgr.Shutdown(ctx)
	s.hub.Close()
	return left
}

// Serve starts the supervisor and serves the API on the configured listen
// address until ctx is cancelled, then shuts everything down.
func (s *Supervisor) Serve(ctx context.Context) error {
	tlsCfg, err := tlsutil.Setup(s.cfg.Server.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Listen, err)
	}
	return s.serve(ctx, ln, tlsCfg != nil, func(srv *http.Server) { srv.TLSConfig = tlsCfg })
}

func (s *Supervisor) serve(ctx context.Context, ln net.Listener, useTLS bool, configure func(*http.Server)) error {
	srv := server.NewServer(ln.Addr().String(), s.router)
	if configure != nil {
		configure(srv)
	}
	s.Start()

	errCh := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		errCh <- err
	}()
	s.log.Info("api listening", "addr", ln.Addr().String(), "base_path", s.cfg.Server.BasePath, "tls", useTLS)

	select {
	case err := <-errCh:
		s.Shutdown(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	left := s.Shutdown(context.Background())
	if left > 0 {
		s.log.Warn("exiting with jobs still running", "count", left)
	}
	sctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// redactDSN hides a password embedded in a sink DSN.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
