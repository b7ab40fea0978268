package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fiercefairy/PortOS-sub006/internal/events"
	mng "github.com/fiercefairy/PortOS-sub006/internal/manager"
)

// Router provides embeddable HTTP handlers for the supervisor.
// Endpoints, relative to basePath:
//
//	POST {basePath}/agents                  body: SpawnRequest
//	POST {basePath}/runs                    body: RunRequest
//	GET  {basePath}/agents                  active jobs
//	GET  {basePath}/agents/:id              resource sample
//	GET  {basePath}/agents/:id/output       accumulated or persisted output
//	POST {basePath}/agents/:id/terminate    SIGTERM with escalation
//	POST {basePath}/agents/:id/kill         SIGKILL now
//	POST {basePath}/agents/terminate-all
//	GET  {basePath}/health
//	GET  {basePath}/events                  server-sent events
//	GET  {basePath}{metricsPath}            when metrics are enabled
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *mng.Manager
	hub      *events.Hub
	basePath string
	opts     Options
}

// Options configure optional endpoints.
type Options struct {
	// MetricsHandler is mounted at MetricsPath when non-nil.
	MetricsHandler http.Handler
	MetricsPath    string
	// PingInterval is the SSE keep-alive period. Zero means 15s.
	PingInterval time.Duration
	// EventBuffer is the per-subscriber channel size. Zero means 256.
	EventBuffer int
	Logger      *slog.Logger
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/abc" results in /abc/agents, /abc/health, ...
func NewRouter(mgr *mng.Manager, hub *events.Hub, basePath string, opts Options) *Router {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{mgr: mgr, hub: hub, basePath: sanitizeBase(basePath), opts: opts}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/agents", r.handleSpawn)
	group.POST("/runs", r.handleRun)
	group.GET("/agents", r.handleList)
	group.POST("/agents/terminate-all", r.handleTerminateAll)
	group.GET("/agents/:id", r.handleQuery)
	group.GET("/agents/:id/output", r.handleOutput)
	group.POST("/agents/:id/terminate", r.handleTerminate)
	group.POST("/agents/:id/kill", r.handleKill)
	group.GET("/health", r.handleHealth)
	group.GET("/events", r.handleEvents)
	if r.opts.MetricsHandler != nil {
		group.GET(r.opts.MetricsPath, gin.WrapH(r.opts.MetricsHandler))
	}
	return g
}

// NewServer builds a standalone HTTP server on addr using this router.
// The caller runs ListenAndServe and owns shutdown. WriteTimeout stays
// zero so the event stream is not cut off.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
