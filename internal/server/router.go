package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/dutywatch/internal/event"
	"github.com/loykin/dutywatch/internal/metrics"
	"github.com/loykin/dutywatch/internal/notify"
	"github.com/loykin/dutywatch/internal/supervisor"
)

// Router provides embeddable HTTP handlers for observing the supervisor and
// dropping restart events into its mailbox.
// Endpoints:
//
//	GET  {basePath}/status   supervisor snapshot
//	POST {basePath}/events   body: {"action":"restart","reason":"..."}
//	GET  {basePath}/queue    pending private messages
//	GET  /metrics            prometheus exposition
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	status    StatusSource
	eventFile string
	queue     *notify.Queue
	basePath  string
}

// StatusSource is satisfied by *supervisor.Supervisor.
type StatusSource interface {
	Status() supervisor.Status
}

type RouterConfig struct {
	Status    StatusSource
	EventFile string
	Queue     *notify.Queue // optional
	BasePath  string
}

func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		status:    cfg.Status,
		eventFile: cfg.EventFile,
		queue:     cfg.Queue,
		basePath:  sanitizeBase(cfg.BasePath),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/events", r.handleEvent)
	group.GET("/queue", r.handleQueue)
	return g
}

// Server runs the router on a listener until shut down.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer starts a standalone HTTP server on addr in the background.
func NewServer(addr string, r *Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("api server listening", "addr", addr)
	return s
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type queueResp struct {
	Pending  int      `json:"pending"`
	Messages []string `json:"messages"`
}

func (r *Router) handleStatus(c *gin.Context) {
	if r.status == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: "supervisor not attached"})
		return
	}
	writeJSON(c, http.StatusOK, r.status.Status())
}

func (r *Router) handleEvent(c *gin.Context) {
	var p event.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := p.Validate(); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	if !isSafeReason(p.Reason) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid reason: single line, at most 200 characters"})
		return
	}
	if err := event.Write(r.eventFile, p); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleQueue(c *gin.Context) {
	if r.queue == nil {
		writeJSON(c, http.StatusOK, queueResp{Messages: []string{}})
		return
	}
	msgs, err := r.queue.Load()
	if err != nil && !errors.Is(err, notify.ErrCorruptQueue) {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if msgs == nil {
		msgs = []string{}
	}
	writeJSON(c, http.StatusOK, queueResp{Pending: len(msgs), Messages: msgs})
}
