package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/chrome"
	"github.com/soulbrowser/soulbrowser/internal/config"
	"github.com/soulbrowser/soulbrowser/internal/registry"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
)

// Server represents the HTTP control surface (spec.md §6): flow submit/
// poll/cancel, SSE progress streaming, bearer-token issuance and health.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	httpServer *http.Server
	startTime  time.Time
	mux        *http.ServeMux

	sseManager *SSEManager
	sseHandler *SSEHandler

	authHandler     *AuthHandler
	flowHandler     *FlowHandler
	snapshotHandler *SnapshotHandler

	chromePool *chrome.ChromePool
	registry   *registry.Registry
	scheduler  *scheduler.SchedulerRuntime
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *zap.Logger) *Server {
	sseManager := NewSSEManager(logger)

	s := &Server{
		config:     cfg,
		logger:     logger,
		startTime:  time.Now(),
		mux:        http.NewServeMux(),
		sseManager: sseManager,
		sseHandler: NewSSEHandler(sseManager, logger),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.corsMiddleware(s.mux),
		ReadTimeout:  time.Duration(cfg.Server.Timeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.Timeout) * time.Second,
	}

	return s
}

// setupRoutes configures the HTTP routes that don't depend on an
// optionally-wired handler.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.Handle("/api/v1/flows/stream", s.sseHandler)
}

// SetAuthHandler wires the bearer-token issuance endpoint.
func (s *Server) SetAuthHandler(handler *AuthHandler) {
	s.authHandler = handler
	s.mux.Handle("/api/v1/auth/token", handler)
}

// SetFlowHandler wires the flow submit/poll/cancel endpoints.
func (s *Server) SetFlowHandler(handler *FlowHandler) {
	s.flowHandler = handler
	s.mux.Handle("/api/v1/flows", handler)
	s.mux.Handle("/api/v1/flows/", handler)
}

// SetSnapshotHandler wires the page structural-snapshot endpoint.
func (s *Server) SetSnapshotHandler(handler *SnapshotHandler) {
	s.snapshotHandler = handler
	s.mux.Handle("/api/v1/pages/", handler)
}

// SetChromePool lets the health handler report Chrome pool liveness.
func (s *Server) SetChromePool(pool *chrome.ChromePool) {
	s.chromePool = pool
}

// SetRegistry lets the health handler report registry liveness.
func (s *Server) SetRegistry(reg *registry.Registry) {
	s.registry = reg
}

// SetScheduler lets the health handler report scheduler liveness.
func (s *Server) SetScheduler(sched *scheduler.SchedulerRuntime) {
	s.scheduler = sched
}

// SSEManager returns the server's SSE manager.
func (s *Server) SSEManager() *SSEManager {
	return s.sseManager
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.httpServer.Addr),
	)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware handles CORS headers and preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.isOriginAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed checks if the origin is in the allowed list.
func (s *Server) isOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}

	for _, allowed := range s.config.Server.CORSOrigins {
		if allowed == "*" {
			return true
		}
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}

	return false
}

// Uptime returns the server uptime in seconds.
func (s *Server) Uptime() int64 {
	return int64(time.Since(s.startTime).Seconds())
}
