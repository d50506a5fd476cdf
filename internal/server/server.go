package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ytget/biliurl"
	"github.com/ytget/biliurl/internal/logger"
	"github.com/ytget/biliurl/types"
)

// Resolver is the part of *biliurl.Resolver the HTTP shell needs.
type Resolver interface {
	Resolve(ctx context.Context, req biliurl.Request) (string, *types.Playback, error)
	ResolveCanonical(ctx context.Context, rawLink string) (string, error)
}

// Config controls the HTTP listener.
type Config struct {
	Addr string
	// DefaultQuality is used when a request carries no qn.
	DefaultQuality string
	// WriteTimeout bounds a whole request, upstream calls included.
	WriteTimeout time.Duration
}

const defaultWriteTimeout = 90 * time.Second

// Server is the HTTP shell around a Resolver.
type Server struct {
	httpServer *http.Server
	log        *logger.ComponentLogger
}

// New wires routes and middleware. It does not start listening.
func New(resolver Resolver, cfg Config) (*Server, error) {
	if resolver == nil {
		return nil, errors.New("server: resolver is required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("server: listen address is required")
	}
	wt := cfg.WriteTimeout
	if wt <= 0 {
		wt = defaultWriteTimeout
	}

	log := logger.WithComponent(logger.ComponentServer)
	h := &handlers{resolver: resolver, defaultQuality: cfg.DefaultQuality, log: log}

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           newRouter(h, log),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      wt,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Start listens and serves until Shutdown. It returns nil after a graceful
// shutdown.
func (s *Server) Start() error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}
	s.log.Info("listening", map[string]interface{}{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func newRouter(h *handlers, log *logger.ComponentLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(corsMiddleware)
	r.Use(loggingMiddleware(log))
	r.Use(middleware.Recoverer)

	r.Get("/api/download", h.download)
	r.Get("/api/getreal", h.getReal)
	r.Get("/healthz", h.healthz)
	return r
}

func loggingMiddleware(log *logger.ComponentLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("request completed", map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
		})
	}
}
