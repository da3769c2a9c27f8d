// Package server wires the HTTP surfaces (web API and webhooks) into one chi router.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/zuychin03/zuychin-assistant/pkg/utils/logging"
)

const shutdownTimeout = 30 * time.Second

// Router is implemented by every HTTP channel
type Router interface {
	Routes(r chi.Router)
}

// Server serves the assistant over HTTP
type Server struct {
	router chi.Router
}

// Option configures Server
type Option func(*config)

type config struct {
	api       Router
	whatsapp  Router
	messenger Router
	mcp       http.Handler
}

// WithAPI mounts the web API on /api
func WithAPI(h Router) Option {
	return func(c *config) { c.api = h }
}

// WithWhatsApp mounts the WhatsApp webhook on /webhooks/whatsapp
func WithWhatsApp(h Router) Option {
	return func(c *config) { c.whatsapp = h }
}

// WithMessenger mounts the Messenger webhook on /webhooks/messenger
func WithMessenger(h Router) Option {
	return func(c *config) { c.messenger = h }
}

// WithMCP mounts the MCP streamable HTTP transport on /mcp
func WithMCP(h http.Handler) Option {
	return func(c *config) { c.mcp = h }
}

// New creates a Server. Surfaces that are not configured are not mounted.
func New(opts ...Option) *Server {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.api != nil {
		r.Route("/api", cfg.api.Routes)
	}
	if cfg.whatsapp != nil {
		r.Route("/webhooks/whatsapp", cfg.whatsapp.Routes)
	}
	if cfg.messenger != nil {
		r.Route("/webhooks/messenger", cfg.messenger.Routes)
	}
	if cfg.mcp != nil {
		r.Mount("/mcp", cfg.mcp)
	}

	return &Server{router: r}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger puts a request scoped logger into the context
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := logging.From(r.Context()).With(
			"request_id", chimw.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
		)
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(logging.With(r.Context(), logger)))

		logger.Debug("http request", "status", ww.Status(), "duration", time.Since(start))
	})
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		logging.From(ctx).Info("http server started", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "http server failed", goerr.V("addr", addr))
		}
		return nil
	case <-ctx.Done():
	}

	logging.From(ctx).Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shut down http server")
	}
	return nil
}
