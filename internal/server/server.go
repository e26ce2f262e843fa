// Package server composes the HTTP surface of the control plane: login, the
// control API, the terminal channel and metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vburojevic/opctl/internal/auth"
	"github.com/vburojevic/opctl/internal/config"
	"github.com/vburojevic/opctl/internal/control"
	"github.com/vburojevic/opctl/internal/logcapture"
	"github.com/vburojevic/opctl/internal/metrics"
	"github.com/vburojevic/opctl/internal/platform"
	"github.com/vburojevic/opctl/internal/protocol"
	"github.com/vburojevic/opctl/internal/session"
	"github.com/vburojevic/opctl/internal/terminal"
)

const shutdownTimeout = 5 * time.Second

// RegistryLogger names the logger the session registry writes to. Log capture
// must ignore it: those entries describe broadcasts of captured lines.
const RegistryLogger = "registry"

// Deps are built once per process and survive reconfiguration.
type Deps struct {
	Platform platform.Platform
	Capture  *logcapture.Capture
	Tokens   *auth.TokenManager
	Logger   *zap.Logger
	Clock    clock.Clock
}

// Server owns the router and the pieces that are swapped on reconfiguration.
type Server struct {
	deps     Deps
	logger   *zap.Logger
	registry *session.Registry
	group    *terminal.Group
	control  *control.Handler
	router   chi.Router

	listen   string
	terminal atomic.Pointer[terminal.Endpoint]
	auth     atomic.Pointer[auth.Service]

	unsubscribe func()
}

// New wires the server and subscribes the session registry to captured logs.
// Close releases the subscription.
func New(cfg *config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}

	s := &Server{
		deps:     deps,
		logger:   deps.Logger.Named("http"),
		registry: session.NewRegistry(cfg.Terminal.MaxSendFailures, deps.Logger.Named(RegistryLogger)),
		group:    terminal.NewGroup(),
		control:  control.New(deps.Platform, deps.Logger.Named("control")),
		listen:   cfg.Listen,
	}
	s.Reconfigure(cfg)

	s.unsubscribe = deps.Capture.Subscribe(func(line string) {
		s.registry.Broadcast(protocol.Log{Line: line})
	})

	s.router = s.routes()
	return s
}

// Reconfigure swaps the terminal endpoint and login service for ones built
// from cfg. Open channels keep running; only new channels and logins see the
// new access key. Listen address changes need a restart.
func (s *Server) Reconfigure(cfg *config.Config) {
	ep := terminal.NewEndpoint(terminal.Config{
		AccessKey:         cfg.AccessKey,
		SendBuffer:        cfg.Terminal.SendBuffer,
		MessagesPerSecond: cfg.Terminal.MessagesPerSecond,
		Burst:             cfg.Terminal.Burst,
		PingInterval:      cfg.Terminal.PingInterval,
		WriteWait:         cfg.Terminal.WriteWait,
		MaxMessageSize:    cfg.Terminal.MaxMessageSize,
	}, terminal.Deps{
		Registry: s.registry,
		History:  s.deps.Capture,
		Platform: s.deps.Platform,
		Group:    s.group,
		Logger:   s.deps.Logger.Named("terminal"),
		Clock:    s.deps.Clock,
	})

	s.terminal.Store(ep)
	s.auth.Store(auth.NewService(cfg.AccessKey, s.deps.Tokens, s.deps.Logger.Named("auth")))
}

// Registry returns the session registry shared by every endpoint.
func (s *Server) Registry() *session.Registry { return s.registry }

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/healthz", s.health)
	r.Post("/api/auth", func(w http.ResponseWriter, r *http.Request) {
		s.auth.Load().HandleLogin(w, r)
	})
	r.Get("/terminal", func(w http.ResponseWriter, r *http.Request) {
		s.terminal.Load().ServeHTTP(w, r)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Mount("/api/control", s.control.Routes())
		r.Mount("/api/players", s.control.PlayerRoutes())
		r.Mount("/api/whitelist", s.control.WhitelistRoutes())
		r.Handle("/metrics", metrics.Handler())
	})
	return r
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.auth.Load().Middleware(next).ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves until ctx is done, then closes every terminal channel
// and shuts the HTTP server down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("serving control plane", zap.String("addr", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.group.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("terminal channels did not close in time", zap.Error(err))
		}
		return httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// Close stops forwarding captured logs to terminal sessions.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}
