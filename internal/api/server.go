package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/diegolsarmond/jus-connect/internal/config"
	"github.com/diegolsarmond/jus-connect/internal/financial"
	"github.com/diegolsarmond/jus-connect/internal/store"
	"github.com/diegolsarmond/jus-connect/internal/webhook"
)

// Server is the HTTP API server for jus-connect.
type Server struct {
	config      *config.Config
	http        *http.Server
	store       *store.Store
	flows       *financial.Service
	metrics     *Metrics
	rateLimiter *RateLimiter
	hooks       *webhook.Notifier
	now         func() time.Time
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg *config.Config, st *store.Store) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("new server: nil config")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:      cfg,
		store:       st,
		flows:       financial.NewService(st),
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(ctx),
		hooks:       webhook.NewNotifier(cfg.WebhookURL, cfg.WebhookSecret, webhook.Options{}),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}

	s.hooks.Start(ctx)

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	// Periodically drop expired sessions and old auth events
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("cleanup panic", "panic", r)
			}
		}()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.cleanup(s.ctx)
			}
		}
	}()

	return nil
}

func (s *Server) cleanup(ctx context.Context) {
	n, err := s.store.CleanupExpiredAPIKeys(ctx)
	if err != nil {
		slog.Error("cleanup expired api keys", "err", err)
	} else if n > 0 {
		slog.Info("cleaned up expired api keys", "count", n)
	}
	if s.config.AuthEventRetention <= 0 {
		return
	}
	n, err = s.store.CleanupAuthEvents(ctx, s.config.AuthEventRetention)
	if err != nil {
		slog.Error("cleanup auth events", "err", err)
	} else if n > 0 {
		slog.Info("cleaned up auth events", "count", n)
	}
}

// Shutdown gracefully stops the server and its background work.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.hooks.Close()
	s.cancel()
	return err
}

// authed wraps h with authentication, a minimum role and per-key rate limiting.
func (s *Server) authed(role string, h http.HandlerFunc) http.HandlerFunc {
	return s.requireRole(role, s.withRateLimit(h))
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	staff := func(h http.HandlerFunc) http.HandlerFunc { return s.authed(store.RoleAssistant, h) }
	lawyer := func(h http.HandlerFunc) http.HandlerFunc { return s.authed(store.RoleLawyer, h) }
	admin := func(h http.HandlerFunc) http.HandlerFunc { return s.authed(store.RoleAdmin, h) }

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Auth
	mux.HandleFunc("POST /v1/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /v1/auth/logout", s.requireAuth(s.handleLogout))
	mux.HandleFunc("GET /v1/auth/me", s.requireAuth(s.handleMe))

	// Users
	mux.HandleFunc("GET /v1/users", admin(s.handleListUsers))
	mux.HandleFunc("POST /v1/users", admin(s.handleCreateUser))
	mux.HandleFunc("GET /v1/users/{id}", admin(s.handleGetUser))
	mux.HandleFunc("PATCH /v1/users/{id}", admin(s.handleUpdateUser))
	mux.HandleFunc("DELETE /v1/users/{id}", admin(s.handleDeleteUser))

	// Clients
	mux.HandleFunc("GET /v1/clients", staff(s.handleListClients))
	mux.HandleFunc("POST /v1/clients", staff(s.handleCreateClient))
	mux.HandleFunc("GET /v1/clients/{id}", staff(s.handleGetClient))
	mux.HandleFunc("PATCH /v1/clients/{id}", staff(s.handleUpdateClient))
	mux.HandleFunc("DELETE /v1/clients/{id}", lawyer(s.handleDeleteClient))

	// Opportunities
	mux.HandleFunc("GET /v1/opportunities", staff(s.handleListOpportunities))
	mux.HandleFunc("POST /v1/opportunities", staff(s.handleCreateOpportunity))
	mux.HandleFunc("GET /v1/opportunities/{id}", staff(s.handleGetOpportunity))
	mux.HandleFunc("PATCH /v1/opportunities/{id}", staff(s.handleUpdateOpportunity))
	mux.HandleFunc("DELETE /v1/opportunities/{id}", lawyer(s.handleDeleteOpportunity))
	mux.HandleFunc("GET /v1/opportunities/{id}/installments", staff(s.handleListInstallments))
	mux.HandleFunc("POST /v1/opportunities/{id}/installments/regenerate", lawyer(s.handleRegenerateInstallments))

	// Financial
	mux.HandleFunc("GET /v1/financial/flows", staff(s.handleListFlows))
	mux.HandleFunc("POST /v1/financial/flows", staff(s.handleCreateFlow))
	mux.HandleFunc("GET /v1/financial/flows/{id}", staff(s.handleGetFlow))
	mux.HandleFunc("PATCH /v1/financial/flows/{id}", staff(s.handleUpdateFlow))
	mux.HandleFunc("DELETE /v1/financial/flows/{id}", lawyer(s.handleDeleteFlow))
	mux.HandleFunc("POST /v1/financial/flows/{id}/settle", staff(s.handleSettleFlow))
	mux.HandleFunc("GET /v1/financial/summary", staff(s.handleFlowSummary))

	// Templates
	mux.HandleFunc("GET /v1/templates", staff(s.handleListTemplates))
	mux.HandleFunc("POST /v1/templates", lawyer(s.handleCreateTemplate))
	mux.HandleFunc("GET /v1/templates/{id}", staff(s.handleGetTemplate))
	mux.HandleFunc("PATCH /v1/templates/{id}", lawyer(s.handleUpdateTemplate))
	mux.HandleFunc("DELETE /v1/templates/{id}", lawyer(s.handleDeleteTemplate))
	mux.HandleFunc("GET /v1/templates/{id}/variables", staff(s.handleTemplateVariables))
	mux.HandleFunc("POST /v1/templates/{id}/render", staff(s.handleRenderTemplate))

	// Appointments
	mux.HandleFunc("GET /v1/appointments", staff(s.handleListAppointments))
	mux.HandleFunc("POST /v1/appointments", staff(s.handleCreateAppointment))
	mux.HandleFunc("GET /v1/appointments/{id}", staff(s.handleGetAppointment))
	mux.HandleFunc("PATCH /v1/appointments/{id}", staff(s.handleUpdateAppointment))
	mux.HandleFunc("DELETE /v1/appointments/{id}", staff(s.handleDeleteAppointment))

	// Parameters
	mux.HandleFunc("GET /v1/parameters/{kind}", staff(s.handleListParameters))
	mux.HandleFunc("POST /v1/parameters/{kind}", admin(s.handleCreateParameter))
	mux.HandleFunc("PATCH /v1/parameters/{kind}/{id}", admin(s.handleUpdateParameter))
	mux.HandleFunc("DELETE /v1/parameters/{kind}/{id}", admin(s.handleDeleteParameter))

	// Blog
	mux.HandleFunc("GET /v1/posts", s.handleListPublishedPosts)
	mux.HandleFunc("GET /v1/posts/{slug}", s.handleGetPublishedPost)
	mux.HandleFunc("GET /v1/admin/posts", admin(s.handleAdminListPosts))
	mux.HandleFunc("POST /v1/admin/posts", admin(s.handleCreatePost))
	mux.HandleFunc("PATCH /v1/admin/posts/{id}", admin(s.handleUpdatePost))
	mux.HandleFunc("DELETE /v1/admin/posts/{id}", admin(s.handleDeletePost))

	return chain(mux,
		recoveryMiddleware,
		requestIDMiddleware,
		loggerMiddleware,
		s.CORSMiddleware,
		metricsMiddleware(s.metrics),
		loggingMiddleware,
		maxBytesMiddleware(10<<20),
		authRateLimitMiddleware(s.rateLimiter, s.config.RateLimitAuth),
	)
}

// handleHealth returns a health check response, pinging the database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
