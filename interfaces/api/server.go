// Package api serves query runs over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/felixgeelhaar/opsquery/application"
	"github.com/felixgeelhaar/opsquery/domain/agent"
	"github.com/felixgeelhaar/opsquery/domain/tool"
	"github.com/felixgeelhaar/opsquery/infrastructure/logging"
	"github.com/felixgeelhaar/opsquery/infrastructure/validation"
)

// Runner answers one query. *application.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, query string, opts ...application.RunOption) (agent.FinalResult, error)
}

// Config configures the HTTP service.
type Config struct {
	// Addr is the listen address.
	Addr string

	// RequestTimeout bounds one query request, streaming included.
	RequestTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// AllowedOrigins lists CORS origins. Empty allows every origin.
	AllowedOrigins []string

	// MaxQueryLength rejects longer queries. Zero disables the check.
	MaxQueryLength int

	// RateLimit limits requests per client when Rate is positive.
	RateLimit RateLimitConfig

	// Metrics serves /metrics when set.
	Metrics http.Handler

	// Registry lists the tools on /api/tools when set.
	Registry tool.Registry

	Version string
}

// RateLimitConfig configures per-client rate limiting.
type RateLimitConfig struct {
	Rate  int
	Burst int
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8000",
		RequestTimeout:  5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		MaxQueryLength:  4096,
	}
}

// Server is the HTTP front of the orchestrator.
type Server struct {
	runner     Runner
	config     Config
	limiter    ratelimit.RateLimiter
	queryRules *validation.Schema
	handler    http.Handler
}

// NewServer creates a server answering queries with runner.
func NewServer(runner Runner, config Config) (*Server, error) {
	if runner == nil {
		return nil, ErrNoRunner
	}
	defaults := DefaultConfig()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	s := &Server{runner: runner, config: config, queryRules: queryRules(config.MaxQueryLength)}
	if rl := config.RateLimit; rl.Rate > 0 {
		burst := rl.Burst
		if burst <= 0 {
			burst = rl.Rate
		}
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     rl.Rate,
			Burst:    burst,
			FailOpen: true,
		})
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.config.Metrics != nil {
		router.Handle("/metrics", s.config.Metrics).Methods(http.MethodGet)
	}

	apiRouter := router.PathPrefix("/api").Subrouter()
	if s.limiter != nil {
		apiRouter.Use(rateLimitMiddleware(s.limiter))
	}
	apiRouter.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	apiRouter.HandleFunc("/query/stream", s.handleStream).Methods(http.MethodPost)
	apiRouter.HandleFunc("/tools", s.handleTools).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "no such route")
	})
	router.Use(recoveryMiddleware)
	router.Use(loggingMiddleware)

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(router)
}

// Handler returns the root handler with every middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Add(logging.Component("api")).
			Add(logging.Str("addr", s.config.Addr)).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logging.Info().Add(logging.Component("api")).Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
