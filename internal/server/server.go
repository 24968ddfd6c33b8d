package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leadfunnel/leadfunnel/internal/metrics"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

// Server serves the visitor API, tracking endpoints, metrics and the
// token-protected dashboard.
type Server struct {
	store     *store.SQLiteStore
	port      int
	token     string
	tokenFile string
	sticky    bool
	logger    *zap.Logger
	registry  *prometheus.Registry
	router    *http.ServeMux
	startTime time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithStickyVariants makes the variant endpoint reuse the variant a session
// has already seen.
func WithStickyVariants(sticky bool) Option {
	return func(s *Server) { s.sticky = sticky }
}

// New builds a server on port backed by s. The dashboard token is written
// to tokenFile when Run starts.
func New(s *store.SQLiteStore, port int, tokenFile string, opts ...Option) *Server {
	srv := &Server{
		store:     s,
		port:      port,
		token:     generateToken(),
		tokenFile: tokenFile,
		sticky:    true,
		logger:    zap.NewNop(),
		registry:  prometheus.NewRegistry(),
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.Register(srv.registry, s, srv.logger)

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.router.Handle("OPTIONS /api/", cors(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	s.router.Handle("GET /api/funnels/{id}", cors(http.HandlerFunc(s.handleGetFunnel)))
	s.router.Handle("POST /api/funnels/{id}/next", cors(http.HandlerFunc(s.handleNext)))
	s.router.Handle("GET /api/funnels/{id}/steps/{stepId}/variant", cors(http.HandlerFunc(s.handleVariant)))
	s.router.Handle("POST /api/sessions/{sid}/enter", cors(http.HandlerFunc(s.handleEnter)))
	s.router.Handle("POST /api/sessions/{sid}/leave", cors(http.HandlerFunc(s.handleLeave)))
	s.router.Handle("POST /api/sessions/{sid}/complete", cors(http.HandlerFunc(s.handleComplete)))
	s.router.Handle("POST /api/submissions", cors(http.HandlerFunc(s.handleSubmission)))

	// Dashboard endpoints (protected)
	s.router.Handle("GET /dashboard", s.authMiddleware(http.HandlerFunc(s.handleDashboard)))
	s.router.Handle("GET /dashboard/funnel/{id}", s.authMiddleware(http.HandlerFunc(s.handleDashboardFunnel)))
	s.router.Handle("GET /dashboard/api/funnels", s.authMiddleware(http.HandlerFunc(s.handleDashboardAPI)))
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", zap.String("path", s.tokenFile), zap.Error(err))
		}
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.Int("port", s.port))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Token returns the dashboard access token.
func (s *Server) Token() string {
	return s.token
}

func (s *Server) Port() int {
	return s.port
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
