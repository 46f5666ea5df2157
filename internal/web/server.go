// Package web provides the HTTP server and handlers for the sample
// ingestion API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fieldstone/samplehub/internal/config"
	"github.com/fieldstone/samplehub/internal/extract"
	"github.com/fieldstone/samplehub/internal/ingest"
	"github.com/fieldstone/samplehub/internal/progress"
	"github.com/fieldstone/samplehub/internal/store"
	wmw "github.com/fieldstone/samplehub/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// Server is the HTTP server for the sample ingestion application.
type Server struct {
	service   *ingest.Service
	extractor *extract.Engine
	store     *store.Store
	notifier  *progress.Notifier
	cfg       *config.Config
	router    *chi.Mux
	server    *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, service *ingest.Service, extractor *extract.Engine, st *store.Store, notifier *progress.Notifier) *Server {
	s := &Server{
		service:   service,
		extractor: extractor,
		store:     st,
		notifier:  notifier,
		cfg:       cfg,
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(wmw.TrustedRealIP(s.cfg.Server.TrustedProxies))
	s.router.Use(wmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// Security hardening
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := newIPLimiter(s.cfg.Rate.RequestsPerMinute)
		s.router.Use(limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	uploadLimit := func(r chi.Router) chi.Router { return r }
	if s.cfg.Rate.Enabled {
		limiter := newIPLimiter(s.cfg.Rate.UploadLimit)
		uploadLimit = func(r chi.Router) chi.Router { return r.With(limiter.middleware) }
	}

	s.router.Route("/api", func(r chi.Router) {
		// Upload operations
		uploadLimit(r).Post("/upload", s.handleUpload)
		r.Post("/headers/detect", s.handleDetectHeaders)

		// Header mapping rules
		r.Get("/header-mappings", s.handleGetMappings)
		r.Post("/header-mappings", s.handleSaveMappings)

		// Extraction
		r.Post("/extract", s.handleExtract)
		r.Get("/extract/files/{filename}", s.handleDownload)

		// Do-not-call list
		r.Post("/dnc", s.handleAddDNC)

		// Progress stream
		r.Get("/progress/{sessionID}", s.handleProgress)

		// Project bookkeeping
		r.Get("/projects/{projectID}/files", s.handleProjectFiles)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 for SSE
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// ipLimiter applies a per-IP token bucket using x/time/rate. Buckets
// refill at the configured per-minute rate and allow a burst of the
// same size.
type ipLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(perMinute int) *ipLimiter {
	l := &ipLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
	}
	go l.cleanup()
	return l
}

// cleanup removes stale visitor entries every minute.
func (l *ipLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		l.mu.Lock()
		for ip, v := range l.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(l.visitors, ip)
			}
		}
		l.mu.Unlock()
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()

	return v.limiter.Allow()
}

// middleware returns an HTTP middleware that rate limits by IP.
func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(r.RemoteAddr) {
			w.Header().Set("Retry-After", "60")
			respondErrorMessage(w, r, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
