// Package api serves the stored listings and the dashboard page.
package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-laptops/models"
)

//go:embed static
var staticFiles embed.FS

// Lister is the read side of the store.
type Lister interface {
	QueryAll(ctx context.Context) (models.RecordSet, error)
}

// Versioner is implemented by listers that can report when their data
// changed. Only those get cached.
type Versioner interface {
	Version(ctx context.Context) (int64, error)
}

// Server exposes the laptops endpoint, dashboard, health and metrics routes.
type Server struct {
	router   *chi.Mux
	store    Lister
	cache    *expirable.LRU[int64, models.RecordSet]
	registry *prometheus.Registry
	requests *prometheus.CounterVec

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer builds the router. Query results are cached per store version
// for at most cacheTTL; zero disables the cache.
func NewServer(store Lister, cacheTTL time.Duration) *Server {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "API requests by route and status code.",
		},
		[]string{"route", "code"},
	)
	registry.MustRegister(requests)

	s := &Server{
		router:   chi.NewRouter(),
		store:    store,
		registry: registry,
		requests: requests,
	}
	if _, ok := store.(Versioner); ok && cacheTTL > 0 {
		s.cache = expirable.NewLRU[int64, models.RecordSet](1, nil, cacheTTL)
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/laptops", s.handleListLaptops)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	fileServer := http.FileServer(http.FS(static))
	s.router.Get("/", fileServer.ServeHTTP)
	s.router.Get("/static/*", http.StripPrefix("/static", fileServer).ServeHTTP)
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}
	return httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.requests.WithLabelValues("health", "200").Inc()
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleListLaptops(w http.ResponseWriter, r *http.Request) {
	var (
		version   int64
		cacheable bool
	)
	if s.cache != nil {
		v, err := s.store.(Versioner).Version(r.Context())
		if err != nil {
			slog.Warn("read store version", slog.Any("error", err))
		} else {
			version, cacheable = v, true
			if records, ok := s.cache.Get(version); ok {
				s.requests.WithLabelValues("laptops", "200").Inc()
				respondJSON(w, http.StatusOK, records)
				return
			}
		}
	}

	records, err := s.store.QueryAll(r.Context())
	if err != nil {
		slog.Error("query laptops", slog.Any("error", err))
		s.requests.WithLabelValues("laptops", "500").Inc()
		respondError(w, http.StatusInternalServerError, "failed to load laptops")
		return
	}
	if records == nil {
		records = models.RecordSet{}
	}
	// The version is read before the query, so a concurrent swap can only
	// file newer rows under an older key that is never asked for again.
	if cacheable {
		s.cache.Add(version, records)
	}

	s.requests.WithLabelValues("laptops", "200").Inc()
	respondJSON(w, http.StatusOK, records)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encode response", slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
