// Package mockapi provides an in-memory REST backend speaking the collection
// contract, used for demos and end-to-end tests of the console.
package mockapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/backoffice-console/internal/collection"
	"github.com/stacklok/backoffice-console/internal/versions"
)

// Resource describes one collection served by the mock backend
type Resource struct {
	Name       string
	DisplayKey string
	// Bare answers list requests with a bare array instead of a {data,total} envelope
	Bare bool
}

// ServerOption configures the mock backend
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	metricsHandler http.Handler
	seeds          map[string][]collection.Item
	version        string
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsHandler serves h on /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// WithItems seeds resource with items. Items without an id get one.
func WithItems(resource string, items []collection.Item) ServerOption {
	return func(cfg *serverConfig) {
		cfg.seeds[resource] = append(cfg.seeds[resource], items...)
	}
}

// WithGeneratedItems seeds resource with n items named "<resource> 01", "<resource> 02", ...
func WithGeneratedItems(resource, displayKey string, n int) ServerOption {
	return func(cfg *serverConfig) {
		for i := 1; i <= n; i++ {
			cfg.seeds[resource] = append(cfg.seeds[resource], collection.Item{
				displayKey: fmt.Sprintf("%s %02d", resource, i),
			})
		}
	}
}

// WithVersion overrides the version reported on /version
func WithVersion(v string) ServerOption {
	return func(cfg *serverConfig) {
		cfg.version = v
	}
}

// Server is the mock backend
type Server struct {
	router    *chi.Mux
	resources map[string]Resource

	mu     sync.RWMutex
	stores map[string]*resourceStore
	faults map[string]fault
}

type fault struct {
	status  int
	message string
}

// NewServer creates and configures the router for resources
func NewServer(resources []Resource, opts ...ServerOption) *Server {
	cfg := &serverConfig{seeds: make(map[string][]collection.Item)}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		resources: make(map[string]Resource, len(resources)),
		stores:    make(map[string]*resourceStore, len(resources)),
		faults:    make(map[string]fault),
	}
	for _, res := range resources {
		if res.DisplayKey == "" {
			res.DisplayKey = "name"
		}
		s.resources[res.Name] = res
		store := newResourceStore(res.DisplayKey)
		store.seed(cfg.seeds[res.Name])
		s.stores[res.Name] = store
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg.version))
	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}

	r.Route("/api/{resource}", func(r chi.Router) {
		r.Use(s.resourceCtx)
		r.Get("/", s.listItems)
		r.Post("/", s.createItem)
		r.Get("/{id}", s.getItem)
		r.Put("/{id}", s.updateItem)
		r.Delete("/{id}", s.deleteItem)
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Count returns the number of records held for resource
func (s *Server) Count(resource string) int {
	store := s.store(resource)
	if store == nil {
		return 0
	}
	return store.len()
}

// FailNext makes the next request on resource answer status with {"error": message}
func (s *Server) FailNext(resource string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[resource] = fault{status: status, message: message}
}

func (s *Server) takeFault(resource string) (fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.faults[resource]
	delete(s.faults, resource)
	return f, ok
}

func (s *Server) store(resource string) *resourceStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stores[resource]
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
			"mutation_id", r.Header.Get("X-Mutation-ID"))
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

func versionHandler(override string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		info := versions.GetVersionInfo()
		if override != "" {
			info.Version = override
		}
		writeJSON(w, http.StatusOK, info)
	}
}
