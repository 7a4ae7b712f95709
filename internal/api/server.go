package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baxromumarov/sale-hunter/internal/core"
	"github.com/baxromumarov/sale-hunter/internal/store"
)

// Store is the slice of *store.Store the handlers use.
type Store interface {
	ListListings(ctx context.Context, f store.ListingFilter) ([]store.StoredListing, error)
	ListRuns(ctx context.Context, limit int) ([]store.Run, error)
	AddAlert(ctx context.Context, a store.Alert) (store.Alert, error)
	ListAlerts(ctx context.Context) ([]store.Alert, error)
	DeleteAlert(ctx context.Context, id int64) (bool, error)
}

// Monitor is satisfied by *core.MonitorService.
type Monitor interface {
	RunOnce(ctx context.Context) (core.RunResult, error)
	LastRun() (core.RunResult, bool)
}

type Options struct {
	CORSOrigins []string
	// StaticDir, when set, is served at the root for a dashboard build.
	StaticDir string
}

type Server struct {
	router  *chi.Mux
	store   Store
	monitor Monitor
	opts    Options
}

// NewServer wires the routes. store may be nil when the database is
// disabled; sales are then served from the last monitor run.
func NewServer(store Store, monitor Monitor, opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	s := &Server{
		router:  chi.NewRouter(),
		store:   store,
		monitor: monitor,
		opts:    opts,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/sales", s.handleListSales)
	s.router.Post("/scrape", s.handleScrape)
	s.router.Get("/runs", s.handleListRuns)
	s.router.Get("/alerts", s.handleListAlerts)
	s.router.Post("/alerts", s.handleAddAlert)
	s.router.Delete("/alerts/{id}", s.handleDeleteAlert)
	s.router.Get("/stats", s.handleStats)
	s.router.Handle("/metrics", promhttp.Handler())

	if s.opts.StaticDir != "" {
		FileServer(s.router, "/", http.Dir(s.opts.StaticDir))
	}
}

func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit any URL parameters.")
	}

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", http.StatusMovedPermanently).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		pathPrefix := strings.TrimSuffix(rctx.RoutePattern(), "/*")
		fs := http.StripPrefix(pathPrefix, http.FileServer(root))
		fs.ServeHTTP(w, r)
	})
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
