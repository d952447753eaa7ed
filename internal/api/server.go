package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pbaille/drift/internal/domain"
	"github.com/pbaille/drift/internal/fetcher"
	"github.com/pbaille/drift/internal/graph"
	"github.com/pbaille/drift/internal/quotes"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CoverFetcher resolves a page or image URL into cover bytes
type CoverFetcher interface {
	FetchCover(ctx context.Context, rawURL string) (*fetcher.Cover, error)
}

// Options configures the edit server
type Options struct {
	Addr            string
	SiteDir         string
	QuotesPath      string
	CSVPath         string
	ConnectionsPath string
	CoversDir       string

	// ReadOnly rejects every mutation with 403
	ReadOnly bool

	// Watch reloads the collection when the data files change on disk
	Watch bool

	Fetcher CoverFetcher
	Logger  *zap.Logger
}

// Server serves the viewer's site directory and the editing API
type Server struct {
	opts    Options
	logger  *zap.Logger
	fetcher CoverFetcher
	metrics *metrics

	mu     sync.RWMutex
	quotes *quotes.Collection
	conns  domain.Connections
}

// New creates a new API server and loads the site data
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	f := opts.Fetcher
	if f == nil {
		f = fetcher.New()
	}

	s := &Server{
		opts:    opts,
		logger:  logger,
		fetcher: f,
		metrics: newMetrics(),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads quotes and connections from disk
func (s *Server) Reload() error {
	coll, _, err := quotes.Load(s.opts.QuotesPath, s.logger)
	if err != nil {
		return fmt.Errorf("load quotes: %w", err)
	}

	var conns domain.Connections
	if s.opts.ConnectionsPath != "" {
		conns, err = graph.LoadConnections(s.opts.ConnectionsPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load connections: %w", err)
		}
	}

	s.mu.Lock()
	s.quotes = coll
	s.conns = conns
	s.mu.Unlock()

	s.metrics.quotes.Set(float64(coll.Len()))
	return nil
}

// Handler returns the HTTP handler with all routes and middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Quotes
	mux.HandleFunc("GET /api/quotes", s.listQuotes)
	mux.HandleFunc("GET /api/quotes/{id}", s.getQuote)
	mux.HandleFunc("POST /api/quotes", s.mutating(s.addQuote))
	mux.HandleFunc("PUT /api/quotes/{id}", s.mutating(s.saveQuote))
	mux.HandleFunc("DELETE /api/quotes/{id}", s.mutating(s.deleteQuote))

	// Covers
	mux.HandleFunc("POST /api/quotes/{id}/cover", s.mutating(s.uploadCover))
	mux.HandleFunc("DELETE /api/quotes/{id}/cover", s.mutating(s.deleteCover))
	mux.HandleFunc("POST /api/quotes/{id}/cover/fetch", s.mutating(s.fetchCover))
	mux.HandleFunc("POST /api/quotes/{id}/cover/keep", s.mutating(s.keepCover))

	// Graph
	mux.HandleFunc("GET /api/connections", s.listConnections)

	// Health check and metrics
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	// Viewer
	if s.opts.SiteDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.opts.SiteDir)))
	}

	return withCORS(s.instrument(mux))
}

// Run starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.opts.Watch {
		files := []string{s.opts.QuotesPath}
		if s.opts.ConnectionsPath != "" {
			files = append(files, s.opts.ConnectionsPath)
		}
		w, err := quotes.NewWatcher(quotes.WatcherConfig{
			Files:  files,
			Logger: s.logger,
			OnChange: func(paths []string) {
				if err := s.Reload(); err != nil {
					s.logger.Warn("reload failed", zap.Strings("paths", paths), zap.Error(err))
					return
				}
				s.logger.Info("reloaded site data", zap.Strings("paths", paths))
			},
		})
		if err != nil {
			return fmt.Errorf("watch site data: %w", err)
		}
		go w.Run(ctx)
		defer func() {
			cancel()
			<-w.Done()
		}()
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			zap.String("addr", s.opts.Addr),
			zap.String("site", s.opts.SiteDir),
			zap.Bool("read_only", s.opts.ReadOnly))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

// mutating guards an editing handler with the read-only switch
func (s *Server) mutating(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.ReadOnly {
			writeError(w, http.StatusForbidden, "server is read-only")
			return
		}
		h(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument logs each request and records it in the metrics
func (s *Server) instrument(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.observe(route, rec.status, elapsed)

		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	n := s.quotes.Len()
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"quotes":    n,
		"read_only": s.opts.ReadOnly,
	})
}

// persist writes an edited copy of the collection and makes it the served
// collection once quotes.json holds it. If that write fails the served
// collection is left as it was. Callers hold s.mu.
func (s *Server) persist(next *quotes.Collection) error {
	if err := next.Save(s.opts.QuotesPath); err != nil {
		return fmt.Errorf("save quotes: %w", err)
	}
	s.quotes = next
	s.metrics.quotes.Set(float64(next.Len()))

	if s.opts.CSVPath != "" {
		if err := next.SaveCSV(s.opts.CSVPath); err != nil {
			return fmt.Errorf("save csv: %w", err)
		}
	}
	return nil
}

// coverURL is the site-relative reference stored in a quote
func (s *Server) coverURL(name string) string {
	rel, err := filepath.Rel(s.opts.SiteDir, filepath.Join(s.opts.CoversDir, name))
	if err != nil || s.opts.SiteDir == "" {
		rel = filepath.Join(filepath.Base(s.opts.CoversDir), name)
	}
	return filepath.ToSlash(rel)
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid quote id %q", r.PathValue("id"))
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// errorStatus maps collection errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, quotes.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, quotes.ErrInvalid):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	m := &metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drift",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "drift",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		edits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "drift",
			Name:      "quote_edits_total",
			Help:      "Persisted quote edits by operation.",
		}, []string{"op"}),
		quotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "drift",
			Name:      "quotes",
			Help:      "Number of quotes in the collection.",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.edits, m.quotes)
	return m
}

type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	edits    *prometheus.CounterVec
	quotes   prometheus.Gauge
}

func (m *metrics) observe(route string, status int, d time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(route).Observe(d.Seconds())
}
