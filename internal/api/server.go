// Package api serves the census-geo pipeline and alias dictionary over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/census-geo/internal/catalog"
	"github.com/sells-group/census-geo/internal/model"
	"github.com/sells-group/census-geo/pkg/tigerweb"
)

// maxBodyBytes caps the size of a POST / request body.
const maxBodyBytes = 1 << 20

// Runner executes a pipeline request.
type Runner interface {
	Run(ctx context.Context, req model.GeoRequest) (*tigerweb.FeatureCollection, error)
}

// Translator converts between aliases and variable codes.
type Translator interface {
	AliasToVariable(aliases []string) (catalog.Translations, error)
	VariableToAlias(vars []string) (catalog.Translations, error)
	Aliases() []catalog.AliasEntry
}

// CircuitReporter reports upstream circuit breaker states keyed by host.
type CircuitReporter interface {
	States() map[string]string
}

// Options configures a Server.
type Options struct {
	CORSOrigins []string
	// RequestTimeout bounds a single POST / request. Zero means no limit.
	RequestTimeout time.Duration
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Circuits adds breaker states to GET /health when set.
	Circuits CircuitReporter
}

// Server exposes the pipeline, alias, health and metrics endpoints.
type Server struct {
	httpServer *http.Server
	runner     Runner
	translator Translator
	opts       Options
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, runner Runner, tr Translator, opts Options) *Server {
	s := &Server{runner: runner, translator: tr, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(opts.CORSOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/", s.handleQuery)
	r.Get("/alias-to-variable", s.handleAliasToVariable)
	r.Get("/variable-to-alias", s.handleVariableToAlias)
	r.Get("/aliases", s.handleAliases)
	r.Get("/health", s.handleHealth)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	zap.L().Info("api: server starting", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}
