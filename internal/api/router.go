// Package api exposes ingestion and stat queries over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pable/go-val-metrics/internal/ingest"
	"github.com/pable/go-val-metrics/internal/model"
	"github.com/pable/go-val-metrics/internal/stats"
)

// Ingester stores one uploaded scoreboard.
type Ingester interface {
	Ingest(ctx context.Context, up ingest.Upload) (*ingest.Result, error)
}

// StatsReader answers cohort queries.
type StatsReader interface {
	PlayerAverages(ctx context.Context, c model.Cohort) ([]model.PlayerAggregate, error)
	MapAggregates(ctx context.Context, c model.Cohort) ([]model.MapAggregate, error)
	Cohort(ctx context.Context, c model.Cohort) (stats.CohortReport, error)
}

// GameStore lists stored games and reports database health.
type GameStore interface {
	ListGames(ctx context.Context, limit int) ([]model.GameSummary, error)
	Ping(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	MaxUploadBytes   int64
	UploadsPerMinute int
	CORSOrigins      []string
	StaticDir        string
}

// Server holds the handler dependencies.
type Server struct {
	ingester Ingester
	stats    StatsReader
	games    GameStore
	opts     Options
}

// NewServer returns a Server.
func NewServer(ing Ingester, st StatsReader, games GameStore, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	return &Server{ingester: ing, stats: st, games: games, opts: opts}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	upload := func(r chi.Router) {
		if s.opts.UploadsPerMinute > 0 {
			r.Use(httprate.LimitByIP(s.opts.UploadsPerMinute, time.Minute))
		}
		r.Post("/", s.handleUpload)
	}
	r.Route("/upload", upload)

	r.Get("/male_team", s.handleLegacyCohort(model.CohortMale))
	r.Get("/female_team", s.handleLegacyCohort(model.CohortFemale))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/uploads", upload)
		r.Get("/cohorts/{cohort}/players", s.handleCohortPlayers)
		r.Get("/cohorts/{cohort}/maps", s.handleCohortMaps)
		r.Get("/games", s.handleGames)
		r.Get("/health/live", s.handleLive)
		r.Get("/health/ready", s.handleReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	if s.opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.opts.StaticDir)))
	}
	return r
}
