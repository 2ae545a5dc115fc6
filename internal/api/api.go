// Package api exposes the funnel pipeline over HTTP.
//
// Routes live under /v1 and speak JSON. Analyze responses are cached
// in-process by payload hash and span so dashboard polling does not
// recompute the pipeline on every hit; saved runs always go through
// the store regardless of cache state.
package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"

	"github.com/patternpandits/funnelscope/internal/funnel"
	"github.com/patternpandits/funnelscope/internal/store"
	"github.com/patternpandits/funnelscope/internal/timeparse"
)

// DefaultCacheTTL bounds how long an analyze response is reused
// before the pipeline runs again for the same payload and span.
const DefaultCacheTTL = 5 * time.Minute

// Config carries the dependencies and defaults for the HTTP layer.
// Zero values fall back to package defaults; a nil Logger falls back
// to slog.Default().
type Config struct {
	Store     store.Store
	Version   string
	TopN      int
	HalfWidth time.Duration
	Platforms []string
	CacheTTL  time.Duration
	Logger    *slog.Logger
}

// Handler holds the shared state behind every route.
type Handler struct {
	store     store.Store
	norm      *funnel.Normalizer
	cache     *cache.Cache
	logger    *slog.Logger
	version   string
	topN      int
	halfWidth time.Duration
}

// New builds the Fiber app with all funnelscope routes registered.
func New(cfg Config) *fiber.App {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.TopN <= 0 {
		cfg.TopN = funnel.DefaultTopN
	}
	if cfg.HalfWidth <= 0 {
		cfg.HalfWidth = timeparse.DefaultHalfWidth
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	h := &Handler{
		store:     cfg.Store,
		norm:      funnel.NewNormalizer(cfg.Platforms...),
		cache:     cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger:    cfg.Logger,
		version:   cfg.Version,
		topN:      cfg.TopN,
		halfWidth: cfg.HalfWidth,
	}

	app := fiber.New(fiber.Config{
		AppName:               "funnelscope",
		DisableStartupMessage: true,
	})

	app.Get("/healthz", h.Health)

	v1 := app.Group("/v1")
	v1.Post("/funnel/analyze", h.AnalyzeFunnel)
	v1.Post("/time/parse", h.ParseTime)
	v1.Post("/events/window", h.WindowEvents)
	v1.Get("/analyses", h.ListAnalyses)
	v1.Get("/analyses/:id", h.GetAnalysis)
	v1.Delete("/analyses/:id", h.DeleteAnalysis)

	return app
}
