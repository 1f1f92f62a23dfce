// Package geofences_api exposes the detector and the suggestion engine over
// HTTP/JSON.
package geofences_api

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/motionfleet/fleetzones/internal/cache"
	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/motionfleet/fleetzones/internal/services/geofences"
)

type GeofenceService interface {
	CheckPosition(ctx context.Context, vehicleID string, lat, lng float64) (*geofences.Result, error)
	RecordPosition(ctx context.Context, p *models.PositionSample) (*geofences.Result, error)
	ListVehicleEvents(ctx context.Context, vehicleID string, limit int) ([]*models.GeofenceEvent, error)
	LatestCampaignPositions(ctx context.Context, campaignID string) ([]*models.PositionSample, error)
}

type SuggestionEngine interface {
	Suggest(ctx context.Context, campaignID string, daysBack int) (*models.SuggestionReport, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type API struct {
	geofences GeofenceService
	engine    SuggestionEngine

	cache cache.BytesCache

	rl          RateLimiter
	rlPerMinute int64

	timeout time.Duration
	now     func() time.Time
}

type Option func(*API)

// WithCache: источник для GET /campaigns/{id}/suggestions/latest.
func WithCache(c cache.BytesCache) Option { return func(a *API) { a.cache = c } }

func WithRateLimit(rl RateLimiter, perMinute int64) Option {
	return func(a *API) {
		a.rl = rl
		a.rlPerMinute = perMinute
	}
}

func WithTimeout(d time.Duration) Option { return func(a *API) { a.timeout = d } }

func New(svc GeofenceService, engine SuggestionEngine, opts ...Option) *API {
	a := &API{
		geofences: svc,
		engine:    engine,
		timeout:   10 * time.Second,
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Routes mounts every endpoint on r.
func (a *API) Routes(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(requestLogger)
	r.Use(a.withTimeout)

	r.Post("/check-geofences", a.checkGeofences)
	r.Post("/optimize-geofences", a.optimizeGeofences)
	r.Post("/positions", a.recordPosition)
	r.Get("/vehicles/{vehicleId}/geofence-events", a.listVehicleEvents)
	r.Get("/campaigns/{campaignId}/positions/latest", a.latestPositions)
	r.Get("/campaigns/{campaignId}/suggestions/latest", a.latestSuggestions)
}

func (a *API) Handler() chi.Router {
	r := chi.NewRouter()
	a.Routes(r)
	return r
}
