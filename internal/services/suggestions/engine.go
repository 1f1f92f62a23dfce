// Package suggestions proposes new zones for a campaign from where its
// vehicles actually spent time.
package suggestions

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/motionfleet/fleetzones/internal/geo"
	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/motionfleet/fleetzones/internal/validation"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultDaysBack = 30
	MaxDaysBack     = 365

	MessageNoVehicles = "No vehicles found for this campaign"
	MessageNoGPSData  = "No GPS data found for analysis"
)

type Repository interface {
	ListCampaignVehicleIDs(ctx context.Context, campaignID string) ([]string, error)
	ListPositionsSince(ctx context.Context, vehicleIDs []string, since time.Time) ([]*models.PositionSample, error)
	ListActiveZones(ctx context.Context, campaignID string) ([]*models.Geofence, error)
}

// Params are the clustering knobs.
type Params struct {
	// CellSize is the grid cell edge in degrees.
	CellSize float64
	// MinPoints is the support a cell needs to be considered.
	MinPoints int
	// BufferMeters is added to an existing zone's radius when excluding cells.
	BufferMeters float64
	TopN         int
}

func DefaultParams() Params {
	return Params{
		CellSize:     0.01,
		MinPoints:    10,
		BufferMeters: 500,
		TopN:         5,
	}
}

type Engine struct {
	repo   Repository
	scorer Scorer
	params Params
	now    func() time.Time
}

type Option func(*Engine)

func WithScorer(s Scorer) Option { return func(e *Engine) { e.scorer = s } }

func WithParams(p Params) Option { return func(e *Engine) { e.params = p } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func NewEngine(repo Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		scorer: DefaultScorer{},
		params: DefaultParams(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type suggestInput struct {
	CampaignID string `json:"campaign_id" validate:"required,uuid"`
	DaysBack   int    `json:"days_back" validate:"min=1,max=365"`
}

var suggestMessages = validation.Messages{
	"campaign_id":   "Invalid campaign ID format",
	"days_back.min": "days_back must be at least 1",
	"days_back.max": "days_back cannot exceed 365",
}

// Suggest analyses the campaign's samples of the last daysBack days and
// returns up to TopN new zone candidates. The empty-data outcomes are
// successful reports with Message set.
func (e *Engine) Suggest(ctx context.Context, campaignID string, daysBack int) (*models.SuggestionReport, error) {
	if err := validation.Struct(suggestInput{CampaignID: campaignID, DaysBack: daysBack}, suggestMessages); err != nil {
		return nil, err
	}
	fields := log.Fields{"campaign_id": campaignID, "days_back": daysBack}

	vehicleIDs, err := e.repo.ListCampaignVehicleIDs(ctx, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "list campaign vehicles")
	}
	if len(vehicleIDs) == 0 {
		return emptyReport(campaignID, MessageNoVehicles), nil
	}

	since := e.now().Add(-time.Duration(daysBack) * 24 * time.Hour)
	samples, err := e.repo.ListPositionsSince(ctx, vehicleIDs, since)
	if err != nil {
		return nil, errors.Wrap(err, "list positions")
	}
	if len(samples) == 0 {
		return emptyReport(campaignID, MessageNoGPSData), nil
	}

	zones, err := e.repo.ListActiveZones(ctx, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "list active zones")
	}

	clusters := significant(bucket(samples, e.params.CellSize, e.scorer), e.params.MinPoints)

	report := &models.SuggestionReport{
		CampaignID:     campaignID,
		Suggestions:    make([]models.ZoneSuggestion, 0, e.params.TopN),
		AnalyzedPoints: len(samples),
		TotalClusters:  len(clusters),
	}
	for _, c := range clusters {
		if len(report.Suggestions) >= e.params.TopN {
			break
		}
		if e.coveredByZone(c, zones) {
			continue
		}
		report.Suggestions = append(report.Suggestions, models.ZoneSuggestion{
			Name:                 fmt.Sprintf("Optimized Zone %d", len(report.Suggestions)+1),
			CenterLat:            c.centerLat,
			CenterLng:            c.centerLng,
			RadiusMeters:         e.scorer.Radius(c.points),
			EstimatedImpressions: c.impressions,
			AvgSpeed:             math.Round(c.avgSpeed*10) / 10,
			DataPoints:           c.points,
			Confidence:           e.scorer.Confidence(c.points, c.impressions),
		})
	}

	log.WithFields(fields).WithFields(log.Fields{
		"analyzed_points": report.AnalyzedPoints,
		"clusters":        report.TotalClusters,
		"suggestions":     len(report.Suggestions),
	}).Info("suggestions: computed")
	return report, nil
}

// coveredByZone: центр кластера внутри радиуса зоны плюс буфер (граница включительно).
func (e *Engine) coveredByZone(c cluster, zones []*models.Geofence) bool {
	for _, z := range zones {
		d := geo.Distance(c.centerLat, c.centerLng, z.CenterLat, z.CenterLng)
		if d <= z.RadiusMeters+e.params.BufferMeters {
			return true
		}
	}
	return false
}

func emptyReport(campaignID, msg string) *models.SuggestionReport {
	return &models.SuggestionReport{
		CampaignID:  campaignID,
		Suggestions: []models.ZoneSuggestion{},
		Message:     msg,
	}
}
