// Package refresher periodically recomputes zone suggestions for every
// active campaign, caches the latest report and publishes it to Kafka.
package refresher

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/motionfleet/fleetzones/internal/broker/messages"
	"github.com/motionfleet/fleetzones/internal/cache"
	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	ListActiveCampaignIDs(ctx context.Context) ([]string, error)
}

type Suggester interface {
	Suggest(ctx context.Context, campaignID string, daysBack int) (*models.SuggestionReport, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// LatestKey is where the newest report of a campaign is cached.
func LatestKey(campaignID string) string {
	return "suggestions:" + campaignID + ":latest"
}

type Refresher struct {
	repo     Repository
	engine   Suggester
	cache    cache.BytesCache
	producer Producer

	topic string

	interval       time.Duration
	concurrency    int
	daysBack       int
	cacheTTL       time.Duration
	publishRetries int
	retryDelay     time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCampaigns      atomic.Int64
	totalProcessed      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, engine Suggester, c cache.BytesCache, producer Producer, topic string) *Refresher {
	return &Refresher{
		repo: repo, engine: engine, cache: c, producer: producer, topic: topic,
		interval:          15 * time.Minute,
		concurrency:       4,
		daysBack:          30,
		cacheTTL:          time.Hour,
		publishRetries:    3,
		retryDelay:        200 * time.Millisecond,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Refresher) WithSettings(interval time.Duration, concurrency, daysBack int, cacheTTL time.Duration) *Refresher {
	if interval > 0 {
		r.interval = interval
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if daysBack > 0 {
		r.daysBack = daysBack
	}
	if cacheTTL > 0 {
		r.cacheTTL = cacheTTL
	}
	return r
}

// Trigger forces an immediate refresh cycle (best-effort, non-blocking).
func (r *Refresher) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCampaigns int64      `json:"totalCampaigns"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Refresher) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalCampaigns: r.totalCampaigns.Load(),
		TotalProcessed: r.totalProcessed.Load(),
		TotalErrors:    r.totalErrors.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Refresher) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.runOnce(ctx)
		case <-r.triggerCh:
			r.runOnce(ctx)
		}
	}
}

func (r *Refresher) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	r.lastCycleUnixNano.Store(now.UnixNano())

	ids, err := r.repo.ListActiveCampaignIDs(ctx)
	if err != nil {
		log.WithError(err).Error("refresher: list active campaigns")
		r.setLastError(err)
		return
	}
	r.totalCampaigns.Add(int64(len(ids)))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, id := range ids {
		sem <- struct{}{}
		wg.Add(1)
		campaignID := id
		r.inFlight.Add(1)
		go func() {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := r.processOne(ctx, campaignID); err != nil {
				r.totalErrors.Add(1)
				r.setLastError(err)
				log.WithField("campaign_id", campaignID).WithError(err).Error("refresher: process campaign")
			}
			r.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (r *Refresher) processOne(ctx context.Context, campaignID string) error {
	report, err := r.engine.Suggest(ctx, campaignID, r.daysBack)
	if err != nil {
		return errors.Wrap(err, "suggest")
	}

	msg := messages.ZoneSuggestionsComputed{
		CampaignID:     campaignID,
		ComputedAt:     time.Now().UTC(),
		DaysBack:       r.daysBack,
		AnalyzedPoints: report.AnalyzedPoints,
		TotalClusters:  report.TotalClusters,
		Suggestions:    make([]messages.ZoneSuggestion, 0, len(report.Suggestions)),
	}
	for _, s := range report.Suggestions {
		msg.Suggestions = append(msg.Suggestions, messages.ZoneSuggestion{
			Name:                 s.Name,
			CenterLat:            s.CenterLat,
			CenterLng:            s.CenterLng,
			RadiusMeters:         s.RadiusMeters,
			EstimatedImpressions: s.EstimatedImpressions,
			AvgSpeed:             s.AvgSpeed,
			DataPoints:           s.DataPoints,
			Confidence:           s.Confidence,
		})
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal suggestions")
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, LatestKey(campaignID), b, r.cacheTTL); err != nil {
			return errors.Wrap(err, "cache suggestions")
		}
	}

	if r.producer == nil || r.topic == "" {
		return nil
	}
	// Kafka может быть не готова сразу после старта: несколько попыток.
	var pubErr error
	for i := 0; i < r.publishRetries; i++ {
		if pubErr = r.producer.Publish(ctx, r.topic, []byte(campaignID), b); pubErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * r.retryDelay):
		}
	}
	return pubErr
}

func (r *Refresher) setLastError(err error) {
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}
