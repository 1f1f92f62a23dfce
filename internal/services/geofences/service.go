package geofences

import (
	"context"
	"encoding/json"
	"time"

	"github.com/motionfleet/fleetzones/internal/broker/messages"
	"github.com/motionfleet/fleetzones/internal/cache"
	"github.com/motionfleet/fleetzones/internal/geo"
	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/motionfleet/fleetzones/internal/validation"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultEventsLimit = 100
	MaxEventsLimit     = 500
)

type Repository interface {
	GetVehicleCampaign(ctx context.Context, vehicleID string) (*string, error)
	ListActiveZones(ctx context.Context, campaignID string) ([]*models.Geofence, error)
	LatestZoneStates(ctx context.Context, vehicleID string, zoneIDs []string) (map[string]models.EventType, error)
	AppendTransitions(ctx context.Context, vehicleID string, ts []models.Transition) ([]*models.GeofenceEvent, error)
	InsertPositionAndTransitions(ctx context.Context, p *models.PositionSample, ts []models.Transition) ([]*models.GeofenceEvent, error)
	ListVehicleEvents(ctx context.Context, vehicleID string, limit int) ([]*models.GeofenceEvent, error)
	LatestCampaignPositions(ctx context.Context, campaignID string) ([]*models.PositionSample, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

type Result struct {
	EventsCreated int
	Events        []*models.GeofenceEvent
}

type Service struct {
	repo     Repository
	cache    cache.BytesCache
	zonesTTL time.Duration

	pub         Publisher
	eventsTopic string
}

type Option func(*Service)

// WithPublisher включает публикацию закоммиченных событий в Kafka.
func WithPublisher(p Publisher, topic string) Option {
	return func(s *Service) {
		s.pub = p
		s.eventsTopic = topic
	}
}

func New(repo Repository, c cache.BytesCache, zonesTTL time.Duration, opts ...Option) *Service {
	s := &Service{repo: repo, cache: c, zonesTTL: zonesTTL}
	for _, o := range opts {
		o(s)
	}
	return s
}

type checkInput struct {
	VehicleID string  `json:"vehicleId" validate:"required,uuid"`
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

var checkMessages = validation.Messages{
	"vehicleId.required": "vehicleId is required",
	"vehicleId.uuid":     "Invalid vehicle ID format",
	"latitude":           "latitude must be between -90 and 90",
	"longitude":          "longitude must be between -180 and 180",
}

// CheckPosition evaluates one observation for a vehicle and records the
// resulting enter/exit transitions.
func (s *Service) CheckPosition(ctx context.Context, vehicleID string, lat, lng float64) (*Result, error) {
	if err := validation.Struct(checkInput{VehicleID: vehicleID, Latitude: lat, Longitude: lng}, checkMessages); err != nil {
		return nil, err
	}

	campaignID, err := s.resolveCampaign(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if campaignID == nil {
		return nil, models.ErrVehicleUnassigned
	}
	return s.evaluate(ctx, vehicleID, *campaignID, lat, lng)
}

type positionInput struct {
	VehicleID string   `json:"vehicleId" validate:"required,uuid"`
	Latitude  float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" validate:"gte=-180,lte=180"`
	Speed     *float64 `json:"speed" validate:"omitnil,gte=0"`
	Heading   *float64 `json:"heading" validate:"omitnil,gte=0,lte=360"`
	Accuracy  *float64 `json:"accuracy" validate:"omitnil,gte=0"`
}

var positionMessages = validation.Messages{
	"vehicleId.required": "vehicleId is required",
	"vehicleId.uuid":     "Invalid vehicle ID format",
	"latitude":           "latitude must be between -90 and 90",
	"longitude":          "longitude must be between -180 and 180",
	"speed":              "speed cannot be negative",
	"heading":            "heading must be between 0 and 360",
	"accuracy":           "accuracy cannot be negative",
}

// RecordPosition stores the sample together with the transitions it causes
// in a single store call, so a failed attempt leaves nothing behind and a
// retry does not duplicate the sample. A vehicle without a campaign still
// gets its sample stored, it just has no zones to cross.
func (s *Service) RecordPosition(ctx context.Context, p *models.PositionSample) (*Result, error) {
	in := positionInput{
		VehicleID: p.VehicleID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Speed:     p.Speed,
		Heading:   p.Heading,
		Accuracy:  p.Accuracy,
	}
	if err := validation.Struct(in, positionMessages); err != nil {
		return nil, err
	}

	campaignID, err := s.resolveCampaign(ctx, p.VehicleID)
	if err != nil {
		return nil, err
	}

	var transitions []models.Transition
	if campaignID != nil {
		transitions, err = s.detect(ctx, p.VehicleID, *campaignID, p.Latitude, p.Longitude)
		if err != nil {
			return nil, err
		}
	}

	inserted, err := s.repo.InsertPositionAndTransitions(ctx, p, transitions)
	if err != nil {
		if len(transitions) > 0 {
			s.dropZonesCache(ctx, *campaignID)
		}
		return nil, errors.Wrap(err, "insert position")
	}
	if campaignID == nil {
		return &Result{Events: []*models.GeofenceEvent{}}, nil
	}
	return s.recorded(ctx, p.VehicleID, *campaignID, transitions, inserted), nil
}

func (s *Service) resolveCampaign(ctx context.Context, vehicleID string) (*string, error) {
	campaignID, err := s.repo.GetVehicleCampaign(ctx, vehicleID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrVehicleUnassigned
	}
	if err != nil {
		return nil, errors.Wrap(err, "get vehicle campaign")
	}
	return campaignID, nil
}

func (s *Service) evaluate(ctx context.Context, vehicleID, campaignID string, lat, lng float64) (*Result, error) {
	transitions, err := s.detect(ctx, vehicleID, campaignID, lat, lng)
	if err != nil {
		return nil, err
	}
	if len(transitions) == 0 {
		return &Result{Events: []*models.GeofenceEvent{}}, nil
	}

	inserted, err := s.repo.AppendTransitions(ctx, vehicleID, transitions)
	if err != nil {
		s.dropZonesCache(ctx, campaignID)
		return nil, errors.Wrap(err, "append transitions")
	}
	return s.recorded(ctx, vehicleID, campaignID, transitions, inserted), nil
}

// detect returns the transitions a position at (lat, lng) would cause
// against the vehicle's last recorded state. Nothing is written.
func (s *Service) detect(ctx context.Context, vehicleID, campaignID string, lat, lng float64) ([]models.Transition, error) {
	zones, err := s.activeZones(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(zones) == 0 {
		return nil, nil
	}

	zoneIDs := make([]string, 0, len(zones))
	for _, z := range zones {
		zoneIDs = append(zoneIDs, z.ID)
	}
	states, err := s.repo.LatestZoneStates(ctx, vehicleID, zoneIDs)
	if err != nil {
		return nil, errors.Wrap(err, "latest zone states")
	}
	return Detect(zones, states, lat, lng), nil
}

func (s *Service) recorded(ctx context.Context, vehicleID, campaignID string, transitions []models.Transition, inserted []*models.GeofenceEvent) *Result {
	if len(transitions) == 0 {
		return &Result{Events: []*models.GeofenceEvent{}}
	}

	fields := log.Fields{
		"vehicle_id":  vehicleID,
		"campaign_id": campaignID,
		"detected":    len(transitions),
		"inserted":    len(inserted),
	}
	if len(inserted) < len(transitions) {
		log.WithFields(fields).Info("geofences: stale transitions skipped")
	} else {
		log.WithFields(fields).Debug("geofences: transitions recorded")
	}

	s.publish(ctx, campaignID, inserted)
	return &Result{EventsCreated: len(inserted), Events: inserted}
}

// publish: best effort: события уже закоммичены, ошибка только логируется.
func (s *Service) publish(ctx context.Context, campaignID string, events []*models.GeofenceEvent) {
	if s.pub == nil || s.eventsTopic == "" {
		return
	}
	for _, e := range events {
		msg := messages.GeofenceTransition{
			EventID:    e.ID,
			GeofenceID: e.GeofenceID,
			VehicleID:  e.VehicleID,
			CampaignID: campaignID,
			EventType:  string(e.EventType),
			Latitude:   e.Latitude,
			Longitude:  e.Longitude,
			Timestamp:  e.Timestamp,
		}
		if err := s.pub.PublishJSON(ctx, s.eventsTopic, e.VehicleID, msg); err != nil {
			log.WithFields(log.Fields{
				"vehicle_id":  e.VehicleID,
				"geofence_id": e.GeofenceID,
				"event_id":    e.ID,
			}).WithError(err).Warn("geofences: publish transition failed")
		}
	}
}

// activeZones: cache-aside; любые ошибки кэша деградируют до чтения из БД.
func (s *Service) activeZones(ctx context.Context, campaignID string) ([]*models.Geofence, error) {
	useCache := s.cache != nil && s.zonesTTL > 0
	key := zonesKey(campaignID)

	if useCache {
		b, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			log.WithField("campaign_id", campaignID).WithError(err).Warn("geofences: zones cache get failed")
		}
		if err == nil && ok {
			var zones []*models.Geofence
			if json.Unmarshal(b, &zones) == nil {
				return zones, nil
			}
		}
	}

	zones, err := s.repo.ListActiveZones(ctx, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "list active zones")
	}
	zones = dropInvalidZones(campaignID, zones)

	if useCache {
		b, _ := json.Marshal(zones)
		if err := s.cache.Set(ctx, key, b, s.zonesTTL); err != nil {
			log.WithField("campaign_id", campaignID).WithError(err).Warn("geofences: zones cache set failed")
		}
	}
	return zones, nil
}

// dropZonesCache: запись отклонена, возможно из-за зоны, удалённой после
// кэширования; следующая попытка читает зоны из БД.
func (s *Service) dropZonesCache(ctx context.Context, campaignID string) {
	if s.cache == nil || s.zonesTTL <= 0 {
		return
	}
	if err := s.cache.Delete(ctx, zonesKey(campaignID)); err != nil {
		log.WithField("campaign_id", campaignID).WithError(err).Warn("geofences: zones cache delete failed")
	}
}

// dropInvalidZones отбрасывает зоны с нулевым радиусом или центром вне
// диапазона: по ним нельзя вычислить принадлежность.
func dropInvalidZones(campaignID string, zones []*models.Geofence) []*models.Geofence {
	out := zones[:0]
	for _, z := range zones {
		if !geo.Valid(z) {
			log.WithFields(log.Fields{"campaign_id": campaignID, "geofence_id": z.ID}).Warn("geofences: skip invalid zone")
			continue
		}
		out = append(out, z)
	}
	return out
}

type idInput struct {
	ID string `json:"id" validate:"required,uuid"`
}

// ListVehicleEvents returns the most recent transitions of a vehicle, newest
// first. limit outside [1, MaxEventsLimit] falls back to DefaultEventsLimit.
func (s *Service) ListVehicleEvents(ctx context.Context, vehicleID string, limit int) ([]*models.GeofenceEvent, error) {
	if err := validation.Struct(idInput{ID: vehicleID}, validation.Messages{"id": "Invalid vehicle ID format"}); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxEventsLimit {
		limit = DefaultEventsLimit
	}
	events, err := s.repo.ListVehicleEvents(ctx, vehicleID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list vehicle events")
	}
	return events, nil
}

// LatestCampaignPositions returns the newest sample of every vehicle in the
// campaign, for the live map.
func (s *Service) LatestCampaignPositions(ctx context.Context, campaignID string) ([]*models.PositionSample, error) {
	if err := validation.Struct(idInput{ID: campaignID}, validation.Messages{"id": "Invalid campaign ID format"}); err != nil {
		return nil, err
	}
	ps, err := s.repo.LatestCampaignPositions(ctx, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "latest campaign positions")
	}
	return ps, nil
}

func zonesKey(campaignID string) string {
	return "geofences:" + campaignID + ":active"
}
