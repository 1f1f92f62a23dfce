package geofences_api

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/motionfleet/fleetzones/internal/services/geofences"
	"github.com/motionfleet/fleetzones/internal/services/refresher"
	"github.com/motionfleet/fleetzones/internal/services/suggestions"
	"github.com/motionfleet/fleetzones/internal/validation"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

type eventDTO struct {
	ID         string    `json:"id,omitempty"`
	GeofenceID string    `json:"geofence_id"`
	VehicleID  string    `json:"vehicle_id"`
	EventType  string    `json:"event_type"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Timestamp  time.Time `json:"timestamp"`
}

func toEventDTOs(evs []*models.GeofenceEvent) []eventDTO {
	out := make([]eventDTO, 0, len(evs))
	for _, e := range evs {
		out = append(out, eventDTO{
			ID:         e.ID,
			GeofenceID: e.GeofenceID,
			VehicleID:  e.VehicleID,
			EventType:  string(e.EventType),
			Latitude:   e.Latitude,
			Longitude:  e.Longitude,
			Timestamp:  e.Timestamp,
		})
	}
	return out
}

type checkResponse struct {
	Success       bool       `json:"success"`
	EventsCreated int        `json:"eventsCreated"`
	Events        []eventDTO `json:"events"`
}

func toCheckResponse(res *geofences.Result) checkResponse {
	return checkResponse{Success: true, EventsCreated: res.EventsCreated, Events: toEventDTOs(res.Events)}
}

// decode reads a JSON body. ok=false means a 400 has already been written.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeValidation(w, "Request body is too large")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			writeValidation(w, fmt.Sprintf("%s must be a %s", typeErr.Field, jsonKind(typeErr.Type.Kind().String())))
			return false
		}
		writeValidation(w, "Invalid JSON body")
		return false
	}
	return true
}

func jsonKind(goKind string) string {
	switch goKind {
	case "float64", "ptr":
		return "number"
	default:
		return goKind
	}
}

type checkRequest struct {
	VehicleID *string  `json:"vehicleId" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
}

var presenceMessages = validation.Messages{
	"vehicleId": "vehicleId is required",
	"latitude":  "latitude is required",
	"longitude": "longitude is required",
}

func (a *API) checkGeofences(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decode(w, r, &req) {
		return
	}
	if err := validation.Struct(req, presenceMessages); err != nil {
		writeError(w, r, "check geofences", err)
		return
	}

	res, err := a.geofences.CheckPosition(r.Context(), *req.VehicleID, *req.Latitude, *req.Longitude)
	if err != nil {
		writeError(w, r, "check geofences", err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckResponse(res))
}

type positionRequest struct {
	VehicleID *string    `json:"vehicleId" validate:"required"`
	Latitude  *float64   `json:"latitude" validate:"required"`
	Longitude *float64   `json:"longitude" validate:"required"`
	Speed     *float64   `json:"speed"`
	Heading   *float64   `json:"heading"`
	Accuracy  *float64   `json:"accuracy"`
	Timestamp *time.Time `json:"timestamp"`
}

func (a *API) recordPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !decode(w, r, &req) {
		return
	}
	if err := validation.Struct(req, presenceMessages); err != nil {
		writeError(w, r, "record position", err)
		return
	}

	p := &models.PositionSample{
		VehicleID: *req.VehicleID,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Speed:     req.Speed,
		Heading:   req.Heading,
		Accuracy:  req.Accuracy,
	}
	if req.Timestamp != nil {
		p.Timestamp = req.Timestamp.UTC()
	}

	res, err := a.geofences.RecordPosition(r.Context(), p)
	if err != nil {
		writeError(w, r, "record position", err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		checkResponse
		PositionID string `json:"position_id"`
	}{toCheckResponse(res), p.ID})
}

type optimizeRequest struct {
	CampaignID string   `json:"campaign_id"`
	DaysBack   *float64 `json:"days_back"`
}

type suggestionDTO struct {
	Name                 string  `json:"name"`
	CenterLat            float64 `json:"center_lat"`
	CenterLng            float64 `json:"center_lng"`
	RadiusMeters         int     `json:"radius_meters"`
	EstimatedImpressions int64   `json:"estimated_impressions"`
	AvgSpeed             float64 `json:"avg_speed"`
	DataPoints           int     `json:"data_points"`
	Confidence           int     `json:"confidence"`
}

type optimizeResponse struct {
	Suggestions    []suggestionDTO `json:"suggestions"`
	AnalyzedPoints *int            `json:"analyzed_points,omitempty"`
	TotalClusters  *int            `json:"total_clusters,omitempty"`
	Message        string          `json:"message,omitempty"`
}

func (a *API) optimizeGeofences(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if !decode(w, r, &req) {
		return
	}

	daysBack := suggestions.DefaultDaysBack
	if req.DaysBack != nil {
		d := *req.DaysBack
		if d != math.Trunc(d) || math.IsInf(d, 0) {
			writeValidation(w, "days_back must be an integer")
			return
		}
		// за пределами int диапазон всё равно отклонит движок
		daysBack = int(math.Max(math.Min(d, math.MaxInt32), math.MinInt32))
	}

	if !a.allowOptimize(r, req.CampaignID) {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: msgTooManyRequests})
		return
	}

	report, err := a.engine.Suggest(r.Context(), req.CampaignID, daysBack)
	if err != nil {
		writeError(w, r, "optimize geofences", err)
		return
	}

	if r.URL.Query().Get("format") == "geojson" {
		b, err := json.Marshal(suggestions.ToFeatureCollection(report))
		if err != nil {
			writeError(w, r, "optimize geofences", err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
		return
	}

	resp := optimizeResponse{Suggestions: make([]suggestionDTO, 0, len(report.Suggestions))}
	for _, s := range report.Suggestions {
		resp.Suggestions = append(resp.Suggestions, suggestionDTO(s))
	}
	if report.Message != "" {
		resp.Message = report.Message
	} else {
		resp.AnalyzedPoints = &report.AnalyzedPoints
		resp.TotalClusters = &report.TotalClusters
	}
	writeJSON(w, http.StatusOK, resp)
}

// allowOptimize: лимит на кампанию в минуту. Ошибки Redis не блокируют запрос.
func (a *API) allowOptimize(r *http.Request, campaignID string) bool {
	if a.rl == nil || a.rlPerMinute <= 0 {
		return true
	}
	if _, err := uuid.Parse(campaignID); err != nil {
		return true
	}
	key := fmt.Sprintf("rl:optimize:%s:%s", campaignID, a.now().UTC().Format("200601021504"))
	allowed, n, err := a.rl.Allow(r.Context(), key, a.rlPerMinute, 70*time.Second)
	if err != nil {
		log.WithField("campaign_id", campaignID).WithError(err).Warn("optimize rate limiter unavailable")
		return true
	}
	if !allowed {
		log.WithFields(log.Fields{"campaign_id": campaignID, "count": n}).Warn("optimize rate limit exceeded")
	}
	return allowed
}

func (a *API) listVehicleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeValidation(w, "limit must be an integer")
			return
		}
		limit = n
	}

	evs, err := a.geofences.ListVehicleEvents(r.Context(), chi.URLParam(r, "vehicleId"), limit)
	if err != nil {
		writeError(w, r, "list vehicle events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toEventDTOs(evs)})
}

type positionDTO struct {
	ID        string    `json:"id"`
	VehicleID string    `json:"vehicle_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     *float64  `json:"speed"`
	Heading   *float64  `json:"heading"`
	Accuracy  *float64  `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *API) latestPositions(w http.ResponseWriter, r *http.Request) {
	ps, err := a.geofences.LatestCampaignPositions(r.Context(), chi.URLParam(r, "campaignId"))
	if err != nil {
		writeError(w, r, "latest positions", err)
		return
	}
	out := make([]positionDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, positionDTO{
			ID: p.ID, VehicleID: p.VehicleID, Latitude: p.Latitude, Longitude: p.Longitude,
			Speed: p.Speed, Heading: p.Heading, Accuracy: p.Accuracy, Timestamp: p.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}

func (a *API) latestSuggestions(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignId")
	if _, err := uuid.Parse(campaignID); err != nil {
		writeValidation(w, "Invalid campaign ID format")
		return
	}
	if a.cache == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "No suggestions computed yet for this campaign"})
		return
	}

	b, ok, err := a.cache.Get(r.Context(), refresher.LatestKey(campaignID))
	if err != nil {
		writeError(w, r, "latest suggestions", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "No suggestions computed yet for this campaign"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
