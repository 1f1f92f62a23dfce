package geofences_api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/motionfleet/fleetzones/internal/models"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	msgInvalidInput    = "Invalid input"
	msgVehicleNotFound = "Vehicle not found or not assigned to campaign"
	msgUnexpected      = "An unexpected error occurred"
	msgTimeout         = "Request timed out, please retry"
	msgTooManyRequests = "Too many requests, please retry later"
)

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValidation(w http.ResponseWriter, details ...string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidInput, Details: details})
}

// writeError maps service errors to status codes. Internal detail never
// reaches the client; it is logged instead.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if ve, ok := models.IsValidationError(err); ok {
		writeValidation(w, ve.Details...)
		return
	}
	if errors.Is(err, models.ErrVehicleUnassigned) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: msgVehicleNotFound})
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		log.WithField("op", op).WithError(err).Warn("request timed out")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: msgTimeout})
		return
	}
	log.WithField("op", op).WithError(err).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgUnexpected})
}
