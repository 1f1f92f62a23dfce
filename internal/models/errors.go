package models

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned by stores when a requested row does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrVehicleUnassigned is returned when a vehicle is unknown or has no campaign.
	ErrVehicleUnassigned = errors.New("vehicle not found or not assigned to campaign")
)

// ValidationError carries field-level problems found before any I/O.
type ValidationError struct {
	Details []string
}

func NewValidationError(details ...string) *ValidationError {
	return &ValidationError{Details: details}
}

func (e *ValidationError) Error() string {
	return "invalid input: " + strings.Join(e.Details, "; ")
}

func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
