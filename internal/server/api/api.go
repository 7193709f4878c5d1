// Package api provides the HTTP API handlers of neurablink.
package api

import (
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/ayusman/neurablink/internal/app"
	"github.com/ayusman/neurablink/internal/blink"
	"github.com/ayusman/neurablink/internal/config"
	"github.com/ayusman/neurablink/internal/reminder"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Controller is the part of the app the API drives.
type Controller interface {
	Start() error
	Stop() error
	Status() app.Status
	Config() config.Config
	Update(values map[string]any) error
	SwitchCamera(id int) error
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		codec.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return codec.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// statusFor maps app errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrRunning), errors.Is(err, app.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, app.ErrImmutable),
		errors.Is(err, app.ErrInvalidCamera),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, config.ErrUnknownKey),
		errors.Is(err, blink.ErrInvalidSensitivity),
		errors.Is(err, reminder.ErrInvalidDelay):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
