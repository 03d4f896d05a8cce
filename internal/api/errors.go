package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
	"github.com/nerrad567/homehub-core/internal/registry"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnsupported  = "unsupported"
	ErrCodeTimeout      = "timeout"
	ErrCodeDevice       = "device_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeRegistryError maps a registry or adapter error onto a status code.
//
// Validation failures are the caller's fault (400), a missing device, room or
// scene is 404, a command the device cannot perform is 422, a result
// discarded because a newer command won is 409, a device that did not answer
// in time is 504 and any other device failure is 502.
func writeRegistryError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound),
		errors.Is(err, device.ErrRoomNotFound),
		errors.Is(err, device.ErrSceneNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, adapter.ErrValidation):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, adapter.ErrUnsupported):
		return http.StatusUnprocessableEntity, ErrCodeUnsupported
	case errors.Is(err, registry.ErrSuperseded):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, adapter.ErrTimeout):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case errors.Is(err, registry.ErrNoMQTT), errors.Is(err, registry.ErrNoHueBridge):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusBadGateway, ErrCodeDevice
	}
}
