package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mbegale/dwellio-core/internal/operr"
)

// Error represents a structured error response.
type Error struct {
	Status     int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
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

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeOperationError maps a device-operation error to an HTTP response,
// carrying the error kind as the code and the recovery suggestion when
// one is known.
func writeOperationError(w http.ResponseWriter, err error) {
	kind := operr.KindOf(err)
	status := statusForKind(kind)

	resp := Error{
		Status:  status,
		Code:    string(kind),
		Message: err.Error(),
	}
	if resp.Code == "" {
		resp.Code = ErrCodeInternal
	}

	var opErr *operr.Error
	if errors.As(err, &opErr) {
		resp.Suggestion = opErr.Suggestion()
	}

	writeJSON(w, status, resp)
}

// statusForKind maps an error kind to an HTTP status code. Vendor-side
// auth failures surface as gateway errors: the caller's credentials were
// fine, the integration's were not.
func statusForKind(kind operr.Kind) int {
	switch kind {
	case operr.KindUnauthorized, operr.KindUserNotFound:
		return http.StatusForbidden
	case operr.KindDeviceNotFound:
		return http.StatusNotFound
	case operr.KindUnsupportedCommand:
		return http.StatusUnprocessableEntity
	case operr.KindRateLimited:
		return http.StatusTooManyRequests
	case operr.KindDeviceBusy:
		return http.StatusConflict
	case operr.KindDeviceOffline:
		return http.StatusServiceUnavailable
	case operr.KindTimeout:
		return http.StatusGatewayTimeout
	case operr.KindNetwork, operr.KindInvalidResponse,
		operr.KindInvalidCredentials, operr.KindTokenExpired, operr.KindTokenRefreshFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
