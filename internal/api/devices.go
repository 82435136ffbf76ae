package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mbegale/dwellio-core/internal/device"
	"github.com/mbegale/dwellio-core/internal/pipeline"
)

// handleListDevices returns all devices, with an optional vendor filter.
//
// Query parameters:
//   - manufacturer: filter by vendor platform (smartthings, nest, august, hue)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if manufacturer := r.URL.Query().Get("manufacturer"); manufacturer != "" {
		devices, err := s.registry.ListByManufacturer(ctx, manufacturer)
		if err != nil {
			writeInternalError(w, "failed to list devices")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
		return
	}

	devices, err := s.registry.ListDevices(ctx)
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeviceStats returns aggregate device counts.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.GetStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":           stats.TotalDevices,
		"by_capability":   stats.ByCapability,
		"by_manufacturer": stats.ByManufacturer,
		"by_status":       stats.ByOnlineStatus,
	})
}

// commandRequest is the request body for POST /devices/{id}/commands.
type commandRequest struct {
	Name               string         `json:"name"`
	Parameters         map[string]any `json:"parameters,omitempty"`
	BiometricConfirmed bool           `json:"biometric_confirmed,omitempty"`
}

// commandResponse is the response body for a command execution.
type commandResponse struct {
	Stage  pipeline.Stage `json:"stage"`
	Device *device.Device `json:"device,omitempty"`
}

// handleExecuteCommand runs a device command through the execution
// pipeline on behalf of the authenticated user. The pipeline owns
// authorisation, rate limiting, dispatch, audit and state sync; this
// handler only translates between HTTP and pipeline types.
func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "command name is required")
		return
	}

	result, err := s.executor.Execute(r.Context(), pipeline.Request{
		UserID:   userIDFromContext(r.Context()),
		DeviceID: deviceID,
		Command: device.Command{
			Name:       req.Name,
			Parameters: req.Parameters,
		},
		BiometricConfirmed: req.BiometricConfirmed,
	})
	if err != nil {
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{
		Stage:  result.Stage,
		Device: result.Device,
	})
}
