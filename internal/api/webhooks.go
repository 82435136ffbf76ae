package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mbegale/dwellio-core/internal/webhook"
)

// handleWebhook ingests a vendor event notification.
//
// Vendors deliver duplicates and out-of-order events; the webhook handler
// owns deduplication and dispatch. Duplicates and unknown event types are
// acknowledged with 200 so vendors don't retry them; malformed or invalid
// payloads are rejected with 400.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "webhook ingestion not configured")
		return
	}

	vendor := chi.URLParam(r, "vendor")

	var ev webhook.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.webhooks.Handle(r.Context(), vendor, ev); err != nil {
		s.logger.Warn("webhook processing failed",
			"vendor", vendor,
			"event_id", ev.EventID,
			"error", err)
		writeBadRequest(w, "event could not be processed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
