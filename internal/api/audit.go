package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mbegale/dwellio-core/internal/audit"
)

// handleQueryAudit returns audit trail entries, newest first.
//
// Query parameters:
//   - category: filter by entry category (deviceControl, security, ...)
//   - start, end: RFC 3339 time bounds
//   - limit: maximum entries to return
func (s *Server) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeInternalError(w, "audit trail not configured")
		return
	}

	var f audit.Filter
	q := r.URL.Query()

	f.Category = audit.Category(q.Get("category"))

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "invalid start time, expected RFC 3339")
			return
		}
		f.Start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "invalid end time, expected RFC 3339")
			return
		}
		f.End = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		f.Limit = n
	}

	entries, err := s.audit.Query(r.Context(), f)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeInternalError(w, "failed to query audit trail")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
