package httpapi

import (
	"encoding/json"
	"net/http"

	"energysense/internal/auth"
	"energysense/internal/ingest"
	"energysense/internal/model"
	"energysense/internal/pipeline"
)

// handleIngest queues a telemetry batch. Admin only; one bad event
// rejects the whole batch.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	if user.Role != auth.RoleAdmin {
		writeDetail(w, http.StatusForbidden, "Not authorized")
		return
	}
	if s.sink == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Ingestion unavailable")
		return
	}

	var events []ingest.WireReading
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	now := s.now()
	readings := make([]model.Reading, 0, len(events))
	for i, ev := range events {
		reading, err := ev.Reading(now)
		if err != nil {
			s.log.Warn("rejecting ingest batch", "index", i, "error", err)
			writeDetail(w, http.StatusBadRequest, "Invalid event payload")
			return
		}
		readings = append(readings, reading)
	}

	queued := 0
	for _, reading := range readings {
		if s.sink.Ingest(pipeline.Event{Reading: reading, Source: "api"}) {
			queued++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "queued", "count": queued})
}
