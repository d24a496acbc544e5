package httpapi

import (
	"encoding/json"
	"net/http"
)

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAssistantAsk(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Assistant disabled")
		return
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	answer, err := s.assistant.Ask(r.Context(), req.Question)
	if err != nil {
		s.log.Error("assistant ask", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Assistant unavailable")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type explainRequest struct {
	ZoneID string `json:"block_id"`
}

func (s *Server) handleAssistantExplain(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Assistant disabled")
		return
	}

	var req explainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	answer, err := s.assistant.Explain(r.Context(), req.ZoneID)
	if err != nil {
		s.log.Error("assistant explain", "block", req.ZoneID, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Assistant unavailable")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"reports": s.store.Reports()})
}
