package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"energysense/internal/twin"
)

type twinModesRequest struct {
	OverlayEnabled *bool `json:"option_a_overlay_enabled"`
	SourceEnabled  *bool `json:"option_b_source_enabled"`
}

// handleTwinModes toggles the overlay and source modes. Omitted fields
// leave the corresponding mode unchanged.
func (s *Server) handleTwinModes(w http.ResponseWriter, r *http.Request) {
	if s.twin == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Twin disabled")
		return
	}

	var req twinModesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, s.twin.SetModes(req.OverlayEnabled, req.SourceEnabled))
}

type twinManualRequest struct {
	ZoneID          string  `json:"block_id"`
	HVACEco         bool    `json:"hvac_eco"`
	LightsOff       bool    `json:"lights_off"`
	VentilationEco  bool    `json:"ventilation_eco"`
	SetpointDeltaC  float64 `json:"hvac_setpoint_delta_c"`
	DurationMinutes int     `json:"duration_minutes"`
	ReplaceExisting bool    `json:"replace_existing"`
}

// handleTwinManual applies control-panel effects to a zone that has
// reported telemetry; its current occupancy and temperature scale the
// simulated reduction.
func (s *Server) handleTwinManual(w http.ResponseWriter, r *http.Request) {
	if s.twin == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Twin disabled")
		return
	}

	var req twinManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ZoneID == "" {
		writeDetail(w, http.StatusBadRequest, "Block id is required")
		return
	}
	snap, ok := s.store.Zone(req.ZoneID)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Block not found")
		return
	}

	result := s.twin.ApplyManualControls(twin.ManualControls{
		ZoneID:          snap.ZoneID,
		ZoneLabel:       snap.ZoneLabel,
		HVACEco:         req.HVACEco,
		LightsOff:       req.LightsOff,
		VentilationEco:  req.VentilationEco,
		SetpointDeltaC:  req.SetpointDeltaC,
		DurationMinutes: req.DurationMinutes,
		ReplaceExisting: req.ReplaceExisting,
		Occupancy:       snap.Occupancy,
		Temperature:     snap.Temperature,
	})
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTwinSummary(w http.ResponseWriter, r *http.Request) {
	if s.twin == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Twin disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.twin.Summary(s.store.Snapshots()))
}

func (s *Server) handleTwinState(w http.ResponseWriter, r *http.Request) {
	if s.twin == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Twin disabled")
		return
	}

	state, ok := s.twin.ZoneControlState(mux.Vars(r)["blockId"])
	if !ok {
		writeDetail(w, http.StatusNotFound, "Block not found")
		return
	}
	writeJSON(w, http.StatusOK, state)
}
