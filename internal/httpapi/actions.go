package httpapi

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/gorilla/mux"

	"energysense/internal/auth"
	"energysense/internal/model"
	"energysense/internal/store"
	"energysense/internal/twin"
)

// Defaults applied when the operator proposes without filling the form.
const (
	defaultRecommendation = "Initiate 15-minute demand response: raise HVAC setpoint by 1C and shed non-critical discretionary load."
	manualSource          = "manual_adr_event"
)

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": s.store.Actions(50),
		"summary": s.store.ADRSummary(),
	})
}

type proposeRequest struct {
	ZoneID         string   `json:"block_id"`
	Recommendation string   `json:"recommendation"`
	Rationale      string   `json:"rationale"`
	ReductionKWh   *float64 `json:"reduction_kwh"`
}

func (s *Server) handleActionPropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snapshots := s.store.Snapshots()
	if len(snapshots) == 0 {
		writeDetail(w, http.StatusBadRequest, "No block telemetry available yet")
		return
	}

	var target model.Snapshot
	if req.ZoneID != "" {
		snap, ok := s.store.Zone(req.ZoneID)
		if !ok {
			writeDetail(w, http.StatusNotFound, "Block not found")
			return
		}
		target = snap
	} else {
		target = worstZone(snapshots)
	}

	recommendation := req.Recommendation
	if recommendation == "" {
		recommendation = defaultRecommendation
	}
	rationale := req.Rationale
	if rationale == "" {
		rationale = fmt.Sprintf("%s is %s with %.1f%% deviation.",
			target.ZoneLabel, target.Status, target.DeviationPct)
	}
	reduction := math.Max(target.SavingsKWh*0.8, 0.5)
	if req.ReductionKWh != nil {
		reduction = *req.ReductionKWh
	}

	action := s.store.ProposeAction(store.Proposal{
		ZoneID:               target.ZoneID,
		ZoneLabel:            target.ZoneLabel,
		Mode:                 model.ModeManual,
		Recommendation:       recommendation,
		Rationale:            rationale,
		Source:               manualSource,
		DREventCode:          "MANUAL-" + s.now().UTC().Format("150405"),
		ReductionKWh:         round2(reduction),
		ExpectedINRPerHour:   round2(reduction * target.TariffINRPerKWh),
		ExpectedCO2KgPerHour: round2(reduction * target.CarbonKgPerKWh),
	})
	if s.notify != nil {
		s.notify.OnAction(action)
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": action})
}

func (s *Server) handleActionExecute(w http.ResponseWriter, r *http.Request) {
	actionID := mux.Vars(r)["actionId"]
	user, _ := auth.UserFrom(r.Context())

	action, ok := s.store.ExecuteAction(actionID, user.Username)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Action not found")
		return
	}

	if s.twin != nil && action.Status == model.ActionExecuted {
		snap, _ := s.store.Zone(action.ZoneID)
		s.twin.ActivateFromAction(twin.Activation{
			ActionID:       action.ID,
			ZoneID:         action.ZoneID,
			ZoneLabel:      action.ZoneLabel,
			Recommendation: action.Recommendation,
			Occupancy:      snap.Occupancy,
			Temperature:    snap.Temperature,
		})
	}

	if s.notify != nil {
		s.notify.OnAction(action)
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": action})
}

func (s *Server) handleActionVerify(w http.ResponseWriter, r *http.Request) {
	actionID := mux.Vars(r)["actionId"]
	user, _ := auth.UserFrom(r.Context())

	action, ok := s.store.VerifyAction(actionID, user.Username)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Action not found")
		return
	}

	if s.notify != nil {
		s.notify.OnAction(action)
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": action})
}

func (s *Server) handleActionResolve(w http.ResponseWriter, r *http.Request) {
	actionID := mux.Vars(r)["actionId"]
	user, _ := auth.UserFrom(r.Context())

	action, ok := s.store.ResolveAction(actionID, user.Username)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Action not found")
		return
	}

	if s.twin != nil {
		s.twin.ResolveAction(action.ID)
	}
	if s.notify != nil {
		s.notify.OnAction(action)
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": action})
}

// worstZone picks the highest-deviation waste zone, falling back to the
// highest deviation overall when nothing is flagged.
func worstZone(snapshots []model.Snapshot) model.Snapshot {
	var waste []model.Snapshot
	for _, snap := range snapshots {
		if snap.Status == model.StatusWaste || snap.Status == model.StatusPossibleWaste {
			waste = append(waste, snap)
		}
	}
	pool := snapshots
	if len(waste) > 0 {
		pool = waste
	}

	best := pool[0]
	for _, snap := range pool[1:] {
		if snap.DeviationPct > best.DeviationPct {
			best = snap
		}
	}
	return best
}
