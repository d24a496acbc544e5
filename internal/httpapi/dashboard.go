package httpapi

import (
	"math"
	"net/http"
	"time"

	"energysense/internal/forecast"
	"energysense/internal/model"
	"energysense/internal/store"
	"energysense/internal/twin"
)

// historyPoint is the trimmed history row sent to dashboards.
type historyPoint struct {
	TS           time.Time `json:"ts"`
	DeviationPct float64   `json:"deviation_pct"`
	EnergyKWh    float64   `json:"energy_kwh"`
	BaselineKWh  float64   `json:"baseline_kwh"`
}

// zonePayload is one zone's dashboard card: the rounded snapshot with its
// forecast fields filled in, plus history, the model prediction and the
// twin overlay preview.
type zonePayload struct {
	model.Snapshot
	History    []historyPoint      `json:"history"`
	Prediction forecast.Prediction `json:"prediction"`
	Twin       *twin.Overlay       `json:"twin,omitempty"`
}

type totalsPayload struct {
	store.Stats
	PredictedAvoidableKWhNextHour float64 `json:"predicted_avoidable_kwh_next_hour"`
	PredictiveHighRiskZones       int     `json:"predictive_high_risk_blocks"`
}

type orgPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type predictivePayload struct {
	ModelReady      bool       `json:"model_ready"`
	ModelName       string     `json:"model_name"`
	TrainingSamples int        `json:"training_samples"`
	LastTrainedAt   *time.Time `json:"last_trained_at"`
	SequenceLength  int        `json:"sequence_length"`
	HorizonSteps    int        `json:"horizon_steps"`
}

type dashboardPayload struct {
	GeneratedAt     time.Time         `json:"generated_at"`
	Org             orgPayload        `json:"org"`
	Zones           []zonePayload     `json:"blocks"`
	Totals          totalsPayload     `json:"totals"`
	Environment     model.Environment `json:"environment"`
	Stream          store.StreamState `json:"stream_state"`
	Actions         []model.Action    `json:"actions"`
	ADRSummary      store.ADRSummary  `json:"adr_summary"`
	PredictiveState predictivePayload `json:"predictive_state"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.buildDashboard())
}

// DashboardPayload builds the same body the current-status endpoint
// serves. The WebSocket broadcaster and the handshake snapshot feed
// from it.
func (s *Server) DashboardPayload() any {
	return s.buildDashboard()
}

func (s *Server) buildDashboard() dashboardPayload {
	snapshots := s.store.Snapshots()
	zones := make([]zonePayload, 0, len(snapshots))
	avoidable := 0.0
	highRisk := 0

	for _, snap := range snapshots {
		history := s.store.History(snap.ZoneID)

		peak, risk := linearForecast(history)
		pred := forecast.Prediction{Risk: model.RiskLow}
		if s.forecast != nil {
			pred = s.forecast.Predict(history, snap.BaselineKWh, snap.Occupancy, snap.Temperature)
			peak = round1(math.Max(peak, pred.PredictedDeviationPct))
			risk = model.MaxRisk(risk, pred.Risk)
			avoidable += pred.AvoidableKWh
			if pred.Risk == model.RiskHigh {
				highRisk++
			}
		}

		zone := zonePayload{
			Snapshot:   roundSnapshot(snap),
			History:    historyPayload(history),
			Prediction: pred,
		}
		zone.ForecastPeakDev = peak
		zone.ForecastRisk = risk
		if s.twin != nil {
			zone.Twin = s.twin.OverlayPreview(snap)
		}
		zones = append(zones, zone)
	}

	payload := dashboardPayload{
		GeneratedAt: s.now().UTC(),
		Org:         orgPayload{ID: s.store.OrgID(), Name: s.store.OrgName()},
		Zones:       zones,
		Totals: totalsPayload{
			Stats:                         s.store.Stats(),
			PredictedAvoidableKWhNextHour: round2(avoidable),
			PredictiveHighRiskZones:       highRisk,
		},
		Environment: s.store.Environment(),
		Stream:      s.store.StreamState(),
		Actions:     s.store.Actions(20),
		ADRSummary:  s.store.ADRSummary(),
	}
	if s.forecast != nil {
		payload.PredictiveState = predictiveState(s.forecast.Status())
	}
	return payload
}

func predictiveState(st forecast.Status) predictivePayload {
	payload := predictivePayload{
		ModelReady:      st.ModelReady,
		ModelName:       st.ModelName,
		TrainingSamples: st.TrainingSamples,
		SequenceLength:  st.SequenceLength,
		HorizonSteps:    st.HorizonSteps,
	}
	if !st.LastTrainAt.IsZero() {
		t := st.LastTrainAt
		payload.LastTrainedAt = &t
	}
	return payload
}

// roundSnapshot trims a stored snapshot to display precision. The store
// keeps raw values so derived math never compounds rounding error.
func roundSnapshot(snap model.Snapshot) model.Snapshot {
	snap.EnergyKWh = round2(snap.EnergyKWh)
	snap.BaselineKWh = round2(snap.BaselineKWh)
	snap.Occupancy = round1(snap.Occupancy)
	snap.Temperature = round1(snap.Temperature)
	snap.SavingsKWh = round2(snap.SavingsKWh)
	snap.DeviationPct = round1(snap.DeviationPct)
	snap.TariffINRPerKWh = round2(snap.TariffINRPerKWh)
	snap.CostINR = round2(snap.CostINR)
	snap.WasteCostINR = round2(snap.WasteCostINR)
	snap.CarbonKgPerKWh = round3(snap.CarbonKgPerKWh)
	snap.CO2Kg = round2(snap.CO2Kg)
	return snap
}

func historyPayload(history []model.HistoryPoint) []historyPoint {
	points := make([]historyPoint, 0, len(history))
	for _, p := range history {
		points = append(points, historyPoint{
			TS:           p.TS,
			DeviationPct: round1(p.DeviationPct),
			EnergyKWh:    round2(p.EnergyKWh),
			BaselineKWh:  round2(p.BaselineKWh),
		})
	}
	return points
}

// linearForecast extrapolates the deviation trend sixty minutes out from
// the first and last history points.
func linearForecast(history []model.HistoryPoint) (float64, model.Risk) {
	if len(history) < 2 {
		return 0, model.RiskLow
	}
	first, last := history[0], history[len(history)-1]
	minutes := math.Max(last.TS.Sub(first.TS).Minutes(), 1)
	slope := (last.DeviationPct - first.DeviationPct) / minutes
	predicted := round1(last.DeviationPct + slope*60)

	risk := model.RiskLow
	switch {
	case predicted > 20:
		risk = model.RiskHigh
	case predicted > 12:
		risk = model.RiskMedium
	}
	return predicted, risk
}
