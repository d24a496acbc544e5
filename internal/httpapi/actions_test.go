package httpapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energysense/internal/model"
	"energysense/internal/store"
)

func TestAlerts_ListAckResolve(t *testing.T) {
	env := newTestEnv(t)
	alert := env.store.RaiseAlert("block_a", "Block A", model.SeverityHigh, "Persistent WASTE detected for 5 minutes.")

	rec := env.admin(t, http.MethodGet, "/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Alerts []model.Alert `json:"alerts"`
	}
	decodeJSON(t, rec, &list)
	require.Len(t, list.Alerts, 1)
	assert.Equal(t, alert.ID, list.Alerts[0].ID)

	rec = env.admin(t, http.MethodPost, "/alerts/"+alert.ID+"/ack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ack map[string]string
	decodeJSON(t, rec, &ack)
	assert.Equal(t, "acknowledged", ack["status"])
	assert.Equal(t, alert.ID, ack["alert_id"])

	rec = env.admin(t, http.MethodPost, "/alerts/"+alert.ID+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res map[string]string
	decodeJSON(t, rec, &res)
	assert.Equal(t, "resolved", res["status"])

	rec = env.admin(t, http.MethodPost, "/alerts/missing/ack", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Alert not found")
}

func TestActions_ProposeDefaultsToWorstZone(t *testing.T) {
	env := newTestEnv(t)
	seedZones(env)

	rec := env.admin(t, http.MethodPost, "/actions/propose", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Action model.Action `json:"action"`
	}
	decodeJSON(t, rec, &body)
	action := body.Action

	assert.Equal(t, "block_a", action.ZoneID)
	assert.Equal(t, model.ModeManual, action.Mode)
	assert.Equal(t, model.ActionProposed, action.Status)
	assert.Equal(t, "manual_adr_event", action.Source)
	assert.Equal(t, "MANUAL-100000", action.DREventCode)
	assert.Equal(t, defaultRecommendation, action.Recommendation)
	assert.Equal(t, "Block A is WASTE with 32.0% deviation.", action.Rationale)

	// reduction = max(3.2*0.8, 0.5) priced at the zone's tariff and carbon.
	assert.InDelta(t, 2.56, action.ProposedReductionKWh, 0.001)
	assert.InDelta(t, 16.64, action.ExpectedINRPerHour, 0.001)
	assert.InDelta(t, 2.1, action.ExpectedCO2KgPerHour, 0.001)

	require.Len(t, env.notifier.actions, 1)
	assert.Equal(t, action.ID, env.notifier.actions[0].ID)
}

func TestActions_ProposeWithOverrides(t *testing.T) {
	env := newTestEnv(t)
	seedZones(env)

	reduction := 1.25
	rec := env.admin(t, http.MethodPost, "/actions/propose", map[string]any{
		"block_id":       "block_b",
		"recommendation": "Dim corridor lighting for 20 minutes.",
		"rationale":      "Manual operator call.",
		"reduction_kwh":  reduction,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Action model.Action `json:"action"`
	}
	decodeJSON(t, rec, &body)
	assert.Equal(t, "block_b", body.Action.ZoneID)
	assert.Equal(t, "Dim corridor lighting for 20 minutes.", body.Action.Recommendation)
	assert.Equal(t, "Manual operator call.", body.Action.Rationale)
	assert.InDelta(t, 1.25, body.Action.ProposedReductionKWh, 0.001)
	assert.InDelta(t, round2(1.25*6.5), body.Action.ExpectedINRPerHour, 0.001)
}

func TestActions_ProposeErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.admin(t, http.MethodPost, "/actions/propose", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No block telemetry available yet")

	seedZones(env)
	rec = env.admin(t, http.MethodPost, "/actions/propose", map[string]any{"block_id": "ghost"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Block not found")
}

func TestActions_ExecuteActivatesTwinOnce(t *testing.T) {
	env := newTestEnv(t)
	seedZones(env)

	proposed := env.store.ProposeAction(store.Proposal{
		ZoneID: "block_a", ZoneLabel: "Block A", Mode: model.ModeManual,
		Recommendation: "lights off", Source: "manual_adr_event",
	})

	rec := env.admin(t, http.MethodPost, "/actions/"+proposed.ID+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Action model.Action `json:"action"`
	}
	decodeJSON(t, rec, &body)
	assert.Equal(t, model.ActionExecuted, body.Action.Status)
	assert.Equal(t, "admin", body.Action.Operator)
	require.NotNil(t, body.Action.PreEnergyKWh)
	assert.InDelta(t, 13.2, *body.Action.PreEnergyKWh, 0.001)

	state, ok := env.twin.ZoneControlState("block_a")
	require.True(t, ok)
	assert.Equal(t, proposed.ID, state.LastActionID)
	assert.Equal(t, 1, state.ActiveEffects)
	assert.False(t, state.LightsOn)

	// A retry responds 200 without stacking twin effects.
	rec = env.admin(t, http.MethodPost, "/actions/"+proposed.ID+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state, _ = env.twin.ZoneControlState("block_a")
	assert.Equal(t, 1, state.ActiveEffects)

	rec = env.admin(t, http.MethodPost, "/actions/missing/execute", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Action not found")
}

func TestActions_VerifyAndResolve(t *testing.T) {
	env := newTestEnv(t)
	seedZones(env)

	proposed := env.store.ProposeAction(store.Proposal{
		ZoneID: "block_a", ZoneLabel: "Block A", Mode: model.ModeManual,
		Recommendation: "shed discretionary load", Source: "manual_adr_event",
	})
	rec := env.admin(t, http.MethodPost, "/actions/"+proposed.ID+"/execute", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The zone recovers before verification.
	env.store.Update(model.Snapshot{
		ZoneID: "block_a", ZoneLabel: "Block A",
		EnergyKWh: 10.5, BaselineKWh: 10, Occupancy: 15, Temperature: 26,
		Status: model.StatusNecessary, DeviationPct: 5,
		TariffINRPerKWh: 6.5, CarbonKgPerKWh: 0.82,
		UpdatedAt: time.Now().UTC(),
	})

	rec = env.admin(t, http.MethodPost, "/actions/"+proposed.ID+"/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Action model.Action `json:"action"`
	}
	decodeJSON(t, rec, &body)
	assert.Equal(t, model.ActionVerified, body.Action.Status)
	assert.InDelta(t, 2.7, body.Action.VerifiedSavingsKWh, 0.001)
	assert.InDelta(t, 17.55, body.Action.VerifiedSavingsINR, 0.001)
	assert.InDelta(t, 2.214, body.Action.VerifiedCO2Kg, 0.001)
	assert.Equal(t, "Measured post-action drop confirms demand response gain.", body.Action.VerificationNote)

	rec = env.admin(t, http.MethodPost, "/actions/"+proposed.ID+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &body)
	assert.Equal(t, model.ActionResolved, body.Action.Status)

	// Resolving the action resolves its twin effects.
	state, ok := env.twin.ZoneControlState("block_a")
	require.True(t, ok)
	assert.Equal(t, 0, state.ActiveEffects)

	rec = env.admin(t, http.MethodPost, "/actions/missing/verify", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActions_ListWithSummary(t *testing.T) {
	env := newTestEnv(t)
	seedZones(env)

	first := env.store.ProposeAction(store.Proposal{
		ZoneID: "block_a", ZoneLabel: "Block A", Mode: model.ModeAutomated,
		Recommendation: "shed load", Source: "adr_policy_v1",
	})
	env.store.ProposeAction(store.Proposal{
		ZoneID: "block_b", ZoneLabel: "Block B", Mode: model.ModeManual,
		Recommendation: "lights off", Source: "manual_adr_event",
	})

	rec := env.admin(t, http.MethodGet, "/actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Actions []model.Action   `json:"actions"`
		Summary store.ADRSummary `json:"summary"`
	}
	decodeJSON(t, rec, &body)
	require.Len(t, body.Actions, 2)
	assert.Equal(t, 2, body.Summary.OpenActions)
	assert.Equal(t, 0, body.Summary.VerifiedActions)

	ids := []string{body.Actions[0].ID, body.Actions[1].ID}
	assert.Contains(t, ids, first.ID)
}
