package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energysense/internal/model"
	"energysense/internal/twin"
)

var bridgeTime = time.Date(2026, 2, 26, 9, 0, 0, 0, time.UTC)

func newTestBridge() (*Bridge, *Client) {
	hub := NewHub(nil)
	client := &Client{hub: hub, send: make(chan []byte, 256)}
	hub.Register(client)
	bridge := NewBridge(hub, nil)
	return bridge, client
}

func receiveEnvelope(t *testing.T, c *Client) Envelope {
	t.Helper()
	msg := <-c.send
	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestBridge_OnAlert(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.OnAlert(model.Alert{
		ID:        "al-1",
		ZoneID:    "block_a",
		ZoneLabel: "Block A",
		Severity:  model.SeverityHigh,
		Message:   "Persistent WASTE detected for 5 minutes.",
		CreatedAt: bridgeTime,
		LastSeen:  bridgeTime,
		Count:     2,
	})

	env := receiveEnvelope(t, client)
	assert.Equal(t, TypeAlertNew, env.Type)

	var p model.Alert
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "al-1", p.ID)
	assert.Equal(t, "Block A", p.ZoneLabel)
	assert.Equal(t, model.SeverityHigh, p.Severity)
	assert.Equal(t, "Persistent WASTE detected for 5 minutes.", p.Message)
	assert.Equal(t, 2, p.Count)
}

func TestBridge_OnAction(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.OnAction(model.Action{
		ID:                   "act-1",
		ZoneID:               "block_a",
		ZoneLabel:            "Block A",
		Mode:                 model.ModeAutomated,
		Status:               model.ActionProposed,
		Recommendation:       "Shed non-critical lighting and plug loads for 15 minutes.",
		Source:               "adr_policy_v1",
		DREventCode:          "ADR-090000",
		ProposedReductionKWh: 2.025,
		ProposedAt:           bridgeTime,
	})

	env := receiveEnvelope(t, client)
	assert.Equal(t, TypeActionUpdate, env.Type)

	var p model.Action
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "act-1", p.ID)
	assert.Equal(t, model.ModeAutomated, p.Mode)
	assert.Equal(t, model.ActionProposed, p.Status)
	assert.Equal(t, "ADR-090000", p.DREventCode)
	assert.InDelta(t, 2.025, p.ProposedReductionKWh, 0.001)
}

func TestBridge_OnTrace(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.OnTrace(twin.TraceInfo{
		ZoneID:       "block_a",
		TS:           bridgeTime,
		Source:       "api",
		RawEnergyKWh: 12.0,
		SimulatedKWh: 10.9,
		ReductionPct: 9.2,
		Stage:        "sustain",
		Applied:      true,
	})

	env := receiveEnvelope(t, client)
	assert.Equal(t, TypeTwinTrace, env.Type)

	var p twin.TraceInfo
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "block_a", p.ZoneID)
	assert.Equal(t, "api", p.Source)
	assert.InDelta(t, 12.0, p.RawEnergyKWh, 0.001)
	assert.InDelta(t, 10.9, p.SimulatedKWh, 0.001)
	assert.True(t, p.Applied)
}

func TestBridge_DashboardUpdate(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.DashboardUpdate(map[string]any{
		"org_id":   "org_campus",
		"org_name": "CIT Campus",
	})

	env := receiveEnvelope(t, client)
	assert.Equal(t, TypeDashboardUpdate, env.Type)

	var p map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "org_campus", p["org_id"])
	assert.Equal(t, "CIT Campus", p["org_name"])
}

func TestBridge_UnmarshalablePayloadIsDropped(t *testing.T) {
	bridge, client := newTestBridge()

	bridge.DashboardUpdate(make(chan int))

	assert.Zero(t, len(client.send))
}
