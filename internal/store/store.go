package store

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"energysense/internal/model"
)

const (
	defaultHistoryWindow    = 300 * time.Second
	defaultHistoryMaxPoints = 240
	defaultActionCooldown   = 300 * time.Second
	autoVerifyDelay         = 30 * time.Second
)

// Proposal carries the inputs for a new demand-response action.
type Proposal struct {
	ZoneID               string
	ZoneLabel            string
	Mode                 model.ActionMode
	Recommendation       string
	Rationale            string
	Source               string
	DREventCode          string
	ReductionKWh         float64
	ExpectedINRPerHour   float64
	ExpectedCO2KgPerHour float64
}

// Stats aggregates the latest snapshots into org-wide totals.
type Stats struct {
	TotalEnergyKWh        float64 `json:"total_energy_kwh"`
	TotalSavingsKWh       float64 `json:"total_savings_kwh"`
	CO2Kg                 float64 `json:"co2_kg"`
	TotalCostINR          float64 `json:"total_cost_inr"`
	TotalWasteCostINR     float64 `json:"total_waste_cost_inr"`
	TotalCO2Kg            float64 `json:"total_co2_kg"`
	EfficiencyScore       float64 `json:"efficiency_score"`
	MonthlyAvoidedKWh     float64 `json:"monthly_avoided_kwh"`
	WasteZones            int     `json:"waste_blocks"`
	ZoneCount             int     `json:"block_count"`
	ADROpenActions        int     `json:"adr_open_actions"`
	ADRVerifiedSavingsKWh float64 `json:"adr_verified_savings_kwh"`
	ADRVerifiedSavingsINR float64 `json:"adr_verified_savings_inr"`
	ADRVerifiedCO2Kg      float64 `json:"adr_verified_co2_kg"`
}

// ADRSummary rolls up the demand-response action ledger.
type ADRSummary struct {
	OpenActions        int     `json:"open_actions"`
	ExecutedActions    int     `json:"executed_actions"`
	VerifiedActions    int     `json:"verified_actions"`
	VerifiedSavingsKWh float64 `json:"verified_savings_kwh"`
	VerifiedSavingsINR float64 `json:"verified_savings_inr"`
	VerifiedCO2Kg      float64 `json:"verified_co2_kg"`
}

// BaselineExample is one zone's configured baseline, surfaced for display.
type BaselineExample struct {
	ZoneID      string  `json:"block_id"`
	ZoneLabel   string  `json:"block_label"`
	BaselineKWh float64 `json:"baseline_kwh"`
}

// StreamState describes the liveness of the ingestion stream.
type StreamState struct {
	StreamStatus       string           `json:"stream_status"`
	LastIngestAt       *time.Time       `json:"last_ingest_at"`
	EventsLastMinute   int              `json:"events_last_minute"`
	EventRatePerMinute float64          `json:"event_rate_per_minute"`
	ZonesUpdated       int              `json:"blocks_updated"`
	BaselineExample    *BaselineExample `json:"baseline_example"`
}

// Stream status values reported by StreamState.
const (
	StreamWaiting = "WAITING_FOR_DATA"
	StreamIdle    = "IDLE"
	StreamLive    = "LIVE"
)

// Store is the single source of truth for zone snapshots, bounded history,
// alerts, demand-response actions, reports and the environment sample. One
// lock guards everything; reads hand out copies.
type Store struct {
	mu      sync.RWMutex
	zones   map[string]model.Snapshot
	history map[string][]model.HistoryPoint
	alerts  map[string]model.Alert
	actions map[string]model.Action
	reports map[string]model.Report
	env     model.Environment

	baselineExample *BaselineExample
	lastUpdate      time.Time

	orgID   string
	orgName string

	co2PerKWh        float64
	historyWindow    time.Duration
	historyMaxPoints int
	actionCooldown   time.Duration

	now func() time.Time
}

func New(orgID, orgName string) *Store {
	return &Store{
		zones:            make(map[string]model.Snapshot),
		history:          make(map[string][]model.HistoryPoint),
		alerts:           make(map[string]model.Alert),
		actions:          make(map[string]model.Action),
		reports:          make(map[string]model.Report),
		env:              model.DefaultEnvironment(),
		orgID:            orgID,
		orgName:          orgName,
		co2PerKWh:        model.DefaultCarbonKgPerKWh,
		historyWindow:    defaultHistoryWindow,
		historyMaxPoints: defaultHistoryMaxPoints,
		actionCooldown:   defaultActionCooldown,
		now:              time.Now,
	}
}

// OrgID returns the organisation id the store was created for.
func (s *Store) OrgID() string { return s.orgID }

// OrgName returns the organisation display name.
func (s *Store) OrgName() string { return s.orgName }

// Update overwrites a zone's snapshot, appends to its bounded history and
// auto-verifies any executed action for that zone that is past the
// verification delay.
func (s *Store) Update(snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.zones[snap.ZoneID] = snap
	s.appendHistory(snap)
	s.lastUpdate = s.now()
	s.autoVerify(snap)
}

// LastUpdate reports when the most recent snapshot arrived.
func (s *Store) LastUpdate() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastUpdate.IsZero() {
		return time.Time{}, false
	}
	return s.lastUpdate, true
}

// Snapshots returns all zone snapshots ordered by zone id.
func (s *Store) Snapshots() []model.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := make([]model.Snapshot, 0, len(s.zones))
	for _, snap := range s.zones {
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ZoneID < snaps[j].ZoneID })
	return snaps
}

// Zone returns the latest snapshot for one zone.
func (s *Store) Zone(zoneID string) (model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.zones[zoneID]
	return snap, ok
}

// History returns a copy of a zone's bounded history.
func (s *Store) History(zoneID string) []model.HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.history[zoneID]
	out := make([]model.HistoryPoint, len(points))
	copy(out, points)
	return out
}

// HistoryMap returns a copy of every zone's history, keyed by zone id.
func (s *Store) HistoryMap() map[string][]model.HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]model.HistoryPoint, len(s.history))
	for zoneID, points := range s.history {
		cp := make([]model.HistoryPoint, len(points))
		copy(cp, points)
		out[zoneID] = cp
	}
	return out
}

// appendHistory enforces the dual eviction bound: a trailing time window and
// a maximum point count. Must be called with mu held.
func (s *Store) appendHistory(snap model.Snapshot) {
	ts := snap.UpdatedAt
	if ts.IsZero() {
		ts = s.now()
	}

	points := append(s.history[snap.ZoneID], model.HistoryPoint{
		TS:           ts,
		DeviationPct: snap.DeviationPct,
		EnergyKWh:    snap.EnergyKWh,
		BaselineKWh:  snap.BaselineKWh,
		Occupancy:    snap.Occupancy,
		Temperature:  snap.Temperature,
	})

	cutoff := s.now().Add(-s.historyWindow)
	start := 0
	for start < len(points) && points[start].TS.Before(cutoff) {
		start++
	}
	if over := len(points) - start - s.historyMaxPoints; over > 0 {
		start += over
	}
	if start > 0 {
		points = append([]model.HistoryPoint(nil), points[start:]...)
	}
	s.history[snap.ZoneID] = points
}

// Stats aggregates current snapshots and the action ledger.
func (s *Store) Stats() Stats {
	zones := s.Snapshots()
	adr := s.ADRSummary()

	var totalEnergy, totalSavings, totalCost, totalWasteCost, totalCO2 float64
	wasteZones := 0
	for _, z := range zones {
		totalEnergy += z.EnergyKWh
		totalSavings += z.SavingsKWh
		totalCost += z.CostINR
		totalWasteCost += z.WasteCostINR
		totalCO2 += z.CO2Kg
		if z.Status == model.StatusWaste || z.Status == model.StatusPossibleWaste {
			wasteZones++
		}
	}

	efficiency := 100.0
	if totalEnergy > 0 {
		efficiency = math.Max(0, 100*(1-totalSavings/totalEnergy))
	}

	return Stats{
		TotalEnergyKWh:        round2(totalEnergy),
		TotalSavingsKWh:       round2(totalSavings),
		CO2Kg:                 round2(totalSavings * s.co2PerKWh),
		TotalCostINR:          round2(totalCost),
		TotalWasteCostINR:     round2(totalWasteCost),
		TotalCO2Kg:            round2(totalCO2),
		EfficiencyScore:       round1(efficiency),
		MonthlyAvoidedKWh:     round1(totalSavings * 24 * 30),
		WasteZones:            wasteZones,
		ZoneCount:             len(zones),
		ADROpenActions:        adr.OpenActions,
		ADRVerifiedSavingsKWh: adr.VerifiedSavingsKWh,
		ADRVerifiedSavingsINR: adr.VerifiedSavingsINR,
		ADRVerifiedCO2Kg:      adr.VerifiedCO2Kg,
	}
}

// Environment returns the latest context sample.
func (s *Store) Environment() model.Environment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.env
}

// SetEnvironment overwrites the process-wide context sample.
func (s *Store) SetEnvironment(env model.Environment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env = env
}

// SetBaselineExample records one configured zone baseline for display.
func (s *Store) SetBaselineExample(zoneID, zoneLabel string, baselineKWh float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselineExample = &BaselineExample{ZoneID: zoneID, ZoneLabel: zoneLabel, BaselineKWh: baselineKWh}
}

// StreamState reports ingestion liveness over the trailing minute.
func (s *Store) StreamState() StreamState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	cutoff := now.Add(-time.Minute)

	events := 0
	for _, points := range s.history {
		for _, p := range points {
			if !p.TS.Before(cutoff) {
				events++
			}
		}
	}

	zonesUpdated := 0
	for _, snap := range s.zones {
		if !snap.UpdatedAt.Before(cutoff) {
			zonesUpdated++
		}
	}

	status := StreamLive
	var lastIngest *time.Time
	if s.lastUpdate.IsZero() {
		status = StreamWaiting
	} else {
		t := s.lastUpdate
		lastIngest = &t
		if events == 0 {
			status = StreamIdle
		}
	}

	var example *BaselineExample
	if s.baselineExample != nil {
		cp := *s.baselineExample
		example = &cp
	}

	return StreamState{
		StreamStatus:       status,
		LastIngestAt:       lastIngest,
		EventsLastMinute:   events,
		EventRatePerMinute: round2(float64(events)),
		ZonesUpdated:       zonesUpdated,
		BaselineExample:    example,
	}
}

// RaiseAlert creates an alert for the zone, or bumps the existing unresolved
// one. At most one unresolved alert exists per zone.
func (s *Store) RaiseAlert(zoneID, zoneLabel, severity, message string) model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, alert := range s.alerts {
		if alert.ZoneID != zoneID || alert.Resolved {
			continue
		}
		alert.LastSeen = now
		alert.Count++
		s.alerts[id] = alert
		return alert
	}

	alert := model.Alert{
		ID:        uuid.NewString(),
		ZoneID:    zoneID,
		ZoneLabel: zoneLabel,
		Severity:  severity,
		Message:   message,
		CreatedAt: now,
		LastSeen:  now,
		Count:     1,
	}
	s.alerts[alert.ID] = alert
	return alert
}

// Alerts returns all alerts, newest first.
func (s *Store) Alerts() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := make([]model.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		alerts = append(alerts, alert)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].CreatedAt.After(alerts[j].CreatedAt) })
	return alerts
}

// AcknowledgeAlert marks an alert as seen by an operator. Acknowledging does
// not resolve it.
func (s *Store) AcknowledgeAlert(alertID, user string) (model.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[alertID]
	if !ok {
		return model.Alert{}, false
	}
	alert.Acknowledged = true
	alert.AckBy = user
	s.alerts[alertID] = alert
	return alert, true
}

// ResolveAlert closes an alert. The zone can alert again afterwards.
func (s *Store) ResolveAlert(alertID, user string) (model.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[alertID]
	if !ok {
		return model.Alert{}, false
	}
	alert.Resolved = true
	alert.ResolvedBy = user
	s.alerts[alertID] = alert
	return alert, true
}

// SetReport stores a generated report, replacing the previous one of its type.
func (s *Store) SetReport(reportType, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[reportType] = model.Report{
		ReportType:  reportType,
		Content:     content,
		GeneratedAt: s.now(),
	}
}

// Reports returns the latest report of each type.
func (s *Store) Reports() []model.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := make([]model.Report, 0, len(s.reports))
	for _, r := range s.reports {
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].ReportType < reports[j].ReportType })
	return reports
}

// ProposeAction creates a PROPOSED action unless the zone already has an open
// one inside the cooldown window, in which case that action is returned
// unchanged.
func (s *Store) ProposeAction(p Proposal) model.Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, action := range s.actions {
		if action.ZoneID != p.ZoneID {
			continue
		}
		if action.Status != model.ActionProposed && action.Status != model.ActionExecuted {
			continue
		}
		if now.Sub(action.ProposedAt) <= s.actionCooldown {
			return action
		}
	}

	action := model.Action{
		ID:                   uuid.NewString(),
		ZoneID:               p.ZoneID,
		ZoneLabel:            p.ZoneLabel,
		Mode:                 p.Mode,
		Status:               model.ActionProposed,
		Recommendation:       p.Recommendation,
		Rationale:            p.Rationale,
		Source:               p.Source,
		DREventCode:          p.DREventCode,
		ProposedReductionKWh: math.Max(p.ReductionKWh, 0),
		ExpectedINRPerHour:   math.Max(p.ExpectedINRPerHour, 0),
		ExpectedCO2KgPerHour: math.Max(p.ExpectedCO2KgPerHour, 0),
		ProposedAt:           now,
	}
	s.actions[action.ID] = action
	return action
}

// Actions returns actions newest first, truncated to limit when limit > 0.
func (s *Store) Actions(limit int) []model.Action {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions := make([]model.Action, 0, len(s.actions))
	for _, action := range s.actions {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].ProposedAt.After(actions[j].ProposedAt) })
	if limit > 0 && len(actions) > limit {
		actions = actions[:limit]
	}
	return actions
}

// ExecuteAction moves a PROPOSED action to EXECUTED, recording the operator
// and the zone's current energy as the pre-action reference. Actions in any
// other state are returned unchanged.
func (s *Store) ExecuteAction(actionID, user string) (model.Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.actions[actionID]
	if !ok {
		return model.Action{}, false
	}
	if action.Status != model.ActionProposed {
		return action, true
	}

	now := s.now()
	action.Status = model.ActionExecuted
	action.ExecutedAt = &now
	action.Operator = user
	if snap, ok := s.zones[action.ZoneID]; ok {
		pre := snap.EnergyKWh
		action.PreEnergyKWh = &pre
	}
	s.actions[actionID] = action
	return action, true
}

// VerifyAction verifies an EXECUTED action against the zone's current
// snapshot. Verifying an already VERIFIED action recomputes the figures.
func (s *Store) VerifyAction(actionID, user string) (model.Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.actions[actionID]
	if !ok {
		return model.Action{}, false
	}
	if action.Status != model.ActionExecuted && action.Status != model.ActionVerified {
		return action, true
	}
	snap, ok := s.zones[action.ZoneID]
	if !ok {
		return action, true
	}
	s.applyVerification(&action, snap, user)
	s.actions[actionID] = action
	return action, true
}

// ResolveAction moves an action to the terminal RESOLVED state.
func (s *Store) ResolveAction(actionID, user string) (model.Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action, ok := s.actions[actionID]
	if !ok {
		return model.Action{}, false
	}
	now := s.now()
	action.Status = model.ActionResolved
	action.ResolvedAt = &now
	action.Operator = user
	s.actions[actionID] = action
	return action, true
}

// ADRSummary rolls up the action ledger.
func (s *Store) ADRSummary() ADRSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary ADRSummary
	for _, action := range s.actions {
		switch action.Status {
		case model.ActionProposed:
			summary.OpenActions++
		case model.ActionExecuted:
			summary.OpenActions++
			summary.ExecutedActions++
		case model.ActionVerified, model.ActionResolved:
			summary.VerifiedActions++
			summary.VerifiedSavingsKWh += action.VerifiedSavingsKWh
			summary.VerifiedSavingsINR += action.VerifiedSavingsINR
			summary.VerifiedCO2Kg += action.VerifiedCO2Kg
		}
	}
	summary.VerifiedSavingsKWh = round2(summary.VerifiedSavingsKWh)
	summary.VerifiedSavingsINR = round2(summary.VerifiedSavingsINR)
	summary.VerifiedCO2Kg = round2(summary.VerifiedCO2Kg)
	return summary
}

// autoVerify applies verification to executed actions for the snapshot's zone
// once the verification delay has elapsed. Must be called with mu held.
func (s *Store) autoVerify(snap model.Snapshot) {
	now := s.now()
	for id, action := range s.actions {
		if action.ZoneID != snap.ZoneID || action.Status != model.ActionExecuted || action.ExecutedAt == nil {
			continue
		}
		if now.Sub(*action.ExecutedAt) < autoVerifyDelay {
			continue
		}
		s.applyVerification(&action, snap, "")
		s.actions[id] = action
	}
}

// applyVerification computes verified savings from the pre-action energy
// (falling back to the zone baseline) and the snapshot's current energy.
// Must be called with mu held.
func (s *Store) applyVerification(action *model.Action, snap model.Snapshot, user string) {
	pre := snap.BaselineKWh
	if action.PreEnergyKWh != nil {
		pre = *action.PreEnergyKWh
	}
	post := snap.EnergyKWh
	savings := math.Max(pre-post, 0)

	now := s.now()
	action.PostEnergyKWh = &post
	action.VerifiedSavingsKWh = round3(savings)
	action.VerifiedSavingsINR = round3(savings * snap.TariffINRPerKWh)
	action.VerifiedCO2Kg = round3(savings * snap.CarbonKgPerKWh)
	action.VerifiedAt = &now
	action.Status = model.ActionVerified
	if user != "" {
		action.Operator = user
	}
	if savings > 0 {
		action.VerificationNote = "Measured post-action drop confirms demand response gain."
	} else {
		action.VerificationNote = "No measurable drop yet; review control execution and context."
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
