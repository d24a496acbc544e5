package twin

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"energysense/internal/model"
)

const (
	twinSeed     = 20260226
	traceRingMax = 40
	eventRingMax = 20
	// Trace correlation tolerance for matching a reading to its mutation.
	traceMatchTolerance = 8 * time.Second
)

// Activation sources recorded on effects and action events.
const (
	SourceADRExecute  = "ADR_EXECUTE"
	SourceManualPanel = "MANUAL_TWIN_PANEL"
)

// ControlEffect is one timed, ramping simulated intervention on a zone.
type ControlEffect struct {
	ID          string
	ZoneID      string
	ZoneLabel   string
	ActionID    string
	ControlType string
	Source      string
	StartedAt   time.Time
	Ramp        time.Duration
	Duration    time.Duration
	TargetPct   float64
	Resolved    bool
}

// zoneState is the derived display state per zone, recomputed from active
// effects on every cleanup.
type zoneState struct {
	zoneID          string
	zoneLabel       string
	baselineKWh     float64
	hvacMode        string
	hvacSetpointC   float64
	lightsOn        bool
	ventilationMode string
	lastActionID    string
	lastActionAt    time.Time
}

type sourceTrace struct {
	zoneID        string
	ts            time.Time
	source        string
	rawKWh        float64
	simulatedKWh  float64
	reductionPct  float64
	stage         string
	activeEffects int
	progressPct   float64
	applied       bool
}

type reduction struct {
	pct      float64
	active   int
	progress float64
	stage    string
}

// Modes reports which of the two twin modes are enabled.
type Modes struct {
	OverlayEnabled bool `json:"option_a_overlay_enabled"`
	SourceEnabled  bool `json:"option_b_source_enabled"`
}

// EffectSummary describes a created effect in activation responses.
type EffectSummary struct {
	EffectID           string  `json:"effect_id"`
	ControlType        string  `json:"control_type"`
	TargetReductionPct float64 `json:"target_reduction_pct"`
	RampSeconds        int     `json:"ramp_seconds"`
	DurationSeconds    int     `json:"duration_seconds"`
}

// EffectDetail is one active effect in the state summary.
type EffectDetail struct {
	EffectID           string  `json:"effect_id"`
	ActionID           string  `json:"action_id"`
	ZoneID             string  `json:"block_id"`
	ZoneLabel          string  `json:"block_label"`
	ControlType        string  `json:"control_type"`
	TargetReductionPct float64 `json:"target_reduction_pct"`
	ProgressPct        float64 `json:"progress_pct"`
	Stage              string  `json:"stage"`
	RemainingSeconds   int     `json:"remaining_seconds"`
	Source             string  `json:"source"`
}

// ActionEvent is one entry in the recent-activations ring.
type ActionEvent struct {
	TS                   time.Time       `json:"ts"`
	ActionID             string          `json:"action_id"`
	ZoneID               string          `json:"block_id"`
	ZoneLabel            string          `json:"block_label"`
	Source               string          `json:"source"`
	Recommendation       string          `json:"recommendation"`
	Effects              []EffectSummary `json:"effects"`
	ExpectedReductionPct float64         `json:"expected_reduction_pct"`
	Stage                string          `json:"stage"`
}

// TraceInfo is a source-mutation trace prepared for display, percentages in
// 0..100.
type TraceInfo struct {
	ZoneID        string    `json:"block_id"`
	TS            time.Time `json:"ts"`
	Source        string    `json:"source"`
	RawEnergyKWh  float64   `json:"raw_energy_kwh"`
	SimulatedKWh  float64   `json:"simulated_energy_kwh"`
	ReductionPct  float64   `json:"reduction_pct"`
	Stage         string    `json:"stage"`
	ActiveEffects int       `json:"active_effects"`
	ProgressPct   float64   `json:"progress_pct"`
	Applied       bool      `json:"applied"`
}

// Activation ties an executed action's recommendation to a zone.
type Activation struct {
	ActionID       string
	ZoneID         string
	ZoneLabel      string
	Recommendation string
	Occupancy      float64
	Temperature    float64
	Source         string
}

// ActivationResult reports the effects created for an action.
type ActivationResult struct {
	Activated            bool            `json:"activated"`
	OverlayEnabled       bool            `json:"option_a_overlay_enabled"`
	SourceEnabled        bool            `json:"option_b_source_enabled"`
	ZoneID               string          `json:"block_id"`
	ZoneLabel            string          `json:"block_label"`
	Effects              []EffectSummary `json:"effects"`
	ExpectedReductionPct float64         `json:"expected_reduction_pct"`
	Stage                string          `json:"stage"`
}

// ManualControls are the control-panel inputs. Delta and duration are
// clamped to 0.5..4.0 C and 1..60 minutes.
type ManualControls struct {
	ZoneID          string
	ZoneLabel       string
	HVACEco         bool
	LightsOff       bool
	VentilationEco  bool
	SetpointDeltaC  float64
	DurationMinutes int
	ReplaceExisting bool
	Occupancy       float64
	Temperature     float64
}

// ControlsEcho echoes the applied panel inputs back to the caller.
type ControlsEcho struct {
	HVACEco         bool    `json:"hvac_eco"`
	LightsOff       bool    `json:"lights_off"`
	VentilationEco  bool    `json:"ventilation_eco"`
	SetpointDeltaC  float64 `json:"hvac_setpoint_delta_c"`
	DurationMinutes int     `json:"duration_minutes"`
}

// ManualResult reports the effects created from the control panel.
type ManualResult struct {
	Activated            bool            `json:"activated"`
	Manual               bool            `json:"manual"`
	ZoneID               string          `json:"block_id"`
	ZoneLabel            string          `json:"block_label"`
	Effects              []EffectSummary `json:"effects"`
	ExpectedReductionPct float64         `json:"expected_reduction_pct"`
	Stage                string          `json:"stage"`
	Controls             ControlsEcho    `json:"controls"`
}

// ControlState is a zone's derived display state.
type ControlState struct {
	ZoneID          string     `json:"block_id"`
	ZoneLabel       string     `json:"block_label"`
	HVACMode        string     `json:"hvac_mode"`
	HVACSetpointC   float64    `json:"hvac_setpoint_c"`
	LightsOn        bool       `json:"lights_on"`
	VentilationMode string     `json:"ventilation_mode"`
	ActiveEffects   int        `json:"active_effects"`
	Stage           string     `json:"stage"`
	LastActionID    string     `json:"last_action_id"`
	LastActionAt    *time.Time `json:"last_action_at"`
}

// Overlay is the counterfactual preview for one zone. When no effects are
// active only the mode and stage fields are meaningful.
type Overlay struct {
	Enabled       bool         `json:"enabled"`
	Applied       bool         `json:"applied"`
	ReductionPct  float64      `json:"reduction_pct"`
	Stage         string       `json:"stage"`
	ActiveEffects int          `json:"active_effects"`
	ProgressPct   float64      `json:"progress_pct"`
	EnergyKWh     float64      `json:"energy_kwh"`
	DeviationPct  float64      `json:"deviation_pct"`
	SavingsKWh    float64      `json:"savings_kwh"`
	CostINR       float64      `json:"cost_inr"`
	WasteCostINR  float64      `json:"waste_cost_inr"`
	CO2Kg         float64      `json:"co2_kg"`
	Status        model.Status `json:"status,omitempty"`
}

// Summary is the full twin state for dashboards.
type Summary struct {
	OverlayEnabled      bool           `json:"option_a_overlay_enabled"`
	SourceEnabled       bool           `json:"option_b_source_enabled"`
	ActiveEffects       int            `json:"active_effects"`
	ControlledZones     int            `json:"controlled_blocks"`
	ControlledZoneIDs   []string       `json:"controlled_block_ids"`
	OverlayDeltaKWhNow  float64        `json:"overlay_preview_delta_kwh_now"`
	OverlayPreviewZones int            `json:"overlay_preview_blocks"`
	LastSourceTrace     *TraceInfo     `json:"last_source_trace"`
	EffectDetails       []EffectDetail `json:"active_effect_details"`
	RecentActions       []ActionEvent  `json:"recent_actions"`
}

// Twin simulates control effects on zones. Overlay mode previews expected
// numbers without touching telemetry; source mode mutates raw readings before
// they reach the pipeline, closing the demand-response loop.
type Twin struct {
	mu             sync.Mutex
	rng            *rand.Rand
	zones          map[string]*zoneState
	effects        map[string]*ControlEffect
	traces         map[string][]sourceTrace
	recentActions  []ActionEvent
	overlayEnabled bool
	sourceEnabled  bool

	now func() time.Time
}

func New(overlayEnabled, sourceEnabled bool) *Twin {
	return &Twin{
		rng:            rand.New(rand.NewPCG(twinSeed, 0)),
		zones:          make(map[string]*zoneState),
		effects:        make(map[string]*ControlEffect),
		traces:         make(map[string][]sourceTrace),
		overlayEnabled: overlayEnabled,
		sourceEnabled:  sourceEnabled,
		now:            time.Now,
	}
}

// RegisterZones seeds display state for the configured zones.
func (t *Twin) RegisterZones(profiles []model.ZoneProfile) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range profiles {
		if p.ID == "" {
			continue
		}
		label := p.Label
		if label == "" {
			label = p.ID
		}
		if state, ok := t.zones[p.ID]; ok {
			state.zoneLabel = label
			state.baselineKWh = p.BaselineKWh
			continue
		}
		t.zones[p.ID] = newZoneState(p.ID, label, p.BaselineKWh)
	}
}

func newZoneState(zoneID, label string, baseline float64) *zoneState {
	return &zoneState{
		zoneID:          zoneID,
		zoneLabel:       label,
		baselineKWh:     baseline,
		hvacMode:        "NORMAL",
		hvacSetpointC:   24.0,
		lightsOn:        true,
		ventilationMode: "NORMAL",
	}
}

// SetModes toggles the overlay and source modes; nil leaves a mode unchanged.
func (t *Twin) SetModes(overlayEnabled, sourceEnabled *bool) Modes {
	t.mu.Lock()
	defer t.mu.Unlock()
	if overlayEnabled != nil {
		t.overlayEnabled = *overlayEnabled
	}
	if sourceEnabled != nil {
		t.sourceEnabled = *sourceEnabled
	}
	return Modes{OverlayEnabled: t.overlayEnabled, SourceEnabled: t.sourceEnabled}
}

// Modes returns the current mode flags.
func (t *Twin) Modes() Modes {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Modes{OverlayEnabled: t.overlayEnabled, SourceEnabled: t.sourceEnabled}
}

// ActivateFromAction creates effects for an executed action by parsing its
// recommendation text. Text that matches no keyword falls back to a generic
// load shed so an executed action always perturbs the zone.
func (t *Twin) ActivateFromAction(a Activation) ActivationResult {
	source := a.Source
	if source == "" {
		source = SourceADRExecute
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.cleanupLocked(now)
	state := t.ensureZoneLocked(a.ZoneID, a.ZoneLabel)

	// Repeat activation of an action whose effects are still live is
	// idempotent and reports the existing effects.
	if a.ActionID != "" {
		if live := t.actionEffectsLocked(a.ActionID); len(live) > 0 {
			red := t.computeReductionLocked(a.ZoneID, a.Occupancy, defaultTemp(a.Temperature), now)
			return ActivationResult{
				Activated:            true,
				OverlayEnabled:       t.overlayEnabled,
				SourceEnabled:        t.sourceEnabled,
				ZoneID:               a.ZoneID,
				ZoneLabel:            state.zoneLabel,
				Effects:              live,
				ExpectedReductionPct: round1(red.pct * 100),
				Stage:                red.stage,
			}
		}
	}

	specs := ParseEffects(a.Recommendation)
	if len(specs) == 0 {
		specs = []EffectSpec{loadShedSpec()}
	}

	created := t.createEffectsLocked(state, a.ActionID, source, specs, now)
	state.lastActionID = a.ActionID
	state.lastActionAt = now

	red := t.computeReductionLocked(a.ZoneID, a.Occupancy, defaultTemp(a.Temperature), now)
	t.recordActionEventLocked(ActionEvent{
		TS:                   now,
		ActionID:             a.ActionID,
		ZoneID:               a.ZoneID,
		ZoneLabel:            state.zoneLabel,
		Source:               source,
		Recommendation:       a.Recommendation,
		Effects:              created,
		ExpectedReductionPct: round1(red.pct * 100),
		Stage:                red.stage,
	})

	return ActivationResult{
		Activated:            true,
		OverlayEnabled:       t.overlayEnabled,
		SourceEnabled:        t.sourceEnabled,
		ZoneID:               a.ZoneID,
		ZoneLabel:            state.zoneLabel,
		Effects:              created,
		ExpectedReductionPct: round1(red.pct * 100),
		Stage:                red.stage,
	}
}

// ResolveAction marks every effect tied to the action as resolved and returns
// how many were affected.
func (t *Twin) ResolveAction(actionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, effect := range t.effects {
		if effect.ActionID == actionID && !effect.Resolved {
			effect.Resolved = true
			count++
		}
	}
	return count
}

// ApplyManualControls creates effects from the control panel. Selecting
// nothing resets the zone to normal operation.
func (t *Twin) ApplyManualControls(p ManualControls) ManualResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.cleanupLocked(now)
	state := t.ensureZoneLocked(p.ZoneID, p.ZoneLabel)

	if p.ReplaceExisting {
		t.clearZoneEffectsLocked(p.ZoneID)
	}

	durationMinutes := p.DurationMinutes
	if durationMinutes < 1 {
		durationMinutes = 1
	} else if durationMinutes > 60 {
		durationMinutes = 60
	}
	duration := time.Duration(durationMinutes) * time.Minute
	delta := math.Max(0.5, math.Min(p.SetpointDeltaC, 4.0))

	var specs []EffectSpec
	if p.HVACEco {
		specs = append(specs, EffectSpec{
			ControlType: fmt.Sprintf("HVAC_SETPOINT_PLUS_%dC", int(math.Round(delta))),
			TargetPct:   math.Min(0.08+(delta-0.5)*0.04, 0.18),
			Ramp:        time.Duration((120 + delta*25) * float64(time.Second)),
			Duration:    duration,
		})
	}
	if p.LightsOff {
		specs = append(specs, EffectSpec{ControlLights, 0.06, 8 * time.Second, duration})
	}
	if p.VentilationEco {
		specs = append(specs, EffectSpec{ControlVent, 0.08, 60 * time.Second, duration})
	}

	echo := ControlsEcho{
		HVACEco:         p.HVACEco,
		LightsOff:       p.LightsOff,
		VentilationEco:  p.VentilationEco,
		SetpointDeltaC:  delta,
		DurationMinutes: durationMinutes,
	}

	if len(specs) == 0 {
		t.recordActionEventLocked(ActionEvent{
			TS:             now,
			ZoneID:         p.ZoneID,
			ZoneLabel:      state.zoneLabel,
			Source:         SourceManualPanel,
			Recommendation: "Reset manual twin controls to NORMAL operation.",
			Effects:        []EffectSummary{},
			Stage:          StageIdle,
		})
		t.cleanupLocked(now)
		echo.HVACEco = false
		echo.LightsOff = false
		echo.VentilationEco = false
		return ManualResult{
			Activated: true,
			Manual:    true,
			ZoneID:    p.ZoneID,
			ZoneLabel: state.zoneLabel,
			Effects:   []EffectSummary{},
			Stage:     StageIdle,
			Controls:  echo,
		}
	}

	created := t.createEffectsLocked(state, "", SourceManualPanel, specs, now)
	state.lastActionID = ""
	state.lastActionAt = now

	red := t.computeReductionLocked(p.ZoneID, p.Occupancy, defaultTemp(p.Temperature), now)
	t.recordActionEventLocked(ActionEvent{
		TS:                   now,
		ZoneID:               p.ZoneID,
		ZoneLabel:            state.zoneLabel,
		Source:               SourceManualPanel,
		Recommendation:       manualRecommendation(p.HVACEco, p.LightsOff, p.VentilationEco, delta, durationMinutes),
		Effects:              created,
		ExpectedReductionPct: round1(red.pct * 100),
		Stage:                red.stage,
	})

	return ManualResult{
		Activated:            true,
		Manual:               true,
		ZoneID:               p.ZoneID,
		ZoneLabel:            state.zoneLabel,
		Effects:              created,
		ExpectedReductionPct: round1(red.pct * 100),
		Stage:                red.stage,
		Controls:             echo,
	}
}

// ApplySourceReading runs a raw reading through the active effects. When
// source mode is on and the zone has active effects, the energy is reduced
// with a little symmetric noise; every pass is traced either way.
func (t *Twin) ApplySourceReading(reading model.Reading, source string) model.Reading {
	ts := reading.TS
	if ts.IsZero() {
		ts = t.now()
	}

	t.mu.Lock()
	t.cleanupLocked(ts)
	red := t.computeReductionLocked(reading.ZoneID, reading.Occupancy, reading.Temperature, ts)

	applied := t.sourceEnabled && red.active > 0
	simulated := reading.EnergyKWh
	if applied && reading.EnergyKWh > 0 {
		// Small noise avoids obviously deterministic drops.
		noise := (t.rng.Float64()*0.006 - 0.003) * reading.EnergyKWh
		simulated = math.Max(0.15, reading.EnergyKWh*(1-red.pct)+noise)
	}

	traces := append(t.traces[reading.ZoneID], sourceTrace{
		zoneID:        reading.ZoneID,
		ts:            ts,
		source:        source,
		rawKWh:        round4(reading.EnergyKWh),
		simulatedKWh:  round4(simulated),
		reductionPct:  red.pct,
		stage:         red.stage,
		activeEffects: red.active,
		progressPct:   red.progress,
		applied:       applied,
	})
	if len(traces) > traceRingMax {
		traces = traces[len(traces)-traceRingMax:]
	}
	t.traces[reading.ZoneID] = traces
	t.mu.Unlock()

	out := reading
	out.EnergyKWh = round2(simulated)
	return out
}

// MatchSourceTrace correlates a reading timestamp with the nearest mutation
// trace for the zone. Beyond the tolerance it falls back to the most recent
// trace; a zero timestamp skips matching entirely.
func (t *Twin) MatchSourceTrace(zoneID string, eventTS time.Time) (TraceInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	traces := t.traces[zoneID]
	if len(traces) == 0 {
		return TraceInfo{}, false
	}

	best := -1
	if !eventTS.IsZero() {
		var bestDiff time.Duration
		for i, tr := range traces {
			diff := tr.ts.Sub(eventTS)
			if diff < 0 {
				diff = -diff
			}
			if best == -1 || diff < bestDiff {
				best, bestDiff = i, diff
			}
		}
		if bestDiff > traceMatchTolerance {
			best = -1
		}
	}
	if best == -1 {
		best = len(traces) - 1
	}
	return traceInfo(traces[best]), true
}

// OverlayPreview computes the counterfactual numbers for a zone snapshot.
// Returns nil when overlay mode is disabled.
func (t *Twin) OverlayPreview(snap model.Snapshot) *Overlay {
	t.mu.Lock()
	if !t.overlayEnabled || snap.ZoneID == "" {
		t.mu.Unlock()
		return nil
	}

	now := t.now()
	t.cleanupLocked(now)
	red := t.computeReductionLocked(snap.ZoneID, snap.Occupancy, snap.Temperature, now)
	t.mu.Unlock()

	if red.active == 0 {
		return &Overlay{Enabled: true, Applied: false, Stage: StageIdle}
	}

	tariff := snap.TariffINRPerKWh
	if tariff == 0 {
		tariff = model.DefaultTariffINRPerKWh
	}
	carbon := snap.CarbonKgPerKWh
	if carbon == 0 {
		carbon = model.DefaultCarbonKgPerKWh
	}

	energy := math.Max(0.15, snap.EnergyKWh*(1-red.pct))
	deviation := 0.0
	if snap.BaselineKWh > 0 {
		deviation = (energy - snap.BaselineKWh) / snap.BaselineKWh * 100
	}
	savings := math.Max(energy-snap.BaselineKWh, 0)

	return &Overlay{
		Enabled:       true,
		Applied:       true,
		ReductionPct:  round1(red.pct * 100),
		Stage:         red.stage,
		ActiveEffects: red.active,
		ProgressPct:   round1(red.progress * 100),
		EnergyKWh:     round2(energy),
		DeviationPct:  round1(deviation),
		SavingsKWh:    round2(savings),
		CostINR:       round2(energy * tariff),
		WasteCostINR:  round2(savings * tariff),
		CO2Kg:         round2(energy * carbon),
		Status:        classifyStatus(energy, snap.BaselineKWh, snap.Occupancy, snap.Temperature),
	}
}

// ZoneControlState returns a zone's derived display state.
func (t *Twin) ZoneControlState(zoneID string) (ControlState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.cleanupLocked(now)
	state, ok := t.zones[zoneID]
	if !ok {
		return ControlState{}, false
	}

	active := 0
	for _, effect := range t.effects {
		if effect.ZoneID == zoneID && !isExpired(effect, now) {
			active++
		}
	}
	red := t.computeReductionLocked(zoneID, 0, 28, now)

	cs := ControlState{
		ZoneID:          zoneID,
		ZoneLabel:       state.zoneLabel,
		HVACMode:        state.hvacMode,
		HVACSetpointC:   state.hvacSetpointC,
		LightsOn:        state.lightsOn,
		VentilationMode: state.ventilationMode,
		ActiveEffects:   active,
		Stage:           red.stage,
		LastActionID:    state.lastActionID,
	}
	if !state.lastActionAt.IsZero() {
		at := state.lastActionAt
		cs.LastActionAt = &at
	}
	return cs, true
}

// Summary assembles the full twin state. When snapshots are supplied and
// overlay mode is on, the preview delta across zones is totalled as well.
func (t *Twin) Summary(snapshots []model.Snapshot) Summary {
	t.mu.Lock()
	now := t.now()
	t.cleanupLocked(now)

	var active []*ControlEffect
	zoneSet := make(map[string]struct{})
	for _, effect := range t.effects {
		if isExpired(effect, now) {
			continue
		}
		active = append(active, effect)
		zoneSet[effect.ZoneID] = struct{}{}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StartedAt.After(active[j].StartedAt) })

	zoneIDs := make([]string, 0, len(zoneSet))
	for id := range zoneSet {
		zoneIDs = append(zoneIDs, id)
	}
	sort.Strings(zoneIDs)

	details := make([]EffectDetail, 0, len(active))
	for _, effect := range active {
		if len(details) == 12 {
			break
		}
		progress := effectProgress(effect, now)
		remaining := effect.StartedAt.Add(effect.Duration).Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		details = append(details, EffectDetail{
			EffectID:           effect.ID,
			ActionID:           effect.ActionID,
			ZoneID:             effect.ZoneID,
			ZoneLabel:          effect.ZoneLabel,
			ControlType:        effect.ControlType,
			TargetReductionPct: round1(effect.TargetPct * 100),
			ProgressPct:        round1(progress * 100),
			Stage:              stageFor(progress),
			RemainingSeconds:   int(remaining.Seconds()),
			Source:             effect.Source,
		})
	}

	var lastTrace *TraceInfo
	var latest *sourceTrace
	for zone := range t.traces {
		for i := range t.traces[zone] {
			tr := &t.traces[zone][i]
			if latest == nil || tr.ts.After(latest.ts) {
				latest = tr
			}
		}
	}
	if latest != nil {
		info := traceInfo(*latest)
		lastTrace = &info
	}

	recent := make([]ActionEvent, len(t.recentActions))
	copy(recent, t.recentActions)
	overlayEnabled := t.overlayEnabled
	sourceEnabled := t.sourceEnabled
	t.mu.Unlock()

	deltaKWh := 0.0
	previewZones := 0
	if overlayEnabled {
		for _, snap := range snapshots {
			preview := t.OverlayPreview(snap)
			if preview == nil || !preview.Applied {
				continue
			}
			deltaKWh += math.Max(0, snap.EnergyKWh-preview.EnergyKWh)
			previewZones++
		}
	}

	return Summary{
		OverlayEnabled:      overlayEnabled,
		SourceEnabled:       sourceEnabled,
		ActiveEffects:       len(details),
		ControlledZones:     len(zoneIDs),
		ControlledZoneIDs:   zoneIDs,
		OverlayDeltaKWhNow:  round2(deltaKWh),
		OverlayPreviewZones: previewZones,
		LastSourceTrace:     lastTrace,
		EffectDetails:       details,
		RecentActions:       recent,
	}
}

// ensureZoneLocked returns the zone's display state, creating it on first
// touch. Must be called with mu held.
func (t *Twin) ensureZoneLocked(zoneID, label string) *zoneState {
	state, ok := t.zones[zoneID]
	if !ok {
		if label == "" {
			label = zoneID
		}
		state = newZoneState(zoneID, label, 0)
		t.zones[zoneID] = state
	} else if label != "" {
		state.zoneLabel = label
	}
	return state
}

// actionEffectsLocked summarises the unresolved effects already tied to an
// action. Must be called with mu held after cleanupLocked.
func (t *Twin) actionEffectsLocked(actionID string) []EffectSummary {
	var live []EffectSummary
	for _, effect := range t.effects {
		if effect.ActionID != actionID || effect.Resolved {
			continue
		}
		live = append(live, EffectSummary{
			EffectID:           effect.ID,
			ControlType:        effect.ControlType,
			TargetReductionPct: round1(effect.TargetPct * 100),
			RampSeconds:        int(effect.Ramp.Seconds()),
			DurationSeconds:    int(effect.Duration.Seconds()),
		})
	}
	return live
}

// createEffectsLocked materialises specs as effects and updates the zone's
// display state. Must be called with mu held.
func (t *Twin) createEffectsLocked(state *zoneState, actionID, source string, specs []EffectSpec, now time.Time) []EffectSummary {
	created := make([]EffectSummary, 0, len(specs))
	for _, spec := range specs {
		effect := &ControlEffect{
			ID:          uuid.NewString(),
			ZoneID:      state.zoneID,
			ZoneLabel:   state.zoneLabel,
			ActionID:    actionID,
			ControlType: spec.ControlType,
			Source:      source,
			StartedAt:   now,
			Ramp:        spec.Ramp,
			Duration:    spec.Duration,
			TargetPct:   spec.TargetPct,
		}
		t.effects[effect.ID] = effect
		created = append(created, EffectSummary{
			EffectID:           effect.ID,
			ControlType:        effect.ControlType,
			TargetReductionPct: round1(effect.TargetPct * 100),
			RampSeconds:        int(effect.Ramp.Seconds()),
			DurationSeconds:    int(effect.Duration.Seconds()),
		})
		applyControlState(state, effect.ControlType)
	}
	return created
}

func (t *Twin) recordActionEventLocked(event ActionEvent) {
	t.recentActions = append([]ActionEvent{event}, t.recentActions...)
	if len(t.recentActions) > eventRingMax {
		t.recentActions = t.recentActions[:eventRingMax]
	}
}

// computeReductionLocked combines the zone's active effects into one capped
// reduction fraction. Must be called with mu held.
func (t *Twin) computeReductionLocked(zoneID string, occupancy, temperature float64, now time.Time) reduction {
	var effects []*ControlEffect
	for _, effect := range t.effects {
		if effect.ZoneID == zoneID && !isExpired(effect, now) {
			effects = append(effects, effect)
		}
	}
	if len(effects) == 0 {
		return reduction{stage: StageIdle}
	}

	total := 0.0
	progressSum := 0.0
	for _, effect := range effects {
		progress := effectProgress(effect, now)
		progressSum += progress
		total += effect.TargetPct * progress * contextScale(effect.ControlType, occupancy, temperature)
	}
	total = math.Min(math.Max(total, 0), 0.35)
	avgProgress := progressSum / float64(len(effects))

	return reduction{
		pct:      total,
		active:   len(effects),
		progress: avgProgress,
		stage:    stageFor(avgProgress),
	}
}

// cleanupLocked drops expired effects and recomputes each zone's display
// state from what remains. Must be called with mu held.
func (t *Twin) cleanupLocked(now time.Time) {
	for id, effect := range t.effects {
		if isExpired(effect, now) {
			delete(t.effects, id)
		}
	}

	activeByZone := make(map[string][]*ControlEffect)
	for _, effect := range t.effects {
		activeByZone[effect.ZoneID] = append(activeByZone[effect.ZoneID], effect)
	}

	for zoneID, state := range t.zones {
		zoneEffects := activeByZone[zoneID]
		if len(zoneEffects) == 0 {
			state.hvacMode = "NORMAL"
			state.hvacSetpointC = 24.0
			state.lightsOn = true
			state.ventilationMode = "NORMAL"
			continue
		}
		state.hvacMode = "NORMAL"
		state.hvacSetpointC = 24.0
		state.lightsOn = true
		state.ventilationMode = "NORMAL"
		for _, effect := range zoneEffects {
			applyControlState(state, effect.ControlType)
		}
	}
}

func (t *Twin) clearZoneEffectsLocked(zoneID string) {
	for id, effect := range t.effects {
		if effect.ZoneID == zoneID {
			delete(t.effects, id)
		}
	}
}

func isExpired(effect *ControlEffect, now time.Time) bool {
	if effect.Resolved {
		return true
	}
	return now.After(effect.StartedAt.Add(effect.Duration))
}

func applyControlState(state *zoneState, controlType string) {
	if strings.Contains(controlType, "HVAC") {
		state.hvacMode = "ECO"
		state.hvacSetpointC = 26.0
	}
	if strings.Contains(controlType, "LIGHTS") {
		state.lightsOn = false
	}
	if strings.Contains(controlType, "VENT") {
		state.ventilationMode = "ECO"
	}
}

func manualRecommendation(hvacEco, lightsOff, ventEco bool, delta float64, durationMinutes int) string {
	var parts []string
	if hvacEco {
		parts = append(parts, fmt.Sprintf("HVAC eco mode (+%.1fC setpoint)", delta))
	}
	if lightsOff {
		parts = append(parts, "lights off / shed non-critical lighting")
	}
	if ventEco {
		parts = append(parts, "ventilation eco mode")
	}
	if len(parts) == 0 {
		return "Manual twin reset to normal building operation."
	}
	return fmt.Sprintf("Manual twin control: %s for ~%d minutes.", strings.Join(parts, ", "), durationMinutes)
}

func classifyStatus(energy, baseline, occupancy, temperature float64) model.Status {
	if baseline <= 0 {
		return model.StatusNormal
	}
	deviation := (energy - baseline) / baseline
	if deviation <= 0.12 {
		return model.StatusNormal
	}
	highOcc := occupancy >= 60
	lowOcc := occupancy <= 25
	highTemp := temperature >= 30
	moderateTemp := temperature >= 24 && temperature < 30
	switch {
	case highOcc && highTemp:
		return model.StatusNecessary
	case lowOcc && highTemp:
		return model.StatusPossibleWaste
	case lowOcc && moderateTemp:
		return model.StatusWaste
	case deviation > 0.2 && lowOcc:
		return model.StatusWaste
	}
	return model.StatusPossibleWaste
}

func traceInfo(tr sourceTrace) TraceInfo {
	return TraceInfo{
		ZoneID:        tr.zoneID,
		TS:            tr.ts,
		Source:        tr.source,
		RawEnergyKWh:  round2(tr.rawKWh),
		SimulatedKWh:  round2(tr.simulatedKWh),
		ReductionPct:  round1(tr.reductionPct * 100),
		Stage:         tr.stage,
		ActiveEffects: tr.activeEffects,
		ProgressPct:   round1(tr.progressPct * 100),
		Applied:       tr.applied,
	}
}

func defaultTemp(temperature float64) float64 {
	if temperature == 0 {
		return 28
	}
	return temperature
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
