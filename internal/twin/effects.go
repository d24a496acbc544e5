package twin

import (
	"strings"
	"time"
)

// Control types attached to simulated effects.
const (
	ControlHVAC     = "HVAC_SETPOINT_PLUS_2C"
	ControlLights   = "LIGHTS_OFF"
	ControlVent     = "VENT_ECO"
	ControlLoadShed = "LOAD_SHED"
)

// Ramp stages reported for effects and zone reductions.
const (
	StageIdle    = "IDLE"
	StageWarmup  = "WARMUP"
	StageRamping = "RAMPING"
	StageSteady  = "STEADY"
)

// EffectSpec describes one control intervention to simulate: what to actuate,
// how much load it can shave once fully ramped, and for how long.
type EffectSpec struct {
	ControlType string
	TargetPct   float64
	Ramp        time.Duration
	Duration    time.Duration
}

// ParseEffects maps free-text recommendation wording onto effect specs. The
// generic load-shed spec only fires on an explicit "shed" with no other
// match; callers decide what to do with text that matches nothing.
func ParseEffects(recommendation string) []EffectSpec {
	text := strings.ToLower(recommendation)
	var specs []EffectSpec

	if containsAny(text, "hvac", "setpoint", "overcool", "cooling") {
		specs = append(specs, EffectSpec{ControlHVAC, 0.14, 150 * time.Second, 20 * time.Minute})
	}
	if containsAny(text, "light", "lighting") {
		specs = append(specs, EffectSpec{ControlLights, 0.06, 8 * time.Second, 15 * time.Minute})
	}
	if containsAny(text, "vent", "ventilation", "fan") {
		specs = append(specs, EffectSpec{ControlVent, 0.08, 60 * time.Second, 15 * time.Minute})
	}
	if len(specs) == 0 && strings.Contains(text, "shed") {
		specs = append(specs, loadShedSpec())
	}
	return specs
}

func loadShedSpec() EffectSpec {
	return EffectSpec{ControlLoadShed, 0.09, 35 * time.Second, 15 * time.Minute}
}

func containsAny(text string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// effectProgress is the ramp completion of an effect at now, in [0, 1].
func effectProgress(e *ControlEffect, now time.Time) float64 {
	if e.Ramp <= 0 {
		return 1
	}
	elapsed := now.Sub(e.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	progress := elapsed / e.Ramp.Seconds()
	if progress > 1 {
		return 1
	}
	return progress
}

func stageFor(progress float64) string {
	switch {
	case progress < 0.15:
		return StageWarmup
	case progress < 0.98:
		return StageRamping
	default:
		return StageSteady
	}
}

// contextScale derates an effect's achievable reduction. Occupied zones have
// less discretionary load to shed, and hot zones limit what HVAC and
// ventilation tweaks can recover.
func contextScale(controlType string, occupancy, temperature float64) float64 {
	occScale := 1.0
	switch {
	case occupancy >= 80:
		occScale = 0.35
	case occupancy >= 60:
		occScale = 0.55
	case occupancy >= 35:
		occScale = 0.8
	}

	switch {
	case strings.Contains(controlType, "HVAC"):
		tempScale := 1.0
		switch {
		case temperature >= 36:
			tempScale = 0.5
		case temperature >= 33:
			tempScale = 0.7
		case temperature >= 30:
			tempScale = 0.9
		}
		return max(0.3, occScale*tempScale)
	case strings.Contains(controlType, "LIGHTS"):
		return max(0.5, occScale)
	case strings.Contains(controlType, "VENT"):
		tempScale := 1.0
		if temperature >= 34 {
			tempScale = 0.75
		}
		return max(0.35, occScale*tempScale)
	}
	return max(0.4, occScale)
}
