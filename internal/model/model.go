package model

import "time"

// Status classifies a zone's latest reading against its rolling baseline.
type Status string

const (
	StatusNormal        Status = "NORMAL"
	StatusNecessary     Status = "NECESSARY"
	StatusPossibleWaste Status = "POSSIBLE_WASTE"
	StatusWaste         Status = "WASTE"
)

// Risk labels the forecast waste risk for a zone.
type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

var riskRank = map[Risk]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}

// MaxRisk returns the more severe of two risk labels.
func MaxRisk(a, b Risk) Risk {
	if riskRank[a] >= riskRank[b] {
		return a
	}
	return b
}

// Action lifecycle states. Transitions only move forward:
// PROPOSED -> EXECUTED -> VERIFIED -> RESOLVED.
type ActionStatus string

const (
	ActionProposed ActionStatus = "PROPOSED"
	ActionExecuted ActionStatus = "EXECUTED"
	ActionVerified ActionStatus = "VERIFIED"
	ActionResolved ActionStatus = "RESOLVED"
)

// ActionMode distinguishes operator-initiated actions from policy-generated ones.
type ActionMode string

const (
	ModeManual    ActionMode = "MANUAL"
	ModeAutomated ActionMode = "AUTOMATED"
)

const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)

// Environment defaults used whenever a context stream has no sample yet.
const (
	DefaultOutsideTemp     = 28.0
	DefaultHumidity        = 55.0
	DefaultTariffINRPerKWh = 6.5
	DefaultCarbonKgPerKWh  = 0.82
)

// Reading is one raw telemetry event from a zone's meter.
type Reading struct {
	ZoneID      string    `json:"block"`
	EnergyKWh   float64   `json:"energy_kwh"`
	Occupancy   float64   `json:"occupancy"`
	Temperature float64   `json:"temperature"`
	TS          time.Time `json:"ts"`
}

// ZoneProfile is the immutable identity of a monitored zone, loaded once at startup.
type ZoneProfile struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	BaselineKWh float64 `json:"baseline_kwh"`
}

// Environment is the process-wide latest context sample.
type Environment struct {
	OutsideTemp     float64 `json:"outside_temp"`
	Humidity        float64 `json:"humidity"`
	TariffINRPerKWh float64 `json:"tariff_inr_per_kwh"`
	CarbonKgPerKWh  float64 `json:"carbon_intensity_kg_per_kwh"`
}

// DefaultEnvironment returns the fallback context values.
func DefaultEnvironment() Environment {
	return Environment{
		OutsideTemp:     DefaultOutsideTemp,
		Humidity:        DefaultHumidity,
		TariffINRPerKWh: DefaultTariffINRPerKWh,
		CarbonKgPerKWh:  DefaultCarbonKgPerKWh,
	}
}
