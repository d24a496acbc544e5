package model

import "time"

// Snapshot is the latest computed state for a zone. The pipeline overwrites it
// wholesale on every classified reading; there are no partial updates.
type Snapshot struct {
	ZoneID          string    `json:"block_id"`
	ZoneLabel       string    `json:"block_label"`
	EnergyKWh       float64   `json:"energy_kwh"`
	BaselineKWh     float64   `json:"baseline_kwh"`
	Occupancy       float64   `json:"occupancy"`
	Temperature     float64   `json:"temperature"`
	Status          Status    `json:"status"`
	SavingsKWh      float64   `json:"savings_kwh"`
	DeviationPct    float64   `json:"deviation_pct"`
	TariffINRPerKWh float64   `json:"tariff_inr_per_kwh"`
	CostINR         float64   `json:"cost_inr"`
	WasteCostINR    float64   `json:"waste_cost_inr"`
	CarbonKgPerKWh  float64   `json:"carbon_intensity_kg_per_kwh"`
	CO2Kg           float64   `json:"co2_kg"`
	RootCause       string    `json:"root_cause"`
	ForecastPeakDev float64   `json:"forecast_peak_deviation"`
	ForecastRisk    Risk      `json:"forecast_waste_risk"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HistoryPoint is one sample in a zone's bounded deviation history.
type HistoryPoint struct {
	TS           time.Time `json:"ts"`
	DeviationPct float64   `json:"deviation_pct"`
	EnergyKWh    float64   `json:"energy_kwh"`
	BaselineKWh  float64   `json:"baseline_kwh"`
	Occupancy    float64   `json:"occupancy"`
	Temperature  float64   `json:"temperature"`
}

// Alert is a deduplicated per-zone notification. At most one unresolved alert
// exists per zone; re-triggering bumps Count and LastSeen.
type Alert struct {
	ID           string    `json:"id"`
	ZoneID       string    `json:"block_id"`
	ZoneLabel    string    `json:"block_label"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
	LastSeen     time.Time `json:"last_seen"`
	Acknowledged bool      `json:"acknowledged"`
	Resolved     bool      `json:"resolved"`
	Count        int       `json:"count"`
	AckBy        string    `json:"ack_by,omitempty"`
	ResolvedBy   string    `json:"resolved_by,omitempty"`
}

// Action is a demand-response intervention moving through the lifecycle
// state machine. Pre/post energy and the verified figures are filled in as
// the action progresses.
type Action struct {
	ID                   string       `json:"id"`
	ZoneID               string       `json:"block_id"`
	ZoneLabel            string       `json:"block_label"`
	Mode                 ActionMode   `json:"mode"`
	Status               ActionStatus `json:"status"`
	Recommendation       string       `json:"recommendation"`
	Rationale            string       `json:"rationale"`
	Source               string       `json:"source"`
	DREventCode          string       `json:"dr_event_code"`
	ProposedReductionKWh float64      `json:"proposed_reduction_kwh"`
	ExpectedINRPerHour   float64      `json:"expected_inr_per_hour"`
	ExpectedCO2KgPerHour float64      `json:"expected_co2_kg_per_hour"`
	ProposedAt           time.Time    `json:"proposed_at"`
	ExecutedAt           *time.Time   `json:"executed_at"`
	VerifiedAt           *time.Time   `json:"verified_at"`
	ResolvedAt           *time.Time   `json:"resolved_at"`
	Operator             string       `json:"operator,omitempty"`
	PreEnergyKWh         *float64     `json:"pre_energy_kwh"`
	PostEnergyKWh        *float64     `json:"post_energy_kwh"`
	VerifiedSavingsKWh   float64      `json:"verified_savings_kwh"`
	VerifiedSavingsINR   float64      `json:"verified_savings_inr"`
	VerifiedCO2Kg        float64      `json:"verified_co2_kg"`
	VerificationNote     string       `json:"verification_note,omitempty"`
}

// Report is a generated summary, one per report type, newest wins.
type Report struct {
	ReportType  string    `json:"report_type"`
	Content     string    `json:"content"`
	GeneratedAt time.Time `json:"generated_at"`
}
