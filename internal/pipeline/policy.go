package pipeline

import (
	"fmt"
	"math"
	"time"

	"energysense/internal/model"
)

// policySource tags actions proposed by the streaming policy, as opposed
// to operator-initiated ones.
const policySource = "adr_policy_v1"

const (
	reductionSavingsShare = 0.75
	reductionBaselineCap  = 0.35
	reductionFloorKWh     = 0.5

	proposeOccupancyMax = 30.0
	proposeTariffMin    = 7.0
)

// Recommendation picks the demand-response instruction and its rationale
// for a classified zone. Deviation is in percent.
func Recommendation(status model.Status, occupancy, temperature, deviationPct float64) (string, string) {
	if status == model.StatusWaste && occupancy <= 20 && temperature < 30 {
		return "Shed non-critical lighting and plug loads for 15 minutes.",
			fmt.Sprintf("Low occupancy (%.0f%%) with %.1f%% deviation indicates avoidable discretionary demand.", occupancy, deviationPct)
	}
	if status == model.StatusWaste && occupancy <= 30 && temperature >= 30 {
		return "Increase HVAC setpoint by +1.5C and enforce zone schedule.",
			fmt.Sprintf("High deviation (%.1f%%) under low occupancy (%.0f%%) suggests HVAC overcooling.", deviationPct, occupancy)
	}
	if status == model.StatusPossibleWaste {
		return "Run 10-minute adaptive load shed and observe post-action baseline convergence.",
			fmt.Sprintf("Potentially avoidable load with %.1f%% deviation; targeted demand response recommended.", deviationPct)
	}
	return "Activate temporary demand response for discretionary loads.",
		fmt.Sprintf("Contextual anomaly detected with %.1f%% deviation.", deviationPct)
}

// ShouldPropose gates automated proposals. WASTE always proposes;
// POSSIBLE_WASTE proposes only when the zone is near-empty or the tariff
// makes the waste expensive.
func ShouldPropose(status model.Status, occupancy, tariff float64) bool {
	if status == model.StatusWaste {
		return true
	}
	return status == model.StatusPossibleWaste && (occupancy <= proposeOccupancyMax || tariff >= proposeTariffMin)
}

// ProposedReductionKWh sizes a proposal from the observed overshoot,
// capped at 35% of baseline and floored at 0.5 kWh so every proposal is
// actionable.
func ProposedReductionKWh(savingsKWh, baselineKWh float64) float64 {
	return math.Max(math.Min(savingsKWh*reductionSavingsShare, baselineKWh*reductionBaselineCap), reductionFloorKWh)
}

// EventCode derives the grid operator event code for an automated proposal.
func EventCode(now time.Time) string {
	return "ADR-" + now.UTC().Format("150405")
}
