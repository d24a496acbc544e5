package pipeline

import "energysense/internal/model"

// Classification thresholds. Deviation is a fraction of baseline here;
// RootCause and the API layer work in percent.
const (
	deviationNormalMax = 0.12
	deviationWasteMin  = 0.2

	highOccupancy = 60.0
	lowOccupancy  = 25.0
	highTempC     = 30.0
	moderateTempC = 24.0
)

// DeviationPct returns how far energy sits above or below baseline, in
// percent. A missing or non-positive baseline yields 0.
func DeviationPct(energyKWh, baselineKWh float64) float64 {
	if baselineKWh <= 0 {
		return 0
	}
	return (energyKWh - baselineKWh) / baselineKWh * 100
}

// SavingsKWh returns the avoidable energy above baseline, floored at zero.
func SavingsKWh(energyKWh, baselineKWh float64) float64 {
	if baselineKWh <= 0 {
		return 0
	}
	return max(energyKWh-baselineKWh, 0)
}

// Classify labels a reading against its rolling baseline using the
// occupancy/temperature context. Deviations within 12% of baseline are
// always NORMAL; beyond that the context decides whether the draw is
// justified.
func Classify(energyKWh, baselineKWh, occupancy, temperature float64) model.Status {
	if baselineKWh <= 0 {
		return model.StatusNormal
	}
	deviation := (energyKWh - baselineKWh) / baselineKWh
	if deviation <= deviationNormalMax {
		return model.StatusNormal
	}

	highOcc := occupancy >= highOccupancy
	lowOcc := occupancy <= lowOccupancy
	highTemp := temperature >= highTempC
	moderateTemp := temperature >= moderateTempC && temperature < highTempC

	switch {
	case highOcc && highTemp:
		return model.StatusNecessary
	case lowOcc && highTemp:
		return model.StatusPossibleWaste
	case lowOcc && moderateTemp:
		return model.StatusWaste
	case deviation > deviationWasteMin && lowOcc:
		return model.StatusWaste
	default:
		return model.StatusPossibleWaste
	}
}

// RootCause explains a zone's current deviation in one operator-facing
// sentence.
func RootCause(energyKWh, baselineKWh, occupancy, temperature float64) string {
	if baselineKWh <= 0 {
		return "Insufficient baseline data."
	}
	deviation := (energyKWh - baselineKWh) / baselineKWh * 100
	switch {
	case deviation < 10:
		return "Energy usage is aligned with baseline."
	case occupancy < 25 && temperature < 30:
		return "Low occupancy with moderate temperature indicates avoidable load."
	case occupancy < 25 && temperature >= 30:
		return "Low occupancy but high ambient heat suggests HVAC overuse."
	case occupancy > 60 && temperature >= 30:
		return "High occupancy and heat justify higher energy draw."
	default:
		return "Mixed context; investigate equipment or scheduling."
	}
}
