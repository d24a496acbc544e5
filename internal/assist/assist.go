// Package assist answers operator questions and writes periodic
// reports. The default Composer works offline from live store state;
// an LLM-backed implementation can sit behind the same interface.
package assist

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"energysense/internal/model"
	"energysense/internal/store"
)

// Citation points at the material an answer was grounded on.
type Citation struct {
	Source  string `json:"source"`
	Snippet string `json:"snippet"`
}

// Answer is one assistant response.
type Answer struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// Assistant answers operator questions from live telemetry.
type Assistant interface {
	Ask(ctx context.Context, question string) (Answer, error)
	Explain(ctx context.Context, zoneID string) (Answer, error)
	Report(ctx context.Context, reportType string) (string, error)
}

// Composer is the offline Assistant. Every answer is composed
// deterministically from the store, so the service runs standalone.
type Composer struct {
	store *store.Store
	now   func() time.Time
}

func NewComposer(s *store.Store) *Composer {
	return &Composer{store: s, now: time.Now}
}

func (c *Composer) Ask(_ context.Context, question string) (Answer, error) {
	lines := make([]string, 0, 9)
	if q := strings.TrimSpace(question); q != "" {
		lines = append(lines, q)
	}
	lines = append(lines, c.contextLines()...)

	if worst, ok := c.worstZone(); ok {
		lines = append(lines, fmt.Sprintf("Top deviation: %s at %.1f%% (%s).",
			worst.ZoneLabel, worst.DeviationPct, worst.Status))
	}
	lines = append(lines, "Based on live telemetry, the system indicates actionable efficiency signals.")

	return Answer{Answer: strings.Join(lines, "\n"), Citations: []Citation{}}, nil
}

func (c *Composer) Explain(_ context.Context, zoneID string) (Answer, error) {
	zone, ok := c.store.Zone(zoneID)
	if !ok {
		return Answer{Answer: "Block not found.", Citations: []Citation{}}, nil
	}

	text := fmt.Sprintf(
		"Block %s is %s right now. Deviation %.1f%%, occupancy %.0f%%, temperature %.1f°C, baseline %.2f kWh.",
		zone.ZoneLabel, zone.Status, zone.DeviationPct, zone.Occupancy, zone.Temperature, zone.BaselineKWh)
	if zone.RootCause != "" {
		text += "\nRoot cause: " + zone.RootCause
	}

	return Answer{Answer: text, Citations: []Citation{}}, nil
}

// Report builds a plain-text energy intelligence summary with the top
// waste zones, estimated savings and CO2 reduction.
func (c *Composer) Report(_ context.Context, reportType string) (string, error) {
	stats := c.store.Stats()
	env := c.store.Environment()

	var b strings.Builder
	fmt.Fprintf(&b, "%s energy intelligence summary for %s (generated %s)\n\n",
		titleCase(reportType), c.store.OrgName(), c.now().UTC().Format(time.RFC3339))

	b.WriteString("Top waste blocks:\n")
	waste := c.wasteZones(3)
	if len(waste) == 0 {
		b.WriteString("  none; all blocks within baseline tolerance\n")
	}
	for i, z := range waste {
		fmt.Fprintf(&b, "  %d. %s (%s): deviation %.1f%%, wasting %.2f kWh\n",
			i+1, z.ZoneLabel, z.Status, z.DeviationPct, z.SavingsKWh)
	}

	fmt.Fprintf(&b, "\nEstimated savings: %.2f kWh (INR %.2f at current tariff)\n",
		stats.TotalSavingsKWh, stats.TotalWasteCostINR)
	fmt.Fprintf(&b, "CO2 reduction: %.2f kg\n", stats.CO2Kg)
	fmt.Fprintf(&b, "Efficiency score: %.1f\n", stats.EfficiencyScore)
	fmt.Fprintf(&b, "Open demand-response actions: %d (verified savings %.2f kWh, INR %.2f)\n",
		stats.ADROpenActions, stats.ADRVerifiedSavingsKWh, stats.ADRVerifiedSavingsINR)
	fmt.Fprintf(&b, "Tariff: ₹%g/kWh, carbon intensity: %g kg/kWh\n",
		env.TariffINRPerKWh, env.CarbonKgPerKWh)

	return b.String(), nil
}

func (c *Composer) contextLines() []string {
	env := c.store.Environment()
	stats := c.store.Stats()
	return []string{
		fmt.Sprintf("Org: %s", c.store.OrgName()),
		fmt.Sprintf("Outside temp: %g°C, humidity: %g%%", env.OutsideTemp, env.Humidity),
		fmt.Sprintf("Tariff: ₹%g/kWh", env.TariffINRPerKWh),
		fmt.Sprintf("Carbon intensity: %g kg/kWh", env.CarbonKgPerKWh),
		fmt.Sprintf("Total savings: %g kWh", stats.TotalSavingsKWh),
		fmt.Sprintf("Total CO2 avoided: %g kg", stats.CO2Kg),
	}
}

// worstZone returns the zone with the highest deviation, when any zone
// has reported at all.
func (c *Composer) worstZone() (model.Snapshot, bool) {
	zones := c.store.Snapshots()
	if len(zones) == 0 {
		return model.Snapshot{}, false
	}
	worst := zones[0]
	for _, z := range zones[1:] {
		if z.DeviationPct > worst.DeviationPct {
			worst = z
		}
	}
	return worst, true
}

// wasteZones returns up to n zones flagged WASTE or POSSIBLE_WASTE,
// worst deviation first.
func (c *Composer) wasteZones(n int) []model.Snapshot {
	var waste []model.Snapshot
	for _, z := range c.store.Snapshots() {
		if z.Status == model.StatusWaste || z.Status == model.StatusPossibleWaste {
			waste = append(waste, z)
		}
	}
	sort.Slice(waste, func(i, j int) bool { return waste[i].DeviationPct > waste[j].DeviationPct })
	if len(waste) > n {
		waste = waste[:n]
	}
	return waste
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
