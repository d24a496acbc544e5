package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"energysense/internal/model"
)

// WireReading is the JSON event shape shared by the HTTP and MQTT
// ingestion paths.
type WireReading struct {
	Block       string  `json:"block"`
	EnergyKWh   float64 `json:"energy_kwh"`
	Occupancy   float64 `json:"occupancy"`
	Temperature float64 `json:"temperature"`
	TS          string  `json:"ts,omitempty"`
}

// Reading validates the wire form. A missing timestamp defaults to now.
func (w WireReading) Reading(now time.Time) (model.Reading, error) {
	block := strings.TrimSpace(w.Block)
	if block == "" {
		return model.Reading{}, errors.New("event has no block id")
	}

	ts := now
	if w.TS != "" {
		var err error
		ts, err = parseTimestamp(w.TS)
		if err != nil {
			return model.Reading{}, fmt.Errorf("parsing ts: %w", err)
		}
	}

	return model.Reading{
		ZoneID:      block,
		EnergyKWh:   w.EnergyKWh,
		Occupancy:   w.Occupancy,
		Temperature: w.Temperature,
		TS:          ts,
	}, nil
}
