package envfeed

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"energysense/internal/model"
)

// Schedule maps minute-of-day slots onto a rate. The backing file is
// re-read on every lookup so operators can edit it live.
type Schedule struct {
	path     string
	fallback float64
	value    func(scheduleSlot) *float64
}

type scheduleSlot struct {
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Rate      *float64 `json:"rate"`
	Intensity *float64 `json:"intensity"`
}

type scheduleDoc struct {
	Schedule []scheduleSlot `json:"schedule"`
}

// NewTariffSchedule reads INR/kWh rates keyed by "rate".
func NewTariffSchedule(path string) *Schedule {
	return &Schedule{
		path:     path,
		fallback: model.DefaultTariffINRPerKWh,
		value:    func(s scheduleSlot) *float64 { return s.Rate },
	}
}

// NewCarbonSchedule reads kg CO2 per kWh intensities keyed by "intensity".
func NewCarbonSchedule(path string) *Schedule {
	return &Schedule{
		path:     path,
		fallback: model.DefaultCarbonKgPerKWh,
		value:    func(s scheduleSlot) *float64 { return s.Intensity },
	}
}

// Current returns the slot value covering now, matched on local wall
// time. A missing file, a malformed slot or an uncovered minute all
// yield the fallback.
func (s *Schedule) Current(now time.Time) float64 {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return s.fallback
	}

	var doc scheduleDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return s.fallback
	}

	current := now.Hour()*60 + now.Minute()
	for _, slot := range doc.Schedule {
		start, err := minuteOfDay(slot.Start)
		if err != nil {
			return s.fallback
		}
		end, err := minuteOfDay(slot.End)
		if err != nil {
			return s.fallback
		}
		if start <= current && current < end {
			v := s.value(slot)
			if v == nil {
				return s.fallback
			}
			return *v
		}
	}

	return s.fallback
}

func minuteOfDay(hhmm string) (int, error) {
	h, m, ok := strings.Cut(hhmm, ":")
	if !ok {
		return 0, fmt.Errorf("malformed time %q", hhmm)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("malformed time %q: %w", hhmm, err)
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("malformed time %q: %w", hhmm, err)
	}
	return hour*60 + minute, nil
}
