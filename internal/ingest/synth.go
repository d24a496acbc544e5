package ingest

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"energysense/internal/model"
	"energysense/internal/pipeline"
)

// Synthetic generates plausible zone readings when no real source has
// data. Energy scales with temperature above 24C and with occupancy,
// plus an occasional anomaly spike so downstream classification has
// something to catch.
type Synthetic struct {
	mu       sync.Mutex
	profiles []model.ZoneProfile
	rng      *rand.Rand
	now      func() time.Time
}

func NewSynthetic(profiles []model.ZoneProfile) *Synthetic {
	seed := uint64(time.Now().UnixNano())
	return &Synthetic{
		profiles: profiles,
		rng:      rand.New(rand.NewPCG(seed, seed)),
		now:      time.Now,
	}
}

// Next produces one reading for a random zone. Returns false when no
// zone profiles are configured.
func (s *Synthetic) Next() (pipeline.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.profiles) == 0 {
		return pipeline.Event{}, false
	}

	profile := s.profiles[s.rng.IntN(len(s.profiles))]

	temperature := math.Round((22+s.rng.Float64()*14)*10) / 10
	occupancy := float64(5 + s.rng.IntN(91))

	tempFactor := math.Max(0, (temperature-24)/12) * 0.18
	occFactor := occupancy / 100 * 0.35
	anomaly := 0.0
	if s.rng.Float64() < 0.22 {
		anomaly = 0.15 + s.rng.Float64()*0.4
	}

	energy := profile.BaselineKWh * (1 + tempFactor + occFactor + anomaly)

	return pipeline.Event{
		Reading: model.Reading{
			ZoneID:      profile.ID,
			EnergyKWh:   math.Round(energy*100) / 100,
			Occupancy:   occupancy,
			Temperature: temperature,
			TS:          s.now().UTC(),
		},
		Source: "synthetic",
	}, true
}
