package pipeline

import "time"

const (
	persistentWasteWindow    = 5 * time.Minute
	persistentWasteThreshold = 3

	persistentWasteMessage = "Persistent WASTE detected for 5 minutes."
)

// wasteTracker counts WASTE classifications for one zone over a trailing
// window. Callers serialize access through the engine lock.
type wasteTracker struct {
	window time.Duration
	times  []time.Time
}

// Observe records a WASTE classification at ts and reports whether the
// zone crossed the persistence threshold. Repeated hits for the same
// episode are expected; alert dedup collapses them into one record.
func (w *wasteTracker) Observe(ts time.Time) bool {
	w.times = append(w.times, ts)
	cutoff := ts.Add(-w.window)
	i := 0
	for i < len(w.times) && w.times[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
	return len(w.times) >= persistentWasteThreshold
}
