package pipeline

import (
	"sort"
	"time"
)

type energyPoint struct {
	ts  time.Time
	kwh float64
}

type baselineSample struct {
	end time.Time
	avg float64
}

// baselineWindow maintains one zone's rolling baseline. Hop-aligned
// windows average the raw energy over [end-window, end); a reading
// resolves against the latest window that closed at or before its own
// timestamp, so a reading never contributes to the baseline it is judged
// against. Callers serialize access through the engine lock.
type baselineWindow struct {
	window time.Duration
	hop    time.Duration

	readings []energyPoint
	samples  []baselineSample
	lastEnd  time.Time
}

func newBaselineWindow(window, hop time.Duration) *baselineWindow {
	return &baselineWindow{window: window, hop: hop}
}

// Observe folds one reading into the window state and returns the
// baseline in effect at ts. ok is false until a prior reading has closed
// a window (cold start).
func (w *baselineWindow) Observe(ts time.Time, energyKWh float64) (float64, bool) {
	w.emit(ts)
	base, ok := w.resolve(ts)
	w.readings = append(w.readings, energyPoint{ts: ts, kwh: energyKWh})
	w.prune(ts)
	return base, ok
}

// emit closes every hop-aligned window ending at or before ts. Windows
// holding no readings produce no sample; the as-of lookup then falls
// through to an older one.
func (w *baselineWindow) emit(ts time.Time) {
	floor := ts.Truncate(w.hop)
	if w.lastEnd.IsZero() {
		w.lastEnd = floor
		return
	}
	if len(w.readings) > 0 {
		// Windows ending after the newest reading plus the window span are
		// empty; skip straight past long gaps.
		horizon := w.readings[len(w.readings)-1].ts.Add(w.window)
		for end := w.lastEnd.Add(w.hop); !end.After(ts); end = end.Add(w.hop) {
			if end.After(horizon) {
				break
			}
			if avg, ok := w.averageIn(end.Add(-w.window), end); ok {
				w.samples = append(w.samples, baselineSample{end: end, avg: avg})
			}
		}
	}
	if floor.After(w.lastEnd) {
		w.lastEnd = floor
	}
}

// resolve returns the latest closed window average at or before ts.
func (w *baselineWindow) resolve(ts time.Time) (float64, bool) {
	idx := sort.Search(len(w.samples), func(i int) bool { return w.samples[i].end.After(ts) })
	if idx == 0 {
		return 0, false
	}
	return w.samples[idx-1].avg, true
}

func (w *baselineWindow) averageIn(start, end time.Time) (float64, bool) {
	var sum float64
	var n int
	for _, p := range w.readings {
		if p.ts.Before(start) || !p.ts.Before(end) {
			continue
		}
		sum += p.kwh
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// prune drops readings that can no longer fall inside a future window and
// samples that can no longer win the as-of lookup. The newest sample
// always survives so a zone that goes quiet keeps resolving against its
// last known baseline.
func (w *baselineWindow) prune(ts time.Time) {
	cutoff := ts.Add(-w.window)
	i := 0
	for i < len(w.readings) && w.readings[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.readings = append(w.readings[:0], w.readings[i:]...)
	}
	j := 0
	for j < len(w.samples)-1 && !w.samples[j].end.After(cutoff) {
		j++
	}
	if j > 0 {
		w.samples = append(w.samples[:0], w.samples[j:]...)
	}
}
