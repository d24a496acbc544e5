package ingest

import "energysense/internal/pipeline"

// Chain is the fallback feeder polled when the ingest queue stays
// quiet: replayed file events take priority, and only a completely
// silent file produces a synthetic reading.
type Chain struct {
	replay *Replay
	synth  *Synthetic
}

func NewChain(replay *Replay, synth *Synthetic) *Chain {
	return &Chain{replay: replay, synth: synth}
}

func (c *Chain) Poll() []pipeline.Event {
	if c.replay != nil {
		if events := c.replay.Poll(); len(events) > 0 {
			return events
		}
	}

	if c.synth != nil {
		if ev, ok := c.synth.Next(); ok {
			return []pipeline.Event{ev}
		}
	}

	return nil
}
