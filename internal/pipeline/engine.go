// Package pipeline turns raw zone readings into classified snapshots,
// automated demand-response proposals and persistent-waste alerts. A
// single consumer drains the ingest queue; when the queue stays quiet for
// a full poll interval it falls back to a Feeder so the stream never
// stalls.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"energysense/internal/model"
	"energysense/internal/store"
	"energysense/internal/twin"
)

const (
	defaultBaselineWindow = 10 * time.Minute
	defaultBaselineHop    = 5 * time.Second
	defaultPollTimeout    = 1500 * time.Millisecond
	defaultQueueSize      = 1024
)

// Event is one reading tagged with where it came from.
type Event struct {
	Reading model.Reading
	Source  string
}

// Feeder supplies fallback events when the ingest queue stays empty for a
// full poll interval.
type Feeder interface {
	Poll() []Event
}

// Callback receives pipeline results as they land in the store. Calls
// arrive from the consumer goroutine with no engine lock held.
type Callback interface {
	OnAlert(alert model.Alert)
	OnAction(action model.Action)
	OnTrace(trace twin.TraceInfo)
}

// Config wires an Engine. Store is required; Twin, Feeder and Callback
// may be nil, everything else has a default.
type Config struct {
	Store    *store.Store
	Twin     *twin.Twin
	Feeder   Feeder
	Callback Callback
	Logger   *slog.Logger
	Profiles []model.ZoneProfile

	BaselineWindow time.Duration
	BaselineHop    time.Duration
	PollTimeout    time.Duration
	QueueSize      int
}

// Engine is the single consumer of the ingest queue. All per-zone window
// state lives here; classified results land in the store.
type Engine struct {
	mu sync.Mutex

	store    *store.Store
	twin     *twin.Twin
	feeder   Feeder
	callback Callback
	log      *slog.Logger

	profiles  map[string]model.ZoneProfile
	order     []model.ZoneProfile
	baselines map[string]*baselineWindow
	waste     map[string]*wasteTracker
	env       contextJoiner

	windowDur time.Duration
	hop       time.Duration

	events      chan Event
	pollTimeout time.Duration
	running     bool
	stopCh      chan struct{}

	now func() time.Time
}

func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BaselineWindow <= 0 {
		cfg.BaselineWindow = defaultBaselineWindow
	}
	if cfg.BaselineHop <= 0 {
		cfg.BaselineHop = defaultBaselineHop
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	e := &Engine{
		store:       cfg.Store,
		twin:        cfg.Twin,
		feeder:      cfg.Feeder,
		callback:    cfg.Callback,
		log:         cfg.Logger,
		profiles:    make(map[string]model.ZoneProfile),
		baselines:   make(map[string]*baselineWindow),
		waste:       make(map[string]*wasteTracker),
		windowDur:   cfg.BaselineWindow,
		hop:         cfg.BaselineHop,
		events:      make(chan Event, cfg.QueueSize),
		pollTimeout: cfg.PollTimeout,
		now:         time.Now,
	}

	for _, p := range cfg.Profiles {
		if p.ID == "" {
			continue
		}
		e.profiles[p.ID] = p
		e.order = append(e.order, p)
		e.log.Info("baseline validation",
			"block_id", p.ID, "block_label", p.Label, "baseline_kwh", p.BaselineKWh)
	}
	if len(e.order) == 0 {
		e.log.Warn("no block profiles loaded; waiting for external ingestion")
	} else {
		first := e.order[0]
		e.store.SetBaselineExample(first.ID, first.Label, first.BaselineKWh)
	}
	return e
}

// Profiles returns the configured zone profiles in load order.
func (e *Engine) Profiles() []model.ZoneProfile {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.ZoneProfile, len(e.order))
	copy(out, e.order)
	return out
}

// Start launches the consumer loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stop := e.stopCh
	e.mu.Unlock()

	go e.loop(stop)
}

// Stop halts the consumer loop. Queued events stay queued.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()
}

func (e *Engine) loop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev := <-e.events:
			e.Process(ev)
		case <-time.After(e.pollTimeout):
			if e.feeder == nil {
				continue
			}
			for _, ev := range e.feeder.Poll() {
				e.Process(ev)
			}
		}
	}
}

// Ingest queues one event without blocking. Returns false when the queue
// is full; the reading is dropped and counted.
func (e *Engine) Ingest(ev Event) bool {
	select {
	case e.events <- ev:
		return true
	default:
		e.log.Warn("ingest queue full; dropping reading",
			"block", ev.Reading.ZoneID, "source", ev.Source)
		measureDropped(context.Background(), "queue_full")
		return false
	}
}

// PushWeather merges one weather sample into the context stream. The
// latest tariff and carbon samples at or before ts ride along with it.
func (e *Engine) PushWeather(ts time.Time, outsideTemp, humidity float64) {
	e.mu.Lock()
	e.env.PushWeather(ts, outsideTemp, humidity)
	e.mu.Unlock()
}

// PushTariff records a tariff sample for the next weather tick to pick up.
func (e *Engine) PushTariff(ts time.Time, rate float64) {
	e.mu.Lock()
	e.env.PushTariff(ts, rate)
	e.mu.Unlock()
}

// PushCarbon records a carbon-intensity sample for the next weather tick
// to pick up.
func (e *Engine) PushCarbon(ts time.Time, intensity float64) {
	e.mu.Lock()
	e.env.PushCarbon(ts, intensity)
	e.mu.Unlock()
}

// Process runs one reading through the full pass synchronously: twin
// source mutation, baseline resolution, context join, classification,
// store update, proposal policy and persistence alerting. The consumer
// loop calls it for every event; tests call it directly.
func (e *Engine) Process(ev Event) {
	r := ev.Reading
	if r.ZoneID == "" {
		e.log.Warn("skipping reading without block id", "source", ev.Source)
		measureDropped(context.Background(), "missing_block")
		return
	}
	if r.TS.IsZero() {
		r.TS = e.now().UTC()
	}
	if e.twin != nil {
		r = e.twin.ApplySourceReading(r, ev.Source)
		if e.callback != nil {
			if trace, ok := e.twin.MatchSourceTrace(r.ZoneID, time.Time{}); ok {
				e.callback.OnTrace(trace)
			}
		}
	}

	e.mu.Lock()
	label := e.labelLocked(r.ZoneID)
	base, ok := e.baselineLocked(r.ZoneID).Observe(r.TS, r.EnergyKWh)
	env := e.env.At(r.TS)
	e.mu.Unlock()

	baseline := base
	if !ok || baseline <= 0 {
		// Cold start: the reading is its own baseline, deviation 0.
		baseline = r.EnergyKWh
	}
	deviation := DeviationPct(r.EnergyKWh, baseline)
	savings := SavingsKWh(r.EnergyKWh, baseline)
	status := Classify(r.EnergyKWh, baseline, r.Occupancy, r.Temperature)

	e.store.Update(model.Snapshot{
		ZoneID:          r.ZoneID,
		ZoneLabel:       label,
		EnergyKWh:       r.EnergyKWh,
		BaselineKWh:     baseline,
		Occupancy:       r.Occupancy,
		Temperature:     r.Temperature,
		Status:          status,
		SavingsKWh:      savings,
		DeviationPct:    deviation,
		TariffINRPerKWh: env.TariffINRPerKWh,
		CostINR:         r.EnergyKWh * env.TariffINRPerKWh,
		WasteCostINR:    savings * env.TariffINRPerKWh,
		CarbonKgPerKWh:  env.CarbonKgPerKWh,
		CO2Kg:           r.EnergyKWh * env.CarbonKgPerKWh,
		RootCause:       RootCause(r.EnergyKWh, baseline, r.Occupancy, r.Temperature),
		ForecastRisk:    model.RiskLow,
		UpdatedAt:       r.TS,
	})
	e.store.SetEnvironment(env)

	if ShouldPropose(status, r.Occupancy, env.TariffINRPerKWh) {
		recommendation, rationale := Recommendation(status, r.Occupancy, r.Temperature, deviation)
		reduction := ProposedReductionKWh(savings, baseline)
		action := e.store.ProposeAction(store.Proposal{
			ZoneID:               r.ZoneID,
			ZoneLabel:            label,
			Mode:                 model.ModeAutomated,
			Recommendation:       recommendation,
			Rationale:            rationale,
			Source:               policySource,
			DREventCode:          EventCode(e.now()),
			ReductionKWh:         reduction,
			ExpectedINRPerHour:   reduction * env.TariffINRPerKWh,
			ExpectedCO2KgPerHour: reduction * env.CarbonKgPerKWh,
		})
		actionsProposed.Add(context.Background(), 1)
		if e.callback != nil {
			e.callback.OnAction(action)
		}
	}

	if status == model.StatusWaste {
		e.mu.Lock()
		persistent := e.wasteLocked(r.ZoneID).Observe(r.TS)
		e.mu.Unlock()
		if persistent {
			alert := e.store.RaiseAlert(r.ZoneID, label, model.SeverityHigh, persistentWasteMessage)
			alertsRaised.Add(context.Background(), 1)
			if e.callback != nil {
				e.callback.OnAlert(alert)
			}
		}
	}

	measureProcessed(context.Background(), ev.Source, deviation)
}

// labelLocked resolves a zone's display label; unknown zones show their
// raw id. Must be called with mu held.
func (e *Engine) labelLocked(zoneID string) string {
	if p, ok := e.profiles[zoneID]; ok {
		return p.Label
	}
	return zoneID
}

// Must be called with mu held.
func (e *Engine) baselineLocked(zoneID string) *baselineWindow {
	w, ok := e.baselines[zoneID]
	if !ok {
		w = newBaselineWindow(e.windowDur, e.hop)
		e.baselines[zoneID] = w
	}
	return w
}

// Must be called with mu held.
func (e *Engine) wasteLocked(zoneID string) *wasteTracker {
	t, ok := e.waste[zoneID]
	if !ok {
		t = &wasteTracker{window: persistentWasteWindow}
		e.waste[zoneID] = t
	}
	return t
}
