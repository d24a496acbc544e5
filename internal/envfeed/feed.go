package envfeed

import (
	"log/slog"
	"sync"
	"time"
)

const (
	defaultWeatherInterval = 120 * time.Second
	defaultTariffInterval  = 60 * time.Second
	defaultCarbonInterval  = 120 * time.Second
)

// Pusher receives context samples. *pipeline.Engine satisfies it.
type Pusher interface {
	PushWeather(ts time.Time, outsideTemp, humidity float64)
	PushTariff(ts time.Time, rate float64)
	PushCarbon(ts time.Time, intensity float64)
}

// Feed periodically samples the three context streams and pushes them
// into the sink.
type Feed struct {
	mu      sync.Mutex
	weather *WeatherProvider
	tariff  *Schedule
	carbon  *Schedule
	sink    Pusher
	log     *slog.Logger
	now     func() time.Time

	weatherEvery time.Duration
	tariffEvery  time.Duration
	carbonEvery  time.Duration

	running bool
	stopCh  chan struct{}
}

func NewFeed(weather *WeatherProvider, tariff, carbon *Schedule, sink Pusher, log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	return &Feed{
		weather:      weather,
		tariff:       tariff,
		carbon:       carbon,
		sink:         sink,
		log:          log,
		now:          time.Now,
		weatherEvery: defaultWeatherInterval,
		tariffEvery:  defaultTariffInterval,
		carbonEvery:  defaultCarbonInterval,
	}
}

// Start launches the sampling loop. Safe to call more than once.
func (f *Feed) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.stopCh = make(chan struct{})
	stop := f.stopCh
	f.mu.Unlock()

	f.log.Info("environment feed starting",
		"weather_interval_s", int(f.weatherEvery.Seconds()),
		"tariff_interval_s", int(f.tariffEvery.Seconds()),
		"carbon_interval_s", int(f.carbonEvery.Seconds()))

	go f.loop(stop)
}

// Stop halts the sampling loop.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	close(f.stopCh)
	f.mu.Unlock()
}

func (f *Feed) loop(stop chan struct{}) {
	weatherT := time.NewTicker(f.weatherEvery)
	defer weatherT.Stop()
	tariffT := time.NewTicker(f.tariffEvery)
	defer tariffT.Stop()
	carbonT := time.NewTicker(f.carbonEvery)
	defer carbonT.Stop()

	// Prime all three streams so the first readings do not wait a full
	// interval. Tariff and carbon go first; they ride the weather tick.
	f.pushTariff()
	f.pushCarbon()
	f.pushWeather()

	for {
		select {
		case <-stop:
			return
		case <-weatherT.C:
			f.pushWeather()
		case <-tariffT.C:
			f.pushTariff()
		case <-carbonT.C:
			f.pushCarbon()
		}
	}
}

func (f *Feed) pushWeather() {
	temp, humidity := f.weather.Sample()
	f.sink.PushWeather(f.now().UTC(), temp, humidity)
}

func (f *Feed) pushTariff() {
	// Schedules match on local wall time.
	rate := f.tariff.Current(f.now())
	f.sink.PushTariff(f.now().UTC(), rate)
}

func (f *Feed) pushCarbon() {
	intensity := f.carbon.Current(f.now())
	f.sink.PushCarbon(f.now().UTC(), intensity)
}
