package pipeline

import (
	"sort"
	"time"

	"energysense/internal/model"
)

const (
	envPointsMax = 32
	envSeriesMax = 16
)

type envPoint struct {
	ts  time.Time
	env model.Environment
}

type scalarPoint struct {
	ts    time.Time
	value float64
}

// contextJoiner merges the weather, tariff and carbon streams into one
// environment series. Tariff and carbon samples ride the next weather
// tick; readings then resolve the environment as of their own timestamp.
// Callers serialize access through the engine lock.
type contextJoiner struct {
	tariffs []scalarPoint
	carbons []scalarPoint
	points  []envPoint
}

func (j *contextJoiner) PushWeather(ts time.Time, outsideTemp, humidity float64) {
	env := model.Environment{
		OutsideTemp:     outsideTemp,
		Humidity:        humidity,
		TariffINRPerKWh: latestScalar(j.tariffs, ts, model.DefaultTariffINRPerKWh),
		CarbonKgPerKWh:  latestScalar(j.carbons, ts, model.DefaultCarbonKgPerKWh),
	}
	j.points = append(j.points, envPoint{ts: ts, env: env})
	if len(j.points) > envPointsMax {
		j.points = append(j.points[:0], j.points[len(j.points)-envPointsMax:]...)
	}
}

func (j *contextJoiner) PushTariff(ts time.Time, rate float64) {
	j.tariffs = appendScalar(j.tariffs, scalarPoint{ts: ts, value: rate})
}

func (j *contextJoiner) PushCarbon(ts time.Time, intensity float64) {
	j.carbons = appendScalar(j.carbons, scalarPoint{ts: ts, value: intensity})
}

// At returns the environment as of ts. Before the first weather tick
// every field falls back to its default.
func (j *contextJoiner) At(ts time.Time) model.Environment {
	idx := sort.Search(len(j.points), func(i int) bool { return j.points[i].ts.After(ts) })
	if idx == 0 {
		return model.DefaultEnvironment()
	}
	return j.points[idx-1].env
}

func appendScalar(series []scalarPoint, p scalarPoint) []scalarPoint {
	series = append(series, p)
	if len(series) > envSeriesMax {
		series = append(series[:0], series[len(series)-envSeriesMax:]...)
	}
	return series
}

func latestScalar(series []scalarPoint, ts time.Time, fallback float64) float64 {
	idx := sort.Search(len(series), func(i int) bool { return series[i].ts.After(ts) })
	if idx == 0 {
		return fallback
	}
	return series[idx-1].value
}
