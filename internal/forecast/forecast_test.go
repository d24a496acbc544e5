package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energysense/internal/model"
)

var forecastStart = time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)

func newTestPredictor() (*TrendPredictor, *time.Time) {
	p := NewTrendPredictor()
	now := forecastStart
	p.now = func() time.Time { return now }
	return p, &now
}

func makeHistory(devs []float64, baseline, occupancy, temperature float64) []model.HistoryPoint {
	points := make([]model.HistoryPoint, len(devs))
	for i, dev := range devs {
		points[i] = model.HistoryPoint{
			TS:           forecastStart.Add(time.Duration(i) * 5 * time.Second),
			DeviationPct: dev,
			EnergyKWh:    baseline * (1 + dev/100),
			BaselineKWh:  baseline,
			Occupancy:    occupancy,
			Temperature:  temperature,
		}
	}
	return points
}

func TestTrendPredictor_InsufficientHistory(t *testing.T) {
	p, _ := newTestPredictor()

	for _, history := range [][]model.HistoryPoint{nil, makeHistory([]float64{5}, 9, 40, 28)} {
		pred := p.Predict(history, 9, 40, 28)
		assert.InDelta(t, 0.0, pred.PredictedDeviationPct, 0.001)
		assert.InDelta(t, 0.0, pred.AnomalyProbability, 0.001)
		assert.Equal(t, model.RiskLow, pred.Risk)
		assert.InDelta(t, 0.05, pred.Confidence, 0.001)
		assert.False(t, pred.ModelReady)
		assert.Equal(t, "Insufficient sequence history for inference.", pred.Reason)
	}
}

func TestTrendPredictor_TrendExtrapolation(t *testing.T) {
	p, _ := newTestPredictor()

	// Rising deviation: 14 + (14 - mean(10,12,14)) * 2.5 = 19.
	pred := p.Predict(makeHistory([]float64{10, 12, 14}, 9, 40, 28), 9, 40, 28)
	assert.InDelta(t, 19.0, pred.PredictedDeviationPct, 0.001)
	assert.InDelta(t, 0.881, pred.AnomalyProbability, 0.001)
	assert.Equal(t, model.RiskHigh, pred.Risk)
	assert.InDelta(t, 1.386, pred.AvoidableKWh, 0.001)
	assert.InDelta(t, 0.487, pred.Confidence, 0.001)
	assert.Equal(t, warmupModelName, pred.ModelName)
	assert.Equal(t, "Model warming up; using temporal trend estimate.", pred.Reason)
}

func TestTrendPredictor_TwoPointsUseLastDeviation(t *testing.T) {
	p, _ := newTestPredictor()

	pred := p.Predict(makeHistory([]float64{5, 7}, 9, 40, 28), 9, 40, 28)
	assert.InDelta(t, 7.0, pred.PredictedDeviationPct, 0.001)
	assert.Equal(t, model.RiskLow, pred.Risk)
	assert.InDelta(t, 0.0, pred.AvoidableKWh, 0.001)
}

func TestTrendPredictor_ContextAdjustment(t *testing.T) {
	p, _ := newTestPredictor()

	// Flat trend at 8%, but a hot and nearly empty zone: +4*0.45 +15*0.08.
	pred := p.Predict(makeHistory([]float64{8, 8, 8}, 9, 10, 34), 9, 10, 34)
	assert.InDelta(t, 11.0, pred.PredictedDeviationPct, 0.001)
	assert.Equal(t, model.RiskMedium, pred.Risk)
	assert.InDelta(t, 3.0/100*9*1.4, pred.AvoidableKWh, 0.001)
}

func TestTrendPredictor_TrainAndPredict(t *testing.T) {
	p, _ := newTestPredictor()

	devs := make([]float64, 30)
	for i := range devs {
		devs[i] = float64(i)
	}
	history := makeHistory(devs, 9, 40, 28)
	p.Train(map[string][]model.HistoryPoint{"block_a": history})

	status := p.Status()
	require.True(t, status.ModelReady)
	assert.Equal(t, trainedModelName, status.ModelName)
	assert.Equal(t, 9, status.TrainingSamples)

	// On a linear ramp the fitted target is 4 steps ahead of the last point.
	pred := p.Predict(history, 9, 40, 28)
	assert.InDelta(t, 33.0, pred.PredictedDeviationPct, 0.5)
	assert.Equal(t, model.RiskHigh, pred.Risk)
	assert.InDelta(t, 0.95, pred.Confidence, 0.001)
	assert.True(t, pred.ModelReady)
	assert.Equal(t, "Sequence regression indicates avoidable anomaly risk.", pred.Reason)
}

func TestTrendPredictor_TrainCooldown(t *testing.T) {
	p, clk := newTestPredictor()

	devs := make([]float64, 30)
	for i := range devs {
		devs[i] = float64(i)
	}
	history := map[string][]model.HistoryPoint{"block_a": makeHistory(devs, 9, 40, 28)}

	p.Train(history)
	require.Equal(t, 9, p.Status().TrainingSamples)

	// Inside the cooldown a larger dataset is ignored entirely.
	longer := make([]float64, 40)
	for i := range longer {
		longer[i] = float64(i)
	}
	bigger := map[string][]model.HistoryPoint{"block_a": makeHistory(longer, 9, 40, 28)}
	p.Train(bigger)
	assert.Equal(t, 9, p.Status().TrainingSamples)

	*clk = clk.Add(46 * time.Second)
	p.Train(bigger)
	assert.Equal(t, 19, p.Status().TrainingSamples)
}

func TestTrendPredictor_TrainSkipsShortHistories(t *testing.T) {
	p, _ := newTestPredictor()

	p.Train(map[string][]model.HistoryPoint{"block_a": makeHistory([]float64{1, 2, 3}, 9, 40, 28)})
	status := p.Status()
	assert.False(t, status.ModelReady)
	assert.Equal(t, 0, status.TrainingSamples)
	assert.Equal(t, warmupModelName, status.ModelName)

	p.Train(nil)
	assert.False(t, p.Status().ModelReady)
}

func TestSolve_SmallSystem(t *testing.T) {
	a := [][]float64{{2, 1}, {1, 3}}
	b := []float64{5, 10}

	x, err := solve(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, x[0], 1e-9)
	assert.InDelta(t, 3.0, x[1], 1e-9)
}
