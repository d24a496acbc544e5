// Package forecast predicts near-term deviation for zones from their bounded
// history. A linear regressor over sequence summary features is retrained in
// the background; before the first successful fit, predictions fall back to a
// short-trend extrapolation.
package forecast

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"energysense/internal/model"
)

// Prediction is the forecaster's answer for one zone.
type Prediction struct {
	PredictedDeviationPct float64    `json:"predicted_deviation_pct"`
	AnomalyProbability    float64    `json:"anomaly_probability"`
	Risk                  model.Risk `json:"risk"`
	AvoidableKWh          float64    `json:"avoidable_kwh"`
	Confidence            float64    `json:"confidence"`
	ModelName             string     `json:"model_name"`
	ModelReady            bool       `json:"model_ready"`
	Reason                string     `json:"reason"`
}

// Status reports the model's training state.
type Status struct {
	ModelReady      bool      `json:"model_ready"`
	ModelName       string    `json:"model_name"`
	TrainingSamples int       `json:"training_samples"`
	LastTrainAt     time.Time `json:"last_train_at"`
	SequenceLength  int       `json:"sequence_length"`
	HorizonSteps    int       `json:"horizon_steps"`
}

// Predictor is the forecasting contract consumed by the dashboard and the
// training scheduler. Train is best-effort and must never block ingestion.
type Predictor interface {
	Train(historyByZone map[string][]model.HistoryPoint)
	Predict(history []model.HistoryPoint, baselineKWh, occupancy, temperature float64) Prediction
	Status() Status
}

const (
	defaultSequenceLength = 18
	defaultHorizonSteps   = 4
	defaultTrainCooldown  = 45 * time.Second

	warmupModelName  = "trend-baseline-v1"
	trainedModelName = "linear-seq-forecaster-v1"
)

// TrendPredictor implements Predictor with a least-squares fit over summary
// features of each zone's deviation sequence.
type TrendPredictor struct {
	sequenceLength int
	horizonSteps   int
	cooldown       time.Duration

	mu              sync.Mutex
	weights         []float64
	modelReady      bool
	modelName       string
	trainingSamples int
	lastTrain       time.Time

	now func() time.Time
}

func NewTrendPredictor() *TrendPredictor {
	return &TrendPredictor{
		sequenceLength: defaultSequenceLength,
		horizonSteps:   defaultHorizonSteps,
		cooldown:       defaultTrainCooldown,
		modelName:      warmupModelName,
		now:            time.Now,
	}
}

// Train refits the regressor from all zone histories. Calls inside the
// cooldown window are dropped; zones without enough points for one full
// window plus horizon are skipped.
func (p *TrendPredictor) Train(historyByZone map[string][]model.HistoryPoint) {
	p.mu.Lock()
	now := p.now()
	if now.Sub(p.lastTrain) < p.cooldown {
		p.mu.Unlock()
		return
	}
	p.lastTrain = now
	p.mu.Unlock()

	var features [][]float64
	var targets []float64
	for _, history := range historyByZone {
		if len(history) < p.sequenceLength+p.horizonSteps {
			continue
		}
		rows := featureRows(history)
		for end := p.sequenceLength; end <= len(rows)-p.horizonSteps; end++ {
			window := rows[end-p.sequenceLength : end]
			features = append(features, append(summaryFeatures(window), 1))
			targets = append(targets, rows[end+p.horizonSteps-1][0])
		}
	}
	if len(features) == 0 {
		return
	}

	weights, err := leastSquares(features, targets)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.trainingSamples = len(features)
	if err != nil {
		return
	}
	p.weights = weights
	p.modelReady = true
	p.modelName = trainedModelName
}

// Predict estimates the zone's deviation a few steps ahead and derives the
// anomaly probability, risk label and avoidable energy from it.
func (p *TrendPredictor) Predict(history []model.HistoryPoint, baselineKWh, occupancy, temperature float64) Prediction {
	p.mu.Lock()
	modelName := p.modelName
	modelReady := p.modelReady
	p.mu.Unlock()

	if len(history) < 2 {
		return Prediction{
			Risk:       model.RiskLow,
			Confidence: 0.05,
			ModelName:  modelName,
			ModelReady: modelReady,
			Reason:     "Insufficient sequence history for inference.",
		}
	}

	rows := featureRows(history)
	if len(rows) > p.sequenceLength {
		rows = rows[len(rows)-p.sequenceLength:]
	}
	dev := p.predictNext(rows)

	// Hot, empty zones run a higher avoidable-anomaly risk.
	dev += math.Max(0, temperature-30) * 0.45
	dev += math.Max(0, 25-occupancy) * 0.08

	probability := sigmoid((dev - 10) / 4.5)
	risk := model.RiskLow
	switch {
	case probability >= 0.75:
		risk = model.RiskHigh
	case probability >= 0.45:
		risk = model.RiskMedium
	}

	avoidable := math.Max(dev-8, 0) / 100 * math.Max(baselineKWh, 1) * 1.4

	seqQuality := math.Min(float64(len(rows))/float64(p.sequenceLength), 1)
	confidence := 0.35 + 0.4*seqQuality
	if modelReady {
		confidence += 0.2
	} else {
		confidence += 0.07
	}
	confidence = math.Max(0.05, math.Min(confidence, 0.99))

	reason := "Sequence regression indicates avoidable anomaly risk."
	if !modelReady {
		reason = "Model warming up; using temporal trend estimate."
	}

	return Prediction{
		PredictedDeviationPct: round2(dev),
		AnomalyProbability:    round3(probability),
		Risk:                  risk,
		AvoidableKWh:          round3(avoidable),
		Confidence:            round3(confidence),
		ModelName:             modelName,
		ModelReady:            modelReady,
		Reason:                reason,
	}
}

// Status returns the current training state.
func (p *TrendPredictor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		ModelReady:      p.modelReady,
		ModelName:       p.modelName,
		TrainingSamples: p.trainingSamples,
		LastTrainAt:     p.lastTrain,
		SequenceLength:  p.sequenceLength,
		HorizonSteps:    p.horizonSteps,
	}
}

// predictNext applies the trained weights when available, otherwise
// extrapolates the recent deviation trend.
func (p *TrendPredictor) predictNext(rows [][]float64) float64 {
	p.mu.Lock()
	weights := p.weights
	p.mu.Unlock()

	if weights != nil {
		features := append(summaryFeatures(rows), 1)
		pred := 0.0
		for i, w := range weights {
			pred += features[i] * w
		}
		return pred
	}

	last := rows[len(rows)-1][0]
	if len(rows) < 3 {
		return last
	}
	mean3 := (rows[len(rows)-1][0] + rows[len(rows)-2][0] + rows[len(rows)-3][0]) / 3
	return last + (last-mean3)*2.5
}

// featureRows converts history to per-point feature vectors, ordered by
// timestamp: deviation, energy, baseline, occupancy, temperature and the
// energy-baseline delta.
func featureRows(history []model.HistoryPoint) [][]float64 {
	ordered := make([]model.HistoryPoint, len(history))
	copy(ordered, history)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].TS.Before(ordered[j].TS) })

	rows := make([][]float64, len(ordered))
	for i, point := range ordered {
		rows[i] = []float64{
			point.DeviationPct,
			point.EnergyKWh,
			point.BaselineKWh,
			point.Occupancy,
			point.Temperature,
			point.EnergyKWh - point.BaselineKWh,
		}
	}
	return rows
}

// summaryFeatures condenses a feature window into the regressor's inputs.
func summaryFeatures(window [][]float64) []float64 {
	last := window[len(window)-1]
	avgDev := 0.0
	for _, row := range window {
		avgDev += row[0]
	}
	avgDev /= float64(len(window))
	slope := last[0] - window[0][0]
	return []float64{last[0], avgDev, slope, last[3], last[4], last[5]}
}

// leastSquares solves the normal equations with a small ridge term to keep
// collinear feature sets solvable.
func leastSquares(features [][]float64, targets []float64) ([]float64, error) {
	n := len(features[0])
	ata := make([][]float64, n)
	for i := range ata {
		ata[i] = make([]float64, n)
	}
	atb := make([]float64, n)

	for r, row := range features {
		for i := 0; i < n; i++ {
			atb[i] += row[i] * targets[r]
			for j := i; j < n; j++ {
				ata[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < n; i++ {
		ata[i][i] += 1e-6
		for j := 0; j < i; j++ {
			ata[i][j] = ata[j][i]
		}
	}
	return solve(ata, atb)
}

// solve runs Gaussian elimination with partial pivoting on a square system.
func solve(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, errors.New("singular system")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for col := row + 1; col < n; col++ {
			sum -= a[row][col] * x[col]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}

func sigmoid(v float64) float64 { return 1 / (1 + math.Exp(-v)) }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
