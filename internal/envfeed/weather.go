// Package envfeed produces the environment context streams: outside
// weather, tariff rates and grid carbon intensity. Each stream reads a
// local data file when present and degrades to defaults or simulation
// when it is not.
package envfeed

import (
	"encoding/json"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"energysense/internal/model"
)

const weatherAPITimeout = 3 * time.Second

// WeatherProvider resolves current outside conditions, preferring the
// local JSON file, then the configured HTTP endpoint, then simulation.
type WeatherProvider struct {
	filePath string
	apiURL   string
	client   *resty.Client
	log      *slog.Logger
	rng      *rand.Rand
}

func NewWeatherProvider(filePath, apiURL string, log *slog.Logger) *WeatherProvider {
	if log == nil {
		log = slog.Default()
	}
	seed := uint64(time.Now().UnixNano())
	return &WeatherProvider{
		filePath: filePath,
		apiURL:   apiURL,
		client:   resty.New().SetTimeout(weatherAPITimeout),
		log:      log,
		rng:      rand.New(rand.NewPCG(seed, seed)),
	}
}

type weatherDoc struct {
	OutsideTemp *float64 `json:"outside_temp"`
	Humidity    *float64 `json:"humidity"`
}

// Sample returns the outside temperature in degrees C and the relative
// humidity in percent.
func (p *WeatherProvider) Sample() (float64, float64) {
	if raw, err := os.ReadFile(p.filePath); err == nil {
		return decodeWeather(raw)
	}

	if p.apiURL != "" {
		resp, err := p.client.R().Get(p.apiURL)
		if err != nil {
			p.log.Warn("weather api request failed", "url", p.apiURL, "error", err)
		} else if resp.IsSuccess() {
			return decodeWeather(resp.Body())
		}
	}

	temp := math.Round((27+(p.rng.Float64()*6-2))*10) / 10
	humidity := math.Round((50+(p.rng.Float64()*25-10))*10) / 10
	return temp, humidity
}

// decodeWeather falls back to campus defaults per field, and for both
// fields on a parse failure.
func decodeWeather(raw []byte) (float64, float64) {
	var doc weatherDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return model.DefaultOutsideTemp, model.DefaultHumidity
	}

	temp, humidity := model.DefaultOutsideTemp, model.DefaultHumidity
	if doc.OutsideTemp != nil {
		temp = *doc.OutsideTemp
	}
	if doc.Humidity != nil {
		humidity = *doc.Humidity
	}
	return temp, humidity
}
