// Command server runs the energy telemetry backend: ingest pipeline,
// digital twin, forecaster, REST API and the live dashboard stream in a
// single process.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"energysense/internal/assist"
	"energysense/internal/auth"
	"energysense/internal/config"
	"energysense/internal/envfeed"
	"energysense/internal/forecast"
	"energysense/internal/httpapi"
	"energysense/internal/ingest"
	"energysense/internal/pipeline"
	"energysense/internal/sched"
	"energysense/internal/store"
	"energysense/internal/twin"
	"energysense/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (built-in defaults when empty)")
	addr := flag.String("addr", "", "listen address override")
	flag.Parse()

	// .env is optional; deployments set real environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log, closeLog, err := buildLogger(cfg.Log)
	if err != nil {
		slog.Error("logger setup failed", "error", err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(log)

	zones := config.LoadZones(cfg.Data.ZonesFile, log)
	if len(zones) == 0 {
		log.Warn("no zone profiles loaded, dashboard will stay empty", "path", cfg.Data.ZonesFile)
	}

	st := store.New(auth.DefaultOrgID, auth.DefaultOrgName)

	tw := twin.New(cfg.Twin.OverlayEnabled, cfg.Twin.SourceEnabled)
	tw.RegisterZones(zones)

	users, err := auth.LoadUsers(cfg.Auth.UsersFile, log)
	if err != nil {
		log.Error("loading users failed", "error", err)
		os.Exit(1)
	}
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	authSvc := auth.NewService(users, tokens, log)

	predictor := forecast.NewTrendPredictor()
	assistant := assist.NewComposer(st)

	hub := ws.NewHub(log)
	bridge := ws.NewBridge(hub, log)

	feeder := ingest.NewChain(ingest.NewReplay(cfg.Data.StreamFile, log), ingest.NewSynthetic(zones))
	engine := pipeline.New(pipeline.Config{
		Store:     st,
		Twin:      tw,
		Feeder:    feeder,
		Callback:  bridge,
		Logger:    log,
		Profiles:  zones,
		QueueSize: cfg.Pipeline.QueueSize,
	})
	engine.Start()
	defer engine.Stop()

	if cfg.MQTT.Broker != "" {
		src, err := ingest.NewMQTTSource(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic, engine, log)
		if err != nil {
			log.Warn("mqtt source unavailable, continuing without it", "error", err)
		} else {
			defer src.Close()
		}
	}

	weather := envfeed.NewWeatherProvider(cfg.Data.WeatherFile, cfg.Data.WeatherAPIURL, log)
	feed := envfeed.NewFeed(weather, envfeed.NewTariffSchedule(cfg.Data.TariffFile), envfeed.NewCarbonSchedule(cfg.Data.CarbonFile), engine, log)
	feed.Start()
	defer feed.Stop()

	// The stream handler needs the API's dashboard payload for handshake
	// snapshots, and the API needs the handler for its route table.
	var api *httpapi.Server
	stream := ws.NewHandler(hub, authSvc, func() any { return api.DashboardPayload() }, log)
	api = httpapi.New(httpapi.Config{
		Store:     st,
		Sink:      engine,
		Twin:      tw,
		Forecast:  predictor,
		Assistant: assistant,
		Auth:      authSvc,
		Stream:    stream,
		Notifier:  bridge,
		Logger:    log,
	})

	runner := sched.New(log)
	runner.Add("forecast-training", time.Duration(cfg.Schedule.TrainSeconds)*time.Second, func() {
		predictor.Train(st.HistoryMap())
	})
	runner.Add("reports", time.Duration(cfg.Schedule.ReportSeconds)*time.Second, func() {
		for _, reportType := range []string{"daily", "weekly"} {
			content, err := assistant.Report(context.Background(), reportType)
			if err != nil {
				log.Warn("report generation failed", "type", reportType, "error", err)
				continue
			}
			st.SetReport(reportType, content)
		}
	})
	runner.Add("dashboard-push", time.Duration(cfg.Schedule.PushSeconds)*time.Second, func() {
		bridge.DashboardUpdate(api.DashboardPayload())
	})
	runner.Start()
	defer runner.Stop()

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	handler := corsMiddleware.Handler(handlers.LoggingHandler(os.Stdout, api.Routes()))

	log.Info("server listening", "addr", cfg.Server.Addr, "zones", len(zones))
	if err := http.ListenAndServe(cfg.Server.Addr, handler); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// buildLogger builds the process logger, teeing to a file next to stdout
// when one is configured.
func buildLogger(cfg config.Log) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stdout
	closer := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.File, err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closer = func() { f.Close() }
	}
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closer, nil
}
