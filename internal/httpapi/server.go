// Package httpapi is the REST surface: dashboard state, telemetry
// ingestion, alert and demand-response workflows, twin controls and the
// assistant. Bearer auth wraps every route except health, login and the
// WebSocket stream, which authenticates its own handshake.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"energysense/internal/assist"
	"energysense/internal/auth"
	"energysense/internal/forecast"
	"energysense/internal/model"
	"energysense/internal/pipeline"
	"energysense/internal/store"
	"energysense/internal/twin"
)

// Sink accepts telemetry events for processing. Ingest reports whether
// the event was queued; *pipeline.Engine satisfies it.
type Sink interface {
	Ingest(ev pipeline.Event) bool
}

// Notifier receives action and alert changes made through the API so
// they reach the live stream without waiting for the dashboard tick.
// *ws.Bridge satisfies it.
type Notifier interface {
	OnAction(action model.Action)
	OnAlert(alert model.Alert)
}

// Config wires the server's collaborators. Store and Auth are required;
// the rest degrade gracefully when nil.
type Config struct {
	Store     *store.Store
	Sink      Sink
	Twin      *twin.Twin
	Forecast  forecast.Predictor
	Assistant assist.Assistant
	Auth      *auth.Service
	Stream    http.Handler
	Notifier  Notifier
	Logger    *slog.Logger
}

// Server holds the handler set behind the router.
type Server struct {
	store     *store.Store
	sink      Sink
	twin      *twin.Twin
	forecast  forecast.Predictor
	assistant assist.Assistant
	auth      *auth.Service
	stream    http.Handler
	notify    Notifier
	log       *slog.Logger

	now func() time.Time
}

func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:     cfg.Store,
		sink:      cfg.Sink,
		twin:      cfg.Twin,
		forecast:  cfg.Forecast,
		assistant: cfg.Assistant,
		auth:      cfg.Auth,
		stream:    cfg.Stream,
		notify:    cfg.Notifier,
		log:       log,
		now:       time.Now,
	}
}

// Routes builds the router. Open routes are registered before the
// authenticated subrouter so they match first.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", s.auth.Login).Methods(http.MethodPost)
	if s.stream != nil {
		r.Handle("/dashboard/stream", s.stream).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/").Subrouter()
	api.Use(s.auth.Require)

	api.HandleFunc("/auth/me", s.auth.Me).Methods(http.MethodGet)
	api.HandleFunc("/dashboard/current-status", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/ingest", s.handleIngest).Methods(http.MethodPost)

	api.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{alertId}/ack", s.handleAlertAck).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{alertId}/resolve", s.handleAlertResolve).Methods(http.MethodPost)

	api.HandleFunc("/actions", s.handleActions).Methods(http.MethodGet)
	api.HandleFunc("/actions/propose", s.handleActionPropose).Methods(http.MethodPost)
	api.HandleFunc("/actions/{actionId}/execute", s.handleActionExecute).Methods(http.MethodPost)
	api.HandleFunc("/actions/{actionId}/verify", s.handleActionVerify).Methods(http.MethodPost)
	api.HandleFunc("/actions/{actionId}/resolve", s.handleActionResolve).Methods(http.MethodPost)

	api.HandleFunc("/twin/modes", s.handleTwinModes).Methods(http.MethodPost)
	api.HandleFunc("/twin/manual", s.handleTwinManual).Methods(http.MethodPost)
	api.HandleFunc("/twin/summary", s.handleTwinSummary).Methods(http.MethodGet)
	api.HandleFunc("/twin/state/{blockId}", s.handleTwinState).Methods(http.MethodGet)

	api.HandleFunc("/assistant/ask", s.handleAssistantAsk).Methods(http.MethodPost)
	api.HandleFunc("/assistant/explain", s.handleAssistantExplain).Methods(http.MethodPost)
	api.HandleFunc("/reports", s.handleReports).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC(),
	}
	if s.forecast != nil {
		payload["predictive_model"] = s.forecast.Status()
	}
	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
