package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"energysense/internal/auth"
)

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"alerts": s.store.Alerts()})
}

func (s *Server) handleAlertAck(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["alertId"]
	user, _ := auth.UserFrom(r.Context())

	if _, ok := s.store.AcknowledgeAlert(alertID, user.Username); !ok {
		writeDetail(w, http.StatusNotFound, "Alert not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged", "alert_id": alertID})
}

func (s *Server) handleAlertResolve(w http.ResponseWriter, r *http.Request) {
	alertID := mux.Vars(r)["alertId"]
	user, _ := auth.UserFrom(r.Context())

	if _, ok := s.store.ResolveAlert(alertID, user.Username); !ok {
		writeDetail(w, http.StatusNotFound, "Alert not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved", "alert_id": alertID})
}
