package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"energysense/internal/assist"
	"energysense/internal/auth"
	"energysense/internal/forecast"
	"energysense/internal/model"
	"energysense/internal/pipeline"
	"energysense/internal/store"
	"energysense/internal/twin"
)

var apiStart = time.Date(2026, 2, 26, 10, 0, 0, 0, time.UTC)

type stubSink struct {
	events []pipeline.Event
	full   bool
}

func (s *stubSink) Ingest(ev pipeline.Event) bool {
	if s.full {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

type stubNotifier struct {
	actions []model.Action
	alerts  []model.Alert
}

func (n *stubNotifier) OnAction(action model.Action) { n.actions = append(n.actions, action) }
func (n *stubNotifier) OnAlert(alert model.Alert)    { n.alerts = append(n.alerts, alert) }

type testEnv struct {
	store    *store.Store
	twin     *twin.Twin
	sink     *stubSink
	notifier *stubNotifier
	server   *Server
	router   http.Handler

	adminToken  string
	viewerToken string
}

// writeTestUsers seeds an admin and a read-only viewer account.
func writeTestUsers(t *testing.T, path string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(t, err)

	users := []auth.User{
		{Username: auth.DefaultAdminUsername, Role: auth.RoleAdmin,
			OrgID: auth.DefaultOrgID, OrgName: auth.DefaultOrgName, PasswordHash: string(hash)},
		{Username: "viewer", Role: "viewer",
			OrgID: auth.DefaultOrgID, OrgName: auth.DefaultOrgName, PasswordHash: string(hash)},
	}
	raw, err := json.Marshal(users)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	usersPath := filepath.Join(t.TempDir(), "users.json")
	writeTestUsers(t, usersPath)

	users, err := auth.LoadUsers(usersPath, nil)
	require.NoError(t, err)
	tokens := auth.NewTokens("test-secret", 0)
	authSvc := auth.NewService(users, tokens, nil)

	admin, ok := users.Get(auth.DefaultAdminUsername)
	require.True(t, ok)
	adminToken, err := tokens.Issue(admin)
	require.NoError(t, err)

	viewer, ok := users.Get("viewer")
	require.True(t, ok)
	viewerToken, err := tokens.Issue(viewer)
	require.NoError(t, err)

	st := store.New(auth.DefaultOrgID, auth.DefaultOrgName)
	tw := twin.New(true, true)
	tw.RegisterZones([]model.ZoneProfile{
		{ID: "block_a", Label: "Block A", BaselineKWh: 10},
		{ID: "block_b", Label: "Block B", BaselineKWh: 8},
	})

	sink := &stubSink{}
	notifier := &stubNotifier{}
	srv := New(Config{
		Store:     st,
		Sink:      sink,
		Twin:      tw,
		Forecast:  forecast.NewTrendPredictor(),
		Assistant: assist.NewComposer(st),
		Auth:      authSvc,
		Notifier:  notifier,
	})
	srv.now = func() time.Time { return apiStart }

	return &testEnv{
		store:       st,
		twin:        tw,
		sink:        sink,
		notifier:    notifier,
		server:      srv,
		router:      srv.Routes(),
		adminToken:  adminToken,
		viewerToken: viewerToken,
	}
}

// seedZones stores one waste and one normal snapshot with near-now
// timestamps so the bounded history keeps them.
func seedZones(e *testEnv) {
	ts := time.Now().UTC().Add(-30 * time.Second)
	e.store.Update(model.Snapshot{
		ZoneID: "block_a", ZoneLabel: "Block A",
		EnergyKWh: 13.2, BaselineKWh: 10, Occupancy: 15, Temperature: 26,
		Status: model.StatusWaste, SavingsKWh: 3.2, DeviationPct: 32,
		TariffINRPerKWh: 6.5, CostINR: 85.8, WasteCostINR: 20.8,
		CarbonKgPerKWh: 0.82, CO2Kg: 10.82,
		RootCause: "High energy with low occupancy indicates avoidable load.",
		UpdatedAt: ts,
	})
	e.store.Update(model.Snapshot{
		ZoneID: "block_b", ZoneLabel: "Block B",
		EnergyKWh: 7.6, BaselineKWh: 8, Occupancy: 55, Temperature: 24,
		Status: model.StatusNormal, SavingsKWh: 0, DeviationPct: -5,
		TariffINRPerKWh: 6.5, CostINR: 49.4, WasteCostINR: 0,
		CarbonKgPerKWh: 0.82, CO2Kg: 6.23,
		UpdatedAt: ts,
	})
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) admin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	return e.do(t, method, path, e.adminToken, body)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestServer_HealthIsOpen(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body["status"])

	predictive, ok := body["predictive_model"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "trend-baseline-v1", predictive["model_name"])
	assert.Equal(t, false, predictive["model_ready"])
	assert.EqualValues(t, 18, predictive["sequence_length"])
}

func TestServer_ProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/dashboard/current-status", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authorization header missing")

	rec = env.do(t, http.MethodGet, "/dashboard/current-status", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid token")

	// Any authenticated role can read.
	rec = env.do(t, http.MethodGet, "/alerts", env.viewerToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_LoginRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/login", "",
		map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, rec.Code)

	var login struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	decodeJSON(t, rec, &login)
	assert.Equal(t, "bearer", login.TokenType)
	require.NotEmpty(t, login.AccessToken)

	rec = env.do(t, http.MethodGet, "/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me struct {
		Username string `json:"username"`
		OrgName  string `json:"org_name"`
	}
	decodeJSON(t, rec, &me)
	assert.Equal(t, "admin", me.Username)
	assert.Equal(t, auth.DefaultOrgName, me.OrgName)
}

func TestServer_UnknownPathIsNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.admin(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
