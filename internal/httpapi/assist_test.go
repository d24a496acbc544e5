package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energysense/internal/assist"
	"energysense/internal/model"
)

func TestAssistant_AskAnswersFromTelemetry(t *testing.T) {
	env := newTestEnv(t)
	seedZones(env)

	rec := env.admin(t, http.MethodPost, "/assistant/ask", map[string]string{
		"question": "Where are we wasting energy?",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var answer assist.Answer
	decodeJSON(t, rec, &answer)
	assert.Contains(t, answer.Answer, "Where are we wasting energy?")
	assert.Contains(t, answer.Answer, "Org: CIT Campus")
	assert.Contains(t, answer.Answer, "Block A")
	assert.NotNil(t, answer.Citations)
}

func TestAssistant_ExplainZone(t *testing.T) {
	env := newTestEnv(t)
	seedZones(env)

	rec := env.admin(t, http.MethodPost, "/assistant/explain", map[string]string{
		"block_id": "block_a",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var answer assist.Answer
	decodeJSON(t, rec, &answer)
	assert.Contains(t, answer.Answer, "Block A is WASTE")
	assert.Contains(t, answer.Answer, "Root cause:")

	rec = env.admin(t, http.MethodPost, "/assistant/explain", map[string]string{
		"block_id": "ghost",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &answer)
	assert.Equal(t, "Block not found.", answer.Answer)
}

func TestAssistant_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.admin(t, http.MethodPost, "/assistant/ask", "nope")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}

func TestReports_ListsStored(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetReport("daily", "Daily energy intelligence summary")
	env.store.SetReport("weekly", "Weekly energy intelligence summary")

	rec := env.admin(t, http.MethodGet, "/reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Reports []model.Report `json:"reports"`
	}
	decodeJSON(t, rec, &body)
	require.Len(t, body.Reports, 2)

	types := []string{body.Reports[0].ReportType, body.Reports[1].ReportType}
	assert.Contains(t, types, "daily")
	assert.Contains(t, types, "weekly")
}
