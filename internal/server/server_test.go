// internal/server/server_test.go
package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meal-scale/internal/foodgroup"
	"meal-scale/internal/models"
	"meal-scale/internal/storage"
)

const streamBody = `INICIO-COMIDA
INICIO-PLATO
ALIMENTO,15,53.50
ALIMENTO,9,53.50
INICIO-PLATO
ALIMENTO,15,24.40
FIN-COMIDA,14.03.2026,13:05:09
FIN-TRANSMISION
`

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "meals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv, err := NewMealLogServer(&Config{Host: "127.0.0.1", Port: 0, Location: time.UTC}, store, foodgroup.Default(), nil)
	require.NoError(t, err)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUploadThenGetMeals(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/meals/log", streamBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var ingest IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ingest))
	assert.Equal(t, 1, ingest.Stored)
	assert.Empty(t, ingest.Problems)

	rec = do(t, h, http.MethodGet, "/meals?start=2026-03-14&end=2026-03-14", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc.Comidas, 1)
	assert.True(t, doc.Comidas[0].Fecha.Equal(time.Date(2026, 3, 14, 13, 5, 9, 0, time.UTC)))
	require.Len(t, doc.Comidas[0].Platos, 2)
	assert.Equal(t, []models.DocIngredient{{Grupo: 15, Peso: 53.5}, {Grupo: 9, Peso: 53.5}}, doc.Comidas[0].Platos[0].Alimentos)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw, "comidas")
}

func TestUploadWithoutClosedMeal(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/meals/log", "INICIO-COMIDA\nINICIO-PLATO\nALIMENTO,1,x\nFIN-TRANSMISION\n")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var ingest IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ingest))
	assert.Equal(t, 1, ingest.Discarded)
	assert.Len(t, ingest.Problems, 1)
}

func TestSummaryEndpoint(t *testing.T) {
	h := newTestServer(t)
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/meals/log", streamBody).Code)

	rec := do(t, h, http.MethodGet, "/meals/summary?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var sums []models.MealSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sums))
	require.Len(t, sums, 1)
	assert.Equal(t, 2, sums[0].Dishes)
	assert.Equal(t, 3, sums[0].Ingredients)
	assert.InDelta(t, 131.4, sums[0].TotalWeightG, 1e-9)
}

func TestBadQuery(t *testing.T) {
	h := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/meals?limit=many", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/meals?start=14-03-2026", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodGet, "/healthz", "").Code)
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func callTool(t *testing.T, h http.Handler, name string, args map[string]interface{}) (int, string) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		return rec.Code, rec.Body.String()
	}

	var res toolResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Content, 1)
	return rec.Code, res.Content[0].Text
}

func TestMCPTools(t *testing.T) {
	h := newTestServer(t)

	code, text := callTool(t, h, "ingest_log", map[string]interface{}{"records": streamBody})
	require.Equal(t, http.StatusOK, code, text)
	var ingest IngestResult
	require.NoError(t, json.Unmarshal([]byte(text), &ingest))
	assert.Equal(t, 1, ingest.Stored)

	code, text = callTool(t, h, "get_meals", map[string]interface{}{"start_date": "2026-03-01"})
	require.Equal(t, http.StatusOK, code, text)
	var doc models.Document
	require.NoError(t, json.Unmarshal([]byte(text), &doc))
	assert.Len(t, doc.Comidas, 1)

	code, text = callTool(t, h, "meal_summary", map[string]interface{}{"limit": 1})
	require.Equal(t, http.StatusOK, code, text)
	var sums []models.MealSummary
	require.NoError(t, json.Unmarshal([]byte(text), &sums))
	require.Len(t, sums, 1)
	assert.Positive(t, sums[0].Totals.Kcal)

	code, _ = callTool(t, h, "calculate_carbs", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = callTool(t, h, "ingest_log", map[string]interface{}{"records": "  "})
	assert.Equal(t, http.StatusInternalServerError, code)
}
