package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridline-labs/gridboard/internal/dataset"
	"github.com/gridline-labs/gridboard/internal/entity"
	"github.com/gridline-labs/gridboard/internal/manager"
	"github.com/gridline-labs/gridboard/internal/registry"
	"github.com/gridline-labs/gridboard/internal/render"
	"github.com/gridline-labs/gridboard/internal/widgets"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := registry.New()
	require.NoError(t, widgets.RegisterBuiltins(reg))
	model := dataset.NewModel(dataset.ModelConfig{})
	mgr := manager.New(manager.Config{Registry: reg, Model: model})
	renderer := render.NewDualMode(render.Config{Registry: reg, Model: model})

	s, err := New(Config{
		Manager:    mgr,
		Renderer:   renderer,
		Model:      model,
		SessionKey: "test-session-key-0123456789abcdef",
	})
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func createWidget(t *testing.T, s *Server, typ string) entity.Entity {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/widgets", map[string]any{"type": typ})
	require.Equal(t, http.StatusCreated, w.Code)
	var e entity.Entity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestCreateAndGetWidget(t *testing.T) {
	s := newTestServer(t)
	e := createWidget(t, s, "bar-chart")
	assert.Equal(t, "bar-chart", e.Type)
	assert.Equal(t, "Bar Chart", e.Name)

	w := doJSON(t, s, http.MethodGet, "/api/widgets/"+e.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/widgets/widget_0_missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateWidgetRejectsMissingType(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/widgets", map[string]any{"name": "X"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListWidgetsFiltered(t *testing.T) {
	s := newTestServer(t)
	createWidget(t, s, "bar-chart")
	createWidget(t, s, "kpi")

	w := doJSON(t, s, http.MethodGet, "/api/widgets?type=kpi", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got []entity.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "kpi", got[0].Type)
}

func TestUpdateWidget(t *testing.T) {
	s := newTestServer(t)
	e := createWidget(t, s, "table")

	w := doJSON(t, s, http.MethodPut, "/api/widgets/"+e.ID, map[string]any{"name": "Orders"})
	require.Equal(t, http.StatusOK, w.Code)
	var got entity.Entity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Orders", got.Name)
}

func TestDeleteWidget(t *testing.T) {
	s := newTestServer(t)
	e := createWidget(t, s, "kpi")

	w := doJSON(t, s, http.MethodDelete, "/api/widgets/"+e.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s, http.MethodDelete, "/api/widgets/"+e.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplyBinding(t *testing.T) {
	s := newTestServer(t)
	e := createWidget(t, s, "bar-chart")

	w := doJSON(t, s, http.MethodPost, "/api/widgets/"+e.ID+"/binding", map[string]any{
		"dimensions": []map[string]any{{"fieldId": "region", "fieldName": "region", "fieldType": "dimension", "dataType": "string"}},
		"measures":   []map[string]any{{"fieldId": "sales", "fieldName": "sales", "fieldType": "measure", "dataType": "number", "aggregation": "sum"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var got entity.Entity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.DataBinding.Applied)
}

func TestApplyBindingCardinalityViolation(t *testing.T) {
	s := newTestServer(t)
	e := createWidget(t, s, "bar-chart")

	w := doJSON(t, s, http.MethodPost, "/api/widgets/"+e.ID+"/binding", map[string]any{
		"measures": []map[string]any{{"fieldId": "sales", "fieldName": "sales", "fieldType": "measure", "dataType": "number", "aggregation": "sum"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "dimensions")
}

func TestRenderWidgetModes(t *testing.T) {
	s := newTestServer(t)
	e := createWidget(t, s, "bar-chart")

	w := doJSON(t, s, http.MethodGet, "/api/widgets/"+e.ID+"/render?mode=info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info renderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "info", info.Mode)
	assert.Contains(t, info.HTML, e.ID)

	w = doJSON(t, s, http.MethodGet, "/api/widgets/"+e.ID+"/render?mode=view", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view renderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	// Demo data renders before any binding exists.
	assert.Contains(t, view.HTML, "bar")
	assert.Empty(t, view.Error)

	w = doJSON(t, s, http.MethodGet, "/api/widgets/"+e.ID+"/render?mode=3d", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenderWidgetNoRendererSurfacesError(t *testing.T) {
	s := newTestServer(t)
	e := createWidget(t, s, "mystery")

	w := doJSON(t, s, http.MethodGet, "/api/widgets/"+e.ID+"/render?mode=view", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp renderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
	assert.Contains(t, resp.HTML, "widget-error")
}

func TestToggleModePersistsInSession(t *testing.T) {
	s := newTestServer(t)
	e := createWidget(t, s, "bar-chart")

	w := doJSON(t, s, http.MethodPost, "/api/widgets/"+e.ID+"/toggle-mode", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"view"`)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	// Render without an explicit mode follows the session toggle.
	req := httptest.NewRequest(http.MethodGet, "/api/widgets/"+e.ID+"/render", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp renderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "view", resp.Mode)

	// Toggling again flips back to info.
	req2 := httptest.NewRequest(http.MethodPost, "/api/widgets/"+e.ID+"/toggle-mode", nil)
	for _, c := range cookies {
		req2.AddCookie(c)
	}
	rec2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), `"info"`)
}

func TestUploadAndActivateDataset(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/datasets?name=sales",
		strings.NewReader("region,sales\nNorth,100\nSouth,50\n"))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID   string `json:"id"`
		Rows int    `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, 2, created.Rows)

	list := doJSON(t, s, http.MethodGet, "/api/datasets", nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), created.ID)

	activate := doJSON(t, s, http.MethodPost, "/api/datasets/"+created.ID+"/activate", nil)
	assert.Equal(t, http.StatusOK, activate.Code)

	missing := doJSON(t, s, http.MethodPost, "/api/datasets/ds_missing/activate", nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestBindingEndToEnd(t *testing.T) {
	s := newTestServer(t)

	// Upload a dataset, create a bar chart, bind it, render view mode.
	req := httptest.NewRequest(http.MethodPost, "/api/datasets?name=sales",
		strings.NewReader("region,sales\nNorth,100\nSouth,50\nNorth,25\n"))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	e := createWidget(t, s, "bar-chart")
	w := doJSON(t, s, http.MethodPost, "/api/widgets/"+e.ID+"/binding", map[string]any{
		"dimensions": []map[string]any{{"fieldId": "region", "fieldName": "region", "fieldType": "dimension", "dataType": "string"}},
		"measures":   []map[string]any{{"fieldId": "sales", "fieldName": "sales", "fieldType": "measure", "dataType": "number", "aggregation": "sum"}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/widgets/"+e.ID+"/render?mode=view", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp renderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.HTML, "North")
	assert.Contains(t, resp.HTML, "125")
}

func TestListDefinitions(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/api/definitions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bar-chart")
	assert.Contains(t, w.Body.String(), "kpi")
}

func TestStats(t *testing.T) {
	s := newTestServer(t)
	createWidget(t, s, "kpi")

	w := doJSON(t, s, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats manager.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Total)
}

func TestImportExportRoundTrip(t *testing.T) {
	s := newTestServer(t)
	e := createWidget(t, s, "pie-chart")

	export := doJSON(t, s, http.MethodGet, "/api/widgets/"+e.ID+"/export", nil)
	require.Equal(t, http.StatusOK, export.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/widgets/import", bytes.NewReader(export.Body.Bytes()))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var imported entity.Entity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imported))
	assert.NotEqual(t, e.ID, imported.ID)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t)
	s.addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
