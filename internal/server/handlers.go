package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gridline-labs/gridboard/internal/dataset"
	"github.com/gridline-labs/gridboard/internal/entity"
	"github.com/gridline-labs/gridboard/internal/manager"
	"github.com/gridline-labs/gridboard/internal/render"
)

const maxUploadBytes = 10 << 20

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.manager.GetStats())
}

func (s *Server) handleListDefinitions(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.manager.Registry().List())
}

func (s *Server) handleListWidgets(w http.ResponseWriter, r *http.Request) {
	f := manager.Filter{Type: r.URL.Query().Get("type")}
	widgets := s.manager.FilterWidgets(f)

	summaries := make([]entity.Summary, 0, len(widgets))
	for _, e := range widgets {
		summaries = append(summaries, e.Summarize())
	}
	s.respondJSON(w, http.StatusOK, summaries)
}

type createWidgetRequest struct {
	Type          string              `json:"type"`
	Name          string              `json:"name"`
	Title         string              `json:"title"`
	Position      *entity.Position    `json:"position"`
	Size          *entity.Size        `json:"size"`
	Configuration map[string]any      `json:"configuration"`
	DataBinding   *entity.DataBinding `json:"dataBinding"`
}

func (s *Server) handleCreateWidget(w http.ResponseWriter, r *http.Request) {
	var req createWidgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		s.respondError(w, http.StatusBadRequest, "widget type is required")
		return
	}

	e, err := s.manager.CreateWidget(r.Context(), manager.CreateConfig{
		Type:          req.Type,
		Name:          req.Name,
		Title:         req.Title,
		Position:      req.Position,
		Size:          req.Size,
		Configuration: req.Configuration,
		DataBinding:   req.DataBinding,
	})
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetWidget(w http.ResponseWriter, r *http.Request) {
	e := s.manager.GetWidget(chi.URLParam(r, "id"))
	if e == nil {
		s.respondError(w, http.StatusNotFound, "widget not found")
		return
	}
	s.respondJSON(w, http.StatusOK, e)
}

type updateWidgetRequest struct {
	Name          *string          `json:"name"`
	Title         *string          `json:"title"`
	Position      *entity.Position `json:"position"`
	Size          *entity.Size     `json:"size"`
	SourceCode    *string          `json:"sourceCode"`
	CustomCSS     *string          `json:"customCSS"`
	Configuration map[string]any   `json:"configuration"`
}

func (s *Server) handleUpdateWidget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateWidgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ok := s.manager.UpdateWidget(r.Context(), id, manager.Update{
		Name:          req.Name,
		Title:         req.Title,
		Position:      req.Position,
		Size:          req.Size,
		SourceCode:    req.SourceCode,
		CustomCSS:     req.CustomCSS,
		Configuration: req.Configuration,
	})
	if !ok {
		s.respondError(w, http.StatusNotFound, "widget not found or update invalid")
		return
	}
	s.respondJSON(w, http.StatusOK, s.manager.GetWidget(id))
}

func (s *Server) handleDeleteWidget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.manager.DeleteWidget(r.Context(), id) {
		s.respondError(w, http.StatusNotFound, "widget not found")
		return
	}
	s.renderer.RemoveFromCache(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportWidget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := s.manager.ExportWidget(id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "widget not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".json"))
	_, _ = w.Write(data)
}

func (s *Server) handleImportWidget(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	e, err := s.manager.ImportWidget(r.Context(), data)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, e)
}

func (s *Server) handleApplyBinding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.manager.GetWidget(id) == nil {
		s.respondError(w, http.StatusNotFound, "widget not found")
		return
	}

	var binding entity.DataBinding
	if err := json.NewDecoder(r.Body).Decode(&binding); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.manager.ApplyDataBinding(r.Context(), id, binding) {
		e := s.manager.GetWidget(id)
		msg := "binding rejected"
		if e != nil && e.State.ErrorMessage != "" {
			msg = e.State.ErrorMessage
		}
		s.respondError(w, http.StatusUnprocessableEntity, msg)
		return
	}
	s.respondJSON(w, http.StatusOK, s.manager.GetWidget(id))
}

type renderResponse struct {
	WidgetID string `json:"widgetId"`
	Mode     string `json:"mode"`
	HTML     string `json:"html"`
	CSS      string `json:"css,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleRenderWidget renders one widget. The mode comes from the query
// parameter when present, else the client's session toggle, else info.
func (s *Server) handleRenderWidget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e := s.manager.GetWidget(id)
	if e == nil {
		s.respondError(w, http.StatusNotFound, "widget not found")
		return
	}

	mode := render.Mode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = s.sessionMode(r, id)
	}
	if mode != render.ModeInfo && mode != render.ModeView {
		s.respondError(w, http.StatusBadRequest, "mode must be info or view")
		return
	}

	res, err := s.renderer.Render(e, mode)
	resp := renderResponse{WidgetID: id, Mode: string(mode)}
	if res != nil {
		resp.HTML = res.HTML
		resp.CSS = res.CSS
	}
	if err != nil {
		// Render failures still produce an error tile; surface the cause
		// alongside it.
		resp.Error = err.Error()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleToggleMode flips the client's display mode for one widget and
// stores it in the cookie session.
func (s *Server) handleToggleMode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.manager.GetWidget(id) == nil {
		s.respondError(w, http.StatusNotFound, "widget not found")
		return
	}

	sess, _ := s.sessions.Get(r, sessionName)
	current := render.ModeInfo
	if v, ok := sess.Values["mode:"+id].(string); ok {
		current = render.Mode(v)
	}
	next := render.ModeView
	if current == render.ModeView {
		next = render.ModeInfo
	}
	sess.Values["mode:"+id] = string(next)
	if err := sess.Save(r, w); err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"widgetId": id, "mode": string(next)})
}

func (s *Server) sessionMode(r *http.Request, id string) render.Mode {
	sess, err := s.sessions.Get(r, sessionName)
	if err != nil {
		return render.ModeInfo
	}
	if v, ok := sess.Values["mode:"+id].(string); ok {
		return render.Mode(v)
	}
	return render.ModeInfo
}

type datasetSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Rows     int    `json:"rows"`
	Fields   int    `json:"fields"`
	IsActive bool   `json:"isActive"`
}

func (s *Server) handleListDatasets(w http.ResponseWriter, _ *http.Request) {
	if s.model == nil {
		s.respondJSON(w, http.StatusOK, []datasetSummary{})
		return
	}
	active := s.model.Active()
	out := make([]datasetSummary, 0)
	for _, src := range s.model.Sources() {
		out = append(out, datasetSummary{
			ID:       src.ID,
			Name:     src.Name,
			Rows:     src.RowCount,
			Fields:   len(src.Fields),
			IsActive: active != nil && active.ID == src.ID,
		})
	}
	s.respondJSON(w, http.StatusOK, out)
}

// handleUploadDataset accepts a CSV body (or multipart "file" part), parses
// and classifies it, and registers it with the data model.
func (s *Server) handleUploadDataset(w http.ResponseWriter, r *http.Request) {
	if s.model == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no data model configured")
		return
	}

	name := r.URL.Query().Get("name")
	var body io.Reader = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "missing file part")
			return
		}
		defer f.Close()
		body = f
		if name == "" {
			name = hdr.Filename
		}
	}
	if name == "" {
		name = "uploaded"
	}

	src, err := dataset.ParseCSV(name, body)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.model.AddSource(src)

	s.respondJSON(w, http.StatusCreated, map[string]any{
		"id":     src.ID,
		"name":   src.Name,
		"rows":   src.RowCount,
		"fields": src.Fields,
	})
}

func (s *Server) handleActivateDataset(w http.ResponseWriter, r *http.Request) {
	if s.model == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no data model configured")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.model.SetActive(id); err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"active": id})
}
