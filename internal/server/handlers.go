// Package server exposes the map workspace and the interaction session as
// a JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/guadaltel/vectors/internal/convert"
	"github.com/guadaltel/vectors/internal/geo"
	"github.com/guadaltel/vectors/internal/interaction"
	"github.com/guadaltel/vectors/internal/loader"
	"github.com/guadaltel/vectors/internal/measure"
	"github.com/guadaltel/vectors/internal/style"
	"github.com/guadaltel/vectors/internal/workspace"

	"github.com/paulmach/orb"
)

var errFeatureNotFound = errors.New("feature not found")

// Routes registers every handler on a new mux.
func (s *ServerContext) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/layers", s.HandleLayersList)
	mux.HandleFunc("POST /api/layers", s.HandleLayerAdd)
	mux.HandleFunc("PUT /api/order", s.HandleLayersOrder)
	mux.HandleFunc("DELETE /api/layers/{name}", s.HandleLayerRemove)
	mux.HandleFunc("POST /api/layers/{name}/visibility", s.HandleLayerVisibility)
	mux.HandleFunc("PUT /api/layers/{name}/legend", s.HandleLayerLegend)
	mux.HandleFunc("GET /api/layers/{name}/extent", s.HandleLayerExtent)
	mux.HandleFunc("GET /api/layers/{name}/export", s.HandleLayerExport)
	mux.HandleFunc("POST /api/import", s.HandleImport)
	mux.HandleFunc("POST /api/import/url", s.HandleImportURL)

	mux.HandleFunc("GET /api/session", s.HandleState)
	mux.HandleFunc("GET /api/session/info", s.HandleInfo)
	mux.HandleFunc("POST /api/session/draw", s.HandleDraw)
	mux.HandleFunc("POST /api/session/edit", s.HandleEdit)
	mux.HandleFunc("POST /api/session/reset", s.HandleReset)
	mux.HandleFunc("POST /api/session/select", s.HandleSelect)
	mux.HandleFunc("POST /api/session/create", s.HandleCreate)
	mux.HandleFunc("POST /api/session/modify", s.HandleModify)
	mux.HandleFunc("POST /api/session/delete", s.HandleDelete)
	mux.HandleFunc("PUT /api/session/style", s.HandleStyle)
	mux.HandleFunc("PUT /api/session/dash", s.HandleDash)

	return mux
}

// HandleLayersList serves the layers open for drawing and editing.
func (s *ServerContext) HandleLayersList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	layers := s.Map.EditableLayers()
	if layers == nil {
		layers = []workspace.LayerInfo{}
	}
	writeJSON(w, http.StatusOK, layers)
}

// HandleLayerAdd creates an empty drawing layer for a geometry kind.
func (s *ServerContext) HandleLayerAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Geometry string `json:"geometry"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kind, err := geo.ParseKind(req.Geometry)
	if err != nil {
		writeError(w, err)
		return
	}
	s.Session.Reset()
	l, err := s.Map.NewDrawingLayer(kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, workspace.Info(l))
}

// HandleLayerRemove drops a layer.
func (s *ServerContext) HandleLayerRemove(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Session.Reset()
	if err := s.Map.RemoveLayer(r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLayerVisibility toggles a layer's visibility.
func (s *ServerContext) HandleLayerVisibility(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Session.Reset()
	visible, err := s.Map.ToggleVisibility(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"visible": visible})
}

// HandleLayerLegend renames a layer's legend.
func (s *ServerContext) HandleLayerLegend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Legend string `json:"legend"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Session.Reset()
	name := r.PathValue("name")
	if err := s.Map.SetLegend(name, req.Legend); err != nil {
		writeError(w, err)
		return
	}
	l, _ := s.Map.Layer(name)
	writeJSON(w, http.StatusOK, workspace.Info(l))
}

// HandleLayersOrder restacks layers, topmost first.
func (s *ServerContext) HandleLayersOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Names []string `json:"names"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Session.Reset()
	if err := s.Map.Reorder(req.Names); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Map.EditableLayers())
}

// HandleLayerExtent serves the bounding box to zoom to, in map coordinates.
func (s *ServerContext) HandleLayerExtent(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.Map.Extent(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]float64{"extent": extent(b)})
}

// HandleLayerExport serves a layer as a download in the requested format.
func (s *ServerContext) HandleLayerExport(w http.ResponseWriter, r *http.Request) {
	format, err := convert.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, err)
		return
	}
	compact := s.CompactExport
	if v := r.URL.Query().Get("compact"); v != "" {
		if compact, err = strconv.ParseBool(v); err != nil {
			writeError(w, badRequest(err))
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Session.Reset()
	b, err := s.Map.ExportLayer(r.PathValue("name"), format, compact)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", b.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", b.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	_, _ = w.Write(b.Data)
}

type importResponse struct {
	Layer    *workspace.LayerInfo `json:"layer,omitempty"`
	Extent   []float64            `json:"extent,omitempty"`
	Message  string               `json:"message,omitempty"`
	Features int                  `json:"features"`
}

// HandleImport lands an uploaded file on the map. The body is the file
// content and the name query parameter its file name.
func (s *ServerContext) HandleImport(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, badRequest(errors.New("missing name parameter")))
		return
	}
	if err := convert.CheckSize(r.ContentLength); err != nil {
		writeError(w, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, convert.MaxFileSize+1))
	if err != nil {
		writeError(w, badRequest(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.importFile(w, name, data)
}

// HandleImportURL fetches a file from a URL or local path known to the
// server and lands it on the map. A request superseded by a newer one
// while fetching is answered with 409.
func (s *ServerContext) HandleImportURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	f, err := s.Loader.ChangeFile(r.Context(), req.Source)
	if err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.importFile(w, f.Name, f.Data)
}

func (s *ServerContext) importFile(w http.ResponseWriter, name string, data []byte) {
	s.Session.Reset()
	res, err := s.Map.ImportFile(name, data)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.Empty() {
		writeJSON(w, http.StatusOK, importResponse{Message: "No geometries found in file"})
		return
	}

	info := workspace.Info(res.Layer)
	writeJSON(w, http.StatusCreated, importResponse{
		Layer:    &info,
		Extent:   extent(res.Extent),
		Features: res.Features,
	})
}

type stateResponse struct {
	Feature     *geo.GeoJSONFeature `json:"feature,omitempty"`
	Emphasis    *geo.GeoJSONFeature `json:"emphasis,omitempty"`
	Layer       string              `json:"layer,omitempty"`
	Kind        geo.Kind            `json:"kind,omitempty"`
	DrawLayer   string              `json:"draw_layer,omitempty"`
	SelectLayer string              `json:"select_layer,omitempty"`
	Style       style.Params        `json:"style"`
	Mode        interaction.Mode    `json:"mode"`
}

func (s *ServerContext) state() stateResponse {
	st := stateResponse{
		Mode:        s.Session.Mode(),
		Kind:        s.Session.Kind(),
		Style:       s.Session.Params(),
		Feature:     geoJSONFeature(s.Session.Feature()),
		Emphasis:    geoJSONFeature(s.Session.Emphasis().Artifact()),
		DrawLayer:   s.handles.draw,
		SelectLayer: s.handles.sel,
	}
	if l := s.Session.Layer(); l != nil {
		st.Layer = l.Name()
	}
	return st
}

// HandleState serves the interaction session.
func (s *ServerContext) HandleState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.state())
}

// HandleInfo serves coordinates, length or area of the active feature.
func (s *ServerContext) HandleInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.Session.Feature()
	if f == nil {
		writeError(w, fmt.Errorf("%w: no active feature", interaction.ErrInvalidTransition))
		return
	}
	t, err := s.Map.ToWGS84()
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := measure.Feature(f, t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type layerRequest struct {
	Layer string `json:"layer"`
}

// HandleDraw starts or toggles off drawing on a layer.
func (s *ServerContext) HandleDraw(w http.ResponseWriter, r *http.Request) {
	s.layerTransition(w, r, s.Session.StartDraw)
}

// HandleEdit starts or toggles off editing on a layer.
func (s *ServerContext) HandleEdit(w http.ResponseWriter, r *http.Request) {
	s.layerTransition(w, r, s.Session.StartEdit)
}

func (s *ServerContext) layerTransition(w http.ResponseWriter, r *http.Request, start func(interaction.Layer) error) {
	var req layerRequest
	if !readJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.Map.EditableLayer(req.Layer)
	if err != nil {
		writeError(w, err)
		return
	}
	s.respond(w, start(l))
}

// HandleReset returns the session to idle.
func (s *ServerContext) HandleReset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Session.Reset()
	writeJSON(w, http.StatusOK, s.state())
}

// HandleSelect makes a feature of the layer being edited the active one.
func (s *ServerContext) HandleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var f *geo.Feature
	if l := s.Session.Layer(); l != nil {
		var ok bool
		if f, ok = l.Feature(req.ID); !ok {
			writeError(w, fmt.Errorf("%w: %q in layer %s", errFeatureNotFound, req.ID, l.Name()))
			return
		}
	}
	s.respond(w, s.Session.FeatureSelected(f))
}

type geometryRequest struct {
	Geometry   *geo.GeoJSONGeometry `json:"geometry"`
	Properties map[string]any       `json:"properties,omitempty"`
}

// HandleCreate adds a drawn geometry to the layer being drawn.
func (s *ServerContext) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req geometryRequest
	if !readJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f := &geo.Feature{Properties: req.Properties}
	if req.Geometry != nil {
		f.Geometry = req.Geometry.Geometry
	}
	s.respond(w, s.Session.FeatureCreated(f))
}

// HandleModify takes the new geometry of the active feature, if any, and
// restyles it.
func (s *ServerContext) HandleModify(w http.ResponseWriter, r *http.Request) {
	var req geometryRequest
	if !readJSON(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if f := s.Session.Feature(); f != nil && s.Session.Mode() == interaction.Selecting && req.Geometry != nil {
		if g := req.Geometry.Geometry; g.Kind() != f.Kind() {
			writeError(w, fmt.Errorf("%w: %s cannot replace %s", geo.ErrMalformedGeometry, g.Kind(), f.Kind()))
			return
		}
		f.Geometry = req.Geometry.Geometry
	}
	s.respond(w, s.Session.FeatureModified())
}

// HandleDelete removes the active feature.
func (s *ServerContext) HandleDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respond(w, s.Session.DeleteActiveFeature())
}

// HandleStyle changes color and thickness.
func (s *ServerContext) HandleStyle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Color     string  `json:"color"`
		Thickness float64 `json:"thickness"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.Color == "" || req.Thickness <= 0 {
		writeError(w, badRequest(errors.New("color and a positive thickness are required")))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.respond(w, s.Session.SetParams(req.Color, req.Thickness))
}

// HandleDash toggles a dash preset.
func (s *ServerContext) HandleDash(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dash string `json:"dash"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	d, err := style.ParseDash(req.Dash)
	if err != nil {
		writeError(w, badRequest(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.respond(w, s.Session.SelectDash(d))
}

// respond writes the session state, or err. Callers hold mu.
func (s *ServerContext) respond(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func geoJSONFeature(f *geo.Feature) *geo.GeoJSONFeature {
	if f == nil {
		return nil
	}
	gf := geo.NewFeatureCollection([]*geo.Feature{f}).Features[0]
	return &gf
}

func extent(b orb.Bound) []float64 {
	return []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

type requestError struct{ err error }

func (e requestError) Error() string { return e.err.Error() }
func (e requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return requestError{err} }

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, convert.MaxFileSize)).Decode(v); err != nil {
		writeError(w, badRequest(fmt.Errorf("decode request: %w", err)))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Ignoring error as we cannot handle client disconnects
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	var re requestError
	switch {
	case errors.As(err, &re):
		return http.StatusBadRequest
	case errors.Is(err, workspace.ErrLayerNotFound), errors.Is(err, errFeatureNotFound):
		return http.StatusNotFound
	case errors.Is(err, interaction.ErrEmptyLayer),
		errors.Is(err, interaction.ErrInvalidTransition),
		errors.Is(err, workspace.ErrLayerExists),
		errors.Is(err, workspace.ErrNotEditable),
		errors.Is(err, loader.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, convert.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, convert.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, geo.ErrMalformedGeometry),
		errors.Is(err, geo.ErrUnknownGeometryKind),
		errors.Is(err, workspace.ErrInvalidLegend),
		errors.Is(err, workspace.ErrNoExtent):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
