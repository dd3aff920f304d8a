package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/guadaltel/vectors/internal/config"
	"github.com/guadaltel/vectors/internal/emphasis"
	"github.com/guadaltel/vectors/internal/interaction"
	"github.com/guadaltel/vectors/internal/loader"
	"github.com/guadaltel/vectors/internal/reproject"
	"github.com/guadaltel/vectors/internal/workspace"
)

const stopsGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","id":"a","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[1,1]}},
 {"type":"Feature","id":"b","properties":{},"geometry":{"type":"Point","coordinates":[3,2]}}
]}`

func fixedNow() time.Time { return time.UnixMilli(1700000000000) }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := &config.Config{CRS: reproject.WGS84}
	cfg.ApplyDefaults()

	m, err := workspace.New(cfg.CRS, nil, workspace.WithClock(fixedNow))
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewServerContext(cfg, m, loader.New(nil), interaction.WithClock(fixedNow))
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(RequestLogger(s.Routes()))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	out := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 && data[0] == '{' {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode, out
}

func expect(t *testing.T, srv *httptest.Server, method, path, body string, status int) map[string]any {
	t.Helper()
	got, out := call(t, srv, method, path, body)
	if got != status {
		t.Fatalf("%s %s: got status %d, want %d (%v)", method, path, got, status, out)
	}
	return out
}

func TestDrawEditFlow(t *testing.T) {
	srv := newTestServer(t)

	layer := expect(t, srv, "POST", "/api/layers", `{"geometry":"LineString"}`, http.StatusCreated)
	name, _ := layer["name"].(string)
	if name != "temp_1700000000000" || layer["class"] != "line" {
		t.Fatalf("got %v", layer)
	}

	st := expect(t, srv, "POST", "/api/session/draw", `{"layer":"`+name+`"}`, http.StatusOK)
	if st["mode"] != "drawing" || st["draw_layer"] != name {
		t.Fatalf("got %v", st)
	}

	st = expect(t, srv, "POST", "/api/session/create",
		`{"geometry":{"type":"LineString","coordinates":[[0,0],[1,0]]}}`, http.StatusOK)
	feature, _ := st["feature"].(map[string]any)
	if feature["id"] != name+".1700000000000" || st["emphasis"] == nil {
		t.Fatalf("got %v", st)
	}

	st = expect(t, srv, "POST", "/api/session/draw", `{"layer":"`+name+`"}`, http.StatusOK)
	if st["mode"] != "idle" || st["draw_layer"] != nil || st["emphasis"] != nil {
		t.Fatalf("drawing not toggled off: %v", st)
	}

	st = expect(t, srv, "POST", "/api/session/edit", `{"layer":"`+name+`"}`, http.StatusOK)
	if st["mode"] != "editing" || st["select_layer"] != name {
		t.Fatalf("got %v", st)
	}
	st = expect(t, srv, "POST", "/api/session/select", `{"id":"`+name+`.1700000000000"}`, http.StatusOK)
	if st["mode"] != "selecting" || st["kind"] != "LineString" {
		t.Fatalf("got %v", st)
	}

	info := expect(t, srv, "GET", "/api/session/info", "", http.StatusOK)
	if lengths, _ := info["length"].([]any); len(lengths) != 2 {
		t.Errorf("got info %v", info)
	}

	st = expect(t, srv, "PUT", "/api/session/dash", `{"dash":"dotted"}`, http.StatusOK)
	if s, _ := st["style"].(map[string]any); s["dash"] != "dotted" {
		t.Errorf("got style %v", st["style"])
	}

	expect(t, srv, "POST", "/api/session/modify",
		`{"geometry":{"type":"Point","coordinates":[0,0]}}`, http.StatusUnprocessableEntity)
	expect(t, srv, "POST", "/api/session/modify",
		`{"geometry":{"type":"LineString","coordinates":[[0,0],[2,0]]}}`, http.StatusOK)

	st = expect(t, srv, "POST", "/api/session/delete", "", http.StatusOK)
	if st["mode"] != "idle" || st["feature"] != nil {
		t.Fatalf("got %v", st)
	}

	expect(t, srv, "POST", "/api/session/edit", `{"layer":"`+name+`"}`, http.StatusConflict)
}

func TestImportExport(t *testing.T) {
	srv := newTestServer(t)

	out := expect(t, srv, "POST", "/api/import?name=stops.geojson", stopsGeoJSON, http.StatusCreated)
	if out["features"] != float64(2) {
		t.Fatalf("got %v", out)
	}
	if ext, _ := out["extent"].([]any); len(ext) != 4 || ext[0] != float64(1) || ext[2] != float64(3) {
		t.Errorf("got extent %v", out["extent"])
	}

	resp, err := srv.Client().Get(srv.URL + "/api/layers/stops/export?format=kml")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/xml" {
		t.Fatalf("got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "stops.kml") || !bytes.Contains(body, []byte("<kml")) {
		t.Errorf("got %s: %s", resp.Header.Get("Content-Disposition"), body)
	}

	empty := expect(t, srv, "POST", "/api/import?name=none.geojson", `{"type":"FeatureCollection","features":[]}`, http.StatusOK)
	if empty["features"] != float64(0) || empty["message"] == nil {
		t.Errorf("got %v", empty)
	}

	expect(t, srv, "POST", "/api/import?name=table.csv", "a,b", http.StatusUnsupportedMediaType)
	expect(t, srv, "GET", "/api/layers/stops/export?format=dxf", "", http.StatusUnsupportedMediaType)
}

func TestImportURL(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(stopsGeoJSON))
	}))
	defer files.Close()

	srv := newTestServer(t)
	out := expect(t, srv, "POST", "/api/import/url", `{"source":"`+files.URL+`/data/bus.geojson"}`, http.StatusCreated)
	layer, _ := out["layer"].(map[string]any)
	if layer["name"] != "bus" || layer["type"] != "GeoJSON" {
		t.Errorf("got %v", out)
	}
}

func TestLayerManagement(t *testing.T) {
	srv := newTestServer(t)
	expect(t, srv, "POST", "/api/import?name=a.geojson", stopsGeoJSON, http.StatusCreated)
	expect(t, srv, "POST", "/api/import?name=b.geojson", stopsGeoJSON, http.StatusCreated)

	vis := expect(t, srv, "POST", "/api/layers/a/visibility", "", http.StatusOK)
	if vis["visible"] != false {
		t.Errorf("got %v", vis)
	}

	l := expect(t, srv, "PUT", "/api/layers/a/legend", `{"legend":" Stops "}`, http.StatusOK)
	if l["legend"] != "Stops" {
		t.Errorf("got %v", l)
	}
	expect(t, srv, "PUT", "/api/layers/a/legend", `{"legend":" "}`, http.StatusUnprocessableEntity)

	expect(t, srv, "PUT", "/api/order", `{"names":["a","b"]}`, http.StatusOK)
	expect(t, srv, "PUT", "/api/order", `{"names":["a","zzz"]}`, http.StatusNotFound)

	expect(t, srv, "DELETE", "/api/layers/a", "", http.StatusNoContent)
	expect(t, srv, "GET", "/api/layers/a/extent", "", http.StatusNotFound)
}

func TestErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		method, path, body string
		status             int
	}{
		{"POST", "/api/session/select", `{"id":"x"}`, http.StatusConflict},
		{"POST", "/api/session/create", `{"geometry":{"type":"Point","coordinates":[0,0]}}`, http.StatusConflict},
		{"POST", "/api/session/delete", "", http.StatusConflict},
		{"GET", "/api/session/info", "", http.StatusConflict},
		{"POST", "/api/session/draw", `{"layer":"missing"}`, http.StatusNotFound},
		{"POST", "/api/session/draw", `not json`, http.StatusBadRequest},
		{"POST", "/api/layers", `{"geometry":"circle"}`, http.StatusUnprocessableEntity},
		{"PUT", "/api/session/dash", `{"dash":"wavy"}`, http.StatusBadRequest},
		{"PUT", "/api/session/style", `{"color":"","thickness":2}`, http.StatusBadRequest},
		{"POST", "/api/import", stopsGeoJSON, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			expect(t, srv, tt.method, tt.path, tt.body, tt.status)
		})
	}
}

func TestReservedLayers(t *testing.T) {
	srv := newTestServer(t)
	expect(t, srv, "POST", "/api/import?name=stops.geojson", stopsGeoJSON, http.StatusCreated)

	reserved := `{"layer":"` + emphasis.LayerName + `"}`
	expect(t, srv, "POST", "/api/session/draw", reserved, http.StatusConflict)
	expect(t, srv, "POST", "/api/session/edit", reserved, http.StatusConflict)

	st := expect(t, srv, "GET", "/api/session", "", http.StatusOK)
	if st["layer"] != nil && st["layer"] != "" {
		t.Errorf("session entered a reserved layer: %v", st)
	}

	expect(t, srv, "DELETE", "/api/layers/"+emphasis.LayerName, "", http.StatusConflict)
	// Still on the map, just without features.
	expect(t, srv, "GET", "/api/layers/"+emphasis.LayerName+"/extent", "", http.StatusUnprocessableEntity)

	expect(t, srv, "POST", "/api/session/edit", `{"layer":"stops"}`, http.StatusOK)
}
