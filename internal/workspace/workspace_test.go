package workspace

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/guadaltel/vectors/internal/convert"
	"github.com/guadaltel/vectors/internal/emphasis"
	"github.com/guadaltel/vectors/internal/geo"
	"github.com/guadaltel/vectors/internal/reproject"
)

const pointsGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","id":"a","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[1,1]}},
 {"type":"Feature","id":"b","properties":{},"geometry":{"type":"Point","coordinates":[3,2]}}
]}`

func newMap(t *testing.T, crs string) *Map {
	t.Helper()
	m, err := New(crs, nil, WithClock(func() time.Time { return time.UnixMilli(42) }))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNewUnknownCRS(t *testing.T) {
	if _, err := New("EPSG:999999", nil); !errors.Is(err, reproject.ErrUnknownCRS) {
		t.Fatalf("got %v, want ErrUnknownCRS", err)
	}
}

func TestLayerLifecycle(t *testing.T) {
	m := newMap(t, reproject.WGS84)

	l, err := m.NewDrawingLayer(geo.KindLineString)
	if err != nil {
		t.Fatal(err)
	}
	if l.Name() != "temp_42" || l.Legend() != "temp_42" {
		t.Errorf("got name %q legend %q", l.Name(), l.Legend())
	}
	second, err := m.NewDrawingLayer(geo.KindPoint)
	if err != nil {
		t.Fatal(err)
	}
	if second.Name() == l.Name() {
		t.Errorf("duplicate layer name %q", second.Name())
	}
	if second.ZIndex() <= l.ZIndex() {
		t.Errorf("new layer not on top: %d <= %d", second.ZIndex(), l.ZIndex())
	}

	visible, err := m.ToggleVisibility(l.Name())
	if err != nil || visible {
		t.Errorf("got visible %v, err %v", visible, err)
	}

	if err := m.SetLegend(l.Name(), "   "); !errors.Is(err, ErrInvalidLegend) {
		t.Errorf("got %v, want ErrInvalidLegend", err)
	}
	if err := m.SetLegend(l.Name(), "  Roads "); err != nil || l.Legend() != "Roads" {
		t.Errorf("got legend %q, err %v", l.Legend(), err)
	}

	if err := m.RemoveLayer(l.Name()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Layer(l.Name()); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("got %v, want ErrLayerNotFound", err)
	}
	if err := m.RemoveLayer("missing"); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("got %v, want ErrLayerNotFound", err)
	}
}

func TestReorder(t *testing.T) {
	m := newMap(t, reproject.WGS84)
	for _, name := range []string{"a", "b", "c"} {
		if err := m.AddLayer(geo.NewLayer(name, geo.LayerVector)); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.Reorder([]string{"a", "c", "b"}); err != nil {
		t.Fatal(err)
	}
	want := map[string]int{"a": 3, "c": 2, "b": 1}
	for name, z := range want {
		l, _ := m.Layer(name)
		if l.ZIndex() != z {
			t.Errorf("layer %s: got z %d, want %d", name, l.ZIndex(), z)
		}
	}

	if err := m.Reorder([]string{"a", "zzz"}); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("got %v, want ErrLayerNotFound", err)
	}
}

func TestEditableLayers(t *testing.T) {
	m := newMap(t, reproject.WGS84)

	add := func(name string, typ geo.LayerType, kind geo.Kind) {
		l := geo.NewLayer(name, typ)
		l.SetGeometryKind(kind)
		if err := m.AddLayer(l); err != nil {
			t.Fatal(err)
		}
	}
	add("points", geo.LayerVector, geo.KindMultiPoint)
	add(emphasis.LayerName, geo.LayerVector, geo.KindPolygon)
	add(DrawLayerName, geo.LayerVector, geo.KindPoint)
	add("Attributions", geo.LayerKML, geo.KindPoint)
	add("ortho", geo.LayerWMS, geo.KindPolygon)
	add("kmlroads", geo.LayerKML, geo.KindLineString)
	add("untyped", geo.LayerGeoJSON, "")

	got := m.EditableLayers()
	if len(got) != 2 {
		t.Fatalf("got %+v, want points and kmlroads", got)
	}
	if got[0].Name != "points" || got[0].Class != ClassPoint {
		t.Errorf("got %+v", got[0])
	}
	if got[1].Name != "kmlroads" || got[1].Class != ClassLine || got[1].Legend != "kmlroads" {
		t.Errorf("got %+v", got[1])
	}
}

func TestExtent(t *testing.T) {
	m := newMap(t, reproject.WGS84)
	l := geo.NewLayer("l", geo.LayerVector)
	_ = m.AddLayer(l)

	if _, err := m.Extent("l"); !errors.Is(err, ErrNoExtent) {
		t.Fatalf("got %v, want ErrNoExtent", err)
	}

	l.AddFeatures(geo.NewFeature("a", geo.Point{1, 1}), geo.NewFeature("b", geo.LineString{{-2, 0}, {4, 5}}))
	b, err := m.Extent("l")
	if err != nil {
		t.Fatal(err)
	}
	if b.Min[0] != -2 || b.Min[1] != 0 || b.Max[0] != 4 || b.Max[1] != 5 {
		t.Errorf("got %v", b)
	}
}

func TestImportFile(t *testing.T) {
	m := newMap(t, reproject.WGS84)

	res, err := m.ImportFile("stops.geojson", []byte(pointsGeoJSON))
	if err != nil {
		t.Fatal(err)
	}
	if res.Empty() || res.Layer.Name() != "stops" || res.Features != 2 {
		t.Fatalf("got %+v", res)
	}
	if res.Layer.Type() != geo.LayerGeoJSON {
		t.Errorf("got type %s", res.Layer.Type())
	}
	if res.Extent.Min[0] != 1 || res.Extent.Max[0] != 3 || res.Extent.Max[1] != 2 {
		t.Errorf("got extent %v", res.Extent)
	}

	again, err := m.ImportFile("stops.geojson", []byte(pointsGeoJSON))
	if err != nil {
		t.Fatal(err)
	}
	if again.Layer.Name() == "stops" {
		t.Error("second import reused the layer name")
	}

	empty, err := m.ImportFile("none.geojson", []byte(`{"type":"FeatureCollection","features":[]}`))
	if err != nil || !empty.Empty() || empty.Layer != nil {
		t.Errorf("got %+v, %v", empty, err)
	}

	if _, err := m.ImportFile("x.csv", []byte("a,b")); !errors.Is(err, convert.ErrUnsupportedFormat) {
		t.Errorf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestImportLandsInMapCRS(t *testing.T) {
	m := newMap(t, "EPSG:3857")

	res, err := m.ImportFile("stops.geojson", []byte(pointsGeoJSON))
	if err != nil {
		t.Fatal(err)
	}
	f, _ := res.Layer.Feature("b")
	p := f.Geometry.(geo.Point)
	// 3 degrees of longitude in web mercator meters.
	if math.Abs(p[0]-333958.47) > 0.1 {
		t.Errorf("got x %v", p[0])
	}

	b, err := m.ExportLayer("stops", convert.GeoJSON, false)
	if err != nil {
		t.Fatal(err)
	}
	back, err := convert.Import(b.Name, b.Data)
	if err != nil {
		t.Fatal(err)
	}
	q := back[1].Geometry.(geo.Point)
	if math.Abs(q[0]-3) > 1e-9 || math.Abs(q[1]-2) > 1e-9 {
		t.Errorf("export not in WGS84: %v", q)
	}
}

func TestExportUnknownLayer(t *testing.T) {
	m := newMap(t, reproject.WGS84)
	if _, err := m.ExportLayer("nope", convert.KML, false); !errors.Is(err, ErrLayerNotFound) {
		t.Errorf("got %v, want ErrLayerNotFound", err)
	}
}

func TestImportDuplicateIDs(t *testing.T) {
	m := newMap(t, reproject.WGS84)
	data := `{"type":"FeatureCollection","features":[
	 {"type":"Feature","id":1,"properties":{},"geometry":{"type":"Point","coordinates":[0,0]}},
	 {"type":"Feature","id":1,"properties":{},"geometry":{"type":"Point","coordinates":[1,1]}},
	 {"type":"Feature","id":"1_2","properties":{},"geometry":{"type":"Point","coordinates":[2,2]}},
	 {"type":"Feature","id":1,"properties":{},"geometry":{"type":"Point","coordinates":[3,3]}}
	]}`

	res, err := m.ImportFile("dups.geojson", []byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if res.Features != 4 || res.Layer.Len() != 4 {
		t.Fatalf("file has 4 features, layer holds %d", res.Layer.Len())
	}

	var ids []string
	for _, f := range res.Layer.Features() {
		ids = append(ids, f.ID)
	}
	want := []string{"1", "1_2", "1_2_2", "1_3"}
	for i, id := range want {
		if ids[i] != id {
			t.Errorf("got ids %v, want %v", ids, want)
			break
		}
	}
}

func TestEditableLayer(t *testing.T) {
	m := newMap(t, reproject.WGS84)
	for _, l := range []*geo.Layer{
		geo.NewLayer(emphasis.LayerName, geo.LayerVector),
		geo.NewLayer("ortho", geo.LayerWMS),
		geo.NewLayer("untyped", geo.LayerGeoJSON),
	} {
		if l.Name() != "untyped" {
			l.SetGeometryKind(geo.KindPolygon)
		}
		if err := m.AddLayer(l); err != nil {
			t.Fatal(err)
		}
	}
	roads, err := m.NewDrawingLayer(geo.KindLineString)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		err  error
	}{
		{roads.Name(), nil},
		{emphasis.LayerName, ErrNotEditable},
		{"ortho", ErrNotEditable},
		{"untyped", ErrNotEditable},
		{"missing", ErrLayerNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := m.EditableLayer(tt.name)
			if !errors.Is(err, tt.err) {
				t.Fatalf("got %v, want %v", err, tt.err)
			}
			if tt.err == nil && l != roads {
				t.Errorf("got layer %v", l)
			}
		})
	}

	if err := m.RemoveLayer(emphasis.LayerName); !errors.Is(err, ErrNotEditable) {
		t.Errorf("got %v, want ErrNotEditable", err)
	}
	if _, err := m.Layer(emphasis.LayerName); err != nil {
		t.Errorf("highlight layer removed: %v", err)
	}
}
