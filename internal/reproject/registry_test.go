package reproject

import (
	"errors"
	"math"
	"testing"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", WGS84},
		{"wgs84", WGS84},
		{"CRS:84", WGS84},
		{"urn:ogc:def:crs:EPSG::4326", WGS84},
		{" epsg:3857 ", "EPSG:3857"},
		{"EPSG:25830", "EPSG:25830"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKnown(t *testing.T) {
	r := NewRegistry()
	for _, code := range []string{"EPSG:4326", "EPSG:4258", "EPSG:3857", "EPSG:900913", "EPSG:25830", "crs:84"} {
		if !r.Known(code) {
			t.Errorf("%s not known", code)
		}
	}
	if r.Known("EPSG:1") {
		t.Error("EPSG:1 known")
	}
	if _, err := r.ToWGS84("EPSG:1"); !errors.Is(err, ErrUnknownCRS) {
		t.Errorf("got %v, want ErrUnknownCRS", err)
	}
}

func TestMercator(t *testing.T) {
	r := NewRegistry()
	fwd, err := r.FromWGS84("EPSG:3857")
	if err != nil {
		t.Fatal(err)
	}
	x, y, err := fwd(3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !near(x, 333958.47, 0.01) || !near(y, 0, 1e-6) {
		t.Errorf("got %v, %v", x, y)
	}

	back, err := r.ToWGS84("EPSG:3857")
	if err != nil {
		t.Fatal(err)
	}
	lon, lat, err := back(-412000, 4926000)
	if err != nil {
		t.Fatal(err)
	}
	x, y, _ = fwd(lon, lat)
	if !near(x, -412000, 1e-6) || !near(y, 4926000, 1e-6) {
		t.Errorf("round trip got %v, %v", x, y)
	}
}

func TestUTM(t *testing.T) {
	r := NewRegistry()
	fwd, err := r.FromWGS84("EPSG:25830")
	if err != nil {
		t.Fatal(err)
	}
	// On the zone's central meridian.
	x, y, err := fwd(-3, 40)
	if err != nil {
		t.Fatal(err)
	}
	if !near(x, 500000, 0.01) || !near(y, 4427757.2, 2) {
		t.Errorf("got %v, %v", x, y)
	}

	back, err := r.ToWGS84("EPSG:25830")
	if err != nil {
		t.Fatal(err)
	}
	lon, lat, err := back(x, y)
	if err != nil {
		t.Fatal(err)
	}
	if !near(lon, -3, 1e-6) || !near(lat, 40, 1e-6) {
		t.Errorf("round trip got %v, %v", lon, lat)
	}
}

func TestTransformerBetweenProjected(t *testing.T) {
	r := NewRegistry()
	tr, err := r.Transformer("EPSG:3857", "EPSG:25830")
	if err != nil {
		t.Fatal(err)
	}
	fwd, _ := r.FromWGS84("EPSG:3857")
	mx, my, _ := fwd(-3, 40)
	x, _, err := tr(mx, my)
	if err != nil {
		t.Fatal(err)
	}
	if !near(x, 500000, 0.01) {
		t.Errorf("got x %v", x)
	}

	same, err := r.Transformer("epsg:3857", "EPSG:3857")
	if err != nil {
		t.Fatal(err)
	}
	if x, y, _ := same(1, 2); x != 1 || y != 2 {
		t.Errorf("same CRS moved the point to %v, %v", x, y)
	}
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("epsg:32632", "+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs"); err != nil {
		t.Fatal(err)
	}
	fwd, err := r.FromWGS84("EPSG:32632")
	if err != nil {
		t.Fatal(err)
	}
	if x, _, err := fwd(9, 45); err != nil || !near(x, 500000, 0.01) {
		t.Errorf("got x %v, err %v", x, err)
	}
}
