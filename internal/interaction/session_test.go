package interaction

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/guadaltel/vectors/internal/emphasis"
	"github.com/guadaltel/vectors/internal/geo"
	"github.com/guadaltel/vectors/internal/style"
)

type recorder struct {
	calls []string
}

func (r *recorder) AddDrawInteraction(l Layer) { r.calls = append(r.calls, "draw:"+l.Name()) }
func (r *recorder) RemoveDrawInteraction()     { r.calls = append(r.calls, "-draw") }
func (r *recorder) ActivateSelection(l Layer)  { r.calls = append(r.calls, "select:"+l.Name()) }
func (r *recorder) RemoveEditInteraction()     { r.calls = append(r.calls, "-edit") }
func (r *recorder) RemoveSelectInteraction()   { r.calls = append(r.calls, "-select") }

func (r *recorder) has(call string) bool {
	for _, c := range r.calls {
		if c == call {
			return true
		}
	}
	return false
}

var fixedNow = time.UnixMilli(1700000000000)

func newSession(h Handles) *Session {
	params := style.Params{Color: "#71a7d3", Thickness: 6, Dash: style.Continuous}
	return NewSession(h, emphasis.New(), params, WithClock(func() time.Time { return fixedNow }))
}

func pointFeature(id string, x, y float64) *geo.Feature {
	return geo.NewFeature(id, geo.Point{x, y})
}

func TestStartDrawToggle(t *testing.T) {
	h := &recorder{}
	s := newSession(h)
	l := geo.NewLayer("roads", geo.LayerVector)

	if err := s.StartDraw(l); err != nil {
		t.Fatalf("StartDraw: %v", err)
	}
	if s.Mode() != Drawing || s.Layer().Name() != "roads" {
		t.Fatalf("got mode %s layer %v, want drawing on roads", s.Mode(), s.Layer())
	}
	if !h.has("draw:roads") {
		t.Errorf("draw interaction not added: %v", h.calls)
	}

	if err := s.StartDraw(l); err != nil {
		t.Fatalf("second StartDraw: %v", err)
	}
	if s.Mode() != Idle || s.Layer() != nil {
		t.Errorf("got mode %s, want idle after toggle", s.Mode())
	}
}

func TestDrawThenEditPreempts(t *testing.T) {
	h := &recorder{}
	s := newSession(h)
	drawn := geo.NewLayer("drawn", geo.LayerVector)
	edited := geo.NewLayer("edited", geo.LayerVector)
	edited.AddFeatures(pointFeature("p1", 1, 2))

	if err := s.StartDraw(drawn); err != nil {
		t.Fatal(err)
	}
	h.calls = nil
	if err := s.StartEdit(edited); err != nil {
		t.Fatalf("StartEdit: %v", err)
	}
	if s.Mode() != Editing || s.Layer().Name() != "edited" {
		t.Fatalf("got mode %s, want editing on edited", s.Mode())
	}
	released := slices.Index(h.calls, "-draw")
	selected := slices.Index(h.calls, "select:edited")
	if released < 0 || selected < 0 || released > selected {
		t.Errorf("drawing not released before selection: %v", h.calls)
	}
}

func TestStartEditEmptyLayer(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Session)
		want  Mode
	}{
		{name: "from idle", setup: func(*Session) {}, want: Idle},
		{
			name: "from drawing",
			setup: func(s *Session) {
				_ = s.StartDraw(geo.NewLayer("other", geo.LayerVector))
			},
			want: Drawing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(&recorder{})
			tt.setup(s)

			err := s.StartEdit(geo.NewLayer("empty", geo.LayerVector))
			if !errors.Is(err, ErrEmptyLayer) {
				t.Fatalf("got %v, want ErrEmptyLayer", err)
			}
			if s.Mode() != tt.want {
				t.Errorf("got mode %s, want %s", s.Mode(), tt.want)
			}
		})
	}
}

func TestStartEditToggle(t *testing.T) {
	s := newSession(&recorder{})
	l := geo.NewLayer("edit", geo.LayerVector)
	l.AddFeatures(pointFeature("p1", 0, 0))

	if err := s.StartEdit(l); err != nil {
		t.Fatal(err)
	}
	if err := s.FeatureSelected(l.Features()[0]); err != nil {
		t.Fatal(err)
	}
	if err := s.StartEdit(l); err != nil {
		t.Fatal(err)
	}
	if s.Mode() != Idle || s.Feature() != nil || s.Emphasis().Artifact() != nil {
		t.Errorf("toggle should reset everything, got mode %s feature %v", s.Mode(), s.Feature())
	}
}

func TestFeatureCreated(t *testing.T) {
	s := newSession(&recorder{})
	l := geo.NewLayer("temp_1", geo.LayerVector)
	if err := s.StartDraw(l); err != nil {
		t.Fatal(err)
	}

	f := &geo.Feature{Geometry: geo.LineString{{0, 0}, {10, 10}}}
	if err := s.FeatureCreated(f); err != nil {
		t.Fatalf("FeatureCreated: %v", err)
	}

	if f.ID != "temp_1.1700000000000" {
		t.Errorf("got id %q", f.ID)
	}
	if _, ok := l.Feature(f.ID); !ok {
		t.Error("feature not added to layer")
	}
	ls, ok := f.Style.(geo.LineStyle)
	if !ok || ls.Color != "#71a7d3" || ls.Width != 6 {
		t.Errorf("unexpected style %#v", f.Style)
	}
	if s.Feature() != f || s.Kind() != geo.KindLineString || s.Mode() != Drawing {
		t.Errorf("active feature not tracked: mode %s kind %s", s.Mode(), s.Kind())
	}
	if s.Emphasis().Artifact() == nil {
		t.Error("highlight missing")
	}

	second := &geo.Feature{Geometry: geo.Point{1, 1}}
	if err := s.FeatureCreated(second); err != nil {
		t.Fatal(err)
	}
	if second.ID == f.ID {
		t.Errorf("identifier reused: %q", second.ID)
	}
	if l.Len() != 2 {
		t.Errorf("got %d features, want 2", l.Len())
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		call func(*Session) error
	}{
		{"create while idle", func(s *Session) error {
			return s.FeatureCreated(pointFeature("", 0, 0))
		}},
		{"select while idle", func(s *Session) error {
			return s.FeatureSelected(pointFeature("x", 0, 0))
		}},
		{"modify while idle", func(s *Session) error { return s.FeatureModified() }},
		{"delete without feature", func(s *Session) error { return s.DeleteActiveFeature() }},
		{"draw nil layer", func(s *Session) error { return s.StartDraw(nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(&recorder{})
			if err := tt.call(s); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("got %v, want ErrInvalidTransition", err)
			}
			if s.Mode() != Idle {
				t.Errorf("mode changed to %s", s.Mode())
			}
		})
	}
}

func TestSelectReadsStyleBack(t *testing.T) {
	s := newSession(&recorder{})
	l := geo.NewLayer("lines", geo.LayerVector)
	f := geo.NewFeature("l1", geo.LineString{{0, 0}, {1, 1}})
	f.Style = geo.LineStyle{Color: "#000000", Width: 3, DashPattern: []float64{10, 15}}
	l.AddFeatures(f)

	if err := s.StartEdit(l); err != nil {
		t.Fatal(err)
	}
	if err := s.FeatureSelected(f); err != nil {
		t.Fatal(err)
	}

	p := s.Params()
	if p.Color != "#000000" || p.Thickness != 3 || p.Dash != style.Dashed {
		t.Errorf("got params %+v", p)
	}
	if s.Mode() != Selecting {
		t.Errorf("got mode %s, want selecting", s.Mode())
	}
}

func TestSelectForeignFeature(t *testing.T) {
	s := newSession(&recorder{})
	l := geo.NewLayer("a", geo.LayerVector)
	l.AddFeatures(pointFeature("p1", 0, 0))
	if err := s.StartEdit(l); err != nil {
		t.Fatal(err)
	}

	err := s.FeatureSelected(pointFeature("p1", 5, 5))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}
	if s.Mode() != Editing || s.Feature() != nil {
		t.Errorf("state changed: mode %s", s.Mode())
	}
}

func TestFeatureModifiedRestyles(t *testing.T) {
	s := newSession(&recorder{})
	l := geo.NewLayer("polys", geo.LayerVector)
	f := geo.NewFeature("p", geo.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	l.AddFeatures(f)

	if err := s.StartEdit(l); err != nil {
		t.Fatal(err)
	}
	if err := s.FeatureSelected(f); err != nil {
		t.Fatal(err)
	}
	f.Style = nil
	f.Geometry = geo.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 0}}}

	if err := s.FeatureModified(); err != nil {
		t.Fatal(err)
	}
	ps, ok := f.Style.(geo.PolygonStyle)
	if !ok || ps.FillOpacity != style.PolygonFillOpacity {
		t.Errorf("style not reapplied: %#v", f.Style)
	}
	b, _ := geo.Bound(s.Emphasis().Artifact().Geometry)
	if b.Max[0] != 4 {
		t.Errorf("highlight not refreshed, bound %v", b)
	}
}

func TestDeleteActiveFeature(t *testing.T) {
	t.Run("last feature stops editing", func(t *testing.T) {
		s := newSession(&recorder{})
		l := geo.NewLayer("one", geo.LayerVector)
		f := pointFeature("p", 0, 0)
		l.AddFeatures(f)
		_ = s.StartEdit(l)
		_ = s.FeatureSelected(f)

		if err := s.DeleteActiveFeature(); err != nil {
			t.Fatal(err)
		}
		if l.Len() != 0 || s.Mode() != Idle || s.Feature() != nil {
			t.Errorf("got mode %s len %d", s.Mode(), l.Len())
		}
		if s.Emphasis().Layer().Len() != 0 {
			t.Error("highlight left behind")
		}
	})

	t.Run("remaining features keep editing", func(t *testing.T) {
		h := &recorder{}
		s := newSession(h)
		l := geo.NewLayer("two", geo.LayerVector)
		f := pointFeature("p1", 0, 0)
		l.AddFeatures(f, pointFeature("p2", 1, 1))
		_ = s.StartEdit(l)
		_ = s.FeatureSelected(f)
		h.calls = nil

		if err := s.DeleteActiveFeature(); err != nil {
			t.Fatal(err)
		}
		if s.Mode() != Editing || s.Layer() == nil || l.Len() != 1 {
			t.Errorf("got mode %s len %d", s.Mode(), l.Len())
		}
		if !h.has("select:two") {
			t.Errorf("selection not reactivated: %v", h.calls)
		}
	})

	t.Run("while drawing", func(t *testing.T) {
		s := newSession(&recorder{})
		l := geo.NewLayer("d", geo.LayerVector)
		_ = s.StartDraw(l)
		_ = s.FeatureCreated(&geo.Feature{Geometry: geo.Point{0, 0}})

		if err := s.DeleteActiveFeature(); err != nil {
			t.Fatal(err)
		}
		if s.Mode() != Drawing || l.Len() != 0 || s.Feature() != nil {
			t.Errorf("got mode %s len %d", s.Mode(), l.Len())
		}
	})
}

func TestStyleChangesRestyleActiveFeature(t *testing.T) {
	s := newSession(&recorder{})
	l := geo.NewLayer("d", geo.LayerVector)
	_ = s.StartDraw(l)
	f := &geo.Feature{Geometry: geo.LineString{{0, 0}, {1, 1}}}
	if err := s.FeatureCreated(f); err != nil {
		t.Fatal(err)
	}

	if err := s.SelectDash(style.Dotted); err != nil {
		t.Fatal(err)
	}
	if got := f.Style.(geo.LineStyle).DashPattern; len(got) != 2 || got[0] != 1 {
		t.Errorf("got dash %v, want dotted", got)
	}

	if err := s.SelectDash(style.Dotted); err != nil {
		t.Fatal(err)
	}
	if got := f.Style.(geo.LineStyle).DashPattern; got != nil {
		t.Errorf("got dash %v, want continuous after toggle", got)
	}

	if err := s.SetParams("#ff0000", 2); err != nil {
		t.Fatal(err)
	}
	if ls := f.Style.(geo.LineStyle); ls.Color != "#ff0000" || ls.Width != 2 {
		t.Errorf("got %#v", ls)
	}
}

func TestReset(t *testing.T) {
	h := &recorder{}
	s := newSession(h)
	l := geo.NewLayer("r", geo.LayerVector)
	f := pointFeature("p", 0, 0)
	l.AddFeatures(f)
	_ = s.StartEdit(l)
	_ = s.FeatureSelected(f)
	h.calls = nil

	s.Reset()
	if s.Mode() != Idle || s.Feature() != nil || s.Kind() != "" || s.Emphasis().Artifact() != nil {
		t.Errorf("reset left state behind: mode %s", s.Mode())
	}
	for _, c := range []string{"-draw", "-edit", "-select"} {
		if !h.has(c) {
			t.Errorf("handle %s not released: %v", c, h.calls)
		}
	}
}
