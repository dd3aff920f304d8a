package geo

import (
	"fmt"
	"slices"

	"github.com/paulmach/orb"
)

// LayerType tells where a layer's features came from.
type LayerType string

// Layer types known to the map.
const (
	LayerVector  LayerType = "Vector"
	LayerGeoJSON LayerType = "GeoJSON"
	LayerKML     LayerType = "KML"
	LayerWFS     LayerType = "WFS"
	LayerWMS     LayerType = "WMS"
)

// Layer is an ordered set of features keyed by identifier, plus display
// state. Layers are owned by the map.
type Layer struct {
	features map[string]*Feature
	name     string
	legend   string
	typ      LayerType
	geometry Kind
	order    []string
	zIndex   int
	seq      int
	visible  bool
}

// NewLayer creates an empty visible layer whose legend is its name.
func NewLayer(name string, typ LayerType) *Layer {
	return &Layer{
		features: make(map[string]*Feature),
		name:     name,
		legend:   name,
		typ:      typ,
		visible:  true,
	}
}

// Name returns the layer's unique name.
func (l *Layer) Name() string { return l.name }

// Type returns the layer's type.
func (l *Layer) Type() LayerType { return l.typ }

// Legend returns the display name.
func (l *Layer) Legend() string { return l.legend }

// SetLegend sets the display name.
func (l *Layer) SetLegend(legend string) { l.legend = legend }

// Visible reports the visibility flag.
func (l *Layer) Visible() bool { return l.visible }

// SetVisible sets the visibility flag.
func (l *Layer) SetVisible(v bool) { l.visible = v }

// ZIndex returns the stacking order.
func (l *Layer) ZIndex() int { return l.zIndex }

// SetZIndex sets the stacking order.
func (l *Layer) SetZIndex(z int) { l.zIndex = z }

// SetGeometryKind declares the kind of geometry drawn on this layer.
func (l *Layer) SetGeometryKind(k Kind) { l.geometry = k }

// GeometryKind returns the declared kind, falling back to the kind of the
// first feature.
func (l *Layer) GeometryKind() Kind {
	if l.geometry != "" {
		return l.geometry
	}
	for _, id := range l.order {
		if k := l.features[id].Kind(); k != "" {
			return k
		}
	}
	return ""
}

// Len returns the number of features.
func (l *Layer) Len() int { return len(l.order) }

// Features returns the features in insertion order.
func (l *Layer) Features() []*Feature {
	out := make([]*Feature, len(l.order))
	for i, id := range l.order {
		out[i] = l.features[id]
	}
	return out
}

// Feature looks a feature up by identifier.
func (l *Layer) Feature(id string) (*Feature, bool) {
	f, ok := l.features[id]
	return f, ok
}

// AddFeatures appends features. A feature without identifier gets one
// derived from the layer name. A feature whose identifier is already
// present replaces the previous one in place.
func (l *Layer) AddFeatures(fs ...*Feature) {
	for _, f := range fs {
		if f == nil {
			continue
		}
		if f.ID == "" {
			f.ID = l.nextID()
		}
		if _, ok := l.features[f.ID]; !ok {
			l.order = append(l.order, f.ID)
		}
		l.features[f.ID] = f
	}
}

// RemoveFeatures removes the given features. Features not in the layer are
// ignored.
func (l *Layer) RemoveFeatures(fs ...*Feature) {
	for _, f := range fs {
		if f == nil {
			continue
		}
		if cur, ok := l.features[f.ID]; !ok || cur != f {
			continue
		}
		delete(l.features, f.ID)
		l.order = slices.DeleteFunc(l.order, func(id string) bool { return id == f.ID })
	}
}

// Clear removes every feature.
func (l *Layer) Clear() {
	l.features = make(map[string]*Feature)
	l.order = nil
}

// Extent returns the bounding box of all features. ok is false when the
// layer has no coordinates.
func (l *Layer) Extent() (b orb.Bound, ok bool) {
	for _, id := range l.order {
		fb, fok := Bound(l.features[id].Geometry)
		if !fok {
			continue
		}
		if !ok {
			b, ok = fb, true
			continue
		}
		b = b.Union(fb)
	}
	return b, ok
}

func (l *Layer) nextID() string {
	for {
		l.seq++
		id := fmt.Sprintf("%s.%d", l.name, l.seq)
		if _, taken := l.features[id]; !taken {
			return id
		}
	}
}

// Bound returns the bounding box of a geometry's coordinates.
func Bound(g Geometry) (b orb.Bound, ok bool) {
	if g == nil {
		return b, false
	}
	for _, c := range Coords(g) {
		p := orb.Point{c[0], c[1]}
		if !ok {
			b, ok = p.Bound(), true
			continue
		}
		b = b.Extend(p)
	}
	return b, ok
}
