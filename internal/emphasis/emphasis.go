// Package emphasis keeps the single highlight drawn around the selected
// feature.
package emphasis

import (
	"fmt"

	"github.com/guadaltel/vectors/internal/geo"
)

// LayerName is the name of the highlight layer.
const LayerName = "selectLayer"

const pointRadius = 20

var highlight = geo.Stroke{Color: "#FF0000", Width: 2}

// Engine owns the highlight layer. The layer holds at most one feature.
type Engine struct {
	layer    *geo.Layer
	artifact *geo.Feature
}

// New returns an engine drawing on a fresh highlight layer.
func New() *Engine {
	return &Engine{layer: geo.NewLayer(LayerName, geo.LayerVector)}
}

// Layer returns the highlight layer.
func (e *Engine) Layer() *geo.Layer { return e.layer }

// Artifact returns the current highlight, or nil.
func (e *Engine) Artifact() *geo.Feature { return e.artifact }

// Compute replaces the highlight with one for f. Points get an enlarged
// outlined marker; every other kind gets the outline of its bounding box.
// A nil feature, or one without coordinates, just clears the highlight.
func (e *Engine) Compute(f *geo.Feature) (*geo.Feature, error) {
	e.Clear()
	if f == nil || f.Geometry == nil {
		return nil, nil
	}

	var artifact *geo.Feature
	switch f.Kind() {
	case geo.KindPoint, geo.KindMultiPoint:
		artifact = geo.NewFeature(f.ID+".emphasis", geo.Clone(f.Geometry))
		artifact.Style = geo.PointStyle{Radius: pointRadius, Stroke: highlight}
	case geo.KindLineString, geo.KindMultiLineString, geo.KindPolygon, geo.KindMultiPolygon:
		b, ok := geo.Bound(f.Geometry)
		if !ok {
			return nil, nil
		}
		ring := make(geo.Ring, 0, 5)
		for _, p := range b.ToRing() {
			ring = append(ring, geo.Coord{p[0], p[1]})
		}
		artifact = geo.NewFeature(f.ID+".emphasis", geo.Polygon{ring})
		artifact.Style = geo.LineStyle{Color: highlight.Color, Width: highlight.Width}
	default:
		return nil, fmt.Errorf("%w: %q", geo.ErrUnknownGeometryKind, f.Kind())
	}

	e.layer.AddFeatures(artifact)
	e.artifact = artifact
	return artifact, nil
}

// Clear removes the highlight.
func (e *Engine) Clear() {
	e.layer.Clear()
	e.artifact = nil
}
