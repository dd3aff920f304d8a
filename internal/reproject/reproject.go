// Package reproject rebuilds geometry coordinate trees through a
// coordinate transform, preserving their exact shape.
package reproject

import (
	"fmt"

	"github.com/guadaltel/vectors/internal/geo"

	"github.com/ctessum/geom/proj"
)

// Identity leaves coordinates unchanged.
func Identity(x, y float64) (float64, float64, error) {
	return x, y, nil
}

// Geometry returns a copy of g with every coordinate pair passed through t.
// Values after the pair (elevation, NaN markers) are carried over as is.
// The input is never modified.
func Geometry(g geo.Geometry, t proj.Transformer) (geo.Geometry, error) {
	switch v := g.(type) {
	case geo.Point:
		c, err := coord(geo.Coord(v), t)
		if err != nil {
			return nil, err
		}
		return geo.Point(c), nil
	case geo.MultiPoint:
		cs, err := coords(v, t)
		if err != nil {
			return nil, err
		}
		return geo.MultiPoint(cs), nil
	case geo.LineString:
		cs, err := coords(v, t)
		if err != nil {
			return nil, err
		}
		return geo.LineString(cs), nil
	case geo.MultiLineString:
		out := make(geo.MultiLineString, len(v))
		for i, l := range v {
			cs, err := coords(l, t)
			if err != nil {
				return nil, err
			}
			out[i] = cs
		}
		return out, nil
	case geo.Polygon:
		return polygon(v, t)
	case geo.MultiPolygon:
		out := make(geo.MultiPolygon, len(v))
		for i, p := range v {
			pp, err := polygon(p, t)
			if err != nil {
				return nil, err
			}
			out[i] = pp
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: nil geometry", geo.ErrMalformedGeometry)
	}
	return nil, fmt.Errorf("%w: %T", geo.ErrUnknownGeometryKind, g)
}

// Coordinates reprojects a loosely typed coordinate tree of the given kind
// and returns the rebuilt tree. A tree whose nesting does not match kind
// fails with geo.ErrMalformedGeometry.
func Coordinates(kind geo.Kind, tree any, t proj.Transformer) (any, error) {
	g, err := geo.FromCoordinates(kind, tree)
	if err != nil {
		return nil, err
	}
	out, err := Geometry(g, t)
	if err != nil {
		return nil, err
	}
	return geo.ToCoordinates(out), nil
}

// Feature returns a clone of f whose geometry has been reprojected.
func Feature(f *geo.Feature, t proj.Transformer) (*geo.Feature, error) {
	out := f.Clone()
	if f.Geometry == nil {
		return out, nil
	}
	g, err := Geometry(f.Geometry, t)
	if err != nil {
		return nil, fmt.Errorf("feature %q: %w", f.ID, err)
	}
	out.Geometry = g
	return out, nil
}

// Features reprojects every feature, returning clones.
func Features(fs []*geo.Feature, t proj.Transformer) ([]*geo.Feature, error) {
	out := make([]*geo.Feature, len(fs))
	for i, f := range fs {
		rf, err := Feature(f, t)
		if err != nil {
			return nil, err
		}
		out[i] = rf
	}
	return out, nil
}

func polygon(p geo.Polygon, t proj.Transformer) (geo.Polygon, error) {
	out := make(geo.Polygon, len(p))
	for i, r := range p {
		cs, err := coords(r, t)
		if err != nil {
			return nil, err
		}
		out[i] = cs
	}
	return out, nil
}

func coords(cs []geo.Coord, t proj.Transformer) ([]geo.Coord, error) {
	out := make([]geo.Coord, len(cs))
	for i, c := range cs {
		tc, err := coord(c, t)
		if err != nil {
			return nil, err
		}
		out[i] = tc
	}
	return out, nil
}

func coord(c geo.Coord, t proj.Transformer) (geo.Coord, error) {
	if len(c) < 2 {
		return nil, fmt.Errorf("%w: coordinate with %d values", geo.ErrMalformedGeometry, len(c))
	}
	x, y, err := t(c[0], c[1])
	if err != nil {
		return nil, err
	}
	out := make(geo.Coord, len(c))
	out[0], out[1] = x, y
	copy(out[2:], c[2:])
	return out, nil
}
