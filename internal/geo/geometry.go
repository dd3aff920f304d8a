// Package geo holds the vector data model shared by every other package:
// geometries, features, styles and layers.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrMalformedGeometry reports a coordinate tree whose nesting does not
	// match its geometry kind, or a leaf that is not a numeric pair.
	ErrMalformedGeometry = errors.New("malformed geometry")

	// ErrUnknownGeometryKind reports a geometry type name outside the six
	// supported kinds.
	ErrUnknownGeometryKind = errors.New("unknown geometry kind")
)

// Kind names a geometry type using its GeoJSON spelling.
type Kind string

// Supported geometry kinds.
const (
	KindPoint           Kind = "Point"
	KindMultiPoint      Kind = "MultiPoint"
	KindLineString      Kind = "LineString"
	KindMultiLineString Kind = "MultiLineString"
	KindPolygon         Kind = "Polygon"
	KindMultiPolygon    Kind = "MultiPolygon"
)

// Kinds lists every supported kind.
var Kinds = []Kind{
	KindPoint, KindMultiPoint,
	KindLineString, KindMultiLineString,
	KindPolygon, KindMultiPolygon,
}

// ParseKind resolves a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGeometryKind, s)
}

// Depth returns the nesting depth of the kind's coordinate tree above the
// coordinate leaf: 0 for Point, 1 for MultiPoint and LineString, and so on.
func (k Kind) Depth() int {
	switch k {
	case KindPoint:
		return 0
	case KindMultiPoint, KindLineString:
		return 1
	case KindMultiLineString, KindPolygon:
		return 2
	case KindMultiPolygon:
		return 3
	}
	return -1
}

// IsMulti reports whether the kind is a list of simple geometries.
func (k Kind) IsMulti() bool {
	return k == KindMultiPoint || k == KindMultiLineString || k == KindMultiPolygon
}

// Base returns the simple kind a multi-geometry is made of. Simple kinds
// return themselves.
func (k Kind) Base() Kind {
	switch k {
	case KindMultiPoint:
		return KindPoint
	case KindMultiLineString:
		return KindLineString
	case KindMultiPolygon:
		return KindPolygon
	}
	return k
}

// Coord is a coordinate leaf: x, y and an optional trailing value such as
// elevation. A trailing NaN is produced by some drawing tools.
type Coord []float64

// X returns the first ordinate.
func (c Coord) X() float64 { return c[0] }

// Y returns the second ordinate.
func (c Coord) Y() float64 { return c[1] }

// HasNaNTail reports whether the coordinate carries a trailing NaN after
// its x, y pair.
func (c Coord) HasNaNTail() bool {
	return len(c) > 2 && math.IsNaN(c[len(c)-1])
}

// Clone returns a copy that shares no memory with c.
func (c Coord) Clone() Coord {
	return append(Coord(nil), c...)
}

// Geometry is implemented by the six geometry types below. Code handling a
// Geometry switches over the concrete types.
type Geometry interface {
	Kind() Kind
	isGeometry()
}

type (
	// Point is a single coordinate.
	Point Coord
	// MultiPoint is a list of coordinates.
	MultiPoint []Coord
	// LineString is an ordered list of coordinates.
	LineString []Coord
	// MultiLineString is a list of lines.
	MultiLineString []LineString
	// Ring is a closed sequence of coordinates bounding a polygon.
	Ring []Coord
	// Polygon is an outer ring followed by optional holes.
	Polygon []Ring
	// MultiPolygon is a list of polygons.
	MultiPolygon []Polygon
)

func (Point) Kind() Kind           { return KindPoint }
func (MultiPoint) Kind() Kind      { return KindMultiPoint }
func (LineString) Kind() Kind      { return KindLineString }
func (MultiLineString) Kind() Kind { return KindMultiLineString }
func (Polygon) Kind() Kind         { return KindPolygon }
func (MultiPolygon) Kind() Kind    { return KindMultiPolygon }

func (Point) isGeometry()           {}
func (MultiPoint) isGeometry()      {}
func (LineString) isGeometry()      {}
func (MultiLineString) isGeometry() {}
func (Polygon) isGeometry()         {}
func (MultiPolygon) isGeometry()    {}

// Parts splits a multi-geometry into its simple members. A simple geometry
// returns itself as the only part.
func Parts(g Geometry) []Geometry {
	switch t := g.(type) {
	case MultiPoint:
		parts := make([]Geometry, len(t))
		for i, c := range t {
			parts[i] = Point(c)
		}
		return parts
	case MultiLineString:
		parts := make([]Geometry, len(t))
		for i, l := range t {
			parts[i] = l
		}
		return parts
	case MultiPolygon:
		parts := make([]Geometry, len(t))
		for i, p := range t {
			parts[i] = p
		}
		return parts
	}
	return []Geometry{g}
}

// Coords returns every coordinate leaf of g in document order.
func Coords(g Geometry) []Coord {
	var out []Coord
	switch t := g.(type) {
	case Point:
		out = append(out, Coord(t))
	case MultiPoint:
		out = append(out, t...)
	case LineString:
		out = append(out, t...)
	case MultiLineString:
		for _, l := range t {
			out = append(out, l...)
		}
	case Polygon:
		for _, r := range t {
			out = append(out, r...)
		}
	case MultiPolygon:
		for _, p := range t {
			for _, r := range p {
				out = append(out, r...)
			}
		}
	}
	return out
}

// Clone deep-copies a geometry.
func Clone(g Geometry) Geometry {
	switch t := g.(type) {
	case Point:
		return Point(Coord(t).Clone())
	case MultiPoint:
		return MultiPoint(cloneCoords(t))
	case LineString:
		return LineString(cloneCoords(t))
	case MultiLineString:
		out := make(MultiLineString, len(t))
		for i, l := range t {
			out[i] = LineString(cloneCoords(l))
		}
		return out
	case Polygon:
		return clonePolygon(t)
	case MultiPolygon:
		out := make(MultiPolygon, len(t))
		for i, p := range t {
			out[i] = clonePolygon(p)
		}
		return out
	}
	return nil
}

func cloneCoords(cs []Coord) []Coord {
	out := make([]Coord, len(cs))
	for i, c := range cs {
		out[i] = c.Clone()
	}
	return out
}

func clonePolygon(p Polygon) Polygon {
	out := make(Polygon, len(p))
	for i, r := range p {
		out[i] = Ring(cloneCoords(r))
	}
	return out
}
