package geo

import (
	"fmt"
	"math"
)

// FromCoordinates builds a geometry from a loosely typed coordinate tree,
// as produced by decoding JSON into interface{} values. The tree's nesting
// must match the kind exactly. A null trailing value decodes to NaN.
func FromCoordinates(kind Kind, tree any) (Geometry, error) {
	switch kind {
	case KindPoint:
		c, err := leaf(tree)
		if err != nil {
			return nil, err
		}
		return Point(c), nil
	case KindMultiPoint:
		cs, err := leaves(tree)
		if err != nil {
			return nil, err
		}
		return MultiPoint(cs), nil
	case KindLineString:
		cs, err := leaves(tree)
		if err != nil {
			return nil, err
		}
		return LineString(cs), nil
	case KindMultiLineString:
		items, err := list(tree)
		if err != nil {
			return nil, err
		}
		out := make(MultiLineString, len(items))
		for i, item := range items {
			cs, err := leaves(item)
			if err != nil {
				return nil, err
			}
			out[i] = cs
		}
		return out, nil
	case KindPolygon:
		return polygon(tree)
	case KindMultiPolygon:
		items, err := list(tree)
		if err != nil {
			return nil, err
		}
		out := make(MultiPolygon, len(items))
		for i, item := range items {
			p, err := polygon(item)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownGeometryKind, kind)
}

// ToCoordinates returns the geometry as a plain nested slice tree, the
// inverse of FromCoordinates.
func ToCoordinates(g Geometry) any {
	switch t := g.(type) {
	case Point:
		return []float64(t)
	case MultiPoint:
		return coordsTree(t)
	case LineString:
		return coordsTree(t)
	case MultiLineString:
		out := make([][][]float64, len(t))
		for i, l := range t {
			out[i] = coordsTree(l)
		}
		return out
	case Polygon:
		return polygonTree(t)
	case MultiPolygon:
		out := make([][][][]float64, len(t))
		for i, p := range t {
			out[i] = polygonTree(p)
		}
		return out
	}
	return nil
}

func coordsTree(cs []Coord) [][]float64 {
	out := make([][]float64, len(cs))
	for i, c := range cs {
		out[i] = c
	}
	return out
}

func polygonTree(p Polygon) [][][]float64 {
	out := make([][][]float64, len(p))
	for i, r := range p {
		out[i] = coordsTree(r)
	}
	return out
}

func polygon(tree any) (Polygon, error) {
	items, err := list(tree)
	if err != nil {
		return nil, err
	}
	out := make(Polygon, len(items))
	for i, item := range items {
		cs, err := leaves(item)
		if err != nil {
			return nil, err
		}
		out[i] = cs
	}
	return out, nil
}

func list(tree any) ([]any, error) {
	switch t := tree.(type) {
	case []any:
		return t, nil
	case nil:
		return nil, fmt.Errorf("%w: missing coordinates", ErrMalformedGeometry)
	}
	return nil, fmt.Errorf("%w: expected list, got %T", ErrMalformedGeometry, tree)
}

func leaves(tree any) ([]Coord, error) {
	items, err := list(tree)
	if err != nil {
		return nil, err
	}
	out := make([]Coord, len(items))
	for i, item := range items {
		c, err := leaf(item)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func leaf(tree any) (Coord, error) {
	items, err := list(tree)
	if err != nil {
		return nil, err
	}
	if len(items) < 2 {
		return nil, fmt.Errorf("%w: coordinate with %d values", ErrMalformedGeometry, len(items))
	}

	c := make(Coord, len(items))
	for i, v := range items {
		switch n := v.(type) {
		case float64:
			c[i] = n
		case int:
			c[i] = float64(n)
		case nil:
			if i < 2 {
				return nil, fmt.Errorf("%w: null ordinate", ErrMalformedGeometry)
			}
			c[i] = math.NaN()
		default:
			return nil, fmt.Errorf("%w: expected number, got %T", ErrMalformedGeometry, v)
		}
	}
	return c, nil
}
