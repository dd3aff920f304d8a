package geo

import "maps"

// Feature is a geometry with an identifier, an optional style and an opaque
// property bag that conversions pass through untouched.
type Feature struct {
	Geometry   Geometry
	Style      Style
	Properties map[string]any
	ID         string
}

// NewFeature returns a feature with an empty property bag.
func NewFeature(id string, g Geometry) *Feature {
	return &Feature{ID: id, Geometry: g, Properties: map[string]any{}}
}

// Kind returns the kind of the feature's geometry, or "" when it has none.
func (f *Feature) Kind() Kind {
	if f == nil || f.Geometry == nil {
		return ""
	}
	return f.Geometry.Kind()
}

// Clone deep-copies the geometry and shallow-copies the property bag.
func (f *Feature) Clone() *Feature {
	c := &Feature{
		ID:         f.ID,
		Style:      f.Style,
		Properties: maps.Clone(f.Properties),
	}
	if f.Geometry != nil {
		c.Geometry = Clone(f.Geometry)
	}
	if c.Properties == nil {
		c.Properties = map[string]any{}
	}
	return c
}

// CloneFeatures clones every feature of the slice.
func CloneFeatures(fs []*Feature) []*Feature {
	out := make([]*Feature, len(fs))
	for i, f := range fs {
		out[i] = f.Clone()
	}
	return out
}
