// Package style derives feature styles from the current drawing parameters.
package style

import (
	"fmt"
	"slices"

	"github.com/guadaltel/vectors/internal/geo"
)

const (
	// PolygonFillOpacity is the fixed opacity of polygon fills.
	PolygonFillOpacity = 0.2
	// DefaultThickness is used when a style carries no usable width.
	DefaultThickness = 6
)

// pointStroke outlines every drawn point.
var pointStroke = geo.Stroke{Color: "white", Width: 2}

// Dash is a line dash preset.
type Dash string

// Dash presets.
const (
	Continuous Dash = "continuous"
	Dotted     Dash = "dotted"
	Dashed     Dash = "dashed"
	DashDot    Dash = "dash-dot"
)

var patterns = map[Dash][]float64{
	Continuous: nil,
	Dotted:     {1, 15},
	Dashed:     {10, 15},
	DashDot:    {1, 15, 20, 15},
}

// ParseDash resolves a preset name.
func ParseDash(s string) (Dash, error) {
	d := Dash(s)
	if _, ok := patterns[d]; !ok {
		return "", fmt.Errorf("unknown dash preset %q", s)
	}
	return d, nil
}

// Pattern returns the numeric dash pattern, nil for Continuous.
func (d Dash) Pattern() []float64 {
	return slices.Clone(patterns[d])
}

// DashOf classifies a dash array back into a preset.
func DashOf(pattern []float64) Dash {
	switch {
	case len(pattern) > 2:
		return DashDot
	case len(pattern) > 0 && pattern[0] > 2:
		return Dashed
	case len(pattern) > 0 && pattern[0] < 2:
		return Dotted
	}
	return Continuous
}

// Params are the user-selected drawing parameters.
type Params struct {
	Color     string  `json:"color" yaml:"color"`
	Dash      Dash    `json:"dash,omitempty" yaml:"dash,omitempty"`
	Thickness float64 `json:"thickness" yaml:"thickness"`
}

// SelectDash makes d the active preset. Selecting the active preset again
// reverts to Continuous.
func (p *Params) SelectDash(d Dash) {
	if d == p.Dash || d == Continuous {
		p.Dash = Continuous
		return
	}
	p.Dash = d
}

// Derive maps a geometry kind and parameters to a style.
func Derive(kind geo.Kind, p Params) (geo.Style, error) {
	switch kind {
	case geo.KindPoint, geo.KindMultiPoint:
		return geo.PointStyle{
			Radius:    p.Thickness,
			FillColor: p.Color,
			Stroke:    pointStroke,
		}, nil
	case geo.KindLineString, geo.KindMultiLineString:
		return geo.LineStyle{
			Color:       p.Color,
			Width:       p.Thickness,
			DashPattern: p.Dash.Pattern(),
		}, nil
	case geo.KindPolygon, geo.KindMultiPolygon:
		return geo.PolygonStyle{
			FillColor:   p.Color,
			FillOpacity: PolygonFillOpacity,
			StrokeColor: p.Color,
			StrokeWidth: p.Thickness,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", geo.ErrUnknownGeometryKind, kind)
}

// Apply derives the style for f's geometry and sets it on f.
func Apply(f *geo.Feature, p Params) error {
	s, err := Derive(f.Kind(), p)
	if err != nil {
		return err
	}
	f.Style = s
	return nil
}

// ParamsOf reads parameters back from an existing style. Fields the style
// does not carry keep their value from base.
func ParamsOf(s geo.Style, base Params) Params {
	p := base
	switch v := s.(type) {
	case geo.PointStyle:
		p.Color = v.FillColor
		p.Thickness = orDefault(v.Radius)
	case geo.LineStyle:
		p.Color = v.Color
		p.Thickness = orDefault(v.Width)
		p.Dash = DashOf(v.DashPattern)
	case geo.PolygonStyle:
		p.Color = v.FillColor
		p.Thickness = orDefault(v.StrokeWidth)
	}
	return p
}

func orDefault(v float64) float64 {
	if v <= 0 {
		return DefaultThickness
	}
	return v
}
