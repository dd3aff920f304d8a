// Package measure reports the coordinates, length or area of a feature.
package measure

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/guadaltel/vectors/internal/geo"
	"github.com/guadaltel/vectors/internal/reproject"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Quantity is a measurement in one unit.
type Quantity struct {
	Unit  string  `json:"unit"`
	Text  string  `json:"text"`
	Value float64 `json:"value"`
}

// Info describes a feature: point coordinates in the map CRS, line
// length or polygon area.
type Info struct {
	Kind        geo.Kind   `json:"kind"`
	Coordinates []float64  `json:"coordinates,omitempty"`
	Length      []Quantity `json:"length,omitempty"`
	Area        []Quantity `json:"area,omitempty"`
}

// Feature measures f, whose coordinates are in the map CRS. toWGS84 is
// used for geodesic length and area; nil means f already is in WGS84.
func Feature(f *geo.Feature, toWGS84 proj.Transformer) (*Info, error) {
	if f == nil || f.Geometry == nil {
		return nil, fmt.Errorf("%w: feature has no geometry", geo.ErrMalformedGeometry)
	}
	info := &Info{Kind: f.Kind()}

	switch f.Kind() {
	case geo.KindPoint, geo.KindMultiPoint:
		cs := geo.Coords(f.Geometry)
		if len(cs) == 0 {
			return info, nil
		}
		info.Coordinates = []float64{round(cs[0][0], 3), round(cs[0][1], 3)}
		return info, nil
	}

	if toWGS84 == nil {
		toWGS84 = reproject.Identity
	}
	g, err := reproject.Geometry(f.Geometry, toWGS84)
	if err != nil {
		return nil, err
	}

	switch f.Kind() {
	case geo.KindLineString, geo.KindMultiLineString:
		m := Length(g)
		info.Length = []Quantity{
			quantity("m", m),
			quantity("km", m/1000),
		}
	case geo.KindPolygon, geo.KindMultiPolygon:
		m2 := Area(g)
		info.Area = []Quantity{
			quantity("m²", m2),
			quantity("ha", m2/10000),
			quantity("km²", m2/1000000),
		}
	}
	return info, nil
}

// Length returns the geodesic length in meters of a WGS84 line geometry.
// Other kinds measure zero.
func Length(g geo.Geometry) float64 {
	switch t := g.(type) {
	case geo.LineString:
		return orbgeo.Length(lineString(t))
	case geo.MultiLineString:
		ml := make(orb.MultiLineString, len(t))
		for i, l := range t {
			ml[i] = lineString(l)
		}
		return orbgeo.Length(ml)
	}
	return 0
}

// Area returns the geodesic area in square meters of a WGS84 polygon
// geometry. Other kinds measure zero.
func Area(g geo.Geometry) float64 {
	switch t := g.(type) {
	case geo.Polygon:
		return math.Abs(orbgeo.Area(polygon(t)))
	case geo.MultiPolygon:
		mp := make(orb.MultiPolygon, len(t))
		for i, p := range t {
			mp[i] = polygon(p)
		}
		return math.Abs(orbgeo.Area(mp))
	}
	return 0
}

// FormatNumber rounds to two decimals and writes the number with a comma
// as decimal separator and dots grouping thousands: 1234567.891 becomes
// "1.234.567,89". Trailing zeros are not written.
func FormatNumber(x float64) string {
	s := strconv.FormatFloat(round(x, 2), 'f', -1, 64)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")

	var sb strings.Builder
	sb.WriteString(sign)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteByte('.')
		}
		sb.WriteRune(r)
	}
	if hasFrac {
		sb.WriteByte(',')
		sb.WriteString(frac)
	}
	return sb.String()
}

func quantity(unit string, v float64) Quantity {
	return Quantity{Unit: unit, Value: round(v, 2), Text: FormatNumber(v)}
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func lineString(cs []geo.Coord) orb.LineString {
	ls := make(orb.LineString, len(cs))
	for i, c := range cs {
		ls[i] = orb.Point{c[0], c[1]}
	}
	return ls
}

func polygon(p geo.Polygon) orb.Polygon {
	out := make(orb.Polygon, len(p))
	for i, r := range p {
		out[i] = orb.Ring(lineString(r))
	}
	return out
}
