package convert

import (
	"fmt"
	"maps"

	"github.com/guadaltel/vectors/internal/geo"
)

// StripNaNTails removes the trailing NaN value some drawing tools append to
// coordinates. Only one coordinate is sampled per geometry, or per ring for
// polygons and per part for multi-polygons; when it carries a NaN tail the
// tail is removed from every coordinate at that level. Multi-points and
// multi-lines are not inspected. The features are modified in place.
func StripNaNTails(fs []*geo.Feature) {
	for _, f := range fs {
		switch g := f.Geometry.(type) {
		case geo.Point:
			if geo.Coord(g).HasNaNTail() {
				f.Geometry = geo.Point(dropTail(geo.Coord(g)))
			}
		case geo.LineString:
			if len(g) > 0 && g[0].HasNaNTail() {
				dropTails(g)
			}
		case geo.Polygon:
			for _, r := range g {
				if len(r) > 0 && r[0].HasNaNTail() {
					dropTails(r)
				}
			}
		case geo.MultiPolygon:
			for _, p := range g {
				if len(p) == 0 || len(p[0]) == 0 || !p[0][0].HasNaNTail() {
					continue
				}
				for _, r := range p {
					dropTails(r)
				}
			}
		}
	}
}

func dropTails(cs []geo.Coord) {
	for i, c := range cs {
		cs[i] = dropTail(c)
	}
}

func dropTail(c geo.Coord) geo.Coord {
	if len(c) <= 2 {
		return c
	}
	return c[:len(c)-1 : len(c)-1]
}

// Decompose prepares features for Shapefile output, which has no
// multi-geometries: every multi-geometry is split into one feature per
// part, and identifiers are dropped from the result. The input features
// are not modified.
func Decompose(fs []*geo.Feature) []*geo.Feature {
	out := splitMulti(fs)
	for _, f := range out {
		f.ID = ""
	}
	return out
}

// splitMulti splits multi-geometries into parts named after the original
// identifier followed by the part index.
func splitMulti(fs []*geo.Feature) []*geo.Feature {
	out := make([]*geo.Feature, 0, len(fs))
	for _, f := range fs {
		if !f.Kind().IsMulti() {
			c := *f
			out = append(out, &c)
			continue
		}
		for i, part := range geo.Parts(f.Geometry) {
			out = append(out, &geo.Feature{
				ID:         fmt.Sprintf("%s%d", f.ID, i),
				Geometry:   part,
				Style:      f.Style,
				Properties: maps.Clone(f.Properties),
			})
		}
	}
	return out
}
