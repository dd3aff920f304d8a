package convert

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"

	"github.com/guadaltel/vectors/internal/geo"
)

const (
	gpxNamespace = "http://www.topografix.com/GPX/1/1"
	gpxCreator   = "vectors"
)

type gpxDoc struct {
	XMLName   xml.Name     `xml:"gpx"`
	Version   string       `xml:"version,attr"`
	Creator   string       `xml:"creator,attr"`
	Xmlns     string       `xml:"xmlns,attr,omitempty"`
	Metadata  *gpxMetadata `xml:"metadata"`
	Waypoints []gpxPoint   `xml:"wpt"`
	Routes    []gpxRoute   `xml:"rte"`
	Tracks    []gpxTrack   `xml:"trk"`
}

type gpxMetadata struct {
	Name string `xml:"name,omitempty"`
}

type gpxPoint struct {
	Lat  float64  `xml:"lat,attr"`
	Lon  float64  `xml:"lon,attr"`
	Ele  *float64 `xml:"ele"`
	Name string   `xml:"name,omitempty"`
	Desc string   `xml:"desc,omitempty"`
}

type gpxRoute struct {
	Name   string     `xml:"name,omitempty"`
	Desc   string     `xml:"desc,omitempty"`
	Points []gpxPoint `xml:"rtept"`
}

type gpxTrack struct {
	Name     string       `xml:"name,omitempty"`
	Desc     string       `xml:"desc,omitempty"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

// encodeGPX writes points as waypoints and everything else as tracks:
// one segment per line, or per ring for polygons.
func encodeGPX(name string, fs []*geo.Feature) ([]byte, error) {
	doc := gpxDoc{
		Version:  "1.1",
		Creator:  gpxCreator,
		Xmlns:    gpxNamespace,
		Metadata: &gpxMetadata{Name: name},
	}
	for _, f := range fs {
		title := propString(f.Properties, "name")
		desc := propString(f.Properties, "desc")
		if desc == "" {
			desc = propString(f.Properties, "description")
		}

		switch g := f.Geometry.(type) {
		case geo.Point:
			wpt := gpxPointOf(geo.Coord(g))
			wpt.Name, wpt.Desc = title, desc
			doc.Waypoints = append(doc.Waypoints, wpt)
		case geo.MultiPoint:
			for _, c := range g {
				wpt := gpxPointOf(c)
				wpt.Name, wpt.Desc = title, desc
				doc.Waypoints = append(doc.Waypoints, wpt)
			}
		case geo.LineString:
			doc.Tracks = append(doc.Tracks, gpxTrackOf(title, desc, g))
		case geo.MultiLineString:
			lines := make([][]geo.Coord, len(g))
			for i, l := range g {
				lines[i] = l
			}
			doc.Tracks = append(doc.Tracks, gpxTrackOf(title, desc, lines...))
		case geo.Polygon:
			doc.Tracks = append(doc.Tracks, gpxTrackOf(title, desc, rings(g)...))
		case geo.MultiPolygon:
			var all [][]geo.Coord
			for _, p := range g {
				all = append(all, rings(p)...)
			}
			doc.Tracks = append(doc.Tracks, gpxTrackOf(title, desc, all...))
		default:
			return nil, fmt.Errorf("%w: %T", geo.ErrUnknownGeometryKind, f.Geometry)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rings(p geo.Polygon) [][]geo.Coord {
	out := make([][]geo.Coord, len(p))
	for i, r := range p {
		out[i] = r
	}
	return out
}

func gpxTrackOf(name, desc string, segs ...[]geo.Coord) gpxTrack {
	trk := gpxTrack{Name: name, Desc: desc, Segments: make([]gpxSegment, len(segs))}
	for i, seg := range segs {
		pts := make([]gpxPoint, len(seg))
		for j, c := range seg {
			pts[j] = gpxPointOf(c)
		}
		trk.Segments[i] = gpxSegment{Points: pts}
	}
	return trk
}

func gpxPointOf(c geo.Coord) gpxPoint {
	p := gpxPoint{Lon: c[0], Lat: c[1]}
	if len(c) > 2 && !math.IsNaN(c[2]) && !math.IsInf(c[2], 0) {
		ele := c[2]
		p.Ele = &ele
	}
	return p
}

func (p gpxPoint) coord() geo.Coord {
	if p.Ele != nil {
		return geo.Coord{p.Lon, p.Lat, *p.Ele}
	}
	return geo.Coord{p.Lon, p.Lat}
}

func coordsOf(pts []gpxPoint) []geo.Coord {
	out := make([]geo.Coord, len(pts))
	for i, p := range pts {
		out[i] = p.coord()
	}
	return out
}

// decodeGPX reads waypoints as points, routes as lines and tracks as lines,
// or multi-lines when a track has several segments.
func decodeGPX(data []byte) ([]*geo.Feature, error) {
	var doc gpxDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var out []*geo.Feature
	add := func(g geo.Geometry, name, desc string) {
		f := geo.NewFeature("", g)
		if name != "" {
			f.Properties["name"] = name
		}
		if desc != "" {
			f.Properties["desc"] = desc
		}
		out = append(out, f)
	}

	for _, w := range doc.Waypoints {
		add(geo.Point(w.coord()), w.Name, w.Desc)
	}
	for _, r := range doc.Routes {
		if len(r.Points) == 0 {
			continue
		}
		add(geo.LineString(coordsOf(r.Points)), r.Name, r.Desc)
	}
	for _, t := range doc.Tracks {
		var segs []geo.LineString
		for _, s := range t.Segments {
			if len(s.Points) > 0 {
				segs = append(segs, coordsOf(s.Points))
			}
		}
		switch len(segs) {
		case 0:
			continue
		case 1:
			add(segs[0], t.Name, t.Desc)
		default:
			add(geo.MultiLineString(segs), t.Name, t.Desc)
		}
	}
	return out, nil
}
