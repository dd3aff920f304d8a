package convert

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/guadaltel/vectors/internal/geo"
)

const kmlNamespace = "http://www.opengis.net/kml/2.2"

type kmlDoc struct {
	XMLName    xml.Name       `xml:"kml"`
	Xmlns      string         `xml:"xmlns,attr,omitempty"`
	Document   *kmlContainer  `xml:"Document"`
	Folders    []kmlContainer `xml:"Folder"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlContainer struct {
	Name       string         `xml:"name,omitempty"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
	Folders    []kmlContainer `xml:"Folder"`
}

type kmlPlacemark struct {
	ID            string            `xml:"id,attr,omitempty"`
	Name          string            `xml:"name,omitempty"`
	Description   string            `xml:"description,omitempty"`
	ExtendedData  *kmlExtendedData  `xml:"ExtendedData"`
	Point         *kmlCoordinates   `xml:"Point"`
	LineString    *kmlCoordinates   `xml:"LineString"`
	Polygon       *kmlPolygon       `xml:"Polygon"`
	MultiGeometry *kmlMultiGeometry `xml:"MultiGeometry"`
}

type kmlCoordinates struct {
	Coordinates string `xml:"coordinates"`
}

type kmlPolygon struct {
	Outer kmlBoundary   `xml:"outerBoundaryIs"`
	Inner []kmlBoundary `xml:"innerBoundaryIs"`
}

type kmlBoundary struct {
	LinearRing kmlCoordinates `xml:"LinearRing"`
}

type kmlMultiGeometry struct {
	Points      []kmlCoordinates `xml:"Point"`
	LineStrings []kmlCoordinates `xml:"LineString"`
	Polygons    []kmlPolygon     `xml:"Polygon"`
}

type kmlExtendedData struct {
	Data []kmlData `xml:"Data"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

func encodeKML(name string, fs []*geo.Feature) ([]byte, error) {
	doc := kmlDoc{
		Xmlns:    kmlNamespace,
		Document: &kmlContainer{Name: name},
	}
	for _, f := range fs {
		pm := kmlPlacemark{
			ID:           f.ID,
			Name:         propString(f.Properties, "name"),
			Description:  propString(f.Properties, "description"),
			ExtendedData: extendedData(f.Properties),
		}
		switch g := f.Geometry.(type) {
		case geo.Point:
			pm.Point = &kmlCoordinates{formatKMLCoords([]geo.Coord{geo.Coord(g)})}
		case geo.LineString:
			pm.LineString = &kmlCoordinates{formatKMLCoords(g)}
		case geo.Polygon:
			p := kmlPolygonOf(g)
			pm.Polygon = &p
		case geo.MultiPoint:
			mg := &kmlMultiGeometry{}
			for _, c := range g {
				mg.Points = append(mg.Points, kmlCoordinates{formatKMLCoords([]geo.Coord{c})})
			}
			pm.MultiGeometry = mg
		case geo.MultiLineString:
			mg := &kmlMultiGeometry{}
			for _, l := range g {
				mg.LineStrings = append(mg.LineStrings, kmlCoordinates{formatKMLCoords(l)})
			}
			pm.MultiGeometry = mg
		case geo.MultiPolygon:
			mg := &kmlMultiGeometry{}
			for _, p := range g {
				mg.Polygons = append(mg.Polygons, kmlPolygonOf(p))
			}
			pm.MultiGeometry = mg
		default:
			return nil, fmt.Errorf("%w: %T", geo.ErrUnknownGeometryKind, f.Geometry)
		}
		doc.Document.Placemarks = append(doc.Document.Placemarks, pm)
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

func kmlPolygonOf(p geo.Polygon) kmlPolygon {
	var out kmlPolygon
	for i, r := range p {
		b := kmlBoundary{LinearRing: kmlCoordinates{formatKMLCoords(r)}}
		if i == 0 {
			out.Outer = b
			continue
		}
		out.Inner = append(out.Inner, b)
	}
	return out
}

// formatKMLCoords writes "x,y[,z]" tuples separated by spaces. A third
// value is only written when it is finite.
func formatKMLCoords(cs []geo.Coord) string {
	var sb strings.Builder
	for i, c := range cs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(c[0], 'f', -1, 64))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(c[1], 'f', -1, 64))
		if len(c) > 2 && !math.IsNaN(c[2]) && !math.IsInf(c[2], 0) {
			sb.WriteByte(',')
			sb.WriteString(strconv.FormatFloat(c[2], 'f', -1, 64))
		}
	}
	return sb.String()
}

func extendedData(props map[string]any) *kmlExtendedData {
	keys := make([]string, 0, len(props))
	for k, v := range props {
		if k == "name" || k == "description" || v == nil {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	slices.Sort(keys)

	ed := &kmlExtendedData{Data: make([]kmlData, len(keys))}
	for i, k := range keys {
		ed.Data[i] = kmlData{Name: k, Value: fmt.Sprint(props[k])}
	}
	return ed
}

func propString(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func decodeKML(data []byte) ([]*geo.Feature, error) {
	var doc kmlDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var pms []kmlPlacemark
	pms = append(pms, doc.Placemarks...)
	for _, f := range doc.Folders {
		pms = f.collect(pms)
	}
	if doc.Document != nil {
		pms = doc.Document.collect(pms)
	}

	var out []*geo.Feature
	for _, pm := range pms {
		gs, err := pm.geometries()
		if err != nil {
			return nil, fmt.Errorf("placemark %q: %w", pm.Name, err)
		}
		for i, g := range gs {
			f := geo.NewFeature(pm.ID, g)
			if len(gs) > 1 && pm.ID != "" {
				f.ID = fmt.Sprintf("%s%d", pm.ID, i)
			}
			if pm.Name != "" {
				f.Properties["name"] = pm.Name
			}
			if pm.Description != "" {
				f.Properties["description"] = pm.Description
			}
			if pm.ExtendedData != nil {
				for _, d := range pm.ExtendedData.Data {
					f.Properties[d.Name] = d.Value
				}
			}
			out = append(out, f)
		}
	}
	return out, nil
}

func (c kmlContainer) collect(dst []kmlPlacemark) []kmlPlacemark {
	dst = append(dst, c.Placemarks...)
	for _, f := range c.Folders {
		dst = f.collect(dst)
	}
	return dst
}

// geometries returns the placemark's geometry. A MultiGeometry mixing
// kinds has no single equivalent and yields one geometry per kind.
func (pm kmlPlacemark) geometries() ([]geo.Geometry, error) {
	switch {
	case pm.Point != nil:
		cs, err := parseKMLCoords(pm.Point.Coordinates)
		if err != nil {
			return nil, err
		}
		if len(cs) != 1 {
			return nil, fmt.Errorf("%w: point with %d coordinates", geo.ErrMalformedGeometry, len(cs))
		}
		return []geo.Geometry{geo.Point(cs[0])}, nil
	case pm.LineString != nil:
		cs, err := parseKMLCoords(pm.LineString.Coordinates)
		if err != nil {
			return nil, err
		}
		return []geo.Geometry{geo.LineString(cs)}, nil
	case pm.Polygon != nil:
		p, err := pm.Polygon.geometry()
		if err != nil {
			return nil, err
		}
		return []geo.Geometry{p}, nil
	case pm.MultiGeometry != nil:
		return pm.MultiGeometry.geometries()
	}
	return nil, nil
}

func (mg kmlMultiGeometry) geometries() ([]geo.Geometry, error) {
	var out []geo.Geometry
	if len(mg.Points) > 0 {
		mp := make(geo.MultiPoint, 0, len(mg.Points))
		for _, p := range mg.Points {
			cs, err := parseKMLCoords(p.Coordinates)
			if err != nil {
				return nil, err
			}
			mp = append(mp, cs...)
		}
		out = append(out, mp)
	}
	if len(mg.LineStrings) > 0 {
		ml := make(geo.MultiLineString, 0, len(mg.LineStrings))
		for _, l := range mg.LineStrings {
			cs, err := parseKMLCoords(l.Coordinates)
			if err != nil {
				return nil, err
			}
			ml = append(ml, cs)
		}
		out = append(out, ml)
	}
	if len(mg.Polygons) > 0 {
		mp := make(geo.MultiPolygon, 0, len(mg.Polygons))
		for _, kp := range mg.Polygons {
			p, err := kp.geometry()
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		out = append(out, mp)
	}
	return out, nil
}

func (kp kmlPolygon) geometry() (geo.Polygon, error) {
	outer, err := parseKMLCoords(kp.Outer.LinearRing.Coordinates)
	if err != nil {
		return nil, err
	}
	p := geo.Polygon{outer}
	for _, b := range kp.Inner {
		inner, err := parseKMLCoords(b.LinearRing.Coordinates)
		if err != nil {
			return nil, err
		}
		p = append(p, inner)
	}
	return p, nil
}

func parseKMLCoords(s string) ([]geo.Coord, error) {
	tuples := strings.Fields(s)
	out := make([]geo.Coord, 0, len(tuples))
	for _, t := range tuples {
		parts := strings.Split(t, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: coordinate %q", geo.ErrMalformedGeometry, t)
		}
		c := make(geo.Coord, len(parts))
		for i, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: coordinate %q", geo.ErrMalformedGeometry, t)
			}
			c[i] = v
		}
		out = append(out, c)
	}
	return out, nil
}
