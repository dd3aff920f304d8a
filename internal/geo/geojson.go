package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// GeoJSONFeatureCollection represents a collection of geographic features.
// It follows the standard GeoJSON structure.
type GeoJSONFeatureCollection struct {
	Type     string           `json:"type" yaml:"type"`
	Features []GeoJSONFeature `json:"features" yaml:"features"`
}

// GeoJSONFeature represents a single geographic feature with geometry and properties.
type GeoJSONFeature struct {
	ID         any              `json:"id,omitempty" yaml:"id,omitempty"`
	Properties map[string]any   `json:"properties" yaml:"properties"`
	Geometry   *GeoJSONGeometry `json:"geometry" yaml:"geometry"`
	Type       string           `json:"type" yaml:"type"`
}

// GeoJSONGeometry wraps a Geometry with its GeoJSON encoding. Non-finite
// ordinates are written as null and read back as NaN, so coordinates
// carrying a NaN trailing value survive a round trip.
type GeoJSONGeometry struct {
	Geometry Geometry
}

type rawGeometry struct {
	Coordinates any    `json:"coordinates" yaml:"coordinates"`
	Type        string `json:"type" yaml:"type"`
}

// MarshalJSON implements json.Marshaler.
func (g GeoJSONGeometry) MarshalJSON() ([]byte, error) {
	if g.Geometry == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteString(`{"type":"`)
	buf.WriteString(string(g.Geometry.Kind()))
	buf.WriteString(`","coordinates":`)
	writeTree(&buf, ToCoordinates(g.Geometry))
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *GeoJSONGeometry) UnmarshalJSON(data []byte) error {
	var raw rawGeometry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return g.fromRaw(raw)
}

// UnmarshalYAML implements yaml.Unmarshaler, so inline GeoJSON can live in
// the configuration file.
func (g *GeoJSONGeometry) UnmarshalYAML(value *yaml.Node) error {
	var raw rawGeometry
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return g.fromRaw(raw)
}

func (g *GeoJSONGeometry) fromRaw(raw rawGeometry) error {
	kind, err := ParseKind(raw.Type)
	if err != nil {
		return err
	}
	geom, err := FromCoordinates(kind, raw.Coordinates)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	g.Geometry = geom
	return nil
}

func writeTree(buf *bytes.Buffer, tree any) {
	switch t := tree.(type) {
	case []float64:
		buf.WriteByte('[')
		for i, v := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				buf.WriteString("null")
				continue
			}
			buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		}
		buf.WriteByte(']')
	case [][]float64:
		writeList(buf, len(t), func(i int) { writeTree(buf, t[i]) })
	case [][][]float64:
		writeList(buf, len(t), func(i int) { writeTree(buf, t[i]) })
	case [][][][]float64:
		writeList(buf, len(t), func(i int) { writeTree(buf, t[i]) })
	}
}

func writeList(buf *bytes.Buffer, n int, item func(int)) {
	buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		item(i)
	}
	buf.WriteByte(']')
}

// NewFeatureCollection converts features to their GeoJSON form.
func NewFeatureCollection(fs []*Feature) GeoJSONFeatureCollection {
	fc := GeoJSONFeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]GeoJSONFeature, 0, len(fs)),
	}
	for _, f := range fs {
		gf := GeoJSONFeature{
			Type:       "Feature",
			Properties: f.Properties,
		}
		if f.ID != "" {
			gf.ID = f.ID
		}
		if gf.Properties == nil {
			gf.Properties = map[string]any{}
		}
		if f.Geometry != nil {
			gf.Geometry = &GeoJSONGeometry{Geometry: f.Geometry}
		}
		fc.Features = append(fc.Features, gf)
	}
	return fc
}

// ToFeatures converts the collection to features. Features without
// geometry are skipped.
func (fc GeoJSONFeatureCollection) ToFeatures() []*Feature {
	out := make([]*Feature, 0, len(fc.Features))
	for _, gf := range fc.Features {
		if gf.Geometry == nil || gf.Geometry.Geometry == nil {
			continue
		}
		f := NewFeature(featureID(gf.ID), gf.Geometry.Geometry)
		for k, v := range gf.Properties {
			f.Properties[k] = v
		}
		out = append(out, f)
	}
	return out
}

func featureID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprint(id)
}
