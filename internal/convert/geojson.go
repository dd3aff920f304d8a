package convert

import (
	"encoding/json"
	"fmt"

	"github.com/guadaltel/vectors/internal/geo"
)

func encodeGeoJSON(fs []*geo.Feature) ([]byte, error) {
	return json.Marshal(geo.NewFeatureCollection(fs))
}

// decodeGeoJSON accepts a FeatureCollection or a single Feature.
func decodeGeoJSON(data []byte) ([]*geo.Feature, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var fc geo.GeoJSONFeatureCollection
	switch head.Type {
	case "FeatureCollection":
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, err
		}
	case "Feature":
		var f geo.GeoJSONFeature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
		fc.Features = []geo.GeoJSONFeature{f}
	default:
		return nil, fmt.Errorf("%w: GeoJSON type %q", ErrUnsupportedFormat, head.Type)
	}
	return fc.ToFeatures(), nil
}
