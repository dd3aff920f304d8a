// Package convert moves feature collections in and out of GeoJSON, KML,
// GPX and zipped Shapefile bundles.
package convert

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/guadaltel/vectors/internal/geo"
	"github.com/guadaltel/vectors/internal/reproject"

	"github.com/ctessum/geom/proj"
	"github.com/rs/zerolog/log"
)

// MaxFileSize is the largest accepted import, in bytes (20 MiB).
const MaxFileSize = 20 * 1024 * 1024

var (
	// ErrUnsupportedFormat reports an unknown extension or content that
	// cannot be parsed as its declared format.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrFileTooLarge reports an input above MaxFileSize.
	ErrFileTooLarge = errors.New("file too large")
)

// Format is an export target.
type Format string

// Export formats.
const (
	GeoJSON   Format = "geojson"
	KML       Format = "kml"
	GPX       Format = "gpx"
	Shapefile Format = "shp"
)

// Formats lists every export format.
var Formats = []Format{GeoJSON, KML, GPX, Shapefile}

// ParseFormat resolves an export format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(s, ".")))
	switch f {
	case GeoJSON, KML, GPX, Shapefile:
		return f, nil
	case "json":
		return GeoJSON, nil
	case "zip":
		return Shapefile, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Ext returns the file extension of exported data.
func (f Format) Ext() string {
	if f == Shapefile {
		return "zip"
	}
	return string(f)
}

// MIME returns the content type of exported data.
func (f Format) MIME() string {
	switch f {
	case GeoJSON:
		return "application/json"
	case Shapefile:
		return "application/zip"
	}
	return "application/xml"
}

// Bundle is one exported file.
type Bundle struct {
	Name   string
	MIME   string
	Format Format
	Data   []byte
}

// Options tune an export.
type Options struct {
	// ToWGS84 transforms feature coordinates to geographic WGS84. Nil
	// means the features are already in WGS84.
	ToWGS84 proj.Transformer
	// Compact minifies XML and JSON output.
	Compact bool
}

// Export serializes a layer's features. The features are cloned and
// reprojected to WGS84 first; the caller's features are never modified.
func Export(name string, fs []*geo.Feature, format Format, opts Options) (*Bundle, error) {
	t := opts.ToWGS84
	if t == nil {
		t = reproject.Identity
	}
	wgs, err := reproject.Features(withGeometry(fs), t)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch format {
	case GeoJSON:
		data, err = encodeGeoJSON(wgs)
	case KML:
		StripNaNTails(wgs)
		data, err = encodeKML(name, wgs)
	case GPX:
		data, err = encodeGPX(name, wgs)
	case Shapefile:
		data, err = encodeShapefile(name, Decompose(wgs))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("export %s as %s: %w", name, format, err)
	}

	if opts.Compact && format != Shapefile {
		if data, err = compact(format, data); err != nil {
			return nil, fmt.Errorf("compact %s: %w", format, err)
		}
	}

	log.Debug().
		Str("layer", name).
		Str("format", string(format)).
		Int("features", len(wgs)).
		Int("bytes", len(data)).
		Msg("Layer exported")

	return &Bundle{
		Name:   name + "." + format.Ext(),
		MIME:   format.MIME(),
		Format: format,
		Data:   data,
	}, nil
}

// CheckSize fails with ErrFileTooLarge when size exceeds MaxFileSize.
func CheckSize(size int64) error {
	if size > MaxFileSize {
		return fmt.Errorf("%w: %d bytes, limit is %d", ErrFileTooLarge, size, MaxFileSize)
	}
	return nil
}

// Import parses a file into WGS84 features. The format is taken from the
// file name's extension: .geojson, .json, .kml, .gpx or .zip. A file
// without geometries yields an empty slice and no error.
func Import(filename string, data []byte) ([]*geo.Feature, error) {
	if err := CheckSize(int64(len(data))); err != nil {
		return nil, err
	}

	var (
		fs  []*geo.Feature
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".geojson", ".json":
		fs, err = decodeGeoJSON(data)
	case ".kml":
		fs, err = decodeKML(data)
	case ".gpx":
		fs, err = decodeGPX(data)
	case ".zip":
		fs, err = decodeShapefile(data)
	default:
		return nil, fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedFormat, filename, err)
	}

	log.Debug().Str("file", filename).Int("features", len(fs)).Msg("File imported")
	return fs, nil
}

// BaseName strips the extension from a file name.
func BaseName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func withGeometry(fs []*geo.Feature) []*geo.Feature {
	out := make([]*geo.Feature, 0, len(fs))
	for _, f := range fs {
		if f != nil && f.Geometry != nil {
			out = append(out, f)
		}
	}
	return out
}
