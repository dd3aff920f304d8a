package reproject

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// WGS84 is the code of the geographic CRS every export format expects.
const WGS84 = "EPSG:4326"

// ErrUnknownCRS reports a CRS code with no known definition.
var ErrUnknownCRS = errors.New("unknown CRS")

// geographic codes share WGS84 axes closely enough to need no transform.
var geographic = map[string]bool{
	"EPSG:4326": true,
	"EPSG:4258": true,
}

var mercator = map[string]bool{
	"EPSG:3857":   true,
	"EPSG:900913": true,
	"EPSG:102100": true,
}

// builtin proj4 definitions for the ETRS89 and WGS84 UTM zones commonly
// used by Spanish and Portuguese map services.
var builtin = map[string]string{
	"EPSG:25828": "+proj=utm +zone=28 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	"EPSG:25829": "+proj=utm +zone=29 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	"EPSG:25830": "+proj=utm +zone=30 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	"EPSG:25831": "+proj=utm +zone=31 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	"EPSG:32628": "+proj=utm +zone=28 +datum=WGS84 +units=m +no_defs",
	"EPSG:32629": "+proj=utm +zone=29 +datum=WGS84 +units=m +no_defs",
	"EPSG:32630": "+proj=utm +zone=30 +datum=WGS84 +units=m +no_defs",
	"EPSG:32631": "+proj=utm +zone=31 +datum=WGS84 +units=m +no_defs",
}

// Registry resolves CRS codes to coordinate transforms. Web Mercator is
// handled by orb; any other projected CRS needs a proj4 definition.
type Registry struct {
	defs  map[string]string
	srs   map[string]*proj.SR
	wgs84 *proj.SR
}

// NewRegistry returns a registry preloaded with the builtin definitions.
func NewRegistry() *Registry {
	r := &Registry{
		defs: make(map[string]string, len(builtin)),
		srs:  make(map[string]*proj.SR),
	}
	for code, def := range builtin {
		r.defs[code] = def
	}
	return r
}

// Register adds or replaces a proj4 definition. The definition is parsed
// eagerly so errors surface at configuration time.
func (r *Registry) Register(code, proj4 string) error {
	code = Normalize(code)
	sr, err := proj.Parse(proj4)
	if err != nil {
		return fmt.Errorf("parse %s definition: %w", code, err)
	}
	r.defs[code] = proj4
	r.srs[code] = sr
	return nil
}

// Known reports whether the code can be transformed.
func (r *Registry) Known(code string) bool {
	code = Normalize(code)
	if geographic[code] || mercator[code] {
		return true
	}
	_, ok := r.defs[code]
	return ok
}

// Transformer returns a transform from src to dst coordinates.
func (r *Registry) Transformer(src, dst string) (proj.Transformer, error) {
	src, dst = Normalize(src), Normalize(dst)
	if src == dst {
		return Identity, nil
	}

	toWGS, err := r.toWGS84(src)
	if err != nil {
		return nil, err
	}
	fromWGS, err := r.fromWGS84(dst)
	if err != nil {
		return nil, err
	}

	return func(x, y float64) (float64, float64, error) {
		lon, lat, err := toWGS(x, y)
		if err != nil {
			return 0, 0, err
		}
		return fromWGS(lon, lat)
	}, nil
}

// ToWGS84 returns a transform from code to geographic WGS84.
func (r *Registry) ToWGS84(code string) (proj.Transformer, error) {
	return r.Transformer(code, WGS84)
}

// FromWGS84 returns a transform from geographic WGS84 to code.
func (r *Registry) FromWGS84(code string) (proj.Transformer, error) {
	return r.Transformer(WGS84, code)
}

func (r *Registry) toWGS84(code string) (proj.Transformer, error) {
	switch {
	case geographic[code]:
		return Identity, nil
	case mercator[code]:
		return orbTransform(project.Mercator.ToWGS84), nil
	}
	sr, err := r.sr(code)
	if err != nil {
		return nil, err
	}
	wgs, err := r.wgs84SR()
	if err != nil {
		return nil, err
	}
	return sr.NewTransform(wgs)
}

func (r *Registry) fromWGS84(code string) (proj.Transformer, error) {
	switch {
	case geographic[code]:
		return Identity, nil
	case mercator[code]:
		return orbTransform(project.WGS84.ToMercator), nil
	}
	sr, err := r.sr(code)
	if err != nil {
		return nil, err
	}
	wgs, err := r.wgs84SR()
	if err != nil {
		return nil, err
	}
	return wgs.NewTransform(sr)
}

func (r *Registry) sr(code string) (*proj.SR, error) {
	if sr, ok := r.srs[code]; ok {
		return sr, nil
	}
	def, ok := r.defs[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCRS, code)
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse %s definition: %w", code, err)
	}
	r.srs[code] = sr
	return sr, nil
}

func (r *Registry) wgs84SR() (*proj.SR, error) {
	if r.wgs84 != nil {
		return r.wgs84, nil
	}
	sr, err := proj.Parse("+proj=longlat +datum=WGS84 +no_defs")
	if err != nil {
		return nil, err
	}
	r.wgs84 = sr
	return sr, nil
}

func orbTransform(p orb.Projection) proj.Transformer {
	return func(x, y float64) (float64, float64, error) {
		out := p(orb.Point{x, y})
		return out[0], out[1], nil
	}
}

// Normalize upper-cases a CRS code and maps common aliases of geographic
// WGS84 to EPSG:4326.
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch code {
	case "", "WGS84", "CRS:84", "URN:OGC:DEF:CRS:OGC:1.3:CRS84", "URN:OGC:DEF:CRS:EPSG::4326":
		return WGS84
	}
	return code
}
