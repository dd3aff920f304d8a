// Package config handles configuration loading and shared data structures.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/guadaltel/vectors/internal/geo"
	"github.com/guadaltel/vectors/internal/reproject"
	"github.com/guadaltel/vectors/internal/style"

	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty.
const (
	DefaultCRS   = "EPSG:3857"
	DefaultColor = "#71a7d3"
)

// Config represents the root configuration file structure.
type Config struct {
	CRS         string       `yaml:"crs,omitempty" json:"crs"`
	Style       style.Params `yaml:"style,omitempty" json:"style"`
	Projections []Projection `yaml:"projections,omitempty" json:"projections,omitempty"`
	Layers      []Layer      `yaml:"layers,omitempty" json:"-"`

	// minify exported KML, GPX and GeoJSON
	CompactExport bool `yaml:"compact_export,omitempty" json:"compact_export"`
}

// Projection is an extra CRS known by its proj4 definition.
type Projection struct {
	Code  string `yaml:"code" json:"code"`
	Proj4 string `yaml:"proj4" json:"proj4"`
}

// Layer is a layer created at startup.
type Layer struct {
	// defining GeoJSON directly in config.yaml, in WGS84
	Inline *geo.GeoJSONFeatureCollection `yaml:"geojson,omitempty" json:"-"`

	Name     string `yaml:"name" json:"name"`
	Legend   string `yaml:"legend,omitempty" json:"legend,omitempty"`
	Geometry string `yaml:"geometry,omitempty" json:"geometry,omitempty"`
	File     string `yaml:"file,omitempty" json:"-"` // local path or http(s) URL
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills empty fields.
func (c *Config) ApplyDefaults() {
	if c.CRS == "" {
		c.CRS = DefaultCRS
	}
	if c.Style.Color == "" {
		c.Style.Color = DefaultColor
	}
	if c.Style.Thickness <= 0 {
		c.Style.Thickness = style.DefaultThickness
	}
	if c.Style.Dash == "" {
		c.Style.Dash = style.Continuous
	}
}

// Validate checks the parts of the configuration that cannot be fixed by
// defaults.
func (c *Config) Validate() error {
	if _, err := style.ParseDash(string(c.Style.Dash)); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Layers))
	for i, l := range c.Layers {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return fmt.Errorf("layer %d: missing name", i)
		}
		if seen[name] {
			return fmt.Errorf("layer %q: defined twice", name)
		}
		seen[name] = true

		if l.Geometry != "" {
			if _, err := geo.ParseKind(l.Geometry); err != nil {
				return fmt.Errorf("layer %q: %w", name, err)
			}
		}
	}
	return nil
}

// Registry returns a CRS registry holding the builtin definitions plus the
// configured projections, and checks the map CRS is among them.
func (c *Config) Registry() (*reproject.Registry, error) {
	r := reproject.NewRegistry()
	for _, p := range c.Projections {
		if err := r.Register(p.Code, p.Proj4); err != nil {
			return nil, err
		}
	}
	if !r.Known(c.CRS) {
		return nil, fmt.Errorf("%w: %s", reproject.ErrUnknownCRS, c.CRS)
	}
	return r, nil
}
