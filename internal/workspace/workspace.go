// Package workspace is the host map: it owns the layers, their display
// state and the map CRS, and lands imports and exports in that CRS.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/guadaltel/vectors/internal/convert"
	"github.com/guadaltel/vectors/internal/emphasis"
	"github.com/guadaltel/vectors/internal/geo"
	"github.com/guadaltel/vectors/internal/reproject"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
)

var (
	// ErrLayerNotFound reports an unknown layer name.
	ErrLayerNotFound = errors.New("layer not found")
	// ErrLayerExists reports a layer name already in use.
	ErrLayerExists = errors.New("layer already exists")
	// ErrNoExtent reports a layer whose extent cannot be computed.
	ErrNoExtent = errors.New("layer has no extent")
	// ErrInvalidLegend reports an empty legend.
	ErrInvalidLegend = errors.New("legend must not be empty")
	// ErrNotEditable reports a layer that cannot be drawn on, edited or
	// removed by users.
	ErrNotEditable = errors.New("layer is not editable")
)

// Names of layers that are never offered for editing.
const (
	DrawLayerName   = "__draw__"
	SearchLayerName = "Resultado búsquedas"
	attributions    = "attributions"
)

// Option configures a Map.
type Option func(*Map)

// WithClock replaces the clock used to name new drawing layers.
func WithClock(now func() time.Time) Option {
	return func(m *Map) { m.now = now }
}

// Map is an ordered set of layers in one CRS. It is not safe for
// concurrent use.
type Map struct {
	registry *reproject.Registry
	now      func() time.Time
	crs      string
	layers   []*geo.Layer
}

// New returns an empty map in the given CRS.
func New(crs string, registry *reproject.Registry, opts ...Option) (*Map, error) {
	if registry == nil {
		registry = reproject.NewRegistry()
	}
	crs = reproject.Normalize(crs)
	if !registry.Known(crs) {
		return nil, fmt.Errorf("%w: %s", reproject.ErrUnknownCRS, crs)
	}

	m := &Map{registry: registry, crs: crs, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CRS returns the map CRS code.
func (m *Map) CRS() string { return m.crs }

// Registry returns the CRS registry.
func (m *Map) Registry() *reproject.Registry { return m.registry }

// ToWGS84 returns the transform from map coordinates to WGS84.
func (m *Map) ToWGS84() (proj.Transformer, error) {
	return m.registry.ToWGS84(m.crs)
}

// Layers returns every layer in insertion order.
func (m *Map) Layers() []*geo.Layer {
	return slices.Clone(m.layers)
}

// Layer looks a layer up by name.
func (m *Map) Layer(name string) (*geo.Layer, error) {
	for _, l := range m.layers {
		if l.Name() == name {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, name)
}

// AddLayer adds l on top of the existing layers.
func (m *Map) AddLayer(l *geo.Layer) error {
	if _, err := m.Layer(l.Name()); err == nil {
		return fmt.Errorf("%w: %q", ErrLayerExists, l.Name())
	}
	l.SetZIndex(m.maxZIndex() + 1)
	m.layers = append(m.layers, l)
	log.Debug().Str("layer", l.Name()).Int("z", l.ZIndex()).Msg("Layer added")
	return nil
}

// NewDrawingLayer adds an empty vector layer for drawing geometries of
// the given kind, named after the current time.
func (m *Map) NewDrawingLayer(kind geo.Kind) (*geo.Layer, error) {
	if kind.Depth() < 0 {
		return nil, fmt.Errorf("%w: %q", geo.ErrUnknownGeometryKind, kind)
	}
	l := geo.NewLayer(m.uniqueName(fmt.Sprintf("temp_%d", m.now().UnixMilli())), geo.LayerVector)
	l.SetGeometryKind(kind)
	if err := m.AddLayer(l); err != nil {
		return nil, err
	}
	return l, nil
}

// RemoveLayer drops a layer from the map. The highlight and draw layers
// cannot be removed.
func (m *Map) RemoveLayer(name string) error {
	if reserved(name) {
		return fmt.Errorf("%w: %q", ErrNotEditable, name)
	}
	i := slices.IndexFunc(m.layers, func(l *geo.Layer) bool { return l.Name() == name })
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrLayerNotFound, name)
	}
	m.layers = slices.Delete(m.layers, i, i+1)
	log.Debug().Str("layer", name).Msg("Layer removed")
	return nil
}

// ToggleVisibility flips a layer's visibility and returns the new value.
func (m *Map) ToggleVisibility(name string) (bool, error) {
	l, err := m.Layer(name)
	if err != nil {
		return false, err
	}
	l.SetVisible(!l.Visible())
	return l.Visible(), nil
}

// SetLegend renames a layer's display name. Surrounding whitespace is
// trimmed and an empty result is refused.
func (m *Map) SetLegend(name, legend string) error {
	l, err := m.Layer(name)
	if err != nil {
		return err
	}
	legend = strings.TrimSpace(legend)
	if legend == "" {
		return ErrInvalidLegend
	}
	l.SetLegend(legend)
	return nil
}

// Reorder stacks the named layers from top to bottom, starting at the
// current highest z-index and counting down. Layers not named keep their
// z-index.
func (m *Map) Reorder(names []string) error {
	ordered := make([]*geo.Layer, len(names))
	for i, name := range names {
		l, err := m.Layer(name)
		if err != nil {
			return err
		}
		ordered[i] = l
	}

	z := m.maxZIndex()
	for _, l := range ordered {
		l.SetZIndex(z)
		z--
	}
	return nil
}

// Extent returns the bounding box of a layer's features, in map
// coordinates.
func (m *Map) Extent(name string) (orb.Bound, error) {
	l, err := m.Layer(name)
	if err != nil {
		return orb.Bound{}, err
	}
	if l.Type() == geo.LayerWMS {
		return orb.Bound{}, fmt.Errorf("%w: %s layer %q", ErrNoExtent, l.Type(), name)
	}
	b, ok := l.Extent()
	if !ok {
		return orb.Bound{}, fmt.Errorf("%w: %q", ErrNoExtent, name)
	}
	return b, nil
}

func (m *Map) maxZIndex() int {
	z := 0
	for _, l := range m.layers {
		z = max(z, l.ZIndex())
	}
	return z
}

func (m *Map) uniqueName(name string) string {
	candidate := name
	for n := 2; ; n++ {
		if _, err := m.Layer(candidate); err != nil {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
}

// Class is the broad geometry family of a layer.
type Class string

// Layer classes.
const (
	ClassPoint   Class = "point"
	ClassLine    Class = "line"
	ClassPolygon Class = "polygon"
)

// LayerInfo describes an editable layer.
type LayerInfo struct {
	Name     string        `json:"name"`
	Legend   string        `json:"legend"`
	Type     geo.LayerType `json:"type"`
	Class    Class         `json:"class,omitempty"`
	Features int           `json:"features"`
	ZIndex   int           `json:"zIndex"`
	Visible  bool          `json:"visible"`
}

// EditableLayers lists the vector layers a user may draw on or edit, in
// insertion order. Reserved layers, KML attributions and layers whose
// geometry family is unknown are left out.
func (m *Map) EditableLayers() []LayerInfo {
	var out []LayerInfo
	for _, l := range m.layers {
		if !editable(l) {
			continue
		}
		info := Info(l)
		if info.Class == "" {
			continue
		}
		out = append(out, info)
	}
	return out
}

// EditableLayer looks up a layer a user may draw on or edit, with the
// same rules as EditableLayers.
func (m *Map) EditableLayer(name string) (*geo.Layer, error) {
	l, err := m.Layer(name)
	if err != nil {
		return nil, err
	}
	if !editable(l) || classOf(l.GeometryKind()) == "" {
		return nil, fmt.Errorf("%w: %q", ErrNotEditable, name)
	}
	return l, nil
}

// Info describes a layer. The legend defaults to the layer name.
func Info(l *geo.Layer) LayerInfo {
	legend := l.Legend()
	if legend == "" {
		legend = l.Name()
	}
	return LayerInfo{
		Name:     l.Name(),
		Legend:   legend,
		Type:     l.Type(),
		Class:    classOf(l.GeometryKind()),
		Features: l.Len(),
		ZIndex:   l.ZIndex(),
		Visible:  l.Visible(),
	}
}

func editable(l *geo.Layer) bool {
	switch l.Type() {
	case geo.LayerVector, geo.LayerGeoJSON, geo.LayerKML, geo.LayerWFS:
	default:
		return false
	}
	if l.Name() == "" || l.Name() == SearchLayerName || reserved(l.Name()) {
		return false
	}
	return !(l.Type() == geo.LayerKML && strings.EqualFold(l.Name(), attributions))
}

func reserved(name string) bool {
	return name == emphasis.LayerName || name == DrawLayerName
}

func classOf(k geo.Kind) Class {
	switch k.Base() {
	case geo.KindPoint:
		return ClassPoint
	case geo.KindLineString:
		return ClassLine
	case geo.KindPolygon:
		return ClassPolygon
	}
	return ""
}

// ImportResult is the outcome of landing a file on the map. Layer is nil
// when the file held no geometries.
type ImportResult struct {
	Layer    *geo.Layer
	Extent   orb.Bound
	Features int
}

// Empty reports whether the file held no geometries.
func (r ImportResult) Empty() bool { return r.Features == 0 }

// ImportFile parses a file, reprojects its features from WGS84 to the map
// CRS and adds them as a new layer named after the file.
func (m *Map) ImportFile(filename string, data []byte) (ImportResult, error) {
	fs, err := convert.Import(filename, data)
	if err != nil {
		return ImportResult{}, err
	}
	if len(fs) == 0 {
		log.Info().Str("file", filename).Msg("No geometries found in file")
		return ImportResult{}, nil
	}
	return m.LoadFeatures(convert.BaseName(filename), LayerTypeFor(filename), fs)
}

// LoadFeatures reprojects WGS84 features to the map CRS and adds them as a
// new layer. The name gets a numeric suffix when already taken.
func (m *Map) LoadFeatures(name string, typ geo.LayerType, fs []*geo.Feature) (ImportResult, error) {
	t, err := m.registry.FromWGS84(m.crs)
	if err != nil {
		return ImportResult{}, err
	}
	fs, err = reproject.Features(fs, t)
	if err != nil {
		return ImportResult{}, err
	}

	renamed := uniqueIDs(fs)
	l := geo.NewLayer(m.uniqueName(name), typ)
	l.AddFeatures(fs...)
	if err := m.AddLayer(l); err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{Layer: l, Features: l.Len()}
	res.Extent, _ = l.Extent()
	log.Info().
		Str("layer", l.Name()).
		Str("type", string(typ)).
		Int("features", res.Features).
		Int("renamed", renamed).
		Msg("Features loaded")
	return res, nil
}

// uniqueIDs gives every feature whose identifier repeats an earlier one a
// "<id>_N" identifier, and returns how many were renamed.
func uniqueIDs(fs []*geo.Feature) int {
	seen := make(map[string]bool, len(fs))
	renamed := 0
	for _, f := range fs {
		if f.ID == "" {
			continue
		}
		id := f.ID
		for n := 2; seen[id]; n++ {
			id = fmt.Sprintf("%s_%d", f.ID, n)
		}
		if id != f.ID {
			f.ID = id
			renamed++
		}
		seen[id] = true
	}
	return renamed
}

// LayerTypeFor returns the layer type an imported file is shown as.
func LayerTypeFor(filename string) geo.LayerType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".kml":
		return geo.LayerKML
	case ".geojson", ".json":
		return geo.LayerGeoJSON
	}
	return geo.LayerVector
}

// ExportLayer serializes a layer's features as WGS84 in the given format.
func (m *Map) ExportLayer(name string, format convert.Format, compact bool) (*convert.Bundle, error) {
	l, err := m.Layer(name)
	if err != nil {
		return nil, err
	}
	t, err := m.ToWGS84()
	if err != nil {
		return nil, err
	}
	return convert.Export(l.Name(), l.Features(), format, convert.Options{ToWGS84: t, Compact: compact})
}
