package loader

import (
	"context"

	"github.com/guadaltel/vectors/internal/config"
	"github.com/guadaltel/vectors/internal/convert"
	"github.com/guadaltel/vectors/internal/geo"
	"github.com/guadaltel/vectors/internal/workspace"

	"github.com/rs/zerolog/log"
)

// LoadLayer creates a configured startup layer on m. Inline GeoJSON takes
// priority over a file; with neither, an empty vector layer is created.
func (l *Loader) LoadLayer(ctx context.Context, m *workspace.Map, cfg config.Layer) (*geo.Layer, error) {
	var (
		layer *geo.Layer
		err   error
	)

	switch {
	case cfg.Inline != nil:
		log.Info().
			Str("layer", cfg.Name).
			Msg("Using inline GeoJSON data from config")
		layer, err = loadFeatures(m, cfg.Name, geo.LayerGeoJSON, cfg.Inline.ToFeatures())

	case cfg.File != "":
		log.Info().
			Str("layer", cfg.Name).
			Str("source", cfg.File).
			Msg("Loading layer from file")
		layer, err = l.loadFile(ctx, m, cfg)

	default:
		layer = geo.NewLayer(cfg.Name, geo.LayerVector)
		err = m.AddLayer(layer)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Geometry != "" {
		kind, err := geo.ParseKind(cfg.Geometry)
		if err != nil {
			return nil, err
		}
		layer.SetGeometryKind(kind)
	}
	if cfg.Legend != "" {
		if err := m.SetLegend(layer.Name(), cfg.Legend); err != nil {
			return nil, err
		}
	}
	return layer, nil
}

func (l *Loader) loadFile(ctx context.Context, m *workspace.Map, cfg config.Layer) (*geo.Layer, error) {
	f, err := l.ChangeFile(ctx, cfg.File)
	if err != nil {
		return nil, err
	}
	fs, err := convert.Import(f.Name, f.Data)
	if err != nil {
		return nil, err
	}
	if len(fs) == 0 {
		log.Warn().Str("layer", cfg.Name).Str("file", f.Name).Msg("No geometries found in file")
	}
	return loadFeatures(m, cfg.Name, workspace.LayerTypeFor(f.Name), fs)
}

func loadFeatures(m *workspace.Map, name string, typ geo.LayerType, fs []*geo.Feature) (*geo.Layer, error) {
	res, err := m.LoadFeatures(name, typ, fs)
	if err != nil {
		return nil, err
	}
	return res.Layer, nil
}
