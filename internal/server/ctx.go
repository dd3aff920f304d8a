package server

import (
	"sync"

	"github.com/guadaltel/vectors/internal/config"
	"github.com/guadaltel/vectors/internal/emphasis"
	"github.com/guadaltel/vectors/internal/interaction"
	"github.com/guadaltel/vectors/internal/loader"
	"github.com/guadaltel/vectors/internal/workspace"

	"github.com/rs/zerolog/log"
)

// ServerContext holds dependencies for request handlers. Handlers run one
// at a time under mu, so the map and the session see a single sequence of
// events.
type ServerContext struct {
	mu sync.Mutex

	Map     *workspace.Map
	Session *interaction.Session
	Loader  *loader.Loader
	handles *mapHandles

	// CompactExport is the default for exports without a compact parameter.
	CompactExport bool
}

// NewServerContext wires a session to the map. The highlight layer is added
// on top of the map layers.
func NewServerContext(cfg *config.Config, m *workspace.Map, ld *loader.Loader, opts ...interaction.Option) (*ServerContext, error) {
	e := emphasis.New()
	if err := m.AddLayer(e.Layer()); err != nil {
		return nil, err
	}

	h := &mapHandles{}
	s := &ServerContext{
		Map:           m,
		Session:       interaction.NewSession(h, e, cfg.Style, opts...),
		Loader:        ld,
		handles:       h,
		CompactExport: cfg.CompactExport,
	}

	log.Info().
		Str("crs", m.CRS()).
		Int("layers", len(m.Layers())).
		Int("editable_layers", len(m.EditableLayers())).
		Msg("Server context initialized successfully")
	return s, nil
}
