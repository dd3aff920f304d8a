package server

import (
	"github.com/guadaltel/vectors/internal/interaction"

	"github.com/rs/zerolog/log"
)

// mapHandles stands in for the client's low-level draw, modify and select
// interactions. It records which layer each one is bound to so clients can
// mirror it.
type mapHandles struct {
	draw   string
	modify string
	sel    string
}

func (h *mapHandles) AddDrawInteraction(l interaction.Layer) {
	h.draw = l.Name()
	log.Trace().Str("layer", h.draw).Msg("Draw interaction added")
}

func (h *mapHandles) RemoveDrawInteraction() { h.draw = "" }

// ActivateSelection binds selection and modification together, as the
// modify interaction only acts on selected features.
func (h *mapHandles) ActivateSelection(l interaction.Layer) {
	h.sel, h.modify = l.Name(), l.Name()
	log.Trace().Str("layer", h.sel).Msg("Select interaction added")
}

func (h *mapHandles) RemoveEditInteraction() { h.modify = "" }

func (h *mapHandles) RemoveSelectInteraction() { h.sel = "" }
