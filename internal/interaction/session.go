// Package interaction implements the draw/edit/select state machine that
// decides which layer is being worked on and which feature is active.
package interaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/guadaltel/vectors/internal/emphasis"
	"github.com/guadaltel/vectors/internal/geo"
	"github.com/guadaltel/vectors/internal/style"

	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyLayer is returned when editing is requested on a layer
	// without features. The session is left unchanged.
	ErrEmptyLayer = errors.New("layer has no features to edit")

	// ErrInvalidTransition is returned when an event arrives in a mode
	// where it is not valid. The session is left unchanged.
	ErrInvalidTransition = errors.New("invalid interaction transition")
)

// Mode is the interaction state.
type Mode int

// Interaction modes. Selecting is Editing with a feature selected.
const (
	Idle Mode = iota
	Drawing
	Editing
	Selecting
)

func (m Mode) String() string {
	switch m {
	case Drawing:
		return "drawing"
	case Editing:
		return "editing"
	case Selecting:
		return "selecting"
	}
	return "idle"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Layer is the part of a map layer the session reads and writes.
type Layer interface {
	Name() string
	Len() int
	Feature(id string) (*geo.Feature, bool)
	AddFeatures(fs ...*geo.Feature)
	RemoveFeatures(fs ...*geo.Feature)
}

// Handles are the host's low-level draw, modify and select interactions.
type Handles interface {
	AddDrawInteraction(l Layer)
	RemoveDrawInteraction()
	ActivateSelection(l Layer)
	RemoveEditInteraction()
	RemoveSelectInteraction()
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the clock used to derive identifiers of drawn features.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is one interaction context. It is not safe for concurrent use;
// callers serialize access to it.
type Session struct {
	handles  Handles
	emphasis *emphasis.Engine
	now      func() time.Time
	layer    Layer
	feature  *geo.Feature
	kind     geo.Kind
	params   style.Params
	mode     Mode
}

// NewSession returns an idle session.
func NewSession(h Handles, e *emphasis.Engine, params style.Params, opts ...Option) *Session {
	s := &Session{
		handles:  h,
		emphasis: e,
		params:   params,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the current mode.
func (s *Session) Mode() Mode { return s.mode }

// Layer returns the layer being drawn or edited, or nil when idle.
func (s *Session) Layer() Layer { return s.layer }

// Feature returns the active feature, or nil.
func (s *Session) Feature() *geo.Feature { return s.feature }

// Kind returns the geometry kind of the active feature.
func (s *Session) Kind() geo.Kind { return s.kind }

// Params returns the current style parameters.
func (s *Session) Params() style.Params { return s.params }

// Emphasis returns the highlight engine.
func (s *Session) Emphasis() *emphasis.Engine { return s.emphasis }

// StartDraw enters drawing on l. Starting to draw on the layer already
// being drawn cancels drawing instead.
func (s *Session) StartDraw(l Layer) error {
	if l == nil {
		return fmt.Errorf("%w: no layer", ErrInvalidTransition)
	}
	if s.mode == Drawing && sameLayer(s.layer, l) {
		s.exit()
		log.Debug().Str("layer", l.Name()).Msg("Drawing toggled off")
		return nil
	}

	s.exit()
	s.mode, s.layer = Drawing, l
	s.handles.AddDrawInteraction(l)
	log.Debug().Str("layer", l.Name()).Msg("Drawing started")
	return nil
}

// StartEdit enters editing on l. Starting to edit the layer already being
// edited cancels editing instead. A layer without features is refused with
// ErrEmptyLayer and the current mode is kept.
func (s *Session) StartEdit(l Layer) error {
	if l == nil {
		return fmt.Errorf("%w: no layer", ErrInvalidTransition)
	}
	if s.editing() && sameLayer(s.layer, l) {
		s.exit()
		log.Debug().Str("layer", l.Name()).Msg("Editing toggled off")
		return nil
	}
	if l.Len() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyLayer, l.Name())
	}

	s.exit()
	s.mode, s.layer = Editing, l
	s.handles.ActivateSelection(l)
	log.Debug().Str("layer", l.Name()).Int("features", l.Len()).Msg("Editing started")
	return nil
}

// FeatureSelected makes f the active feature. It is valid while editing.
// The feature's own style becomes the current style parameters.
func (s *Session) FeatureSelected(f *geo.Feature) error {
	if !s.editing() {
		return fmt.Errorf("%w: select while %s", ErrInvalidTransition, s.mode)
	}
	if f == nil {
		return fmt.Errorf("%w: nil feature", ErrInvalidTransition)
	}
	if cur, ok := s.layer.Feature(f.ID); !ok || cur != f {
		return fmt.Errorf("%w: feature %q is not in layer %s", ErrInvalidTransition, f.ID, s.layer.Name())
	}

	if _, err := s.emphasis.Compute(f); err != nil {
		return err
	}
	s.mode = Selecting
	s.feature, s.kind = f, f.Kind()
	if f.Style != nil {
		s.params = style.ParamsOf(f.Style, s.params)
	}
	log.Debug().Str("feature", f.ID).Str("kind", string(s.kind)).Msg("Feature selected")
	return nil
}

// FeatureCreated takes a feature produced by the draw interaction, names
// it after the layer and the current time, styles it and adds it to the
// layer. It is valid while drawing.
func (s *Session) FeatureCreated(f *geo.Feature) error {
	if s.mode != Drawing {
		return fmt.Errorf("%w: create while %s", ErrInvalidTransition, s.mode)
	}
	if f == nil || f.Geometry == nil {
		return fmt.Errorf("%w: drawn feature has no geometry", geo.ErrMalformedGeometry)
	}
	if err := style.Apply(f, s.params); err != nil {
		return err
	}

	f.ID = s.newID()
	if f.Properties == nil {
		f.Properties = map[string]any{}
	}
	s.layer.AddFeatures(f)
	s.feature, s.kind = f, f.Kind()
	if _, err := s.emphasis.Compute(f); err != nil {
		return err
	}
	log.Debug().Str("feature", f.ID).Str("kind", string(s.kind)).Msg("Feature created")
	return nil
}

// FeatureModified re-applies the current style to the active feature,
// which the modify interaction may have reset, and refreshes the highlight.
func (s *Session) FeatureModified() error {
	if s.mode != Selecting || s.feature == nil {
		return fmt.Errorf("%w: modify while %s", ErrInvalidTransition, s.mode)
	}
	if err := style.Apply(s.feature, s.params); err != nil {
		return err
	}
	s.kind = s.feature.Kind()
	_, err := s.emphasis.Compute(s.feature)
	return err
}

// DeleteActiveFeature removes the active feature from its layer. While
// editing, a layer left empty ends editing.
func (s *Session) DeleteActiveFeature() error {
	if s.feature == nil {
		return fmt.Errorf("%w: no active feature", ErrInvalidTransition)
	}

	f := s.feature
	s.layer.RemoveFeatures(f)
	s.feature, s.kind = nil, ""
	s.emphasis.Clear()
	log.Debug().Str("feature", f.ID).Msg("Feature deleted")

	if !s.editing() {
		return nil
	}
	l := s.layer
	s.release()
	if l.Len() == 0 {
		s.mode, s.layer = Idle, nil
		log.Warn().Str("layer", l.Name()).Msg("Layer has no features left, editing stopped")
		return nil
	}
	s.mode = Editing
	s.handles.ActivateSelection(l)
	return nil
}

// SetParams changes color and thickness, keeping the dash preset, and
// restyles the active feature.
func (s *Session) SetParams(color string, thickness float64) error {
	next := s.params
	next.Color, next.Thickness = color, thickness
	return s.restyle(next)
}

// SelectDash toggles a dash preset and restyles the active feature.
func (s *Session) SelectDash(d style.Dash) error {
	next := s.params
	next.SelectDash(d)
	return s.restyle(next)
}

// Reset clears the active feature and highlight, releases every low-level
// interaction and returns to Idle.
func (s *Session) Reset() {
	s.exit()
	log.Debug().Msg("Interactions reset")
}

func (s *Session) restyle(next style.Params) error {
	if s.feature != nil {
		if err := style.Apply(s.feature, next); err != nil {
			return err
		}
	}
	s.params = next
	return nil
}

func (s *Session) exit() {
	s.feature, s.kind = nil, ""
	s.emphasis.Clear()
	s.release()
	s.mode, s.layer = Idle, nil
}

func (s *Session) release() {
	s.handles.RemoveDrawInteraction()
	s.handles.RemoveEditInteraction()
	s.handles.RemoveSelectInteraction()
}

func (s *Session) editing() bool {
	return s.mode == Editing || s.mode == Selecting
}

func (s *Session) newID() string {
	ms := s.now().UnixMilli()
	for {
		id := fmt.Sprintf("%s.%d", s.layer.Name(), ms)
		if _, taken := s.layer.Feature(id); !taken {
			return id
		}
		ms++
	}
}

func sameLayer(a, b Layer) bool {
	return a != nil && b != nil && a.Name() == b.Name()
}
