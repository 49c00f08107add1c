// Package bridge keeps the shadow state of one fixture and turns HomeKit
// characteristic reads and writes into fixture commands.
//
// Power, hue, saturation and brightness arrive as independent requests but
// map onto a single color command, so every write recombines the full shadow
// and every read refreshes all three color fields from one device query.
// Transport failures never reach the caller: writes are acknowledged and
// reads fall back to the last known value.
package bridge

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hapcolor/internal/color"
	"github.com/dokzlo13/hapcolor/internal/colormode"
	"github.com/dokzlo13/hapcolor/internal/fixture"
)

// State is the bridge's belief about its fixture. Hue is in degrees
// [0,360), Saturation and Brightness in percent [0,100].
type State struct {
	On         bool    `json:"on"`
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Brightness float64 `json:"brightness"`
}

// DefaultState is the shadow a new bridge starts with.
func DefaultState() State {
	return State{On: false, Hue: 0, Saturation: 0, Brightness: 100}
}

// HSV returns the color part of the state.
func (s State) HSV() color.HSV {
	return color.HSV{H: s.Hue, S: s.Saturation, V: s.Brightness}
}

// Bridge owns the shadow state of one fixture.
type Bridge struct {
	id        string
	transport fixture.Transport
	mode      colormode.Mode
	logger    zerolog.Logger

	mu    sync.Mutex
	state State
}

// New creates a bridge for the fixture id talking through transport.
// A nil mode means plain RGB.
func New(id string, transport fixture.Transport, mode colormode.Mode) *Bridge {
	if mode == nil {
		mode = colormode.RGB()
	}
	return &Bridge{
		id:        id,
		transport: transport,
		mode:      mode,
		logger:    log.With().Str("fixture", id).Logger(),
		state:     DefaultState(),
	}
}

// ID returns the fixture id the bridge is bound to.
func (b *Bridge) ID() string { return b.id }

// Mode returns the color mode used for commands.
func (b *Bridge) Mode() colormode.Mode { return b.mode }

// Snapshot returns the current shadow without touching the device.
func (b *Bridge) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetPower switches the fixture. Turning on also resends the cached color,
// since many fixtures come back with their own default color.
func (b *Bridge) SetPower(ctx context.Context, on bool) {
	b.mu.Lock()
	changed := b.state.On != on
	b.state.On = on
	snap := b.state
	b.mu.Unlock()

	if !changed {
		return
	}

	if err := b.transport.SendPower(ctx, on); err != nil {
		b.logger.Warn().Err(err).Bool("on", on).Msg("Failed to send power command")
	}
	if on {
		b.sendColor(ctx, snap)
	}
}

// Power queries the fixture's power state. On failure the cached value is
// returned.
func (b *Bridge) Power(ctx context.Context) bool {
	st, err := b.transport.QueryState(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to query power state, using cached value")
		return b.state.On
	}
	b.state.On = st.On
	return b.state.On
}

// SetHue sets the hue in degrees. Values wrap modulo 360.
func (b *Bridge) SetHue(ctx context.Context, v float64) {
	b.update(ctx, func(s *State) { s.Hue = color.NormalizeHue(v) })
}

// SetSaturation sets the saturation in percent.
func (b *Bridge) SetSaturation(ctx context.Context, v float64) {
	b.update(ctx, func(s *State) { s.Saturation = color.Clamp(v, 0, 100) })
}

// SetBrightness sets the brightness in percent.
func (b *Bridge) SetBrightness(ctx context.Context, v float64) {
	b.update(ctx, func(s *State) { s.Brightness = color.Clamp(v, 0, 100) })
}

// Hue reads the fixture color and returns its hue.
func (b *Bridge) Hue(ctx context.Context) float64 {
	return b.refresh(ctx).Hue
}

// Saturation reads the fixture color and returns its saturation.
func (b *Bridge) Saturation(ctx context.Context) float64 {
	return b.refresh(ctx).Saturation
}

// Brightness reads the fixture color and returns its brightness.
func (b *Bridge) Brightness(ctx context.Context) float64 {
	return b.refresh(ctx).Brightness
}

// update applies fn to the shadow and, if the fixture is on, sends the color
// computed from the whole resulting shadow.
func (b *Bridge) update(ctx context.Context, fn func(*State)) {
	b.mu.Lock()
	fn(&b.state)
	snap := b.state
	b.mu.Unlock()

	if !snap.On {
		b.logger.Debug().Interface("state", snap).Msg("Fixture off, color cached")
		return
	}
	b.sendColor(ctx, snap)
}

// refresh queries the fixture once and overwrites all three color fields.
func (b *Bridge) refresh(ctx context.Context) State {
	st, err := b.transport.QueryState(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to query color, using cached value")
		return b.state
	}

	hsv := color.RGBToHSV(b.mode.Decode(st.Color))
	b.state.Hue = hsv.H
	b.state.Saturation = hsv.S
	b.state.Brightness = hsv.V
	return b.state
}

func (b *Bridge) sendColor(ctx context.Context, s State) {
	rgb := color.HSVToRGB(s.HSV())
	if err := b.transport.SendColor(ctx, b.mode.Encode(rgb)); err != nil {
		b.logger.Warn().Err(err).Interface("rgb", rgb).Msg("Failed to send color command")
		return
	}
	b.logger.Debug().Interface("hsv", s.HSV()).Interface("rgb", rgb).Msg("Color sent")
}
