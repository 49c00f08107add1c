// Package homekit publishes bound fixtures as HomeKit colored lightbulbs
// behind a single HAP bridge accessory.
package homekit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"

	"github.com/brutella/hap"
	hapaccessory "github.com/brutella/hap/accessory"
	"github.com/brutella/hap/service"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hapcolor/internal/bridge"
	"github.com/dokzlo13/hapcolor/internal/registry"
)

// HAP status code for a successful read.
const statusSuccess = 0

// ErrServing is returned by Bind once the HAP server has started.
var ErrServing = errors.New("homekit server already running")

// Config describes the HAP bridge accessory.
type Config struct {
	Name         string
	Pin          string
	Port         int
	StoragePath  string
	Manufacturer string
	Firmware     string
}

// Server collects lightbulb accessories and serves them over HAP.
type Server struct {
	cfg    Config
	ctx    context.Context
	bridge *hapaccessory.Bridge

	mu      sync.Mutex
	lights  []*hapaccessory.ColoredLightbulb
	serving bool
}

// New creates a server. ctx bounds the device calls made from HomeKit writes,
// which carry no request context of their own.
func New(ctx context.Context, cfg Config) *Server {
	b := hapaccessory.NewBridge(hapaccessory.Info{
		Name:         cfg.Name,
		Manufacturer: cfg.Manufacturer,
		Model:        "hapcolor",
		Firmware:     cfg.Firmware,
	})
	b.Id = 1

	return &Server{
		cfg:    cfg,
		ctx:    ctx,
		bridge: b,
	}
}

// Bind creates the lightbulb accessory for a binding and wires its four
// characteristics to the binding's bridge. It implements registry.Binder.
func (s *Server) Bind(b *registry.Binding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.serving {
		return ErrServing
	}

	a := hapaccessory.NewColoredLightbulb(hapaccessory.Info{
		Name:         b.Record.DisplayName,
		SerialNumber: b.Record.Context.DeviceID,
		Manufacturer: s.cfg.Manufacturer,
		Model:        modelOf(b),
		Firmware:     s.cfg.Firmware,
	})
	a.Id = b.Record.AccessoryID()

	bulb := a.Lightbulb
	h := handlers{ctx: s.ctx, bridge: b.Bridge, bulb: bulb}

	bulb.On.OnValueRemoteUpdate(h.setOn)
	bulb.On.ValueRequestFunc = h.getOn

	bulb.Hue.OnValueRemoteUpdate(h.setHue)
	bulb.Hue.ValueRequestFunc = h.getHue

	bulb.Saturation.OnValueRemoteUpdate(h.setSaturation)
	bulb.Saturation.ValueRequestFunc = h.getSaturation

	bulb.Brightness.OnValueRemoteUpdate(h.setBrightness)
	bulb.Brightness.ValueRequestFunc = h.getBrightness

	h.sync()

	s.lights = append(s.lights, a)

	log.Info().
		Str("name", b.Record.DisplayName).
		Uint64("aid", a.Id).
		Msg("Accessory bound")
	return nil
}

// Accessories returns the bound lightbulbs.
func (s *Server) Accessories() []*hapaccessory.ColoredLightbulb {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*hapaccessory.ColoredLightbulb, len(s.lights))
	copy(out, s.lights)
	return out
}

// Serve publishes the bridge and all bound lights until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.serving = true
	accs := make([]*hapaccessory.A, 0, len(s.lights))
	for _, l := range s.lights {
		accs = append(accs, l.A)
	}
	s.mu.Unlock()

	server, err := hap.NewServer(hap.NewFsStore(s.cfg.StoragePath), s.bridge.A, accs...)
	if err != nil {
		return fmt.Errorf("failed to create HAP server: %w", err)
	}
	server.Pin = s.cfg.Pin
	if s.cfg.Port > 0 {
		server.Addr = fmt.Sprintf(":%d", s.cfg.Port)
	}

	log.Info().
		Str("name", s.cfg.Name).
		Int("accessories", len(accs)).
		Str("addr", server.Addr).
		Msg("Starting HomeKit server")

	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		return fmt.Errorf("HomeKit server error: %w", err)
	}
	return nil
}

func modelOf(b *registry.Binding) string {
	if b.Device.Model != "" {
		return b.Device.Model
	}
	if b.Record.Context.Model != "" {
		return b.Record.Context.Model
	}
	return "RGB"
}

// handlers adapts one bridge to HAP characteristic callbacks. Reads always
// succeed; the bridge falls back to its shadow when the fixture is away.
//
// hap drops a remote write whose value equals the characteristic's stored
// value, so every callback copies the shadow back into the characteristics.
type handlers struct {
	ctx    context.Context
	bridge *bridge.Bridge
	bulb   *service.ColoredLightbulb
}

func requestContext(fallback context.Context, r *http.Request) context.Context {
	if r != nil {
		return r.Context()
	}
	return fallback
}

// sync stores the shadow into the characteristics. SetValue without a
// request does not fire the remote update callbacks.
func (h handlers) sync() {
	if h.bulb == nil {
		return
	}
	snap := h.bridge.Snapshot()
	h.bulb.On.SetValue(snap.On)
	h.bulb.Hue.SetValue(snap.Hue)
	h.bulb.Saturation.SetValue(snap.Saturation)
	h.bulb.Brightness.SetValue(brightnessLevel(snap.Brightness))
}

func brightnessLevel(v float64) int { return int(math.Round(v)) }

func (h handlers) setOn(v bool) {
	h.bridge.SetPower(h.ctx, v)
	h.sync()
}

func (h handlers) setHue(v float64) {
	h.bridge.SetHue(h.ctx, v)
	h.sync()
}

func (h handlers) setSaturation(v float64) {
	h.bridge.SetSaturation(h.ctx, v)
	h.sync()
}

func (h handlers) setBrightness(v int) {
	h.bridge.SetBrightness(h.ctx, float64(v))
	h.sync()
}

func (h handlers) getOn(r *http.Request) (interface{}, int) {
	v := h.bridge.Power(requestContext(h.ctx, r))
	h.sync()
	return v, statusSuccess
}

// One color read refreshes hue, saturation and brightness in the shadow.
func (h handlers) getHue(r *http.Request) (interface{}, int) {
	v := h.bridge.Hue(requestContext(h.ctx, r))
	h.sync()
	return v, statusSuccess
}

func (h handlers) getSaturation(r *http.Request) (interface{}, int) {
	v := h.bridge.Saturation(requestContext(h.ctx, r))
	h.sync()
	return v, statusSuccess
}

func (h handlers) getBrightness(r *http.Request) (interface{}, int) {
	v := brightnessLevel(h.bridge.Brightness(requestContext(h.ctx, r)))
	h.sync()
	return v, statusSuccess
}
