// Package hue drives Philips Hue color lights through a Hue bridge.
package hue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hapcolor/internal/color"
	"github.com/dokzlo13/hapcolor/internal/fixture"
)

// Hue API ranges.
const (
	maxHue = 65535
	maxSat = 254
	maxBri = 254
)

// Driver exposes the color lights of one Hue bridge as fixtures. A fixture's
// address is the bridge-local light number; its id is the light's unique id.
type Driver struct {
	bridge  *huego.Bridge
	timeout time.Duration
}

// NewDriver creates a driver for the bridge at host using an already
// authorized user. timeout bounds every request; zero means no bound.
func NewDriver(host, user string, timeout time.Duration) *Driver {
	return &Driver{
		bridge:  huego.New(host, user),
		timeout: timeout,
	}
}

// Scan lists the bridge's color-capable lights.
func (d *Driver) Scan(ctx context.Context) ([]fixture.Descriptor, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	lights, err := d.bridge.GetLightsContext(ctx)
	if err != nil {
		return nil, wrap("list lights", err)
	}

	devices := make([]fixture.Descriptor, 0, len(lights))
	for _, l := range lights {
		if !strings.Contains(strings.ToLower(l.Type), "color") {
			log.Debug().Int("light", l.ID).Str("type", l.Type).Msg("Skipping light without color support")
			continue
		}
		id := l.UniqueID
		if id == "" {
			id = "hue-" + strconv.Itoa(l.ID)
		}
		devices = append(devices, fixture.Descriptor{
			ID:      id,
			Address: strconv.Itoa(l.ID),
			Model:   l.ModelID,
		})
	}
	return devices, nil
}

// Open binds a transport to the light number in desc.Address.
func (d *Driver) Open(desc fixture.Descriptor) (fixture.Transport, error) {
	id, err := strconv.Atoi(desc.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid hue light address %q: %w", desc.Address, err)
	}
	return &light{driver: d, id: id}, nil
}

func (d *Driver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.timeout)
}

type light struct {
	driver *Driver
	id     int
}

func (l *light) SendPower(ctx context.Context, on bool) error {
	return l.setState(ctx, huego.State{On: on})
}

// SendColor converts to the bridge's HSB units. Zero hue, saturation and
// brightness are omitted by the state encoder, so each is sent as at least 1.
func (l *light) SendColor(ctx context.Context, c color.RGB) error {
	hsv := color.RGBToHSV(c)
	return l.setState(ctx, huego.State{
		On:  true,
		Hue: uint16(math.Max(1, math.Round(hsv.H/360*maxHue))),
		Sat: uint8(math.Max(1, math.Round(hsv.S/100*maxSat))),
		Bri: uint8(math.Max(1, math.Round(hsv.V/100*maxBri))),
	})
}

func (l *light) QueryState(ctx context.Context) (fixture.State, error) {
	ctx, cancel := l.driver.withTimeout(ctx)
	defer cancel()

	got, err := l.driver.bridge.GetLightContext(ctx, l.id)
	if err != nil {
		return fixture.State{}, wrap("get light", err)
	}
	if got.State == nil {
		return fixture.State{}, fmt.Errorf("light %d reported no state: %w", l.id, fixture.ErrRejected)
	}
	if !got.State.Reachable {
		return fixture.State{}, fmt.Errorf("light %d: %w", l.id, fixture.ErrUnreachable)
	}

	return fixture.State{
		On: got.State.On,
		Color: color.HSVToRGB(color.HSV{
			H: float64(got.State.Hue) / maxHue * 360,
			S: float64(got.State.Sat) / maxSat * 100,
			V: float64(got.State.Bri) / maxBri * 100,
		}),
	}, nil
}

func (l *light) setState(ctx context.Context, st huego.State) error {
	ctx, cancel := l.driver.withTimeout(ctx)
	defer cancel()

	log.Debug().Int("light", l.id).Interface("state", st).Msg("Applying state to light")
	if _, err := l.driver.bridge.SetLightStateContext(ctx, l.id, st); err != nil {
		return wrap(fmt.Sprintf("set light %d", l.id), err)
	}
	return nil
}

// wrap classifies a bridge error: API errors mean the bridge refused the
// request, anything else means it could not be reached.
func wrap(op string, err error) error {
	var apiErr *huego.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w: %v", op, fixture.ErrRejected, err)
	}
	return fmt.Errorf("%s: %w: %v", op, fixture.ErrUnreachable, err)
}
