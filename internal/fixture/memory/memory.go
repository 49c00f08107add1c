// Package memory provides simulated fixtures that live in process memory.
// It backs the "memory" driver and doubles as a test fixture.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dokzlo13/hapcolor/internal/color"
	"github.com/dokzlo13/hapcolor/internal/fixture"
)

// Command records one call received by a simulated fixture.
type Command struct {
	Kind  string // "power" or "color"
	On    bool
	Color color.RGB
}

// Fixture is a simulated light. The zero value is an unreachable-free fixture
// that is off and dark.
type Fixture struct {
	mu       sync.Mutex
	state    fixture.State
	failing  bool
	commands []Command
	queries  int
}

// SetState replaces the fixture's reported state, as if changed by someone
// else (the vendor app, a wall switch).
func (f *Fixture) SetState(s fixture.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

// SetFailing makes every subsequent call fail with fixture.ErrUnreachable.
func (f *Fixture) SetFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

// Commands returns a copy of all commands accepted so far.
func (f *Fixture) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.commands))
	copy(out, f.commands)
	return out
}

// Queries returns how many state queries the fixture has answered.
func (f *Fixture) Queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

// SendPower implements fixture.Transport.
func (f *Fixture) SendPower(ctx context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return fmt.Errorf("send power: %w", fixture.ErrUnreachable)
	}
	f.state.On = on
	f.commands = append(f.commands, Command{Kind: "power", On: on})
	return nil
}

// SendColor implements fixture.Transport.
func (f *Fixture) SendColor(ctx context.Context, c color.RGB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return fmt.Errorf("send color: %w", fixture.ErrUnreachable)
	}
	f.state.Color = c
	f.commands = append(f.commands, Command{Kind: "color", Color: c})
	return nil
}

// QueryState implements fixture.Transport.
func (f *Fixture) QueryState(ctx context.Context) (fixture.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return fixture.State{}, fmt.Errorf("query state: %w", fixture.ErrUnreachable)
	}
	f.queries++
	return f.state, nil
}

// Driver is a set of simulated fixtures keyed by address.
type Driver struct {
	mu       sync.Mutex
	devices  []fixture.Descriptor
	fixtures map[string]*Fixture
}

// NewDriver creates a driver whose scan reports the given devices.
func NewDriver(devices ...fixture.Descriptor) *Driver {
	d := &Driver{fixtures: make(map[string]*Fixture)}
	for _, dev := range devices {
		d.Add(dev)
	}
	return d
}

// Add makes a device visible to Scan.
func (d *Driver) Add(dev fixture.Descriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = append(d.devices, dev)
}

// Scan implements fixture.Scanner.
func (d *Driver) Scan(ctx context.Context) ([]fixture.Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]fixture.Descriptor, len(d.devices))
	copy(out, d.devices)
	return out, nil
}

// Open implements fixture.Driver. Every address maps to one Fixture, created
// on first use.
func (d *Driver) Open(desc fixture.Descriptor) (fixture.Transport, error) {
	if desc.Address == "" {
		return nil, fmt.Errorf("device %q has no address", desc.ID)
	}
	return d.Fixture(desc.Address), nil
}

// Fixture returns the simulated fixture at address, creating it if needed.
func (d *Driver) Fixture(address string) *Fixture {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fixtures[address]
	if !ok {
		f = &Fixture{}
		d.fixtures[address] = f
	}
	return f
}
