// Package fixture defines the narrow capabilities the bridge and registry
// consume from a fixture driver: per-fixture transport and network scan.
package fixture

import (
	"context"
	"errors"

	"github.com/dokzlo13/hapcolor/internal/color"
)

// Transport failures. Drivers wrap their underlying errors with one of these
// so callers can classify them with errors.Is.
var (
	// ErrUnreachable indicates the fixture could not be contacted
	ErrUnreachable = errors.New("fixture unreachable")

	// ErrRejected indicates the fixture answered but refused the command
	ErrRejected = errors.New("command rejected")
)

// Descriptor identifies a controllable fixture as found by a scan or listed
// in static configuration. It is transient: only ID is stable across runs.
type Descriptor struct {
	ID        string `yaml:"id" json:"id"`
	Address   string `yaml:"address" json:"address"`
	Model     string `yaml:"model" json:"model"`
	ColorMode string `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// State is what a fixture reports about itself.
type State struct {
	On    bool      `json:"on"`
	Color color.RGB `json:"color"`
}

// Transport controls one physical fixture.
type Transport interface {
	// SendPower switches the fixture on or off
	SendPower(ctx context.Context, on bool) error

	// SendColor sets the fixture output color
	SendColor(ctx context.Context, c color.RGB) error

	// QueryState reads the fixture's current power and color
	QueryState(ctx context.Context) (State, error)
}

// Scanner finds fixtures on the network.
type Scanner interface {
	// Scan returns the fixtures currently visible. It should honour ctx
	// cancellation; an empty result is not an error.
	Scan(ctx context.Context) ([]Descriptor, error)
}

// Driver is a family of fixtures that can be scanned for and opened.
type Driver interface {
	Scanner

	// Open returns a transport bound to the descriptor's address
	Open(d Descriptor) (Transport, error)
}
