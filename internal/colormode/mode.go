// Package colormode maps the RGB color a bridge computes onto the channel
// layout a particular fixture expects.
package colormode

import (
	"fmt"
	"strings"

	"github.com/dokzlo13/hapcolor/internal/color"
)

// Default is the mode used when nothing is configured for a fixture.
const Default = "rgb"

// Mode converts between logical RGB and the fixture's wire channels.
// Decode must invert Encode.
type Mode interface {
	Name() string
	Encode(c color.RGB) color.RGB
	Decode(c color.RGB) color.RGB
}

// permutation reorders channels. order[i] names which logical channel
// (0=R, 1=G, 2=B) is sent in wire position i.
type permutation struct {
	name  string
	order [3]int
}

var permutations = map[string]permutation{
	"rgb": {"rgb", [3]int{0, 1, 2}},
	"rbg": {"rbg", [3]int{0, 2, 1}},
	"grb": {"grb", [3]int{1, 0, 2}},
	"gbr": {"gbr", [3]int{1, 2, 0}},
	"brg": {"brg", [3]int{2, 0, 1}},
	"bgr": {"bgr", [3]int{2, 1, 0}},
}

func (p permutation) Name() string { return p.name }

func (p permutation) Encode(c color.RGB) color.RGB {
	in := [3]uint8{c.R, c.G, c.B}
	return color.RGB{R: in[p.order[0]], G: in[p.order[1]], B: in[p.order[2]]}
}

func (p permutation) Decode(c color.RGB) color.RGB {
	wire := [3]uint8{c.R, c.G, c.B}
	var out [3]uint8
	for i, src := range p.order {
		out[src] = wire[i]
	}
	return color.RGB{R: out[0], G: out[1], B: out[2]}
}

// RGB returns the identity mode.
func RGB() Mode { return permutations["rgb"] }

// Permutations lists the names of the built-in channel orders.
func Permutations() []string {
	return []string{"rgb", "rbg", "grb", "gbr", "brg", "bgr"}
}

// Resolve parses a mode string. Accepted forms are a permutation name
// ("rgb", "grb", ...) or "lua:<path>" for a scripted profile. An empty
// string resolves to the default.
func Resolve(name string) (Mode, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RGB(), nil
	}
	if path, ok := strings.CutPrefix(name, "lua:"); ok {
		return LoadScript(path)
	}
	if p, ok := permutations[strings.ToLower(name)]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("unknown color mode %q", name)
}
