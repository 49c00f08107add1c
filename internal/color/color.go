// Package color converts between the HSV space HomeKit speaks and the RGB
// triples fixtures accept.
package color

import "math"

// RGB is an 8-bit per channel color as sent to a fixture.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// HSV is a color in HomeKit units: hue in degrees [0,360),
// saturation and value in percent [0,100].
type HSV struct {
	H float64 `json:"h"`
	S float64 `json:"s"`
	V float64 `json:"v"`
}

// HSVToRGB converts h∈[0,360), s∈[0,100], v∈[0,100] to a rounded RGB triple.
// Out of range inputs are normalized first.
func HSVToRGB(c HSV) RGB {
	h := NormalizeHue(c.H) / 60
	s := Clamp(c.S, 0, 100) / 100
	v := Clamp(c.V, 0, 100) / 100

	sector := math.Floor(h)
	f := h - sector
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	var r, g, b float64
	switch int(sector) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}

	return RGB{R: channel(r), G: channel(g), B: channel(b)}
}

// RGBToHSV converts an RGB triple to HSV rounded to whole units.
// Hue is 0 for greys, saturation is 0 for black.
func RGBToHSV(c RGB) HSV {
	r := float64(c.R) / 255
	g := float64(c.G) / 255
	b := float64(c.B) / 255

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	delta := maxC - minC

	var h, s float64
	if delta > 0 {
		s = delta / maxC
		switch maxC {
		case r:
			h = (g - b) / delta
		case g:
			h = 2 + (b-r)/delta
		default:
			h = 4 + (r-g)/delta
		}
		h *= 60
	}

	return HSV{
		H: NormalizeHue(math.Round(h)),
		S: math.Round(s * 100),
		V: math.Round(maxC * 100),
	}
}

// NormalizeHue wraps any angle into [0,360).
func NormalizeHue(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0
	}
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// Clamp limits v to [lo,hi]. NaN clamps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func channel(x float64) uint8 {
	return uint8(math.Round(Clamp(x*255, 0, 255)))
}
