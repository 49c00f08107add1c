package colormode

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/hapcolor/internal/color"
)

// Script is a color profile written in Lua. The script defines a global
// encode(r, g, b) returning three numbers, and optionally decode(r, g, b).
// Without decode, colors read back from the fixture are passed through.
//
// One LState is not safe for concurrent use, so calls are serialized.
type Script struct {
	mu     sync.Mutex
	L      *lua.LState
	path   string
	closed bool
}

// LoadScript executes the file at path and checks that it defines encode.
func LoadScript(path string) (*Script, error) {
	L := lua.NewState()

	log.Debug().Str("path", path).Msg("Loading color profile")

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to load color profile %s: %w", path, err)
	}
	if _, ok := L.GetGlobal("encode").(*lua.LFunction); !ok {
		L.Close()
		return nil, fmt.Errorf("color profile %s does not define encode(r, g, b)", path)
	}

	return &Script{L: L, path: path}, nil
}

// Name returns "lua:<path>".
func (s *Script) Name() string { return "lua:" + s.path }

// Encode implements Mode.
func (s *Script) Encode(c color.RGB) color.RGB {
	return s.call("encode", c)
}

// Decode implements Mode.
func (s *Script) Decode(c color.RGB) color.RGB {
	return s.call("decode", c)
}

// Close releases the Lua state. Colors pass through unchanged afterwards.
func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.L.Close()
	}
	return nil
}

func (s *Script) call(fn string, c color.RGB) color.RGB {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return c
	}

	f, ok := s.L.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return c
	}

	err := s.L.CallByParam(lua.P{Fn: f, NRet: 3, Protect: true},
		lua.LNumber(c.R), lua.LNumber(c.G), lua.LNumber(c.B))
	if err != nil {
		log.Warn().Err(err).Str("profile", s.path).Str("fn", fn).Msg("Color profile call failed, passing color through")
		return c
	}

	b := s.L.Get(-1)
	g := s.L.Get(-2)
	r := s.L.Get(-3)
	s.L.Pop(3)

	out, ok := toRGB(r, g, b)
	if !ok {
		log.Warn().Str("profile", s.path).Str("fn", fn).Msg("Color profile returned non-numbers, passing color through")
		return c
	}
	return out
}

func toRGB(vals ...lua.LValue) (color.RGB, bool) {
	var ch [3]uint8
	for i, v := range vals {
		n, ok := v.(lua.LNumber)
		if !ok {
			return color.RGB{}, false
		}
		ch[i] = uint8(color.Clamp(float64(n), 0, 255) + 0.5)
	}
	return color.RGB{R: ch[0], G: ch[1], B: ch[2]}, true
}
