package colormode

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/hapcolor/internal/color"
)

func TestPermutations(t *testing.T) {
	in := color.RGB{R: 10, G: 20, B: 30}

	tests := []struct {
		mode string
		want color.RGB
	}{
		{"rgb", color.RGB{R: 10, G: 20, B: 30}},
		{"rbg", color.RGB{R: 10, G: 30, B: 20}},
		{"grb", color.RGB{R: 20, G: 10, B: 30}},
		{"gbr", color.RGB{R: 20, G: 30, B: 10}},
		{"brg", color.RGB{R: 30, G: 10, B: 20}},
		{"bgr", color.RGB{R: 30, G: 20, B: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			m, err := Resolve(tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.mode, m.Name())
			assert.Equal(t, tt.want, m.Encode(in))
			assert.Equal(t, in, m.Decode(m.Encode(in)))
		})
	}
	assert.Len(t, Permutations(), len(tests))
}

func TestResolve(t *testing.T) {
	m, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, Default, m.Name())

	m, err = Resolve(" GRB ")
	require.NoError(t, err)
	assert.Equal(t, "grb", m.Name())

	_, err = Resolve("rgbw")
	assert.Error(t, err)

	_, err = Resolve("lua:/does/not/exist.lua")
	assert.Error(t, err)
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.lua")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestScript_EncodeDecode(t *testing.T) {
	path := writeScript(t, `
function encode(r, g, b)
  return b, r, g * 2
end
function decode(r, g, b)
  return g, b / 2, r
end
`)
	m, err := Resolve("lua:" + path)
	require.NoError(t, err)
	s := m.(*Script)
	defer s.Close()

	assert.Equal(t, "lua:"+path, s.Name())
	in := color.RGB{R: 1, G: 100, B: 3}
	enc := s.Encode(in)
	assert.Equal(t, color.RGB{R: 3, G: 1, B: 200}, enc)
	assert.Equal(t, in, s.Decode(enc))

	// Out of range results are clamped.
	assert.Equal(t, color.RGB{R: 0, G: 0, B: 255}, s.Encode(color.RGB{G: 200}))
}

func TestScript_NoDecodePassesThrough(t *testing.T) {
	s, err := LoadScript(writeScript(t, `function encode(r, g, b) return g, r, b end`))
	require.NoError(t, err)
	defer s.Close()

	in := color.RGB{R: 5, G: 6, B: 7}
	assert.Equal(t, in, s.Decode(in))
	assert.Equal(t, color.RGB{R: 6, G: 5, B: 7}, s.Encode(in))
}

func TestScript_ErrorsPassThrough(t *testing.T) {
	s, err := LoadScript(writeScript(t, `
function encode(r, g, b) error("boom") end
function decode(r, g, b) return "x", g, b end
`))
	require.NoError(t, err)
	defer s.Close()

	in := color.RGB{R: 5, G: 6, B: 7}
	assert.Equal(t, in, s.Encode(in))
	assert.Equal(t, in, s.Decode(in))
}

func TestLoadScript_RequiresEncode(t *testing.T) {
	_, err := LoadScript(writeScript(t, `function decode(r, g, b) return r, g, b end`))
	assert.Error(t, err)

	_, err = LoadScript(writeScript(t, `this is not lua`))
	assert.Error(t, err)
}

func TestScript_Close(t *testing.T) {
	s, err := LoadScript(writeScript(t, `function encode(r, g, b) return g, r, b end`))
	require.NoError(t, err)

	var c io.Closer = s
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "closing twice is fine")

	in := color.RGB{R: 5, G: 6, B: 7}
	assert.Equal(t, in, s.Encode(in))
}
