package fixture_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/hapcolor/internal/color"
	"github.com/dokzlo13/hapcolor/internal/fixture"
	"github.com/dokzlo13/hapcolor/internal/fixture/memory"
)

func TestNewLimitedDriver_DisabledReturnsSame(t *testing.T) {
	d := memory.NewDriver()
	assert.Same(t, d, fixture.NewLimitedDriver(d, 0))
}

func TestLimitedDriver_ForwardsCommands(t *testing.T) {
	d := memory.NewDriver()
	limited := fixture.NewLimitedDriver(d, 100)

	tr, err := limited.Open(fixture.Descriptor{ID: "a", Address: "10.0.0.5"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, tr.SendPower(ctx, true))
	require.NoError(t, tr.SendColor(ctx, color.RGB{R: 1, G: 2, B: 3}))

	st, err := tr.QueryState(ctx)
	require.NoError(t, err)
	assert.True(t, st.On)
	assert.Equal(t, color.RGB{R: 1, G: 2, B: 3}, st.Color)
	assert.Len(t, d.Fixture("10.0.0.5").Commands(), 2)
}

func TestLimitedDriver_WaitHonoursContext(t *testing.T) {
	limited := fixture.NewLimitedDriver(memory.NewDriver(), 0.5)
	tr, err := limited.Open(fixture.Descriptor{ID: "a", Address: "x"})
	require.NoError(t, err)

	// First call consumes the single burst token.
	require.NoError(t, tr.SendPower(context.Background(), true))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, tr.SendPower(ctx, false))
}

func TestLimitedDriver_OpenError(t *testing.T) {
	limited := fixture.NewLimitedDriver(memory.NewDriver(), 10)
	_, err := limited.Open(fixture.Descriptor{ID: "no-address"})
	assert.Error(t, err)
}
