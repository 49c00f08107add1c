package bridge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/dokzlo13/hapcolor/internal/color"
	"github.com/dokzlo13/hapcolor/internal/colormode"
	"github.com/dokzlo13/hapcolor/internal/fixture"
	"github.com/dokzlo13/hapcolor/internal/fixture/memory"
)

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) SendPower(ctx context.Context, on bool) error {
	return m.Called(on).Error(0)
}

func (m *mockTransport) SendColor(ctx context.Context, c color.RGB) error {
	return m.Called(c).Error(0)
}

func (m *mockTransport) QueryState(ctx context.Context) (fixture.State, error) {
	args := m.Called()
	return args.Get(0).(fixture.State), args.Error(1)
}

// on returns a bridge whose shadow is already on, without sending anything.
func on(tr fixture.Transport) *Bridge {
	b := New("dev", tr, nil)
	b.state.On = true
	return b
}

func TestNew_DefaultState(t *testing.T) {
	b := New("dev", &mockTransport{}, nil)
	assert.Equal(t, State{On: false, Hue: 0, Saturation: 0, Brightness: 100}, b.Snapshot())
	assert.Equal(t, colormode.Default, b.Mode().Name())
	assert.Equal(t, "dev", b.ID())
}

func TestSetHue_Idempotent(t *testing.T) {
	tr := &mockTransport{}
	b := on(tr)
	want := color.HSVToRGB(color.HSV{H: 200, S: 0, V: 100})
	tr.On("SendColor", want).Return(nil).Twice()

	ctx := context.Background()
	b.SetHue(ctx, 200)
	first := b.Snapshot()
	b.SetHue(ctx, 200)

	assert.Equal(t, first, b.Snapshot())
	assert.Equal(t, 200.0, b.Snapshot().Hue)
	tr.AssertNumberOfCalls(t, "SendColor", 2)
}

func TestSetBrightness_UsesCurrentHueAndSaturation(t *testing.T) {
	tr := &mockTransport{}
	b := on(tr)
	tr.On("SendColor", mock.Anything).Return(nil)

	ctx := context.Background()
	b.SetHue(ctx, 240)
	b.SetSaturation(ctx, 60)
	b.SetBrightness(ctx, 40)

	last := tr.Calls[len(tr.Calls)-1]
	assert.Equal(t, color.HSVToRGB(color.HSV{H: 240, S: 60, V: 40}), last.Arguments.Get(0))
	tr.AssertNumberOfCalls(t, "SendColor", 3)
}

func TestSet_WhileOffSendsNothing(t *testing.T) {
	tr := &mockTransport{}
	b := New("dev", tr, nil)

	ctx := context.Background()
	b.SetHue(ctx, 30)
	b.SetSaturation(ctx, 70)
	b.SetBrightness(ctx, 20)

	tr.AssertNotCalled(t, "SendColor", mock.Anything)
	assert.Equal(t, State{On: false, Hue: 30, Saturation: 70, Brightness: 20}, b.Snapshot())
}

func TestSetPower_RestoresColor(t *testing.T) {
	tr := &mockTransport{}
	b := New("dev", tr, nil)
	tr.On("SendPower", mock.Anything).Return(nil)
	tr.On("SendColor", mock.Anything).Return(nil)

	ctx := context.Background()
	b.SetPower(ctx, true)
	b.SetHue(ctx, 120)
	b.SetSaturation(ctx, 50)
	b.SetPower(ctx, false)
	b.SetPower(ctx, true)

	n := len(tr.Calls)
	assert.Equal(t, "SendPower", tr.Calls[n-2].Method)
	assert.Equal(t, true, tr.Calls[n-2].Arguments.Get(0))
	assert.Equal(t, "SendColor", tr.Calls[n-1].Method)
	assert.Equal(t, color.HSVToRGB(color.HSV{H: 120, S: 50, V: 100}), tr.Calls[n-1].Arguments.Get(0))
	assert.Equal(t, color.RGB{R: 128, G: 255, B: 128}, tr.Calls[n-1].Arguments.Get(0))
}

func TestSetPower_UnchangedSendsNothing(t *testing.T) {
	tr := &mockTransport{}
	b := New("dev", tr, nil)

	b.SetPower(context.Background(), false)

	tr.AssertNotCalled(t, "SendPower", mock.Anything)
	assert.False(t, b.Snapshot().On)
}

func TestSetPower_OffDoesNotSendColor(t *testing.T) {
	tr := &mockTransport{}
	b := on(tr)
	tr.On("SendPower", false).Return(nil).Once()

	b.SetPower(context.Background(), false)

	tr.AssertExpectations(t)
	tr.AssertNotCalled(t, "SendColor", mock.Anything)
}

func TestGet_RefreshesAllColorFields(t *testing.T) {
	tr := &mockTransport{}
	b := New("dev", tr, nil)
	tr.On("QueryState").Return(fixture.State{On: true, Color: color.RGB{R: 128, G: 255, B: 128}}, nil).Once()

	ctx := context.Background()
	assert.Equal(t, 120.0, b.Hue(ctx))

	// Saturation and brightness came from the same query.
	snap := b.Snapshot()
	assert.Equal(t, 50.0, snap.Saturation)
	assert.Equal(t, 100.0, snap.Brightness)
	assert.False(t, snap.On, "color reads leave power alone")
	tr.AssertNumberOfCalls(t, "QueryState", 1)
}

func TestGet_OneQueryPerColorRead(t *testing.T) {
	sim := &memory.Fixture{}
	sim.SetState(fixture.State{Color: color.RGB{R: 0, G: 0, B: 102}})
	b := New("dev", sim, nil)
	ctx := context.Background()

	assert.Equal(t, 240.0, b.Hue(ctx))
	assert.Equal(t, 1, sim.Queries())

	snap := b.Snapshot()
	assert.Equal(t, 100.0, snap.Saturation)
	assert.Equal(t, 40.0, snap.Brightness)
	assert.Equal(t, 1, sim.Queries(), "snapshots never reach the fixture")
}

func TestGet_EachComponent(t *testing.T) {
	tr := &mockTransport{}
	b := New("dev", tr, nil)
	tr.On("QueryState").Return(fixture.State{Color: color.RGB{R: 0, G: 0, B: 102}}, nil)

	ctx := context.Background()
	assert.Equal(t, 240.0, b.Hue(ctx))
	assert.Equal(t, 100.0, b.Saturation(ctx))
	assert.Equal(t, 40.0, b.Brightness(ctx))
}

func TestPower_OverwritesCache(t *testing.T) {
	tr := &mockTransport{}
	b := New("dev", tr, nil)
	tr.On("QueryState").Return(fixture.State{On: true}, nil).Once()

	assert.True(t, b.Power(context.Background()))
	assert.True(t, b.Snapshot().On)
}

func TestTransportFailure_Absorbed(t *testing.T) {
	sim := &memory.Fixture{}
	b := New("dev", sim, nil)
	ctx := context.Background()

	b.SetPower(ctx, true)
	b.SetHue(ctx, 90)
	b.SetSaturation(ctx, 40)
	b.SetBrightness(ctx, 80)
	known := b.Snapshot()

	sim.SetFailing(true)

	assert.Equal(t, known.On, b.Power(ctx))
	assert.Equal(t, known.Hue, b.Hue(ctx))
	assert.Equal(t, known.Saturation, b.Saturation(ctx))
	assert.Equal(t, known.Brightness, b.Brightness(ctx))
	assert.Equal(t, known, b.Snapshot())

	// Writes still land in the shadow.
	b.SetHue(ctx, 10)
	b.SetPower(ctx, false)
	assert.Equal(t, State{On: false, Hue: 10, Saturation: 40, Brightness: 80}, b.Snapshot())
}

func TestMode_EncodesAndDecodes(t *testing.T) {
	sim := &memory.Fixture{}
	grb, err := colormode.Resolve("grb")
	assert.NoError(t, err)
	b := New("dev", sim, grb)
	ctx := context.Background()

	b.SetPower(ctx, true)
	b.SetSaturation(ctx, 100) // hue 0: pure red

	cmds := sim.Commands()
	last := cmds[len(cmds)-1]
	assert.Equal(t, color.RGB{R: 0, G: 255, B: 0}, last.Color, "red lands on the green wire channel")

	// Reading back decodes to the logical color.
	assert.Equal(t, 0.0, b.Hue(ctx))
	assert.Equal(t, 100.0, b.Saturation(ctx))
}

func TestConcurrentAccess(t *testing.T) {
	sim := &memory.Fixture{}
	b := New("dev", sim, nil)
	ctx := context.Background()
	b.SetPower(ctx, true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(4)
		go func(v float64) { defer wg.Done(); b.SetHue(ctx, v) }(float64(i))
		go func(v float64) { defer wg.Done(); b.SetSaturation(ctx, v) }(float64(i))
		go func() { defer wg.Done(); b.Brightness(ctx) }()
		go func() { defer wg.Done(); b.Power(ctx) }()
	}
	wg.Wait()

	s := b.Snapshot()
	assert.True(t, s.On)
	assert.GreaterOrEqual(t, s.Hue, 0.0)
	assert.Less(t, s.Hue, 360.0)
}
