package fixture

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/dokzlo13/hapcolor/internal/color"
)

// LimitedDriver wraps a driver so that every transport it opens shares a
// single command rate limiter. Scans are not limited.
type LimitedDriver struct {
	Driver
	limiter *rate.Limiter
}

// NewLimitedDriver wraps d with a limiter allowing rps commands per second.
// A non-positive rps disables limiting and returns d unchanged.
func NewLimitedDriver(d Driver, rps float64) Driver {
	if rps <= 0 {
		return d
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &LimitedDriver{
		Driver:  d,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Open opens the underlying transport and wraps it with the shared limiter.
func (d *LimitedDriver) Open(desc Descriptor) (Transport, error) {
	t, err := d.Driver.Open(desc)
	if err != nil {
		return nil, err
	}
	return &limitedTransport{next: t, limiter: d.limiter}, nil
}

type limitedTransport struct {
	next    Transport
	limiter *rate.Limiter
}

func (t *limitedTransport) SendPower(ctx context.Context, on bool) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.next.SendPower(ctx, on)
}

func (t *limitedTransport) SendColor(ctx context.Context, c color.RGB) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.next.SendColor(ctx, c)
}

func (t *limitedTransport) QueryState(ctx context.Context) (State, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return State{}, err
	}
	return t.next.QueryState(ctx)
}
