// Package registry resolves the fixtures to expose at startup and binds each
// one to exactly one bridge.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hapcolor/internal/accessory"
	"github.com/dokzlo13/hapcolor/internal/bridge"
	"github.com/dokzlo13/hapcolor/internal/colormode"
	"github.com/dokzlo13/hapcolor/internal/fixture"
	"github.com/dokzlo13/hapcolor/internal/ledger"
)

// ErrIdentityCollision means two devices in one pass map to the same
// accessory identity. The whole pass is rejected.
var ErrIdentityCollision = errors.New("accessory identity collision")

// AccessoryStore is the persisted accessory cache.
type AccessoryStore interface {
	ListCached(ctx context.Context) ([]accessory.Record, error)
	Register(ctx context.Context, rec accessory.Record) error
}

// Binder exposes a bound fixture to HomeKit.
type Binder interface {
	Bind(b *Binding) error
}

// Recorder receives audit events. *ledger.Ledger implements it.
type Recorder interface {
	Append(eventType ledger.EventType, subject, source string, payload map[string]any) error
}

// ledgerSource tags the audit events written by the registry.
const ledgerSource = "registry"

// Binding ties a fixture, as last seen, to its accessory record and bridge.
type Binding struct {
	Record   accessory.Record
	Device   fixture.Descriptor
	Bridge   *bridge.Bridge
	Restored bool
}

// Options controls a startup pass.
type Options struct {
	Discover bool
	Timeout  time.Duration
	Devices  []fixture.Descriptor
}

// Registry owns every binding made in this process.
type Registry struct {
	driver   fixture.Driver
	store    AccessoryStore
	binder   Binder
	recorder Recorder
	modes    map[string]string

	mu    sync.Mutex
	bound map[uuid.UUID]*Binding
	order []*Binding
}

// New creates a registry. binder and recorder may be nil.
func New(driver fixture.Driver, store AccessoryStore, binder Binder, recorder Recorder, modes map[string]string) *Registry {
	return &Registry{
		driver:   driver,
		store:    store,
		binder:   binder,
		recorder: recorder,
		modes:    modes,
		bound:    make(map[uuid.UUID]*Binding),
	}
}

// Discover runs one scan and gives up after timeout even if the driver does
// not. Scan failures and timeouts yield an empty list.
func (r *Registry) Discover(ctx context.Context, timeout time.Duration) []fixture.Descriptor {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		devices []fixture.Descriptor
		err     error
	}
	done := make(chan result, 1)
	go func() {
		devices, err := r.driver.Scan(ctx)
		done <- result{devices, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			log.Warn().Err(res.err).Msg("Discovery failed")
			return nil
		}
		return res.devices
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Dur("timeout", timeout).Msg("Discovery did not finish in time")
		return nil
	}
}

// LoadStatic returns a copy of the configured device list.
func (r *Registry) LoadStatic(devices []fixture.Descriptor) []fixture.Descriptor {
	out := make([]fixture.Descriptor, len(devices))
	copy(out, devices)
	return out
}

// Reconcile matches devices against cached records and binds a bridge to
// each, using the device's current address. Unknown devices get a new
// record. Devices already bound in this process keep their binding.
func (r *Registry) Reconcile(ctx context.Context, devices []fixture.Descriptor, cached []accessory.Record) ([]*Binding, error) {
	ids := make([]uuid.UUID, len(devices))
	seen := make(map[uuid.UUID]string, len(devices))
	for i, d := range devices {
		id := accessory.Identity(d.ID)
		if prev, ok := seen[id]; ok {
			err := fmt.Errorf("%w: %q and %q both map to %s", ErrIdentityCollision, prev, d.ID, id)
			log.Error().Err(err).Msg("Reconciliation aborted")
			r.record(ledger.EventReconcileFailed, id.String(), map[string]any{
				"error":   err.Error(),
				"devices": []string{prev, d.ID},
			})
			return nil, err
		}
		seen[id] = d.ID
		ids[i] = id
	}

	byID := make(map[uuid.UUID]accessory.Record, len(cached))
	for _, rec := range cached {
		byID[rec.UUID] = rec
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bindings := make([]*Binding, 0, len(devices))
	for i, d := range devices {
		if b, ok := r.bound[ids[i]]; ok {
			bindings = append(bindings, b)
			continue
		}

		b, err := r.bind(ctx, d, ids[i], byID)
		if err != nil {
			log.Error().Err(err).Str("device", d.ID).Str("address", d.Address).Msg("Failed to bind device")
			r.record(ledger.EventReconcileFailed, ids[i].String(), map[string]any{
				"device_id": d.ID,
				"error":     err.Error(),
			})
			continue
		}

		r.bound[ids[i]] = b
		r.order = append(r.order, b)
		bindings = append(bindings, b)
	}

	return bindings, nil
}

func (r *Registry) bind(ctx context.Context, d fixture.Descriptor, id uuid.UUID, cached map[uuid.UUID]accessory.Record) (*Binding, error) {
	transport, err := r.driver.Open(d)
	if err != nil {
		return nil, fmt.Errorf("open transport: %w", err)
	}

	mode := r.modeFor(d)
	logger := log.With().Str("device", d.ID).Str("address", d.Address).Str("mode", mode.Name()).Logger()

	rec, restored := cached[id]
	if restored {
		logger.Info().Str("name", rec.DisplayName).Msg("Restoring existing accessory from cache")
		r.record(ledger.EventAccessoryRestored, id.String(), map[string]any{
			"device_id":      d.ID,
			"address":        d.Address,
			"cached_address": rec.Context.Address,
		})
	} else {
		rec = accessory.NewRecord(d)
		logger.Info().Str("name", rec.DisplayName).Msg("Adding new accessory")
		if err := r.store.Register(ctx, rec); err != nil && !errors.Is(err, accessory.ErrDuplicate) {
			// Still exposed this run; the next start registers it again.
			logger.Error().Err(err).Msg("Failed to persist accessory")
		}
		r.record(ledger.EventAccessoryRegistered, id.String(), map[string]any{
			"device_id": d.ID,
			"address":   d.Address,
			"model":     d.Model,
		})
	}

	b := &Binding{
		Record:   rec,
		Device:   d,
		Bridge:   bridge.New(d.ID, transport, mode),
		Restored: restored,
	}

	if r.binder != nil {
		if err := r.binder.Bind(b); err != nil {
			closeMode(mode)
			return nil, fmt.Errorf("bind accessory: %w", err)
		}
	}
	return b, nil
}

// modeFor picks the color mode: configured override, then what the driver
// reported, then plain RGB.
func (r *Registry) modeFor(d fixture.Descriptor) colormode.Mode {
	name := r.modes[d.ID]
	if name == "" {
		name = d.ColorMode
	}

	mode, err := colormode.Resolve(name)
	if err != nil {
		log.Warn().Err(err).Str("device", d.ID).Msg("Falling back to rgb color mode")
		return colormode.RGB()
	}
	return mode
}

// Run performs the startup pass: load the cache, find devices, reconcile.
func (r *Registry) Run(ctx context.Context, opts Options) ([]*Binding, error) {
	cached, err := r.store.ListCached(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load accessory cache: %w", err)
	}
	log.Info().Int("count", len(cached)).Msg("Loaded cached accessories")

	var devices []fixture.Descriptor
	if opts.Discover {
		devices = r.Discover(ctx, opts.Timeout)
	} else {
		devices = r.LoadStatic(opts.Devices)
	}
	log.Info().Bool("discover", opts.Discover).Msgf("Found %d device(s)", len(devices))

	return r.Reconcile(ctx, devices, cached)
}

// Bindings returns every binding made so far, in the order they were made.
func (r *Registry) Bindings() []*Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Binding, len(r.order))
	copy(out, r.order)
	return out
}

// Close releases the color modes held by the bindings.
func (r *Registry) Close() {
	for _, b := range r.Bindings() {
		closeMode(b.Bridge.Mode())
	}
}

func closeMode(m colormode.Mode) {
	c, ok := m.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("mode", m.Name()).Msg("Failed to close color mode")
	}
}

func (r *Registry) record(eventType ledger.EventType, subject string, payload map[string]any) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Append(eventType, subject, ledgerSource, payload); err != nil {
		log.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to write ledger entry")
	}
}
