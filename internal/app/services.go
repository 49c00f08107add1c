package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hapcolor/internal/accessory"
	"github.com/dokzlo13/hapcolor/internal/config"
	"github.com/dokzlo13/hapcolor/internal/db"
	"github.com/dokzlo13/hapcolor/internal/fixture"
	"github.com/dokzlo13/hapcolor/internal/homekit"
	"github.com/dokzlo13/hapcolor/internal/ledger"
	"github.com/dokzlo13/hapcolor/internal/registry"
)

// Version is reported as the HAP firmware revision.
var Version = "dev"

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB          *db.DB
	Ledger      *ledger.Ledger
	Accessories *accessory.Store
	Driver      fixture.Driver

	// High-level services
	Registry *registry.Registry
	HomeKit  *homekit.Server
	Status   *StatusService

	hapCtx    context.Context
	hapCancel context.CancelFunc

	// servers counts the goroutines started by Start.
	servers sync.WaitGroup
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Ledger = ledger.New(database.DB)
	s.Accessories = accessory.NewStore(database.DB)

	s.Driver, err = NewDriver(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	// HomeKit writes carry no request context; bound them by the server lifetime.
	s.hapCtx, s.hapCancel = context.WithCancel(context.Background())
	s.HomeKit = homekit.New(s.hapCtx, homekit.Config{
		Name:         cfg.HomeKit.Name,
		Pin:          cfg.HomeKit.Pin,
		Port:         cfg.HomeKit.Port,
		StoragePath:  cfg.HomeKit.StoragePath,
		Manufacturer: cfg.HomeKit.Manufacturer,
		Firmware:     Version,
	})

	s.Registry = registry.New(s.Driver, s.Accessories, s.HomeKit, s.Ledger, cfg.Modes)
	s.Status = NewStatusService(cfg, s.Registry, s.Ledger)

	return s, nil
}

// Start runs the startup reconciliation pass and then starts the servers.
// Both servers stop when ctx is done. onFatalError is called when the
// HomeKit server fails.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if s.cfg.Status.Enabled {
		s.spawn(func() { s.Status.Run(ctx) })
	}

	_, err := s.Registry.Run(ctx, registry.Options{
		Discover: s.cfg.DiscoverEnabled(),
		Timeout:  s.cfg.Discovery.Timeout.Duration(),
		Devices:  s.cfg.Devices,
	})
	if err != nil {
		// A failed pass leaves nothing bound; serve the bare bridge so pairing survives.
		log.Error().Err(err).Msg("Reconciliation failed")
	}
	s.Status.SetReady(true)

	s.spawn(func() {
		if err := s.HomeKit.Serve(ctx); err != nil {
			onFatalError(err)
		}
	})
	return nil
}

func (s *Services) spawn(fn func()) {
	s.servers.Add(1)
	go func() {
		defer s.servers.Done()
		fn()
	}()
}

// Stop waits for the servers to finish, up to the shutdown timeout, and
// then releases all resources. The context given to Start must already be
// done.
func (s *Services) Stop() error {
	timeout := s.cfg.GetShutdownTimeout()

	done := make(chan struct{})
	go func() {
		s.servers.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		log.Debug().Msg("Servers stopped")
	case <-time.After(timeout):
		err = fmt.Errorf("servers still running after %s", timeout)
	}

	s.Close()
	return err
}

// Close releases all resources without waiting for the servers.
func (s *Services) Close() {
	if s.hapCancel != nil {
		s.hapCancel()
	}
	if s.Registry != nil {
		s.Registry.Close()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
}
