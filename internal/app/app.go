package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hapcolor/internal/config"
)

// App owns the bridge process: it binds the fixtures, serves them over HAP
// and tears everything down again.
type App struct {
	cfg      *config.Config
	services *Services
}

// New opens storage and builds the services. Nothing is started yet.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Run binds the fixtures and serves them until ctx is done or the HomeKit
// server fails. It returns after shutdown. A server failure is returned as
// the error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	fail := func(err error) {
		log.Error().Err(err).Msg("HomeKit server failed, shutting down")
		cancel(err)
	}

	if err := a.services.Start(ctx, fail); err != nil {
		cancel(err)
		a.services.Close()
		return err
	}
	log.Info().
		Int("fixtures", len(a.services.Registry.Bindings())).
		Str("bridge", a.cfg.HomeKit.Name).
		Msg("hapcolor started")

	<-ctx.Done()
	cause := context.Cause(ctx)

	log.Info().Dur("timeout", a.cfg.GetShutdownTimeout()).Msg("Shutting down")
	stopErr := a.services.Stop()
	if stopErr != nil {
		log.Warn().Err(stopErr).Msg("Shutdown incomplete")
	}

	if cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return stopErr
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		signal.Stop(signals)
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()
	return ctx
}
