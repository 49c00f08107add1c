package app

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hapcolor/internal/config"
	"github.com/dokzlo13/hapcolor/internal/fixture"
	"github.com/dokzlo13/hapcolor/internal/fixture/memory"
	"github.com/dokzlo13/hapcolor/internal/hue"
)

// NewDriver builds the configured fixture driver, rate limited per
// driver.rate_limit_rps.
func NewDriver(cfg *config.Config) (fixture.Driver, error) {
	var d fixture.Driver

	switch cfg.Driver.Kind {
	case "hue":
		d = hue.NewDriver(cfg.Driver.Hue.Bridge, cfg.Driver.Hue.User, cfg.Driver.Hue.Timeout.Duration())
		log.Info().Str("bridge", cfg.Driver.Hue.Bridge).Msg("Using Hue bridge driver")
	case "memory":
		// Simulated fixtures answer discovery with the static device list.
		d = memory.NewDriver(cfg.Devices...)
		log.Warn().Int("devices", len(cfg.Devices)).Msg("Using in-memory simulated fixtures")
	default:
		return nil, fmt.Errorf("unknown driver kind %q", cfg.Driver.Kind)
	}

	return fixture.NewLimitedDriver(d, cfg.Driver.RateLimitRPS), nil
}
