package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hapcolor/internal/bridge"
	"github.com/dokzlo13/hapcolor/internal/config"
	"github.com/dokzlo13/hapcolor/internal/ledger"
	"github.com/dokzlo13/hapcolor/internal/registry"
)

const (
	defaultLedgerLimit = 50
	maxLedgerLimit     = 1000
)

// BindingSource lists the fixtures bound in this process.
type BindingSource interface {
	Bindings() []*registry.Binding
}

// LedgerReader reads recent audit entries.
type LedgerReader interface {
	Recent(limit int) ([]*ledger.Entry, error)
}

// FixtureStatus is one fixture as reported by the status API.
type FixtureStatus struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Address  string       `json:"address"`
	Model    string       `json:"model,omitempty"`
	Mode     string       `json:"mode"`
	UUID     string       `json:"uuid"`
	Restored bool         `json:"restored"`
	State    bridge.State `json:"state"`
}

// StatusService serves health and introspection endpoints.
type StatusService struct {
	cfg      *config.Config
	bindings BindingSource
	ledger   LedgerReader
	server   *http.Server
	ready    atomic.Bool
}

// NewStatusService creates a new StatusService.
func NewStatusService(cfg *config.Config, bindings BindingSource, ledger LedgerReader) *StatusService {
	return &StatusService{
		cfg:      cfg,
		bindings: bindings,
		ledger:   ledger,
	}
}

// SetReady flips the /ready answer once startup reconciliation has run.
func (s *StatusService) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Handler returns the gin engine with all routes.
func (s *StatusService) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	engine.GET("/health", s.health)
	engine.GET("/ready", s.readiness)
	engine.GET("/fixtures", s.listFixtures)
	engine.GET("/fixtures/:id", s.getFixture)
	engine.GET("/ledger", s.recentLedger)

	return engine
}

// Run serves the status API until ctx is done and returns once the server
// has shut down.
func (s *StatusService) Run(ctx context.Context) {
	addr := s.cfg.Status.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Status server shutdown error")
		}
	}()

	log.Info().Str("addr", addr).Msg("Starting status server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Status server error")
	}
	<-stopped
}

func (s *StatusService) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *StatusService) readiness(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *StatusService) listFixtures(c *gin.Context) {
	bindings := s.bindings.Bindings()
	out := make([]FixtureStatus, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, fixtureStatus(b))
	}
	c.JSON(http.StatusOK, gin.H{"fixtures": out})
}

func (s *StatusService) getFixture(c *gin.Context) {
	id := c.Param("id")
	for _, b := range s.bindings.Bindings() {
		if b.Device.ID == id {
			c.JSON(http.StatusOK, fixtureStatus(b))
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no fixture " + id})
}

func (s *StatusService) recentLedger(c *gin.Context) {
	limit := defaultLedgerLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit", "message": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLedgerLimit)
	}

	entries, err := s.ledger.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger_error", "message": err.Error()})
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// fixtureStatus reports the shadow only; it never queries the device.
func fixtureStatus(b *registry.Binding) FixtureStatus {
	return FixtureStatus{
		ID:       b.Device.ID,
		Name:     b.Record.DisplayName,
		Address:  b.Device.Address,
		Model:    b.Device.Model,
		Mode:     b.Bridge.Mode().Name(),
		UUID:     b.Record.UUID.String(),
		Restored: b.Restored,
		State:    b.Bridge.Snapshot(),
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
