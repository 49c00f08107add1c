package app

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/hapcolor/internal/config"
	"github.com/dokzlo13/hapcolor/internal/db"
)

func newTestServices(t *testing.T, timeout time.Duration) *Services {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "services.sqlite"))
	require.NoError(t, err)
	return &Services{
		cfg: &config.Config{ShutdownTimeout: config.Duration(timeout)},
		DB:  d,
	}
}

func TestServices_StopWaitsForServers(t *testing.T) {
	s := newTestServices(t, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	var finished atomic.Bool
	s.spawn(func() {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	cancel()
	require.NoError(t, s.Stop())
	assert.True(t, finished.Load(), "Stop returned before the server finished")
	assert.Error(t, s.DB.DB.Ping(), "database should be closed")
}

func TestServices_StopGivesUpAfterTimeout(t *testing.T) {
	s := newTestServices(t, 50*time.Millisecond)

	stuck := make(chan struct{})
	defer close(stuck)
	s.spawn(func() { <-stuck })

	start := time.Now()
	err := s.Stop()
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Error(t, s.DB.DB.Ping(), "database is closed even after a timeout")
}

func TestStatus_RunReturnsAfterShutdown(t *testing.T) {
	cfg := &config.Config{
		Status:          config.StatusConfig{Enabled: true, Host: "127.0.0.1", Port: 0},
		ShutdownTimeout: config.Duration(time.Second),
	}
	s := NewStatusService(cfg, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("status server did not stop")
	}
}
