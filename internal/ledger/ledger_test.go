package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/hapcolor/internal/db"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return New(d.DB)
}

func TestLedger_RecentNewestFirst(t *testing.T) {
	l := newLedger(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.NoError(t, l.Append(EventAccessoryRegistered, "u1", "", map[string]any{"device_id": "a"}))
	require.NoError(t, l.Append(EventAccessoryRestored, "u2", "registry", nil))
	require.NoError(t, l.Append(EventReconcileFailed, "", "", map[string]any{"error": "collision"}))

	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, EventReconcileFailed, entries[0].EventType)
	assert.Equal(t, "collision", entries[0].Payload["error"])
	assert.Equal(t, EventAccessoryRestored, entries[1].EventType)
	assert.Equal(t, "registry", entries[1].Source)
	assert.Nil(t, entries[1].Payload)
	assert.Equal(t, "u1", entries[2].Subject)
	assert.Equal(t, base.Add(time.Second), entries[2].Timestamp)

	entries, err = l.Recent(1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedger_GetByType(t *testing.T) {
	l := newLedger(t)

	require.NoError(t, l.Append(EventAccessoryRegistered, "u1", "", nil))
	require.NoError(t, l.Append(EventAccessoryRestored, "u1", "", nil))
	require.NoError(t, l.Append(EventAccessoryRestored, "u2", "", nil))

	entries, err := l.GetByType(EventAccessoryRestored, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, EventAccessoryRestored, e.EventType)
	}
}
