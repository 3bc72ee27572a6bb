package analytics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cogmux/internal/mode"
)

func TestTracker_AggregatesEvents(t *testing.T) {
	tr, err := NewTracker(t.TempDir())
	require.NoError(t, err)

	at := time.Now()
	tr.Publish(mode.Event{Type: mode.EventModeActivated, SessionID: "s1", Mode: "debugging", Category: mode.CategoryTechnical, Trigger: mode.TriggerAutomatic, At: at})
	tr.Publish(mode.Event{Type: mode.EventDispatchCompleted, SessionID: "s1", Mode: "debugging", Category: mode.CategoryTechnical, At: at})
	tr.Publish(mode.Event{Type: mode.EventDispatchCompleted, SessionID: "s1", Mode: "debugging", Category: mode.CategoryTechnical, At: at})
	tr.Publish(mode.Event{Type: mode.EventDispatchFailed, SessionID: "s1", Mode: "debugging", ErrKind: mode.KindTimeout, At: at})
	tr.Publish(mode.Event{Type: mode.EventModeDeactivated, SessionID: "s1", Mode: "debugging", Duration: 1500 * time.Millisecond, At: at})
	tr.Publish(mode.Event{Type: mode.EventModeSwitched, SessionID: "s1", Mode: "planning", PreviousMode: "debugging", At: at})
	tr.Publish(mode.Event{Type: mode.EventSessionEnded, SessionID: "s1", At: at})
	tr.Publish(mode.Event{Type: mode.EventPolicyUpdated, At: at})

	stats := tr.Stats()
	assert.Equal(t, int64(1), stats.Total.Activations)
	assert.Equal(t, int64(2), stats.Total.Dispatches)
	assert.Equal(t, int64(1), stats.Total.Failures)
	assert.Equal(t, int64(1), stats.Total.Timeouts)
	assert.Equal(t, int64(1500), stats.Total.ActiveMS)
	assert.Equal(t, int64(1), stats.Switches)
	assert.Equal(t, int64(1), stats.SessionsEnded)
	assert.Equal(t, int64(1), stats.PolicyUpdates)

	debugging := stats.ByMode["debugging"]
	assert.Equal(t, int64(2), debugging.Dispatches)
	assert.Equal(t, int64(1500), debugging.ActiveMS)

	assert.Equal(t, int64(1), stats.ByTrigger["automatic"].Activations)
	assert.Equal(t, int64(1), stats.ByCategory["technical"].Activations)
}

func TestTracker_PersistAndReload(t *testing.T) {
	dir := t.TempDir()

	tr, err := NewTracker(dir)
	require.NoError(t, err)
	tr.Publish(mode.Event{Type: mode.EventModeActivated, SessionID: "s1", Mode: "vim", Trigger: mode.TriggerManual})
	tr.Publish(mode.Event{Type: mode.EventDispatchCompleted, SessionID: "s1", Mode: "vim"})
	require.NoError(t, tr.Flush())

	reloaded, err := NewTracker(dir)
	require.NoError(t, err)

	if diff := cmp.Diff(tr.Stats(), reloaded.Stats()); diff != "" {
		t.Errorf("reloaded stats differ (-want +got):\n%s", diff)
	}
}

func TestTracker_DebouncedSave(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewTracker(dir)
	require.NoError(t, err)
	tr.saveDelay = 10 * time.Millisecond

	tr.Publish(mode.Event{Type: mode.EventModeActivated, SessionID: "s1", Mode: "vim"})

	path := filepath.Join(dir, "usage.json")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "save should be deferred")

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond, "debounced save never fired")
}

func TestTracker_CorruptFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "usage.json"), []byte("{nope"), 0o644))

	tr, err := NewTracker(dir)
	require.NoError(t, err)
	assert.Zero(t, tr.Stats().Total.Activations)
}

func TestTracker_EmptyDimensionsSkipped(t *testing.T) {
	tr, err := NewTracker(t.TempDir())
	require.NoError(t, err)

	// NoApplicableMode failures carry a session but no mode.
	tr.Publish(mode.Event{Type: mode.EventDispatchFailed, SessionID: "s1", ErrKind: mode.KindNoApplicableMode})

	stats := tr.Stats()
	assert.Equal(t, int64(1), stats.Total.Failures)
	assert.Empty(t, stats.ByMode)
	assert.Equal(t, int64(1), stats.BySession["s1"].Failures)
}

func TestTracker_StatsReturnsCopy(t *testing.T) {
	tr, err := NewTracker(t.TempDir())
	require.NoError(t, err)
	tr.Publish(mode.Event{Type: mode.EventModeActivated, SessionID: "s1", Mode: "vim"})

	stats := tr.Stats()
	stats.ByMode["vim"] = Counts{Activations: 99}

	assert.Equal(t, int64(1), tr.Stats().ByMode["vim"].Activations)
}
