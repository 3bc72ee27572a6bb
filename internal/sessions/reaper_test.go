package sessions

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cogmux/internal/mode"
)

// fakeEnder ends successfully once per session, then reports NotFound
// like the real engine does.
type fakeEnder struct {
	mu    sync.Mutex
	ended map[string]int
}

func newFakeEnder() *fakeEnder {
	return &fakeEnder{ended: make(map[string]int)}
}

func (f *fakeEnder) EndSession(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended[sessionID]++
	if f.ended[sessionID] > 1 {
		return mode.NewError(mode.KindNotFound, "", sessionID, nil)
	}
	return nil
}

func (f *fakeEnder) endedOnce(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ended[sessionID] >= 1
}

func TestReaper_TouchTracksSessions(t *testing.T) {
	r := NewReaper(newFakeEnder(), time.Minute, time.Minute)

	r.Touch("s1")
	r.Touch("s1")
	r.Touch("s2")

	assert.Equal(t, 2, r.Len())

	list := r.List()
	require.Len(t, list, 2)
	for _, info := range list {
		assert.False(t, info.LastTouched.Before(info.StartedAt))
	}
}

func TestReaper_IdleSessionIsReaped(t *testing.T) {
	ender := newFakeEnder()
	r := NewReaper(ender, 20*time.Millisecond, 10*time.Millisecond)

	r.Touch("idle")

	assert.Eventually(t, func() bool { return ender.endedOnce("idle") },
		2*time.Second, 10*time.Millisecond, "expired session never reaped")
	assert.Eventually(t, func() bool { return r.Len() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestReaper_TouchKeepsSessionAlive(t *testing.T) {
	ender := newFakeEnder()
	r := NewReaper(ender, 60*time.Millisecond, 10*time.Millisecond)

	r.Touch("busy")
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		r.Touch("busy")
	}

	assert.False(t, ender.endedOnce("busy"), "touched session must not be reaped")
	assert.Equal(t, 1, r.Len())
}

func TestReaper_EndNow(t *testing.T) {
	ender := newFakeEnder()
	r := NewReaper(ender, time.Minute, time.Minute)

	r.Touch("s1")
	require.NoError(t, r.EndNow("s1"))

	assert.Zero(t, r.Len())
	assert.True(t, ender.endedOnce("s1"))
}

func TestReaper_MostRecent(t *testing.T) {
	r := NewReaper(newFakeEnder(), time.Minute, time.Minute)

	_, ok := r.MostRecent()
	assert.False(t, ok)

	r.Touch("older")
	time.Sleep(5 * time.Millisecond)
	r.Touch("newer")

	info, ok := r.MostRecent()
	require.True(t, ok)
	assert.Equal(t, "newer", info.ID)
}
