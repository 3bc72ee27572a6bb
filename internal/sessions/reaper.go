// Package sessions tracks which engine sessions are live and retires
// the ones that go idle. Liveness rides on a TTL cache: every dispatch
// refreshes the session's entry, and an entry expiring means the
// session stayed quiet long enough to end.
package sessions

import (
	"errors"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"cogmux/internal/logging"
	"cogmux/internal/mode"
)

// Ender ends engine sessions. *dispatch.Engine satisfies it.
type Ender interface {
	EndSession(sessionID string) error
}

// Info describes one live session.
type Info struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	LastTouched time.Time `json:"last_touched"`
}

// Reaper owns the idle timeout for sessions.
type Reaper struct {
	cache *cache.Cache
	ender Ender
	log   *zap.Logger
}

// NewReaper builds a reaper that ends sessions idle for idleTTL,
// checking every sweep interval.
func NewReaper(ender Ender, idleTTL, sweep time.Duration) *Reaper {
	r := &Reaper{
		cache: cache.New(idleTTL, sweep),
		ender: ender,
		log:   logging.Get(logging.CategorySession),
	}
	// Eviction fires for expiry and for explicit deletes; reap tolerates
	// sessions the engine no longer knows.
	r.cache.OnEvicted(func(sessionID string, _ interface{}) {
		r.reap(sessionID)
	})
	return r
}

// Touch marks the session live now, creating its record on first use.
// Call once per dispatch.
func (r *Reaper) Touch(sessionID string) {
	now := time.Now()
	if x, found := r.cache.Get(sessionID); found {
		info := x.(*Info)
		info.LastTouched = now
		r.cache.Set(sessionID, info, cache.DefaultExpiration)
		return
	}
	r.cache.Set(sessionID, &Info{ID: sessionID, StartedAt: now, LastTouched: now}, cache.DefaultExpiration)
}

// List returns the live sessions, most recently touched first.
func (r *Reaper) List() []Info {
	items := r.cache.Items()
	out := make([]Info, 0, len(items))
	for _, item := range items {
		if info, ok := item.Object.(*Info); ok {
			out = append(out, *info)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastTouched.After(out[j].LastTouched)
	})
	return out
}

// MostRecent returns the most recently touched live session.
func (r *Reaper) MostRecent() (Info, bool) {
	list := r.List()
	if len(list) == 0 {
		return Info{}, false
	}
	return list[0], true
}

// Len reports the live session count.
func (r *Reaper) Len() int {
	return r.cache.ItemCount()
}

// EndNow ends a session immediately instead of waiting for the idle
// timeout.
func (r *Reaper) EndNow(sessionID string) error {
	err := r.ender.EndSession(sessionID)
	// Delete triggers the eviction callback; reap sees NotFound there
	// and stays quiet.
	r.cache.Delete(sessionID)
	return err
}

// reap ends one expired session in the engine.
func (r *Reaper) reap(sessionID string) {
	err := r.ender.EndSession(sessionID)
	switch {
	case err == nil:
		r.log.Info("idle session ended", zap.String("session", sessionID))
	case errors.Is(err, mode.ErrNotFound):
		// Already gone, usually via EndNow.
	default:
		r.log.Warn("session reap failed",
			zap.String("session", sessionID),
			zap.Error(err))
	}
}
