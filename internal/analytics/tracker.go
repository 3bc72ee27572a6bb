package analytics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"cogmux/internal/logging"
	"cogmux/internal/mode"
)

const defaultSaveDelay = 5 * time.Second

// Tracker aggregates engine events into usage counters and persists
// them as JSON. Writes are debounced, so a burst of dispatches costs
// one disk write.
//
// Tracker implements mode.Sink and can be wired straight into the
// engine or behind a Bus.
type Tracker struct {
	mu        sync.Mutex
	data      Data
	filePath  string
	dirty     bool
	saveDelay time.Duration
	log       *zap.Logger
}

// NewTracker opens (or starts) the usage file under dir. A corrupt or
// missing file is not an error; tracking starts fresh.
func NewTracker(dir string) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("analytics: create dir: %w", err)
	}
	t := &Tracker{
		data:      NewData(),
		filePath:  filepath.Join(dir, "usage.json"),
		saveDelay: defaultSaveDelay,
		log:       logging.Get(logging.CategoryAnalytics),
	}
	if err := t.load(); err != nil {
		t.log.Warn("usage file unreadable, starting fresh",
			zap.String("path", t.filePath),
			zap.Error(err))
		t.data = NewData()
	}
	return t, nil
}

// load reads the usage file. Missing file is fine.
func (t *Tracker) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &t.data); err != nil {
		return err
	}

	// Re-initialize maps a partial file may have left nil.
	if t.data.Aggregate.ByMode == nil {
		t.data.Aggregate.ByMode = make(map[string]Counts)
	}
	if t.data.Aggregate.ByCategory == nil {
		t.data.Aggregate.ByCategory = make(map[string]Counts)
	}
	if t.data.Aggregate.ByTrigger == nil {
		t.data.Aggregate.ByTrigger = make(map[string]Counts)
	}
	if t.data.Aggregate.BySession == nil {
		t.data.Aggregate.BySession = make(map[string]Counts)
	}
	return nil
}

// Publish folds one engine event into the aggregates. Implements
// mode.Sink.
func (t *Tracker) Publish(ev mode.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	agg := &t.data.Aggregate
	switch ev.Type {
	case mode.EventModeActivated:
		t.applyLocked(ev, func(c *Counts) { c.Activations++ })
	case mode.EventModeDeactivated:
		ms := ev.Duration.Milliseconds()
		t.applyLocked(ev, func(c *Counts) { c.ActiveMS += ms })
	case mode.EventModeSwitched:
		agg.Switches++
	case mode.EventDispatchCompleted:
		t.applyLocked(ev, func(c *Counts) { c.Dispatches++ })
	case mode.EventDispatchFailed:
		timeout := ev.ErrKind == mode.KindTimeout
		t.applyLocked(ev, func(c *Counts) {
			c.Failures++
			if timeout {
				c.Timeouts++
			}
		})
	case mode.EventSessionEnded:
		agg.SessionsEnded++
	case mode.EventPolicyUpdated:
		agg.PolicyUpdates++
	default:
		return
	}

	t.markDirtyLocked()
}

// applyLocked applies fn across every dimension the event names.
func (t *Tracker) applyLocked(ev mode.Event, fn func(*Counts)) {
	agg := &t.data.Aggregate
	fn(&agg.Total)
	bump(agg.ByMode, ev.Mode, fn)
	bump(agg.ByCategory, string(ev.Category), fn)
	bump(agg.ByTrigger, string(ev.Trigger), fn)
	bump(agg.BySession, ev.SessionID, fn)
}

// markDirtyLocked schedules a debounced save.
func (t *Tracker) markDirtyLocked() {
	if t.dirty {
		return
	}
	t.dirty = true
	time.AfterFunc(t.saveDelay, func() {
		if err := t.Flush(); err != nil {
			t.log.Warn("usage save failed", zap.Error(err))
		}
	})
}

// Flush writes the aggregates to disk now and clears the dirty flag.
func (t *Tracker) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = false
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, raw, 0o644)
}

// Stats returns a deep copy of the aggregates.
func (t *Tracker) Stats() Aggregate {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByMode = copyCountsMap(stats.ByMode)
	stats.ByCategory = copyCountsMap(stats.ByCategory)
	stats.ByTrigger = copyCountsMap(stats.ByTrigger)
	stats.BySession = copyCountsMap(stats.BySession)
	return stats
}
