package dispatch

import (
	"fmt"
	"sync"
	"sync/atomic"

	"cogmux/internal/mode"
)

// =============================================================================
// MODE REGISTRY
// =============================================================================

// entry is the registry's bookkeeping wrapper around one plugin. The
// active counter is the per-mode concurrent-session count and is only
// ever touched through tryAcquire/release so the capacity invariant
// holds under concurrent dispatches.
type entry struct {
	plugin mode.Plugin
	def    mode.Definition
	seq    int // registration order, breaks final selection ties

	active      int32 // sessions currently holding this mode
	activations int64 // lifetime activation count
}

// tryAcquire claims an active-session slot for this mode. It returns
// false when the mode is already at MaxConcurrentSessions.
func (e *entry) tryAcquire() bool {
	limit := int32(e.def.MaxConcurrentSessions)
	for {
		cur := atomic.LoadInt32(&e.active)
		if cur >= limit {
			return false
		}
		if atomic.CompareAndSwapInt32(&e.active, cur, cur+1) {
			atomic.AddInt64(&e.activations, 1)
			return true
		}
	}
}

// release returns an active-session slot.
func (e *entry) release() {
	if atomic.AddInt32(&e.active, -1) < 0 {
		// Release without acquire means a lifecycle bug upstream.
		atomic.StoreInt32(&e.active, 0)
	}
}

func (e *entry) activeCount() int  { return int(atomic.LoadInt32(&e.active)) }
func (e *entry) totalCount() int64 { return atomic.LoadInt64(&e.activations) }

// Registry owns every installed mode plugin for the process lifetime.
// Registration happens once at startup; afterwards the registry is
// read-only, but it stays lock-protected so misuse shows up as slow
// instead of corrupt.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register installs a plugin under its definition ID. A duplicate ID
// is a DuplicateMode error; callers treat that as fatal at startup.
func (r *Registry) Register(p mode.Plugin) error {
	if p == nil {
		return fmt.Errorf("register: nil plugin")
	}
	def := p.Definition()
	if err := def.Validate(); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.ID]; exists {
		return mode.NewError(mode.KindDuplicateMode, def.ID, "", nil)
	}
	ent := &entry{plugin: p, def: def, seq: len(r.order)}
	r.entries[def.ID] = ent
	r.order = append(r.order, ent)
	return nil
}

// Get returns the plugin and definition for id.
func (r *Registry) Get(id string) (mode.Plugin, mode.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entries[id]
	if !ok {
		return nil, mode.Definition{}, false
	}
	return ent.plugin, ent.def, true
}

// All returns every definition in registration order. The slice is
// fresh on every call; callers may do what they like with it.
func (r *Registry) All() []mode.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]mode.Definition, 0, len(r.order))
	for _, ent := range r.order {
		defs = append(defs, ent.def)
	}
	return defs
}

// ByCategory returns the definitions in one category, in registration
// order.
func (r *Registry) ByCategory(c mode.Category) []mode.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var defs []mode.Definition
	for _, ent := range r.order {
		if ent.def.Category == c {
			defs = append(defs, ent.def)
		}
	}
	return defs
}

// Len reports how many modes are installed.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// lookup is the internal pointer-returning sibling of Get.
func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ent, ok := r.entries[id]
	return ent, ok
}

// snapshot returns the entries in registration order for fan-out.
func (r *Registry) snapshot() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, len(r.order))
	copy(out, r.order)
	return out
}
