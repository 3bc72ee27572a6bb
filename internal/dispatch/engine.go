// Package dispatch implements the cognitive mode dispatch engine: a
// registry of mode plugins, per-session state machines, and the
// coordinator that scores, selects, activates, runs, and retires modes
// for every user input.
//
// One Engine instance is constructed explicitly and handed to callers;
// there is no package-level instance. Sessions are created lazily on
// first dispatch and serialized individually, so concurrent calls for
// different sessions proceed in parallel.
package dispatch

import (
	"sync"
	"time"

	"cogmux/internal/mode"

	"go.uber.org/zap"
)

// Engine defaults; all overridable through options or config.
const (
	// DefaultConfidenceFloor is the minimum fitness a mode must report
	// to be considered able to handle an input at all.
	DefaultConfidenceFloor = 0.15
	// DefaultHistoryLimit bounds the per-session transition history.
	DefaultHistoryLimit = 50
	// DefaultFanoutTimeout bounds the whole CanHandle scoring round.
	DefaultFanoutTimeout = 250 * time.Millisecond
)

// Engine coordinates mode selection and lifecycle across sessions.
type Engine struct {
	registry *Registry
	sink     mode.Sink
	log      *zap.Logger
	now      func() time.Time

	floor         float64
	historyLimit  int
	fanoutTimeout time.Duration

	policy policyHolder

	mu       sync.RWMutex // guards the sessions map only
	sessions map[string]*sessionState

	learnMu     sync.Mutex
	transitions map[string]map[string]int64 // previous mode -> next mode -> count
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithSink injects the analytics sink lifecycle events are published
// to. Defaults to a sink that drops everything.
func WithSink(s mode.Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithLogger sets the engine's logger. Defaults to a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides the time source. Tests use this to pin
// timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithConfidenceFloor overrides the minimum viable confidence.
func WithConfidenceFloor(floor float64) Option {
	return func(e *Engine) { e.floor = mode.ClampConfidence(floor) }
}

// WithHistoryLimit overrides the per-session history bound.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// WithFanoutTimeout overrides the aggregate bound on one scoring round.
func WithFanoutTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.fanoutTimeout = d
		}
	}
}

// WithPolicy sets the starting auto-switch policy.
func WithPolicy(p AutoSwitchPolicy) Option {
	return func(e *Engine) { e.policy.update(p) }
}

// New builds an engine over an already-populated registry.
func New(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:      registry,
		sink:          mode.NopSink{},
		log:           zap.NewNop(),
		now:           time.Now,
		floor:         DefaultConfidenceFloor,
		historyLimit:  DefaultHistoryLimit,
		fanoutTimeout: DefaultFanoutTimeout,
		sessions:      make(map[string]*sessionState),
		transitions:   make(map[string]map[string]int64),
	}
	e.policy.update(DefaultAutoSwitchPolicy())
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the engine's mode registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Modes returns every installed mode definition in registration order.
func (e *Engine) Modes() []mode.Definition { return e.registry.All() }

// ModesByCategory filters the installed definitions by category.
func (e *Engine) ModesByCategory(c mode.Category) []mode.Definition {
	return e.registry.ByCategory(c)
}

// CurrentMode returns the definition of the session's active mode.
// ok is false when the session is unknown or has no active mode.
func (e *Engine) CurrentMode(sessionID string) (mode.Definition, bool) {
	sess, ok := e.peekSession(sessionID)
	if !ok {
		return mode.Definition{}, false
	}
	sess.mu.Lock()
	active := sess.activeMode
	sess.mu.Unlock()
	if active == "" {
		return mode.Definition{}, false
	}
	_, def, ok := e.registry.Get(active)
	return def, ok
}

// History returns the session's transition history oldest-first.
// Unknown sessions yield an empty history.
func (e *Engine) History(sessionID string) []HistoryEntry {
	sess, ok := e.peekSession(sessionID)
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.historyCopy()
}

// Policy returns a snapshot of the live auto-switch policy.
func (e *Engine) Policy() AutoSwitchPolicy { return e.policy.snapshot() }

// UpdatePolicy replaces the auto-switch policy wholesale.
func (e *Engine) UpdatePolicy(p AutoSwitchPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.policy.update(p)
	e.log.Info("auto-switch policy updated",
		zap.Bool("enabled", p.Enabled),
		zap.Float64("threshold", p.Threshold),
		zap.Bool("learning", p.LearningEnabled))
	e.publish(mode.Event{Type: mode.EventPolicyUpdated, At: e.now()})
	return nil
}

// EndSession deactivates the session's active mode, closes its history
// entry, and forgets the session. Unknown sessions return NotFound.
func (e *Engine) EndSession(sessionID string) error {
	e.mu.Lock()
	sess, ok := e.sessions[sessionID]
	if ok {
		delete(e.sessions, sessionID)
	}
	e.mu.Unlock()
	if !ok {
		return mode.NewError(mode.KindNotFound, "", sessionID, nil)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	last := sess.activeMode
	if last != "" {
		e.deactivateLocked(sess)
	}
	e.publish(mode.Event{
		Type:      mode.EventSessionEnded,
		SessionID: sessionID,
		Mode:      last,
		At:        e.now(),
	})
	e.log.Debug("session ended", zap.String("session", sessionID), zap.String("last_mode", last))
	return nil
}

// Sessions lists the ids of every session the engine currently tracks.
func (e *Engine) Sessions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close ends every live session. Used on shutdown so plugins get their
// Deactivate calls and sinks see the closing events.
func (e *Engine) Close() error {
	var first error
	for _, id := range e.Sessions() {
		if err := e.EndSession(id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// session returns the state for id, creating it lazily on first use.
func (e *Engine) session(id string) *sessionState {
	e.mu.RLock()
	sess, ok := e.sessions[id]
	e.mu.RUnlock()
	if ok {
		return sess
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if sess, ok = e.sessions[id]; ok {
		return sess
	}
	sess = newSessionState(id, e.historyLimit)
	e.sessions[id] = sess
	return sess
}

// peekSession looks a session up without creating it.
func (e *Engine) peekSession(id string) (*sessionState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sess, ok := e.sessions[id]
	return sess, ok
}

// publish hands an event to the sink. Sinks are required to be fast;
// anything expensive must hand off internally.
func (e *Engine) publish(ev mode.Event) {
	e.sink.Publish(ev)
}

// recordTransition tracks previous->next mode pairs when the policy
// has learning enabled.
func (e *Engine) recordTransition(prev, next string) {
	if prev == "" || next == "" || prev == next {
		return
	}
	e.learnMu.Lock()
	defer e.learnMu.Unlock()
	m, ok := e.transitions[prev]
	if !ok {
		m = make(map[string]int64)
		e.transitions[prev] = m
	}
	m[next]++
}
