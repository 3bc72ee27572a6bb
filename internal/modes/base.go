package modes

import (
	"context"
	"sync"
	"time"

	"cogmux/internal/mode"
)

// =============================================================================
// SHARED PLUGIN PLUMBING
// =============================================================================

// renderFunc produces one mode's output for a dispatch. It receives a
// snapshot of the session memory taken after the dispatch counter was
// bumped, so the first render sees Dispatches == 1.
type renderFunc func(input string, mc mode.Context, mem SessionMemory) mode.Result

// SessionMemory is the per-session state every built-in mode keeps.
type SessionMemory struct {
	ActivatedAt time.Time
	Confidence  float64
	Dispatches  int
	LastInput   string
}

// builtin is the common plugin implementation behind the catalog. Each
// mode is a static definition, a scorer table, and a render function;
// lifecycle bookkeeping lives here once.
type builtin struct {
	def    mode.Definition
	scorer Scorer
	render renderFunc

	mu       sync.Mutex
	sessions map[string]*SessionMemory
}

// newBuiltin wires a mode together. The scorer's keyword and trigger
// tables default to the definition's, so each mode declares them once.
func newBuiltin(def mode.Definition, scorer Scorer, render renderFunc) *builtin {
	if scorer.Keywords == nil {
		scorer.Keywords = def.Keywords
	}
	if scorer.Triggers == nil {
		scorer.Triggers = def.Triggers
	}
	return &builtin{
		def:      def,
		scorer:   scorer,
		render:   render,
		sessions: make(map[string]*SessionMemory),
	}
}

func (b *builtin) Definition() mode.Definition {
	return b.def
}

func (b *builtin) CanHandle(ctx context.Context, input string, mc mode.Context) mode.Fitness {
	return b.scorer.Fitness(input, mc)
}

func (b *builtin) Activate(ctx context.Context, mc mode.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[mc.SessionID] = &SessionMemory{
		ActivatedAt: mc.Timestamp,
		Confidence:  mc.Confidence,
	}
	return nil
}

func (b *builtin) Process(ctx context.Context, input string, mc mode.Context) (res mode.Result) {
	// The render functions are plain string templating, but the contract
	// says Process never panics upward.
	defer func() {
		if r := recover(); r != nil {
			res = mode.Failf("%s mode failed rendering: %v", b.def.ID, r)
		}
	}()

	b.mu.Lock()
	mem, ok := b.sessions[mc.SessionID]
	if !ok {
		// Process without Activate only happens if a caller bypasses the
		// dispatcher; tolerate it rather than fail the dispatch.
		mem = &SessionMemory{ActivatedAt: mc.Timestamp, Confidence: mc.Confidence}
		b.sessions[mc.SessionID] = mem
	}
	mem.Dispatches++
	mem.LastInput = input
	snapshot := *mem
	b.mu.Unlock()

	res = b.render(input, mc, snapshot)
	if res.Confidence == 0 {
		res.Confidence = mc.Confidence
	}
	return res
}

func (b *builtin) Deactivate(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
}

// activeSessions reports how many sessions currently hold state in this
// plugin. Test hook.
func (b *builtin) activeSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}
