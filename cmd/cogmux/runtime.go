package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"cogmux/internal/analytics"
	"cogmux/internal/config"
	"cogmux/internal/dispatch"
	"cogmux/internal/logging"
	"cogmux/internal/modes"
	"cogmux/internal/sessions"
	"cogmux/internal/store"
)

// runtime wires the engine to its persistence and analytics sinks. The
// store and usage tracker publish synchronously so nothing is lost on
// exit; the event bus carries the same events to async observers and is
// only started for the long-running chat surface.
type runtime struct {
	cfg     *config.Config
	engine  *dispatch.Engine
	store   *store.LocalStore
	tracker *analytics.Tracker
	bus     *analytics.Bus
	reaper  *sessions.Reaper

	consumeCancel context.CancelFunc
}

// newRuntime builds the full stack from the loaded config. interactive
// selects the async event bus used by the chat surface.
func newRuntime(interactive bool) (*runtime, error) {
	st, err := store.NewLocalStore(config.ResolvePath(workspace, cfg.Storage.DatabasePath))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	tracker, err := analytics.NewTracker(config.ResolvePath(workspace, cfg.Storage.UsageDir))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("opening usage tracker: %w", err)
	}

	// A policy saved from a previous run wins over the config file.
	policy := dispatch.AutoSwitchPolicy{
		Enabled:         cfg.Policy.Enabled,
		Threshold:       cfg.Policy.Threshold,
		LearningEnabled: cfg.Policy.LearningEnabled,
	}
	if stored, found, err := st.LoadPolicy(); err == nil && found {
		policy = stored
	}

	registry := dispatch.NewRegistry()
	if err := modes.Register(registry); err != nil {
		st.Close()
		return nil, fmt.Errorf("registering modes: %w", err)
	}

	rt := &runtime{cfg: cfg, store: st, tracker: tracker}

	eventLog := analytics.NewZapSink(logging.Get(logging.CategoryAnalytics))
	sink := analytics.Multi(st, tracker, eventLog)
	if interactive {
		rt.bus = analytics.NewBus()
		ctx, cancel := context.WithCancel(context.Background())
		rt.consumeCancel = cancel
		if err := rt.bus.Consume(ctx, eventLog); err != nil {
			cancel()
			rt.bus.Close()
			st.Close()
			return nil, fmt.Errorf("starting event consumer: %w", err)
		}
		sink = analytics.Multi(st, tracker, rt.bus.Sink())
	}

	rt.engine = dispatch.New(registry,
		dispatch.WithSink(sink),
		dispatch.WithLogger(logging.Get(logging.CategoryDispatch)),
		dispatch.WithConfidenceFloor(cfg.Engine.ConfidenceFloor),
		dispatch.WithHistoryLimit(cfg.Engine.HistoryLimit),
		dispatch.WithFanoutTimeout(cfg.GetFanoutTimeout()),
		dispatch.WithPolicy(policy),
	)

	rt.reaper = sessions.NewReaper(rt.engine, cfg.GetIdleTTL(), cfg.GetSweepInterval())

	return rt, nil
}

// Close tears the stack down in dependency order: the engine first so
// its final deactivation events still reach the sinks.
func (rt *runtime) Close() {
	if rt.engine != nil {
		_ = rt.engine.Close()
	}
	if rt.consumeCancel != nil {
		rt.consumeCancel()
	}
	if rt.bus != nil {
		_ = rt.bus.Close()
	}
	if rt.tracker != nil {
		_ = rt.tracker.Flush()
	}
	if rt.store != nil {
		_ = rt.store.Close()
	}
}

// resolveSession returns the given session ID or mints a fresh one.
func resolveSession(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// shortID trims a session UUID for display.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
