package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cogmux/internal/mode"
)

func TestEngine_AutoDispatchPicksHighestConfidence(t *testing.T) {
	summarizing := newStubMode("summarizing", mode.CategoryAnalytical, 8, 0.9)
	organizing := newStubMode("organizing", mode.CategoryStructural, 6, 0.4)
	sink := &captureSink{}
	e := newTestEngine(t, []*stubPlugin{summarizing, organizing}, WithSink(sink))

	res, err := e.Process(context.Background(), "s1", "summarize this report", ProcessOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "handled: summarize this report", res.Output)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9)

	def, ok := e.CurrentMode("s1")
	require.True(t, ok)
	assert.Equal(t, "summarizing", def.ID)

	hist := e.History("s1")
	require.Len(t, hist, 1)
	assert.Equal(t, "summarizing", hist[0].Mode)
	assert.Equal(t, mode.TriggerAutomatic, hist[0].Trigger)
	assert.InDelta(t, 0.9, hist[0].Confidence, 1e-9)
	assert.True(t, hist[0].Active())

	assert.Equal(t, 1, summarizing.activationCount())
	assert.Equal(t, 0, organizing.activationCount())
	assert.Empty(t, organizing.processedInputs())

	activated := sink.ofType(mode.EventModeActivated)
	require.Len(t, activated, 1)
	assert.Equal(t, "summarizing", activated[0].Mode)
	assert.Equal(t, mode.CategoryAnalytical, activated[0].Category)
	require.Len(t, sink.ofType(mode.EventDispatchCompleted), 1)
}

func TestEngine_HysteresisKeepsActiveMode(t *testing.T) {
	architecting := newStubMode("architecting", mode.CategoryStructural, 5, 0.80)
	refactoring := newStubMode("refactoring", mode.CategoryTechnical, 5, 0.05)
	refactoring.setScore(func(_ context.Context, input string, _ mode.Context) mode.Fitness {
		if strings.Contains(input, "refactor") {
			return mode.NewFitness(0.95, "trigger phrase")
		}
		return mode.NewFitness(0.05)
	})
	sink := &captureSink{}
	e := newTestEngine(t, []*stubPlugin{architecting, refactoring},
		WithSink(sink),
		WithPolicy(AutoSwitchPolicy{Enabled: true, Threshold: 0.2}))

	ctx := context.Background()
	_, err := e.Process(ctx, "s1", "plan the service boundaries", ProcessOptions{})
	require.NoError(t, err)
	def, _ := e.CurrentMode("s1")
	require.Equal(t, "architecting", def.ID)

	// Challenger gains 0.15 over the activation confidence, under the
	// 0.2 margin. The active mode keeps the dispatch.
	res, err := e.Process(ctx, "s1", "refactor the parser", ProcessOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)

	def, _ = e.CurrentMode("s1")
	assert.Equal(t, "architecting", def.ID)
	assert.Equal(t, 0, refactoring.activationCount())
	assert.Len(t, architecting.processedInputs(), 2)
	assert.Len(t, e.History("s1"), 1)
	assert.Empty(t, sink.ofType(mode.EventModeSwitched))

	// The suppressed round still runs under the active mode's own score
	// for this input, not the stale activation confidence.
	completed := sink.ofType(mode.EventDispatchCompleted)
	require.Len(t, completed, 2)
	assert.InDelta(t, 0.80, completed[1].Confidence, 1e-9)

	// Lowering the margin below the gain lets the same challenger win.
	require.NoError(t, e.UpdatePolicy(AutoSwitchPolicy{Enabled: true, Threshold: 0.1}))
	_, err = e.Process(ctx, "s1", "refactor the scanner too", ProcessOptions{})
	require.NoError(t, err)

	def, _ = e.CurrentMode("s1")
	assert.Equal(t, "refactoring", def.ID)
	assert.Equal(t, 1, architecting.deactivationCount())

	switched := sink.ofType(mode.EventModeSwitched)
	require.Len(t, switched, 1)
	assert.Equal(t, "refactoring", switched[0].Mode)
	assert.Equal(t, "architecting", switched[0].PreviousMode)
	assert.Equal(t, mode.TriggerAutomatic, switched[0].Trigger)
}

func TestEngine_AutoSwitchDisabled(t *testing.T) {
	steady := newStubMode("steady", mode.CategoryOperational, 3, 0.3)
	eager := newStubMode("eager", mode.CategoryCreative, 9, 0.02)
	e := newTestEngine(t, []*stubPlugin{steady, eager},
		WithPolicy(AutoSwitchPolicy{Enabled: false, Threshold: 0}))

	ctx := context.Background()
	_, err := e.Process(ctx, "s1", "keep the lights on", ProcessOptions{})
	require.NoError(t, err)

	eager.setScore(func(context.Context, string, mode.Context) mode.Fitness {
		return mode.NewFitness(0.99)
	})
	_, err = e.Process(ctx, "s1", "brainstorm wildly", ProcessOptions{})
	require.NoError(t, err)

	def, _ := e.CurrentMode("s1")
	assert.Equal(t, "steady", def.ID)
	assert.Equal(t, 0, eager.activationCount())
	assert.Len(t, steady.processedInputs(), 2)
}

func TestEngine_RepeatWinnerNoLifecycleChurn(t *testing.T) {
	debugging := newStubMode("debugging", mode.CategoryTechnical, 7, 0.85)
	sink := &captureSink{}
	e := newTestEngine(t, []*stubPlugin{debugging}, WithSink(sink))

	ctx := context.Background()
	for _, input := range []string{"why does this crash", "still crashing", "found it"} {
		_, err := e.Process(ctx, "s1", input, ProcessOptions{})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, debugging.activationCount())
	assert.Equal(t, 0, debugging.deactivationCount())
	assert.Len(t, debugging.processedInputs(), 3)
	assert.Len(t, e.History("s1"), 1)
	assert.Len(t, sink.ofType(mode.EventModeActivated), 1)
	assert.Len(t, sink.ofType(mode.EventDispatchCompleted), 3)
}

func TestEngine_TieBreaking(t *testing.T) {
	t.Run("priority breaks confidence ties", func(t *testing.T) {
		low := newStubMode("low", mode.CategoryAnalytical, 3, 0.5)
		high := newStubMode("high", mode.CategoryTechnical, 7, 0.5)
		e := newTestEngine(t, []*stubPlugin{low, high})

		_, err := e.Process(context.Background(), "s1", "anything", ProcessOptions{})
		require.NoError(t, err)
		def, _ := e.CurrentMode("s1")
		assert.Equal(t, "high", def.ID)
	})

	t.Run("registration order breaks priority ties", func(t *testing.T) {
		first := newStubMode("first", mode.CategoryAnalytical, 7, 0.5)
		second := newStubMode("second", mode.CategoryTechnical, 7, 0.5)
		e := newTestEngine(t, []*stubPlugin{first, second})

		_, err := e.Process(context.Background(), "s1", "anything", ProcessOptions{})
		require.NoError(t, err)
		def, _ := e.CurrentMode("s1")
		assert.Equal(t, "first", def.ID)
	})

	t.Run("selection is stable across repeats", func(t *testing.T) {
		a := newStubMode("a", mode.CategoryAnalytical, 7, 0.5)
		b := newStubMode("b", mode.CategoryTechnical, 7, 0.5)
		c := newStubMode("c", mode.CategoryCreative, 3, 0.5)
		e := newTestEngine(t, []*stubPlugin{a, b, c})

		ctx := context.Background()
		for i := 0; i < 10; i++ {
			_, err := e.Process(ctx, "s1", "anything", ProcessOptions{})
			require.NoError(t, err)
		}
		def, _ := e.CurrentMode("s1")
		assert.Equal(t, "a", def.ID)
		assert.Len(t, e.History("s1"), 1)
	})
}

func TestEngine_ConfidenceFloor(t *testing.T) {
	t.Run("nothing clears the floor", func(t *testing.T) {
		timid := newStubMode("timid", mode.CategoryAnalytical, 5, 0.10)
		shyer := newStubMode("shyer", mode.CategoryCreative, 5, 0.05)
		sink := &captureSink{}
		e := newTestEngine(t, []*stubPlugin{timid, shyer}, WithSink(sink))

		_, err := e.Process(context.Background(), "s1", "mumble", ProcessOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, mode.ErrNoApplicableMode))

		_, ok := e.CurrentMode("s1")
		assert.False(t, ok)
		assert.Equal(t, 0, timid.activationCount())

		failed := sink.ofType(mode.EventDispatchFailed)
		require.Len(t, failed, 1)
		assert.Equal(t, mode.KindNoApplicableMode, failed[0].ErrKind)
	})

	t.Run("exactly at the floor is kept", func(t *testing.T) {
		borderline := newStubMode("borderline", mode.CategoryAnalytical, 5, DefaultConfidenceFloor)
		e := newTestEngine(t, []*stubPlugin{borderline})

		_, err := e.Process(context.Background(), "s1", "barely", ProcessOptions{})
		require.NoError(t, err)
		def, ok := e.CurrentMode("s1")
		require.True(t, ok)
		assert.Equal(t, "borderline", def.ID)
	})

	t.Run("empty registry", func(t *testing.T) {
		e := newTestEngine(t, nil)
		_, err := e.Process(context.Background(), "s1", "hello", ProcessOptions{})
		assert.True(t, errors.Is(err, mode.ErrNoApplicableMode))
	})
}

func TestEngine_SetModePinsFullConfidence(t *testing.T) {
	writing := newStubMode("writing", mode.CategoryCreative, 6, 0.9)
	vim := newStubMode("vim", mode.CategoryOperational, 2, 0.0)
	e := newTestEngine(t, []*stubPlugin{writing, vim})

	ctx := context.Background()
	_, err := e.Process(ctx, "s1", "draft the intro", ProcessOptions{})
	require.NoError(t, err)

	// Explicit override wins regardless of score.
	require.NoError(t, e.SetMode(ctx, "s1", "vim", mode.TriggerManual))
	def, _ := e.CurrentMode("s1")
	assert.Equal(t, "vim", def.ID)
	assert.Equal(t, 1, writing.deactivationCount())

	hist := e.History("s1")
	require.Len(t, hist, 2)
	assert.Equal(t, mode.TriggerManual, hist[1].Trigger)
	assert.InDelta(t, 1.0, hist[1].Confidence, 1e-9)

	// With activation pinned at 1.0 no challenger can clear a positive
	// margin, so the stronger scorer cannot pull the session back.
	_, err = e.Process(ctx, "s1", "draft the outro", ProcessOptions{})
	require.NoError(t, err)
	def, _ = e.CurrentMode("s1")
	assert.Equal(t, "vim", def.ID)

	// SetMode to the already-active mode is a no-op.
	require.NoError(t, e.SetMode(ctx, "s1", "vim", mode.TriggerManual))
	assert.Len(t, e.History("s1"), 2)
}

func TestEngine_ProcessManualModeOption(t *testing.T) {
	summarizing := newStubMode("summarizing", mode.CategoryAnalytical, 8, 0.9)
	organizing := newStubMode("organizing", mode.CategoryStructural, 6, 0.4)
	e := newTestEngine(t, []*stubPlugin{summarizing, organizing})

	ctx := context.Background()
	res, err := e.Process(ctx, "s1", "sort these notes", ProcessOptions{ManualMode: "organizing"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	// The named mode still carries its own honest score, not the
	// would-be winner's.
	assert.InDelta(t, 0.4, res.Confidence, 1e-9)

	def, _ := e.CurrentMode("s1")
	assert.Equal(t, "organizing", def.ID)
	assert.Equal(t, 0, summarizing.activationCount())

	hist := e.History("s1")
	require.Len(t, hist, 1)
	assert.Equal(t, mode.TriggerManual, hist[0].Trigger)

	// Naming the active mode again processes without re-activating.
	_, err = e.Process(ctx, "s1", "sort more notes", ProcessOptions{ManualMode: "organizing"})
	require.NoError(t, err)
	assert.Equal(t, 1, organizing.activationCount())
	assert.Len(t, organizing.processedInputs(), 2)
}

func TestEngine_UnknownModeIsNotFound(t *testing.T) {
	known := newStubMode("known", mode.CategoryAnalytical, 5, 0.5)
	e := newTestEngine(t, []*stubPlugin{known})
	ctx := context.Background()

	_, err := e.Process(ctx, "s1", "hi", ProcessOptions{ManualMode: "missing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, mode.ErrNotFound))

	err = e.SetMode(ctx, "s1", "missing", mode.TriggerManual)
	require.Error(t, err)
	kind, ok := mode.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, mode.KindNotFound, kind)
}

func TestEngine_SetModeCapacityExceeded(t *testing.T) {
	vim := newStubMode("vim", mode.CategoryOperational, 2, 0.3)
	vim.def.MaxConcurrentSessions = 1
	editing := newStubMode("editing", mode.CategoryCreative, 4, 0.5)
	sink := &captureSink{}
	e := newTestEngine(t, []*stubPlugin{vim, editing}, WithSink(sink))

	ctx := context.Background()
	require.NoError(t, e.SetMode(ctx, "holder", "vim", mode.TriggerManual))
	require.NoError(t, e.SetMode(ctx, "other", "editing", mode.TriggerManual))

	err := e.SetMode(ctx, "other", "vim", mode.TriggerManual)
	require.Error(t, err)
	assert.True(t, errors.Is(err, mode.ErrCapacityExceeded))

	var typed *mode.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, "vim", typed.Mode)
	assert.Equal(t, "other", typed.Session)

	// The refused switch leaves the previous mode in place.
	def, ok := e.CurrentMode("other")
	require.True(t, ok)
	assert.Equal(t, "editing", def.ID)
	assert.Equal(t, 0, editing.deactivationCount())

	failed := sink.ofType(mode.EventDispatchFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, mode.KindCapacityExceeded, failed[0].ErrKind)

	// Ending the holding session frees the slot.
	require.NoError(t, e.EndSession("holder"))
	require.NoError(t, e.SetMode(ctx, "other", "vim", mode.TriggerManual))
	def, _ = e.CurrentMode("other")
	assert.Equal(t, "vim", def.ID)
}

func TestEngine_ProcessTimeoutKeepsModeActive(t *testing.T) {
	slow := newStubMode("slow", mode.CategoryTechnical, 5, 0.7)
	slow.def.Timeout = 50 * time.Millisecond
	slow.setProcess(func(ctx context.Context, input string, _ mode.Context) mode.Result {
		if input != "stall" {
			return mode.Result{Success: true, Output: "quick"}
		}
		select {
		case <-ctx.Done():
			return mode.Result{}
		case <-time.After(2 * time.Second):
			return mode.Result{Success: true, Output: "late"}
		}
	})
	sink := &captureSink{}
	e := newTestEngine(t, []*stubPlugin{slow}, WithSink(sink))

	ctx := context.Background()
	_, err := e.Process(ctx, "s1", "stall", ProcessOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, mode.ErrTimeout))

	// Timeout does not deactivate; the session can retry immediately.
	def, ok := e.CurrentMode("s1")
	require.True(t, ok)
	assert.Equal(t, "slow", def.ID)
	assert.Equal(t, 0, slow.deactivationCount())
	require.Len(t, e.History("s1"), 1)
	assert.True(t, e.History("s1")[0].Active())

	res, err := e.Process(ctx, "s1", "retry", ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, "quick", res.Output)

	failed := sink.ofType(mode.EventDispatchFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, mode.KindTimeout, failed[0].ErrKind)
	assert.Equal(t, "slow", failed[0].Mode)
}

func TestEngine_PluginFailureCarriesResult(t *testing.T) {
	flaky := newStubMode("flaky", mode.CategoryTechnical, 5, 0.6)
	flaky.setProcess(func(_ context.Context, input string, _ mode.Context) mode.Result {
		return mode.Failf("index unavailable for %q", input)
	})
	e := newTestEngine(t, []*stubPlugin{flaky})

	res, err := e.Process(context.Background(), "s1", "search", ProcessOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, mode.ErrPluginFailure))
	assert.Contains(t, err.Error(), "mode reported failure")
	// The plugin's own failure output survives for rendering.
	assert.Equal(t, `index unavailable for "search"`, res.Output)
	assert.False(t, res.Success)

	def, ok := e.CurrentMode("s1")
	require.True(t, ok)
	assert.Equal(t, "flaky", def.ID)
}

func TestEngine_ProcessPanicIsolated(t *testing.T) {
	wild := newStubMode("wild", mode.CategoryCreative, 5, 0.6)
	wild.setProcess(func(_ context.Context, input string, _ mode.Context) mode.Result {
		if input == "boom" {
			panic("nil map write")
		}
		return mode.Result{Success: true, Output: "ok"}
	})
	e := newTestEngine(t, []*stubPlugin{wild})

	ctx := context.Background()
	_, err := e.Process(ctx, "s1", "boom", ProcessOptions{})
	require.Error(t, err)
	kind, _ := mode.KindOf(err)
	assert.Equal(t, mode.KindPluginFailure, kind)

	// The engine and the session both survive the panic.
	res, err := e.Process(ctx, "s1", "calm", ProcessOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Output)
}

func TestEngine_ScorerPanicScoresZero(t *testing.T) {
	broken := newStubMode("broken", mode.CategoryAnalytical, 9, 0.99)
	broken.setScore(func(context.Context, string, mode.Context) mode.Fitness {
		panic("scorer bug")
	})
	sane := newStubMode("sane", mode.CategoryTechnical, 2, 0.4)
	e := newTestEngine(t, []*stubPlugin{broken, sane})

	_, err := e.Process(context.Background(), "s1", "hello", ProcessOptions{})
	require.NoError(t, err)
	def, _ := e.CurrentMode("s1")
	assert.Equal(t, "sane", def.ID)
}

func TestEngine_ScorerOverrunScoresZero(t *testing.T) {
	laggard := newStubMode("laggard", mode.CategoryAnalytical, 9, 0.99)
	laggard.setScore(func(ctx context.Context, _ string, _ mode.Context) mode.Fitness {
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
		return mode.NewFitness(0.99)
	})
	prompt := newStubMode("prompt", mode.CategoryTechnical, 2, 0.4)
	e := newTestEngine(t, []*stubPlugin{laggard, prompt},
		WithFanoutTimeout(30*time.Millisecond))

	_, err := e.Process(context.Background(), "s1", "hello", ProcessOptions{})
	require.NoError(t, err)
	def, _ := e.CurrentMode("s1")
	assert.Equal(t, "prompt", def.ID)
}

func TestEngine_ActivateFailureKeepsPrevious(t *testing.T) {
	current := newStubMode("current", mode.CategoryOperational, 3, 0.3)
	next := newStubMode("next", mode.CategoryTechnical, 5, 0.02)
	e := newTestEngine(t, []*stubPlugin{current, next},
		WithPolicy(AutoSwitchPolicy{Enabled: true, Threshold: 0}))

	ctx := context.Background()
	_, err := e.Process(ctx, "s1", "start here", ProcessOptions{})
	require.NoError(t, err)

	next.setScore(func(context.Context, string, mode.Context) mode.Fitness {
		return mode.NewFitness(0.95)
	})
	next.setActivateErr(errors.New("workspace not mounted"))

	_, err = e.Process(ctx, "s1", "move along", ProcessOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, mode.ErrPluginFailure))

	// Activation order guarantees the old mode was never torn down.
	def, ok := e.CurrentMode("s1")
	require.True(t, ok)
	assert.Equal(t, "current", def.ID)
	assert.Equal(t, 0, current.deactivationCount())

	// The failed activation released its capacity slot.
	_, held := e.Statistics().ActiveByMode["next"]
	assert.False(t, held)

	next.setActivateErr(nil)
	_, err = e.Process(ctx, "s1", "move along now", ProcessOptions{})
	require.NoError(t, err)
	def, _ = e.CurrentMode("s1")
	assert.Equal(t, "next", def.ID)
}

func TestEngine_SwitchEventSequence(t *testing.T) {
	a := newStubMode("a", mode.CategoryAnalytical, 5, 0.5)
	b := newStubMode("b", mode.CategoryTechnical, 5, 0.05)
	sink := &captureSink{}
	e := newTestEngine(t, []*stubPlugin{a, b},
		WithSink(sink),
		WithPolicy(AutoSwitchPolicy{Enabled: true, Threshold: 0.1}))

	ctx := context.Background()
	_, err := e.Process(ctx, "s1", "first", ProcessOptions{})
	require.NoError(t, err)

	b.setScore(func(context.Context, string, mode.Context) mode.Fitness {
		return mode.NewFitness(0.9)
	})
	_, err = e.Process(ctx, "s1", "second", ProcessOptions{})
	require.NoError(t, err)

	want := []mode.EventType{
		mode.EventModeActivated,     // a
		mode.EventDispatchCompleted, // first input
		mode.EventModeDeactivated,   // a, after b is safely up
		mode.EventModeActivated,     // b
		mode.EventModeSwitched,
		mode.EventDispatchCompleted, // second input
	}
	assert.Equal(t, want, sink.types())

	deactivated := sink.ofType(mode.EventModeDeactivated)
	require.Len(t, deactivated, 1)
	assert.Equal(t, "a", deactivated[0].Mode)
}

func TestEngine_ConcurrentSessionsIsolated(t *testing.T) {
	shared := newStubMode("shared", mode.CategoryAnalytical, 5, 0.8)
	shared.def.MaxConcurrentSessions = 64
	e := newTestEngine(t, []*stubPlugin{shared})

	const sessions = 24
	var wg sync.WaitGroup
	errs := make([]error, sessions)
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("sess-%02d", n)
			_, errs[n] = e.Process(context.Background(), id, "work", ProcessOptions{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "session %d", i)
	}
	stats := e.Statistics()
	assert.Equal(t, sessions, stats.TrackedSessions)
	assert.Equal(t, sessions, stats.ActiveSessions)
	assert.Equal(t, sessions, stats.ActiveByMode["shared"])
}

func TestEngine_CapacityInvariantUnderContention(t *testing.T) {
	scarce := newStubMode("scarce", mode.CategoryTechnical, 5, 0.8)
	scarce.def.MaxConcurrentSessions = 3
	e := newTestEngine(t, []*stubPlugin{scarce})

	const contenders = 12
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("contender-%02d", n)
			errs[n] = e.SetMode(context.Background(), id, "scarce", mode.TriggerManual)
		}(i)
	}
	wg.Wait()

	won, refused := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, mode.ErrCapacityExceeded):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 3, won)
	assert.Equal(t, contenders-3, refused)
	assert.Equal(t, 3, e.Statistics().ActiveByMode["scarce"])
}
