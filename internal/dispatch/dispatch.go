package dispatch

import (
	"context"
	"errors"
	"fmt"

	"cogmux/internal/mode"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// DISPATCH - SELECTION AND LIFECYCLE
// =============================================================================

// ProcessOptions carries the caller-side knobs for one dispatch call.
type ProcessOptions struct {
	// ManualMode names a target mode explicitly. The confidence
	// comparison is bypassed; capacity checks still apply.
	ManualMode string
	// Metadata is copied into the mode context for plugins to read.
	Metadata map[string]string
}

// Process runs the full selection-switch-process sequence for one
// input. Calls for the same session are serialized; calls for
// different sessions run in parallel.
//
// The returned error, when non-nil, is always a *mode.Error. A
// PluginFailure may still carry a usable Result (the plugin's own
// failure output) for rendering.
func (e *Engine) Process(ctx context.Context, sessionID, input string, opts ProcessOptions) (mode.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sess := e.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	now := e.now()
	sess.lastTouched = now
	mc := mode.Context{
		SessionID:    sessionID,
		Input:        input,
		Timestamp:    now,
		PreviousMode: sess.activeMode,
		Metadata:     mode.CloneMetadata(opts.Metadata),
	}

	var (
		res mode.Result
		err error
	)
	if opts.ManualMode != "" {
		res, err = e.dispatchManualLocked(ctx, sess, opts.ManualMode, input, mc)
	} else {
		res, err = e.dispatchAutoLocked(ctx, sess, input, mc)
	}
	if err != nil {
		e.publishFailure(sessionID, err)
	}
	return res, err
}

// SetMode is the explicit override: it activates modeID for the
// session regardless of confidence. Capacity limits still apply, and a
// failure leaves the session's previous mode active.
func (e *Engine) SetMode(ctx context.Context, sessionID, modeID string, trigger mode.Trigger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !trigger.Valid() {
		trigger = mode.TriggerManual
	}
	ent, ok := e.registry.lookup(modeID)
	if !ok {
		err := mode.NewError(mode.KindNotFound, modeID, sessionID, nil)
		e.publishFailure(sessionID, err)
		return err
	}

	sess := e.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	now := e.now()
	sess.lastTouched = now
	if sess.activeMode == modeID {
		return nil
	}
	mc := mode.Context{
		SessionID:    sessionID,
		Timestamp:    now,
		PreviousMode: sess.activeMode,
	}
	// An explicit override pins the mode at full confidence, so an
	// automatic challenger can never clear a positive threshold over
	// it. Only another override or the session ending moves it.
	if err := e.switchToLocked(ctx, sess, ent, trigger, 1.0, mc); err != nil {
		e.publishFailure(sessionID, err)
		return err
	}
	return nil
}

// dispatchAutoLocked scores every mode and applies the selection and
// switching policy. Callers hold sess.mu.
func (e *Engine) dispatchAutoLocked(ctx context.Context, sess *sessionState, input string, mc mode.Context) (mode.Result, error) {
	cands := e.scoreAll(ctx, input, mc)
	winner, ok := selectWinner(cands, e.floor)
	if !ok {
		return mode.Result{}, mode.NewError(mode.KindNoApplicableMode, "", sess.id,
			fmt.Errorf("no mode cleared the %.2f confidence floor", e.floor))
	}

	target := winner.ent
	confidence := winner.fit.Confidence

	switch current := sess.activeMode; current {
	case "":
		if err := e.switchToLocked(ctx, sess, target, mode.TriggerAutomatic, confidence, mc); err != nil {
			return mode.Result{}, err
		}
	case target.def.ID:
		// Winner already active: process again, no lifecycle churn.
	default:
		pol := e.policy.snapshot()
		delta := confidence - sess.confidenceAtActivation
		if pol.Enabled && delta >= pol.Threshold {
			if err := e.switchToLocked(ctx, sess, target, mode.TriggerAutomatic, confidence, mc); err != nil {
				return mode.Result{}, err
			}
		} else {
			// Hysteresis: the active mode keeps the dispatch even though
			// a stronger candidate exists. The margin requirement is what
			// prevents mode thrashing on near-equal scores.
			e.log.Debug("auto-switch suppressed",
				zap.String("session", sess.id),
				zap.String("active", current),
				zap.String("challenger", target.def.ID),
				zap.Float64("delta", delta),
				zap.Float64("threshold", pol.Threshold),
				zap.Bool("enabled", pol.Enabled))
			cur, found := e.registry.lookup(current)
			if !found {
				return mode.Result{}, mode.NewError(mode.KindNotFound, current, sess.id,
					fmt.Errorf("active mode missing from registry"))
			}
			target = cur
			confidence = confidenceFor(cands, current)
		}
	}

	return e.runProcess(ctx, target, input, mc.WithConfidence(confidence))
}

// dispatchManualLocked handles a process call that names its target
// mode. Callers hold sess.mu.
func (e *Engine) dispatchManualLocked(ctx context.Context, sess *sessionState, modeID, input string, mc mode.Context) (mode.Result, error) {
	ent, ok := e.registry.lookup(modeID)
	if !ok {
		return mode.Result{}, mode.NewError(mode.KindNotFound, modeID, sess.id, nil)
	}

	// Score just the target so the activation record and the plugin
	// context still carry an honest confidence.
	fanCtx, cancel := context.WithTimeout(ctx, e.fanoutTimeout)
	fit := e.safeCanHandle(fanCtx, ent, input, mc)
	cancel()

	if sess.activeMode != ent.def.ID {
		if err := e.switchToLocked(ctx, sess, ent, mode.TriggerManual, fit.Confidence, mc); err != nil {
			return mode.Result{}, err
		}
	}
	return e.runProcess(ctx, ent, input, mc.WithConfidence(fit.Confidence))
}

// -----------------------------------------------------------------------------
// Scoring fan-out
// -----------------------------------------------------------------------------

// scoredCandidate pairs a registry entry with its fitness for the
// current input.
type scoredCandidate struct {
	ent *entry
	fit mode.Fitness
}

// better orders candidates: confidence, then priority, then
// registration order. Selection must be fully deterministic for the
// same scores.
func (c scoredCandidate) better(o scoredCandidate) bool {
	if c.fit.Confidence != o.fit.Confidence {
		return c.fit.Confidence > o.fit.Confidence
	}
	if c.ent.def.Priority != o.ent.def.Priority {
		return c.ent.def.Priority > o.ent.def.Priority
	}
	return c.ent.seq < o.ent.seq
}

// scoreAll fans CanHandle out across every registered plugin. The
// round is bounded by the engine's fan-out timeout; a plugin that
// overruns it scores zero for this dispatch.
func (e *Engine) scoreAll(ctx context.Context, input string, mc mode.Context) []scoredCandidate {
	entries := e.registry.snapshot()
	if len(entries) == 0 {
		return nil
	}

	fanCtx, cancel := context.WithTimeout(ctx, e.fanoutTimeout)
	defer cancel()

	results := make([]scoredCandidate, len(entries))
	g, gctx := errgroup.WithContext(fanCtx)
	for i, ent := range entries {
		i, ent := i, ent // per-iteration copies; this module builds with go < 1.22 semantics
		g.Go(func() error {
			results[i] = scoredCandidate{ent: ent, fit: e.safeCanHandle(gctx, ent, input, mc)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// safeCanHandle runs one plugin's scorer with panic isolation and a
// hard deadline. Panics and overruns score zero; scoring must never
// take a dispatch down.
func (e *Engine) safeCanHandle(ctx context.Context, ent *entry, input string, mc mode.Context) mode.Fitness {
	done := make(chan mode.Fitness, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Warn("mode scorer panicked",
					zap.String("mode", ent.def.ID),
					zap.Any("panic", r))
				done <- mode.Fitness{}
			}
		}()
		fit := ent.plugin.CanHandle(ctx, input, mc)
		fit.Confidence = mode.ClampConfidence(fit.Confidence)
		done <- fit
	}()

	select {
	case fit := <-done:
		return fit
	case <-ctx.Done():
		return mode.Fitness{}
	}
}

// selectWinner applies the confidence floor and picks the best
// candidate. ok is false when nothing clears the floor.
func selectWinner(cands []scoredCandidate, floor float64) (scoredCandidate, bool) {
	var best scoredCandidate
	found := false
	for _, c := range cands {
		if c.ent == nil || c.fit.Confidence < floor {
			continue
		}
		if !found || c.better(best) {
			best = c
			found = true
		}
	}
	return best, found
}

// confidenceFor returns the round score for a mode id, zero when the
// mode produced nothing this round.
func confidenceFor(cands []scoredCandidate, id string) float64 {
	for _, c := range cands {
		if c.ent != nil && c.ent.def.ID == id {
			return c.fit.Confidence
		}
	}
	return 0
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// switchToLocked moves the session onto next. Order matters: the
// capacity slot is claimed and the new plugin activated before the old
// one is torn down, so any failure leaves the previous mode active and
// the session record untouched. Callers hold sess.mu.
func (e *Engine) switchToLocked(ctx context.Context, sess *sessionState, next *entry, trigger mode.Trigger, confidence float64, mc mode.Context) error {
	if sess.activeMode == next.def.ID {
		return nil
	}
	if !next.tryAcquire() {
		return mode.NewError(mode.KindCapacityExceeded, next.def.ID, sess.id,
			fmt.Errorf("%d sessions active, limit %d", next.activeCount(), next.def.MaxConcurrentSessions))
	}
	if err := e.safeActivate(ctx, next, mc.WithConfidence(confidence)); err != nil {
		next.release()
		return err
	}

	prev := sess.activeMode
	if prev != "" {
		e.deactivateLocked(sess)
	}
	now := e.now()
	sess.openEntry(next.def.ID, trigger, confidence, now)

	e.publish(mode.Event{
		Type:       mode.EventModeActivated,
		SessionID:  sess.id,
		Mode:       next.def.ID,
		Category:   next.def.Category,
		Trigger:    trigger,
		Confidence: confidence,
		At:         now,
	})
	if prev != "" {
		e.publish(mode.Event{
			Type:         mode.EventModeSwitched,
			SessionID:    sess.id,
			Mode:         next.def.ID,
			PreviousMode: prev,
			Trigger:      trigger,
			Confidence:   confidence,
			At:           now,
		})
		if e.policy.snapshot().LearningEnabled {
			e.recordTransition(prev, next.def.ID)
		}
	}
	e.log.Info("mode activated",
		zap.String("session", sess.id),
		zap.String("mode", next.def.ID),
		zap.String("previous", prev),
		zap.String("trigger", string(trigger)),
		zap.Float64("confidence", confidence))
	return nil
}

// deactivateLocked retires the session's active mode: plugin call,
// counter release, history close, event. Callers hold sess.mu.
func (e *Engine) deactivateLocked(sess *sessionState) {
	id := sess.activeMode
	if id == "" {
		return
	}
	ent, ok := e.registry.lookup(id)
	if ok {
		e.safeDeactivate(ent, sess.id)
		ent.release()
	}
	closed, closedOK := sess.closeEntry(e.now())
	if !closedOK {
		return
	}
	ev := mode.Event{
		Type:       mode.EventModeDeactivated,
		SessionID:  sess.id,
		Mode:       closed.Mode,
		Trigger:    closed.Trigger,
		Confidence: closed.Confidence,
		Duration:   closed.Duration,
		At:         closed.EndedAt,
	}
	if ok {
		ev.Category = ent.def.Category
	}
	e.publish(ev)
}

// safeActivate bounds a plugin's Activate by its configured timeout
// and absorbs panics into typed errors.
func (e *Engine) safeActivate(ctx context.Context, ent *entry, mc mode.Context) error {
	actx, cancel := context.WithTimeout(ctx, ent.def.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- mode.NewError(mode.KindPluginFailure, ent.def.ID, mc.SessionID,
					fmt.Errorf("activate panicked: %v", r))
			}
		}()
		done <- ent.plugin.Activate(actx, mc)
	}()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		var typed *mode.Error
		if errors.As(err, &typed) {
			return err
		}
		return mode.NewError(mode.KindPluginFailure, ent.def.ID, mc.SessionID, err)
	case <-actx.Done():
		return mode.NewError(mode.KindTimeout, ent.def.ID, mc.SessionID, actx.Err())
	}
}

// safeDeactivate shields the dispatcher from a misbehaving Deactivate.
func (e *Engine) safeDeactivate(ent *entry, sessionID string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("mode deactivate panicked",
				zap.String("mode", ent.def.ID),
				zap.String("session", sessionID),
				zap.Any("panic", r))
		}
	}()
	ent.plugin.Deactivate(sessionID)
}

// runProcess executes the selected mode's Process under its timeout.
// Timeouts and failures surface as typed errors without touching the
// session record, so the mode stays active and a retry is possible.
func (e *Engine) runProcess(ctx context.Context, ent *entry, input string, mc mode.Context) (mode.Result, error) {
	pctx, cancel := context.WithTimeout(ctx, ent.def.Timeout)
	defer cancel()

	type outcome struct {
		res      mode.Result
		panicked error
	}
	done := make(chan outcome, 1)
	start := e.now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{panicked: fmt.Errorf("process panicked: %v", r)}
			}
		}()
		done <- outcome{res: ent.plugin.Process(pctx, input, mc)}
	}()

	select {
	case out := <-done:
		if out.panicked != nil {
			return mode.Result{}, mode.NewError(mode.KindPluginFailure, ent.def.ID, mc.SessionID, out.panicked)
		}
		res := out.res
		if res.Confidence == 0 {
			res.Confidence = mc.Confidence
		}
		if !res.Success {
			return res, mode.NewError(mode.KindPluginFailure, ent.def.ID, mc.SessionID,
				fmt.Errorf("mode reported failure: %s", res.Output))
		}
		e.publish(mode.Event{
			Type:       mode.EventDispatchCompleted,
			SessionID:  mc.SessionID,
			Mode:       ent.def.ID,
			Category:   ent.def.Category,
			Confidence: mc.Confidence,
			Duration:   e.now().Sub(start),
			At:         e.now(),
		})
		return res, nil
	case <-pctx.Done():
		return mode.Result{}, mode.NewError(mode.KindTimeout, ent.def.ID, mc.SessionID, pctx.Err())
	}
}

// publishFailure emits the single dispatch-failed event for a typed
// error. Untyped errors should not escape the engine; they are
// published without a kind if one ever does.
func (e *Engine) publishFailure(sessionID string, err error) {
	ev := mode.Event{
		Type:      mode.EventDispatchFailed,
		SessionID: sessionID,
		At:        e.now(),
	}
	var typed *mode.Error
	if errors.As(err, &typed) {
		ev.ErrKind = typed.Kind
		ev.Mode = typed.Mode
	}
	e.publish(ev)
}
