// Package runner implements the runner lifecycle: start/stop, event
// fan-in from a watcher or mock feed, startup event synthesis, and
// snapshot/restore of runtime state.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autoscript/runtime/internal/autoscript/executor"
	"github.com/autoscript/runtime/internal/autoscript/impact"
	"github.com/autoscript/runtime/internal/autoscript/model"
	"github.com/autoscript/runtime/internal/autoscript/scheduler"
	"github.com/autoscript/runtime/internal/autoscript/state"
	"github.com/autoscript/runtime/internal/autoscript/watcher"
	"github.com/autoscript/runtime/internal/platform/logging"
)

// ErrAlreadyActive is returned by Start when the runner is already
// running.
var ErrAlreadyActive = errors.New("runner: already active")

// ErrMissingProfileID is returned by Start when profileID is empty.
var ErrMissingProfileID = errors.New("runner: profileId is required")

// DoneResult is what the completion future resolves with, exactly once.
type DoneResult struct {
	RunID     string
	Reason    string
	StartedAt time.Time
	StoppedAt time.Time
}

// Tracer opens a span covering one operation's full attempt loop. Satisfied
// structurally by telemetry.Tracer; declared here rather than imported to
// avoid a runner<->telemetry import cycle (telemetry already depends on
// runner for the Observer contract).
type Tracer interface {
	StartOperation(ctx context.Context, runID string, op model.Operation, ectx executor.Event) (context.Context, func(outcome executor.Outcome))
}

// Deps bundles everything a Runner needs beyond the script itself.
type Deps struct {
	Script                      model.Script
	Wrapper                     *executor.Wrapper
	Impact                      *impact.Engine
	Scheduler                   *scheduler.Scheduler
	Watcher                     watcher.Watcher
	MockFeed                    *watcher.MockFeed
	StopWhenMockEventsExhausted bool
	Observer                    Observer
	Tracer                      Tracer
	Logger                      logging.Logger
}

// Runner owns all mutable state for one script execution.
type Runner struct {
	script    model.Script
	wrapper   *executor.Wrapper
	impact    *impact.Engine
	sched     *scheduler.Scheduler
	watcher   watcher.Watcher
	mockFeed  *watcher.MockFeed
	stopWhenExhausted bool
	observer  Observer
	tracer    Tracer
	logger    logging.Logger

	store *state.Store
	q     *queue

	mu          sync.Mutex
	active      bool
	runID       string
	profileID   string
	startedAt   time.Time
	stoppedAt   time.Time
	watchHandle watcher.Handle

	doneCh   chan DoneResult
	stopOnce *sync.Once
}

// New constructs a Runner for script with a freshly seeded state store.
func New(deps Deps) *Runner {
	subIDs := make([]string, 0, len(deps.Script.Subscriptions))
	for _, s := range deps.Script.Subscriptions {
		subIDs = append(subIDs, s.ID)
	}
	opIDs := make([]string, 0, len(deps.Script.Operations))
	for _, o := range deps.Script.Operations {
		opIDs = append(opIDs, o.ID)
	}
	return newRunner(deps, state.New(subIDs, opIDs))
}

// NewFromSnapshot constructs a Runner whose state store is seeded from a
// previously captured Snapshot, restoring it to the point the snapshot
// was taken.
func NewFromSnapshot(deps Deps, snap Snapshot) *Runner {
	return newRunner(deps, fromStateImage(snap.State))
}

func newRunner(deps Deps, st *state.Store) *Runner {
	observer := deps.Observer
	if observer == nil {
		observer = NewLoggingObserver(deps.Logger)
	}
	return &Runner{
		script:            deps.Script,
		wrapper:           deps.Wrapper,
		impact:            deps.Impact,
		sched:             deps.Scheduler,
		watcher:           deps.Watcher,
		mockFeed:          deps.MockFeed,
		stopWhenExhausted: deps.StopWhenMockEventsExhausted,
		observer:          observer,
		tracer:            deps.Tracer,
		logger:            logging.OrNop(deps.Logger),
		store:             st,
		q:                 newQueue(),
	}
}

func (r *Runner) observe(event string, payload map[string]any) {
	r.observer.Observe(Observation{
		RunID:     r.runID,
		ProfileID: r.profileID,
		Event:     event,
		Ts:        time.Now(),
		Payload:   payload,
	})
}

// Start begins the run. It requires profileID and fails synchronously if
// the runner is already active.
func (r *Runner) Start(profileID string) error {
	if profileID == "" {
		return ErrMissingProfileID
	}

	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrAlreadyActive
	}
	r.active = true
	r.profileID = profileID
	r.runID = uuid.NewString()
	r.startedAt = time.Now()
	r.doneCh = make(chan DoneResult, 1)
	r.stopOnce = &sync.Once{}
	r.mu.Unlock()

	r.observe(EvtStart, map[string]any{"scriptName": r.script.Name})

	if r.mockFeed != nil {
		go r.mockFeed.Run(
			func(e watcher.Event) { r.HandleEvent(e) },
			func() {
				if r.stopWhenExhausted {
					r.q.enqueue(func() { r.Stop("mock_events_exhausted") })
				}
			},
		)
	} else if r.watcher != nil {
		h, err := r.watcher.Watch(profileID, r.script.Subscriptions, r.script.Throttle,
			func(e watcher.Event) { r.HandleEvent(e) },
			func(err error) { r.observe(EvtWatchError, map[string]any{"error": err.Error()}) },
		)
		if err != nil {
			r.mu.Lock()
			r.active = false
			r.mu.Unlock()
			return fmt.Errorf("runner: start watcher: %w", err)
		}
		r.mu.Lock()
		r.watchHandle = h
		r.mu.Unlock()
	}

	r.HandleEvent(watcher.Event{Type: watcher.TypeStartup, Timestamp: r.startedAt})
	return nil
}

// Stop is idempotent: only the first call has any effect.
func (r *Runner) Stop(reason string) {
	r.mu.Lock()
	once := r.stopOnce
	handle := r.watchHandle
	r.mu.Unlock()
	if once == nil {
		return
	}
	once.Do(func() {
		r.mu.Lock()
		r.active = false
		r.stoppedAt = time.Now()
		started := r.startedAt
		stopped := r.stoppedAt
		runID := r.runID
		r.mu.Unlock()

		if handle != nil {
			handle.Stop()
		}
		r.observe(EvtStop, map[string]any{"reason": reason})
		r.doneCh <- DoneResult{RunID: runID, Reason: reason, StartedAt: started, StoppedAt: stopped}
		close(r.doneCh)
	})
}

// Done returns the single-resolution completion future.
func (r *Runner) Done() <-chan DoneResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doneCh
}

// IsActive reports whether the runner is currently running.
func (r *Runner) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// RequestForceRun bypasses trigger matching and key dedup for opID on the
// next scan.
func (r *Runner) RequestForceRun(opID string) {
	r.sched.RequestForceRun(opID)
}

func toStateKind(t watcher.EventType) (state.EventKind, bool) {
	switch t {
	case watcher.TypeAppear:
		return state.EventKindAppear, true
	case watcher.TypeExist:
		return state.EventKindExist, true
	case watcher.TypeDisappear:
		return state.EventKindDisappear, true
	case watcher.TypeChange:
		return state.EventKindChange, true
	default:
		return "", false
	}
}

// HandleEvent folds one watcher/mock-feed event into subscription state
// and scans for newly eligible operations.
func (r *Runner) HandleEvent(evt watcher.Event) {
	if !r.IsActive() {
		return
	}

	r.observe(EvtEvent, map[string]any{"type": evt.Type, "subscriptionId": evt.SubscriptionID})

	now := time.Now()
	var schedEvt scheduler.Event

	if kind, ok := toStateKind(evt.Type); ok && evt.SubscriptionID != "" {
		r.store.ApplyEvent(evt.SubscriptionID, kind, evt.Count, now)
		if evt.Type == watcher.TypeAppear {
			scheduler.ResetOnAppear(r.script, evt.SubscriptionID, r.store, now)
		}
		schedEvt = scheduler.Event{
			Kind:              scheduler.EventSubscription,
			SubscriptionID:    evt.SubscriptionID,
			SubscriptionEvent: model.SubscriptionEvent(evt.Type),
			Timestamp:         now,
		}
	} else {
		switch evt.Type {
		case watcher.TypeStartup:
			schedEvt = scheduler.Event{Kind: scheduler.EventStartup, Timestamp: now}
		case watcher.TypeManual:
			schedEvt = scheduler.Event{Kind: scheduler.EventManual, Timestamp: now}
		default:
			return
		}
	}

	r.scheduleReady(schedEvt)
}

// HandleCronFire folds a cron registry firing into a scheduler event, the
// cron-trigger analogue of HandleEvent for watcher-sourced events.
func (r *Runner) HandleCronFire(op model.Operation) {
	if !r.IsActive() {
		return
	}
	r.observe(EvtEvent, map[string]any{"type": "cron", "operationId": op.ID, "cronName": op.Trigger.CronName})
	r.scheduleReady(scheduler.Event{
		Kind:      scheduler.EventCron,
		CronName:  op.Trigger.CronName,
		Timestamp: time.Now(),
	})
}

func (r *Runner) scheduleReady(evt scheduler.Event) {
	scheduled := r.sched.Scan(r.script, evt, r.store, r.impact, time.Now())
	for _, sc := range scheduled {
		op, ok := r.script.OperationByID(sc.OperationID)
		if !ok {
			continue
		}
		r.enqueueOperation(op, evt, sc)
	}
}

func toExecutorEvent(evt scheduler.Event) executor.Event {
	return executor.Event{
		SubscriptionID:    evt.SubscriptionID,
		SubscriptionEvent: evt.SubscriptionEvent,
		IsSubscription:    evt.Kind == scheduler.EventSubscription,
	}
}

func (r *Runner) enqueueOperation(op model.Operation, evt scheduler.Event, sc scheduler.Scheduled) {
	r.q.enqueue(func() {
		if !r.IsActive() {
			r.sched.MarkDequeued(op.ID)
			return
		}

		now := time.Now()
		r.store.Schedule(op.ID).LastStartedAt = &now
		r.observe(EvtOperationStart, map[string]any{"operationId": op.ID, "attempt": 1})

		ectx := executor.Context{
			RunID:     r.runID,
			ProfileID: r.profileID,
			Event:     toExecutorEvent(evt),
			Runtime:   r.store.Runtime.Vars,
		}

		ctx := context.Background()
		var endSpan func(executor.Outcome)
		if r.tracer != nil {
			ctx, endSpan = r.tracer.StartOperation(ctx, r.runID, op, ectx.Event)
		}

		outcome := r.wrapper.Run(ctx, op, r.script.Defaults, ectx, r.store)
		if endSpan != nil {
			endSpan(outcome)
		}
		r.applyOutcome(op, sc, outcome)

		if outcome.Status == state.StatusDone {
			r.scheduleReady(evt)
		}
		r.sched.MarkDequeued(op.ID)

		if outcome.StopReason != "" {
			r.Stop(outcome.StopReason)
		}
	})
}

func (r *Runner) applyOutcome(op model.Operation, sc scheduler.Scheduled, outcome executor.Outcome) {
	now := time.Now()
	opState := r.store.Operation(op.ID)
	opState.Status = outcome.Status
	opState.Runs++
	opState.UpdatedAt = &now
	opState.Result = outcome.Data
	if outcome.Status == state.StatusFailed || outcome.Status == state.StatusSkipped {
		msg := outcome.Message
		opState.LastError = &msg
	} else {
		opState.LastError = nil
	}

	if outcome.Code != executor.OperationSkippedStaleTrigger && outcome.Code != executor.OperationSkippedStaleTriggerPreValidation {
		sched := r.store.Schedule(op.ID)
		sched.LastCompletedAppearCount = sc.AppearCount
	}

	payload := map[string]any{"operationId": op.ID, "code": outcome.Code, "message": outcome.Message, "attempts": outcome.Attempts}

	switch outcome.Status {
	case state.StatusDone:
		r.observe(EvtOperationDone, payload)
	case state.StatusFailed:
		r.observe(EvtOperationError, payload)
	case state.StatusSkipped:
		r.observe(EvtOperationSkipped, payload)
	}

	if outcome.TerminalDoneCode != "" {
		r.observe(EvtOperationTerminal, map[string]any{"operationId": op.ID, "code": outcome.TerminalDoneCode})
	}

	if outcome.Recovery != nil {
		if outcome.Recovery.OK {
			r.observe(EvtOperationRecovered, map[string]any{"operationId": op.ID, "attempts": outcome.Recovery.Attempts})
		} else {
			r.observe(EvtOperationRecoveryFailed, map[string]any{"operationId": op.ID, "code": outcome.Recovery.Code})
		}
	}

	if outcome.Impact.Scope != "" && outcome.Impact.Scope != impact.ScopeNone {
		r.observe(EvtImpact, map[string]any{
			"operationId":           op.ID,
			"scope":                 outcome.Impact.Scope,
			"blockedSubscriptionId": outcome.Impact.BlockedSubscriptionID,
			"blockedOperationId":    outcome.Impact.BlockedOperationID,
		})
	}
}

// Snapshot exports a consistent state image at the current moment.
func (r *Runner) Snapshot(reason string) Snapshot {
	r.mu.Lock()
	flags := RunnerFlags{Active: r.active}
	if !r.startedAt.IsZero() {
		started := r.startedAt
		flags.StartedAt = &started
	}
	runID := r.runID
	profileID := r.profileID
	r.mu.Unlock()

	return Snapshot{
		Kind:       SnapshotKind,
		Version:    SnapshotVersion,
		Reason:     reason,
		CreatedAt:  time.Now(),
		RunID:      runID,
		ProfileID:  profileID,
		ScriptName: r.script.Name,
		State:      toStateImage(flags, r.store),
	}
}
