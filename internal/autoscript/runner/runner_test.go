package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/autoscript/runtime/internal/autoscript/executor"
	"github.com/autoscript/runtime/internal/autoscript/impact"
	"github.com/autoscript/runtime/internal/autoscript/model"
	"github.com/autoscript/runtime/internal/autoscript/scheduler"
	"github.com/autoscript/runtime/internal/autoscript/state"
	"github.com/autoscript/runtime/internal/autoscript/watcher"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Observation
}

func (r *eventRecorder) Observe(o Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, o)
}

func (r *eventRecorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.events {
		if o.Event == event {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func alwaysOK(ctx context.Context, op model.Operation, ectx executor.Context) (executor.Result, error) {
	return executor.Result{OK: true, Message: "ok"}, nil
}

func newTestRunner(t *testing.T, script model.Script, prim executor.Primitives, observer Observer) *Runner {
	t.Helper()
	eng := impact.New()
	wrapper := executor.NewWrapper(prim, eng, nil)
	sched := scheduler.New(nil)
	return New(Deps{
		Script:    script,
		Wrapper:   wrapper,
		Impact:    eng,
		Scheduler: sched,
		Observer:  observer,
	})
}

func TestStartRunsStartupOperationToCompletion(t *testing.T) {
	script := model.Script{
		Name: "startup-script",
		Operations: []model.Operation{
			{
				ID:        "op1",
				Enabled:   true,
				Action:    "noop",
				Trigger:   model.Trigger{Kind: model.TriggerStartup},
				Retry:     model.Retry{Attempts: 1},
				OnFailure: model.OnFailureContinue,
				Impact:    model.ImpactOp,
			},
		},
	}

	done := make(chan struct{})
	var once sync.Once
	observer := ObserverFunc(func(o Observation) {
		if o.Event == EvtOperationDone {
			once.Do(func() { close(done) })
		}
	})

	r := newTestRunner(t, script, executor.Primitives{Execute: alwaysOK}, observer)
	if err := r.Start("profile-a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, done, "op1 to complete")

	if got := r.store.Operation("op1").Status; got != state.StatusDone {
		t.Fatalf("op1 status = %v, want done", got)
	}
}

func TestStartRejectsEmptyProfileID(t *testing.T) {
	r := newTestRunner(t, model.Script{}, executor.Primitives{Execute: alwaysOK}, nil)
	if err := r.Start(""); err != ErrMissingProfileID {
		t.Fatalf("Start(\"\") error = %v, want ErrMissingProfileID", err)
	}
}

func TestStartTwiceReturnsAlreadyActive(t *testing.T) {
	script := model.Script{
		Operations: []model.Operation{
			{ID: "op1", Enabled: true, Trigger: model.Trigger{Kind: model.TriggerStartup}, Retry: model.Retry{Attempts: 1}},
		},
	}
	r := newTestRunner(t, script, executor.Primitives{Execute: alwaysOK}, nil)
	if err := r.Start("p1"); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer r.Stop("test_cleanup")

	if err := r.Start("p1"); err != ErrAlreadyActive {
		t.Fatalf("second Start error = %v, want ErrAlreadyActive", err)
	}
}

func TestStopIsIdempotentAndResolvesDoneOnce(t *testing.T) {
	script := model.Script{
		Operations: []model.Operation{
			{ID: "op1", Enabled: true, Trigger: model.Trigger{Kind: model.TriggerStartup}, Retry: model.Retry{Attempts: 1}},
		},
	}
	r := newTestRunner(t, script, executor.Primitives{Execute: alwaysOK}, nil)
	if err := r.Start("p1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Stop("manual_stop")
		}()
	}
	wg.Wait()

	select {
	case res, ok := <-r.Done():
		if !ok {
			t.Fatalf("Done channel closed without a result")
		}
		if res.Reason != "manual_stop" {
			t.Fatalf("Reason = %q, want manual_stop", res.Reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for Done()")
	}

	if r.IsActive() {
		t.Fatalf("runner still active after Stop")
	}
}

func TestHandleEventNoOpWhenNotStarted(t *testing.T) {
	script := model.Script{
		Operations: []model.Operation{
			{ID: "op1", Enabled: true, Trigger: model.Trigger{Kind: model.TriggerManual}, Retry: model.Retry{Attempts: 1}},
		},
	}
	rec := &eventRecorder{}
	r := newTestRunner(t, script, executor.Primitives{Execute: alwaysOK}, rec)

	r.HandleEvent(watcher.Event{Type: watcher.TypeManual, Timestamp: time.Now()})
	time.Sleep(20 * time.Millisecond)

	if rec.count(EvtOperationStart) != 0 {
		t.Fatalf("expected no operation_start observations while inactive")
	}
}

func TestMockFeedExhaustionDrainsQueueThenStops(t *testing.T) {
	script := model.Script{
		Subscriptions: []model.Subscription{
			{ID: "sub1", Events: []model.SubscriptionEvent{model.EventAppear}},
		},
		Operations: []model.Operation{
			{
				ID:      "op1",
				Enabled: true,
				Action:  "noop",
				Trigger: model.Trigger{Kind: model.TriggerSubscriptionEvent, SubscriptionID: "sub1", Event: model.EventAppear},
				Retry:   model.Retry{Attempts: 1},
			},
		},
	}

	eng := impact.New()
	wrapper := executor.NewWrapper(executor.Primitives{Execute: alwaysOK}, eng, nil)
	sched := scheduler.New(nil)
	feed := watcher.NewMockFeed([]watcher.MockEvent{
		{Type: watcher.TypeAppear, SubscriptionID: "sub1", Count: 1, DelayMs: 1},
	}, 0)

	rec := &eventRecorder{}
	r := New(Deps{
		Script:                      script,
		Wrapper:                     wrapper,
		Impact:                      eng,
		Scheduler:                   sched,
		MockFeed:                    feed,
		StopWhenMockEventsExhausted: true,
		Observer:                    rec,
	})

	if err := r.Start("profile-mock"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for mock feed exhaustion to stop the runner")
	}

	if rec.count(EvtOperationDone) != 1 {
		t.Fatalf("operation_done count = %d, want 1", rec.count(EvtOperationDone))
	}
	if rec.count(EvtStop) != 1 {
		t.Fatalf("stop count = %d, want 1", rec.count(EvtStop))
	}
}

func TestHandleCronFireSchedulesMatchingOperation(t *testing.T) {
	script := model.Script{
		Operations: []model.Operation{
			{
				ID:      "op1",
				Enabled: true,
				Trigger: model.Trigger{Kind: model.TriggerCron, CronName: "daily", CronExpr: "0 0 * * *"},
				Retry:   model.Retry{Attempts: 1},
			},
		},
	}

	done := make(chan struct{})
	var once sync.Once
	observer := ObserverFunc(func(o Observation) {
		if o.Event == EvtOperationDone {
			once.Do(func() { close(done) })
		}
	})

	r := newTestRunner(t, script, executor.Primitives{Execute: alwaysOK}, observer)
	if err := r.Start("profile-cron"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop("test_cleanup")

	r.HandleCronFire(script.Operations[0])
	waitFor(t, done, "cron-triggered op1 to complete")
}

type fakeTracer struct {
	mu     sync.Mutex
	starts int
	ends   int
}

func (f *fakeTracer) StartOperation(ctx context.Context, runID string, op model.Operation, ectx executor.Event) (context.Context, func(executor.Outcome)) {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
	return ctx, func(executor.Outcome) {
		f.mu.Lock()
		f.ends++
		f.mu.Unlock()
	}
}

func TestTracerWrapsOperationRun(t *testing.T) {
	script := model.Script{
		Operations: []model.Operation{
			{ID: "op1", Enabled: true, Trigger: model.Trigger{Kind: model.TriggerStartup}, Retry: model.Retry{Attempts: 1}},
		},
	}
	eng := impact.New()
	wrapper := executor.NewWrapper(executor.Primitives{Execute: alwaysOK}, eng, nil)
	tracer := &fakeTracer{}

	done := make(chan struct{})
	var once sync.Once
	observer := ObserverFunc(func(o Observation) {
		if o.Event == EvtOperationDone {
			once.Do(func() { close(done) })
		}
	})

	r := New(Deps{
		Script:    script,
		Wrapper:   wrapper,
		Impact:    eng,
		Scheduler: scheduler.New(nil),
		Observer:  observer,
		Tracer:    tracer,
	})
	if err := r.Start("profile-trace"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop("test_cleanup")
	waitFor(t, done, "op1 to complete")

	tracer.mu.Lock()
	defer tracer.mu.Unlock()
	if tracer.starts != 1 || tracer.ends != 1 {
		t.Fatalf("tracer starts=%d ends=%d, want 1/1", tracer.starts, tracer.ends)
	}
}

func TestSnapshotRoundTripRestoresOperationState(t *testing.T) {
	script := model.Script{
		Operations: []model.Operation{
			{ID: "op1", Enabled: true, Trigger: model.Trigger{Kind: model.TriggerStartup}, Retry: model.Retry{Attempts: 1}},
		},
	}

	done := make(chan struct{})
	var once sync.Once
	observer := ObserverFunc(func(o Observation) {
		if o.Event == EvtOperationDone {
			once.Do(func() { close(done) })
		}
	})

	r := newTestRunner(t, script, executor.Primitives{Execute: alwaysOK}, observer)
	if err := r.Start("profile-snap"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, done, "op1 to complete")

	snap := r.Snapshot("manual_checkpoint")
	r.Stop("test_cleanup")

	if snap.Kind != SnapshotKind || snap.Version != SnapshotVersion {
		t.Fatalf("unexpected snapshot envelope: %+v", snap)
	}

	restored := newTestRunner(t, script, executor.Primitives{Execute: alwaysOK}, nil)
	restored2 := NewFromSnapshot(Deps{
		Script:    restored.script,
		Wrapper:   restored.wrapper,
		Impact:    restored.impact,
		Scheduler: restored.sched,
	}, snap)

	if got := restored2.store.Operation("op1").Status; got != state.StatusDone {
		t.Fatalf("restored op1 status = %v, want done", got)
	}
}
