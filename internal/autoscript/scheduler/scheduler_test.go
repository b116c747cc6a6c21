package scheduler

import (
	"testing"
	"time"

	"github.com/autoscript/runtime/internal/autoscript/impact"
	"github.com/autoscript/runtime/internal/autoscript/model"
	"github.com/autoscript/runtime/internal/autoscript/state"
)

func startupOp(id string) model.Operation {
	return model.Operation{ID: id, Enabled: true, Once: true, Trigger: model.Trigger{Kind: model.TriggerStartup}}
}

func appearOp(id, sub string, oncePerAppear bool) model.Operation {
	return model.Operation{
		ID:            id,
		Enabled:       true,
		Once:          false,
		OncePerAppear: oncePerAppear,
		Trigger:       model.Trigger{Kind: model.TriggerSubscriptionEvent, SubscriptionID: sub, Event: model.EventAppear},
	}
}

func TestScanSchedulesStartupOpOnce(t *testing.T) {
	s := New(nil)
	op := startupOp("a")
	script := model.Script{Operations: []model.Operation{op}}
	st := state.New(nil, []string{"a"})
	eng := impact.New()
	now := time.Now()

	evt := Event{Kind: EventStartup, Timestamp: now}
	scheduled := s.Scan(script, evt, st, eng, now)
	if len(scheduled) != 1 {
		t.Fatalf("expected 1 scheduled op, got %d", len(scheduled))
	}

	s.MarkDequeued("a")
	st.Operation("a").Status = state.StatusDone

	scheduled = s.Scan(script, evt, st, eng, now)
	if len(scheduled) != 0 {
		t.Fatalf("expected once op not rescheduled after done, got %v", scheduled)
	}
}

func TestScanRejectsWhenAlreadyInQueue(t *testing.T) {
	s := New(nil)
	op := startupOp("a")
	script := model.Script{Operations: []model.Operation{op}}
	st := state.New(nil, []string{"a"})
	eng := impact.New()
	now := time.Now()
	evt := Event{Kind: EventStartup, Timestamp: now}

	first := s.Scan(script, evt, st, eng, now)
	if len(first) != 1 {
		t.Fatalf("expected first scan to schedule op")
	}
	second := s.Scan(script, evt, st, eng, now)
	if len(second) != 0 {
		t.Fatalf("expected op still in queue to be rejected, got %v", second)
	}
}

func TestOncePerAppearFiresOncePerDistinctCount(t *testing.T) {
	s := New(nil)
	op := appearOp("b", "s1", true)
	script := model.Script{Operations: []model.Operation{op}}
	st := state.New([]string{"s1"}, []string{"b"})
	eng := impact.New()
	now := time.Now()

	st.ApplyEvent("s1", state.EventKindAppear, 1, now)
	evt := Event{Kind: EventSubscription, SubscriptionID: "s1", SubscriptionEvent: model.EventAppear, Timestamp: now}

	scheduled := s.Scan(script, evt, st, eng, now)
	if len(scheduled) != 1 {
		t.Fatalf("expected op scheduled on first appear, got %v", scheduled)
	}
	s.MarkDequeued("b")
	st.Operation("b").Status = state.StatusDone
	st.Schedule("b").LastCompletedAppearCount = scheduled[0].AppearCount

	scheduled = s.Scan(script, evt, st, eng, now)
	if len(scheduled) != 0 {
		t.Fatalf("expected no reschedule for same appear count, got %v", scheduled)
	}

	st.ApplyEvent("s1", state.EventKindAppear, 1, now)
	scheduled = s.Scan(script, evt, st, eng, now)
	if len(scheduled) != 1 {
		t.Fatalf("expected reschedule on new appear count, got %v", scheduled)
	}
}

func TestTriggerKeyDedupOnExistWithoutPacingRejectsSecondEvent(t *testing.T) {
	s := New(nil)
	op := model.Operation{
		ID:      "f",
		Enabled: true,
		Once:    false,
		Trigger: model.Trigger{Kind: model.TriggerSubscriptionEvent, SubscriptionID: "s1", Event: model.EventExist},
	}
	script := model.Script{Operations: []model.Operation{op}}
	st := state.New([]string{"s1"}, []string{"f"})
	eng := impact.New()
	now := time.Now()
	st.ApplyEvent("s1", state.EventKindExist, 1, now)

	evt := Event{Kind: EventSubscription, SubscriptionID: "s1", SubscriptionEvent: model.EventExist, Timestamp: now}
	first := s.Scan(script, evt, st, eng, now)
	if len(first) != 1 {
		t.Fatalf("expected first exist event to schedule, got %v", first)
	}
	s.MarkDequeued("f")
	st.Operation("f").Status = state.StatusDone

	second := s.Scan(script, evt, st, eng, now)
	if len(second) != 0 {
		t.Fatalf("expected repeated exist event with same appearCount to dedup, got %v", second)
	}
}

func TestAllowExistRescheduleWithPositivePacing(t *testing.T) {
	s := New(nil)
	op := model.Operation{
		ID:      "f",
		Enabled: true,
		Once:    false,
		Trigger: model.Trigger{Kind: model.TriggerSubscriptionEvent, SubscriptionID: "s1", Event: model.EventExist},
		Pacing:  model.Pacing{OperationMinIntervalMs: 0, EventCooldownMs: 1},
	}
	script := model.Script{Operations: []model.Operation{op}}
	st := state.New([]string{"s1"}, []string{"f"})
	eng := impact.New()
	now := time.Now()
	st.ApplyEvent("s1", state.EventKindExist, 1, now)

	evt := Event{Kind: EventSubscription, SubscriptionID: "s1", SubscriptionEvent: model.EventExist, Timestamp: now}
	first := s.Scan(script, evt, st, eng, now)
	if len(first) != 1 {
		t.Fatalf("expected first exist event to schedule")
	}
	s.MarkDequeued("f")
	st.Operation("f").Status = state.StatusDone

	later := now.Add(10 * time.Millisecond)
	second := s.Scan(script, evt, st, eng, later)
	if len(second) != 1 {
		t.Fatalf("expected exist reschedule allowed with positive pacing, got %v", second)
	}
}

func TestImpactEngineBlocksScheduling(t *testing.T) {
	s := New(nil)
	op := startupOp("a")
	script := model.Script{Operations: []model.Operation{op}}
	st := state.New(nil, []string{"a"})
	eng := impact.New()
	eng.ApplyFailure(impact.FailureInput{OperationID: "a", OnFailure: model.OnFailureStopAll})
	now := time.Now()

	scheduled := s.Scan(script, Event{Kind: EventStartup, Timestamp: now}, st, eng, now)
	if len(scheduled) != 0 {
		t.Fatalf("expected impact engine to block scheduling, got %v", scheduled)
	}
}

func TestForceRunBypassesTriggerMatchAndKeyDedup(t *testing.T) {
	s := New(nil)
	op := model.Operation{ID: "m", Enabled: true, Once: false, Trigger: model.Trigger{Kind: model.TriggerManual}}
	script := model.Script{Operations: []model.Operation{op}}
	st := state.New(nil, []string{"m"})
	eng := impact.New()
	now := time.Now()

	s.RequestForceRun("m")
	evt := Event{Kind: EventStartup, Timestamp: now}
	scheduled := s.Scan(script, evt, st, eng, now)
	if len(scheduled) != 1 || scheduled[0].TriggerKey != "force:m" {
		t.Fatalf("expected force-run to bypass trigger matching, got %v", scheduled)
	}
}

func TestResetOnAppearClearsNonPendingOncePerAppearOps(t *testing.T) {
	op := appearOp("b", "s1", true)
	script := model.Script{Operations: []model.Operation{op}}
	st := state.New([]string{"s1"}, []string{"b"})
	st.Operation("b").Status = state.StatusDone
	now := time.Now()

	ResetOnAppear(script, "s1", st, now)
	if st.Operation("b").Status != state.StatusPending {
		t.Fatalf("expected op reset to pending, got %s", st.Operation("b").Status)
	}
}
