// Package scheduler implements eligibility testing and trigger-key
// deduplication: for each incoming event it decides which operations
// become eligible to run and marks the pacing/idempotency bookkeeping that
// keeps a re-delivered or repeated event from re-firing the same logical
// trigger.
package scheduler

import (
	"fmt"
	"time"

	"github.com/autoscript/runtime/internal/autoscript/impact"
	"github.com/autoscript/runtime/internal/autoscript/model"
	"github.com/autoscript/runtime/internal/autoscript/state"
	"github.com/autoscript/runtime/internal/platform/logging"
)

// EventKind discriminates the synthetic/external events the scheduler
// reacts to.
type EventKind string

const (
	EventStartup      EventKind = "startup"
	EventManual       EventKind = "manual"
	EventSubscription EventKind = "subscription"
	EventCron         EventKind = "cron"
)

// Event is the scheduler's view of one incoming occurrence. Subscription
// state has already been folded into the Store by the caller before Scan
// runs, per the runner's handleEvent contract.
type Event struct {
	Kind              EventKind
	SubscriptionID    string
	SubscriptionEvent model.SubscriptionEvent
	CronName          string
	Timestamp         time.Time
}

// Scheduled describes one operation the scan decided to enqueue.
type Scheduled struct {
	OperationID string
	TriggerKey  string
	AppearCount *uint64
}

// Scheduler tracks force-run requests and in-queue membership across scans.
// Both are scheduler-local bookkeeping, distinct from the durable
// state.OperationState/ScheduleState a run's snapshot carries.
type Scheduler struct {
	logger   logging.Logger
	force    map[string]bool
	inQueue  map[string]bool
}

// New returns a Scheduler with no pending force-run requests.
func New(logger logging.Logger) *Scheduler {
	return &Scheduler{
		logger:  logging.OrNop(logger),
		force:   map[string]bool{},
		inQueue: map[string]bool{},
	}
}

// RequestForceRun marks opID to bypass trigger matching and key dedup on
// the next scan.
func (s *Scheduler) RequestForceRun(opID string) {
	s.force[opID] = true
}

// MarkDequeued clears an operation's in-queue membership once its executor
// closure has run to completion (success, failure, or skip).
func (s *Scheduler) MarkDequeued(opID string) {
	delete(s.inQueue, opID)
}

func isTriggered(op model.Operation, evt Event) bool {
	switch op.Trigger.Kind {
	case model.TriggerStartup:
		return evt.Kind == EventStartup
	case model.TriggerManual:
		return evt.Kind == EventManual
	case model.TriggerSubscriptionEvent:
		return evt.Kind == EventSubscription &&
			evt.SubscriptionID == op.Trigger.SubscriptionID &&
			evt.SubscriptionEvent == op.Trigger.Event
	case model.TriggerCron:
		return evt.Kind == EventCron && evt.CronName == op.Trigger.CronName
	default:
		return false
	}
}

func dependenciesSatisfied(deps []string, ops *state.Store) bool {
	for _, dep := range deps {
		st := ops.Operation(dep)
		if st.Status != state.StatusDone && st.Status != state.StatusSkipped {
			return false
		}
	}
	return true
}

func conditionsHold(conds []model.Condition, st *state.Store) bool {
	for _, c := range conds {
		switch c.Kind {
		case model.ConditionOperationDone:
			if st.Operation(c.OperationID).Status != state.StatusDone {
				return false
			}
		case model.ConditionSubscriptionExist:
			if !st.Subscription(c.SubscriptionID).Exists {
				return false
			}
		case model.ConditionSubscriptionAppear:
			if st.Subscription(c.SubscriptionID).AppearCount == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func pacingGatesPass(op model.Operation, sched *state.ScheduleState, now time.Time) bool {
	if op.Pacing.OperationMinIntervalMs > 0 && sched.LastStartedAt != nil {
		if now.Sub(*sched.LastStartedAt) < time.Duration(op.Pacing.OperationMinIntervalMs)*time.Millisecond {
			return false
		}
	}
	if op.Pacing.EventCooldownMs > 0 && sched.LastEventAt != nil {
		if now.Sub(*sched.LastEventAt) < time.Duration(op.Pacing.EventCooldownMs)*time.Millisecond {
			return false
		}
	}
	return true
}

func oncePerAppearBlocks(op model.Operation, sched *state.ScheduleState, appearCount uint64) bool {
	if !op.OncePerAppear || appearCount == 0 {
		return false
	}
	if sched.LastScheduledAppearCount != nil && *sched.LastScheduledAppearCount == appearCount {
		return true
	}
	if sched.LastCompletedAppearCount != nil && *sched.LastCompletedAppearCount == appearCount {
		return true
	}
	return false
}

// triggerKey derives the deduplication key for op firing on evt, given the
// subscription's current counters.
func triggerKey(op model.Operation, evt Event, sub *state.SubscriptionState) string {
	switch op.Trigger.Kind {
	case model.TriggerStartup:
		return "startup"
	case model.TriggerManual:
		return fmt.Sprintf("manual:%d", evt.Timestamp.UnixNano())
	case model.TriggerCron:
		return fmt.Sprintf("cron:%s:%d", evt.CronName, evt.Timestamp.UnixNano())
	case model.TriggerSubscriptionEvent:
		switch op.Trigger.Event {
		case model.EventExist, model.EventAppear:
			return fmt.Sprintf("%s:%s:%d", op.Trigger.SubscriptionID, op.Trigger.Event, sub.AppearCount)
		default:
			return fmt.Sprintf("%s:%s:v%d", op.Trigger.SubscriptionID, op.Trigger.Event, sub.Version)
		}
	default:
		return "unknown"
	}
}

// allowExistReschedule is the one exception to trigger-key dedup: a
// non-once, non-oncePerAppear subscription_event:exist op with positive
// pacing may re-fire on an identical key, enabling periodic re-checks of a
// still-existing element.
func allowExistReschedule(op model.Operation) bool {
	if op.Once || op.OncePerAppear {
		return false
	}
	if op.Trigger.Kind != model.TriggerSubscriptionEvent || op.Trigger.Event != model.EventExist {
		return false
	}
	return op.Pacing.OperationMinIntervalMs > 0 || op.Pacing.EventCooldownMs > 0
}

// ShouldSchedule tests the full eligibility predicate for op against evt.
// It does not mutate state; callers that decide to enqueue must call
// Commit afterward.
func (s *Scheduler) ShouldSchedule(op model.Operation, evt Event, st *state.Store, eng *impact.Engine, now time.Time) (bool, string, *uint64) {
	if !op.Enabled {
		return false, "", nil
	}

	forced := s.force[op.ID]
	if !forced && !isTriggered(op, evt) {
		return false, "", nil
	}

	opState := st.Operation(op.ID)
	if op.Once && opState.Status == state.StatusDone {
		return false, "", nil
	}

	if !dependenciesSatisfied(op.DependsOn, st) {
		return false, "", nil
	}

	if !conditionsHold(op.Conditions, st) {
		return false, "", nil
	}

	if !eng.CanRun(op.ID, op.Trigger.SubscriptionID) {
		return false, "", nil
	}

	if s.inQueue[op.ID] {
		return false, "", nil
	}

	sched := st.Schedule(op.ID)
	if !pacingGatesPass(op, sched, now) {
		return false, "", nil
	}

	var sub *state.SubscriptionState
	if op.Trigger.Kind == model.TriggerSubscriptionEvent {
		sub = st.Subscription(op.Trigger.SubscriptionID)
	} else {
		sub = &state.SubscriptionState{}
	}

	if oncePerAppearBlocks(op, sched, sub.AppearCount) {
		return false, "", nil
	}

	var appearCount *uint64
	var key string
	if forced {
		key = fmt.Sprintf("force:%s", op.ID)
	} else {
		key = triggerKey(op, evt, sub)
		if sched.LastTriggerKey != nil && *sched.LastTriggerKey == key && !allowExistReschedule(op) {
			return false, "", nil
		}
	}

	if op.Trigger.Kind == model.TriggerSubscriptionEvent && (op.Trigger.Event == model.EventAppear || op.Trigger.Event == model.EventExist) {
		c := sub.AppearCount
		appearCount = &c
	}

	return true, key, appearCount
}

// Commit applies the scheduling-time bookkeeping required before chaining
// an operation onto the run queue: stamps lastScheduledAt /
// lastEventAt / lastTriggerKey, records the scheduled appear count when
// relevant, clears any force-run flag, and marks the operation in-queue.
func (s *Scheduler) Commit(opID string, key string, appearCount *uint64, st *state.Store, now time.Time) {
	sched := st.Schedule(opID)
	sched.LastScheduledAt = &now
	sched.LastEventAt = &now
	sched.LastTriggerKey = &key
	if appearCount != nil {
		sched.LastScheduledAppearCount = appearCount
	}
	delete(s.force, opID)
	s.inQueue[opID] = true
}

// Scan evaluates every operation in script order against evt and returns
// the ones that qualify, already committed (bookkeeping applied, marked
// in-queue). Callers enqueue the returned operations onto the serial
// run queue in the returned order.
func (s *Scheduler) Scan(script model.Script, evt Event, st *state.Store, eng *impact.Engine, now time.Time) []Scheduled {
	var out []Scheduled
	for _, op := range script.Operations {
		ok, key, appearCount := s.ShouldSchedule(op, evt, st, eng, now)
		if !ok {
			continue
		}
		s.Commit(op.ID, key, appearCount, st, now)
		out = append(out, Scheduled{OperationID: op.ID, TriggerKey: key, AppearCount: appearCount})
	}
	return out
}

// ResetOnAppear implements the reset-on-appear rule: every oncePerAppear
// op whose trigger is a subscription_event on subscriptionID and whose
// state is not pending is reset to pending, allowing the per-appear cycle
// to fire again.
func ResetOnAppear(script model.Script, subscriptionID string, st *state.Store, now time.Time) {
	for _, op := range script.Operations {
		if !op.OncePerAppear {
			continue
		}
		if op.Trigger.Kind != model.TriggerSubscriptionEvent || op.Trigger.SubscriptionID != subscriptionID {
			continue
		}
		if st.Operation(op.ID).Status == state.StatusPending {
			continue
		}
		st.ResetOperation(op.ID, now)
	}
}
