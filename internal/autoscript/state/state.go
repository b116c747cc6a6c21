// Package state holds the mutable runtime state a runner owns for its
// lifetime: subscription existence/appear/version bookkeeping, operation
// status/run counts, and per-operation pacing/idempotency fields.
package state

import "time"

// SubscriptionState tracks one subscription's observed lifecycle.
// Invariant: AppearCount and Version never decrease.
type SubscriptionState struct {
	Exists      bool
	AppearCount uint64
	LastEventAt *time.Time
	Version     uint64
}

// OperationStatus is the lifecycle status of an operation.
type OperationStatus string

const (
	StatusPending OperationStatus = "pending"
	StatusDone    OperationStatus = "done"
	StatusSkipped OperationStatus = "skipped"
	StatusFailed  OperationStatus = "failed"
)

// OperationState tracks one operation's run history.
type OperationState struct {
	Status    OperationStatus
	Runs      uint64
	LastError *string
	UpdatedAt *time.Time
	Result    any
}

// ScheduleState is per-operation pacing/idempotency bookkeeping.
type ScheduleState struct {
	LastScheduledAt          *time.Time
	LastStartedAt            *time.Time
	LastEventAt              *time.Time
	LastTriggerKey           *string
	LastScheduledAppearCount *uint64
	LastCompletedAppearCount *uint64
}

// RuntimeContext is the free-form state exposed to the executor.
type RuntimeContext struct {
	Vars             map[string]any
	TabPool          []string
	CurrentTab       string
	LastNavigationAt *time.Time
}

// NewRuntimeContext returns an empty, ready-to-use RuntimeContext.
func NewRuntimeContext() *RuntimeContext {
	return &RuntimeContext{Vars: map[string]any{}}
}

// Store holds all runtime state for one runner instance, keyed by
// subscription/operation ID. Not safe for concurrent external mutation;
// the runner is the sole writer, per its single-threaded cooperative model.
type Store struct {
	Subscriptions map[string]*SubscriptionState
	Operations    map[string]*OperationState
	Schedules     map[string]*ScheduleState
	Runtime       *RuntimeContext
}

// New creates a Store pre-seeded with pending/unset entries for every
// subscription and operation ID given.
func New(subscriptionIDs, operationIDs []string) *Store {
	s := &Store{
		Subscriptions: map[string]*SubscriptionState{},
		Operations:    map[string]*OperationState{},
		Schedules:     map[string]*ScheduleState{},
		Runtime:       NewRuntimeContext(),
	}
	for _, id := range subscriptionIDs {
		s.Subscriptions[id] = &SubscriptionState{}
	}
	for _, id := range operationIDs {
		s.Operations[id] = &OperationState{Status: StatusPending}
		s.Schedules[id] = &ScheduleState{}
	}
	return s
}

// Subscription returns the subscription state for id, creating it if
// absent.
func (s *Store) Subscription(id string) *SubscriptionState {
	st, ok := s.Subscriptions[id]
	if !ok {
		st = &SubscriptionState{}
		s.Subscriptions[id] = st
	}
	return st
}

// Operation returns the operation state for id, creating it if absent.
func (s *Store) Operation(id string) *OperationState {
	st, ok := s.Operations[id]
	if !ok {
		st = &OperationState{Status: StatusPending}
		s.Operations[id] = st
	}
	return st
}

// Schedule returns the schedule state for id, creating it if absent.
func (s *Store) Schedule(id string) *ScheduleState {
	st, ok := s.Schedules[id]
	if !ok {
		st = &ScheduleState{}
		s.Schedules[id] = st
	}
	return st
}

// ApplyEvent folds a subscription lifecycle event into its state per the
// governing invariants: appearCount/version never decrease; version increments
// on every appear/disappear/change; exists tracks appear/disappear/exist,
// and on change becomes count>0 OR prior exists.
func (s *Store) ApplyEvent(subscriptionID string, kind EventKind, count uint64, at time.Time) *SubscriptionState {
	st := s.Subscription(subscriptionID)
	switch kind {
	case EventKindAppear:
		st.AppearCount++
		st.Version++
		st.Exists = true
	case EventKindDisappear:
		st.Version++
		st.Exists = false
	case EventKindExist:
		st.Exists = true
	case EventKindChange:
		st.Version++
		st.Exists = count > 0 || st.Exists
	}
	st.LastEventAt = &at
	return st
}

// EventKind identifies which subscription lifecycle transition ApplyEvent
// should fold in. Distinct from model.SubscriptionEvent to keep the state
// package decoupled from the script model.
type EventKind string

const (
	EventKindAppear    EventKind = "appear"
	EventKindExist     EventKind = "exist"
	EventKindDisappear EventKind = "disappear"
	EventKindChange    EventKind = "change"
)

// ResetOperation clears an operation's error/result and marks it pending,
// used by the scheduler's reset-on-appear rule.
func (s *Store) ResetOperation(id string, at time.Time) {
	op := s.Operation(id)
	op.Status = StatusPending
	op.LastError = nil
	op.Result = nil
	op.UpdatedAt = &at
}
