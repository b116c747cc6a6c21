package runner

import (
	"time"

	"github.com/autoscript/runtime/internal/autoscript/state"
)

const (
	SnapshotKind    = "autoscript_snapshot"
	SnapshotVersion = 1
)

// SubscriptionDTO is the plain key->value serialization of one
// subscription's runtime state.
type SubscriptionDTO struct {
	Exists      bool       `json:"exists"`
	AppearCount uint64     `json:"appearCount"`
	LastEventAt *time.Time `json:"lastEventAt"`
	Version     uint64     `json:"version"`
}

// OperationDTO is the plain serialization of one operation's runtime
// state.
type OperationDTO struct {
	Status    string     `json:"status"`
	Runs      uint64     `json:"runs"`
	LastError *string    `json:"lastError"`
	UpdatedAt *time.Time `json:"updatedAt"`
	Result    any        `json:"result"`
}

// ScheduleDTO is the plain serialization of one operation's pacing
// bookkeeping.
type ScheduleDTO struct {
	LastScheduledAt          *time.Time `json:"lastScheduledAt"`
	LastStartedAt            *time.Time `json:"lastStartedAt"`
	LastEventAt              *time.Time `json:"lastEventAt"`
	LastTriggerKey           *string    `json:"lastTriggerKey"`
	LastScheduledAppearCount *uint64    `json:"lastScheduledAppearCount"`
	LastCompletedAppearCount *uint64    `json:"lastCompletedAppearCount"`
}

// RuntimeContextDTO is the plain serialization of the free-form runtime
// context.
type RuntimeContextDTO struct {
	Vars             map[string]any `json:"vars"`
	TabPool          []string       `json:"tabPool"`
	CurrentTab       string         `json:"currentTab"`
	LastNavigationAt *time.Time     `json:"lastNavigationAt"`
}

// RunnerFlags captures the runner's own lifecycle flags.
type RunnerFlags struct {
	Active    bool       `json:"active"`
	StartedAt *time.Time `json:"startedAt"`
}

// StateImage is the state sub-object of the snapshot envelope.
type StateImage struct {
	State                  RunnerFlags                `json:"state"`
	SubscriptionState      map[string]SubscriptionDTO `json:"subscriptionState"`
	OperationState         map[string]OperationDTO    `json:"operationState"`
	OperationScheduleState map[string]ScheduleDTO     `json:"operationScheduleState"`
	RuntimeContext         RuntimeContextDTO          `json:"runtimeContext"`
	LastNavigationAt       *time.Time                 `json:"lastNavigationAt"`
}

// Snapshot is the full, self-describing runner state envelope.
type Snapshot struct {
	Kind       string     `json:"kind"`
	Version    int        `json:"version"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"createdAt"`
	RunID      string     `json:"runId"`
	ProfileID  string     `json:"profileId"`
	ScriptName string     `json:"scriptName"`
	State      StateImage `json:"state"`
}

func toStateImage(flags RunnerFlags, st *state.Store) StateImage {
	subs := make(map[string]SubscriptionDTO, len(st.Subscriptions))
	for id, s := range st.Subscriptions {
		subs[id] = SubscriptionDTO{Exists: s.Exists, AppearCount: s.AppearCount, LastEventAt: s.LastEventAt, Version: s.Version}
	}
	ops := make(map[string]OperationDTO, len(st.Operations))
	for id, o := range st.Operations {
		ops[id] = OperationDTO{Status: string(o.Status), Runs: o.Runs, LastError: o.LastError, UpdatedAt: o.UpdatedAt, Result: o.Result}
	}
	scheds := make(map[string]ScheduleDTO, len(st.Schedules))
	for id, s := range st.Schedules {
		scheds[id] = ScheduleDTO{
			LastScheduledAt:          s.LastScheduledAt,
			LastStartedAt:            s.LastStartedAt,
			LastEventAt:              s.LastEventAt,
			LastTriggerKey:           s.LastTriggerKey,
			LastScheduledAppearCount: s.LastScheduledAppearCount,
			LastCompletedAppearCount: s.LastCompletedAppearCount,
		}
	}
	rc := RuntimeContextDTO{
		Vars:             st.Runtime.Vars,
		TabPool:          st.Runtime.TabPool,
		CurrentTab:       st.Runtime.CurrentTab,
		LastNavigationAt: st.Runtime.LastNavigationAt,
	}
	return StateImage{
		State:                  flags,
		SubscriptionState:      subs,
		OperationState:         ops,
		OperationScheduleState: scheds,
		RuntimeContext:         rc,
		LastNavigationAt:       st.Runtime.LastNavigationAt,
	}
}

func fromStateImage(img StateImage) *state.Store {
	st := &state.Store{
		Subscriptions: map[string]*state.SubscriptionState{},
		Operations:    map[string]*state.OperationState{},
		Schedules:     map[string]*state.ScheduleState{},
		Runtime:       state.NewRuntimeContext(),
	}
	for id, s := range img.SubscriptionState {
		st.Subscriptions[id] = &state.SubscriptionState{
			Exists:      s.Exists,
			AppearCount: s.AppearCount,
			LastEventAt: s.LastEventAt,
			Version:     s.Version,
		}
	}
	for id, o := range img.OperationState {
		st.Operations[id] = &state.OperationState{
			Status:    state.OperationStatus(o.Status),
			Runs:      o.Runs,
			LastError: o.LastError,
			UpdatedAt: o.UpdatedAt,
			Result:    o.Result,
		}
	}
	// LastScheduledAppearCount/LastCompletedAppearCount are *uint64: a
	// snapshot file with a negative literal in either field fails
	// json.Unmarshal before fromStateImage ever runs, so no clamp is
	// needed here.
	for id, s := range img.OperationScheduleState {
		st.Schedules[id] = &state.ScheduleState{
			LastScheduledAt:          s.LastScheduledAt,
			LastStartedAt:            s.LastStartedAt,
			LastEventAt:              s.LastEventAt,
			LastTriggerKey:           s.LastTriggerKey,
			LastScheduledAppearCount: s.LastScheduledAppearCount,
			LastCompletedAppearCount: s.LastCompletedAppearCount,
		}
	}
	if img.RuntimeContext.Vars != nil {
		st.Runtime.Vars = img.RuntimeContext.Vars
	}
	st.Runtime.TabPool = img.RuntimeContext.TabPool
	st.Runtime.CurrentTab = img.RuntimeContext.CurrentTab
	st.Runtime.LastNavigationAt = img.RuntimeContext.LastNavigationAt
	return st
}
