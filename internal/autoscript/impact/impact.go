// Package impact implements the decision table that turns an operation
// failure into op-local, subscription-wide, or script-wide blocking state.
// Structured like a circuit breaker registry: a mutex-guarded set of
// blocked IDs plus a script-stopped flag, with one read predicate
// (CanRun) and one mutating transition (ApplyFailure). Unlike a circuit
// breaker there is no half-open probe: once blocked, an entity stays
// blocked for the life of the run.
package impact

import (
	"sync"

	"github.com/autoscript/runtime/internal/autoscript/model"
)

// Scope is the blocking radius a failure resolved to.
type Scope string

const (
	ScopeNone         Scope = "none"
	ScopeOp           Scope = "op"
	ScopeSubscription Scope = "subscription"
	ScopeScript       Scope = "script"
)

// FailureInput carries what ApplyFailure needs to decide blocking scope.
type FailureInput struct {
	OperationID    string
	SubscriptionID string // empty if the triggering event carries none
	Impact         model.ImpactScope
	OnFailure      model.OnFailure
}

// FailureOutcome is the result of applying the decision table.
type FailureOutcome struct {
	Scope                Scope
	ScriptStopped         bool
	BlockedSubscriptionID string
	BlockedOperationID    string
}

// Engine tracks script-stop, blocked-subscription and blocked-operation
// state for one run.
type Engine struct {
	mu                   sync.Mutex
	scriptStopped        bool
	blockedSubscriptions map[string]bool
	blockedOperations    map[string]bool
}

// New returns an Engine with nothing blocked.
func New() *Engine {
	return &Engine{
		blockedSubscriptions: map[string]bool{},
		blockedOperations:    map[string]bool{},
	}
}

// CanRun reports whether op is eligible to run for an event carrying
// subscriptionID (empty if none): false if the script is stopped, the
// operation is blocked, or the event's subscription is blocked.
func (e *Engine) CanRun(operationID, subscriptionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.scriptStopped {
		return false
	}
	if e.blockedOperations[operationID] {
		return false
	}
	if subscriptionID != "" && e.blockedSubscriptions[subscriptionID] {
		return false
	}
	return true
}

// ApplyFailure applies the decision table (checked top-to-bottom) and
// mutates engine state accordingly.
func (e *Engine) ApplyFailure(in FailureInput) FailureOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case in.OnFailure == model.OnFailureContinue:
		return FailureOutcome{Scope: ScopeNone}

	case in.OnFailure == model.OnFailureStopAll:
		e.scriptStopped = true
		return FailureOutcome{Scope: ScopeScript, ScriptStopped: true}

	case in.Impact == model.ImpactScript:
		e.scriptStopped = true
		return FailureOutcome{Scope: ScopeScript, ScriptStopped: true}

	case in.Impact == model.ImpactSubscription:
		if in.SubscriptionID != "" {
			e.blockedSubscriptions[in.SubscriptionID] = true
		}
		return FailureOutcome{Scope: ScopeSubscription, BlockedSubscriptionID: in.SubscriptionID}

	case in.OnFailure == model.OnFailureChainStop:
		if in.SubscriptionID != "" {
			e.blockedSubscriptions[in.SubscriptionID] = true
			return FailureOutcome{Scope: ScopeSubscription, BlockedSubscriptionID: in.SubscriptionID}
		}
		e.blockedOperations[in.OperationID] = true
		return FailureOutcome{Scope: ScopeOp, BlockedOperationID: in.OperationID}

	default:
		e.blockedOperations[in.OperationID] = true
		return FailureOutcome{Scope: ScopeOp, BlockedOperationID: in.OperationID}
	}
}

// ScriptStopped reports whether the engine has recorded a script-wide stop.
func (e *Engine) ScriptStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scriptStopped
}

// BlockedSubscriptions returns a snapshot of currently blocked subscription
// IDs.
func (e *Engine) BlockedSubscriptions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.blockedSubscriptions))
	for id := range e.blockedSubscriptions {
		out = append(out, id)
	}
	return out
}

// BlockedOperations returns a snapshot of currently blocked operation IDs.
func (e *Engine) BlockedOperations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.blockedOperations))
	for id := range e.blockedOperations {
		out = append(out, id)
	}
	return out
}
