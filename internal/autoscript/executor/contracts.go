// Package executor wraps the opaque operation/validator/checkpoint
// primitives with the pacing, stale-trigger, timeout, retry and recovery
// behavior the runner needs before it can treat an attempt as terminal.
package executor

import (
	"context"

	"github.com/autoscript/runtime/internal/autoscript/model"
)

// Event mirrors the subset of an incoming runner event an executing
// operation needs visibility into: the trigger that fired it, for
// stale-trigger re-checks.
type Event struct {
	SubscriptionID    string
	SubscriptionEvent model.SubscriptionEvent
	IsSubscription    bool
}

// Context is handed to ExecuteFunc/ValidateFunc for one attempt.
type Context struct {
	RunID       string
	ProfileID   string
	Event       Event
	Attempt     int
	MaxAttempts int
	Runtime     map[string]any
	// ExecuteExternalOperation lets an action delegate to another
	// registered action by ID; opaque to the executor wrapper.
	ExecuteExternalOperation func(ctx context.Context, actionID string, params map[string]any) (Result, error)
}

// Result is the normalized shape every external primitive returns.
type Result struct {
	OK      bool
	Code    ResultCode
	Message string
	Data    map[string]any
}

// ExecuteFunc performs the operation's actual browser action.
type ExecuteFunc func(ctx context.Context, op model.Operation, ectx Context) (Result, error)

// ValidatePhase identifies which validation pass is running.
type ValidatePhase string

const (
	PhasePre  ValidatePhase = "pre"
	PhasePost ValidatePhase = "post"
)

// ValidateFunc runs a pre/post validation pass for an operation.
type ValidateFunc func(ctx context.Context, spec *model.ValidationSpec, phase ValidatePhase, ectx Context) (Result, error)

// CaptureCheckpointFunc captures a baseline checkpoint before a recovery
// pass begins.
type CaptureCheckpointFunc func(ctx context.Context, op model.Operation) (map[string]any, error)

// RestoreCheckpointFunc invokes one recovery action against a captured
// baseline.
type RestoreCheckpointFunc func(ctx context.Context, baseline map[string]any, action model.RecoveryAction, op model.Operation) (Result, error)

// MockFunc is the optional per-operation override hook: if it returns a
// non-nil Result, the real execute/validate pipeline is skipped entirely.
// Returning (nil, nil) falls through to the real executor — the mock is an
// override, not a stub-all.
type MockFunc func(ctx context.Context, op model.Operation, ectx Context) (*Result, error)

// Primitives bundles the external collaborators the wrapper is opaque
// over.
type Primitives struct {
	Execute           ExecuteFunc
	Validate          ValidateFunc
	CaptureCheckpoint CaptureCheckpointFunc
	RestoreCheckpoint RestoreCheckpointFunc
	Mock              MockFunc
	SkipValidation    bool
}
