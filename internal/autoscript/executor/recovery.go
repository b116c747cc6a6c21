package executor

import (
	"context"

	"github.com/autoscript/runtime/internal/autoscript/model"
)

// RecoveryOutcome is the result of a recovery run, emitted for
// observability. It does not by itself change an operation's status.
type RecoveryOutcome struct {
	OK       bool
	Code     ResultCode
	Attempts int
}

// runRecovery invokes the recovery pipeline for op after a failed attempt:
// a baseline checkpoint is captured once, then each configured pass runs
// every action in order; the first pass where every action succeeds ends
// recovery with RecoveryDone. Each pass is wrapped in a span when tracer is
// non-nil.
func runRecovery(ctx context.Context, op model.Operation, prim Primitives, tracer RecoveryTracer) RecoveryOutcome {
	recovery := op.Checkpoint.Recovery
	if recovery.Attempts <= 0 || len(recovery.Actions) == 0 {
		return RecoveryOutcome{OK: false, Code: RecoveryNotConfigured}
	}
	if prim.CaptureCheckpoint == nil || prim.RestoreCheckpoint == nil {
		return RecoveryOutcome{OK: false, Code: RecoveryNotConfigured}
	}

	baseline, err := prim.CaptureCheckpoint(ctx, op)
	if err != nil {
		return RecoveryOutcome{OK: false, Code: RecoveryExhausted}
	}

	for i := 1; i <= recovery.Attempts; i++ {
		passCtx := ctx
		var endPass func(bool)
		if tracer != nil {
			passCtx, endPass = tracer.StartRecoveryPass(ctx, op.ID, i)
		}

		passOK := true
		for _, action := range recovery.Actions {
			res, err := prim.RestoreCheckpoint(passCtx, baseline, action, op)
			if err != nil || !res.OK {
				passOK = false
				break
			}
		}
		if endPass != nil {
			endPass(passOK)
		}
		if passOK {
			return RecoveryOutcome{OK: true, Code: RecoveryDone, Attempts: i}
		}
	}

	return RecoveryOutcome{OK: false, Code: RecoveryExhausted, Attempts: recovery.Attempts}
}
