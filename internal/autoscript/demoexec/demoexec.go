// Package demoexec provides a logging-only implementation of the
// executor.Primitives contract: every action and validation pass
// is recorded through a logging.Logger and reported as successful.
// The real DOM-driving backend (a browser extension or CDP bridge)
// is external to this runtime per the executor contract's own doc
// comment ("opaque to the executor wrapper"); this package lets
// autoscriptctl run a script end-to-end without one, for demos and
// dry runs against the mock or html watcher.
package demoexec

import (
	"context"
	"fmt"

	"github.com/autoscript/runtime/internal/autoscript/executor"
	"github.com/autoscript/runtime/internal/autoscript/model"
	"github.com/autoscript/runtime/internal/platform/logging"
)

// Primitives returns an executor.Primitives set backed entirely by logger.
func Primitives(logger logging.Logger) executor.Primitives {
	logger = logging.OrNop(logger)
	return executor.Primitives{
		Execute: func(ctx context.Context, op model.Operation, ectx executor.Context) (executor.Result, error) {
			logger.Info("demoexec: execute op=%s action=%s attempt=%d params=%v", op.ID, op.Action, ectx.Attempt, op.Params)
			return executor.Result{OK: true, Message: fmt.Sprintf("%s: simulated", op.Action)}, nil
		},
		Validate: func(ctx context.Context, spec *model.ValidationSpec, phase executor.ValidatePhase, ectx executor.Context) (executor.Result, error) {
			logger.Debug("demoexec: validate phase=%s mode=%s", phase, spec.Mode)
			return executor.Result{OK: true}, nil
		},
		CaptureCheckpoint: func(ctx context.Context, op model.Operation) (map[string]any, error) {
			logger.Debug("demoexec: capture checkpoint op=%s container=%s", op.ID, op.Checkpoint.ContainerID)
			return map[string]any{}, nil
		},
		RestoreCheckpoint: func(ctx context.Context, baseline map[string]any, action model.RecoveryAction, op model.Operation) (executor.Result, error) {
			logger.Info("demoexec: recovery action=%s op=%s", action.Action, op.ID)
			return executor.Result{OK: true}, nil
		},
	}
}
