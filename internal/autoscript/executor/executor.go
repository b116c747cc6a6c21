package executor

import (
	"context"
	"math/rand"
	"time"

	"github.com/autoscript/runtime/internal/autoscript/impact"
	"github.com/autoscript/runtime/internal/autoscript/model"
	"github.com/autoscript/runtime/internal/autoscript/state"
	"github.com/autoscript/runtime/internal/platform/logging"
)

// Outcome is the terminal result of running an operation through every
// configured attempt.
type Outcome struct {
	Status           state.OperationStatus
	Code             ResultCode
	Message          string
	Data             map[string]any
	TerminalDoneCode string
	StopReason       string // "script_complete" | "script_failure" | ""
	Impact           impact.FailureOutcome
	Attempts         int
	Recovery         *RecoveryOutcome
}

// RecoveryTracer opens a span covering one recovery pass. Satisfied
// structurally by telemetry.Tracer's StartRecoveryPass method.
type RecoveryTracer interface {
	StartRecoveryPass(ctx context.Context, operationID string, attempt int) (context.Context, func(ok bool))
}

// Wrapper runs one operation's full attempt/retry/recovery lifecycle
// against the opaque external primitives.
type Wrapper struct {
	Primitives     Primitives
	Impact         *impact.Engine
	Logger         logging.Logger
	Clock          func() time.Time
	Rand           *rand.Rand
	RecoveryTracer RecoveryTracer
}

// NewWrapper returns a Wrapper with sane zero-value defaults for Clock and
// Rand when left unset.
func NewWrapper(prim Primitives, eng *impact.Engine, logger logging.Logger) *Wrapper {
	return &Wrapper{
		Primitives: prim,
		Impact:     eng,
		Logger:     logging.OrNop(logger),
		Clock:      time.Now,
		Rand:       rand.New(rand.NewSource(1)),
	}
}

func (w *Wrapper) now() time.Time {
	if w.Clock != nil {
		return w.Clock()
	}
	return time.Now()
}

// Run executes op through up to op.Retry.Attempts attempts, honoring
// pacing, stale-trigger checks, timeouts, recovery, and impact
// propagation.
func (w *Wrapper) Run(ctx context.Context, op model.Operation, defaults model.Defaults, ectx Context, st *state.Store) Outcome {
	maxAttempts := op.Retry.Attempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastOutcome Outcome
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ectx.Attempt = attempt
		ectx.MaxAttempts = maxAttempts

		w.pacingWait(op, st)

		if skip, outcome := w.staleTriggerCheck(op, st); skip {
			return outcome
		}

		timeoutMs := resolveTimeoutMs(op, defaults)
		result, phase, err := w.invoke(ctx, op, ectx, timeoutMs)

		if err != nil {
			code := OperationFailed
			if err == context.DeadlineExceeded {
				code = OperationTimeout
			}
			lastOutcome = Outcome{Status: state.StatusFailed, Code: code, Message: err.Error(), Attempts: attempt}
		} else if result.OK {
			if IsNavigationAction(op.Action) {
				now := w.now()
				st.Runtime.LastNavigationAt = &now
			}
			return Outcome{Status: state.StatusDone, Code: OperationDone, Message: result.Message, Data: result.Data, Attempts: attempt}
		} else {
			if phase == string(PhasePre) && isValidationCode(result.Code) && !w.triggerStillValid(op, st) {
				return Outcome{
					Status:  state.StatusSkipped,
					Code:    OperationSkippedStaleTriggerPreValidation,
					Message: result.Message,
					Attempts: attempt,
				}
			}

			if tag := TerminalDoneCode(result.Message + " " + string(result.Code)); tag != "" {
				return Outcome{
					Status:           state.StatusDone,
					Code:             ResultCode(tag),
					Message:          result.Message,
					TerminalDoneCode: tag,
					StopReason:       "script_complete",
					Attempts:         attempt,
				}
			}

			code := result.Code
			if code == "" {
				code = OperationFailed
			}
			lastOutcome = Outcome{Status: state.StatusFailed, Code: code, Message: result.Message, Data: result.Data, Attempts: attempt}
		}

		if op.OnFailure == model.OnFailureContinue {
			lastOutcome.Status = state.StatusSkipped
		}

		var recovery *RecoveryOutcome
		if op.Checkpoint.Recovery.Attempts > 0 && len(op.Checkpoint.Recovery.Actions) > 0 {
			r := runRecovery(ctx, op, w.Primitives, w.RecoveryTracer)
			recovery = &r
		}
		lastOutcome.Recovery = recovery

		if attempt < maxAttempts {
			w.sleep(fixedBackoff(op.Retry.BackoffMs))
			continue
		}

		outcome := w.ApplyImpact(op, ectx.Event, lastOutcome)
		return outcome
	}

	return lastOutcome
}

// ApplyImpact runs the impact decision table against a final failed
// outcome and folds the resulting scope/stop-reason into it.
func (w *Wrapper) ApplyImpact(op model.Operation, evt Event, outcome Outcome) Outcome {
	subID := ""
	if evt.IsSubscription {
		subID = evt.SubscriptionID
	}
	fo := w.Impact.ApplyFailure(impact.FailureInput{
		OperationID:    op.ID,
		SubscriptionID: subID,
		Impact:         op.Impact,
		OnFailure:      op.OnFailure,
	})
	outcome.Impact = fo
	if fo.ScriptStopped {
		outcome.StopReason = "script_failure"
	}
	return outcome
}

func (w *Wrapper) pacingWait(op model.Operation, st *state.Store) {
	if IsNavigationAction(op.Action) && op.Pacing.NavigationMinIntervalMs > 0 && st.Runtime.LastNavigationAt != nil {
		elapsed := w.now().Sub(*st.Runtime.LastNavigationAt)
		want := time.Duration(op.Pacing.NavigationMinIntervalMs) * time.Millisecond
		if elapsed < want {
			w.sleep(want - elapsed)
		}
	}
	if op.Pacing.JitterMs > 0 {
		w.sleep(jitterSleep(op.Pacing.JitterMs, w.Rand))
	}
}

func (w *Wrapper) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}

// triggerStillValid re-checks a subscription_event trigger's precondition
// against current subscription state.
func (w *Wrapper) triggerStillValid(op model.Operation, st *state.Store) bool {
	if op.Trigger.Kind != model.TriggerSubscriptionEvent {
		return true
	}
	sub := st.Subscription(op.Trigger.SubscriptionID)
	switch op.Trigger.Event {
	case model.EventExist, model.EventAppear:
		return sub.Exists
	case model.EventDisappear:
		return !sub.Exists
	default:
		return true
	}
}

func (w *Wrapper) staleTriggerCheck(op model.Operation, st *state.Store) (bool, Outcome) {
	if w.triggerStillValid(op, st) {
		return false, Outcome{}
	}
	return true, Outcome{
		Status:  state.StatusSkipped,
		Code:    OperationSkippedStaleTrigger,
		Message: "stale trigger: subscription state changed since scheduling",
	}
}

// invoke runs mock-override, or pre-validate -> execute -> post-validate,
// returning the phase the result came from ("mock", "pre", "execute",
// "post") for stale-pre-validation classification.
func (w *Wrapper) invoke(ctx context.Context, op model.Operation, ectx Context, timeoutMs int64) (Result, string, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeoutMs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	if w.Primitives.Mock != nil {
		res, err := w.Primitives.Mock(runCtx, op, ectx)
		if err != nil {
			return Result{}, "mock", err
		}
		if res != nil {
			if runCtx.Err() == context.DeadlineExceeded {
				return Result{}, "execute", runCtx.Err()
			}
			return *res, "mock", nil
		}
		// mock returned nil: fall through to the real pipeline.
	}

	if !w.Primitives.SkipValidation && w.Primitives.Validate != nil && op.Validation != nil {
		res, err := w.Primitives.Validate(runCtx, op.Validation, PhasePre, ectx)
		if err != nil || runCtx.Err() == context.DeadlineExceeded {
			return mergeTimeoutErr(res, runCtx), "pre", firstErr(err, runCtx.Err())
		}
		if !res.OK {
			if res.Code == "" {
				res.Code = ValidationFailed
			}
			return res, string(PhasePre), nil
		}
	}

	if w.Primitives.Execute == nil {
		return Result{OK: false, Code: OperationFailed, Message: "no executor configured"}, "execute", nil
	}
	res, err := w.Primitives.Execute(runCtx, op, ectx)
	if err != nil || runCtx.Err() == context.DeadlineExceeded {
		return mergeTimeoutErr(res, runCtx), "execute", firstErr(err, runCtx.Err())
	}
	if !res.OK {
		if res.Code == "" {
			res.Code = OperationFailed
		}
		return res, "execute", nil
	}

	if !w.Primitives.SkipValidation && w.Primitives.Validate != nil && op.Validation != nil {
		pres, err := w.Primitives.Validate(runCtx, op.Validation, PhasePost, ectx)
		if err != nil || runCtx.Err() == context.DeadlineExceeded {
			return mergeTimeoutErr(pres, runCtx), "post", firstErr(err, runCtx.Err())
		}
		if !pres.OK {
			if pres.Code == "" {
				pres.Code = ValidationFailed
			}
			return pres, string(PhasePost), nil
		}
	}

	return res, "post", nil
}

func mergeTimeoutErr(res Result, ctx context.Context) Result {
	if ctx.Err() == context.DeadlineExceeded {
		return Result{OK: false, Code: OperationTimeout, Message: "operation timed out"}
	}
	return res
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
