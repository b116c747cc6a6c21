package runner

import (
	"time"

	"github.com/autoscript/runtime/internal/platform/logging"
)

// Observation event names, the testable outward contract of the runner.
const (
	EvtStart             = "autoscript:start"
	EvtStop              = "autoscript:stop"
	EvtEvent             = "autoscript:event"
	EvtWatchError        = "autoscript:watch_error"
	EvtOperationStart    = "autoscript:operation_start"
	EvtOperationDone     = "autoscript:operation_done"
	EvtOperationError    = "autoscript:operation_error"
	EvtOperationSkipped  = "autoscript:operation_skipped"
	EvtOperationTerminal = "autoscript:operation_terminal"
	EvtOperationRecovered      = "autoscript:operation_recovered"
	EvtOperationRecoveryFailed = "autoscript:operation_recovery_failed"
	EvtImpact       = "autoscript:impact"
	EvtPacingWait   = "autoscript:pacing_wait"
	EvtRecoveryAction = "autoscript:recovery_action"
)

// Observation is one structured event emitted to observers.
type Observation struct {
	RunID     string
	ProfileID string
	Event     string
	Ts        time.Time
	Payload   map[string]any
}

// Observer receives observations as a run progresses.
type Observer interface {
	Observe(o Observation)
}

// ObserverFunc adapts a plain function to an Observer.
type ObserverFunc func(Observation)

func (f ObserverFunc) Observe(o Observation) { f(o) }

// CompositeObserver fans an observation out to every configured sink.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver returns an observer that forwards to every sink in
// order.
func NewCompositeObserver(observers ...Observer) *CompositeObserver {
	return &CompositeObserver{observers: observers}
}

func (c *CompositeObserver) Observe(o Observation) {
	for _, obs := range c.observers {
		if obs == nil {
			continue
		}
		obs.Observe(o)
	}
}

// LoggingObserver writes observations through a structured logger.
type LoggingObserver struct {
	Logger logging.Logger
}

// NewLoggingObserver returns an Observer backed by logger, falling back to
// a no-op if logger is nil.
func NewLoggingObserver(logger logging.Logger) *LoggingObserver {
	return &LoggingObserver{Logger: logging.OrNop(logger)}
}

func (l *LoggingObserver) Observe(o Observation) {
	l.Logger.Info("%s run=%s profile=%s payload=%v", o.Event, o.RunID, o.ProfileID, o.Payload)
}
