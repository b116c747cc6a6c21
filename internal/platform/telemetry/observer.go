package telemetry

import (
	"fmt"

	"github.com/autoscript/runtime/internal/autoscript/runner"
)

// MetricsObserver adapts a Metrics set to the runner.Observer contract, so a
// run can feed Prometheus alongside any other configured sink through
// runner.CompositeObserver.
type MetricsObserver struct {
	Metrics *Metrics
}

// NewMetricsObserver returns an Observer backed by m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{Metrics: m}
}

func (o *MetricsObserver) Observe(obs runner.Observation) {
	operationID, _ := obs.Payload["operationId"].(string)

	switch obs.Event {
	case runner.EvtOperationDone:
		o.Metrics.RecordOperationRun(operationID, "done", 0)
	case runner.EvtOperationError:
		o.Metrics.RecordOperationRun(operationID, "failed", 0)
	case runner.EvtOperationSkipped:
		o.Metrics.RecordOperationRun(operationID, "skipped", 0)
	case runner.EvtImpact:
		scope := fmt.Sprintf("%v", obs.Payload["scope"])
		o.Metrics.RecordImpact(scope)
	case runner.EvtOperationRecovered:
		o.Metrics.RecordRecovery(operationID, "recovered")
	case runner.EvtOperationRecoveryFailed:
		code, _ := obs.Payload["code"].(string)
		o.Metrics.RecordRecovery(operationID, code)
	}
}
