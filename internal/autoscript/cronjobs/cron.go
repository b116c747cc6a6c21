// Package cronjobs implements the supplementary cron trigger kind:
// operations may declare `trigger: "cron:<name>:<expr>"` for time-based
// proactive firing alongside the four subscription-driven trigger kinds.
// Each operation gets one cron.Entry, which calls the registered FireFunc
// with that operation on every tick.
package cronjobs

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/autoscript/runtime/internal/autoscript/model"
	"github.com/autoscript/runtime/internal/platform/logging"
)

// FireFunc is invoked when a cron trigger fires, carrying the operation's
// trigger so the caller can synthesize the matching scheduler event.
type FireFunc func(op model.Operation)

// Registry owns a single cron.Cron instance and the set of entries
// registered for one script's cron-triggered operations.
type Registry struct {
	cron    *cron.Cron
	logger  logging.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New returns a Registry ready to register cron-triggered operations.
func New(logger logging.Logger) *Registry {
	return &Registry{
		cron:    cron.New(),
		logger:  logging.OrNop(logger),
		entries: map[string]cron.EntryID{},
	}
}

// RegisterAll scans script's operations for cron triggers and schedules
// each one, calling onFire when its expression matches.
func (r *Registry) RegisterAll(script model.Script, onFire FireFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range script.Operations {
		if op.Trigger.Kind != model.TriggerCron || !op.Enabled {
			continue
		}
		op := op
		id, err := r.cron.AddFunc(op.Trigger.CronExpr, func() {
			r.logger.Debug("cron trigger fired op=%s name=%s expr=%s", op.ID, op.Trigger.CronName, op.Trigger.CronExpr)
			onFire(op)
		})
		if err != nil {
			return fmt.Errorf("cronjobs: register operation %q (%s): %w", op.ID, op.Trigger.CronExpr, err)
		}
		r.entries[op.ID] = id
	}
	return nil
}

// Start begins firing registered entries.
func (r *Registry) Start() {
	r.cron.Start()
}

// Stop halts the cron scheduler and waits for any running job to finish.
func (r *Registry) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
