package cronjobs

import (
	"testing"
	"time"

	"github.com/autoscript/runtime/internal/autoscript/model"
)

func TestRegisterAllFiresOnlyCronTriggeredOps(t *testing.T) {
	r := New(nil)
	fired := make(chan model.Operation, 4)

	script := model.Script{
		Operations: []model.Operation{
			{ID: "a", Enabled: true, Trigger: model.Trigger{Kind: model.TriggerCron, CronName: "tick", CronExpr: "* * * * *"}},
			{ID: "b", Enabled: true, Trigger: model.Trigger{Kind: model.TriggerStartup}},
		},
	}

	if err := r.RegisterAll(script, func(op model.Operation) { fired <- op }); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if len(r.entries) != 1 {
		t.Fatalf("expected exactly one cron entry registered, got %d", len(r.entries))
	}
}

func TestRegisterAllRejectsInvalidExpression(t *testing.T) {
	r := New(nil)
	script := model.Script{
		Operations: []model.Operation{
			{ID: "a", Enabled: true, Trigger: model.Trigger{Kind: model.TriggerCron, CronName: "bad", CronExpr: "not-a-cron-expr"}},
		},
	}
	if err := r.RegisterAll(script, func(model.Operation) {}); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}
}

func TestStartStopIsSafe(t *testing.T) {
	r := New(nil)
	script := model.Script{
		Operations: []model.Operation{
			{ID: "a", Enabled: true, Trigger: model.Trigger{Kind: model.TriggerCron, CronName: "tick", CronExpr: "* * * * *"}},
		},
	}
	if err := r.RegisterAll(script, func(model.Operation) {}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	r.Start()
	time.Sleep(5 * time.Millisecond)
	r.Stop()
}
