package impact

import (
	"testing"

	"github.com/autoscript/runtime/internal/autoscript/model"
)

func TestApplyFailureContinueIsNoop(t *testing.T) {
	e := New()
	out := e.ApplyFailure(FailureInput{OperationID: "a", OnFailure: model.OnFailureContinue})
	if out.Scope != ScopeNone {
		t.Fatalf("expected ScopeNone, got %s", out.Scope)
	}
	if !e.CanRun("a", "") {
		t.Fatalf("expected op still runnable after continue")
	}
}

func TestApplyFailureStopAllStopsScript(t *testing.T) {
	e := New()
	out := e.ApplyFailure(FailureInput{OperationID: "a", OnFailure: model.OnFailureStopAll})
	if out.Scope != ScopeScript || !out.ScriptStopped {
		t.Fatalf("expected script-wide stop, got %+v", out)
	}
	if e.CanRun("a", "") || e.CanRun("b", "") {
		t.Fatalf("expected no operation runnable after script stop")
	}
}

func TestApplyFailureImpactScriptStopsScript(t *testing.T) {
	e := New()
	out := e.ApplyFailure(FailureInput{OperationID: "a", Impact: model.ImpactScript, OnFailure: model.OnFailureChainStop})
	if out.Scope != ScopeScript || !e.ScriptStopped() {
		t.Fatalf("expected impact=script to stop the script, got %+v", out)
	}
}

func TestApplyFailureImpactSubscriptionBlocksSubscription(t *testing.T) {
	e := New()
	out := e.ApplyFailure(FailureInput{OperationID: "a", SubscriptionID: "s1", Impact: model.ImpactSubscription, OnFailure: model.OnFailureChainStop})
	if out.Scope != ScopeSubscription || out.BlockedSubscriptionID != "s1" {
		t.Fatalf("expected subscription block, got %+v", out)
	}
	if e.CanRun("other-op", "s1") {
		t.Fatalf("expected operations on blocked subscription to be ineligible")
	}
	if !e.CanRun("other-op", "s2") {
		t.Fatalf("expected operations on a different subscription to remain eligible")
	}
}

func TestApplyFailureChainStopBlocksSubscriptionWhenPresent(t *testing.T) {
	e := New()
	out := e.ApplyFailure(FailureInput{OperationID: "a", SubscriptionID: "s1", OnFailure: model.OnFailureChainStop})
	if out.Scope != ScopeSubscription || out.BlockedSubscriptionID != "s1" {
		t.Fatalf("expected chain_stop with subscription to block subscription, got %+v", out)
	}
}

func TestApplyFailureChainStopBlocksOpWhenNoSubscription(t *testing.T) {
	e := New()
	out := e.ApplyFailure(FailureInput{OperationID: "a", OnFailure: model.OnFailureChainStop})
	if out.Scope != ScopeOp || out.BlockedOperationID != "a" {
		t.Fatalf("expected chain_stop without subscription to block the op, got %+v", out)
	}
	if e.CanRun("a", "") {
		t.Fatalf("expected blocked op to be ineligible")
	}
}

func TestApplyFailureDefaultBlocksOp(t *testing.T) {
	e := New()
	out := e.ApplyFailure(FailureInput{OperationID: "a", Impact: model.ImpactOp, OnFailure: "" })
	if out.Scope != ScopeOp || out.BlockedOperationID != "a" {
		t.Fatalf("expected default fallthrough to block op, got %+v", out)
	}
}

func TestCanRunFalseWhenScriptStopped(t *testing.T) {
	e := New()
	e.ApplyFailure(FailureInput{OperationID: "a", OnFailure: model.OnFailureStopAll})
	if e.CanRun("unrelated", "unrelated-sub") {
		t.Fatalf("expected no op runnable once script stopped")
	}
}
