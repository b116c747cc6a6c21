package state

import (
	"testing"
	"time"
)

func TestApplyEventAppearIncrementsCountAndVersion(t *testing.T) {
	s := New([]string{"s1"}, nil)
	now := time.Now()

	st := s.ApplyEvent("s1", EventKindAppear, 1, now)
	if st.AppearCount != 1 || st.Version != 1 || !st.Exists {
		t.Fatalf("unexpected state after appear: %+v", st)
	}

	st = s.ApplyEvent("s1", EventKindAppear, 1, now)
	if st.AppearCount != 2 || st.Version != 2 {
		t.Fatalf("expected monotonic increase, got %+v", st)
	}
}

func TestApplyEventDisappearClearsExistsButKeepsCounters(t *testing.T) {
	s := New([]string{"s1"}, nil)
	now := time.Now()
	s.ApplyEvent("s1", EventKindAppear, 1, now)
	st := s.ApplyEvent("s1", EventKindDisappear, 0, now)
	if st.Exists {
		t.Fatalf("expected exists=false after disappear")
	}
	if st.AppearCount != 1 {
		t.Fatalf("expected appearCount unaffected by disappear, got %d", st.AppearCount)
	}
	if st.Version != 2 {
		t.Fatalf("expected version to increment on disappear, got %d", st.Version)
	}
}

func TestApplyEventChangeUsesCountOrPriorExists(t *testing.T) {
	s := New([]string{"s1"}, nil)
	now := time.Now()
	st := s.ApplyEvent("s1", EventKindChange, 0, now)
	if st.Exists {
		t.Fatalf("expected exists=false: count=0 and no prior exists")
	}
	s.ApplyEvent("s1", EventKindAppear, 1, now)
	st = s.ApplyEvent("s1", EventKindChange, 0, now)
	if !st.Exists {
		t.Fatalf("expected exists=true: prior exists should be preserved")
	}
}

func TestApplyEventExistSetsExistsTrue(t *testing.T) {
	s := New([]string{"s1"}, nil)
	st := s.ApplyEvent("s1", EventKindExist, 1, time.Now())
	if !st.Exists {
		t.Fatalf("expected exist event to set exists true")
	}
	if st.Version != 0 {
		t.Fatalf("expected exist event not to bump version, got %d", st.Version)
	}
}

func TestResetOperationClearsErrorAndResult(t *testing.T) {
	s := New(nil, []string{"op1"})
	op := s.Operation("op1")
	msg := "boom"
	op.Status = StatusFailed
	op.LastError = &msg
	op.Result = "stale"

	s.ResetOperation("op1", time.Now())
	op = s.Operation("op1")
	if op.Status != StatusPending || op.LastError != nil || op.Result != nil {
		t.Fatalf("expected reset operation, got %+v", op)
	}
}
