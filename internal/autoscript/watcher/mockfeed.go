package watcher

import (
	"time"
)

// MockEvent is one scripted occurrence in a mock event feed, the
// alternative to a real Watcher used by deterministic tests and demos.
type MockEvent struct {
	Type           EventType
	SubscriptionID string
	Selector       string
	Count          uint64
	Timestamp      time.Time
	DelayMs        int64
}

// MockFeed replays a fixed sequence of events, each after its own delay
// (or a feed-wide base delay when unset), then optionally signals
// exhaustion.
type MockFeed struct {
	Events      []MockEvent
	BaseDelayMs int64

	stopped chan struct{}
	done    chan struct{}
}

// NewMockFeed returns a feed that will replay events in order.
func NewMockFeed(events []MockEvent, baseDelayMs int64) *MockFeed {
	return &MockFeed{
		Events:      events,
		BaseDelayMs: baseDelayMs,
		stopped:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Run plays the feed serially, invoking onEvent for each entry in order
// and sleeping its configured (or base) delay beforehand. onExhausted is
// called once after the last event, unless Stop was called first.
func (f *MockFeed) Run(onEvent func(Event), onExhausted func()) {
	defer close(f.done)
	for _, me := range f.Events {
		delay := me.DelayMs
		if delay <= 0 {
			delay = f.BaseDelayMs
		}
		if delay > 0 {
			select {
			case <-time.After(time.Duration(delay) * time.Millisecond):
			case <-f.stopped:
				return
			}
		}
		select {
		case <-f.stopped:
			return
		default:
		}
		ts := me.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		onEvent(Event{
			Type:           me.Type,
			SubscriptionID: me.SubscriptionID,
			Selector:       me.Selector,
			Count:          me.Count,
			Timestamp:      ts,
		})
	}
	select {
	case <-f.stopped:
	default:
		if onExhausted != nil {
			onExhausted()
		}
	}
}

// Stop halts the feed before it finishes replaying.
func (f *MockFeed) Stop() {
	select {
	case <-f.stopped:
	default:
		close(f.stopped)
	}
	<-f.done
}
