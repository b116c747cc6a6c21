// Package watcher defines the external DOM-subscription watcher contract
// and a mock event feed implementation used for deterministic tests and
// scripted demos.
package watcher

import (
	"time"

	"github.com/autoscript/runtime/internal/autoscript/model"
)

// EventType is the wire-level shape a watcher emits.
type EventType string

const (
	TypeAppear     EventType = "appear"
	TypeExist      EventType = "exist"
	TypeDisappear  EventType = "disappear"
	TypeChange     EventType = "change"
	TypeStartup    EventType = "startup"
	TypeManual     EventType = "manual"
)

// Event is one occurrence a watcher (or mock feed) emits.
type Event struct {
	Type           EventType
	SubscriptionID string
	Selector       string
	Count          uint64
	Timestamp      time.Time
}

// Handle lets the runner stop a watcher it started.
type Handle interface {
	Stop()
}

// Watcher observes a set of subscriptions and reports lifecycle events.
type Watcher interface {
	// Watch begins observation. onEvent is invoked for every event;
	// onError for transport-level failures; whether watching continues
	// after one depends on the implementation.
	// profileID/throttle mirror the watchSubscriptions contract.
	Watch(profileID string, subscriptions []model.Subscription, throttleMs int64, onEvent func(Event), onError func(error)) (Handle, error)
}
