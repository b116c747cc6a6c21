// Package wswatcher receives subscription events over a websocket
// connection from a remote browser bridge — the transport a real
// deployment (where the actual DOM observation happens out-of-process,
// in a browser extension or CDP driver) would use.
package wswatcher

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autoscript/runtime/internal/autoscript/model"
	"github.com/autoscript/runtime/internal/autoscript/watcher"
	"github.com/autoscript/runtime/internal/platform/logging"
)

// wireEvent is the JSON shape the bridge sends over the socket.
type wireEvent struct {
	Type           string `json:"type"`
	SubscriptionID string `json:"subscriptionId"`
	Selector       string `json:"selector"`
	Count          uint64 `json:"count"`
	TimestampMs    int64  `json:"timestampMs"`
}

// Dialer opens the websocket connection to the bridge; swappable for
// tests.
type Dialer func(url string) (*websocket.Conn, error)

// DefaultDialer dials url with the standard gorilla/websocket dialer.
func DefaultDialer(url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

// Watcher bridges a websocket connection into the watcher.Watcher
// contract.
type Watcher struct {
	URL    string
	Dial   Dialer
	Logger logging.Logger
}

// New returns a Watcher that will dial url when Watch is called.
func New(url string, dial Dialer, logger logging.Logger) *Watcher {
	if dial == nil {
		dial = DefaultDialer
	}
	return &Watcher{URL: url, Dial: dial, Logger: logging.OrNop(logger)}
}

type handle struct {
	conn *websocket.Conn
	once sync.Once
}

func (h *handle) Stop() {
	h.once.Do(func() {
		_ = h.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = h.conn.Close()
	})
}

// Watch implements watcher.Watcher: it dials the bridge, sends a
// subscribe message describing subscriptions/throttle, then reads events
// off the socket until Stop is called or the connection errors.
func (w *Watcher) Watch(profileID string, subscriptions []model.Subscription, throttleMs int64, onEvent func(watcher.Event), onError func(error)) (watcher.Handle, error) {
	conn, err := w.Dial(w.URL)
	if err != nil {
		return nil, fmt.Errorf("wswatcher: dial %s: %w", w.URL, err)
	}

	subMsg := map[string]any{
		"type":          "subscribe",
		"profileId":     profileID,
		"throttleMs":    throttleMs,
		"subscriptions": subscriptions,
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wswatcher: send subscribe: %w", err)
	}

	h := &handle{conn: conn}

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					if onError != nil {
						onError(fmt.Errorf("wswatcher: read: %w", err))
					}
				}
				return
			}
			var we wireEvent
			if err := json.Unmarshal(raw, &we); err != nil {
				if onError != nil {
					onError(fmt.Errorf("wswatcher: decode event: %w", err))
				}
				continue
			}
			ts := time.Now()
			if we.TimestampMs > 0 {
				ts = time.UnixMilli(we.TimestampMs)
			}
			onEvent(watcher.Event{
				Type:           watcher.EventType(we.Type),
				SubscriptionID: we.SubscriptionID,
				Selector:       we.Selector,
				Count:          we.Count,
				Timestamp:      ts,
			})
		}
	}()

	return h, nil
}
