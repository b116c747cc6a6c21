// Package htmlwatcher is a reference implementation of the watcher
// contract: it polls an HTML document source and turns CSS-selector
// matches into appear/exist/disappear/change events. Real deployments
// would instead bridge events from a live browser session, but this
// watcher is useful standalone against a static page-fetch source and in
// tests that want selector-matching behavior without a browser.
package htmlwatcher

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/autoscript/runtime/internal/autoscript/model"
	"github.com/autoscript/runtime/internal/autoscript/watcher"
	"github.com/autoscript/runtime/internal/platform/logging"
)

// Source fetches the current HTML document and a hash identifying its
// content, so the watcher can skip re-parsing an unchanged page.
type Source interface {
	Fetch() (html string, hash string, err error)
}

// URLSource is an optional Source capability reporting the page URL the
// document was fetched from, so subscriptions can be scoped by
// PageURLIncludes/PageURLExcludes. A Source that doesn't implement it (e.g.
// a test fake) is treated as having no page URL, and page scoping is
// skipped for every subscription.
type URLSource interface {
	PageURL() string
}

// Watcher polls a Source on an interval and diffs CSS-selector matches
// against each subscription's previous match count.
type Watcher struct {
	Source       Source
	PollInterval time.Duration
	Logger       logging.Logger

	docCache *lru.Cache[string, *goquery.Document]

	mu      sync.Mutex
	matched map[string]int // subscriptionID -> last observed match count
}

// New returns a Watcher polling src every pollInterval, caching up to
// cacheSize parsed documents.
func New(src Source, pollInterval time.Duration, cacheSize int, logger logging.Logger) (*Watcher, error) {
	if cacheSize <= 0 {
		cacheSize = 8
	}
	cache, err := lru.New[string, *goquery.Document](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("htmlwatcher: create document cache: %w", err)
	}
	return &Watcher{
		Source:       src,
		PollInterval: pollInterval,
		Logger:       logging.OrNop(logger),
		docCache:     cache,
		matched:      map[string]int{},
	}, nil
}

type handle struct {
	stop chan struct{}
	done chan struct{}
}

func (h *handle) Stop() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
	<-h.done
}

// Watch implements watcher.Watcher.
func (w *Watcher) Watch(profileID string, subscriptions []model.Subscription, throttleMs int64, onEvent func(watcher.Event), onError func(error)) (watcher.Handle, error) {
	h := &handle{stop: make(chan struct{}), done: make(chan struct{})}
	interval := w.PollInterval
	if interval <= 0 {
		interval = time.Duration(throttleMs) * time.Millisecond
	}
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				w.poll(subscriptions, onEvent, onError)
			}
		}
	}()

	return h, nil
}

func (w *Watcher) poll(subscriptions []model.Subscription, onEvent func(watcher.Event), onError func(error)) {
	html, hash, err := w.Source.Fetch()
	if err != nil {
		if onError != nil {
			onError(fmt.Errorf("htmlwatcher: fetch: %w", err))
		}
		return
	}

	doc, ok := w.docCache.Get(hash)
	if !ok {
		doc, err = goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("htmlwatcher: parse: %w", err))
			}
			return
		}
		w.docCache.Add(hash, doc)
	}

	var pageURL string
	if us, ok := w.Source.(URLSource); ok {
		pageURL = us.PageURL()
	}

	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range subscriptions {
		if !matchesPage(sub, pageURL) {
			continue
		}

		sel := doc.Find(sub.Selector)
		count := sel.Length()
		if sub.Visible {
			count = sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
				style, _ := s.Attr("style")
				return style != "display:none" && style != "display: none"
			}).Length()
		}

		prev := w.matched[sub.ID]
		w.matched[sub.ID] = count

		// The four event kinds are independent, not mutually exclusive: the
		// poll where an element appears also satisfies "exists", so an
		// exist-only subscriber must not wait for a later steady-state poll.
		if prev == 0 && count > 0 && sub.HasEvent(model.EventAppear) {
			onEvent(watcher.Event{Type: watcher.TypeAppear, SubscriptionID: sub.ID, Selector: sub.Selector, Count: uint64(count), Timestamp: now})
		}
		if prev > 0 && count == 0 && sub.HasEvent(model.EventDisappear) {
			onEvent(watcher.Event{Type: watcher.TypeDisappear, SubscriptionID: sub.ID, Selector: sub.Selector, Count: uint64(count), Timestamp: now})
		}
		if count > 0 && sub.HasEvent(model.EventExist) {
			onEvent(watcher.Event{Type: watcher.TypeExist, SubscriptionID: sub.ID, Selector: sub.Selector, Count: uint64(count), Timestamp: now})
		}
		if prev != count && sub.HasEvent(model.EventChange) {
			onEvent(watcher.Event{Type: watcher.TypeChange, SubscriptionID: sub.ID, Selector: sub.Selector, Count: uint64(count), Timestamp: now})
		}
	}
}

// matchesPage reports whether sub is in scope for pageURL: excludes take
// precedence over includes, and an empty pageURL (a Source that doesn't
// report one) or an empty includes/excludes pair always matches.
func matchesPage(sub model.Subscription, pageURL string) bool {
	if pageURL == "" {
		return true
	}
	for _, ex := range sub.PageURLExcludes {
		if strings.Contains(pageURL, ex) {
			return false
		}
	}
	if len(sub.PageURLIncludes) == 0 {
		return true
	}
	for _, inc := range sub.PageURLIncludes {
		if strings.Contains(pageURL, inc) {
			return true
		}
	}
	return false
}
