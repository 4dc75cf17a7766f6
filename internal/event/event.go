// SPDX-License-Identifier: MPL-2.0

// Package event is the typed publish/subscribe channel through which the
// registry and the module engine notify external observers.
//
// Subscribers register for a set of kinds and, optionally, a single
// subject (a module id or a package url). Delivery is synchronous, in
// subscription order, on the publishing goroutine.
package event

import (
	"slices"
	"sync"
)

// Kind names a notification.
type Kind string

const (
	ModuleLoaded      Kind = "module-loaded"
	ModuleChanged     Kind = "module-changed"
	ModuleUnloaded    Kind = "module-unloaded"
	PackageRegistered Kind = "package-registered"
	PackageRemoved    Kind = "package-removed"
	// CycleNotice is informational: a package alias pointed back into the
	// registration chain and was skipped.
	CycleNotice Kind = "cycle-notice"
)

type (
	// Event is one notification. ID is set for module events, URL for
	// package events. Source and Err are set for ModuleChanged.
	Event struct {
		Kind   Kind
		ID     string
		URL    string
		Source string
		Err    error
		// Stack is the registration chain for CycleNotice.
		Stack []string
	}

	// Handler receives events.
	Handler func(Event)

	subscription struct {
		id      uint64
		kinds   []Kind
		subject string
		fn      Handler
	}

	// Bus fans events out to subscribers. The zero value is ready to use.
	Bus struct {
		mu   sync.RWMutex
		next uint64
		subs []subscription
	}
)

// Subject returns the id or url an event is about.
func (e Event) Subject() string {
	if e.ID != "" {
		return e.ID
	}
	return e.URL
}

// NewBus returns an empty bus.
func NewBus() *Bus { return &Bus{} }

// Subscribe registers fn for the given kinds (all kinds when none are given)
// and returns a function that cancels the subscription.
func (b *Bus) Subscribe(fn Handler, kinds ...Kind) (unsubscribe func()) {
	return b.add("", fn, kinds)
}

// SubscribeSubject is Subscribe restricted to events about one module id or package url.
func (b *Bus) SubscribeSubject(subject string, fn Handler, kinds ...Kind) (unsubscribe func()) {
	return b.add(subject, fn, kinds)
}

func (b *Bus) add(subject string, fn Handler, kinds []Kind) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, kinds: slices.Clone(kinds), subject: subject, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
	}
}

// Publish delivers e to every matching subscriber. Handlers may subscribe or
// unsubscribe while being called; such changes take effect for the next event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()
	for _, s := range subs {
		if s.subject != "" && s.subject != e.Subject() {
			continue
		}
		if len(s.kinds) > 0 && !slices.Contains(s.kinds, e.Kind) {
			continue
		}
		s.fn(e)
	}
}
