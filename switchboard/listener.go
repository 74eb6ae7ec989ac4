////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package switchboard routes channel events to registered listeners by event
// name. Registration returns an ID so every subscribe has a matching
// unsubscribe; nothing is held implicitly.
package switchboard

import (
	"strconv"
	"sync"

	jww "github.com/spf13/jwalterweatherman"
)

// AnyEvent is the wildcard name: listeners registered under it hear every
// event.
const AnyEvent = ""

// Item is a single event delivered over the push channel. Payload is the raw
// JSON payload of the event envelope; ChatID is the conversation the event
// concerns, when the payload names one.
type Item struct {
	Name    string
	ChatID  string
	Payload []byte
}

// Listener receives events from the switchboard.
type Listener interface {
	Hear(item Item)
}

// ListenerFunc lets a bare function satisfy Listener.
type ListenerFunc func(item Item)

// Hear satisfies the Listener interface.
func (lf ListenerFunc) Hear(item Item) {
	lf(item)
}

type listenerRecord struct {
	l  Listener
	id string
}

// Switchboard holds the listener registry. The zero value is not usable; use
// New.
type Switchboard struct {
	listeners map[string][]*listenerRecord
	lastID    int
	mux       sync.RWMutex
}

// New returns an empty Switchboard.
func New() *Switchboard {
	return &Switchboard{
		listeners: make(map[string][]*listenerRecord),
	}
}

// RegisterListener adds a listener for the named event and returns its ID.
// Keep the ID to unregister the listener later; a listener that is never
// unregistered lives as long as the switchboard. Pass AnyEvent to hear all
// events. Panics on a nil listener; there is no valid reason to register one.
func (sw *Switchboard) RegisterListener(event string, l Listener) string {
	if l == nil {
		jww.FATAL.Panicf(
			"Cannot register nil listener for event %q", event)
	}

	sw.mux.Lock()
	defer sw.mux.Unlock()

	sw.lastID++
	rec := &listenerRecord{l: l, id: strconv.Itoa(sw.lastID)}
	sw.listeners[event] = append(sw.listeners[event], rec)

	return rec.id
}

// Unregister removes the listener with the given ID. Unknown IDs are a no-op:
// symmetric teardown must be safe to run more than once.
func (sw *Switchboard) Unregister(listenerID string) {
	sw.mux.Lock()
	defer sw.mux.Unlock()

	for event, records := range sw.listeners {
		for i, rec := range records {
			if rec.id == listenerID {
				sw.listeners[event] = append(
					records[:i], records[i+1:]...)
				return
			}
		}
	}
}

// Speak delivers the item to every listener registered for its name, then to
// the wildcard listeners, each in registration order. Delivery is synchronous
// so that per-connection FIFO ordering of events is preserved end to end.
func (sw *Switchboard) Speak(item Item) {
	sw.mux.RLock()
	matched := make([]*listenerRecord, 0,
		len(sw.listeners[item.Name])+len(sw.listeners[AnyEvent]))
	matched = append(matched, sw.listeners[item.Name]...)
	if item.Name != AnyEvent {
		matched = append(matched, sw.listeners[AnyEvent]...)
	}
	sw.mux.RUnlock()

	if len(matched) == 0 {
		jww.WARN.Printf("Event %q matched no listeners", item.Name)
		return
	}

	for _, rec := range matched {
		rec.l.Hear(item)
	}
}
