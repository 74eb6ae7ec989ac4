////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package rooms tracks which conversation rooms the client is subscribed to
// on the push channel. Room membership is not transport-durable: the backend
// forgets it on disconnect, so the manager re-joins every open room when the
// connection reports healthy again.
package rooms

import (
	"sync"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/pairly/chat-client/catalog"
)

// Emitter is the slice of the channel connection the manager needs.
type Emitter interface {
	Send(event string, payload interface{})
	AddHealthCallback(cb func(healthy bool)) uint64
	RemoveHealthCallback(id uint64)
}

// Manager owns the client's room memberships. Join and Leave are idempotent;
// double joins and stray leaves are no-ops, not errors.
type Manager struct {
	emitter Emitter
	joined  map[string]struct{}
	cbID    uint64
	mux     sync.Mutex
}

// NewManager returns a Manager wired to the given connection. It registers a
// health callback to re-join on reconnect; call Stop to unregister it.
func NewManager(emitter Emitter) *Manager {
	m := &Manager{
		emitter: emitter,
		joined:  make(map[string]struct{}),
	}
	m.cbID = emitter.AddHealthCallback(m.onHealth)
	return m
}

// Stop unregisters the manager from the connection.
func (m *Manager) Stop() {
	m.emitter.RemoveHealthCallback(m.cbID)
}

// Join subscribes to the conversation's room. Joining an already-joined room
// is a no-op.
func (m *Manager) Join(chatID string) {
	m.mux.Lock()
	if _, exists := m.joined[chatID]; exists {
		m.mux.Unlock()
		return
	}
	m.joined[chatID] = struct{}{}
	m.mux.Unlock()

	m.emitter.Send(catalog.JoinChat, catalog.RoomID(chatID))
}

// Leave unsubscribes from the conversation's room. Leaving a room that was
// never joined is a no-op.
func (m *Manager) Leave(chatID string) {
	m.mux.Lock()
	if _, exists := m.joined[chatID]; !exists {
		m.mux.Unlock()
		return
	}
	delete(m.joined, chatID)
	m.mux.Unlock()

	m.emitter.Send(catalog.LeaveChat, catalog.RoomID(chatID))
}

// IsJoined reports whether the conversation's room is currently joined.
func (m *Manager) IsJoined(chatID string) bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	_, exists := m.joined[chatID]
	return exists
}

// onHealth re-establishes every membership when the connection comes back.
// The join emits ride the same transport the health transition came from, so
// they precede any event the new connection delivers.
func (m *Manager) onHealth(healthy bool) {
	if !healthy {
		return
	}

	m.mux.Lock()
	rejoin := make([]string, 0, len(m.joined))
	for chatID := range m.joined {
		rejoin = append(rejoin, chatID)
	}
	m.mux.Unlock()

	for _, chatID := range rejoin {
		jww.INFO.Printf("Re-joining room %s after reconnect",
			catalog.RoomID(chatID))
		m.emitter.Send(catalog.JoinChat, catalog.RoomID(chatID))
	}
}
