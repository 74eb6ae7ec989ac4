////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package rooms

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type emit struct {
	event   string
	payload interface{}
}

// mockEmitter records emits and lets tests drive health transitions.
type mockEmitter struct {
	emits []emit
	cbs   map[uint64]func(bool)
	next  uint64
}

func newMockEmitter() *mockEmitter {
	return &mockEmitter{cbs: make(map[uint64]func(bool))}
}

func (e *mockEmitter) Send(event string, payload interface{}) {
	e.emits = append(e.emits, emit{event, payload})
}

func (e *mockEmitter) AddHealthCallback(cb func(bool)) uint64 {
	e.next++
	e.cbs[e.next] = cb
	return e.next
}

func (e *mockEmitter) RemoveHealthCallback(id uint64) {
	delete(e.cbs, id)
}

func (e *mockEmitter) setHealthy(healthy bool) {
	for _, cb := range e.cbs {
		cb(healthy)
	}
}

// Tests that Join and Leave emit once each and are idempotent.
func TestManager_JoinLeave(t *testing.T) {
	emitter := newMockEmitter()
	m := NewManager(emitter)
	defer m.Stop()

	m.Join("c1")
	m.Join("c1")
	require.True(t, m.IsJoined("c1"))
	require.Equal(t, []emit{{"join_chat", "chat:c1"}}, emitter.emits)

	m.Leave("c1")
	m.Leave("c1")
	m.Leave("never-joined")
	require.False(t, m.IsJoined("c1"))
	require.Equal(t, []emit{
		{"join_chat", "chat:c1"},
		{"leave_chat", "chat:c1"},
	}, emitter.emits)
}

// Tests that every joined room is re-joined when the connection reports
// healthy, and that going unhealthy emits nothing.
func TestManager_RejoinOnReconnect(t *testing.T) {
	emitter := newMockEmitter()
	m := NewManager(emitter)
	defer m.Stop()

	m.Join("c1")
	emitter.emits = nil

	emitter.setHealthy(false)
	require.Empty(t, emitter.emits)
	require.True(t, m.IsJoined("c1"))

	emitter.setHealthy(true)
	require.Equal(t, []emit{{"join_chat", "chat:c1"}}, emitter.emits)
}

// Tests that a stopped manager no longer reacts to health transitions.
func TestManager_Stop(t *testing.T) {
	emitter := newMockEmitter()
	m := NewManager(emitter)

	m.Join("c1")
	m.Stop()
	emitter.emits = nil

	emitter.setHealthy(true)
	require.Empty(t, emitter.emits)
}
