////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package store

import (
	"sync"

	jww "github.com/spf13/jwalterweatherman"
)

// DetailStore holds the ordered message sequence for the single conversation
// currently open, plus its block state. All mutation goes through the
// reconcile entry points below; the UI layer only reads.
//
// Ordering is append-only by arrival, not by server timestamp. A delayed push
// racing a faster REST confirmation renders in arrival order. This mirrors
// the backend's delivery model and is not corrected here.
type DetailStore struct {
	chatID string
	selfID string

	messages []Message
	byID     map[string]struct{}
	blocked  bool

	mux sync.RWMutex
}

// NewDetailStore returns an empty store for the given conversation. selfID is
// this user's ID, used to tell own messages from the peer's.
func NewDetailStore(chatID, selfID string) *DetailStore {
	return &DetailStore{
		chatID: chatID,
		selfID: selfID,
		byID:   make(map[string]struct{}),
	}
}

// ChatID returns the conversation this store belongs to.
func (ds *DetailStore) ChatID() string {
	return ds.chatID
}

// LoadHistory replaces the entire message sequence with the server-returned
// history, oldest first. Any pending messages are discarded with it; a fresh
// open has none.
func (ds *DetailStore) LoadHistory(msgs []Message) {
	ds.mux.Lock()
	defer ds.mux.Unlock()

	ds.messages = make([]Message, len(msgs))
	ds.byID = make(map[string]struct{}, len(msgs))
	for i, m := range msgs {
		m.Status = Confirmed
		m.TempID = ""
		ds.messages[i] = m
		if m.ID != "" {
			ds.byID[m.ID] = struct{}{}
		}
	}
}

// AppendPending adds a locally authored, not-yet-confirmed message at the
// tail so the UI reflects the send instantly.
func (ds *DetailStore) AppendPending(m Message) {
	ds.mux.Lock()
	defer ds.mux.Unlock()

	m.Status = Pending
	m.ID = ""
	ds.messages = append(ds.messages, m)
}

// ReconcileIncoming merges a confirmed message arriving from any source (push
// delivery or the backend's acknowledgment of a local send) into the
// sequence:
//  1. If the durable ID is already present, the message is dropped. This is
//     the dedup guard against self-echo, where a message this client sent
//     also arrives back over the push channel.
//  2. If a pending message matches the confirmation round trip (same sender,
//     same text), it is replaced in place at the same index.
//  3. Otherwise the message is appended at the tail.
//
// Returns true if the store changed.
func (ds *DetailStore) ReconcileIncoming(m Message) bool {
	ds.mux.Lock()
	defer ds.mux.Unlock()

	if m.ID != "" {
		if _, exists := ds.byID[m.ID]; exists {
			jww.DEBUG.Printf("Dropped duplicate message %s for "+
				"conversation %s", m.ID, ds.chatID)
			return false
		}
	}

	m.Status = Confirmed
	m.TempID = ""

	for i := range ds.messages {
		p := &ds.messages[i]
		if p.Status == Pending && p.SenderID == m.SenderID &&
			p.Text == m.Text {
			ds.messages[i] = m
			if m.ID != "" {
				ds.byID[m.ID] = struct{}{}
			}
			return true
		}
	}

	ds.messages = append(ds.messages, m)
	if m.ID != "" {
		ds.byID[m.ID] = struct{}{}
	}
	return true
}

// RemovePending retracts the pending message with the given temporary ID,
// returning its text so the compose field can be restored. A failed send
// leaves no trace in the store.
func (ds *DetailStore) RemovePending(tempID string) (string, bool) {
	ds.mux.Lock()
	defer ds.mux.Unlock()

	for i := range ds.messages {
		if ds.messages[i].Status == Pending &&
			ds.messages[i].TempID == tempID {
			text := ds.messages[i].Text
			ds.messages = append(
				ds.messages[:i], ds.messages[i+1:]...)
			return text, true
		}
	}
	return "", false
}

// ReconcileReadReceipt flips the read flag on every message authored by this
// user. It is a batch operation: the peer's "messages read" announcement
// means everything sent to them up to now has been seen.
func (ds *DetailStore) ReconcileReadReceipt() {
	ds.mux.Lock()
	defer ds.mux.Unlock()

	for i := range ds.messages {
		if ds.messages[i].SenderID == ds.selfID {
			ds.messages[i].Read = true
		}
	}
}

// SetBlocked records whether messaging is currently forbidden between the
// two participants.
func (ds *DetailStore) SetBlocked(blocked bool) {
	ds.mux.Lock()
	defer ds.mux.Unlock()
	ds.blocked = blocked
}

// Blocked reports whether messaging is currently forbidden.
func (ds *DetailStore) Blocked() bool {
	ds.mux.RLock()
	defer ds.mux.RUnlock()
	return ds.blocked
}

// HasMessage reports whether a message with the given durable ID is present.
func (ds *DetailStore) HasMessage(id string) bool {
	ds.mux.RLock()
	defer ds.mux.RUnlock()
	_, exists := ds.byID[id]
	return exists
}

// Len returns the number of messages, pending included.
func (ds *DetailStore) Len() int {
	ds.mux.RLock()
	defer ds.mux.RUnlock()
	return len(ds.messages)
}

// Messages returns a copy of the message sequence in render order.
func (ds *DetailStore) Messages() []Message {
	ds.mux.RLock()
	defer ds.mux.RUnlock()

	out := make([]Message, len(ds.messages))
	copy(out, ds.messages)
	return out
}
