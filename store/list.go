////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package store

import (
	"encoding/json"
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/pairly/chat-client/storage/versioned"
)

const (
	listStorePrefix     = "conversationList"
	listSnapshotKey     = "snapshot"
	listSnapshotVersion = 0
)

// ListStore holds the summaries of every conversation this user participates
// in. The list is only ever replaced wholesale by a refresh; push events may
// apply advisory patches between refreshes, which the next refresh
// supersedes. List-level state is cheap to refetch and high-stakes to get
// wrong, so correctness comes from pessimistic refetch, not incremental
// merging.
//
// The last replaced list is persisted so a restarted client can show it
// before the first refresh completes. The snapshot is advisory like any
// patch.
type ListStore struct {
	conversations []Conversation
	byID          map[string]int
	kv            *versioned.KV

	mux sync.RWMutex
}

// NewListStore returns a list store backed by the given KV, preloaded with
// the persisted snapshot when one exists.
func NewListStore(kv *versioned.KV) *ListStore {
	ls := &ListStore{
		byID: make(map[string]int),
		kv:   kv.Prefix(listStorePrefix),
	}

	obj, err := ls.kv.Get(listSnapshotKey, listSnapshotVersion)
	if err != nil {
		if ls.kv.Exists(err) {
			jww.WARN.Printf(
				"Failed to load conversation list snapshot: %+v", err)
		}
		return ls
	}

	var snapshot []Conversation
	if err = json.Unmarshal(obj.Data, &snapshot); err != nil {
		jww.WARN.Printf(
			"Discarding corrupt conversation list snapshot: %+v", err)
		return ls
	}
	ls.replaceLocked(snapshot)

	return ls
}

// Replace swaps in the server-returned list wholesale and persists it. Any
// earlier advisory patches are superseded.
func (ls *ListStore) Replace(conversations []Conversation) {
	ls.mux.Lock()
	defer ls.mux.Unlock()

	ls.replaceLocked(conversations)

	data, err := json.Marshal(ls.conversations)
	if err != nil {
		jww.ERROR.Printf(
			"Failed to marshal conversation list snapshot: %+v", err)
		return
	}
	err = ls.kv.Set(listSnapshotKey, &versioned.Object{
		Version:   listSnapshotVersion,
		Timestamp: netTime.Now(),
		Data:      data,
	})
	if err != nil {
		jww.ERROR.Printf(
			"Failed to store conversation list snapshot: %+v", err)
	}
}

func (ls *ListStore) replaceLocked(conversations []Conversation) {
	ls.conversations = make([]Conversation, len(conversations))
	copy(ls.conversations, conversations)
	ls.byID = make(map[string]int, len(conversations))
	for i, c := range ls.conversations {
		ls.byID[c.ID] = i
	}
}

// ApplyLightweightPatch bumps the unread badge and preview for a conversation
// a push message arrived on while it is not the open conversation. Advisory
// only: it is not persisted and the next Replace supersedes it. Returns false
// when the conversation is not in the list (a brand-new match; the caller
// should refresh instead).
func (ls *ListStore) ApplyLightweightPatch(
	chatID, preview string, at time.Time) bool {
	ls.mux.Lock()
	defer ls.mux.Unlock()

	i, exists := ls.byID[chatID]
	if !exists {
		return false
	}

	c := &ls.conversations[i]
	c.UnreadCount++
	c.LastMessage = preview
	c.LastActivity = at
	return true
}

// ClearUnread zeroes the unread badge for a conversation, advisory like any
// patch. Used when the local user opens a conversation, ahead of the refresh
// that follows the mark-read call.
func (ls *ListStore) ClearUnread(chatID string) {
	ls.mux.Lock()
	defer ls.mux.Unlock()

	if i, exists := ls.byID[chatID]; exists {
		ls.conversations[i].UnreadCount = 0
	}
}

// Get returns the summary for the given conversation.
func (ls *ListStore) Get(chatID string) (Conversation, bool) {
	ls.mux.RLock()
	defer ls.mux.RUnlock()

	if i, exists := ls.byID[chatID]; exists {
		return ls.conversations[i], true
	}
	return Conversation{}, false
}

// Conversations returns a copy of the list in server order.
func (ls *ListStore) Conversations() []Conversation {
	ls.mux.RLock()
	defer ls.mux.RUnlock()

	out := make([]Conversation, len(ls.conversations))
	copy(out, ls.conversations)
	return out
}
