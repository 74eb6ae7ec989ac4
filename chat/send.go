////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/pairly/chat-client/storage/versioned"
	"gitlab.com/pairly/chat-client/store"
)

const (
	draftPrefix  = "drafts"
	draftVersion = 0
)

// Send sends text in the open conversation, optimistically: the message is
// appended as pending before the network call so the UI reflects it
// instantly, then either confirmed in place by the backend's acknowledgment
// or fully retracted on failure.
//
// Preconditions are checked before any network traffic: a blocked
// conversation returns ErrBlocked and text that is empty after trimming
// returns ErrEmptyMessage.
func (c *Client) Send(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyMessage
	}

	c.mux.Lock()
	ds := c.detail
	c.mux.Unlock()

	if ds == nil {
		return ErrNoOpenConversation
	}
	if ds.Blocked() {
		return ErrBlocked
	}

	chatID := ds.ChatID()
	tempID := uuid.NewString()
	ds.AppendPending(store.Message{
		TempID:    tempID,
		SenderID:  c.selfID,
		Text:      trimmed,
		CreatedAt: netTime.Now(),
	})

	// Keep the draft until the backend confirms, so a crash mid-send does
	// not lose the text.
	c.saveDraft(chatID, text)

	confirmed, err := c.rest.SendMessage(chatID, trimmed)
	if err != nil {
		// Roll back: a failed send leaves no trace in the store. The
		// pending entry may already have been replaced by the push
		// echo (delivered, then the acknowledgment timed out); the
		// compose text to restore is the sent text either way.
		original, removed := ds.RemovePending(tempID)
		if !removed {
			original = trimmed
		}
		c.events.SendFailed(chatID, original, err)
		return errors.WithMessagef(err,
			"failed to send message in conversation %s", chatID)
	}

	ds.ReconcileIncoming(*confirmed)
	c.clearDraft(chatID)
	return nil
}

// Draft returns the stored compose draft for a conversation, empty when there
// is none.
func (c *Client) Draft(chatID string) string {
	obj, err := c.drafts.Get(chatID, draftVersion)
	if err != nil {
		if c.drafts.Exists(err) {
			jww.WARN.Printf("Failed to load draft for %s: %+v",
				chatID, err)
		}
		return ""
	}
	return string(obj.Data)
}

func (c *Client) saveDraft(chatID, text string) {
	err := c.drafts.Set(chatID, &versioned.Object{
		Version:   draftVersion,
		Timestamp: netTime.Now(),
		Data:      []byte(text),
	})
	if err != nil {
		jww.WARN.Printf("Failed to store draft for %s: %+v",
			chatID, err)
	}
}

func (c *Client) clearDraft(chatID string) {
	if err := c.drafts.Delete(chatID, draftVersion); err != nil &&
		c.drafts.Exists(err) {
		jww.WARN.Printf("Failed to clear draft for %s: %+v",
			chatID, err)
	}
}
