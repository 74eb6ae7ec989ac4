////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Block blocks the conversation's peer. On success further sends are
// forbidden and both stores are refreshed so the blocked banner and list
// flag appear.
func (c *Client) Block(chatID string) error {
	if err := c.rest.Block(chatID); err != nil {
		return errors.WithMessagef(err,
			"failed to block peer in conversation %s", chatID)
	}

	// Forbid sends immediately; the refresh below confirms from server
	// truth.
	if ds, _ := c.openDetail(); ds != nil && ds.ChatID() == chatID {
		ds.SetBlocked(true)
		c.events.BlockedChanged(chatID, true)
	}

	c.refreshAfterModeration(chatID)
	return nil
}

// Unblock lifts this user's block on the conversation's peer.
func (c *Client) Unblock(chatID string) error {
	if err := c.rest.Unblock(chatID); err != nil {
		return errors.WithMessagef(err,
			"failed to unblock peer in conversation %s", chatID)
	}

	if ds, _ := c.openDetail(); ds != nil && ds.ChatID() == chatID {
		ds.SetBlocked(false)
		c.events.BlockedChanged(chatID, false)
	}

	c.refreshAfterModeration(chatID)
	return nil
}

// Delete removes the conversation server-side, closes the detail view, and
// refreshes the list.
func (c *Client) Delete(chatID string) error {
	if err := c.rest.Delete(chatID); err != nil {
		return errors.WithMessagef(err,
			"failed to delete conversation %s", chatID)
	}

	if c.isOpen(chatID) {
		c.CloseConversation()
		c.events.ConversationClosed(chatID)
	}

	if err := c.RefreshConversations(); err != nil {
		jww.WARN.Printf("%+v", err)
	}
	return nil
}

// Report files a report against the peer and then blocks them. Reporting
// without blocking is not a supported end state, so a failed report aborts
// before the block.
func (c *Client) Report(chatID, reason string) error {
	if err := c.rest.Report(chatID, reason); err != nil {
		return errors.WithMessagef(err,
			"failed to report peer in conversation %s", chatID)
	}

	return c.Block(chatID)
}

// refreshAfterModeration refreshes both stores after a block-state change.
// Failures are logged, not returned: the moderation call itself succeeded.
func (c *Client) refreshAfterModeration(chatID string) {
	if c.isOpen(chatID) {
		if err := c.refreshOpenConversation(); err != nil &&
			!errors.Is(err, ErrStaleResponse) {
			jww.WARN.Printf("%+v", err)
		}
	}
	if err := c.RefreshConversations(); err != nil {
		jww.WARN.Printf("%+v", err)
	}
}
