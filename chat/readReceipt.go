////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"sync"
	"time"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/pairly/chat-client/catalog"
)

// receiptCoordinator debounces mark-read calls. Every schedule resets the
// settle timer, so a burst of inbound messages produces one call once the
// burst settles.
type receiptCoordinator struct {
	delay  time.Duration
	fire   func(chatID string)
	timer  *time.Timer
	chatID string
	mux    sync.Mutex
}

func newReceiptCoordinator(
	delay time.Duration, fire func(chatID string)) *receiptCoordinator {
	return &receiptCoordinator{delay: delay, fire: fire}
}

// schedule arms (or re-arms) the settle timer for the conversation.
// Scheduling a different conversation cancels the previous timer; receipts
// only ever concern the open conversation.
func (rc *receiptCoordinator) schedule(chatID string) {
	rc.mux.Lock()
	defer rc.mux.Unlock()

	if rc.timer != nil {
		rc.timer.Stop()
	}
	rc.chatID = chatID
	rc.timer = time.AfterFunc(rc.delay, func() { rc.fire(chatID) })
}

// cancel stops any armed timer.
func (rc *receiptCoordinator) cancel() {
	rc.mux.Lock()
	defer rc.mux.Unlock()

	if rc.timer != nil {
		rc.timer.Stop()
		rc.timer = nil
	}
	rc.chatID = ""
}

func (rc *receiptCoordinator) stop() {
	rc.cancel()
}

// deliverReadReceipt is the receipt coordinator's fire function. It runs on
// the timer goroutine after the settle delay, re-checks that the conversation
// is still open, marks it read on the backend, announces the receipt on the
// channel so the peer's client can flip its ticks, and refreshes the list so
// the local unread badge clears.
func (c *Client) deliverReadReceipt(chatID string) {
	if !c.isOpen(chatID) {
		jww.DEBUG.Printf("Skipping mark-read for %s: conversation no "+
			"longer open", chatID)
		return
	}

	if err := c.rest.MarkRead(chatID); err != nil {
		jww.WARN.Printf("Failed to mark %s read: %+v", chatID, err)
		return
	}

	c.conn.Send(catalog.MarkRead, chatIDPayload{ChatID: chatID})

	if err := c.RefreshConversations(); err != nil {
		jww.WARN.Printf("%+v", err)
	}
}
