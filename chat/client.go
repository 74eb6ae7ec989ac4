////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package chat is the realtime conversation engine. It keeps the client's
// view of a conversation consistent across three asynchronous sources: the
// history fetch, the push channel, and locally originated optimistic sends.
// One Client exists per authenticated session; it owns the stores and is the
// only writer to them.
package chat

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/pairly/chat-client/catalog"
	"gitlab.com/pairly/chat-client/rooms"
	"gitlab.com/pairly/chat-client/storage/versioned"
	"gitlab.com/pairly/chat-client/store"
	"gitlab.com/pairly/chat-client/switchboard"
)

// receiveMessagePayload is the payload of a receive_message event.
type receiveMessagePayload struct {
	ChatID  string        `json:"chatId"`
	Message store.Message `json:"message"`
}

// chatIDPayload is the payload of messages_read events and mark_read emits.
type chatIDPayload struct {
	ChatID string `json:"chatId"`
}

// Client coordinates the stores, the push channel, and the REST API for one
// authenticated session.
type Client struct {
	rest   RestClient
	conn   Connection
	sw     *switchboard.Switchboard
	rooms  *rooms.Manager
	list   *store.ListStore
	events EventModel
	selfID string
	params Params

	drafts   *versioned.KV
	receipts *receiptCoordinator

	// detail is the store of the open conversation, nil when none is
	// open. openGen increments on every open/close so in-flight responses
	// for conversations the user has left can be detected and discarded.
	detail  *store.DetailStore
	openGen uint64
	mux     sync.Mutex

	listenerIDs []string
	healthCbID  uint64
}

// NewClient wires a chat client to the given REST client and push channel and
// starts listening. selfID is this user's ID (the session's subject). Call
// Stop on logout; the caller retains ownership of the connection.
func NewClient(rest RestClient, conn Connection, sw *switchboard.Switchboard,
	kv *versioned.KV, events EventModel, selfID string,
	params Params) *Client {

	c := &Client{
		rest:   rest,
		conn:   conn,
		sw:     sw,
		rooms:  rooms.NewManager(conn),
		list:   store.NewListStore(kv),
		events: events,
		selfID: selfID,
		params: params,
		drafts: kv.Prefix(draftPrefix),
	}
	c.receipts = newReceiptCoordinator(
		params.ReadReceiptSettleDelay, c.deliverReadReceipt)

	c.listenerIDs = []string{
		sw.RegisterListener(catalog.ReceiveMessage,
			switchboard.ListenerFunc(c.onReceiveMessage)),
		sw.RegisterListener(catalog.MessagesRead,
			switchboard.ListenerFunc(c.onMessagesRead)),
		sw.RegisterListener(catalog.UserBlocked,
			switchboard.ListenerFunc(c.onBlockedChanged)),
		sw.RegisterListener(catalog.UserUnblocked,
			switchboard.ListenerFunc(c.onBlockedChanged)),
	}
	c.healthCbID = conn.AddHealthCallback(func(healthy bool) {
		c.events.ConnectionChanged(healthy)
	})

	return c
}

// Stop deregisters everything the client registered, symmetric to NewClient.
func (c *Client) Stop() {
	c.receipts.stop()
	c.rooms.Stop()
	c.conn.RemoveHealthCallback(c.healthCbID)
	for _, id := range c.listenerIDs {
		c.sw.Unregister(id)
	}
}

// SelfID returns this user's ID.
func (c *Client) SelfID() string {
	return c.selfID
}

// List returns the conversation list store. Read-only for callers.
func (c *Client) List() *store.ListStore {
	return c.list
}

// Detail returns the detail store of the open conversation, or nil.
func (c *Client) Detail() *store.DetailStore {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.detail
}

// RefreshConversations re-fetches the conversation list and replaces it
// wholesale.
func (c *Client) RefreshConversations() error {
	chats, err := c.rest.ListChats()
	if err != nil {
		return errors.WithMessage(err,
			"failed to refresh conversation list")
	}

	c.list.Replace(chats)
	c.events.ConversationListUpdated()
	return nil
}

// OpenConversation fetches the conversation's history, installs it as the
// open detail store, joins its room, and schedules the read receipt. Opening
// a second conversation closes the first.
func (c *Client) OpenConversation(chatID string) (*store.DetailStore, error) {
	c.mux.Lock()
	if c.detail != nil {
		if c.detail.ChatID() == chatID {
			ds := c.detail
			c.mux.Unlock()
			return ds, nil
		}
		c.closeLocked()
	}
	c.openGen++
	gen := c.openGen
	c.mux.Unlock()

	fetched, fetchErr := c.rest.GetChat(chatID)

	c.mux.Lock()
	if c.openGen != gen {
		c.mux.Unlock()
		jww.INFO.Printf("Discarding history fetch for %s: user "+
			"navigated away", chatID)
		return nil, ErrStaleResponse
	}
	if fetchErr != nil {
		c.mux.Unlock()
		return nil, errors.WithMessagef(fetchErr,
			"failed to open conversation %s", chatID)
	}

	ds := store.NewDetailStore(chatID, c.selfID)
	ds.LoadHistory(fetched.Messages)
	ds.SetBlocked(fetched.Blocked)
	c.detail = ds
	c.mux.Unlock()

	c.rooms.Join(chatID)
	c.list.ClearUnread(chatID)
	c.events.ConversationListUpdated()
	c.receipts.schedule(chatID)

	return ds, nil
}

// CloseConversation leaves the room and drops the detail store. Safe to call
// with none open.
func (c *Client) CloseConversation() {
	c.mux.Lock()
	c.closeLocked()
	c.mux.Unlock()
}

// closeLocked must be called with c.mux held.
func (c *Client) closeLocked() {
	if c.detail == nil {
		return
	}
	chatID := c.detail.ChatID()
	c.detail = nil
	c.openGen++

	// Leaving the room stops stale push delivery from mutating a store no
	// longer displayed.
	c.rooms.Leave(chatID)
	c.receipts.cancel()
}

// openDetail returns the open detail store and the generation it belongs to.
func (c *Client) openDetail() (*store.DetailStore, uint64) {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.detail, c.openGen
}

// isOpen reports whether the given conversation is still the open one.
func (c *Client) isOpen(chatID string) bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.detail != nil && c.detail.ChatID() == chatID
}

// onReceiveMessage routes an inbound message either into the open detail
// store or, for any other conversation, into the list store's lightweight
// patch path.
func (c *Client) onReceiveMessage(item switchboard.Item) {
	var payload receiveMessagePayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		jww.WARN.Printf("Discarded malformed receive_message: %+v", err)
		return
	}

	c.mux.Lock()
	ds := c.detail
	c.mux.Unlock()

	if ds != nil && ds.ChatID() == payload.ChatID {
		if ds.ReconcileIncoming(payload.Message) {
			c.events.MessageReceived(payload.ChatID, payload.Message)
		}
		// The conversation is on screen, so the new message is seen;
		// the settle delay coalesces bursts into one mark-read call.
		c.receipts.schedule(payload.ChatID)
		return
	}

	if !c.list.ApplyLightweightPatch(payload.ChatID,
		payload.Message.Text, payload.Message.CreatedAt) {
		// Unknown conversation, likely a fresh match. Refresh off the
		// read loop so event dispatch is not stalled by the fetch.
		go func() {
			if err := c.RefreshConversations(); err != nil {
				jww.WARN.Printf("%+v", err)
			}
		}()
		return
	}
	c.events.ConversationListUpdated()
}

// onMessagesRead applies the peer's read receipt to the open conversation.
func (c *Client) onMessagesRead(item switchboard.Item) {
	var payload chatIDPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		jww.WARN.Printf("Discarded malformed messages_read: %+v", err)
		return
	}

	c.mux.Lock()
	ds := c.detail
	c.mux.Unlock()

	if ds == nil || ds.ChatID() != payload.ChatID {
		return
	}

	ds.ReconcileReadReceipt()
	c.events.MessagesRead(payload.ChatID)
}

// onBlockedChanged reacts to the peer blocking or unblocking this user.
// The events carry no payload; they apply to the open conversation's room.
func (c *Client) onBlockedChanged(item switchboard.Item) {
	blocked := item.Name == catalog.UserBlocked

	c.mux.Lock()
	ds := c.detail
	c.mux.Unlock()

	if ds == nil {
		return
	}

	ds.SetBlocked(blocked)
	c.events.BlockedChanged(ds.ChatID(), blocked)

	go func() {
		if err := c.RefreshConversations(); err != nil {
			jww.WARN.Printf("%+v", err)
		}
	}()
}

// refreshOpenConversation re-fetches the open conversation in place, keeping
// the stale-response guard. Used after moderation actions.
func (c *Client) refreshOpenConversation() error {
	ds, gen := c.openDetail()
	if ds == nil {
		return nil
	}
	chatID := ds.ChatID()

	fetched, err := c.rest.GetChat(chatID)

	c.mux.Lock()
	stale := c.openGen != gen
	c.mux.Unlock()
	if stale {
		return ErrStaleResponse
	}
	if err != nil {
		return errors.WithMessagef(err,
			"failed to refresh conversation %s", chatID)
	}

	ds.LoadHistory(fetched.Messages)
	ds.SetBlocked(fetched.Blocked)
	return nil
}
