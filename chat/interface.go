////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"gitlab.com/pairly/chat-client/api"
	"gitlab.com/pairly/chat-client/store"
)

// RestClient is the slice of the REST API the chat client consumes. *api.Client
// satisfies it; tests substitute mocks.
type RestClient interface {
	ListChats() ([]store.Conversation, error)
	GetChat(chatID string) (*api.ChatDetail, error)
	SendMessage(chatID, text string) (*store.Message, error)
	MarkRead(chatID string) error
	Block(chatID string) error
	Unblock(chatID string) error
	Delete(chatID string) error
	Report(chatID, reason string) error
}

// Connection is the slice of the push channel the chat client consumes.
// *channel.Connection satisfies it.
type Connection interface {
	Send(event string, payload interface{})
	AddHealthCallback(cb func(healthy bool)) uint64
	RemoveHealthCallback(id uint64)
	IsHealthy() bool
}

// EventModel receives the client's notifications toward the UI layer. The UI
// reads the stores for state; these callbacks only say when to look and carry
// what the stores do not hold. Implementations must not call back into the
// client from within a callback.
type EventModel interface {
	// MessageReceived fires after an inbound message was reconciled into
	// the open conversation.
	MessageReceived(chatID string, msg store.Message)

	// MessagesRead fires after the peer's read receipt flipped the ticks
	// on this user's sent messages.
	MessagesRead(chatID string)

	// ConversationListUpdated fires whenever the list store changed, by
	// refresh or by lightweight patch.
	ConversationListUpdated()

	// SendFailed fires after a failed send was rolled back. originalText
	// is the compose text to restore.
	SendFailed(chatID, originalText string, err error)

	// BlockedChanged fires when the open conversation's block state
	// changes, from either side.
	BlockedChanged(chatID string, blocked bool)

	// ConnectionChanged mirrors the push channel's health indicator.
	ConnectionChanged(connected bool)

	// ConversationClosed fires when the open conversation was closed for
	// a reason other than the user navigating away, i.e. deletion.
	ConversationClosed(chatID string)
}
