////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package catalog enumerates the wire-level names shared with the messaging
// backend: channel event names, outbound emits, and the room naming
// convention. Both sides derive these independently; there is no negotiation
// step.
package catalog

// Inbound channel events.
const (
	// ReceiveMessage carries a single new message for a conversation.
	ReceiveMessage = "receive_message"

	// MessagesRead announces that the peer has seen every message sent to
	// them so far in the named conversation.
	MessagesRead = "messages_read"

	// UserBlocked and UserUnblocked announce a change of the peer's block
	// state toward this user. Their payloads are empty; they apply to the
	// conversation whose room they are delivered on.
	UserBlocked   = "user_blocked"
	UserUnblocked = "user_unblocked"
)

// Outbound channel emits.
const (
	JoinChat  = "join_chat"
	LeaveChat = "leave_chat"
	MarkRead  = "mark_read"

	// Ping is the keepalive frame for idle connections. It carries no
	// payload and the backend never answers it.
	Ping = "ping"
)

// roomPrefix is prepended to a conversation ID to form its room name.
const roomPrefix = "chat:"

// RoomID returns the channel room name for the given conversation.
func RoomID(chatID string) string {
	return roomPrefix + chatID
}
