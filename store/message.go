////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package store

import "time"

// Status is the confirmation state of a message held in the detail store.
type Status uint8

const (
	// Pending marks a locally authored message that has been rendered but
	// not yet confirmed by the backend. Pending messages carry a TempID
	// and no durable ID.
	Pending Status = iota

	// Confirmed marks a message with a durable server-assigned ID. History
	// and push messages are born Confirmed; pending messages transition to
	// it when the backend acknowledges the send.
	Confirmed
)

// String satisfies the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	default:
		return "invalid status"
	}
}

// Message is a single entry in a conversation. Exactly one of ID and TempID
// identifies it: TempID only while the message is Pending, ID once it is
// Confirmed. At most one representation of a logical message exists in a
// detail store at any time.
type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`

	TempID string `json:"-"`
	Status Status `json:"-"`
}
