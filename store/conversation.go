////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package store

import "time"

// Profile is the summary of the other participant shown in the conversation
// list.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Conversation is the list-level summary of a messaging thread between this
// user and one peer.
type Conversation struct {
	ID           string    `json:"id"`
	Partner      Profile   `json:"partner"`
	LastMessage  string    `json:"lastMessage"`
	LastActivity time.Time `json:"lastActivity"`
	UnreadCount  int       `json:"unreadCount"`

	// Blocked is set when this user has blocked the partner.
	Blocked bool `json:"blocked"`
}
