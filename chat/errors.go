////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package chat

import "github.com/pkg/errors"

// Precondition failures. These are rejected before any network call and are
// meant for inline validation, not alerts.
var (
	// ErrBlocked is returned by Send when messaging is forbidden between
	// the two participants, in either direction.
	ErrBlocked = errors.New("cannot send: conversation is blocked")

	// ErrEmptyMessage is returned by Send when the text is empty after
	// trimming.
	ErrEmptyMessage = errors.New("cannot send an empty message")

	// ErrNoOpenConversation is returned by operations that require an
	// open conversation when there is none.
	ErrNoOpenConversation = errors.New("no conversation is open")

	// ErrStaleResponse marks a response that arrived after the user
	// navigated elsewhere. The result was discarded, never applied.
	ErrStaleResponse = errors.New("response discarded: conversation no " +
		"longer open")
)
