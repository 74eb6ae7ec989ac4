////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package chat

import "time"

// Params configures the chat client.
type Params struct {
	// ReadReceiptSettleDelay is the debounce before the mark-read call
	// after a conversation opens or an inbound message arrives while it
	// is open. It coalesces a burst of arrivals into one call.
	ReadReceiptSettleDelay time.Duration
}

// GetDefaultParams returns the production defaults.
func GetDefaultParams() Params {
	return Params{
		ReadReceiptSettleDelay: time.Second,
	}
}
