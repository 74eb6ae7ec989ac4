////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"fmt"

	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/pairly/chat-client/store"
)

// printEvents is the CLI's event model. It prints conversation activity to
// stdout and logs the rest.
type printEvents struct{}

func (printEvents) MessageReceived(chatID string, msg store.Message) {
	fmt.Printf("<%s> %s: %s\n", chatID, msg.SenderID, msg.Text)
}

func (printEvents) MessagesRead(chatID string) {
	fmt.Printf("<%s> your messages were seen\n", chatID)
}

func (printEvents) ConversationListUpdated() {
	jww.DEBUG.Printf("Conversation list updated")
}

func (printEvents) SendFailed(chatID, originalText string, err error) {
	fmt.Printf("<%s> send failed, message restored to compose: %q\n",
		chatID, originalText)
	jww.ERROR.Printf("Send to %s failed: %+v", chatID, err)
}

func (printEvents) BlockedChanged(chatID string, blocked bool) {
	if blocked {
		fmt.Printf("<%s> conversation is now blocked\n", chatID)
	} else {
		fmt.Printf("<%s> conversation is no longer blocked\n", chatID)
	}
}

func (printEvents) ConnectionChanged(connected bool) {
	if connected {
		jww.INFO.Printf("Push channel connected")
	} else {
		jww.WARN.Printf("Push channel disconnected, reconnecting")
	}
}

func (printEvents) ConversationClosed(chatID string) {
	fmt.Printf("<%s> conversation closed\n", chatID)
}
