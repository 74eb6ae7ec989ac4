////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package channel

import (
	"net/http"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

// Transport is a single established push-channel connection. Implemented by
// the websocket transport in production and by fakes in tests.
type Transport interface {
	// ReadMessage blocks until the next inbound frame arrives.
	ReadMessage() ([]byte, error)

	// WriteJSON writes one outbound frame.
	WriteJSON(v interface{}) error

	// Close tears the connection down, unblocking any pending read.
	Close() error
}

// Dialer establishes an authenticated Transport to the messaging backend.
type Dialer interface {
	Dial(url, authToken string) (Transport, error)
}

// WebsocketDialer dials the backend over websocket, authenticating with the
// session's bearer token.
type WebsocketDialer struct{}

// Dial satisfies the Dialer interface.
func (WebsocketDialer) Dial(url, authToken string) (Transport, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+authToken)

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial channel %s", url)
	}

	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteJSON(v interface{}) error {
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
