////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package channel

import "time"

// Params configures the push-channel connection.
type Params struct {
	// MaxReconnectRetries bounds the reconnect attempts after a transport
	// failure. Once exhausted the connection stays down and only surfaces
	// the disconnected indicator; REST functionality is unaffected.
	MaxReconnectRetries uint64

	// InitialBackoff and MaxBackoff shape the exponential backoff between
	// reconnect attempts.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// KeepAlivePeriod is the interval between keepalive frames on an idle
	// healthy connection. Zero disables keepalives.
	KeepAlivePeriod time.Duration

	// OutboundQueueLen, when positive, buffers up to that many outbound
	// emits while the transport is down and flushes them on reconnect.
	// Zero preserves the default behavior: emits while disconnected are
	// silently dropped. Buffering changes observable read-receipt timing,
	// so it is opt-in.
	OutboundQueueLen int
}

// GetDefaultParams returns the production defaults.
func GetDefaultParams() Params {
	return Params{
		MaxReconnectRetries: 8,
		InitialBackoff:      time.Second,
		MaxBackoff:          30 * time.Second,
		KeepAlivePeriod:     30 * time.Second,
		OutboundQueueLen:    0,
	}
}
