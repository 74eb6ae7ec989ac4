////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package channel owns the single persistent push connection to the
// messaging backend. It authenticates on dial, dispatches inbound events to
// the switchboard in arrival order, reconnects with bounded backoff, and
// exposes the connected/disconnected signal through health callbacks.
//
// One Connection exists per authenticated session. It is created on login
// and torn down on logout, never duplicated.
package channel

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-collections/collections/queue"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/thedevsaddam/gojsonq"

	"gitlab.com/pairly/chat-client/catalog"
	"gitlab.com/pairly/chat-client/stoppable"
	"gitlab.com/pairly/chat-client/switchboard"
)

const closeTimeout = 2 * time.Second

// envelope is the wire frame for every event in either direction.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Connection is the push-channel connection. Outbound sends are fire and
// forget: a send while the transport is down is dropped (or queued, when the
// opt-in outbound queue is enabled) and never reported to the caller. The
// server's record of the conversation is not affected either way; anything
// missed live is recovered by the next history fetch.
type Connection struct {
	dialer    Dialer
	url       string
	authToken string
	params    Params
	sw        *switchboard.Switchboard

	transport Transport
	healthy   bool
	closed    bool
	outbox    *queue.Queue
	mux       sync.Mutex

	// writeMux serializes frame writes. The websocket transport supports
	// at most one concurrent writer; the read-receipt timer, the health
	// callbacks, and user goroutines all reach WriteJSON.
	writeMux sync.Mutex

	healthCbs map[uint64]func(healthy bool)
	nextCbID  uint64
	cbMux     sync.Mutex

	stop     *stoppable.Multi
	readStop *stoppable.Single
	pingStop *stoppable.Single
}

// Connect dials the backend and starts the read loop. The returned Connection
// is healthy; events begin flowing to the switchboard immediately.
func Connect(dialer Dialer, url, authToken string,
	sw *switchboard.Switchboard, params Params) (*Connection, error) {
	transport, err := dialer.Dial(url, authToken)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		dialer:    dialer,
		url:       url,
		authToken: authToken,
		params:    params,
		sw:        sw,
		transport: transport,
		healthy:   true,
		healthCbs: make(map[uint64]func(bool)),
		stop:      stoppable.NewMulti("channel"),
		readStop:  stoppable.NewSingle("channelReadLoop"),
	}
	if params.OutboundQueueLen > 0 {
		c.outbox = queue.New()
	}

	c.stop.Add(c.readStop)
	go c.readLoop()

	if params.KeepAlivePeriod > 0 {
		c.pingStop = stoppable.NewSingle("channelKeepAlive")
		c.stop.Add(c.pingStop)
		go c.pingLoop()
	}

	return c, nil
}

// Switchboard returns the switchboard inbound events are spoken on.
func (c *Connection) Switchboard() *switchboard.Switchboard {
	return c.sw
}

// IsHealthy reports whether the transport is currently connected.
func (c *Connection) IsHealthy() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.healthy
}

// AddHealthCallback registers a callback invoked on every transition between
// connected and disconnected. Returns an ID for RemoveHealthCallback;
// registration and removal must be paired.
func (c *Connection) AddHealthCallback(cb func(healthy bool)) uint64 {
	c.cbMux.Lock()
	defer c.cbMux.Unlock()

	c.nextCbID++
	c.healthCbs[c.nextCbID] = cb
	return c.nextCbID
}

// RemoveHealthCallback removes the callback with the given ID.
func (c *Connection) RemoveHealthCallback(id uint64) {
	c.cbMux.Lock()
	defer c.cbMux.Unlock()
	delete(c.healthCbs, id)
}

// Send emits an event with the given payload. Fire and forget: there is no
// delivery guarantee, and when the transport is down the emit is dropped
// unless the outbound queue is enabled.
func (c *Connection) Send(event string, payload interface{}) {
	env := envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			jww.ERROR.Printf("Dropped %q emit: failed to marshal "+
				"payload: %+v", event, err)
			return
		}
		env.Payload = data
	}

	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		jww.WARN.Printf("Dropped %q emit: connection closed", event)
		return
	}
	if !c.healthy {
		if c.outbox != nil &&
			c.outbox.Len() < c.params.OutboundQueueLen {
			c.outbox.Enqueue(env)
			c.mux.Unlock()
			jww.DEBUG.Printf(
				"Queued %q emit while disconnected", event)
		} else {
			c.mux.Unlock()
			jww.WARN.Printf(
				"Dropped %q emit: channel disconnected", event)
		}
		return
	}
	transport := c.transport
	c.mux.Unlock()

	if err := c.write(transport, env); err != nil {
		jww.WARN.Printf("Dropped %q emit: %+v", event, err)
	}
}

// write performs one frame write under the write mutex.
func (c *Connection) write(transport Transport, env envelope) error {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()
	return transport.WriteJSON(env)
}

// Close tears down the connection and stops the read loop. The Connection
// cannot be reused afterward; a new session dials a new one.
func (c *Connection) Close() error {
	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		return nil
	}
	c.closed = true
	transport := c.transport
	c.mux.Unlock()

	if err := transport.Close(); err != nil {
		jww.WARN.Printf("Error closing channel transport: %+v", err)
	}
	if err := c.stop.Close(); err != nil {
		return err
	}
	return stoppable.WaitForStopped(c.stop, closeTimeout)
}

// pingLoop writes a keepalive frame every KeepAlivePeriod while the transport
// is healthy, so idle connections are not reaped by intermediaries.
func (c *Connection) pingLoop() {
	tick := time.NewTicker(c.params.KeepAlivePeriod)
	defer tick.Stop()

	for {
		select {
		case <-c.pingStop.Quit():
			c.pingStop.ToStopped()
			return
		case <-tick.C:
		}

		c.mux.Lock()
		healthy := c.healthy && !c.closed
		transport := c.transport
		c.mux.Unlock()
		if !healthy {
			continue
		}

		if err := c.write(transport, envelope{
			Event: catalog.Ping}); err != nil {
			jww.DEBUG.Printf("Keepalive write failed: %+v", err)
		}
	}
}

// readLoop receives frames until the connection is closed, reconnecting on
// transport failure. It is the only goroutine that dispatches to the
// switchboard, which preserves per-connection FIFO delivery.
func (c *Connection) readLoop() {
	quitReceived := false
	for {
		c.mux.Lock()
		transport := c.transport
		c.mux.Unlock()

		data, err := transport.ReadMessage()
		if err != nil {
			if c.isClosed() {
				break
			}

			jww.WARN.Printf("Channel read failed, "+
				"reconnecting: %+v", err)
			c.setHealthy(false)

			reconnected, quit := c.reconnect()
			if quit {
				quitReceived = true
				break
			}
			if !reconnected {
				if !c.isClosed() {
					jww.ERROR.Printf("Channel reconnect " +
						"gave up after bounded " +
						"retries; staying disconnected")
				}
				break
			}
			continue
		}

		c.dispatch(data)
	}

	if !quitReceived {
		<-c.readStop.Quit()
	}
	c.readStop.ToStopped()
}

// dispatch decodes one frame and speaks it on the switchboard.
func (c *Connection) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		jww.WARN.Printf("Discarded unparseable channel frame: %+v", err)
		return
	}
	if env.Event == "" {
		jww.WARN.Print("Discarded channel frame with no event name")
		return
	}

	item := switchboard.Item{Name: env.Event, Payload: env.Payload}

	// Peek the conversation ID out of the payload, when it names one, so
	// listeners can route without decoding event-specific shapes.
	if len(env.Payload) > 0 {
		v := gojsonq.New().FromString(string(env.Payload)).
			Find("chatId")
		if s, ok := v.(string); ok {
			item.ChatID = s
		}
	}

	c.sw.Speak(item)
}

// reconnect re-dials with exponential backoff and bounded retries. The quit
// return is true when the quit signal fired during a backoff wait, in which
// case the signal was consumed; reconnected is true once a fresh transport is
// installed.
func (c *Connection) reconnect() (reconnected, quit bool) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.params.InitialBackoff
	expo.MaxInterval = c.params.MaxBackoff
	expo.MaxElapsedTime = 0

	for attempt := uint64(0); ; attempt++ {
		if c.isClosed() {
			return false, false
		}

		transport, err := c.dialer.Dial(c.url, c.authToken)
		if err == nil {
			c.mux.Lock()
			c.transport = transport
			c.mux.Unlock()

			// Room re-joins ride on the health callbacks and must
			// be emitted before any event from the new transport
			// is read, so flushing and notification happen before
			// the loop resumes.
			c.setHealthy(true)
			c.flushOutbox()
			return true, false
		}
		jww.DEBUG.Printf("Reconnect attempt failed: %+v", err)

		if attempt >= c.params.MaxReconnectRetries {
			return false, false
		}

		// Waiting must not outlive Close; the quit signal cuts the
		// backoff short so shutdown is prompt even mid-wait.
		select {
		case <-c.readStop.Quit():
			return false, true
		case <-time.After(expo.NextBackOff()):
		}
	}
}

func (c *Connection) isClosed() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.closed
}

// setHealthy records the transition and notifies health callbacks outside
// the lock; callbacks are free to call back into Send.
func (c *Connection) setHealthy(healthy bool) {
	c.mux.Lock()
	if c.healthy == healthy {
		c.mux.Unlock()
		return
	}
	c.healthy = healthy
	c.mux.Unlock()

	c.cbMux.Lock()
	cbs := make([]func(bool), 0, len(c.healthCbs))
	for _, cb := range c.healthCbs {
		cbs = append(cbs, cb)
	}
	c.cbMux.Unlock()

	for _, cb := range cbs {
		cb(healthy)
	}
}

// flushOutbox writes any emits queued while disconnected.
func (c *Connection) flushOutbox() {
	if c.outbox == nil {
		return
	}

	c.mux.Lock()
	pending := make([]envelope, 0, c.outbox.Len())
	for c.outbox.Len() > 0 {
		pending = append(pending, c.outbox.Dequeue().(envelope))
	}
	transport := c.transport
	c.mux.Unlock()

	for _, env := range pending {
		if err := c.write(transport, env); err != nil {
			jww.WARN.Printf("Dropped queued %q emit: %+v",
				env.Event, err)
		}
	}
}
