////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package channel

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"gitlab.com/pairly/chat-client/switchboard"
)

type readResult struct {
	data []byte
	err  error
}

// fakeTransport scripts reads through a channel and records writes. It also
// detects overlapping WriteJSON calls, which the real websocket connection
// forbids.
type fakeTransport struct {
	reads     chan readResult
	closeCh   chan struct{}
	closeOnce sync.Once

	writersIn  int32
	overlapped int32

	mux    sync.Mutex
	writes [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		reads:   make(chan readResult, 16),
		closeCh: make(chan struct{}),
	}
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case r := <-t.reads:
		return r.data, r.err
	case <-t.closeCh:
		return nil, errors.New("transport closed")
	}
}

func (t *fakeTransport) WriteJSON(v interface{}) error {
	if atomic.AddInt32(&t.writersIn, 1) > 1 {
		atomic.StoreInt32(&t.overlapped, 1)
	}
	time.Sleep(100 * time.Microsecond)
	defer atomic.AddInt32(&t.writersIn, -1)

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.mux.Lock()
	defer t.mux.Unlock()
	t.writes = append(t.writes, data)
	return nil
}

func (t *fakeTransport) sawOverlap() bool {
	return atomic.LoadInt32(&t.overlapped) == 1
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closeCh) })
	return nil
}

func (t *fakeTransport) pushEvent(event, payload string) {
	frame := `{"event":"` + event + `"`
	if payload != "" {
		frame += `,"payload":` + payload
	}
	frame += `}`
	t.reads <- readResult{data: []byte(frame)}
}

func (t *fakeTransport) failRead() {
	t.reads <- readResult{err: errors.New("broken pipe")}
}

func (t *fakeTransport) writtenEvents() []string {
	t.mux.Lock()
	defer t.mux.Unlock()

	var names []string
	for _, data := range t.writes {
		var env struct {
			Event string `json:"event"`
		}
		_ = json.Unmarshal(data, &env)
		names = append(names, env.Event)
	}
	return names
}

// fakeDialer fails the first failDials dials, then hands out fresh
// transports.
type fakeDialer struct {
	mux        sync.Mutex
	failDials  int
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(_, _ string) (Transport, error) {
	d.mux.Lock()
	defer d.mux.Unlock()

	if d.failDials > 0 {
		d.failDials--
		return nil, errors.New("dial refused")
	}

	t := newFakeTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mux.Lock()
	defer d.mux.Unlock()
	return d.transports[i]
}

func fastParams() Params {
	p := GetDefaultParams()
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 5 * time.Millisecond
	return p
}

// Tests that inbound frames are dispatched to listeners in arrival order
// with the conversation ID peeked out of the payload.
func TestConnection_Dispatch(t *testing.T) {
	dialer := &fakeDialer{}
	sw := switchboard.New()
	heard := make(chan switchboard.Item, 16)
	sw.RegisterListener(switchboard.AnyEvent,
		switchboard.ListenerFunc(func(item switchboard.Item) {
			heard <- item
		}))

	c, err := Connect(dialer, "ws://backend/ws", "token", sw, fastParams())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	require.True(t, c.IsHealthy())

	tr := dialer.transport(0)
	tr.pushEvent("receive_message", `{"chatId":"c1","message":{"id":"m1"}}`)
	tr.pushEvent("messages_read", `{"chatId":"c1"}`)
	tr.pushEvent("user_blocked", "")

	var items []switchboard.Item
	for i := 0; i < 3; i++ {
		select {
		case item := <-heard:
			items = append(items, item)
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for event %d", i)
		}
	}

	require.Equal(t, "receive_message", items[0].Name)
	require.Equal(t, "c1", items[0].ChatID)
	require.Equal(t, "messages_read", items[1].Name)
	require.Equal(t, "user_blocked", items[2].Name)
	require.Empty(t, items[2].ChatID)
}

// Tests that Send writes while healthy and silently drops while the
// transport is down with no queue configured.
func TestConnection_Send_DropWhenDown(t *testing.T) {
	dialer := &fakeDialer{}
	c, err := Connect(dialer, "ws://backend/ws", "token",
		switchboard.New(), fastParams())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	c.Send("mark_read", map[string]string{"chatId": "c1"})
	tr := dialer.transport(0)
	require.Eventually(t, func() bool {
		return len(tr.writtenEvents()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Kill the transport and make every reconnect attempt fail.
	down := make(chan bool, 8)
	id := c.AddHealthCallback(func(healthy bool) { down <- healthy })
	defer c.RemoveHealthCallback(id)

	dialer.mux.Lock()
	dialer.failDials = 1000
	dialer.mux.Unlock()
	tr.failRead()

	require.False(t, <-down)
	c.Send("mark_read", map[string]string{"chatId": "c1"})

	// Nothing further reaches the dead transport.
	require.Equal(t, []string{"mark_read"}, tr.writtenEvents())
}

// Tests that concurrent Send callers never reach the transport's WriteJSON
// at the same time. The websocket library supports a single writer; an
// overlap panics in production.
func TestConnection_Send_Serialized(t *testing.T) {
	dialer := &fakeDialer{}
	c, err := Connect(dialer, "ws://backend/ws", "token",
		switchboard.New(), fastParams())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	const goroutines, sends = 8, 20
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < sends; i++ {
				c.Send("mark_read",
					map[string]string{"chatId": "c1"})
			}
		}()
	}
	wg.Wait()

	tr := dialer.transport(0)
	require.False(t, tr.sawOverlap(),
		"transport saw overlapping writes")
	require.Len(t, tr.writtenEvents(), goroutines*sends)
}

// Tests that an idle healthy connection emits keepalive frames and still
// closes cleanly.
func TestConnection_Keepalive(t *testing.T) {
	dialer := &fakeDialer{}
	params := fastParams()
	params.KeepAlivePeriod = 5 * time.Millisecond

	c, err := Connect(dialer, "ws://backend/ws", "token",
		switchboard.New(), params)
	require.NoError(t, err)

	tr := dialer.transport(0)
	require.Eventually(t, func() bool {
		for _, name := range tr.writtenEvents() {
			if name == "ping" {
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, c.Close())
}

// Tests reconnection: health flips to false then back to true once a dial
// succeeds, and events from the new transport keep flowing.
func TestConnection_Reconnect(t *testing.T) {
	dialer := &fakeDialer{}
	sw := switchboard.New()
	heard := make(chan switchboard.Item, 16)
	sw.RegisterListener(switchboard.AnyEvent,
		switchboard.ListenerFunc(func(item switchboard.Item) {
			heard <- item
		}))

	c, err := Connect(dialer, "ws://backend/ws", "token", sw, fastParams())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	health := make(chan bool, 8)
	id := c.AddHealthCallback(func(healthy bool) { health <- healthy })
	defer c.RemoveHealthCallback(id)

	dialer.mux.Lock()
	dialer.failDials = 2
	dialer.mux.Unlock()
	dialer.transport(0).failRead()

	require.False(t, <-health)
	require.True(t, <-health)
	require.True(t, c.IsHealthy())

	dialer.transport(1).pushEvent("receive_message", `{"chatId":"c2"}`)
	select {
	case item := <-heard:
		require.Equal(t, "c2", item.ChatID)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event after reconnect")
	}
}

// Tests that the opt-in outbound queue holds emits while disconnected and
// flushes them, in order, on reconnect.
func TestConnection_OutboundQueue(t *testing.T) {
	dialer := &fakeDialer{}
	params := fastParams()
	params.OutboundQueueLen = 4

	c, err := Connect(dialer, "ws://backend/ws", "token",
		switchboard.New(), params)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	health := make(chan bool, 8)
	id := c.AddHealthCallback(func(healthy bool) { health <- healthy })
	defer c.RemoveHealthCallback(id)

	dialer.mux.Lock()
	dialer.failDials = 1
	dialer.mux.Unlock()
	dialer.transport(0).failRead()
	require.False(t, <-health)

	c.Send("join_chat", "chat:c1")
	c.Send("mark_read", map[string]string{"chatId": "c1"})

	require.True(t, <-health)
	require.Eventually(t, func() bool {
		return len(dialer.transport(1).writtenEvents()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"join_chat", "mark_read"},
		dialer.transport(1).writtenEvents())
}

// Tests that the reconnect gives up after the bounded retries and Close still
// works afterward.
func TestConnection_ReconnectGivesUp(t *testing.T) {
	dialer := &fakeDialer{}
	params := fastParams()
	params.MaxReconnectRetries = 2

	c, err := Connect(dialer, "ws://backend/ws", "token",
		switchboard.New(), params)
	require.NoError(t, err)

	health := make(chan bool, 8)
	c.AddHealthCallback(func(healthy bool) { health <- healthy })

	dialer.mux.Lock()
	dialer.failDials = 1000
	dialer.mux.Unlock()
	dialer.transport(0).failRead()

	require.False(t, <-health)
	require.Never(t, c.IsHealthy, 100*time.Millisecond,
		20*time.Millisecond)
	require.NoError(t, c.Close())
}

// Tests that Close returns promptly while the reconnect loop is deep in a
// backoff wait instead of riding out the remaining sleep.
func TestConnection_CloseDuringBackoff(t *testing.T) {
	dialer := &fakeDialer{}
	params := fastParams()
	params.InitialBackoff = 30 * time.Second
	params.MaxBackoff = 30 * time.Second

	c, err := Connect(dialer, "ws://backend/ws", "token",
		switchboard.New(), params)
	require.NoError(t, err)

	health := make(chan bool, 8)
	c.AddHealthCallback(func(healthy bool) { health <- healthy })

	dialer.mux.Lock()
	dialer.failDials = 1000
	dialer.mux.Unlock()
	dialer.transport(0).failRead()
	require.False(t, <-health)

	// The loop is now waiting out a 30s backoff. Close must not.
	start := time.Now()
	require.NoError(t, c.Close())
	require.Less(t, time.Since(start), closeTimeout)
}
