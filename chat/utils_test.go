////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/elixxir/ekv"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/pairly/chat-client/api"
	"gitlab.com/pairly/chat-client/storage/versioned"
	"gitlab.com/pairly/chat-client/store"
	"gitlab.com/pairly/chat-client/switchboard"
)

const (
	selfID    = "u-self"
	partnerID = "u-partner"
)

// mockRest is an in-memory RestClient that records every call.
type mockRest struct {
	mux      sync.Mutex
	chats    []store.Conversation
	details  map[string]*api.ChatDetail
	sendResp *store.Message
	sendGate chan struct{}
	errs     map[string]error
	gates    map[string]chan struct{}
	entered  chan string
	calls    []string
}

func newMockRest() *mockRest {
	return &mockRest{
		details: make(map[string]*api.ChatDetail),
		errs:    make(map[string]error),
		gates:   make(map[string]chan struct{}),
		entered: make(chan string, 8),
	}
}

func (m *mockRest) record(call string) error {
	m.mux.Lock()
	m.calls = append(m.calls, call)
	err := m.errs[call]
	m.mux.Unlock()
	return err
}

func (m *mockRest) callCount(call string) int {
	m.mux.Lock()
	defer m.mux.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (m *mockRest) ListChats() ([]store.Conversation, error) {
	if err := m.record("ListChats"); err != nil {
		return nil, err
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	out := make([]store.Conversation, len(m.chats))
	copy(out, m.chats)
	return out, nil
}

func (m *mockRest) GetChat(chatID string) (*api.ChatDetail, error) {
	m.mux.Lock()
	gate := m.gates[chatID]
	m.mux.Unlock()
	if gate != nil {
		m.entered <- chatID
		<-gate
	}

	if err := m.record("GetChat"); err != nil {
		return nil, err
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	detail, exists := m.details[chatID]
	if !exists {
		return nil, errors.Errorf("no such conversation %s", chatID)
	}
	cp := *detail
	cp.Messages = append([]store.Message(nil), detail.Messages...)
	return &cp, nil
}

func (m *mockRest) SendMessage(_, text string) (*store.Message, error) {
	m.mux.Lock()
	gate := m.sendGate
	m.mux.Unlock()
	if gate != nil {
		m.entered <- "SendMessage"
		<-gate
	}

	if err := m.record("SendMessage"); err != nil {
		return nil, err
	}
	m.mux.Lock()
	defer m.mux.Unlock()
	if m.sendResp != nil {
		return m.sendResp, nil
	}
	return &store.Message{
		ID: "m-generated", SenderID: selfID, Text: text,
		CreatedAt: netTime.Now()}, nil
}

func (m *mockRest) MarkRead(string) error      { return m.record("MarkRead") }
func (m *mockRest) Block(string) error         { return m.record("Block") }
func (m *mockRest) Unblock(string) error       { return m.record("Unblock") }
func (m *mockRest) Delete(string) error        { return m.record("Delete") }
func (m *mockRest) Report(string, string) error { return m.record("Report") }

type emitRecord struct {
	event   string
	payload interface{}
}

// mockConn records emits and drives health callbacks.
type mockConn struct {
	mux     sync.Mutex
	emits   []emitRecord
	cbs     map[uint64]func(bool)
	next    uint64
	healthy bool
}

func newMockConn() *mockConn {
	return &mockConn{cbs: make(map[uint64]func(bool)), healthy: true}
}

func (m *mockConn) Send(event string, payload interface{}) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.emits = append(m.emits, emitRecord{event, payload})
}

func (m *mockConn) AddHealthCallback(cb func(bool)) uint64 {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.next++
	m.cbs[m.next] = cb
	return m.next
}

func (m *mockConn) RemoveHealthCallback(id uint64) {
	m.mux.Lock()
	defer m.mux.Unlock()
	delete(m.cbs, id)
}

func (m *mockConn) IsHealthy() bool {
	m.mux.Lock()
	defer m.mux.Unlock()
	return m.healthy
}

func (m *mockConn) setHealthy(healthy bool) {
	m.mux.Lock()
	m.healthy = healthy
	cbs := make([]func(bool), 0, len(m.cbs))
	for _, cb := range m.cbs {
		cbs = append(cbs, cb)
	}
	m.mux.Unlock()
	for _, cb := range cbs {
		cb(healthy)
	}
}

func (m *mockConn) emittedEvents() []string {
	m.mux.Lock()
	defer m.mux.Unlock()
	var names []string
	for _, e := range m.emits {
		names = append(names, e.event)
	}
	return names
}

// mockEvents records EventModel notifications.
type mockEvents struct {
	mux          sync.Mutex
	received     []string
	sendFailures []string
	blocked      []bool
	connection   []bool
	closed       []string
	listUpdates  int
	readBatches  int
}

func (m *mockEvents) MessageReceived(_ string, msg store.Message) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.received = append(m.received, msg.ID)
}

func (m *mockEvents) MessagesRead(string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.readBatches++
}

func (m *mockEvents) ConversationListUpdated() {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.listUpdates++
}

func (m *mockEvents) SendFailed(_, originalText string, _ error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.sendFailures = append(m.sendFailures, originalText)
}

func (m *mockEvents) BlockedChanged(_ string, blocked bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.blocked = append(m.blocked, blocked)
}

func (m *mockEvents) ConnectionChanged(connected bool) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.connection = append(m.connection, connected)
}

func (m *mockEvents) ConversationClosed(chatID string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.closed = append(m.closed, chatID)
}

// testEnv bundles a client with its mocks.
type testEnv struct {
	client *Client
	rest   *mockRest
	conn   *mockConn
	events *mockEvents
	sw     *switchboard.Switchboard
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	rest := newMockRest()
	rest.chats = []store.Conversation{
		{ID: "c1", Partner: store.Profile{ID: partnerID}},
		{ID: "c2", Partner: store.Profile{ID: "u-other"}, UnreadCount: 1},
	}
	rest.details["c1"] = &api.ChatDetail{
		Conversation: rest.chats[0],
		Messages:     testHistory(3),
	}
	rest.details["c2"] = &api.ChatDetail{Conversation: rest.chats[1]}

	conn := newMockConn()
	events := &mockEvents{}
	sw := switchboard.New()

	params := GetDefaultParams()
	params.ReadReceiptSettleDelay = 20 * time.Millisecond

	client := NewClient(rest, conn, sw,
		versioned.NewKV(ekv.MakeMemstore()), events, selfID, params)
	t.Cleanup(client.Stop)

	return &testEnv{
		client: client, rest: rest, conn: conn, events: events, sw: sw,
	}
}

func testHistory(n int) []store.Message {
	msgs := make([]store.Message, n)
	for i := range msgs {
		sender := partnerID
		if i%2 == 1 {
			sender = selfID
		}
		msgs[i] = store.Message{
			ID:        fmt.Sprintf("m%d", i),
			SenderID:  sender,
			Text:      fmt.Sprintf("message %d", i),
			CreatedAt: netTime.Now(),
		}
	}
	return msgs
}

// push simulates the channel connection dispatching an inbound event.
func (env *testEnv) push(t *testing.T, event, chatID string,
	payload interface{}) {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %+v", err)
	}
	env.sw.Speak(switchboard.Item{
		Name: event, ChatID: chatID, Payload: data})
}
