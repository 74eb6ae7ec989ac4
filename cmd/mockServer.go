////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/pairly/chat-client/api"
	"gitlab.com/pairly/chat-client/catalog"
	"gitlab.com/pairly/chat-client/store"
)

// mockServerCmd runs an in-memory chat backend for development and manual
// testing. It implements the REST routes and the push channel the client
// expects, seeds a few conversations, and has the partner auto-reply to every
// message so the inbound path can be exercised with a single client.
var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Runs an in-memory chat backend emulator",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint(logLevelFlag), viper.GetString(logFlag))

		srv := newMockServer(int(viper.GetUint(mockUsersFlag)))
		addr := fmt.Sprintf(":%d", viper.GetUint(portFlag))
		jww.INFO.Printf("Mock backend listening on %s", addr)
		if err := srv.app.Listen(addr); err != nil {
			jww.FATAL.Panicf("Mock backend stopped: %+v", err)
		}
	},
}

type mockEnvelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

type mockInbound struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type mockChat struct {
	conv     store.Conversation
	messages []store.Message
	blocked  bool
}

type mockServer struct {
	app *fiber.App

	chats map[string]*mockChat
	rooms map[string]map[*websocket.Conn]bool
	mux   sync.Mutex
}

func newMockServer(users int) *mockServer {
	s := &mockServer{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		chats: make(map[string]*mockChat),
		rooms: make(map[string]map[*websocket.Conn]bool),
	}
	s.seed(users)
	s.routes()
	return s
}

// seed creates the starting conversations, one per fake partner.
func (s *mockServer) seed(users int) {
	for i := 0; i < users; i++ {
		chatID := uuid.NewString()
		partnerID := uuid.NewString()
		text := "Welcome to the mock backend"
		s.chats[chatID] = &mockChat{
			conv: store.Conversation{
				ID: chatID,
				Partner: store.Profile{
					ID:   partnerID,
					Name: fmt.Sprintf("Partner %d", i+1),
				},
				LastMessage:  text,
				LastActivity: netTime.Now(),
				UnreadCount:  1,
			},
			messages: []store.Message{{
				ID:        uuid.NewString(),
				SenderID:  partnerID,
				Text:      text,
				CreatedAt: netTime.Now(),
			}},
		}
		jww.INFO.Printf("Seeded conversation %s with %s",
			chatID, partnerID)
	}
}

func (s *mockServer) routes() {
	s.app.Use("/channel", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/channel", websocket.New(s.handleChannel))

	s.app.Get("/chats", s.handleList)
	s.app.Get("/chats/:id", s.handleGet)
	s.app.Post("/chats/:id/message", s.handleSend)
	s.app.Post("/chats/:id/read", s.handleRead)
	s.app.Post("/chats/:id/block", s.handleBlock(true))
	s.app.Post("/chats/:id/unblock", s.handleBlock(false))
	s.app.Delete("/chats/:id", s.handleDelete)
	s.app.Post("/chats/:id/report", s.handleReport)
}

// userID authenticates the request. The mock accepts any well formed token;
// it only needs the subject to attribute messages.
func (s *mockServer) userID(c *fiber.Ctx) (string, error) {
	auth := c.Get(fiber.HeaderAuthorization)
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == "" || token == auth {
		return "", fiber.NewError(fiber.StatusUnauthorized,
			"missing bearer token")
	}
	session, err := api.NewSession(token)
	if err != nil {
		return "", fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	return session.UserID(), nil
}

func (s *mockServer) handleList(c *fiber.Ctx) error {
	if _, err := s.userID(c); err != nil {
		return err
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	out := make([]store.Conversation, 0, len(s.chats))
	for _, ch := range s.chats {
		out = append(out, ch.conv)
	}
	return c.JSON(out)
}

func (s *mockServer) handleGet(c *fiber.Ctx) error {
	if _, err := s.userID(c); err != nil {
		return err
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	ch, ok := s.chats[c.Params("id")]
	if !ok {
		return fiber.ErrNotFound
	}
	return c.JSON(api.ChatDetail{
		Conversation: ch.conv,
		Messages:     ch.messages,
		Blocked:      ch.blocked,
	})
}

func (s *mockServer) handleSend(c *fiber.Ctx) error {
	sender, err := s.userID(c)
	if err != nil {
		return err
	}

	var req struct {
		Text string `json:"text"`
	}
	if err = c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}

	chatID := c.Params("id")
	s.mux.Lock()
	ch, ok := s.chats[chatID]
	if !ok {
		s.mux.Unlock()
		return fiber.ErrNotFound
	}
	if ch.blocked {
		s.mux.Unlock()
		return fiber.NewError(fiber.StatusForbidden,
			"conversation is blocked")
	}

	msg := store.Message{
		ID:        uuid.NewString(),
		SenderID:  sender,
		Text:      req.Text,
		CreatedAt: netTime.Now(),
	}
	ch.messages = append(ch.messages, msg)
	ch.conv.LastMessage = msg.Text
	ch.conv.LastActivity = msg.CreatedAt
	partner := ch.conv.Partner
	s.mux.Unlock()

	// The backend echoes every accepted message to the room, the sender's
	// own connection included.
	s.broadcast(chatID, mockEnvelope{
		Event: catalog.ReceiveMessage,
		Payload: map[string]interface{}{
			"chatId":  chatID,
			"message": msg,
		},
	})
	go s.autoReply(chatID, partner)

	return c.JSON(msg)
}

// autoReply has the fake partner read the conversation and answer after a
// short delay.
func (s *mockServer) autoReply(chatID string, partner store.Profile) {
	time.Sleep(2 * time.Second)

	s.mux.Lock()
	ch, ok := s.chats[chatID]
	if !ok || ch.blocked {
		s.mux.Unlock()
		return
	}
	for i := range ch.messages {
		if ch.messages[i].SenderID != partner.ID {
			ch.messages[i].Read = true
		}
	}
	reply := store.Message{
		ID:        uuid.NewString(),
		SenderID:  partner.ID,
		Text:      fmt.Sprintf("%s says hi back", partner.Name),
		CreatedAt: netTime.Now(),
	}
	ch.messages = append(ch.messages, reply)
	ch.conv.LastMessage = reply.Text
	ch.conv.LastActivity = reply.CreatedAt
	s.mux.Unlock()

	s.broadcast(chatID, mockEnvelope{
		Event:   catalog.MessagesRead,
		Payload: map[string]interface{}{"chatId": chatID},
	})
	s.broadcast(chatID, mockEnvelope{
		Event: catalog.ReceiveMessage,
		Payload: map[string]interface{}{
			"chatId":  chatID,
			"message": reply,
		},
	})
}

func (s *mockServer) handleRead(c *fiber.Ctx) error {
	reader, err := s.userID(c)
	if err != nil {
		return err
	}
	chatID := c.Params("id")

	s.markRead(chatID, reader)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *mockServer) markRead(chatID, reader string) {
	s.mux.Lock()
	ch, ok := s.chats[chatID]
	if !ok {
		s.mux.Unlock()
		return
	}
	for i := range ch.messages {
		if ch.messages[i].SenderID != reader {
			ch.messages[i].Read = true
		}
	}
	ch.conv.UnreadCount = 0
	s.mux.Unlock()

	s.broadcast(chatID, mockEnvelope{
		Event:   catalog.MessagesRead,
		Payload: map[string]interface{}{"chatId": chatID},
	})
}

func (s *mockServer) handleBlock(blocked bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := s.userID(c); err != nil {
			return err
		}
		chatID := c.Params("id")

		s.mux.Lock()
		ch, ok := s.chats[chatID]
		if !ok {
			s.mux.Unlock()
			return fiber.ErrNotFound
		}
		ch.blocked = blocked
		ch.conv.Blocked = blocked
		s.mux.Unlock()

		event := catalog.UserBlocked
		if !blocked {
			event = catalog.UserUnblocked
		}
		s.broadcast(chatID, mockEnvelope{
			Event:   event,
			Payload: map[string]interface{}{"chatId": chatID},
		})
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func (s *mockServer) handleDelete(c *fiber.Ctx) error {
	if _, err := s.userID(c); err != nil {
		return err
	}

	s.mux.Lock()
	defer s.mux.Unlock()
	chatID := c.Params("id")
	if _, ok := s.chats[chatID]; !ok {
		return fiber.ErrNotFound
	}
	delete(s.chats, chatID)
	delete(s.rooms, catalog.RoomID(chatID))
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *mockServer) handleReport(c *fiber.Ctx) error {
	if _, err := s.userID(c); err != nil {
		return err
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	jww.INFO.Printf("Report filed against %s: %s",
		c.Params("id"), req.Reason)
	return c.SendStatus(fiber.StatusNoContent)
}

// handleChannel serves one push channel connection, tracking its room
// membership until it disconnects.
func (s *mockServer) handleChannel(conn *websocket.Conn) {
	defer s.dropConn(conn)

	for {
		var in mockInbound
		if err := conn.ReadJSON(&in); err != nil {
			jww.DEBUG.Printf("Channel connection closed: %+v", err)
			return
		}

		switch in.Event {
		case catalog.JoinChat, catalog.LeaveChat:
			// Join and leave carry the room name as a bare string.
			var roomID string
			if err := json.Unmarshal(in.Payload, &roomID); err != nil {
				jww.WARN.Printf(
					"Discarded unparseable emit: %+v", err)
				continue
			}
			if in.Event == catalog.JoinChat {
				s.joinRoom(roomID, conn)
			} else {
				s.leaveRoom(roomID, conn)
			}
		case catalog.Ping:
			// Keepalive, nothing to answer.
		case catalog.MarkRead:
			// Advisory. The REST read endpoint is authoritative
			// and the client always calls it first.
			jww.DEBUG.Printf("Advisory mark_read emit received")
		default:
			jww.WARN.Printf("Unhandled emit %q", in.Event)
		}
	}
}

func (s *mockServer) joinRoom(roomID string, conn *websocket.Conn) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.rooms[roomID] == nil {
		s.rooms[roomID] = make(map[*websocket.Conn]bool)
	}
	s.rooms[roomID][conn] = true
	jww.DEBUG.Printf("Connection joined %s", roomID)
}

func (s *mockServer) leaveRoom(roomID string, conn *websocket.Conn) {
	s.mux.Lock()
	defer s.mux.Unlock()
	delete(s.rooms[roomID], conn)
}

func (s *mockServer) dropConn(conn *websocket.Conn) {
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, members := range s.rooms {
		delete(members, conn)
	}
	conn.Close()
}

// broadcast sends an envelope to every connection in the conversation's room.
func (s *mockServer) broadcast(chatID string, env mockEnvelope) {
	roomID := catalog.RoomID(chatID)

	s.mux.Lock()
	members := make([]*websocket.Conn, 0, len(s.rooms[roomID]))
	for conn := range s.rooms[roomID] {
		members = append(members, conn)
	}
	s.mux.Unlock()

	for _, conn := range members {
		if err := conn.WriteJSON(env); err != nil {
			jww.WARN.Printf("Broadcast to %s failed: %+v",
				roomID, err)
		}
	}
}

func init() {
	rootCmd.AddCommand(mockServerCmd)

	mockServerCmd.Flags().UintP(portFlag, "", 8480,
		"Port for the mock backend to listen on")
	viper.BindPFlag(portFlag, mockServerCmd.Flags().Lookup(portFlag))

	mockServerCmd.Flags().UintP(mockUsersFlag, "", 3,
		"Number of seeded conversations")
	viper.BindPFlag(mockUsersFlag,
		mockServerCmd.Flags().Lookup(mockUsersFlag))
}
