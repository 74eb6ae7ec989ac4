////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

package api

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"gitlab.com/pairly/chat-client/store"
)

// recordedRequest captures what the fake backend saw.
type recordedRequest struct {
	method string
	path   string
	auth   string
	body   []byte
}

// newTestClient serves the given handler on an in-memory listener and returns
// a Client dialing it.
func newTestClient(t *testing.T, handler fasthttp.RequestHandler) *Client {
	t.Helper()

	ln := fasthttputil.NewInmemoryListener()
	go func() {
		_ = fasthttp.Serve(ln, handler)
	}()
	t.Cleanup(func() { _ = ln.Close() })

	c := NewClient("http://backend", newTestSession(t), GetDefaultParams())
	c.SetDial(func(string) (net.Conn, error) { return ln.Dial() })
	return c
}

func newTestSession(t *testing.T) *Session {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{"sub": "u-self"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	s, err := NewSession(token)
	require.NoError(t, err)
	return s
}

// Tests that the session exposes the subject claim and rejects garbage.
func TestNewSession(t *testing.T) {
	s := newTestSession(t)
	require.Equal(t, "u-self", s.UserID())
	require.False(t, s.Expired())

	_, err := NewSession("")
	require.Error(t, err)
	_, err = NewSession("not a jwt")
	require.Error(t, err)
}

// Tests that ListChats carries the bearer credential and decodes the list.
func TestClient_ListChats(t *testing.T) {
	var seen recordedRequest
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		seen = recordedRequest{
			method: string(ctx.Method()),
			path:   string(ctx.Path()),
			auth:   string(ctx.Request.Header.Peek("Authorization")),
		}
		data, _ := json.Marshal([]store.Conversation{{ID: "c1"}})
		ctx.SetBody(data)
	})

	chats, err := c.ListChats()
	require.NoError(t, err)
	require.Equal(t, 1, len(chats))
	require.Equal(t, "c1", chats[0].ID)

	require.Equal(t, fasthttp.MethodGet, seen.method)
	require.Equal(t, "/chats", seen.path)
	require.Equal(t, "Bearer "+c.Session().Token(), seen.auth)
}

// Tests that SendMessage posts the trimmed text and returns the created
// message.
func TestClient_SendMessage(t *testing.T) {
	var seen recordedRequest
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		seen = recordedRequest{
			method: string(ctx.Method()),
			path:   string(ctx.Path()),
			body:   append([]byte(nil), ctx.PostBody()...),
		}
		data, _ := json.Marshal(store.Message{
			ID: "m99", SenderID: "u-self", Text: "hi"})
		ctx.SetBody(data)
	})

	msg, err := c.SendMessage("c1", "hi")
	require.NoError(t, err)
	require.Equal(t, "m99", msg.ID)

	require.Equal(t, fasthttp.MethodPost, seen.method)
	require.Equal(t, "/chats/c1/message", seen.path)
	require.JSONEq(t, `{"text":"hi"}`, string(seen.body))
}

// Tests that a non-2xx response surfaces as an error.
func TestClient_Error(t *testing.T) {
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		ctx.SetBodyString("blocked")
	})

	err := c.MarkRead("c1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

// Tests the moderation routes.
func TestClient_Moderation(t *testing.T) {
	var paths []string
	var bodies [][]byte
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		paths = append(paths, string(ctx.Path()))
		bodies = append(bodies,
			append([]byte(nil), ctx.PostBody()...))
	})

	require.NoError(t, c.Block("c1"))
	require.NoError(t, c.Unblock("c1"))
	require.NoError(t, c.Delete("c1"))
	require.NoError(t, c.Report("c1", "spam"))

	require.Equal(t, []string{
		"/chats/c1/block",
		"/chats/c1/unblock",
		"/chats/c1",
		"/chats/c1/report",
	}, paths)
	require.JSONEq(t, `{"reason":"spam"}`, string(bodies[3]))
}
