////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Pairly Technologies Ltd.                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package api is the REST client for the conversation backend. Every request
// carries the session's bearer credential; request pacing is rate limited so
// refresh storms cannot hammer the backend.
package api

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/valyala/fasthttp"
	"go.uber.org/ratelimit"

	"gitlab.com/pairly/chat-client/store"
)

// Params configures the REST client.
type Params struct {
	// RequestTimeout bounds each round trip.
	RequestTimeout time.Duration

	// RequestsPerSecond paces outgoing requests. Zero or negative disables
	// pacing.
	RequestsPerSecond int
}

// GetDefaultParams returns the production defaults.
func GetDefaultParams() Params {
	return Params{
		RequestTimeout:    10 * time.Second,
		RequestsPerSecond: 20,
	}
}

// ChatDetail is the response of the single-conversation fetch: the summary,
// the ordered message sequence (oldest first), and the pair's block state.
type ChatDetail struct {
	Conversation store.Conversation `json:"conversation"`
	Messages     []store.Message    `json:"messages"`
	Blocked      bool               `json:"blocked"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type reportRequest struct {
	Reason string `json:"reason"`
}

// Client talks to the conversation REST endpoints.
type Client struct {
	hc      *fasthttp.Client
	baseURL string
	session *Session
	limiter ratelimit.Limiter
	params  Params
}

// NewClient returns a REST client for the given backend base URL,
// authenticated as the session's user.
func NewClient(baseURL string, session *Session, params Params) *Client {
	limiter := ratelimit.NewUnlimited()
	if params.RequestsPerSecond > 0 {
		limiter = ratelimit.New(params.RequestsPerSecond)
	}

	return &Client{
		hc:      &fasthttp.Client{},
		baseURL: baseURL,
		session: session,
		limiter: limiter,
		params:  params,
	}
}

// SetDial overrides the client's dial function. Used by tests to route
// requests to an in-memory listener.
func (c *Client) SetDial(dial fasthttp.DialFunc) {
	c.hc.Dial = dial
}

// Session returns the session this client authenticates with.
func (c *Client) Session() *Session {
	return c.session
}

// ListChats fetches the summaries of all conversations this user
// participates in.
func (c *Client) ListChats() ([]store.Conversation, error) {
	var out []store.Conversation
	err := c.do(fasthttp.MethodGet, "/chats", nil, &out)
	return out, err
}

// GetChat fetches one conversation with its full ordered message sequence.
func (c *Client) GetChat(chatID string) (*ChatDetail, error) {
	out := &ChatDetail{}
	err := c.do(fasthttp.MethodGet, "/chats/"+chatID, nil, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage posts a new message and returns the created message with its
// durable ID.
func (c *Client) SendMessage(chatID, text string) (*store.Message, error) {
	out := &store.Message{}
	err := c.do(fasthttp.MethodPost, "/chats/"+chatID+"/message",
		sendMessageRequest{Text: text}, out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead tells the backend every message in the conversation has been seen
// by this user. The backend broadcasts the read receipt on the channel.
func (c *Client) MarkRead(chatID string) error {
	return c.do(fasthttp.MethodPost, "/chats/"+chatID+"/read", nil, nil)
}

// Block blocks the conversation's peer.
func (c *Client) Block(chatID string) error {
	return c.do(fasthttp.MethodPost, "/chats/"+chatID+"/block", nil, nil)
}

// Unblock lifts this user's block on the conversation's peer.
func (c *Client) Unblock(chatID string) error {
	return c.do(fasthttp.MethodPost, "/chats/"+chatID+"/unblock", nil, nil)
}

// Delete removes the conversation server-side.
func (c *Client) Delete(chatID string) error {
	return c.do(fasthttp.MethodDelete, "/chats/"+chatID, nil, nil)
}

// Report files a report against the conversation's peer. Reporting always
// ends in a block; the caller performs the block as its final step.
func (c *Client) Report(chatID, reason string) error {
	return c.do(fasthttp.MethodPost, "/chats/"+chatID+"/report",
		reportRequest{Reason: reason}, nil)
}

func (c *Client) do(method, path string, body, out interface{}) error {
	c.limiter.Take()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set(fasthttp.HeaderAuthorization,
		"Bearer "+c.session.Token())

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err,
				"failed to marshal %s %s body", method, path)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}

	jww.TRACE.Printf("chat api: %s %s", method, path)
	if err := c.hc.DoTimeout(req, resp, c.params.RequestTimeout); err != nil {
		return errors.Wrapf(err, "%s %s failed", method, path)
	}

	status := resp.StatusCode()
	if status < fasthttp.StatusOK ||
		status >= fasthttp.StatusMultipleChoices {
		return errors.Errorf("%s %s returned %d: %s",
			method, path, status, resp.Body())
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return errors.Wrapf(err,
				"failed to parse %s %s response", method, path)
		}
	}

	return nil
}
