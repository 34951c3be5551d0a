// Package chatlist is the REST client for the support-chat list: the page
// shell uses it to enumerate a user's chats and open new ones. The live
// message traffic itself goes over the chat package's socket, not here.
package chatlist

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/glowshop/supportchat/internal/errors"
)

// Chat is one support chat as listed by the server.
type Chat struct {
	ID        int64  `json:"id"`
	Topic     string `json:"topic"`
	CreatedAt string `json:"created_at"`
	IsActive  bool   `json:"is_active"`
}

// envelope is the server's uniform response wrapper.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Client talks to the chat-list endpoints. The zero value is not usable;
// construct with NewClient.
//
// The client keeps a cookie jar so the session and csrftoken cookies set by
// the server persist across calls; mutations echo the csrftoken back in the
// X-CSRFToken header, which is also the token chat sessions dial with.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the API at baseURL,
// e.g. "https://shop.example.com". A nil httpClient gets a default with a
// cookie jar and a 15 second timeout; a caller-supplied client should carry
// its own jar if CSRF exchange is needed.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, errors.Internal("creating cookie jar", err)
		}
		httpClient = &http.Client{
			Jar:     jar,
			Timeout: 15 * time.Second,
		}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}, nil
}

// CSRFToken returns the csrftoken cookie currently held for the API origin,
// or "" if none has been set yet. Pass it to chat session options so the
// socket dial carries the same token.
func (c *Client) CSRFToken() string {
	if c.http.Jar == nil {
		return ""
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, cookie := range c.http.Jar.Cookies(u) {
		if cookie.Name == "csrftoken" {
			return cookie.Value
		}
	}
	return ""
}

// List returns the user's chats.
func (c *Client) List(ctx context.Context) ([]Chat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/support/chats/", nil)
	if err != nil {
		return nil, errors.ListRequestFailed(err)
	}

	env, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var chats []Chat
	if err := json.Unmarshal(env.Data, &chats); err != nil {
		return nil, errors.BadEnvelope(err)
	}
	return chats, nil
}

// Create opens a new chat with the given topic. The server responds with
// just the new id; the returned Chat carries that id, the requested topic,
// and is active.
func (c *Client) Create(ctx context.Context, topic string) (Chat, error) {
	body, err := json.Marshal(map[string]string{"topic": topic})
	if err != nil {
		return Chat{}, errors.ListRequestFailed(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/support/chats/", bytes.NewReader(body))
	if err != nil {
		return Chat{}, errors.ListRequestFailed(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.CSRFToken(); token != "" {
		req.Header.Set("X-CSRFToken", token)
	}

	env, err := c.do(req)
	if err != nil {
		return Chat{}, err
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		return Chat{}, errors.BadEnvelope(err)
	}
	return Chat{ID: created.ID, Topic: topic, IsActive: true}, nil
}

// do executes the request and unwraps the response envelope.
func (c *Client) do(req *http.Request) (*envelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.ListRequestFailed(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.ListRequestFailed(err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, errors.BadStatus(resp.StatusCode, "")
		}
		return nil, errors.BadEnvelope(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.BadStatus(resp.StatusCode, env.Message)
	}
	return &env, nil
}
