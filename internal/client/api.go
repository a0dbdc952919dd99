package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"chatrelay/internal/delivery"
)

// APIError carries the status code and message of a failed API call
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// HTTPClient talks to the message API over HTTP with a bearer token.
// It implements the API interface consumed by Store.
type HTTPClient struct {
	base  string
	token string
	http  *http.Client
}

func NewHTTPClient(base, token string) *HTTPClient {
	return &HTTPClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.base+path, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(raw)),
		}
	}

	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

// Login exchanges a user id for a session token and remembers it for
// subsequent calls
func (c *HTTPClient) Login(ctx context.Context, userID int64) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.post(ctx, "/session/login", map[string]int64{"userId": userID}, &out)
	if err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Token, nil
}

// Logout invalidates the current session token
func (c *HTTPClient) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "POST", c.base+"/session/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := ioutil.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	c.token = ""
	return nil
}

// Send submits a message and returns the canonical server record
func (c *HTTPClient) Send(ctx context.Context, receiverID int64, text, mediaURL string) (delivery.Message, error) {
	body := map[string]interface{}{"receiver": receiverID}
	if text != "" {
		body["text"] = text
	}
	if mediaURL != "" {
		body["media"] = mediaURL
	}

	var out delivery.Message
	if err := c.post(ctx, "/messages/send", body, &out); err != nil {
		return delivery.Message{}, err
	}
	return out, nil
}

// ListConversation fetches the full history with a peer, ascending by
// creation time
func (c *HTTPClient) ListConversation(ctx context.Context, peerID int64) ([]delivery.Message, error) {
	var out []delivery.Message
	body := map[string]int64{"peer": peerID}
	if err := c.post(ctx, "/messages/get", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPeers fetches correspondents ordered by recency
func (c *HTTPClient) ListPeers(ctx context.Context) ([]delivery.Peer, error) {
	var out []delivery.Peer
	if err := c.post(ctx, "/peers/get", struct{}{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Token returns the current session token
func (c *HTTPClient) Token() string {
	return c.token
}

// WSURL derives the push channel endpoint from the API base URL
func (c *HTTPClient) WSURL() string {
	u := c.base
	switch {
	case strings.HasPrefix(u, "https"):
		u = "wss" + strings.TrimPrefix(u, "https")
	case strings.HasPrefix(u, "http"):
		u = "ws" + strings.TrimPrefix(u, "http")
	}
	return u + "/ws?token=" + c.token
}
