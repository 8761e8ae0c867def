// Package campusly is a client for Campusly direct messaging: the REST API
// for history and rosters, and the event channel for live messages, typing
// and presence.
package campusly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a Campusly REST API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a new client. token is the bearer token issued by the
// campus auth service.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("campusly error %d: %s", e.Status, e.Message)
}

// doRequest performs an HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		if errResp.Error == "" {
			errResp.Error = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	return respBody, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(respBody, out)
}

// GetMessages returns the history with counterpartID in chronological order.
func (c *Client) GetMessages(ctx context.Context, counterpartID string) ([]Message, error) {
	var messages []Message
	if err := c.getJSON(ctx, "/api/chat/messages/"+url.PathEscape(counterpartID), &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// GetMessagesBefore pages further back through the history, returning
// messages strictly older than before.
func (c *Client) GetMessagesBefore(ctx context.Context, counterpartID string, before time.Time, limit int) ([]Message, error) {
	path := fmt.Sprintf("/api/chat/messages/%s?before=%d", url.PathEscape(counterpartID), before.UnixMilli())
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}

	var messages []Message
	if err := c.getJSON(ctx, path, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// ListUsers returns the roster without the caller. A non-empty query filters
// by name on the server.
func (c *Client) ListUsers(ctx context.Context, query string) ([]User, error) {
	path := "/api/chat/users"
	if query != "" {
		path += "?q=" + url.QueryEscape(query)
	}

	var users []User
	if err := c.getJSON(ctx, path, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser returns one roster entry.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := c.getJSON(ctx, "/api/chat/users/"+url.PathEscape(id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListConversations returns the caller's conversation summaries.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var convs []Conversation
	if err := c.getJSON(ctx, "/api/chat/conversations", &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// RegisterRequest is the body of a roster registration.
type RegisterRequest struct {
	Name         string `json:"name"`
	Username     string `json:"username,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// Register adds a roster entry.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/api/chat/users", body)
	if err != nil {
		return nil, err
	}

	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// StatsResponse holds messaging totals.
type StatsResponse struct {
	TotalUsers    int64 `json:"total_users"`
	TotalMessages int64 `json:"total_messages"`
	OnlineUsers   int   `json:"online_users"`
}

// Stats returns messaging totals.
func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	var resp StatsResponse
	if err := c.getJSON(ctx, "/api/chat/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the server health report.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Online  int    `json:"online"`
	Checks  map[string]struct {
		Status  string `json:"status"`
		Latency string `json:"latency,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"checks"`
	Timestamp string `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// EventsURL returns the websocket URL of the event channel.
func (c *Client) EventsURL() string {
	u := c.BaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Dialer returns a DialFunc for the event channel authenticated with the
// client's token.
func (c *Client) Dialer() DialFunc {
	header := http.Header{}
	if c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}
	return WebsocketDialer(c.EventsURL(), header)
}
