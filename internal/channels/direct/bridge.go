// Package direct polls an Instagram direct-message inbox through an HTTP
// bridge service that owns the Instagram session.
package direct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

type User struct {
	ID       string `json:"user_id"`
	Username string `json:"username"`
}

type Thread struct {
	ID      string `json:"id"`
	Users   []User `json:"users"`
	Pending bool   `json:"pending"`
}

// Username returns the thread participant who wrote userID, or the first
// participant when the sender is not listed.
func (t Thread) Username(userID string) string {
	for _, u := range t.Users {
		if u.ID == userID {
			return u.Username
		}
	}
	if len(t.Users) > 0 {
		return t.Users[0].Username
	}
	return "unknown"
}

type Msg struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Port is the direct-message inbox.
type Port interface {
	Self(ctx context.Context) (User, error)
	ListRecentThreads(ctx context.Context, limit int) ([]Thread, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]Msg, error)
	Send(ctx context.Context, threadID, text string) error
	MarkRead(ctx context.Context, threadID string) error
}

// BridgeClient talks JSON to the bridge:
//
//	GET  /me
//	GET  /threads?amount=N
//	GET  /threads/{id}/messages?amount=N
//	POST /threads/{id}/messages  {"text": "..."}
//	POST /threads/{id}/seen
type BridgeClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

func NewBridgeClient(baseURL, token string, client *http.Client, logger *zap.Logger) *BridgeClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &BridgeClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		logger:  logger,
	}
}

func (c *BridgeClient) Self(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, http.MethodGet, "/me", nil, &u)
	return u, err
}

func (c *BridgeClient) ListRecentThreads(ctx context.Context, limit int) ([]Thread, error) {
	var threads []Thread
	err := c.do(ctx, http.MethodGet, "/threads?amount="+strconv.Itoa(limit), nil, &threads)
	return threads, err
}

func (c *BridgeClient) ListMessages(ctx context.Context, threadID string, limit int) ([]Msg, error) {
	var msgs []Msg
	path := fmt.Sprintf("/threads/%s/messages?amount=%d", url.PathEscape(threadID), limit)
	err := c.do(ctx, http.MethodGet, path, nil, &msgs)
	return msgs, err
}

func (c *BridgeClient) Send(ctx context.Context, threadID, text string) error {
	body := map[string]string{"text": text}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/threads/%s/messages", url.PathEscape(threadID)), body, nil)
}

func (c *BridgeClient) MarkRead(ctx context.Context, threadID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/threads/%s/seen", url.PathEscape(threadID)), nil, nil)
}

func (c *BridgeClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
