// Package client talks to a threadview server. It implements the page
// fetching, listing, deletion and bookmark collaborators of the view engine.
package client

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

	"github.com/wethinkt/go-threadview/internal/thread"
	"github.com/wethinkt/go-threadview/internal/tuilog"
)

const (
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	requestTimeout = 30 * time.Second
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// Unwrap maps 404 responses to thread.ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return thread.ErrNotFound
	}
	return nil
}

// Client is an HTTP client for the threadview API.
type Client struct {
	baseURL string
	token   string
	userID  string
	http    *http.Client
	backoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUser sets the acting user sent as X-User-ID.
func WithUser(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

// New creates a client for the server at baseURL (e.g. http://127.0.0.1:8790).
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: requestTimeout},
		backoff: initialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage loads the page of messages older than req.Cursor.
func (c *Client) FetchPage(ctx context.Context, req thread.PageRequest) (thread.Page, error) {
	q := url.Values{}
	if req.Cursor > 0 {
		q.Set("before", strconv.FormatInt(req.Cursor, 10))
	}
	if req.PageSize > 0 {
		q.Set("limit", strconv.Itoa(req.PageSize))
	}
	var page thread.Page
	err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+url.PathEscape(req.ConversationID)+"/messages", q, nil, &page)
	if err != nil {
		return thread.Page{}, fmt.Errorf("fetch page: %w", err)
	}
	return page, nil
}

// ListConversations loads one page of the conversation list.
func (c *Client) ListConversations(ctx context.Context, cursor string, limit int) (thread.ConversationPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var page thread.ConversationPage
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations", q, nil, &page); err != nil {
		return thread.ConversationPage{}, fmt.Errorf("list conversations: %w", err)
	}
	return page, nil
}

// DeleteMessages removes messages in one request.
func (c *Client) DeleteMessages(ctx context.Context, conversationID string, ids []string) error {
	body := map[string][]string{"ids": ids}
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations/"+url.PathEscape(conversationID)+"/messages/delete", nil, body, nil); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// CreateConversation starts a conversation on the server. A non-empty
// initialMessage becomes its first user message.
func (c *Client) CreateConversation(ctx context.Context, title, model, initialMessage string) (thread.ConversationSummary, error) {
	var out thread.ConversationSummary
	body := map[string]string{"title": title, "model": model}
	if initialMessage != "" {
		body["initial_message"] = initialMessage
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations", nil, body, &out); err != nil {
		return out, fmt.Errorf("create conversation: %w", err)
	}
	return out, nil
}

// RenameConversation sets a conversation's title.
func (c *Client) RenameConversation(ctx context.Context, id, title string) error {
	body := map[string]string{"title": title}
	if err := c.do(ctx, http.MethodPatch, "/api/v1/conversations/"+url.PathEscape(id), nil, body, nil); err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	return nil
}

// AppendMessage posts a message to the end of a conversation and returns it
// with its assigned id and sequence.
func (c *Client) AppendMessage(ctx context.Context, conversationID string, m thread.Message) (thread.Message, error) {
	var out thread.Message
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations/"+url.PathEscape(conversationID)+"/messages", nil, m, &out); err != nil {
		return out, fmt.Errorf("append message: %w", err)
	}
	return out, nil
}

// UpdateMessage rewrites the content of a stored message.
func (c *Client) UpdateMessage(ctx context.Context, conversationID, messageID string, p thread.Patch) (thread.Message, error) {
	var out thread.Message
	body := map[string]any{}
	if p.Parts != nil {
		body["parts"] = p.Parts
	}
	if p.Annotations != nil {
		body["annotations"] = p.Annotations
	}
	if p.Attachments != nil {
		body["attachments"] = p.Attachments
	}
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/messages/" + url.PathEscape(messageID)
	if err := c.do(ctx, http.MethodPatch, path, nil, body, &out); err != nil {
		return out, fmt.Errorf("update message: %w", err)
	}
	return out, nil
}

// SetBookmark adds or removes a bookmark for the configured user.
func (c *Client) SetBookmark(ctx context.Context, conversationID, messageID string, on bool) error {
	body := map[string]any{"message_id": messageID, "on": on}
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations/"+url.PathEscape(conversationID)+"/bookmarks", nil, body, nil); err != nil {
		return fmt.Errorf("set bookmark: %w", err)
	}
	return nil
}

// Bookmarks looks up which messages are bookmarked.
func (c *Client) Bookmarks(ctx context.Context, conversationID string, messageIDs []string) (map[string]bool, error) {
	q := url.Values{}
	if len(messageIDs) > 0 {
		q.Set("ids", strings.Join(messageIDs, ","))
	}
	var resp struct {
		Bookmarks map[string]bool `json:"bookmarks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations/"+url.PathEscape(conversationID)+"/bookmarks", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("bookmarks: %w", err)
	}
	if resp.Bookmarks == nil {
		resp.Bookmarks = map[string]bool{}
	}
	return resp.Bookmarks, nil
}

// do sends one request. GETs are retried with exponential backoff on
// transport errors, 429 and 5xx; writes are sent once.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = data
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += maxRetries
	}

	backoff := c.backoff
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			tuilog.Log.Debug("Client.do: retrying", "path", path, "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		retry, err := c.once(ctx, method, u, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, u string, payload []byte, out any) (retry bool, err error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		json.Unmarshal(data, apiErr)
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retry, apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}
