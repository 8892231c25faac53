// Package chatclient is the Go SDK for the dealdesk chat API. It wraps
// the HTTP surface (sessions, conversations, deals, gate purchases)
// and decodes the SSE message streams into typed events.
package chatclient

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-resty/resty/v2"

	"dealdesk/pkg/stream"
)

// Client talks to a dealdesk server.
type Client struct {
	rest *resty.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client (for tests and
// custom transports).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.rest = resty.NewWithClient(hc).SetBaseURL(c.rest.BaseURL)
	}
}

// New creates a client for the given base URL. No request timeout is
// set on the underlying client: message streams are long-lived, so
// deadlines belong on the caller's context.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		rest: resty.New().SetBaseURL(baseURL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAuthToken installs the bearer token used on authenticated routes.
func (c *Client) SetAuthToken(token string) {
	c.rest.SetAuthToken(token)
}

// CreateSession mints a new anonymous session.
func (c *Client) CreateSession(ctx context.Context, sourcePage string) (*Session, error) {
	var session Session
	body := map[string]string{"sourcePage": sourcePage}
	if err := c.doJSON(ctx, http.MethodPost, "/api/anon/sessions", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession restores a session and its transcript.
func (c *Client) GetSession(ctx context.Context, token string) (*SessionState, error) {
	var state SessionState
	if err := c.doJSON(ctx, http.MethodGet, "/api/anon/sessions/"+token, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// CreateConversation starts an authenticated conversation.
func (c *Client) CreateConversation(ctx context.Context, title, journey string) (*Conversation, error) {
	var conv Conversation
	body := map[string]string{"title": title, "journey": journey}
	if err := c.doJSON(ctx, http.MethodPost, "/api/conversations", body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recent
// first.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var conversations []Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

// GetConversation retrieves a conversation with its transcript.
func (c *Client) GetConversation(ctx context.Context, id int64) (*ConversationState, error) {
	var state ConversationState
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/conversations/%d", id), nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// ListDeals returns the user's deals.
func (c *Client) ListDeals(ctx context.Context) ([]Deal, error) {
	var deals []Deal
	if err := c.doJSON(ctx, http.MethodGet, "/api/deals", nil, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

// GetDeal retrieves a deal with its deliverables.
func (c *Client) GetDeal(ctx context.Context, id int64) (*DealDetail, error) {
	var detail DealDetail
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/deals/%d", id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// PurchaseGate unlocks a priced gate for a conversation's deal.
func (c *Client) PurchaseGate(ctx context.Context, gateName string, conversationID int64) (*PurchaseResult, error) {
	var result PurchaseResult
	body := map[string]int64{"conversationId": conversationID}
	path := "/api/gates/" + gateName + "/purchase"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StreamSessionMessage sends one anonymous message and returns the
// event stream for the turn.
func (c *Client) StreamSessionMessage(ctx context.Context, token, content string) (*EventStream, error) {
	return c.postStream(ctx, "/api/anon/sessions/"+token+"/messages", content)
}

// StreamConversationMessage sends one authenticated message and
// returns the event stream for the turn.
func (c *Client) StreamConversationMessage(ctx context.Context, conversationID int64, content string) (*EventStream, error) {
	return c.postStream(ctx, fmt.Sprintf("/api/conversations/%d/messages", conversationID), content)
}

// EventStream is one turn's SSE response. Callers must Close it.
type EventStream struct {
	dec  *stream.Decoder
	body io.ReadCloser
}

// Next returns the next event, or io.EOF when the stream ends.
func (s *EventStream) Next(ctx context.Context) (*stream.Event, error) {
	return s.dec.Next(ctx)
}

// Close releases the underlying connection.
func (s *EventStream) Close() error {
	return s.body.Close()
}

func (c *Client) postStream(ctx context.Context, path, content string) (*EventStream, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Accept", "text/event-stream").
		SetBody(map[string]string{"content": content}).
		SetDoNotParseResponse(true).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}

	raw := resp.RawBody()
	if resp.StatusCode() != http.StatusOK {
		defer raw.Close()
		body, _ := io.ReadAll(io.LimitReader(raw, 1<<16))
		return nil, parseAPIError(resp.StatusCode(), body)
	}

	return &EventStream{dec: stream.NewDecoder(raw), body: raw}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	req := c.rest.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return parseAPIError(resp.StatusCode(), resp.Body())
	}

	return nil
}
