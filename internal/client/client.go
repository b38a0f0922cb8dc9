// ABOUTME: HTTP client for the coco-gateway REST API
// ABOUTME: Bearer-token requests, JSON bodies, and typed API errors

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/coco-gateway/internal/gateway"
	"github.com/2389/coco-gateway/internal/protocol"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx response from the gateway.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned %d", e.Status)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client talks to one gateway.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the gateway at baseURL. token may be empty until
// Login is called.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the bearer token in use.
func (c *Client) Token() string { return c.token }

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) { c.token = token }

// do sends a request and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any, header http.Header) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Login exchanges a username and password for a token and keeps the token
// for later requests.
func (c *Client) Login(ctx context.Context, username, password string) (*gateway.LoginResponse, error) {
	var resp gateway.LoginResponse
	req := gateway.LoginRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, "/login", req, &resp, nil); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

// ListTypes returns every entity type.
func (c *Client) ListTypes(ctx context.Context) ([]protocol.TypeView, error) {
	var types []protocol.TypeView
	if err := c.do(ctx, http.MethodGet, "/types", nil, &types, nil); err != nil {
		return nil, err
	}
	return types, nil
}

// CreateType creates an entity type.
func (c *Client) CreateType(ctx context.Context, req gateway.TypeRequest) (*protocol.TypeView, error) {
	var t protocol.TypeView
	if err := c.do(ctx, http.MethodPost, "/types", req, &t, nil); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteType deletes an entity type.
func (c *Client) DeleteType(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/types/"+url.PathEscape(id), nil, nil, nil)
}

// ListItems returns items, optionally only those of typeID.
func (c *Client) ListItems(ctx context.Context, typeID string) ([]protocol.ItemView, error) {
	path := "/items"
	if typeID != "" {
		path += "?type_id=" + url.QueryEscape(typeID)
	}
	var items []protocol.ItemView
	if err := c.do(ctx, http.MethodGet, path, nil, &items, nil); err != nil {
		return nil, err
	}
	return items, nil
}

// CreateItem creates an item.
func (c *Client) CreateItem(ctx context.Context, req gateway.ItemRequest) (*protocol.ItemView, error) {
	var item protocol.ItemView
	if err := c.do(ctx, http.MethodPost, "/items", req, &item, nil); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem deletes an item.
func (c *Client) DeleteItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/items/"+url.PathEscape(id), nil, nil, nil)
}

// RecordData submits a reading for an item. A non-empty idempotencyKey lets
// the call be retried without recording the reading twice.
func (c *Client) RecordData(ctx context.Context, itemID, idempotencyKey string, req gateway.DataRequest) (*gateway.ReadingResponse, error) {
	var header http.Header
	if idempotencyKey != "" {
		header = http.Header{}
		header.Set(gateway.IdempotencyKeyHeader, idempotencyKey)
	}
	var reading gateway.ReadingResponse
	if err := c.do(ctx, http.MethodPost, "/data/"+url.PathEscape(itemID), req, &reading, header); err != nil {
		return nil, err
	}
	return &reading, nil
}

// ListReadings returns an item's readings with timestamps in [from, to].
// Zero bounds are omitted.
func (c *Client) ListReadings(ctx context.Context, itemID string, from, to int64) ([]gateway.ReadingResponse, error) {
	q := url.Values{}
	if from != 0 {
		q.Set("from", strconv.FormatInt(from, 10))
	}
	if to != 0 {
		q.Set("to", strconv.FormatInt(to, 10))
	}
	path := "/data/" + url.PathEscape(itemID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var readings []gateway.ReadingResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &readings, nil); err != nil {
		return nil, err
	}
	return readings, nil
}

// ListRules returns the rules of one kind, "reactive" or "deliberative".
func (c *Client) ListRules(ctx context.Context, kind string) ([]protocol.RuleView, error) {
	var rules []protocol.RuleView
	if err := c.do(ctx, http.MethodGet, "/rules/"+url.PathEscape(kind), nil, &rules, nil); err != nil {
		return nil, err
	}
	return rules, nil
}

// ListUsers returns every user. Privileged callers only.
func (c *Client) ListUsers(ctx context.Context) ([]protocol.UserView, error) {
	var users []protocol.UserView
	if err := c.do(ctx, http.MethodGet, "/users", nil, &users, nil); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser creates a user. Privileged callers only.
func (c *Client) CreateUser(ctx context.Context, req gateway.UserRequest) (*protocol.UserView, error) {
	var u protocol.UserView
	if err := c.do(ctx, http.MethodPost, "/users", req, &u, nil); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser replaces a user's profile. An empty password keeps the current
// one. Privileged callers only.
func (c *Client) UpdateUser(ctx context.Context, id string, req gateway.UserRequest) (*protocol.UserView, error) {
	var u protocol.UserView
	if err := c.do(ctx, http.MethodPut, "/users/"+url.PathEscape(id), req, &u, nil); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser deletes a user and disconnects their session. Privileged
// callers only.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), nil, nil, nil)
}

// PostEngineEvents forwards one engine event or a JSON array of them and
// returns how many were accepted. Privileged callers only.
func (c *Client) PostEngineEvents(ctx context.Context, events json.RawMessage) (int, error) {
	var resp gateway.EngineEventsResponse
	if err := c.do(ctx, http.MethodPost, "/engine/events", events, &resp, nil); err != nil {
		return 0, err
	}
	return resp.Accepted, nil
}
