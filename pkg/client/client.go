// Package client talks to the settings HTTP API. Client satisfies
// coordinator.Backend so remote writes get the same single conflict retry as
// in-process ones.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/coordinator"
	"github.com/goliatone/go-settings/pkg/guard"
)

const DefaultTimeout = 10 * time.Second

const (
	HeaderAccountID = "X-Account-ID"
	HeaderRoleCode  = "X-Role-Code"
	HeaderRoleKey   = "X-Role-Key"
)

// Client is a settings API client bound to one identity.
type Client struct {
	baseURL    string
	identity   settings.Identity
	httpClient *http.Client
}

var _ coordinator.Backend = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func New(baseURL string, identity settings.Identity, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		identity:   identity,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ErrorBody is the error envelope returned by the API.
type ErrorBody struct {
	Code     guard.Code `json:"code"`
	Message  string     `json:"message"`
	Expected int64      `json:"expected,omitempty"`
	Current  int64      `json:"current,omitempty"`
}

type writeBody struct {
	Key     string             `json:"key"`
	Scope   settings.ScopeType `json:"scopeType"`
	Value   any                `json:"value"`
	Version int64              `json:"version"`
	Create  bool               `json:"create,omitempty"`
}

type resetBody struct {
	Key     string             `json:"key"`
	Scope   settings.ScopeType `json:"scopeType"`
	Version int64              `json:"version"`
}

// Fetch returns the resolved table.
func (c *Client) Fetch(ctx context.Context) ([]settings.ResolvedSetting, error) {
	var table []settings.ResolvedSetting
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &table); err != nil {
		return nil, err
	}
	return retag(table), nil
}

// Write submits one override.
func (c *Client) Write(ctx context.Context, req coordinator.Request) ([]settings.ResolvedSetting, error) {
	body := writeBody{
		Key:     req.Key,
		Scope:   req.Scope,
		Value:   req.Value,
		Version: req.Expected.Version,
		Create:  req.Expected.Create,
	}
	var table []settings.ResolvedSetting
	if err := c.do(ctx, http.MethodPut, "/api/settings", body, &table); err != nil {
		return nil, err
	}
	return retag(table), nil
}

// Reset removes one override at version.
func (c *Client) Reset(ctx context.Context, key string, scope settings.ScopeType, version int64) ([]settings.ResolvedSetting, error) {
	var table []settings.ResolvedSetting
	if err := c.do(ctx, http.MethodDelete, "/api/settings", resetBody{Key: key, Scope: scope, Version: version}, &table); err != nil {
		return nil, err
	}
	return retag(table), nil
}

// Schema returns the JSON-schema document for the definitions.
func (c *Client) Schema(ctx context.Context) (json.RawMessage, error) {
	var doc json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/settings/schema", nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setIdentity(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}

func (c *Client) setIdentity(h http.Header) {
	if c.identity.AccountID != "" {
		h.Set(HeaderAccountID, c.identity.AccountID)
	}
	if c.identity.RoleCode != "" {
		h.Set(HeaderRoleCode, c.identity.RoleCode)
	}
	if c.identity.RoleKey != "" {
		h.Set(HeaderRoleKey, c.identity.RoleKey)
	}
}

// decodeError rebuilds a guard error from the envelope so guard.CodeOf and
// errors.Is behave the same on both sides of the wire.
func decodeError(status int, data []byte) error {
	var envelope ErrorBody
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Code == "" {
		return fmt.Errorf("client: unexpected status %d: %s", status, strings.TrimSpace(string(data)))
	}
	return &guard.Error{
		Code:     envelope.Code,
		Entity:   "remote",
		Expected: envelope.Expected,
		Current:  envelope.Current,
		Message:  envelope.Message,
	}
}

// JSON drops the enum tag; restore it from each definition.
func retag(table []settings.ResolvedSetting) []settings.ResolvedSetting {
	fix := func(t settings.ValueType, v settings.Value) settings.Value {
		if v.IsZero() {
			return v
		}
		if parsed, err := settings.ParseValue(t, v); err == nil {
			return parsed
		}
		return v
	}
	for i := range table {
		row := &table[i]
		row.Default = fix(row.Type, row.Default)
		row.ResolvedValue = fix(row.Type, row.ResolvedValue)
		if row.GlobalValue != nil {
			v := fix(row.Type, *row.GlobalValue)
			row.GlobalValue = &v
		}
		if row.UserValue != nil {
			v := fix(row.Type, *row.UserValue)
			row.UserValue = &v
		}
	}
	return table
}
