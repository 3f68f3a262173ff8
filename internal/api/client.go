package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parley/internal/chat"
)

const defaultTimeout = 60 * time.Second

// Options allows overriding HTTP behavior, mainly for tests.
type Options struct {
	HTTPClient *http.Client
}

// Client is the single authenticated HTTP client shared by every service
// adapter. It resolves paths against the configured base URL, injects the
// bearer token, and normalizes the API's two failure shapes: non-2xx bodies
// carrying {"detail": ...} and 2xx bodies carrying {"error": ...}.
type Client struct {
	logger     *slog.Logger
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a Client for the given API base URL.
func NewClient(logger *slog.Logger, baseURL, token string, opts *Options) *Client {
	if opts == nil {
		opts = &Options{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// URL resolves a path (and optional query) against the base URL. Absolute
// URLs pass through unchanged so stored audio URLs resolve either way.
func (c *Client) URL(path string, query url.Values) string {
	u := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		u = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// NewRequest builds an authenticated request for path with the given body.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, contentType string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// DoJSON executes req and decodes a JSON response into out (which may be
// nil). Application errors embedded in 2xx bodies surface as
// chat.KindApplication; everything else follows checkStatus.
func (c *Client) DoJSON(op string, req *http.Request, out any) error {
	body, _, err := c.do(op, req)
	if err != nil {
		return err
	}

	var appErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &appErr) == nil && appErr.Error != "" {
		return chat.E(chat.KindApplication, op, appErr.Error, nil)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return chat.E(chat.KindApplication, op, "malformed response", err)
	}
	return nil
}

// PostJSON marshals in as the JSON body of a POST to path and decodes the
// response into out.
func (c *Client) PostJSON(ctx context.Context, op, path string, query url.Values, in, out any) error {
	return c.sendJSON(ctx, op, http.MethodPost, path, query, in, out)
}

// PutJSON is PostJSON with the PUT verb.
func (c *Client) PutJSON(ctx context.Context, op, path string, in, out any) error {
	return c.sendJSON(ctx, op, http.MethodPut, path, nil, in, out)
}

// PatchJSON is PostJSON with the PATCH verb.
func (c *Client) PatchJSON(ctx context.Context, op, path string, in, out any) error {
	return c.sendJSON(ctx, op, http.MethodPatch, path, nil, in, out)
}

func (c *Client) sendJSON(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return chat.E(chat.KindValidation, op, "marshal request", err)
	}
	req, err := c.NewRequest(ctx, method, path, query, "application/json", body)
	if err != nil {
		return chat.E(chat.KindTransport, op, "", err)
	}
	return c.DoJSON(op, req, out)
}

// GetJSON issues an authenticated GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, op, path string, out any) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil, "", nil)
	if err != nil {
		return chat.E(chat.KindTransport, op, "", err)
	}
	return c.DoJSON(op, req, out)
}

// Delete issues an authenticated DELETE and discards the response body.
func (c *Client) Delete(ctx context.Context, op, path string) error {
	req, err := c.NewRequest(ctx, http.MethodDelete, path, nil, "", nil)
	if err != nil {
		return chat.E(chat.KindTransport, op, "", err)
	}
	return c.DoJSON(op, req, nil)
}

// DoRaw executes req and returns the raw body and headers. Used for audio
// payloads where the body is not JSON.
func (c *Client) DoRaw(op string, req *http.Request) ([]byte, http.Header, error) {
	return c.do(op, req)
}

func (c *Client) do(op string, req *http.Request) ([]byte, http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, chat.E(chat.KindTransport, op, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.Header, c.statusError(op, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, chat.E(chat.KindTransport, op, "read response", err)
	}
	return body, resp.Header, nil
}

// StatusError records the status code of a non-2xx upstream response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// statusError converts a non-2xx response into a transport error, preferring
// the {"detail": ...} message when the body carries one.
func (c *Client) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var detail struct {
		Detail string `json:"detail"`
	}
	msg := ""
	if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
		msg = detail.Detail
	} else if len(body) > 0 {
		msg = truncate(body, 256)
	}

	kind := chat.KindTransport
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		kind = chat.KindPermission
	}
	return chat.E(kind, op, msg, &StatusError{StatusCode: resp.StatusCode})
}

// IsNotFound reports whether err stems from a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Methods fetches the server-advertised enabled-methods allow-list.
func (c *Client) Methods(ctx context.Context) (chat.MethodSet, error) {
	var set chat.MethodSet
	if err := c.GetJSON(ctx, "methods", "/methods", &set); err != nil {
		return chat.MethodSet{}, err
	}
	return set, nil
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "…"
}
