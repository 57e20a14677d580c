// Package twintest starts a collector twin for tests and wraps it in HTTP
// and admin clients with assertion helpers.
package twintest

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/twin"
)

// Start runs a twin on an httptest server that is closed when t ends.
func Start(t *testing.T) (*httptest.Server, *twin.Twin) {
	t.Helper()
	tw := twin.New(&twin.Config{Name: "twin-attentive-test"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(tw)
	t.Cleanup(srv.Close)
	return srv, tw
}

// Client is an HTTP client for a twin in tests.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	t          *testing.T
}

// NewClient creates a client pointed at a test server.
func NewClient(t *testing.T, server *httptest.Server) *Client {
	return &Client{
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		t:          t,
	}
}

// Response wraps an HTTP response with helper methods.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	t          *testing.T
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) {
	r.t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		r.t.Fatalf("failed to unmarshal response: %v\nbody: %s", err, string(r.Body))
	}
}

// JSONMap returns the response body as a map.
func (r *Response) JSONMap() map[string]any {
	r.t.Helper()
	var m map[string]any
	r.JSON(&m)
	return m
}

// AssertStatus asserts the response has the expected status code.
func (r *Response) AssertStatus(expected int) *Response {
	r.t.Helper()
	if r.StatusCode != expected {
		r.t.Errorf("expected status %d, got %d\nbody: %s", expected, r.StatusCode, string(r.Body))
	}
	return r
}

// AssertBodyContains asserts the response body contains substr.
func (r *Response) AssertBodyContains(substr string) *Response {
	r.t.Helper()
	if !strings.Contains(string(r.Body), substr) {
		r.t.Errorf("expected body to contain %q, got: %s", substr, string(r.Body))
	}
	return r
}

// Get performs a GET request.
func (c *Client) Get(path string) *Response {
	c.t.Helper()
	return c.do(http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body; nil sends no body.
func (c *Client) Post(path string, body any) *Response {
	c.t.Helper()
	return c.do(http.MethodPost, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(path string) *Response {
	c.t.Helper()
	return c.do(http.MethodDelete, path, nil)
}

func (c *Client) do(method, path string, body any) *Response {
	c.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		c.t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("failed to read response: %v", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    resp.Header,
		t:          c.t,
	}
}

// AdminClient wraps the /admin/* control plane.
type AdminClient struct {
	*Client
}

// NewAdminClient creates an admin client from a twin client.
func NewAdminClient(c *Client) *AdminClient {
	return &AdminClient{c}
}

// Reset calls POST /admin/reset.
func (ac *AdminClient) Reset() *Response {
	ac.t.Helper()
	return ac.Post("/admin/reset", nil)
}

// SetGeoDomain calls POST /admin/domains.
func (ac *AdminClient) SetGeoDomain(domain, geo string) *Response {
	ac.t.Helper()
	return ac.Post("/admin/domains", map[string]string{"domain": domain, "geo": geo})
}

// InjectFault calls POST /admin/fault/{path}.
func (ac *AdminClient) InjectFault(path string, fault twin.Fault) *Response {
	ac.t.Helper()
	return ac.Post("/admin/fault/"+strings.TrimPrefix(path, "/"), fault)
}

// RemoveFault calls DELETE /admin/fault/{path}.
func (ac *AdminClient) RemoveFault(path string) *Response {
	ac.t.Helper()
	return ac.Delete("/admin/fault/" + strings.TrimPrefix(path, "/"))
}

// RemoveEventFault calls DELETE /admin/fault/e?t={eventType}.
func (ac *AdminClient) RemoveEventFault(eventType string) *Response {
	ac.t.Helper()
	return ac.Delete("/admin/fault/e?t=" + url.QueryEscape(eventType))
}

// Events calls GET /admin/events with the given filters (t, c, u).
func (ac *AdminClient) Events(filters url.Values) []twin.CapturedRequest {
	ac.t.Helper()
	path := "/admin/events"
	if len(filters) > 0 {
		path += "?" + filters.Encode()
	}
	resp := ac.Get(path).AssertStatus(http.StatusOK)
	var body struct {
		Events []twin.CapturedRequest `json:"events"`
	}
	resp.JSON(&body)
	return body.Events
}

// WaitForEvents polls until at least n events are captured or timeout passes,
// and returns what was captured.
func (ac *AdminClient) WaitForEvents(n int, timeout time.Duration) []twin.CapturedRequest {
	ac.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		events := ac.Events(nil)
		if len(events) >= n || time.Now().After(deadline) {
			return events
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Stats calls GET /admin/stats and returns (tag fetches, captured events).
func (ac *AdminClient) Stats() (tagFetches, events int) {
	ac.t.Helper()
	var body struct {
		TagFetches int `json:"tag_fetches"`
		Events     int `json:"events"`
	}
	ac.Get("/admin/stats").AssertStatus(http.StatusOK).JSON(&body)
	return body.TagFetches, body.Events
}

// Health calls GET /admin/health.
func (ac *AdminClient) Health() *Response {
	ac.t.Helper()
	return ac.Get("/admin/health")
}
