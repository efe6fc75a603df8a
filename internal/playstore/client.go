// Package playstore is a typed client for the app-store publishing API.
//
// The surface mirrors the edit-based publishing model: every mutation is
// written into an open edit, which becomes visible only when the edit is
// committed. All requests carry a bearer token from a TokenSource; the
// client never obtains credentials itself.
package playstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultBaseURL = "https://androidpublisher.googleapis.com"
	apiPrefix      = "/androidpublisher/v3/applications"
	uploadPrefix   = "/upload/androidpublisher/v3/applications"

	// maxResponseSize bounds JSON response reads.
	maxResponseSize int64 = 32 << 20
)

// Config holds configuration for creating a Client.
type Config struct {
	// BaseURL is the API root. Defaults to the public endpoint. Must use
	// HTTPS unless the host is loopback.
	BaseURL string

	// UploadURL is the root for media uploads. Defaults to BaseURL.
	UploadURL string

	// Tokens supplies the bearer credential. Required.
	Tokens TokenSource

	// HTTPClient is used for all requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client talks to the publishing API.
type Client struct {
	baseURL    string
	uploadURL  string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates the configuration and builds a client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	upload := strings.TrimRight(cfg.UploadURL, "/")
	if upload == "" {
		upload = base
	}
	for _, raw := range []string{base, upload} {
		if err := checkEndpoint(raw); err != nil {
			return nil, err
		}
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("playstore: token source is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    base,
		uploadURL:  upload,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		logger:     logger.With("component", "playstore"),
	}, nil
}

func checkEndpoint(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("playstore: invalid endpoint %q: %w", raw, err)
	}
	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		host := parsed.Hostname()
		if host == "localhost" {
			return nil
		}
		if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
			return nil
		}
	}
	return fmt.Errorf("playstore: API client requires HTTPS (got %q)", raw)
}

func appPath(prefix, pkg string, parts ...string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('/')
	b.WriteString(url.PathEscape(pkg))
	for _, part := range parts {
		b.WriteByte('/')
		b.WriteString(part)
	}
	return b.String()
}

func editPath(pkg, editID string, parts ...string) string {
	return appPath(apiPrefix, pkg, append([]string{"edits", url.PathEscape(editID)}, parts...)...)
}

// do executes an authenticated request against root+path. A non-nil in is
// JSON-encoded; out, when non-nil, receives the decoded response.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("playstore: encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	}
	return c.send(ctx, method, c.baseURL+path, contentType, body, out)
}

// upload streams media to the upload root.
func (c *Client) upload(ctx context.Context, path, contentType string, media io.Reader, out any) error {
	target := c.uploadURL + path + "?uploadType=media"
	return c.send(ctx, http.MethodPost, target, contentType, media, out)
}

func (c *Client) send(ctx context.Context, method, target, contentType string, body io.Reader, out any) error {
	request, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("playstore: creating request: %w", err)
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("playstore: obtaining access token: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Accept", "application/json")
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("playstore: %s %s: %w", method, request.URL.Path, err)
	}
	defer response.Body.Close()
	data, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("playstore: reading response body: %w", err)
	}
	c.logger.Debug("api call", "method", method, "path", request.URL.Path, "status", response.StatusCode)
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return parseAPIError(response.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("playstore: decoding %s %s response: %w", method, request.URL.Path, err)
	}
	return nil
}
