// Package objectstore is a minimal client for a Supabase-style storage REST
// API, used to fetch source documents and publish generated audio,
// transcripts, and scripts. Objects are addressed by bucket and path;
// uploads are idempotent overwrites.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 60 * time.Second

// Client talks to one storage endpoint with a service key.
type Client struct {
	log     *slog.Logger
	http    *http.Client
	baseURL string
	key     string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a Client for the storage service at baseURL authenticating
// with the given service key.
func New(baseURL, key string, opts ...Option) (*Client, error) {
	if baseURL == "" || key == "" {
		return nil, fmt.Errorf("objectstore: base URL and key are required")
	}
	c := &Client{
		log:     slog.Default(),
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("component", "objectstore")
	return c, nil
}

func (c *Client) objectURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, bucket, strings.TrimLeft(path, "/"))
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
}

// Upload writes data to bucket/path, overwriting any existing object, and
// returns the public-style URL of the object.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL(bucket, path), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("objectstore: upload request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	if err := c.do(req, nil); err != nil {
		return "", fmt.Errorf("objectstore: upload %s/%s: %w", bucket, path, err)
	}
	c.log.Debug("object uploaded", "bucket", bucket, "path", path, "bytes", len(data))
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, bucket, strings.TrimLeft(path, "/")), nil
}

// Download fetches the object at bucket/path.
func (c *Client) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.objectURL(bucket, path), nil)
	if err != nil {
		return nil, fmt.Errorf("objectstore: download request: %w", err)
	}
	c.authorize(req)

	var body []byte
	if err := c.do(req, func(r io.Reader) error {
		body, err = io.ReadAll(r)
		return err
	}); err != nil {
		return nil, fmt.Errorf("objectstore: download %s/%s: %w", bucket, path, err)
	}
	return body, nil
}

// SignURL creates a time-limited URL for a private object.
func (c *Client) SignURL(ctx context.Context, bucket, path string, expiresIn time.Duration) (string, error) {
	payload, _ := json.Marshal(map[string]int{"expiresIn": int(expiresIn.Seconds())})
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", c.baseURL, bucket, strings.TrimLeft(path, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("objectstore: sign request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		SignedURL string `json:"signedURL"`
		SignedUrl string `json:"signedUrl"`
		URL       string `json:"url"`
	}
	if err := c.do(req, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&resp)
	}); err != nil {
		return "", fmt.Errorf("objectstore: sign %s/%s: %w", bucket, path, err)
	}

	// The field name varies across service versions.
	signed := resp.SignedURL
	if signed == "" {
		signed = resp.SignedUrl
	}
	if signed == "" {
		signed = resp.URL
	}
	if signed == "" {
		return "", fmt.Errorf("objectstore: sign %s/%s: response carried no URL", bucket, path)
	}
	if strings.HasPrefix(signed, "/") {
		signed = c.baseURL + signed
	}
	return signed, nil
}

// Object is one listing entry.
type Object struct {
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List returns the objects under prefix in bucket.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	payload, _ := json.Marshal(map[string]any{
		"prefix":    prefix,
		"limit":     1000,
		"offset":    0,
		"sortBy":    map[string]string{"column": "name", "order": "asc"},
	})
	url := fmt.Sprintf("%s/storage/v1/object/list/%s", c.baseURL, bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("objectstore: list request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	var objects []Object
	if err := c.do(req, func(r io.Reader) error {
		return json.NewDecoder(r).Decode(&objects)
	}); err != nil {
		return nil, fmt.Errorf("objectstore: list %s/%s: %w", bucket, prefix, err)
	}
	return objects, nil
}

// do executes the request and hands a successful body to read, if given.
func (c *Client) do(req *http.Request, read func(io.Reader) error) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if read == nil {
		return nil
	}
	return read(resp.Body)
}
