// Package jina wraps the Jina AI Reader API, which renders a web page into
// LLM-ready markdown. The research pipeline uses it to pull prospect sites
// without carrying a browser or an HTML extractor.
package jina

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://r.jina.ai"

	maxRetryAttempts = 3
	retryBaseDelay   = 250 * time.Millisecond
)

// Client reads web pages through the Jina AI Reader.
type Client interface {
	// Read renders targetURL into markdown.
	Read(ctx context.Context, targetURL string, opts ...ReadOption) (*ReadResponse, error)
}

// ReadResponse is the reader's JSON envelope.
type ReadResponse struct {
	Code int      `json:"code"`
	Data ReadData `json:"data"`
}

// ReadData holds the rendered page.
type ReadData struct {
	Title   string    `json:"title"`
	URL     string    `json:"url"`
	Content string    `json:"content"`
	Usage   ReadUsage `json:"usage"`
}

// ReadUsage tracks token consumption.
type ReadUsage struct {
	Tokens int `json:"tokens"`
}

// ReadOption configures a read request.
type ReadOption func(*readOpts)

type readOpts struct {
	noCache bool
}

// WithNoCache asks the reader to skip its remote cache and fetch the page
// fresh.
func WithNoCache() ReadOption {
	return func(o *readOpts) {
		o.noCache = true
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default reader base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Jina Reader client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Read renders targetURL through the reader, retrying 429 and 5xx responses
// with exponential backoff up to maxRetryAttempts. The target rides in the
// request path unescaped, which is the reader's addressing scheme.
func (c *httpClient) Read(ctx context.Context, targetURL string, opts ...ReadOption) (*ReadResponse, error) {
	ro := &readOpts{}
	for _, o := range opts {
		o(ro)
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetryAttempts; attempt++ {
		if attempt > 1 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "jina: retry interrupted")
			case <-time.After(delay):
			}
		}

		resp, retryable, err := c.readOnce(ctx, targetURL, ro)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *httpClient) readOnce(ctx context.Context, targetURL string, ro *readOpts) (*ReadResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+targetURL, nil)
	if err != nil {
		return nil, false, eris.Wrap(err, "jina: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Return-Format", "markdown")
	if ro.noCache {
		req.Header.Set("X-No-Cache", "true")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, eris.Wrap(err, "jina: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, eris.Wrap(err, "jina: read response")
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, eris.Errorf("jina: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result ReadResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, false, eris.Wrap(err, "jina: unmarshal response")
	}

	return &result, false, nil
}
