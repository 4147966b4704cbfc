// Package edgar provides a client for SEC EDGAR full-text search and
// company filing feeds. EDGAR requires no API key, only a descriptive
// User-Agent with a contact address, and asks for at most 10 requests per
// second; the client enforces both.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultSearchBaseURL = "https://efts.sec.gov/LATEST"
	defaultFeedBaseURL   = "https://www.sec.gov"
)

// Client performs SEC EDGAR lookups.
type Client interface {
	// FullTextSearch queries EDGAR full-text search for filings mentioning
	// the query string.
	FullTextSearch(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
	// FilingsFeed fetches the Atom feed of a company's recent filings by
	// CIK. The caller owns the returned reader.
	FilingsFeed(ctx context.Context, cik string, formType string) (io.ReadCloser, error)
}

// SearchResponse is the decoded full-text search result.
type SearchResponse struct {
	Hits SearchHits `json:"hits"`
}

// SearchHits wraps the hit list and total.
type SearchHits struct {
	Total SearchTotal `json:"total"`
	Hits  []SearchHit `json:"hits"`
}

// SearchTotal carries the total hit count.
type SearchTotal struct {
	Value int `json:"value"`
}

// SearchHit is one matching filing.
type SearchHit struct {
	ID     string       `json:"_id"`
	Source SearchSource `json:"_source"`
}

// SearchSource is the filing metadata inside a hit.
type SearchSource struct {
	CIKs         []string `json:"ciks"`
	DisplayNames []string `json:"display_names"`
	FormType     string   `json:"form"`
	FileDate     string   `json:"file_date"` // YYYY-MM-DD
	AccessionNo  string   `json:"adsh"`
}

// FilingURL returns the public viewer URL for the hit, or "" when the hit
// lacks the fields to build one.
func (h SearchHit) FilingURL() string {
	if len(h.Source.CIKs) == 0 || h.Source.AccessionNo == "" {
		return ""
	}
	accession := strings.ReplaceAll(h.Source.AccessionNo, "-", "")
	return fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%s/%s/%s-index.htm",
		strings.TrimLeft(h.Source.CIKs[0], "0"), accession, h.Source.AccessionNo)
}

// SearchOption refines a full-text search.
type SearchOption func(url.Values)

// WithForms restricts the search to the given form types (e.g. "8-K,10-K").
func WithForms(forms string) SearchOption {
	return func(v url.Values) {
		v.Set("forms", forms)
	}
}

// WithDateRange restricts the search to filings between two YYYY-MM-DD dates.
func WithDateRange(from, to string) SearchOption {
	return func(v url.Values) {
		v.Set("dateRange", "custom")
		v.Set("startdt", from)
		v.Set("enddt", to)
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithSearchBaseURL overrides the full-text search base URL (for testing).
func WithSearchBaseURL(u string) Option {
	return func(c *httpClient) {
		c.searchBaseURL = u
	}
}

// WithFeedBaseURL overrides the filings feed base URL (for testing).
func WithFeedBaseURL(u string) Option {
	return func(c *httpClient) {
		c.feedBaseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default 10 req/s limiter.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	userAgent     string
	searchBaseURL string
	feedBaseURL   string
	http          *http.Client
	limiter       *rate.Limiter
}

// NewClient creates an EDGAR client. userAgent must identify the operator
// per SEC fair-access policy (e.g. "Example Corp admin@example.com").
func NewClient(userAgent string, opts ...Option) Client {
	c := &httpClient{
		userAgent:     userAgent,
		searchBaseURL: defaultSearchBaseURL,
		feedBaseURL:   defaultFeedBaseURL,
		limiter:       rate.NewLimiter(10, 10),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) get(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "edgar: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "edgar: send request")
	}
	return resp, nil
}

func (c *httpClient) FullTextSearch(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	params := url.Values{}
	params.Set("q", `"`+query+`"`)
	for _, o := range opts {
		o(params)
	}

	resp, err := c.get(ctx, c.searchBaseURL+"/search-index?"+params.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("edgar: search returned status %d: %s", resp.StatusCode, string(body))
	}

	var result SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, eris.Wrap(err, "edgar: decode search response")
	}
	return &result, nil
}

func (c *httpClient) FilingsFeed(ctx context.Context, cik string, formType string) (io.ReadCloser, error) {
	if cik == "" {
		return nil, eris.New("edgar: cik is required")
	}

	params := url.Values{}
	params.Set("action", "getcompany")
	params.Set("CIK", cik)
	params.Set("output", "atom")
	params.Set("count", "40")
	if formType != "" {
		params.Set("type", formType)
	}

	resp, err := c.get(ctx, c.feedBaseURL+"/cgi-bin/browse-edgar?"+params.Encode())
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, eris.Errorf("edgar: feed returned status %d: %s", resp.StatusCode, string(body))
	}
	return resp.Body, nil
}
