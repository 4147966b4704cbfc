// Package peopledata provides a client for the People Data Labs enrichment
// API: person enrichment by name + company, and company enrichment by
// domain or name. A clean "no match" is reported as found=false, not an
// error, so callers can distinguish missing data from a failing vendor.
package peopledata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.peopledatalabs.com/v5"

// Client performs enrichment lookups.
type Client interface {
	// EnrichPerson looks up a person by name and company.
	EnrichPerson(ctx context.Context, params PersonParams) (*PersonResponse, error)
	// EnrichCompany looks up a company by domain or name.
	EnrichCompany(ctx context.Context, params CompanyParams) (*CompanyResponse, error)
}

// PersonParams identifies the person to enrich.
type PersonParams struct {
	Name    string
	Company string
}

// PersonResponse is the decoded person enrichment result.
type PersonResponse struct {
	Status     int     `json:"status"`
	Likelihood float64 `json:"likelihood"`
	Data       Person  `json:"data"`
}

// Found reports whether the lookup matched a person.
func (r *PersonResponse) Found() bool {
	return r != nil && r.Status == http.StatusOK
}

// Person holds the subset of person fields the pipeline consumes.
type Person struct {
	FullName    string `json:"full_name"`
	JobTitle    string `json:"job_title"`
	WorkEmail   string `json:"work_email"`
	LinkedInURL string `json:"linkedin_url"`
	Location    string `json:"location_name"`
	JobCompany  string `json:"job_company_name"`
}

// CompanyParams identifies the company to enrich. Website wins over Name
// when both are set.
type CompanyParams struct {
	Website string
	Name    string
}

// CompanyResponse is the decoded company enrichment result.
type CompanyResponse struct {
	Status int `json:"status"`
	Company
}

// Found reports whether the lookup matched a company.
func (r *CompanyResponse) Found() bool {
	return r != nil && r.Status == http.StatusOK
}

// Company holds the subset of company fields the pipeline consumes.
type Company struct {
	Name          string   `json:"name"`
	Website       string   `json:"website"`
	Industry      string   `json:"industry"`
	EmployeeCount int      `json:"employee_count"`
	Summary       string   `json:"summary"`
	Location      Location `json:"location"`
	Tags          []string `json:"tags"`
}

// Location carries HQ geography, including coordinates used for territory
// assignment.
type Location struct {
	Locality  string  `json:"locality"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
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
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a People Data Labs client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		limiter: rate.NewLimiter(10, 10),
		http: &http.Client{
			Timeout: 20 * time.Second,
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

func (c *httpClient) get(ctx context.Context, path string, params url.Values, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, eris.Wrap(err, "peopledata: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return 0, eris.Wrap(err, "peopledata: create request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "peopledata: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, eris.Wrap(err, "peopledata: read response")
	}

	// 404 carries a well-formed "no match" body; other non-200s are faults
	// the caller classifies from the status code.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return resp.StatusCode, eris.Errorf("peopledata: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resp.StatusCode, eris.Wrap(err, "peopledata: unmarshal response")
	}
	return resp.StatusCode, nil
}

func (c *httpClient) EnrichPerson(ctx context.Context, params PersonParams) (*PersonResponse, error) {
	if params.Name == "" {
		return nil, eris.New("peopledata: person name is required")
	}

	v := url.Values{}
	v.Set("name", params.Name)
	if params.Company != "" {
		v.Set("company", params.Company)
	}

	var result PersonResponse
	status, err := c.get(ctx, "/person/enrich", v, &result)
	if err != nil {
		return nil, err
	}
	result.Status = status
	return &result, nil
}

func (c *httpClient) EnrichCompany(ctx context.Context, params CompanyParams) (*CompanyResponse, error) {
	if params.Website == "" && params.Name == "" {
		return nil, eris.New("peopledata: company website or name is required")
	}

	v := url.Values{}
	if params.Website != "" {
		v.Set("website", params.Website)
	} else {
		v.Set("name", params.Name)
	}

	var result CompanyResponse
	status, err := c.get(ctx, "/company/enrich", v, &result)
	if err != nil {
		return nil, err
	}
	result.Status = status
	return &result, nil
}
