// Package salesforce wraps the go-salesforce REST client behind the small
// surface the outreach pipeline needs: SOQL reads for CRM enrichment and
// single-record writes for promotion bookkeeping.
package salesforce

import (
	"context"
	"fmt"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the narrow Salesforce surface the pipeline uses.
type Client interface {
	// Query runs a SOQL query and decodes the records into out, a pointer to
	// a slice of the record struct.
	Query(ctx context.Context, soql string, out any) error
	// InsertOne creates a record and returns its new Salesforce ID.
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	// UpdateOne patches the identified record with the given field values.
	UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit caps outgoing API calls at rps per second. Zero or negative
// rates leave the client unthrottled.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// sfClient adapts a go-salesforce/v3 session. The library's calls take no
// context, so ctx governs only the rate limiter wait ahead of each call.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient wraps an authenticated go-salesforce session.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *sfClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	if err := c.sf.Query(soql, out); err != nil {
		return eris.Wrap(err, "sf: query")
	}
	return nil
}

func (c *sfClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", eris.Wrap(err, "sf: rate limit")
	}
	result, err := c.sf.InsertOne(sObjectName, record)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: insert %s", sObjectName))
	}
	if !result.Success {
		return "", eris.New(fmt.Sprintf("sf: insert %s failed: %v", sObjectName, result.Errors))
	}
	return result.Id, nil
}

func (c *sfClient) UpdateOne(ctx context.Context, sObjectName string, id string, fields map[string]any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	// Copy so the record ID never leaks into the caller's map.
	rec := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		rec[k] = v
	}
	rec["Id"] = id
	if err := c.sf.UpdateOne(sObjectName, rec); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update %s %s", sObjectName, id))
	}
	return nil
}
