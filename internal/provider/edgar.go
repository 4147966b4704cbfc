package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/fetcher"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/edgar"
)

const (
	// edgarSearchWindowDays bounds full-text search to filings recent
	// enough to reference in a first-touch message.
	edgarSearchWindowDays = 365

	// edgarForms are the filing types worth citing to a prospect.
	edgarForms = "8-K,10-K,10-Q,S-1"

	// edgarMaxItems caps the combined search + feed item count so one
	// prolific filer cannot drown out every other source.
	edgarMaxItems = 25
)

// edgarAdapter surfaces SEC filing activity. Filings are public documents
// with stable viewer URLs, so every item it returns is citable.
type edgarAdapter struct {
	client edgar.Client
	retry  resilience.RetryConfig
	now    func() time.Time
}

// NewEDGAR wraps an EDGAR client as a research provider.
func NewEDGAR(client edgar.Client) Adapter {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("edgar", "full_text_search")
	return &edgarAdapter{client: client, retry: retry, now: time.Now}
}

func (a *edgarAdapter) Name() string { return "edgar" }

func (a *edgarAdapter) SourceType() model.SourceType { return model.SourcePublicURL }

func (a *edgarAdapter) Fetch(ctx context.Context, identity model.Identity) (*Payload, error) {
	if identity.Company == "" {
		return nil, NewFault(a.Name(), model.FaultOther, eris.New("edgar: identity has no company name"))
	}

	to := a.now()
	from := to.AddDate(0, 0, -edgarSearchWindowDays)

	resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*edgar.SearchResponse, error) {
		return a.client.FullTextSearch(ctx, identity.Company,
			edgar.WithForms(edgarForms),
			edgar.WithDateRange(from.Format("2006-01-02"), to.Format("2006-01-02")),
		)
	})
	if err != nil {
		return nil, Classify(a.Name(), err)
	}

	payload := &Payload{Provider: a.Name(), SourceType: a.SourceType(), FetchedAt: a.now()}
	seen := make(map[string]bool)
	add := func(item Item) {
		if len(payload.Items) >= edgarMaxItems {
			return
		}
		if item.URL != "" {
			if seen[item.URL] {
				return
			}
			seen[item.URL] = true
		}
		payload.Items = append(payload.Items, item)
	}

	cik := identity.Hints[model.AliasFilerID]
	for _, hit := range resp.Hits.Hits {
		item, hitCIK := searchHitItem(hit)
		if item.Text != "" {
			add(item)
		}
		if cik == "" {
			cik = hitCIK
		}
	}

	if cik == "" {
		return payload, nil
	}
	payload.Company = &CompanyData{Name: identity.Company, FilerID: cik}

	// The Atom feed adds the filer's own recent filings beyond what
	// full-text search surfaced. Losing it costs color, not correctness.
	feedItems, err := a.filingsFeedItems(ctx, cik)
	if err != nil {
		zap.L().Warn("edgar filings feed unavailable",
			zap.String("cik", cik),
			zap.Error(err),
		)
		return payload, nil
	}
	for _, item := range feedItems {
		add(item)
	}
	return payload, nil
}

// searchHitItem converts one full-text search hit into a dated, cited item.
// The second return is the hit's CIK, usable even when the hit itself lacks
// the fields for an item.
func searchHitItem(hit edgar.SearchHit) (Item, string) {
	src := hit.Source
	cik := ""
	if len(src.CIKs) > 0 {
		cik = src.CIKs[0]
	}
	if src.FormType == "" || len(src.DisplayNames) == 0 {
		return Item{}, cik
	}

	item := Item{
		Title: src.FormType + " filing",
		Text:  fmt.Sprintf("%s filed a %s with the SEC on %s.", src.DisplayNames[0], src.FormType, src.FileDate),
		URL:   hit.FilingURL(),
	}
	if t, err := time.Parse("2006-01-02", src.FileDate); err == nil {
		item.PublishedAt = &t
	}
	return item, cik
}

// atomEntry is the subset of an EDGAR Atom feed entry the adapter reads.
type atomEntry struct {
	Title   string `xml:"title"`
	Updated string `xml:"updated"`
	Link    struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
}

func (a *edgarAdapter) filingsFeedItems(ctx context.Context, cik string) ([]Item, error) {
	rc, err := a.client.FilingsFeed(ctx, cik, "")
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	entries, errs := fetcher.StreamXML[atomEntry](ctx, rc, "entry")

	var items []Item
	for e := range entries {
		if e.Title == "" {
			continue
		}
		item := Item{Title: e.Title, Text: e.Title, URL: e.Link.Href}
		if t, err := time.Parse(time.RFC3339, e.Updated); err == nil {
			item.PublishedAt = &t
		}
		items = append(items, item)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return items, nil
}
