package provider

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/jina"
)

const (
	// siteMaxSections caps how much of a homepage becomes research items.
	siteMaxSections = 8

	// siteMinSectionLen drops nav crumbs and heading-only fragments.
	siteMinSectionLen = 80
)

// siteAdapter reads the company's own website. What a company says about
// itself is public and citable, if not exactly neutral.
type siteAdapter struct {
	client  jina.Client
	noCache bool
	now     func() time.Time
}

// NewSite wraps a Jina Reader client as a research provider. noCache makes
// the reader skip its remote page cache, matching a force-refreshed run.
func NewSite(client jina.Client, noCache bool) Adapter {
	return &siteAdapter{client: client, noCache: noCache, now: time.Now}
}

func (a *siteAdapter) Name() string { return "jina" }

func (a *siteAdapter) SourceType() model.SourceType { return model.SourcePublicURL }

func (a *siteAdapter) Fetch(ctx context.Context, identity model.Identity) (*Payload, error) {
	if identity.Domain == "" {
		// No domain means nothing to read; the other providers can still
		// research by name.
		zap.L().Debug("site provider skipped, identity has no domain",
			zap.String("company", identity.Company))
		return &Payload{Provider: a.Name(), SourceType: a.SourceType(), FetchedAt: a.now()}, nil
	}

	pageURL := "https://" + identity.Domain
	var opts []jina.ReadOption
	if a.noCache {
		opts = append(opts, jina.WithNoCache())
	}

	resp, err := a.client.Read(ctx, pageURL, opts...)
	if err != nil {
		return nil, Classify(a.Name(), err)
	}

	payload := &Payload{Provider: a.Name(), SourceType: a.SourceType(), FetchedAt: a.now()}

	sections := pageSections(resp.Data.Content)
	if len(sections) == 0 {
		return payload, nil
	}

	payload.Company = &CompanyData{
		Domain:  identity.Domain,
		Summary: sections[0],
	}
	sourceURL := resp.Data.URL
	if sourceURL == "" {
		sourceURL = pageURL
	}
	for _, text := range sections {
		payload.Items = append(payload.Items, Item{
			Title: resp.Data.Title,
			Text:  text,
			URL:   sourceURL,
		})
	}

	zap.L().Debug("site read complete",
		zap.String("domain", identity.Domain),
		zap.Int("sections", len(sections)),
		zap.Int("tokens", resp.Data.Usage.Tokens),
	)
	return payload, nil
}

// pageSections splits reader markdown into substantial prose blocks.
func pageSections(content string) []string {
	var sections []string
	for _, block := range strings.Split(content, "\n\n") {
		block = strings.TrimSpace(block)
		if len(block) < siteMinSectionLen {
			continue
		}
		if strings.HasPrefix(block, "![") || strings.HasPrefix(block, "[![") {
			continue
		}
		sections = append(sections, block)
		if len(sections) >= siteMaxSections {
			break
		}
	}
	return sections
}
