package provider

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
)

// newsMaxItems caps how many cited findings one research answer yields.
const newsMaxItems = 12

const newsSystemPrompt = `You are a B2B sales research assistant. Report recent, ` +
	`concrete developments about the company: expansions, leadership changes, ` +
	`funding, regulatory matters, technology initiatives. One development per ` +
	`paragraph, each backed by a citation. No speculation, no filler.`

// citationMarker matches inline [n] citation references in an answer.
var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// newsAdapter runs a cited web-research query. Only paragraphs the model
// backed with a citation survive; an uncited claim is unusable as outreach
// evidence, so an answer with no citations is an empty payload.
type newsAdapter struct {
	client perplexity.Client
	model  string
	now    func() time.Time
}

// NewNews wraps a Perplexity client as a research provider.
func NewNews(client perplexity.Client, modelID string) Adapter {
	return &newsAdapter{client: client, model: modelID, now: time.Now}
}

func (a *newsAdapter) Name() string { return "perplexity" }

func (a *newsAdapter) SourceType() model.SourceType { return model.SourcePublicURL }

func (a *newsAdapter) Fetch(ctx context.Context, identity model.Identity) (*Payload, error) {
	if identity.Company == "" {
		return nil, NewFault(a.Name(), model.FaultOther, eris.New("perplexity: identity has no company name"))
	}

	req := perplexity.ChatCompletionRequest{
		Model: a.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: newsSystemPrompt},
			{Role: "user", Content: newsQuery(identity)},
		},
		SearchRecencyFilter: "month",
	}
	if identity.Domain != "" {
		// Third-party coverage only; the company's own site is the site
		// provider's job.
		req.SearchDomainFilter = []string{"-" + identity.Domain}
	}

	resp, err := a.client.ChatCompletion(ctx, req)
	if err != nil {
		return nil, Classify(a.Name(), err)
	}

	payload := &Payload{Provider: a.Name(), SourceType: a.SourceType(), FetchedAt: a.now()}
	payload.Items = citedItems(resp.Answer(), resp.Citations)
	if len(payload.Items) == 0 {
		zap.L().Debug("news research returned no citable findings",
			zap.String("company", identity.Company),
			zap.Int("citations", len(resp.Citations)),
		)
	}
	return payload, nil
}

func newsQuery(identity model.Identity) string {
	q := fmt.Sprintf("What has happened at %s recently?", identity.Company)
	if identity.Domain != "" {
		q += fmt.Sprintf(" (the company behind %s)", identity.Domain)
	}
	return q
}

// citedItems splits an answer into paragraphs and keeps the ones whose
// citation markers resolve to a URL. Markers are stripped from the kept text.
func citedItems(answer string, citations []string) []Item {
	if answer == "" || len(citations) == 0 {
		return nil
	}

	var items []Item
	for _, para := range strings.Split(answer, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		markers := citationMarker.FindStringSubmatch(para)
		if markers == nil {
			continue
		}
		n, err := strconv.Atoi(markers[1])
		if err != nil || n < 1 || n > len(citations) {
			continue
		}

		items = append(items, Item{
			Text: cleanClaim(citationMarker.ReplaceAllString(para, "")),
			URL:  citations[n-1],
		})
		if len(items) >= newsMaxItems {
			break
		}
	}
	return items
}

// cleanClaim collapses the whitespace gaps left behind by stripped markers.
func cleanClaim(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.NewReplacer(" .", ".", " ,", ",", " ;", ";").Replace(s)
}
