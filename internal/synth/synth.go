// Package synth turns a raw provider aggregate into a prospect context:
// normalized contact and company profiles plus the candidate signal list.
// Synthesis never fetches and never filters; scoring and relevance are the
// next stage's job.
package synth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/entity"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/provider"
	"github.com/sells-group/outreach-cli/internal/rules"
)

// TerritoryAssigner maps HQ coordinates onto a named sales territory.
type TerritoryAssigner interface {
	Assign(lat, lon float64) (string, bool)
}

// mergeOrder fixes provider precedence for profile fields: the enrichment
// vendor is the most complete, the CRM the most curated, then the public
// sources. Providers outside this list are appended in sorted order, so the
// merge stays deterministic whatever the registry holds.
var mergeOrder = []string{"peopledata", "salesforce", "edgar", "jina", "perplexity"}

// Synthesizer builds prospect contexts from aggregated provider output.
// Given the same aggregate and clock it always produces the same context.
type Synthesizer struct {
	rules     *rules.Rules
	territory TerritoryAssigner
	nowFunc   func() time.Time
}

// New creates a synthesizer over the given rule set.
func New(r *rules.Rules) *Synthesizer {
	return &Synthesizer{rules: r, nowFunc: time.Now}
}

// WithTerritory installs a territory assigner consulted when the merged
// company profile carries HQ coordinates.
func (s *Synthesizer) WithTerritory(t TerritoryAssigner) *Synthesizer {
	s.territory = t
	return s
}

// WithNow sets a fixed clock for testing.
func (s *Synthesizer) WithNow(fn func() time.Time) *Synthesizer {
	s.nowFunc = fn
	return s
}

// Synthesize merges every readable provider payload into contact and company
// profiles and extracts candidate signals by running the configured rules
// over provider text. A payload that no longer parses is skipped with a
// warning; an aggregate with no usable payloads still yields a context built
// from the identity alone.
func (s *Synthesizer) Synthesize(agg *model.AggregatedResult) (*model.ProspectContext, error) {
	if agg == nil {
		return nil, eris.New("synth: nil aggregate")
	}

	payloads := s.orderedPayloads(agg)

	company := s.mergeCompany(agg, payloads)
	contact := s.mergeContact(agg, payloads, company.Name)
	signals := s.extractSignals(payloads)

	if s.territory != nil && (company.Latitude != 0 || company.Longitude != 0) {
		if name, ok := s.territory.Assign(company.Latitude, company.Longitude); ok {
			company.Territory = name
		}
	}

	return &model.ProspectContext{
		Contact:       contact,
		Company:       company,
		Signals:       signals,
		SynthesizedAt: s.nowFunc().UTC(),
	}, nil
}

// orderedPayloads decodes the aggregate's payloads in merge-precedence
// order. Map iteration order never leaks into the output.
func (s *Synthesizer) orderedPayloads(agg *model.AggregatedResult) []*provider.Payload {
	ranked := make(map[string]bool, len(mergeOrder))
	order := make([]string, 0, len(agg.Sources))
	for _, id := range mergeOrder {
		if _, ok := agg.Sources[id]; ok {
			order = append(order, id)
			ranked[id] = true
		}
	}
	rest := make([]string, 0, len(agg.Sources))
	for id := range agg.Sources {
		if !ranked[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	payloads := make([]*provider.Payload, 0, len(order))
	for _, id := range order {
		src := agg.Sources[id]
		var p provider.Payload
		if err := json.Unmarshal(src.Payload, &p); err != nil {
			zap.L().Warn("synth: unreadable provider payload, skipping",
				zap.String("provider", id),
				zap.Error(err),
			)
			continue
		}
		if p.Provider == "" {
			p.Provider = id
		}
		if p.FetchedAt.IsZero() {
			p.FetchedAt = src.FetchedAt
		}
		payloads = append(payloads, &p)
	}
	return payloads
}

// mergeCompany folds company data across providers, first non-empty field
// wins in precedence order. The identity seeds name and domain so a run
// with zero usable payloads still describes the right company.
func (s *Synthesizer) mergeCompany(agg *model.AggregatedResult, payloads []*provider.Payload) model.CompanyProfile {
	profile := model.CompanyProfile{
		CanonicalID: agg.CanonicalID,
		Name:        agg.Identity.Company,
		Domain:      entity.NormalizeDomain(agg.Identity.Domain),
	}

	seen := make(map[string]bool)
	for _, p := range payloads {
		c := p.Company
		if c != nil {
			if profile.Name == "" {
				profile.Name = c.Name
			}
			if profile.Domain == "" {
				profile.Domain = entity.NormalizeDomain(c.Domain)
			}
			if profile.Industry == "" {
				profile.Industry = c.Industry
			}
			if profile.Employees == 0 {
				profile.Employees = c.Employees
			}
			if profile.City == "" {
				profile.City = c.City
			}
			if profile.State == "" {
				profile.State = c.State
			}
			if profile.Latitude == 0 && profile.Longitude == 0 {
				profile.Latitude = c.Latitude
				profile.Longitude = c.Longitude
			}
			if profile.FilerID == "" {
				profile.FilerID = c.FilerID
			}
			if profile.CRMID == "" {
				profile.CRMID = c.CRMID
			}
			if profile.Account == "" {
				profile.Account = c.Account
			}
			if profile.Summary == "" {
				profile.Summary = c.Summary
			}
		}
		for _, item := range p.Items {
			if item.URL == "" || seen[item.URL] {
				continue
			}
			seen[item.URL] = true
			profile.SourceURLs = append(profile.SourceURLs, item.URL)
		}
	}
	return profile
}

// mergeContact folds contact data the same way, seeded from the identity.
func (s *Synthesizer) mergeContact(agg *model.AggregatedResult, payloads []*provider.Payload, companyName string) model.ContactProfile {
	profile := model.ContactProfile{
		Name:    agg.Identity.Contact,
		Title:   agg.Identity.Title,
		Company: companyName,
	}

	for _, p := range payloads {
		c := p.Contact
		if c == nil {
			continue
		}
		profile.Sources = append(profile.Sources, p.Provider)
		if profile.Name == "" {
			profile.Name = c.Name
		}
		if profile.Title == "" {
			profile.Title = c.Title
		}
		if profile.Email == "" {
			profile.Email = c.Email
		}
		if profile.LinkedIn == "" {
			profile.LinkedIn = c.LinkedIn
		}
		if profile.Location == "" {
			profile.Location = c.Location
		}
	}
	return profile
}

// extractSignals runs every configured rule over every item's text. Each
// match becomes one candidate signal carrying its provider, URL and a
// citability derived from where the claim was observed. Identical claims
// from the same provider and rule collapse to one signal.
func (s *Synthesizer) extractSignals(payloads []*provider.Payload) []model.Signal {
	now := s.nowFunc().UTC()

	var out []model.Signal
	seen := make(map[string]bool)
	for _, p := range payloads {
		for _, item := range p.Items {
			text := item.Text
			if text == "" {
				text = item.Title
			}
			if text == "" {
				continue
			}

			for _, rule := range s.rules.SignalRules {
				claim := rule.FindClaim(text)
				if claim == "" {
					continue
				}

				sourceType := p.SourceType
				if sourceType == model.SourcePublicURL && item.URL == "" {
					// A public claim without a reachable URL cannot be
					// cited; it carries inference weight only.
					sourceType = model.SourceInference
				}

				sig := model.Signal{
					ID:          signalID(p.Provider, rule.ID, claim),
					Type:        rule.ID,
					Scope:       rule.Scope,
					Claim:       claim,
					Provider:    p.Provider,
					SourceType:  sourceType,
					Citability:  model.DeriveCitability(sourceType),
					RecencyDays: recencyDays(now, item.PublishedAt, p.FetchedAt),
					ObservedAt:  observedAt(item.PublishedAt, p.FetchedAt),
				}
				if sourceType == model.SourcePublicURL {
					sig.SourceURL = item.URL
				}

				if seen[sig.ID] {
					continue
				}
				seen[sig.ID] = true
				out = append(out, sig)
			}
		}
	}
	return out
}

// signalID derives a stable id from what the signal says and where it came
// from, so re-synthesizing the same aggregate yields the same ids.
func signalID(providerName, ruleID, claim string) string {
	h := sha256.Sum256([]byte(providerName + "|" + ruleID + "|" + claim))
	return "sig-" + hex.EncodeToString(h[:6])
}

// recencyDays computes whole days between the claim's observation date and
// now, clamped at zero so future-dated items never go negative.
func recencyDays(now time.Time, published *time.Time, fetched time.Time) int {
	observed := fetched
	if published != nil {
		observed = *published
	}
	if observed.IsZero() {
		return 0
	}
	days := int(now.Sub(observed).Hours() / 24)
	return max(days, 0)
}

func observedAt(published *time.Time, fetched time.Time) *time.Time {
	if published != nil {
		return published
	}
	if fetched.IsZero() {
		return nil
	}
	return &fetched
}
