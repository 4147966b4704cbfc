// Package rules loads the relevance rule set: signal extraction patterns,
// personas, messaging angles, offers and research tiers. Everything is
// parsed into typed structs and validated once at startup; nothing downstream
// ever consults raw config maps.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Tier sets the evidence bar a brief must clear. Signals count as verified
// only when they are cited, inside the recency window, and in an allowed
// scope.
type Tier struct {
	ID             string        `yaml:"id"`
	MinSignals     int           `yaml:"min_signals"`
	MaxRecencyDays int           `yaml:"max_recency_days"`
	AllowedScopes  []model.Scope `yaml:"allowed_scopes"`
	ReviewRequired bool          `yaml:"review_required"`
}

// AllowsScope reports whether the tier accepts signals of the given scope.
func (t Tier) AllowsScope(s model.Scope) bool {
	for _, allowed := range t.AllowedScopes {
		if allowed == s {
			return true
		}
	}
	return false
}

// Persona describes a buyer archetype detected from the contact's title.
// Regulated personas never get unattended automation, whatever the evidence.
type Persona struct {
	ID         string   `yaml:"id"`
	Titles     []string `yaml:"titles"`
	Industries []string `yaml:"industries"`
	Regulated  bool     `yaml:"regulated"`
}

// SignalRule is one extraction pattern run against provider text.
type SignalRule struct {
	ID      string      `yaml:"id"`
	Pattern string      `yaml:"pattern"`
	Scope   model.Scope `yaml:"scope"`

	re *regexp.Regexp
}

// Match reports whether the rule's pattern occurs in the text.
func (r SignalRule) Match(text string) bool {
	return r.re != nil && r.re.MatchString(text)
}

// FindClaim returns the matched claim fragment, trimmed, or "" when the
// pattern does not occur.
func (r SignalRule) FindClaim(text string) string {
	if r.re == nil {
		return ""
	}
	m := r.re.FindString(text)
	return strings.TrimSpace(m)
}

// Angle is a candidate messaging approach. Selection filters angles by
// persona and verified signal types, then ranks by match count with the
// configured priority as tie-break.
type Angle struct {
	ID          string   `yaml:"id"`
	Personas    []string `yaml:"personas"`
	SignalTypes []string `yaml:"signal_types"`
	Priority    int      `yaml:"priority"`
}

// Offer is a product or service the message proposes. Aliases carry legacy
// SKU and internal codes that still appear in imported data.
type Offer struct {
	ID               string   `yaml:"id"`
	CompatibleAngles []string `yaml:"compatible_angles"`
	Personas         []string `yaml:"personas"`
	Priority         int      `yaml:"priority"`
	Aliases          []string `yaml:"aliases"`
}

// CompatibleWith reports whether the offer may accompany the given angle.
func (o Offer) CompatibleWith(angleID string) bool {
	for _, a := range o.CompatibleAngles {
		if a == angleID {
			return true
		}
	}
	return false
}

// Rules is the full validated rule set.
type Rules struct {
	Tiers       []Tier       `yaml:"tiers"`
	Personas    []Persona    `yaml:"personas"`
	SignalRules []SignalRule `yaml:"signal_rules"`
	Angles      []Angle      `yaml:"angles"`
	Offers      []Offer      `yaml:"offers"`

	tokens *TokenResolver
}

// Load reads and validates a rule set from a YAML file. Any problem is a
// startup fault: research must not begin against a half-usable rule set.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a rule set from YAML bytes.
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "rules: unmarshal")
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	tokens, err := BuildTokenResolver(r.Offers)
	if err != nil {
		return nil, err
	}
	r.tokens = tokens
	return &r, nil
}

func (r *Rules) compile() error {
	for i := range r.SignalRules {
		re, err := regexp.Compile(r.SignalRules[i].Pattern)
		if err != nil {
			return eris.Wrapf(err, "rules: signal rule %q pattern", r.SignalRules[i].ID)
		}
		r.SignalRules[i].re = re
	}
	return nil
}

// Validate checks internal consistency. All problems are reported at once.
func (r *Rules) Validate() error {
	var problems []string

	if len(r.Tiers) == 0 {
		problems = append(problems, "at least one tier is required")
	}
	tierIDs := make(map[string]bool, len(r.Tiers))
	for _, t := range r.Tiers {
		if t.ID == "" {
			problems = append(problems, "tier with empty id")
			continue
		}
		if tierIDs[t.ID] {
			problems = append(problems, fmt.Sprintf("duplicate tier id %q", t.ID))
		}
		tierIDs[t.ID] = true
		if t.MinSignals < 1 {
			problems = append(problems, fmt.Sprintf("tier %q: min_signals must be >= 1", t.ID))
		}
		if t.MaxRecencyDays < 1 {
			problems = append(problems, fmt.Sprintf("tier %q: max_recency_days must be >= 1", t.ID))
		}
		if len(t.AllowedScopes) == 0 {
			problems = append(problems, fmt.Sprintf("tier %q: allowed_scopes must not be empty", t.ID))
		}
		for _, s := range t.AllowedScopes {
			switch s {
			case model.ScopeCompany, model.ScopeIndustry, model.ScopeContact:
			default:
				problems = append(problems, fmt.Sprintf("tier %q: unknown scope %q", t.ID, s))
			}
		}
	}

	personaIDs := make(map[string]bool, len(r.Personas))
	for _, p := range r.Personas {
		if p.ID == "" {
			problems = append(problems, "persona with empty id")
			continue
		}
		if personaIDs[p.ID] {
			problems = append(problems, fmt.Sprintf("duplicate persona id %q", p.ID))
		}
		personaIDs[p.ID] = true
		if len(p.Titles) == 0 {
			problems = append(problems, fmt.Sprintf("persona %q: titles must not be empty", p.ID))
		}
	}

	ruleIDs := make(map[string]bool, len(r.SignalRules))
	for _, sr := range r.SignalRules {
		if sr.ID == "" {
			problems = append(problems, "signal rule with empty id")
			continue
		}
		if ruleIDs[sr.ID] {
			problems = append(problems, fmt.Sprintf("duplicate signal rule id %q", sr.ID))
		}
		ruleIDs[sr.ID] = true
		switch sr.Scope {
		case model.ScopeCompany, model.ScopeIndustry, model.ScopeContact:
		default:
			problems = append(problems, fmt.Sprintf("signal rule %q: unknown scope %q", sr.ID, sr.Scope))
		}
	}

	angleIDs := make(map[string]bool, len(r.Angles))
	for _, a := range r.Angles {
		if a.ID == "" {
			problems = append(problems, "angle with empty id")
			continue
		}
		if angleIDs[a.ID] {
			problems = append(problems, fmt.Sprintf("duplicate angle id %q", a.ID))
		}
		angleIDs[a.ID] = true
		for _, pid := range a.Personas {
			if !personaIDs[pid] {
				problems = append(problems, fmt.Sprintf("angle %q: unknown persona %q", a.ID, pid))
			}
		}
		for _, st := range a.SignalTypes {
			if !ruleIDs[st] {
				problems = append(problems, fmt.Sprintf("angle %q: unknown signal type %q", a.ID, st))
			}
		}
	}

	offerIDs := make(map[string]bool, len(r.Offers))
	for _, o := range r.Offers {
		if o.ID == "" {
			problems = append(problems, "offer with empty id")
			continue
		}
		if offerIDs[o.ID] {
			problems = append(problems, fmt.Sprintf("duplicate offer id %q", o.ID))
		}
		offerIDs[o.ID] = true
		for _, aid := range o.CompatibleAngles {
			if !angleIDs[aid] {
				problems = append(problems, fmt.Sprintf("offer %q: unknown angle %q", o.ID, aid))
			}
		}
		for _, pid := range o.Personas {
			if !personaIDs[pid] {
				problems = append(problems, fmt.Sprintf("offer %q: unknown persona %q", o.ID, pid))
			}
		}
	}

	if len(problems) > 0 {
		return eris.New("rules: validation failed: " + strings.Join(problems, "; "))
	}
	return nil
}

// TierByID returns the named tier, or an error listing the known ids.
func (r *Rules) TierByID(id string) (*Tier, error) {
	for i := range r.Tiers {
		if r.Tiers[i].ID == id {
			return &r.Tiers[i], nil
		}
	}
	known := make([]string, 0, len(r.Tiers))
	for _, t := range r.Tiers {
		known = append(known, t.ID)
	}
	return nil, eris.Errorf("rules: unknown tier %q (known: %s)", id, strings.Join(known, ", "))
}

// DetectPersona matches a contact title against persona title patterns.
// Longest matching title wins so "chief compliance officer" beats "officer".
// Returns nil when no persona matches.
func (r *Rules) DetectPersona(title string) *Persona {
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return nil
	}

	var best *Persona
	bestLen := 0
	for i := range r.Personas {
		for _, pt := range r.Personas[i].Titles {
			if strings.Contains(t, strings.ToLower(pt)) && len(pt) > bestLen {
				best = &r.Personas[i]
				bestLen = len(pt)
			}
		}
	}
	return best
}

// PersonaByID returns the named persona, or nil.
func (r *Rules) PersonaByID(id string) *Persona {
	for i := range r.Personas {
		if r.Personas[i].ID == id {
			return &r.Personas[i]
		}
	}
	return nil
}

// AnglesForPersona returns angles configured for the persona, in config order.
func (r *Rules) AnglesForPersona(personaID string) []Angle {
	var out []Angle
	for _, a := range r.Angles {
		for _, pid := range a.Personas {
			if pid == personaID {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// OffersForPersona returns offers configured for the persona, in config order.
func (r *Rules) OffersForPersona(personaID string) []Offer {
	var out []Offer
	for _, o := range r.Offers {
		for _, pid := range o.Personas {
			if pid == personaID {
				out = append(out, o)
				break
			}
		}
	}
	return out
}

// Tokens returns the offer token resolver built at load time.
func (r *Rules) Tokens() *TokenResolver {
	return r.tokens
}
