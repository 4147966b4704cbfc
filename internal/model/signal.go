package model

import (
	"fmt"
	"time"
)

// SourceType says where a signal's claim was observed.
type SourceType string

const (
	// SourcePublicURL is a claim backed by a publicly reachable page.
	SourcePublicURL SourceType = "public_url"
	// SourceVendorData is a claim from a paid data vendor; real but not
	// independently checkable by the prospect.
	SourceVendorData SourceType = "vendor_data"
	// SourceInference is a claim derived by the pipeline itself.
	SourceInference SourceType = "inference"
)

// Citability is whether a prospect could verify the claim themselves.
type Citability string

const (
	Cited   Citability = "cited"
	Uncited Citability = "uncited"
)

// DeriveCitability computes citability from source type. Only claims with a
// public URL behind them are citable; vendor and inferred claims are not,
// no matter how confident the source.
func DeriveCitability(st SourceType) Citability {
	if st == SourcePublicURL {
		return Cited
	}
	return Uncited
}

// Scope is the blast radius of a claim.
type Scope string

const (
	ScopeCompany  Scope = "company_level"
	ScopeIndustry Scope = "industry_wide"
	ScopeContact  Scope = "contact_level"
)

// Signal is a single sourced, scoped claim about a company or contact used
// as evidence for outreach personalization.
type Signal struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"` // extraction rule id, e.g. "regulatory_deadline"
	Scope       Scope      `json:"scope"`
	Claim       string     `json:"claim"`
	Provider    string     `json:"provider"`
	SourceURL   string     `json:"source_url,omitempty"`
	SourceType  SourceType `json:"source_type"`
	Citability  Citability `json:"citability"`
	RecencyDays int        `json:"recency_days"`
	ObservedAt  *time.Time `json:"observed_at,omitempty"`
	// Verified is set by the relevance engine when the signal is cited and
	// passes the active tier's scope and recency thresholds.
	Verified bool `json:"verified"`
}

// Validate checks the structural invariants every stored signal must hold.
func (s Signal) Validate() error {
	if s.Claim == "" {
		return fmt.Errorf("signal %s: empty claim", s.ID)
	}
	if s.RecencyDays < 0 {
		return fmt.Errorf("signal %s: negative recency_days %d", s.ID, s.RecencyDays)
	}
	if got, want := s.Citability, DeriveCitability(s.SourceType); got != want {
		return fmt.Errorf("signal %s: citability %q does not match source_type %q", s.ID, got, s.SourceType)
	}
	switch s.Scope {
	case ScopeCompany, ScopeIndustry, ScopeContact:
	default:
		return fmt.Errorf("signal %s: unknown scope %q", s.ID, s.Scope)
	}
	return nil
}

// CountBySourceType tallies signals per source type, used by reporting and
// by round-trip checks on persisted briefs.
func CountBySourceType(signals []Signal) map[SourceType]int {
	counts := make(map[SourceType]int)
	for _, s := range signals {
		counts[s.SourceType]++
	}
	return counts
}
