package model

import "time"

// AliasType classifies the namespace an alias value lives in. Alias values
// are only unique within their type: "acme.com" as a domain and "acme.com"
// as a display name are distinct registry entries.
type AliasType string

const (
	AliasDomain      AliasType = "domain"       // apex website domain
	AliasName        AliasType = "name"         // normalized display name
	AliasFilerID     AliasType = "filer_id"     // SEC EDGAR CIK
	AliasCRMID       AliasType = "crm_id"       // Salesforce account id
	AliasSiteAccount AliasType = "site_account" // per-site child account id
)

// EntityKind distinguishes companies from contacts in the registry.
type EntityKind string

const (
	EntityCompany EntityKind = "company"
	EntityContact EntityKind = "contact"
)

// CanonicalEntity is a company or contact with one durable identity.
// The ID is immutable once assigned; everything else may be enriched later.
type CanonicalEntity struct {
	ID          string     `json:"id"`
	Kind        EntityKind `json:"kind"`
	DisplayName string     `json:"display_name"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Alias is a secondary identifier pointing at a canonical entity. The
// registry is append-only: an alias value maps to exactly one canonical id
// for its lifetime.
type Alias struct {
	Type        AliasType `json:"type"`
	Value       string    `json:"value"`
	CanonicalID string    `json:"canonical_id"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Identity is the raw (contact, company) input a research run starts from,
// before alias resolution has assigned canonical ids.
type Identity struct {
	Contact string `json:"contact"`
	Title   string `json:"title,omitempty"`
	Company string `json:"company"`
	Domain  string `json:"domain,omitempty"`
	// Hints carries caller-supplied identifiers (CRM id, filer id) that
	// seed the alias registry on first research.
	Hints map[AliasType]string `json:"hints,omitempty"`
}

// ExecMode tells orchestrator and renderer whether a human is present.
// It is injected at construction, never read from ambient process state.
type ExecMode string

const (
	ModeInteractive ExecMode = "interactive"
	ModeHeadless    ExecMode = "headless"
)
