// Package provider defines the adapter contract every external data source
// implements, plus the fault taxonomy the orchestrator records. An adapter
// returns a typed payload or a typed fault; "no data found" is an empty
// payload, never an error.
package provider

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Payload is one provider's typed contribution for an identity. Exactly the
// sections the provider knows are populated; the synthesizer merges across
// providers.
type Payload struct {
	Provider   string    `json:"provider"`
	SourceType model.SourceType `json:"source_type"`
	FetchedAt  time.Time `json:"fetched_at"`

	Company *CompanyData `json:"company,omitempty"`
	Contact *ContactData `json:"contact,omitempty"`
	Items   []Item       `json:"items,omitempty"`
}

// CompanyData carries firmographic fields a provider knows about.
type CompanyData struct {
	Name      string  `json:"name,omitempty"`
	Domain    string  `json:"domain,omitempty"`
	Industry  string  `json:"industry,omitempty"`
	Employees int     `json:"employees,omitempty"`
	City      string  `json:"city,omitempty"`
	State     string  `json:"state,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	FilerID   string  `json:"filer_id,omitempty"`
	CRMID     string  `json:"crm_id,omitempty"`
	Account   string  `json:"account,omitempty"` // primary CRM account name
	Summary   string  `json:"summary,omitempty"`
}

// ContactData carries person fields a provider knows about.
type ContactData struct {
	Name     string `json:"name,omitempty"`
	Title    string `json:"title,omitempty"`
	Email    string `json:"email,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	Location string `json:"location,omitempty"`
}

// Item is one dated text finding (news paragraph, filing entry, page
// section) signal extraction runs over.
type Item struct {
	Title       string     `json:"title,omitempty"`
	Text        string     `json:"text"`
	URL         string     `json:"url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Empty reports whether the payload carries no usable data. Adapters return
// empty payloads for genuine "nothing found" outcomes.
func (p *Payload) Empty() bool {
	return p.Company == nil && p.Contact == nil && len(p.Items) == 0
}

// Adapter is one external data source. Fetch honors ctx cancellation and
// classifies failures through Fault; it never returns an error for "no data".
type Adapter interface {
	// Name is the stable provider id used for cache keys and result maps.
	Name() string
	// SourceType is how claims from this provider are classified.
	SourceType() model.SourceType
	// Fetch retrieves data for the identity.
	Fetch(ctx context.Context, identity model.Identity) (*Payload, error)
}

// Registry holds the configured adapters in registration order. Order is
// cosmetic (log output); results are keyed by name.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Registering the same name twice replaces the
// earlier adapter and keeps its position.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Name()]; !exists {
		r.order = append(r.order, a.Name())
	}
	r.adapters[a.Name()] = a
}

// Get returns the named adapter, or nil.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// All returns the adapters in registration order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}

// Names returns the registered provider ids in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
