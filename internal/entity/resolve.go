package entity

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Resolver maps raw identities onto canonical entities via the alias
// registry. Many site-level accounts, CRM ids and filer ids converge on a
// single canonical company; the registry never lets one alias value point
// at two entities.
type Resolver struct {
	store store.Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// ResolveCompany looks up an existing canonical company for the identity
// or creates one. Lookup cascade:
//  1. domain alias (strongest signal)
//  2. caller-supplied identifier hints (CRM id, filer id, site account)
//  3. normalized name alias
//
// On create, every available identifier is registered as an alias so the
// next run converges on the same id. Returns the entity and whether it was
// newly created.
func (r *Resolver) ResolveCompany(ctx context.Context, identity model.Identity) (*model.CanonicalEntity, bool, error) {
	if identity.Company == "" && identity.Domain == "" {
		return nil, false, eris.New("entity: identity needs a company name or domain")
	}

	id, err := r.lookupID(ctx, identity)
	if err != nil {
		return nil, false, err
	}
	if id != "" {
		return r.mustGet(ctx, id)
	}

	// No match found, create and register every identifier we have.
	ent, err := r.store.CreateEntity(ctx, model.EntityCompany, identity.Company)
	if err != nil {
		return nil, false, eris.Wrap(err, "entity: create")
	}

	domain := NormalizeDomain(identity.Domain)
	if domain != "" {
		r.registerQuietly(ctx, model.Alias{Type: model.AliasDomain, Value: domain, CanonicalID: ent.ID, Source: "resolve"})
	}
	if name := NormalizeName(identity.Company); name != "" {
		r.registerQuietly(ctx, model.Alias{Type: model.AliasName, Value: name, CanonicalID: ent.ID, Source: "resolve"})
	}
	for aliasType, value := range identity.Hints {
		if value != "" {
			r.registerQuietly(ctx, model.Alias{Type: aliasType, Value: value, CanonicalID: ent.ID, Source: "resolve"})
		}
	}

	zap.L().Info("resolve: created new company",
		zap.String("domain", domain),
		zap.String("name", identity.Company),
		zap.String("canonical_id", ent.ID),
	)

	return ent, true, nil
}

// Lookup resolves the identity through the same cascade without ever
// creating an entity. Unknown identities return (nil, nil). Dry runs use
// this so previewing a prospect leaves no trace in the registry.
func (r *Resolver) Lookup(ctx context.Context, identity model.Identity) (*model.CanonicalEntity, error) {
	if identity.Company == "" && identity.Domain == "" {
		return nil, eris.New("entity: identity needs a company name or domain")
	}

	id, err := r.lookupID(ctx, identity)
	if err != nil || id == "" {
		return nil, err
	}
	ent, _, err := r.mustGet(ctx, id)
	return ent, err
}

// lookupID walks the alias cascade: domain, caller hints, normalized name.
// Returns "" when nothing matches.
func (r *Resolver) lookupID(ctx context.Context, identity model.Identity) (string, error) {
	domain := NormalizeDomain(identity.Domain)
	if domain != "" {
		id, err := r.store.ResolveAlias(ctx, model.AliasDomain, domain)
		if err != nil {
			return "", eris.Wrap(err, "entity: resolve by domain")
		}
		if id != "" {
			zap.L().Debug("resolve: matched by domain",
				zap.String("domain", domain),
				zap.String("canonical_id", id),
			)
			return id, nil
		}
	}

	for aliasType, value := range identity.Hints {
		if value == "" {
			continue
		}
		id, err := r.store.ResolveAlias(ctx, aliasType, value)
		if err != nil {
			return "", eris.Wrapf(err, "entity: resolve by %s", aliasType)
		}
		if id != "" {
			zap.L().Debug("resolve: matched by hint",
				zap.String("alias_type", string(aliasType)),
				zap.String("canonical_id", id),
			)
			return id, nil
		}
	}

	name := NormalizeName(identity.Company)
	if name != "" {
		id, err := r.store.ResolveAlias(ctx, model.AliasName, name)
		if err != nil {
			return "", eris.Wrap(err, "entity: resolve by name")
		}
		if id != "" {
			zap.L().Debug("resolve: matched by name",
				zap.String("name", name),
				zap.String("canonical_id", id),
			)
			return id, nil
		}
	}

	return "", nil
}

// Register binds an alias to a canonical entity. Re-registering the same
// mapping succeeds; pointing the value at a different entity fails with
// store.ErrAliasConflict and leaves the original mapping in place.
func (r *Resolver) Register(ctx context.Context, alias model.Alias) error {
	switch alias.Type {
	case model.AliasDomain:
		alias.Value = NormalizeDomain(alias.Value)
	case model.AliasName:
		alias.Value = NormalizeName(alias.Value)
	}
	if alias.Value == "" {
		return eris.New("entity: empty alias value")
	}
	return r.store.RegisterAlias(ctx, alias)
}

// AliasSeeder is the bulk registration fast path the Postgres store
// provides.
type AliasSeeder interface {
	SeedAliases(ctx context.Context, aliases []model.Alias) (int64, error)
}

// RegisterBatch normalizes and registers many aliases at once, first
// writer wins. A value already mapped to a different entity is skipped
// rather than failed: a feed restating a known company must never abort
// an import. Returns the number of distinct aliases registered or
// already present.
func (r *Resolver) RegisterBatch(ctx context.Context, aliases []model.Alias) (int, error) {
	type key struct {
		t model.AliasType
		v string
	}
	seen := make(map[key]bool, len(aliases))

	batch := make([]model.Alias, 0, len(aliases))
	for _, alias := range aliases {
		switch alias.Type {
		case model.AliasDomain:
			alias.Value = NormalizeDomain(alias.Value)
		case model.AliasName:
			alias.Value = NormalizeName(alias.Value)
		}
		if alias.Value == "" || alias.CanonicalID == "" {
			continue
		}
		k := key{alias.Type, alias.Value}
		if seen[k] {
			continue
		}
		seen[k] = true
		batch = append(batch, alias)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if as, ok := r.store.(AliasSeeder); ok {
		if _, err := as.SeedAliases(ctx, batch); err != nil {
			return 0, eris.Wrap(err, "entity: register batch")
		}
		return len(batch), nil
	}
	for _, alias := range batch {
		if err := r.store.RegisterAlias(ctx, alias); err != nil {
			if errors.Is(err, store.ErrAliasConflict) {
				continue
			}
			return 0, eris.Wrap(err, "entity: register batch")
		}
	}
	return len(batch), nil
}

func (r *Resolver) mustGet(ctx context.Context, id string) (*model.CanonicalEntity, bool, error) {
	ent, err := r.store.GetEntity(ctx, id)
	if err != nil {
		return nil, false, eris.Wrap(err, "entity: get")
	}
	if ent == nil {
		// An alias pointing at a missing entity means the registry and
		// entity table disagree; surface it rather than silently forking.
		return nil, false, eris.Errorf("entity: alias resolves to missing entity %s", id)
	}
	return ent, false, nil
}

func (r *Resolver) registerQuietly(ctx context.Context, alias model.Alias) {
	if err := r.store.RegisterAlias(ctx, alias); err != nil {
		zap.L().Warn("resolve: failed to register alias",
			zap.String("alias_type", string(alias.Type)),
			zap.String("alias_value", alias.Value),
			zap.Error(err),
		)
	}
}

// NormalizeDomain strips protocol and www prefix from a URL or host.
func NormalizeDomain(raw string) string {
	d := strings.TrimSpace(raw)
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return strings.ToLower(d)
}

// legalSuffixes are trailing company designators ignored for name matching.
var legalSuffixes = []string{"inc", "llc", "corp", "corporation", "co", "ltd", "lp", "llp"}

// NormalizeName lowercases, strips punctuation and trailing legal suffixes,
// and collapses whitespace so "Acme Fabrication, Inc." and "acme fabrication"
// land on the same alias value.
func NormalizeName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Map(func(r rune) rune {
		switch r {
		case '.', ',', '\'', '"':
			return -1
		default:
			return r
		}
	}, s)
	fields := strings.Fields(s)
	for len(fields) > 1 {
		last := fields[len(fields)-1]
		matched := false
		for _, suffix := range legalSuffixes {
			if last == suffix {
				fields = fields[:len(fields)-1]
				matched = true
				break
			}
		}
		if !matched {
			break
		}
	}
	return strings.Join(fields, " ")
}
