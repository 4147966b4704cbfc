package rules

import (
	"strings"

	"github.com/rotisserie/eris"
)

// TokenResolver maps offer tokens (canonical ids, legacy SKUs, internal
// codes) onto canonical offer ids. The mapping is built once at load time
// from every configured alias source and is immutable afterwards; a token
// bound to two different offers is a config fault, not a silent overwrite.
type TokenResolver struct {
	byToken map[string]string
}

// BuildTokenResolver indexes offers and their aliases. Token matching is
// case-insensitive.
func BuildTokenResolver(offers []Offer) (*TokenResolver, error) {
	byToken := make(map[string]string)

	bind := func(token, offerID string) error {
		key := strings.ToLower(strings.TrimSpace(token))
		if key == "" {
			return nil
		}
		if existing, ok := byToken[key]; ok && existing != offerID {
			return eris.Errorf("rules: token %q bound to both %q and %q", token, existing, offerID)
		}
		byToken[key] = offerID
		return nil
	}

	for _, o := range offers {
		if err := bind(o.ID, o.ID); err != nil {
			return nil, err
		}
		for _, alias := range o.Aliases {
			if err := bind(alias, o.ID); err != nil {
				return nil, err
			}
		}
	}

	return &TokenResolver{byToken: byToken}, nil
}

// Resolve maps one token to its canonical offer id. Unknown tokens return
// ("", false).
func (tr *TokenResolver) Resolve(token string) (string, bool) {
	id, ok := tr.byToken[strings.ToLower(strings.TrimSpace(token))]
	return id, ok
}

// ResolveAll maps a token list to canonical offer ids, dropping duplicates
// while preserving first-seen order. Legacy and internal forms of the same
// offer collapse to one entry. Unknown tokens are skipped and reported in
// the second return value.
func (tr *TokenResolver) ResolveAll(tokens []string) (resolved []string, unknown []string) {
	seen := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		id, ok := tr.Resolve(tok)
		if !ok {
			unknown = append(unknown, tok)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		resolved = append(resolved, id)
	}
	return resolved, unknown
}
