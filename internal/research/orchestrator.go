// Package research fans one prospect identity out across every registered
// provider, through the entity cache, and merges whatever comes back into a
// single aggregate. A slow or broken source costs its own slot in the
// aggregate, nothing more; retry is the caller's decision on a later run.
package research

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/entity"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/provider"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// Orchestrator runs the research fan-out. Cache policy, circuit breakers
// and the clock are injected at construction; nothing reads process state.
type Orchestrator struct {
	resolver *entity.Resolver
	cache    *entity.Cache
	registry *provider.Registry
	cfg      config.ResearchConfig

	cacheMode model.CacheMode
	breakers  *resilience.ServiceBreakers
	nowFunc   func() time.Time
}

// New creates an orchestrator over the given resolver, cache and providers.
func New(resolver *entity.Resolver, cache *entity.Cache, registry *provider.Registry, cfg config.ResearchConfig) *Orchestrator {
	return &Orchestrator{
		resolver:  resolver,
		cache:     cache,
		registry:  registry,
		cfg:       cfg,
		cacheMode: model.CacheUse,
		nowFunc:   time.Now,
	}
}

// WithCacheMode sets the cache policy: use, refresh, or bypass. Refresh
// implements --force-refresh (every entry treated as stale, results still
// written back); bypass implements --dry-run (no reads, no writes).
func (o *Orchestrator) WithCacheMode(mode model.CacheMode) *Orchestrator {
	o.cacheMode = mode
	return o
}

// WithBreakers installs per-provider circuit breakers. Batch runs share one
// set across companies so a source failing everywhere gets skipped instead
// of hammered once per prospect.
func (o *Orchestrator) WithBreakers(sb *resilience.ServiceBreakers) *Orchestrator {
	o.breakers = sb
	return o
}

// WithNow sets a fixed clock for testing.
func (o *Orchestrator) WithNow(fn func() time.Time) *Orchestrator {
	o.nowFunc = fn
	return o
}

// Research resolves the identity to a canonical company and gathers every
// provider's view of it, serving fresh cache entries and fetching the rest
// concurrently under the configured limits. Provider failures are recorded
// per source and never abort siblings; a run where nothing succeeded
// returns an empty aggregate, not an error.
func (o *Orchestrator) Research(ctx context.Context, identity model.Identity) (*model.AggregatedResult, error) {
	start := o.nowFunc()

	canonicalID, err := o.resolveCompany(ctx, identity)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("canonical_id", canonicalID),
		zap.String("company", identity.Company),
	)

	result := &model.AggregatedResult{
		CanonicalID: canonicalID,
		Identity:    identity,
		Sources:     make(map[string]model.SourceResult),
		Failures:    make(map[string]model.SourceFailure),
		StartedAt:   start.UTC(),
	}

	if secs := o.cfg.OverallTimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	pending := o.serveFromCache(ctx, result, log)
	o.fetchPending(ctx, pending, result, log)

	result.DurationMS = o.nowFunc().Sub(start).Milliseconds()

	if result.Empty() {
		log.Warn("research: no sources succeeded",
			zap.Int("failures", len(result.Failures)),
			zap.Int64("duration_ms", result.DurationMS),
		)
		return result, nil
	}

	log.Info("research: aggregate complete",
		zap.Int("sources", len(result.Sources)),
		zap.Int("failures", len(result.Failures)),
		zap.Int("cache_hits", result.CacheHits()),
		zap.Int64("duration_ms", result.DurationMS),
	)
	return result, nil
}

// resolveCompany maps the identity onto a canonical id. Bypass mode never
// writes: a company the registry has not seen gets an ephemeral id that
// labels this result and is gone afterwards.
func (o *Orchestrator) resolveCompany(ctx context.Context, identity model.Identity) (string, error) {
	if o.cacheMode == model.CacheBypass {
		ent, err := o.resolver.Lookup(ctx, identity)
		if err != nil {
			return "", eris.Wrap(err, "research: resolve company")
		}
		if ent != nil {
			return ent.ID, nil
		}
		id := uuid.NewString()
		zap.L().Debug("research: unknown company in bypass mode, using ephemeral id",
			zap.String("company", identity.Company),
			zap.String("canonical_id", id),
		)
		return id, nil
	}

	ent, _, err := o.resolver.ResolveCompany(ctx, identity)
	if err != nil {
		return "", eris.Wrap(err, "research: resolve company")
	}
	return ent.ID, nil
}

// serveFromCache fills the aggregate with fresh snapshots and returns the
// adapters that still need a live fetch. A cache read failure downgrades to
// a fetch for that provider; it never fails the run.
func (o *Orchestrator) serveFromCache(ctx context.Context, result *model.AggregatedResult, log *zap.Logger) []provider.Adapter {
	adapters := o.registry.All()
	if o.cacheMode != model.CacheUse {
		return adapters
	}

	pending := make([]provider.Adapter, 0, len(adapters))
	for _, a := range adapters {
		rec, err := o.cache.Fresh(ctx, result.CanonicalID, a.Name())
		if err != nil {
			log.Warn("research: cache read failed, falling back to fetch",
				zap.String("provider", a.Name()),
				zap.Error(err),
			)
			pending = append(pending, a)
			continue
		}
		if rec == nil {
			pending = append(pending, a)
			continue
		}
		result.Sources[a.Name()] = model.SourceResult{
			Provider:  a.Name(),
			Origin:    model.OriginCache,
			Payload:   rec.Payload,
			FetchedAt: rec.FetchedAt,
		}
	}

	if hits := len(adapters) - len(pending); hits > 0 {
		log.Debug("research: served from cache", zap.Int("hits", hits))
	}
	return pending
}

// fetchPending runs the remaining providers concurrently. Workers write
// only their own provider key; the mutex guards the shared result maps and
// is never held across I/O.
func (o *Orchestrator) fetchPending(ctx context.Context, pending []provider.Adapter, result *model.AggregatedResult, log *zap.Logger) {
	if len(pending) == 0 {
		return
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.cfg.MaxConcurrent, 1))

	for _, a := range pending {
		g.Go(func() error {
			name := a.Name()

			payload, err := o.fetchOne(gctx, a, result.Identity)
			if err != nil {
				failure := o.failureFor(name, err)
				log.Warn("research: provider failed",
					zap.String("provider", name),
					zap.String("kind", string(failure.Kind)),
					zap.Error(err),
				)
				mu.Lock()
				result.Failures[name] = failure
				mu.Unlock()
				return nil
			}
			if payload == nil {
				payload = &provider.Payload{Provider: name, FetchedAt: o.nowFunc().UTC()}
			}

			raw, merr := json.Marshal(payload)
			if merr != nil {
				mu.Lock()
				result.Failures[name] = model.SourceFailure{
					Provider: name,
					Kind:     model.FaultOther,
					Message:  merr.Error(),
				}
				mu.Unlock()
				return nil
			}

			if o.cacheMode != model.CacheBypass {
				if _, perr := o.cache.Put(gctx, result.CanonicalID, name, raw); perr != nil {
					log.Warn("research: cache write failed",
						zap.String("provider", name),
						zap.Error(perr),
					)
				}
				o.registerDiscovered(gctx, result.CanonicalID, payload, log)
			}

			mu.Lock()
			result.Sources[name] = model.SourceResult{
				Provider:  name,
				Origin:    model.OriginFetch,
				Payload:   raw,
				FetchedAt: payload.FetchedAt,
			}
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
}

// fetchOne calls one adapter under the per-provider timeout, through its
// circuit breaker when a set is installed.
func (o *Orchestrator) fetchOne(ctx context.Context, a provider.Adapter, identity model.Identity) (*provider.Payload, error) {
	if secs := o.cfg.ProviderTimeoutSecs; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	if o.breakers == nil {
		return a.Fetch(ctx, identity)
	}
	return resilience.ExecuteVal(ctx, o.breakers.Get(a.Name()), func(ctx context.Context) (*provider.Payload, error) {
		return a.Fetch(ctx, identity)
	})
}

// failureFor turns a fetch error into the recorded failure entry. An open
// breaker is recorded with the stable "circuit_open" message so batch
// reports can count skips separately from live failures.
func (o *Orchestrator) failureFor(name string, err error) model.SourceFailure {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return model.SourceFailure{Provider: name, Kind: model.FaultOther, Message: "circuit_open"}
	}
	return provider.Classify(name, err).AsFailure()
}

// registerDiscovered binds identifiers a provider surfaced (SEC filer id,
// CRM account id) to the canonical company so later runs resolve without
// caller hints. A conflict keeps the original mapping and is logged.
func (o *Orchestrator) registerDiscovered(ctx context.Context, canonicalID string, payload *provider.Payload, log *zap.Logger) {
	if payload.Company == nil {
		return
	}

	bind := func(aliasType model.AliasType, value string) {
		if value == "" {
			return
		}
		err := o.resolver.Register(ctx, model.Alias{
			Type:        aliasType,
			Value:       value,
			CanonicalID: canonicalID,
			Source:      payload.Provider,
		})
		if err != nil {
			log.Warn("research: alias registration failed",
				zap.String("alias_type", string(aliasType)),
				zap.String("alias_value", value),
				zap.Error(err),
			)
		}
	}

	bind(model.AliasFilerID, payload.Company.FilerID)
	bind(model.AliasCRMID, payload.Company.CRMID)
}
