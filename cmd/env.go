package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/artifact"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/entity"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/provider"
	"github.com/sells-group/outreach-cli/internal/relevance"
	"github.com/sells-group/outreach-cli/internal/render"
	"github.com/sells-group/outreach-cli/internal/research"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/rules"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/internal/synth"
	"github.com/sells-group/outreach-cli/internal/territory"
	anthropicpkg "github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/edgar"
	"github.com/sells-group/outreach-cli/pkg/jina"
	"github.com/sells-group/outreach-cli/pkg/peopledata"
	"github.com/sells-group/outreach-cli/pkg/perplexity"
)

// researchEnv holds the store, entity layer, providers, and synthesis
// stages shared by the research, draft, batch, and serve commands.
type researchEnv struct {
	Store        store.Store
	Resolver     *entity.Resolver
	Cache        *entity.Cache
	Registry     *provider.Registry
	Orchestrator *research.Orchestrator
	Rules        *rules.Rules
	Synth        *synth.Synthesizer
	Engine       *relevance.Engine
}

// Close releases resources held by the research environment.
func (re *researchEnv) Close() {
	if re.Store != nil {
		_ = re.Store.Close()
	}
}

// cacheModeFor maps the shared --dry-run and --force-refresh flags onto the
// orchestrator cache policy. Dry-run wins when both are set: it must leave
// no trace.
func cacheModeFor(dryRun, forceRefresh bool) model.CacheMode {
	switch {
	case dryRun:
		return model.CacheBypass
	case forceRefresh:
		return model.CacheRefresh
	default:
		return model.CacheUse
	}
}

// initResearchEnv validates config for the given mode, then sets up the
// store, entity layer, provider registry, and synthesis stages. Callers
// should defer env.Close().
func initResearchEnv(ctx context.Context, mode string, cacheMode model.CacheMode) (*researchEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	registry, err := initProviders(cacheMode == model.CacheRefresh)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	r, err := loadRules()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	resolver := entity.NewResolver(st)
	cache := entity.NewCache(st, cfg.Cache)

	orc := research.New(resolver, cache, registry, cfg.Research).
		WithCacheMode(cacheMode).
		WithBreakers(resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()))

	syn := synth.New(r)
	if cfg.Territory.ShapefilePath != "" {
		assigner, terr := territory.Load(cfg.Territory)
		if terr != nil {
			zap.L().Warn("territory shapefile not loaded, briefs carry no territory", zap.Error(terr))
		} else {
			syn = syn.WithTerritory(assigner)
			zap.L().Info("territory assignment enabled",
				zap.Strings("territories", assigner.Territories()))
		}
	}

	return &researchEnv{
		Store:        st,
		Resolver:     resolver,
		Cache:        cache,
		Registry:     registry,
		Orchestrator: orc,
		Rules:        r,
		Synth:        syn,
		Engine:       relevance.New(r),
	}, nil
}

// initProviders registers every research source with credentials. A source
// without credentials is skipped, not an error: the registry is whatever is
// available today. EDGAR needs only the contact user agent, so it is always
// on. noCache makes the site reader skip its remote page cache on
// force-refreshed runs.
func initProviders(noCache bool) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	registry.Register(provider.NewEDGAR(edgar.NewClient(cfg.EDGAR.UserAgent)))

	if cfg.Perplexity.Key != "" {
		client := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model))
		registry.Register(provider.NewNews(client, cfg.Perplexity.Model))
	} else {
		zap.L().Debug("OUTREACH_PERPLEXITY_KEY not set, news provider disabled")
	}

	if cfg.Jina.Key != "" {
		client := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
		registry.Register(provider.NewSite(client, noCache))
	} else {
		zap.L().Debug("OUTREACH_JINA_KEY not set, site provider disabled")
	}

	if cfg.PeopleData.Key != "" {
		client := peopledata.NewClient(cfg.PeopleData.Key, peopledata.WithBaseURL(cfg.PeopleData.BaseURL))
		registry.Register(provider.NewStack(client))
	} else {
		zap.L().Debug("OUTREACH_PEOPLEDATA_KEY not set, contact vendor provider disabled")
	}

	if cfg.Salesforce.ClientID != "" {
		sfClient, err := initSalesforce()
		if err != nil {
			return nil, err
		}
		registry.Register(provider.NewCRM(sfClient))
	} else {
		zap.L().Debug("OUTREACH_SALESFORCE_CLIENT_ID not set, CRM provider disabled")
	}

	zap.L().Info("providers registered", zap.Strings("providers", registry.Names()))
	return registry, nil
}

// loadRules reads the configured rule set, falling back to the built-in
// defaults when no file exists at the configured path. A file that exists
// but does not parse is a startup fault.
func loadRules() (*rules.Rules, error) {
	path := cfg.Rules.Path
	if path == "" {
		return rules.Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		zap.L().Warn("rules file not found, using built-in rule set", zap.String("path", path))
		return rules.Default(), nil
	}
	return rules.Load(path)
}

// initRenderer builds the drafting stack: Claude generation, artifact
// writing, and cost accounting.
func initRenderer(mode model.ExecMode) *render.Renderer {
	gen := render.NewClaudeGenerator(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.SonnetModel)
	writer := artifact.NewWriter(cfg.Render.OutRoot)
	calc := cost.NewCalculator(cost.FromConfig(cfg.Pricing))
	return render.New(gen, writer, calc, mode, cfg.Render.Variants)
}

// newRunSummary starts a run summary from the aggregate's source ledger.
func newRunSummary(agg *model.AggregatedResult) *model.RunSummary {
	return &model.RunSummary{
		SourcesSucceeded: agg.SourcesSucceeded(),
		SourcesFailed:    agg.SourcesFailed(),
		CacheHits:        agg.CacheHits(),
	}
}

// advanceRun moves a run through its lifecycle. Bookkeeping failures only
// warn; they never fail the command that did the real work.
func advanceRun(ctx context.Context, st store.Store, runID string, status model.RunStatus) {
	if runID == "" {
		return
	}
	if err := st.UpdateRunStatus(ctx, runID, status); err != nil {
		zap.L().Warn("run status update failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}

// finishRun records the run outcome. Bookkeeping failures only warn; they
// never fail the command that did the real work.
func finishRun(ctx context.Context, st store.Store, runID string, status model.RunStatus, summary *model.RunSummary) {
	if runID == "" {
		return
	}
	if err := st.CompleteRun(ctx, runID, status, summary); err != nil {
		zap.L().Warn("run bookkeeping write failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}
